package invoices

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
)

// Capability is an operation an actor may attempt on an invoice.
type Capability string

const (
	CapabilityView        Capability = "view"
	CapabilitySync        Capability = "sync"
	CapabilityUploadProof Capability = "upload_proof"
	CapabilityConfirm     Capability = "confirm"
	CapabilityReject      Capability = "reject"
)

var capabilities = map[enums.ActorRole]map[Capability]bool{
	enums.ActorRoleStore: {
		CapabilityView:        true,
		CapabilitySync:        true,
		CapabilityUploadProof: true,
	},
	enums.ActorRoleAdmin: {
		CapabilityView:    true,
		CapabilitySync:    true,
		CapabilityConfirm: true,
		CapabilityReject:  true,
	},
}

// Actor is the authenticated caller. Store actors are scoped to StoreID.
type Actor struct {
	ID      uuid.UUID
	Role    enums.ActorRole
	StoreID uuid.UUID
}

// StoreActor builds an actor acting on behalf of one store.
func StoreActor(userID, storeID uuid.UUID) Actor {
	return Actor{ID: userID, Role: enums.ActorRoleStore, StoreID: storeID}
}

// AdminActor builds a platform admin actor.
func AdminActor(adminID uuid.UUID) Actor {
	return Actor{ID: adminID, Role: enums.ActorRoleAdmin}
}

// IsAdmin reports whether the actor is a platform admin.
func (a Actor) IsAdmin() bool {
	return a.Role == enums.ActorRoleAdmin
}

// Authorize returns FORBIDDEN unless the actor holds capability for storeID.
func (a Actor) Authorize(capability Capability, storeID uuid.UUID) error {
	if a.ID == uuid.Nil || !a.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !capabilities[a.Role][capability] {
		return pkgerrors.New(pkgerrors.CodeForbidden, "action not permitted for role").
			WithDetails(map[string]any{"role": a.Role, "action": capability})
	}
	if a.Role == enums.ActorRoleStore && (a.StoreID == uuid.Nil || a.StoreID != storeID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "invoice belongs to another store")
	}
	return nil
}

func (a Actor) idPtr() *uuid.UUID {
	if a.ID == uuid.Nil {
		return nil
	}
	id := a.ID
	return &id
}

func (a Actor) rolePtr() *enums.ActorRole {
	if !a.Role.IsValid() {
		return nil
	}
	role := a.Role
	return &role
}
