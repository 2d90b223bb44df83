// Package invoices exposes the invoice lifecycle over HTTP.
package invoices

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/api/middleware"
	"github.com/angelmondragon/marketplace-commissions/api/responses"
	"github.com/angelmondragon/marketplace-commissions/api/validators"
	internalinvoices "github.com/angelmondragon/marketplace-commissions/internal/invoices"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/pagination"
)

type generateRequest struct {
	StoreID *uuid.UUID `json:"store_id"`
}

type uploadProofRequest struct {
	InvoiceID       *uuid.UUID `json:"invoice_id"`
	OrderID         *uuid.UUID `json:"order_id"`
	PaymentProofURL string     `json:"payment_proof_url" validate:"required,url,max=2048"`
}

type proofUploadURLRequest struct {
	InvoiceID   uuid.UUID `json:"invoice_id" validate:"required"`
	ContentType string    `json:"content_type" validate:"required,max=100"`
}

type verifyRequest struct {
	InvoiceID       uuid.UUID  `json:"invoice_id" validate:"required"`
	Action          string     `json:"action" validate:"required,oneof=confirm reject"`
	AdminID         *uuid.UUID `json:"admin_id"`
	Reason          string     `json:"reason" validate:"max=1000"`
	ExpectedVersion *int       `json:"expected_version" validate:"omitempty,min=1"`
}

// Get returns an invoice with its current estimate. The path id may be an
// invoice id or the id of an order billed on it.
func Get(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetInvoice(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// Activity returns the invoice audit trail, oldest first.
func Activity(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParsePathUUID(chi.URLParam(r, "id"), "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		entries, err := svc.Activity(r.Context(), actor, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.ToActivityDTOs(entries))
	}
}

// List pages through invoices visible to the caller.
func List(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		filter := internalinvoices.ListFilter{}
		if filter.StoreID, err = validators.ParseQueryUUID(r, "store_id"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			status := enums.InvoiceStatus(raw)
			filter.Status = &status
		}
		if filter.Page, err = validators.ParseQueryInt(r, "page", 1, 1, 1_000_000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if filter.Limit, err = validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListInvoices(r.Context(), actor, filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// Generate syncs the store's open invoice on demand. Store callers may omit
// store_id; admins must name the store.
func Generate(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req generateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		storeID := actor.StoreID
		if req.StoreID != nil {
			storeID = *req.StoreID
		}
		if storeID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "store_id is required"))
			return
		}

		detail, err := svc.GenerateInvoice(r.Context(), actor, storeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// UploadProof attaches a payment proof to an invoice, addressed by invoice
// id or by one of its orders.
func UploadProof(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req uploadProofRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inv, err := svc.UploadProof(r.Context(), actor, internalinvoices.UploadProofInput{
			InvoiceID: req.InvoiceID,
			OrderID:   req.OrderID,
			ProofURL:  req.PaymentProofURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.ToDTO(inv))
	}
}

// ProofUploadURL returns a signed PUT URL for the proof file.
func ProofUploadURL(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req proofUploadURLRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out, err := svc.ProofUploadURL(r.Context(), actor, req.InvoiceID, req.ContentType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, out)
	}
}

// AdminVerify applies an admin confirm or reject decision.
func AdminVerify(svc internalinvoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req verifyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		inv, err := svc.Verify(r.Context(), actor, internalinvoices.VerifyInput{
			InvoiceID:       req.InvoiceID,
			Action:          internalinvoices.VerifyAction(req.Action),
			AdminID:         req.AdminID,
			Reason:          validators.SanitizeString(req.Reason, 1000),
			ExpectedVersion: req.ExpectedVersion,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalinvoices.ToDTO(inv))
	}
}

func actorFromRequest(r *http.Request) (internalinvoices.Actor, error) {
	ctx := r.Context()
	userID, err := uuid.Parse(middleware.UserIDFromContext(ctx))
	if err != nil {
		return internalinvoices.Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	role := enums.ActorRole(middleware.RoleFromContext(ctx))
	switch role {
	case enums.ActorRoleAdmin:
		return internalinvoices.AdminActor(userID), nil
	case enums.ActorRoleStore:
		storeID, err := uuid.Parse(middleware.StoreIDFromContext(ctx))
		if err != nil {
			return internalinvoices.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "store context missing")
		}
		return internalinvoices.StoreActor(userID, storeID), nil
	default:
		return internalinvoices.Actor{}, pkgerrors.New(pkgerrors.CodeForbidden, "unsupported role")
	}
}
