package invoices

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/internal/activity"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/payloads"
	"github.com/angelmondragon/marketplace-commissions/pkg/storage/gcs"
)

const maxRejectionReasonLength = 1000

// UploadProof attaches a payment proof and moves the invoice to
// awaiting_verification. The store's invoice is synced first so the proof
// covers every order completed so far.
func (s *service) UploadProof(ctx context.Context, actor Actor, input UploadProofInput) (*models.Invoice, error) {
	proofURL := strings.TrimSpace(input.ProofURL)
	if proofURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment_proof_url is required")
	}
	if (input.InvoiceID == nil) == (input.OrderID == nil) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "exactly one of invoice_id or order_id is required")
	}

	target, err := s.resolveTarget(ctx, actor, CapabilityUploadProof, input.InvoiceID, input.OrderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.SyncInvoice(ctx, target.StoreID); err != nil {
		return nil, err
	}
	if err := s.checkProofObject(ctx, proofURL); err != nil {
		return nil, err
	}

	var (
		result *models.Invoice
		from   enums.InvoiceStatus
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv, err := s.lockInvoice(ctx, tx, target.ID)
		if err != nil {
			return err
		}
		from = inv.Status
		to, _, err := Transition(inv.Status, EventUploadProof)
		if err != nil {
			return err
		}

		now := s.clock()
		if err := repo.SupersedeProofs(ctx, inv.ID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "supersede previous proof")
		}
		proof := &models.PaymentProof{
			ID:         uuid.New(),
			InvoiceID:  inv.ID,
			StoreID:    inv.StoreID,
			FileURL:    proofURL,
			UploadedBy: actor.ID,
			UploadedAt: now,
			CreatedAt:  now,
		}
		if err := repo.CreateProof(ctx, proof); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store payment proof")
		}

		ok, err := repo.UpdateVersioned(ctx, inv.ID, inv.Version, map[string]any{
			"status":                         to,
			"payment_proof_url":              proofURL,
			"payment_proof_uploaded_at":      now,
			"payment_proof_rejected":         false,
			"payment_proof_rejection_reason": nil,
			"updated_at":                     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update invoice")
		}
		if !ok {
			return concurrentChange(inv)
		}

		if _, err := s.activity.Append(ctx, tx, activity.AppendInput{
			InvoiceID:   inv.ID,
			Action:      enums.InvoiceActivityProofUploaded,
			Description: "Payment proof uploaded",
			ActorID:     actor.idPtr(),
			ActorRole:   actor.rolePtr(),
			Metadata:    map[string]any{"proof_id": proof.ID, "proof_url": proofURL},
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceProofUploaded,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   inv.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.InvoiceProofUploadedEvent{
				InvoiceID:         inv.ID,
				StoreID:           inv.StoreID,
				ProofID:           proof.ID,
				ProofURL:          proofURL,
				TotalRevenueCents: inv.TotalRevenueCents,
				FeeAmountCents:    inv.FeeAmountCents,
				UploadedAt:        now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue proof_uploaded event")
		}

		result, err = s.loadInvoice(ctx, repo, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(from), string(result.Status))
	s.logg.Info(s.logCtx(ctx, result), "payment proof uploaded")
	return result, nil
}

// Confirm settles the invoice and rolls the store over to a new period in
// the same transaction. Confirming a settled invoice succeeds without effect.
func (s *service) Confirm(ctx context.Context, actor Actor, invoiceID uuid.UUID) (*models.Invoice, error) {
	inv, err := s.loadInvoice(ctx, s.repo, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := actor.Authorize(CapabilityConfirm, inv.StoreID); err != nil {
		return nil, err
	}

	var (
		result  *models.Invoice
		settled bool
	)
	storeID := inv.StoreID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		// Period before invoice: SyncInvoice takes the two rows in that order.
		if _, err := s.periods.LockOpen(ctx, tx, storeID); err != nil {
			return err
		}
		inv, err := s.lockInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		to, noop, err := Transition(inv.Status, EventConfirm)
		if err != nil {
			return err
		}
		if noop {
			result = inv
			return nil
		}

		now := s.clock()
		closed, next, err := s.periods.CloseAndReopen(ctx, tx, inv.StoreID, inv.PeriodID, now)
		if err != nil {
			return err
		}

		ok, err := repo.UpdateVersioned(ctx, inv.ID, inv.Version, map[string]any{
			"status":      to,
			"verified_at": now,
			"verified_by": actor.ID,
			"period_end":  now,
			"updated_at":  now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "settle invoice")
		}
		if !ok {
			return concurrentChange(inv)
		}

		if _, err := s.activity.Append(ctx, tx, activity.AppendInput{
			InvoiceID:   inv.ID,
			Action:      enums.InvoiceActivitySettled,
			Description: "Payment confirmed and invoice settled",
			ActorID:     actor.idPtr(),
			ActorRole:   actor.rolePtr(),
			Metadata: map[string]any{
				"closed_period_id": closed.ID,
				"next_period_id":   next.ID,
				"fee_amount_cents": inv.FeeAmountCents,
			},
			OccurredAt: now,
		}); err != nil {
			return err
		}

		events := []outbox.DomainEvent{
			{
				EventType:     enums.EventInvoiceSettled,
				AggregateType: enums.AggregateInvoice,
				AggregateID:   inv.ID,
				Actor:         actorRef(actor),
				OccurredAt:    now,
				Data: payloads.InvoiceSettledEvent{
					InvoiceID:         inv.ID,
					StoreID:           inv.StoreID,
					PeriodID:          inv.PeriodID,
					TotalRevenueCents: inv.TotalRevenueCents,
					FeeAmountCents:    inv.FeeAmountCents,
					VerifiedBy:        actor.ID,
					VerifiedAt:        now,
				},
			},
			{
				EventType:     enums.EventStorePeriodReopened,
				AggregateType: enums.AggregateStorePeriod,
				AggregateID:   next.ID,
				Actor:         actorRef(actor),
				OccurredAt:    now,
				Data: payloads.StorePeriodReopenedEvent{
					StoreID:        inv.StoreID,
					ClosedPeriodID: closed.ID,
					NewPeriodID:    next.ID,
					StartDate:      next.StartDate,
				},
			},
		}
		for _, event := range events {
			if err := s.outbox.Emit(ctx, tx, event); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue settlement event")
			}
		}

		result, err = s.loadInvoice(ctx, repo, inv.ID)
		settled = true
		return err
	})
	if err != nil {
		// A concurrent confirm closed the period first; that is success
		// when it also settled this invoice.
		if pkgerrors.IsCode(err, pkgerrors.CodePeriodClosed) {
			current, loadErr := s.loadInvoice(ctx, s.repo, invoiceID)
			if loadErr == nil && current.Status == enums.InvoiceStatusSettled {
				return current, nil
			}
		}
		return nil, err
	}

	if settled {
		s.metrics.IncTransition(string(enums.InvoiceStatusAwaitingVerification), string(enums.InvoiceStatusSettled))
		if result.PaymentProofUploadedAt != nil && result.VerifiedAt != nil {
			s.metrics.ObserveSettlement(result.VerifiedAt.Sub(*result.PaymentProofUploadedAt))
		}
		s.logg.Info(s.logCtx(ctx, result), "invoice settled")
	}
	return result, nil
}

// Reject returns the invoice to awaiting_payment with the reason recorded.
// The proof row is kept and flagged.
func (s *service) Reject(ctx context.Context, actor Actor, input RejectInput) (*models.Invoice, error) {
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is required")
	}
	if len(reason) > maxRejectionReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rejection reason is too long")
	}
	inv, err := s.loadInvoice(ctx, s.repo, input.InvoiceID)
	if err != nil {
		return nil, err
	}
	if err := actor.Authorize(CapabilityReject, inv.StoreID); err != nil {
		return nil, err
	}

	var result *models.Invoice
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		inv, err := s.lockInvoice(ctx, tx, input.InvoiceID)
		if err != nil {
			return err
		}
		if input.ExpectedVersion != nil && *input.ExpectedVersion != inv.Version {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice changed since it was reviewed").
				WithDetails(map[string]any{"expected_version": *input.ExpectedVersion, "version": inv.Version, "status": inv.Status})
		}
		to, _, err := Transition(inv.Status, EventReject)
		if err != nil {
			return err
		}

		now := s.clock()
		var proofID uuid.UUID
		proof, err := repo.FindActiveProof(ctx, inv.ID)
		switch {
		case err == nil:
			proofID = proof.ID
			if err := repo.RejectProof(ctx, proof.ID, reason, actor.ID, now); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "flag payment proof")
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load payment proof")
		}

		ok, err := repo.UpdateVersioned(ctx, inv.ID, inv.Version, map[string]any{
			"status":                         to,
			"payment_proof_rejected":         true,
			"payment_proof_rejection_reason": reason,
			"updated_at":                     now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reject invoice proof")
		}
		if !ok {
			return concurrentChange(inv)
		}

		if _, err := s.activity.Append(ctx, tx, activity.AppendInput{
			InvoiceID:   inv.ID,
			Action:      enums.InvoiceActivityProofRejected,
			Description: "Payment proof rejected: " + reason,
			ActorID:     actor.idPtr(),
			ActorRole:   actor.rolePtr(),
			Metadata:    map[string]any{"proof_id": proofID, "reason": reason},
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceProofRejected,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   inv.ID,
			Actor:         actorRef(actor),
			OccurredAt:    now,
			Data: payloads.InvoiceProofRejectedEvent{
				InvoiceID:  inv.ID,
				StoreID:    inv.StoreID,
				ProofID:    proofID,
				Reason:     reason,
				RejectedBy: actor.ID,
				RejectedAt: now,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue proof_rejected event")
		}

		result, err = s.loadInvoice(ctx, repo, inv.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(enums.InvoiceStatusAwaitingVerification), string(result.Status))
	s.logg.Info(s.logg.WithField(s.logCtx(ctx, result), "reason", reason), "payment proof rejected")
	return result, nil
}

// Verify dispatches an admin decision.
func (s *service) Verify(ctx context.Context, actor Actor, input VerifyInput) (*models.Invoice, error) {
	if input.InvoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id is required")
	}
	if input.AdminID != nil && *input.AdminID != actor.ID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin_id does not match the authenticated admin")
	}
	switch input.Action {
	case VerifyActionConfirm:
		return s.Confirm(ctx, actor, input.InvoiceID)
	case VerifyActionReject:
		return s.Reject(ctx, actor, RejectInput{
			InvoiceID:       input.InvoiceID,
			Reason:          input.Reason,
			ExpectedVersion: input.ExpectedVersion,
		})
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "action must be confirm or reject").
			WithDetails(map[string]any{"action": input.Action})
	}
}

// checkProofObject verifies the proof points at an existing object in the
// proof bucket. One attempt, bounded by the storage timeout.
func (s *service) checkProofObject(ctx context.Context, proofURL string) error {
	if s.storage.Client == nil || !s.storage.VerifyObjects {
		return nil
	}
	bucket, object, ok := gcs.ParseObjectURL(proofURL)
	if !ok || bucket != s.storage.Bucket {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment_proof_url must reference the proof bucket").
			WithDetails(map[string]any{"bucket": s.storage.Bucket})
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.storage.RequestTimeout)
	defer cancel()
	exists, err := s.storage.Client.ObjectExists(checkCtx, bucket, object)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "proof storage unavailable")
	}
	if !exists {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment proof file not found").
			WithDetails(map[string]any{"object": object})
	}
	return nil
}

func concurrentChange(inv *models.Invoice) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice was modified concurrently").
		WithDetails(map[string]any{"invoice_id": inv.ID, "version": inv.Version})
}

func actorRef(actor Actor) *outbox.ActorRef {
	ref := &outbox.ActorRef{UserID: actor.ID, Role: actor.Role.String()}
	if actor.StoreID != uuid.Nil {
		storeID := actor.StoreID
		ref.StoreID = &storeID
	}
	return ref
}
