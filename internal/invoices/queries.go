package invoices

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/pagination"
	"github.com/angelmondragon/marketplace-commissions/pkg/storage/gcs"
)

var proofContentTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

// GetInvoice resolves id as an invoice id first and then as an order id.
// Invoices still collecting orders are synced before they are returned.
func (s *service) GetInvoice(ctx context.Context, actor Actor, id uuid.UUID) (*InvoiceDetail, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "id is required")
	}

	var target *models.Invoice
	inv, err := s.repo.FindByID(ctx, id)
	switch {
	case err == nil:
		if err := actor.Authorize(CapabilityView, inv.StoreID); err != nil {
			return nil, err
		}
		target = inv
	case errors.Is(err, gorm.ErrRecordNotFound):
		target, err = s.resolveTarget(ctx, actor, CapabilityView, nil, &id)
		if err != nil {
			return nil, err
		}
	default:
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load invoice")
	}

	if target.Status == enums.InvoiceStatusAwaitingPayment {
		if _, err := s.SyncInvoice(ctx, target.StoreID); err != nil {
			return nil, err
		}
		if target, err = s.loadInvoice(ctx, s.repo, target.ID); err != nil {
			return nil, err
		}
	}
	return s.detail(ctx, target)
}

// resolveTarget loads the invoice named by invoiceID, or the invoice that
// billed orderID, and authorizes capability against its store.
func (s *service) resolveTarget(ctx context.Context, actor Actor, capability Capability, invoiceID, orderID *uuid.UUID) (*models.Invoice, error) {
	if invoiceID != nil {
		inv, err := s.loadInvoice(ctx, s.repo, *invoiceID)
		if err != nil {
			return nil, err
		}
		if err := actor.Authorize(capability, inv.StoreID); err != nil {
			return nil, err
		}
		return inv, nil
	}
	if orderID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice_id or order_id is required")
	}

	order, err := s.orders.FindByID(ctx, *orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice or order not found").
				WithDetails(map[string]any{"id": *orderID})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read order ledger")
	}
	if err := actor.Authorize(capability, order.StoreID); err != nil {
		return nil, err
	}

	link, err := s.repo.FindLinkByOrderID(ctx, order.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) && order.Status == enums.OrderStatusCompleted {
		if _, err := s.SyncInvoice(ctx, order.StoreID); err != nil {
			return nil, err
		}
		link, err = s.repo.FindLinkByOrderID(ctx, order.ID)
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order has not been invoiced").
				WithDetails(map[string]any{"order_id": order.ID, "order_status": order.Status})
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order link")
	}
	return s.loadInvoice(ctx, s.repo, link.InvoiceID)
}

// ListInvoices pages through invoices, newest first. Store actors only see
// their own store.
func (s *service) ListInvoices(ctx context.Context, actor Actor, filter ListFilter) (*ListResult, error) {
	q := listQuery{Status: filter.Status}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	switch {
	case actor.IsAdmin():
		if err := actor.Authorize(CapabilityView, uuid.Nil); err != nil {
			return nil, err
		}
		q.StoreID = filter.StoreID
	default:
		storeID := actor.StoreID
		if filter.StoreID != nil {
			storeID = *filter.StoreID
		}
		if err := actor.Authorize(CapabilityView, storeID); err != nil {
			return nil, err
		}
		q.StoreID = &storeID
	}

	params := pagination.Params{Page: filter.Page, Limit: filter.Limit}.Normalize()
	q.Offset = params.Offset()
	q.Limit = params.Limit

	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list invoices")
	}
	items := make([]InvoiceDTO, 0, len(rows))
	for i := range rows {
		items = append(items, ToDTO(&rows[i]))
	}
	return &ListResult{Items: items, Pagination: pagination.NewMeta(params, total)}, nil
}

// Activity returns the invoice's audit trail in order.
func (s *service) Activity(ctx context.Context, actor Actor, invoiceID uuid.UUID) ([]models.InvoiceActivity, error) {
	inv, err := s.loadInvoice(ctx, s.repo, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := actor.Authorize(CapabilityView, inv.StoreID); err != nil {
		return nil, err
	}
	return s.activity.EntriesFor(ctx, inv.ID)
}

// ProofUploadURL signs a PUT destination in the proof bucket for the store.
func (s *service) ProofUploadURL(ctx context.Context, actor Actor, invoiceID uuid.UUID, contentType string) (*UploadURL, error) {
	if s.storage.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "proof storage is not configured")
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := proofContentTypes[contentType]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unsupported proof content type").
			WithDetails(map[string]any{"content_type": contentType})
	}

	inv, err := s.loadInvoice(ctx, s.repo, invoiceID)
	if err != nil {
		return nil, err
	}
	if err := actor.Authorize(CapabilityUploadProof, inv.StoreID); err != nil {
		return nil, err
	}
	if inv.Status != enums.InvoiceStatusAwaitingPayment {
		return nil, invalidTransition(inv.Status, EventUploadProof)
	}

	object := path.Join(s.storage.Prefix, inv.StoreID.String(), inv.ID.String(), uuid.NewString()+ext)
	signed, err := s.storage.Client.SignedURL(s.storage.Bucket, object, contentType, s.storage.UploadURLExpiry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sign proof upload url")
	}
	return &UploadURL{
		UploadURL:   signed,
		ProofURL:    gcs.ObjectURL(s.storage.Bucket, object),
		ContentType: contentType,
		ExpiresAt:   s.clock().Add(s.storage.UploadURLExpiry),
	}, nil
}
