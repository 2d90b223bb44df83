package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/internal/bootstrap"
	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
)

var cliNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type cliHarness struct {
	t   *testing.T
	db  *gorm.DB
	rt  *runtime
	out *bytes.Buffer
}

func newCLIHarness(t *testing.T) *cliHarness {
	t.Helper()
	client := dbtest.Client(t)
	cfg := &config.Config{
		Commission: config.CommissionConfig{Rate: "0.05", Currency: "IDR", MaxSyncAttempts: 3},
	}
	inv, err := bootstrap.NewInvoices(bootstrap.InvoiceParams{
		Config: cfg,
		Logger: logger.Nop(),
		DB:     client,
		Now:    func() time.Time { return cliNow },
	})
	require.NoError(t, err)
	return &cliHarness{
		t:   t,
		db:  client.DB(),
		rt:  &runtime{Invoices: inv, DeadLetters: outbox.NewDeadLetters(client.DB()), Logger: logger.Nop()},
		out: &bytes.Buffer{},
	}
}

func (h *cliHarness) exec(args ...string) error {
	h.out.Reset()
	root := newRootCmd(h.out, func(context.Context) (*runtime, error) { return h.rt, nil })
	root.SetArgs(args)
	return root.Execute()
}

func (h *cliHarness) seedOrder(storeID uuid.UUID, total int64) models.Order {
	h.t.Helper()
	completedAt := cliNow.Add(-time.Hour)
	order := models.Order{
		ID:              uuid.New(),
		StoreID:         storeID,
		Status:          enums.OrderStatusCompleted,
		FinalTotalCents: total,
		CompletedAt:     &completedAt,
		CreatedAt:       completedAt.Add(-time.Hour),
		UpdatedAt:       completedAt,
	}
	require.NoError(h.t, h.db.Create(&order).Error)
	return order
}

func TestSyncPrintsInvoice(t *testing.T) {
	h := newCLIHarness(t)
	storeID := uuid.New()
	h.seedOrder(storeID, 120_000)
	h.seedOrder(storeID, 80_000)

	require.NoError(t, h.exec("sync", "--store-id", storeID.String()))

	var dto invoices.InvoiceDTO
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &dto))
	assert.Equal(t, storeID, dto.StoreID)
	assert.Equal(t, int64(200_000), dto.TotalRevenueCents)
	assert.Equal(t, int64(10_000), dto.FeeAmountCents)
	assert.Equal(t, enums.InvoiceStatusAwaitingPayment, dto.Status)
}

func TestSyncRequiresStoreID(t *testing.T) {
	h := newCLIHarness(t)
	assert.Error(t, h.exec("sync"))
	assert.Error(t, h.exec("sync", "--store-id", "nope"))
}

func TestConfirmSettlesAndRollsPeriod(t *testing.T) {
	h := newCLIHarness(t)
	storeID := uuid.New()
	h.seedOrder(storeID, 300_000)

	ctx := context.Background()
	inv, err := h.rt.Invoices.Service.SyncInvoice(ctx, storeID)
	require.NoError(t, err)
	_, err = h.rt.Invoices.Service.UploadProof(ctx, invoices.StoreActor(uuid.New(), storeID), invoices.UploadProofInput{
		InvoiceID: &inv.ID,
		ProofURL:  "https://storage.googleapis.com/proofs/transfer.png",
	})
	require.NoError(t, err)

	require.NoError(t, h.exec("confirm", inv.ID.String(), "--admin-id", uuid.NewString()))
	var dto invoices.InvoiceDTO
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &dto))
	assert.Equal(t, enums.InvoiceStatusSettled, dto.Status)

	require.NoError(t, h.exec("periods", "--store-id", storeID.String()))
	var periods []periodView
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &periods))
	require.Len(t, periods, 2)
	open := 0
	for _, p := range periods {
		if p.Open {
			open++
		}
	}
	assert.Equal(t, 1, open)
}

func TestRejectWithStaleVersionFails(t *testing.T) {
	h := newCLIHarness(t)
	storeID := uuid.New()
	h.seedOrder(storeID, 50_000)

	ctx := context.Background()
	inv, err := h.rt.Invoices.Service.SyncInvoice(ctx, storeID)
	require.NoError(t, err)
	_, err = h.rt.Invoices.Service.UploadProof(ctx, invoices.StoreActor(uuid.New(), storeID), invoices.UploadProofInput{
		InvoiceID: &inv.ID,
		ProofURL:  "https://storage.googleapis.com/proofs/transfer.png",
	})
	require.NoError(t, err)

	err = h.exec("reject", inv.ID.String(), "--admin-id", uuid.NewString(), "--reason", "blurry", "--expected-version", "1")
	require.Error(t, err)

	require.NoError(t, h.exec("reject", inv.ID.String(), "--admin-id", uuid.NewString(), "--reason", "blurry"))
	var dto invoices.InvoiceDTO
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &dto))
	assert.Equal(t, enums.InvoiceStatusAwaitingPayment, dto.Status)
	assert.True(t, dto.PaymentProofRejected)
}

func TestSweepSyncsPendingStores(t *testing.T) {
	h := newCLIHarness(t)
	h.seedOrder(uuid.New(), 10_000)
	h.seedOrder(uuid.New(), 20_000)

	require.NoError(t, h.exec("sweep"))
	var result invoices.SweepResult
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &result))
	assert.Equal(t, 2, result.StoresScanned)
	assert.Equal(t, 2, result.StoresSynced)
	assert.Empty(t, result.Failed)
}

func TestShowAcceptsOrderID(t *testing.T) {
	h := newCLIHarness(t)
	storeID := uuid.New()
	order := h.seedOrder(storeID, 40_000)

	require.NoError(t, h.exec("show", order.ID.String()))
	var detail invoices.InvoiceDetail
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &detail))
	assert.Equal(t, storeID, detail.Invoice.StoreID)
	assert.Equal(t, int64(40_000), detail.Invoice.TotalRevenueCents)
	require.NotNil(t, detail.Estimate)
	assert.Equal(t, int64(0), detail.Estimate.PendingOrderCount)
}

func TestDeadLettersListsNewestFirst(t *testing.T) {
	h := newCLIHarness(t)
	dlq := outbox.NewDeadLetters(h.db)
	for i, reason := range []enums.OutboxDLQErrorReason{enums.OutboxDLQReasonMaxAttempts, enums.OutboxDLQReasonNonRetryable} {
		row := models.OutboxEvent{
			ID:            uuid.New(),
			EventType:     enums.EventInvoiceSettled,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   uuid.New(),
			Payload:       json.RawMessage(`{}`),
			AttemptCount:  10,
		}
		require.NoError(t, dlq.Record(h.db, row, reason, errors.New("topic missing"), cliNow.Add(time.Duration(i)*time.Minute)))
	}

	require.NoError(t, h.exec("dead-letters", "--limit", "5"))
	var out []deadLetterView
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "non_retryable", out[0].Reason)
	assert.Equal(t, "topic missing", out[1].Error)
	assert.Equal(t, 10, out[1].Attempts)
}
