package activity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

func seedInvoice(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	periodID, invoiceID, storeID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now().UTC()
	require.NoError(t, db.Exec("INSERT INTO store_periods (id, store_id, start_date) VALUES (?, ?, ?)", periodID, storeID, now).Error)
	require.NoError(t, db.Exec(
		"INSERT INTO invoices (id, store_id, period_id, period_start, commission_rate, currency, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		invoiceID, storeID, periodID, now, "0.05", "IDR", "awaiting_payment",
	).Error)
	return invoiceID
}

func TestEntriesForOrdersByCreatedAt(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	invoiceID := seedInvoice(t, db)

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	steps := []struct {
		action enums.InvoiceActivityAction
		at     time.Time
	}{
		{enums.InvoiceActivityProofUploaded, base.Add(time.Minute)},
		{enums.InvoiceActivityCreated, base},
		{enums.InvoiceActivityProofRejected, base.Add(2 * time.Minute)},
	}
	for _, step := range steps {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Append(ctx, tx, AppendInput{
				InvoiceID:   invoiceID,
				Action:      step.action,
				Description: string(step.action),
				OccurredAt:  step.at,
			})
			return err
		}))
	}

	entries, err := svc.EntriesFor(ctx, invoiceID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, enums.InvoiceActivityCreated, entries[0].Action)
	assert.Equal(t, enums.InvoiceActivityProofUploaded, entries[1].Action)
	assert.Equal(t, enums.InvoiceActivityProofRejected, entries[2].Action)

	again, err := svc.EntriesFor(ctx, invoiceID)
	require.NoError(t, err)
	assert.Equal(t, entries, again)
}

func TestActivityRowsAreAppendOnly(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	invoiceID := seedInvoice(t, db)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.Append(context.Background(), tx, AppendInput{
			InvoiceID:   invoiceID,
			Action:      enums.InvoiceActivityCreated,
			Description: "invoice created",
		})
		return err
	}))

	assert.Error(t, db.Exec("UPDATE invoice_activities SET description = 'edited'").Error)
	assert.Error(t, db.Exec("DELETE FROM invoice_activities").Error)
}

func TestEntriesForKeepsAppendOrderOnTiedTimestamps(t *testing.T) {
	db := dbtest.Open(t)
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	ctx := context.Background()
	invoiceID := seedInvoice(t, db)

	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	want := []enums.InvoiceActivityAction{
		enums.InvoiceActivityCreated,
		enums.InvoiceActivityProofUploaded,
		enums.InvoiceActivityProofRejected,
		enums.InvoiceActivityProofUploaded,
		enums.InvoiceActivitySettled,
	}
	for _, action := range want {
		require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
			_, err := svc.Append(ctx, tx, AppendInput{
				InvoiceID:   invoiceID,
				Action:      action,
				Description: string(action),
				OccurredAt:  at,
			})
			return err
		}))
	}

	for range 10 {
		entries, err := svc.EntriesFor(ctx, invoiceID)
		require.NoError(t, err)
		got := make([]enums.InvoiceActivityAction, 0, len(entries))
		for i, entry := range entries {
			assert.Equal(t, int64(i+1), entry.Seq)
			got = append(got, entry.Action)
		}
		require.Equal(t, want, got)
	}
}

func TestActivitySeqIsUniquePerInvoice(t *testing.T) {
	db := dbtest.Open(t)
	invoiceID := seedInvoice(t, db)
	now := time.Now().UTC()

	insert := "INSERT INTO invoice_activities (id, invoice_id, seq, action, description, created_at) VALUES (?, ?, ?, ?, ?, ?)"
	require.NoError(t, db.Exec(insert, uuid.NewString(), invoiceID, 1, "created", "created", now).Error)
	assert.Error(t, db.Exec(insert, uuid.NewString(), invoiceID, 1, "settled", "settled", now).Error)
}
