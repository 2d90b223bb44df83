package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/dbtest"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

func seedOrder(t *testing.T, db *gorm.DB, storeID uuid.UUID, status enums.OrderStatus, total int64, completedAt *time.Time) models.Order {
	t.Helper()
	order := models.Order{
		ID:              uuid.New(),
		StoreID:         storeID,
		Status:          status,
		FinalTotalCents: total,
		CompletedAt:     completedAt,
	}
	require.NoError(t, db.Create(&order).Error)
	return order
}

func at(t time.Time) *time.Time { return &t }

func TestUnlinkedCompletedOrders(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	ctx := context.Background()

	storeID := uuid.New()
	otherStore := uuid.New()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	now := base.Add(24 * time.Hour)

	second := seedOrder(t, db, storeID, enums.OrderStatusCompleted, 200, at(base.Add(2*time.Hour)))
	first := seedOrder(t, db, storeID, enums.OrderStatusCompleted, 100, at(base.Add(time.Hour)))
	seedOrder(t, db, storeID, enums.OrderStatusPreparing, 999, nil)
	seedOrder(t, db, storeID, enums.OrderStatusCompleted, 500, at(now.Add(time.Minute)))
	seedOrder(t, db, otherStore, enums.OrderStatusCompleted, 700, at(base))
	linked := seedOrder(t, db, storeID, enums.OrderStatusCompleted, 300, at(base))

	periodID := uuid.New()
	require.NoError(t, db.Exec(
		"INSERT INTO store_periods (id, store_id, start_date) VALUES (?, ?, ?)",
		periodID, storeID, base,
	).Error)
	invoiceID := uuid.New()
	require.NoError(t, db.Exec(
		"INSERT INTO invoices (id, store_id, period_id, period_start, commission_rate, currency, status) VALUES (?, ?, ?, ?, ?, ?, ?)",
		invoiceID, storeID, periodID, base, "0.05", "IDR", "awaiting_payment",
	).Error)
	require.NoError(t, db.Create(&models.InvoiceOrderLink{
		ID: uuid.New(), InvoiceID: invoiceID, StoreID: storeID, OrderID: linked.ID,
		OrderRevenueCents: 300, OrderFeeCents: 15,
	}).Error)

	rows, err := repo.ListUnlinkedCompleted(ctx, storeID, now)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	earliest, err := repo.EarliestUnlinkedCompletedAt(ctx, storeID, now)
	require.NoError(t, err)
	require.NotNil(t, earliest)
	assert.True(t, earliest.Equal(base.Add(time.Hour)))

	summary, err := repo.SummarizeUnlinkedCompleted(ctx, storeID, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.OrderCount)
	assert.Equal(t, int64(300), summary.RevenueCents)

	stores, err := repo.ListStoresWithUnlinkedOrders(ctx, now)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{storeID, otherStore}, stores)
}

func TestEarliestUnlinkedCompletedAtEmpty(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	earliest, err := repo.EarliestUnlinkedCompletedAt(context.Background(), uuid.New(), time.Now().UTC())
	require.NoError(t, err)
	assert.Nil(t, earliest)
}

func TestFindByID(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	order := seedOrder(t, db, uuid.New(), enums.OrderStatusCompleted, 100_000, at(time.Now().UTC()))

	got, err := repo.FindByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StoreID, got.StoreID)
	assert.Equal(t, int64(100_000), got.FinalTotalCents)

	_, err = repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
