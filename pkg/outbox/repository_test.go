package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
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

func insertRow(t *testing.T, db *gorm.DB, createdAt time.Time, publishedAt *time.Time, attempts int) models.OutboxEvent {
	t.Helper()
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceCreated,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		CreatedAt:     createdAt,
		PublishedAt:   publishedAt,
		AttemptCount:  attempts,
	}
	require.NoError(t, db.Create(&row).Error)
	return row
}

func claimIDs(t *testing.T, db *gorm.DB, repo *Repository) []uuid.UUID {
	t.Helper()
	var ids []uuid.UUID
	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		rows, err := repo.Claim(tx, 10, 5)
		for _, row := range rows {
			ids = append(ids, row.ID)
		}
		return err
	}))
	return ids
}

func TestClaimSkipsPublishedAndExhausted(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	now := time.Now().UTC()

	first := insertRow(t, db, now.Add(-2*time.Minute), nil, 0)
	second := insertRow(t, db, now.Add(-time.Minute), nil, 4)
	insertRow(t, db, now, nil, 5)
	insertRow(t, db, now, &now, 0)

	assert.Equal(t, []uuid.UUID{first.ID, second.ID}, claimIDs(t, db, repo), "oldest first")

	require.NoError(t, repo.MarkPublished(db, first.ID, now))
	require.NoError(t, repo.MarkFailed(db, second.ID, errors.New("unavailable")))
	assert.Empty(t, claimIDs(t, db, repo), "fifth failure reaches the ceiling")

	var failed models.OutboxEvent
	require.NoError(t, db.First(&failed, "id = ?", second.ID).Error)
	assert.Equal(t, 5, failed.AttemptCount)
	require.NotNil(t, failed.LastError)
	assert.Equal(t, "unavailable", *failed.LastError)
}

func TestMarkTerminalClipsError(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)
	row := insertRow(t, db, time.Now().UTC(), nil, 1)

	require.NoError(t, repo.MarkTerminal(db, row.ID, errors.New(strings.Repeat("x", 2*maxErrorLen)), 5))

	var got models.OutboxEvent
	require.NoError(t, db.First(&got, "id = ?", row.ID).Error)
	assert.Equal(t, 5, got.AttemptCount)
	assert.Len(t, *got.LastError, maxErrorLen)
	assert.ErrorIs(t, repo.MarkTerminal(nil, row.ID, nil, 5), errNoTx)
}

func TestPruneKeepsPendingRows(t *testing.T) {
	db := dbtest.Open(t)
	repo := NewRepository(db)

	cutoff := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	old := cutoff.Add(-48 * time.Hour)
	published := old.Add(time.Minute)

	insertRow(t, db, old, &published, 1)
	insertRow(t, db, old, nil, 10)
	pending := insertRow(t, db, old, nil, 2)
	recent := insertRow(t, db, cutoff.Add(time.Hour), &published, 1)

	deleted, err := repo.Prune(context.Background(), nil, cutoff, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, db.Find(&remaining).Error)
	ids := []uuid.UUID{}
	for _, row := range remaining {
		ids = append(ids, row.ID)
	}
	assert.ElementsMatch(t, []uuid.UUID{pending.ID, recent.ID}, ids)
}

func TestDeadLetters(t *testing.T) {
	db := dbtest.Open(t)
	dlq := NewDeadLetters(db)
	ctx := context.Background()
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	older := insertRow(t, db, day, nil, 5)
	newer := insertRow(t, db, day, nil, 0)
	require.NoError(t, dlq.Record(db, older, enums.OutboxDLQReasonMaxAttempts, errors.New("deadline exceeded"), day))
	require.NoError(t, dlq.Record(db, newer, enums.OutboxDLQReasonNonRetryable, nil, day.Add(time.Hour)))
	assert.ErrorIs(t, dlq.Record(nil, newer, enums.OutboxDLQReasonNonRetryable, nil, day), errNoTx)

	entry, err := dlq.Find(ctx, older.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, entry.ErrorReason)
	assert.Equal(t, 5, entry.AttemptCount)
	assert.Equal(t, "deadline exceeded", *entry.ErrorMessage)

	missing, err := dlq.Find(ctx, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, missing)

	recent, err := dlq.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, newer.ID, recent[0].EventID)

	pruned, err := dlq.Prune(ctx, nil, day.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)
}
