package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
)

type fakeRepository struct {
	createFn func(ctx context.Context, entry *models.InvoiceActivity) error
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, entry *models.InvoiceActivity) error {
	if f.createFn != nil {
		return f.createFn(ctx, entry)
	}
	return nil
}

func (f *fakeRepository) ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceActivity, error) {
	return nil, nil
}

func TestService_Append(t *testing.T) {
	repo := &fakeRepository{}
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	var created *models.InvoiceActivity
	repo.createFn = func(ctx context.Context, entry *models.InvoiceActivity) error {
		created = entry
		return nil
	}

	actorID := uuid.New()
	role := enums.ActorRoleAdmin
	occurred := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	input := AppendInput{
		InvoiceID:   uuid.New(),
		Action:      enums.InvoiceActivityProofRejected,
		Description: "  payment proof rejected: blurry image ",
		ActorID:     &actorID,
		ActorRole:   &role,
		Metadata:    map[string]any{"reason": "blurry image"},
		OccurredAt:  occurred,
	}

	got, err := svc.Append(context.Background(), &gorm.DB{}, input)
	if err != nil {
		t.Fatalf("Append error: %v", err)
	}
	if created == nil || got != created {
		t.Fatal("expected activity entry to be created and returned")
	}
	if created.ID == uuid.Nil {
		t.Fatal("expected entry id to be assigned")
	}
	if created.Description != "payment proof rejected: blurry image" {
		t.Fatalf("description not trimmed: %q", created.Description)
	}
	if created.CreatedAt.Location() != time.UTC || !created.CreatedAt.Equal(occurred) {
		t.Fatalf("expected UTC timestamp equal to occurred_at, got %v", created.CreatedAt)
	}
	if string(created.Metadata) != `{"reason":"blurry image"}` {
		t.Fatalf("metadata mismatch: %s", created.Metadata)
	}
}

func TestService_AppendValidation(t *testing.T) {
	svc, err := NewService(&fakeRepository{})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	tests := []struct {
		name  string
		tx    *gorm.DB
		input AppendInput
	}{
		{
			name:  "missing transaction",
			input: AppendInput{InvoiceID: uuid.New(), Action: enums.InvoiceActivityCreated, Description: "created"},
		},
		{
			name:  "missing invoice",
			tx:    &gorm.DB{},
			input: AppendInput{Action: enums.InvoiceActivityCreated, Description: "created"},
		},
		{
			name:  "invalid action",
			tx:    &gorm.DB{},
			input: AppendInput{InvoiceID: uuid.New(), Action: "archived", Description: "archived"},
		},
		{
			name:  "blank description",
			tx:    &gorm.DB{},
			input: AppendInput{InvoiceID: uuid.New(), Action: enums.InvoiceActivitySettled, Description: "   "},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Append(context.Background(), tc.tx, tc.input); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestService_AppendRepoError(t *testing.T) {
	expectedErr := errors.New("disk full")
	svc, err := NewService(&fakeRepository{
		createFn: func(ctx context.Context, entry *models.InvoiceActivity) error { return expectedErr },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}

	_, err = svc.Append(context.Background(), &gorm.DB{}, AppendInput{
		InvoiceID:   uuid.New(),
		Action:      enums.InvoiceActivitySettled,
		Description: "invoice settled",
	})
	if !errors.Is(err, expectedErr) {
		t.Fatalf("expected repo error to bubble up, got %v", err)
	}
}
