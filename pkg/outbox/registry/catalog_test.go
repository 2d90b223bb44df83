package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/payloads"
)

func testCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := NewCatalog(config.PubSubConfig{InvoiceTopic: "invoice-events"})
	require.NoError(t, err)
	return c
}

func envelopeFor(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func TestDecodeSettledInvoice(t *testing.T) {
	c := testCatalog(t)
	invoiceID, storeID := uuid.New(), uuid.New()

	decoded, err := c.Decode(models.OutboxEvent{
		EventType:     enums.EventInvoiceSettled,
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoiceID,
		Payload: envelopeFor(t, payloads.InvoiceSettledEvent{
			InvoiceID:         invoiceID,
			StoreID:           storeID,
			PeriodID:          uuid.New(),
			TotalRevenueCents: 300_000,
			FeeAmountCents:    15_000,
			VerifiedBy:        uuid.New(),
			VerifiedAt:        time.Now().UTC(),
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "invoice-events", decoded.Route.Topic)
	assert.Equal(t, storeID.String(), decoded.OrderingKey())
	assert.NotEmpty(t, decoded.Envelope.EventID)

	settled, ok := decoded.Payload.(payloads.InvoiceSettledEvent)
	require.True(t, ok, "payload type %T", decoded.Payload)
	assert.Equal(t, int64(15_000), settled.FeeAmountCents)
}

func TestDecodePeriodReopenedUsesStoreKey(t *testing.T) {
	c := testCatalog(t)
	storeID := uuid.New()

	decoded, err := c.Decode(models.OutboxEvent{
		EventType:     enums.EventStorePeriodReopened,
		AggregateType: enums.AggregateStorePeriod,
		AggregateID:   uuid.New(),
		Payload: envelopeFor(t, payloads.StorePeriodReopenedEvent{
			StoreID:        storeID,
			ClosedPeriodID: uuid.New(),
			NewPeriodID:    uuid.New(),
			StartDate:      time.Now().UTC(),
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, storeID.String(), decoded.OrderingKey())
}

func TestDecodeRejectsMalformedRows(t *testing.T) {
	c := testCatalog(t)
	valid := envelopeFor(t, payloads.InvoiceCreatedEvent{InvoiceID: uuid.New(), StoreID: uuid.New()})

	cases := []struct {
		name string
		row  models.OutboxEvent
	}{
		{
			name: "unknown event type",
			row:  models.OutboxEvent{EventType: "invoice_refunded", AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: valid},
		},
		{
			name: "aggregate mismatch",
			row:  models.OutboxEvent{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateStorePeriod, AggregateID: uuid.New(), Payload: valid},
		},
		{
			name: "missing aggregate id",
			row:  models.OutboxEvent{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, Payload: valid},
		},
		{
			name: "envelope is not json",
			row:  models.OutboxEvent{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: json.RawMessage(`{`)},
		},
		{
			name: "null data",
			row:  models.OutboxEvent{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: json.RawMessage(`{"version":1,"data":null}`)},
		},
		{
			name: "data without store",
			row: models.OutboxEvent{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(),
				Payload: envelopeFor(t, payloads.InvoiceCreatedEvent{InvoiceID: uuid.New()})},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := c.Decode(tc.row)
			require.Error(t, err)
			assert.True(t, IsPermanent(err), "expected permanent error, got %v", err)
		})
	}
}

func TestNewCatalogRequiresTopic(t *testing.T) {
	_, err := NewCatalog(config.PubSubConfig{InvoiceTopic: "  "})
	require.Error(t, err)
}

func TestCatalogTopicsAreDistinct(t *testing.T) {
	assert.Equal(t, []string{"invoice-events"}, testCatalog(t).Topics())
}
