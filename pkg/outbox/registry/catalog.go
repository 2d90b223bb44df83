// Package registry decodes outbox rows into typed invoice events and decides
// which Pub/Sub topic and ordering key each one is published with.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/payloads"
)

// Route is the publishing contract of one event type.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        func(json.RawMessage) (payloads.StoreScoped, error)
}

// Decoded is an outbox row that passed validation and is ready to publish.
type Decoded struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  payloads.StoreScoped
}

// OrderingKey keeps one store's events in commit order on the topic.
func (d *Decoded) OrderingKey() string {
	if d == nil || d.Payload == nil {
		return ""
	}
	key := d.Payload.StoreKey()
	if key == uuid.Nil {
		return ""
	}
	return key.String()
}

// Catalog maps every invoice lifecycle event to its route.
type Catalog struct {
	routes map[enums.OutboxEventType]Route
}

// PermanentError marks a row that can never be published as stored.
type PermanentError struct {
	Err error
}

func (e PermanentError) Error() string {
	if e.Err == nil {
		return "permanent publish failure"
	}
	return e.Err.Error()
}

func (e PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err so the relay dead-letters the row instead of retrying.
func Permanent(err error) error {
	return PermanentError{Err: err}
}

// IsPermanent reports whether err, or anything it wraps, is a PermanentError.
func IsPermanent(err error) bool {
	var target PermanentError
	return errors.As(err, &target)
}

func decodeAs[T payloads.StoreScoped]() func(json.RawMessage) (payloads.StoreScoped, error) {
	return func(raw json.RawMessage) (payloads.StoreScoped, error) {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// NewCatalog routes all invoice and period events to the invoice topic.
func NewCatalog(cfg config.PubSubConfig) (*Catalog, error) {
	topic := strings.TrimSpace(cfg.InvoiceTopic)
	if topic == "" {
		return nil, errors.New("MKT_PUBSUB_INVOICE_TOPIC is required")
	}

	c := &Catalog{routes: make(map[enums.OutboxEventType]Route)}
	c.add(enums.EventInvoiceCreated, enums.AggregateInvoice, topic, decodeAs[payloads.InvoiceCreatedEvent]())
	c.add(enums.EventInvoiceProofUploaded, enums.AggregateInvoice, topic, decodeAs[payloads.InvoiceProofUploadedEvent]())
	c.add(enums.EventInvoiceProofRejected, enums.AggregateInvoice, topic, decodeAs[payloads.InvoiceProofRejectedEvent]())
	c.add(enums.EventInvoiceSettled, enums.AggregateInvoice, topic, decodeAs[payloads.InvoiceSettledEvent]())
	c.add(enums.EventStorePeriodReopened, enums.AggregateStorePeriod, topic, decodeAs[payloads.StorePeriodReopenedEvent]())
	return c, nil
}

func (c *Catalog) add(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, decode func(json.RawMessage) (payloads.StoreScoped, error)) {
	c.routes[eventType] = Route{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		decode:        decode,
	}
}

// Topics lists the distinct topics the catalog publishes to.
func (c *Catalog) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, r := range c.routes {
		if _, ok := seen[r.Topic]; ok {
			continue
		}
		seen[r.Topic] = struct{}{}
		topics = append(topics, r.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Decode validates the row against its route and unpacks the typed payload.
// Every failure is permanent: retrying the same bytes cannot succeed.
func (c *Catalog) Decode(row models.OutboxEvent) (*Decoded, error) {
	route, ok := c.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for event type %q", row.EventType))
	}
	if row.AggregateType != route.AggregateType {
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, route.AggregateType, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("row has no aggregate id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, Permanent(fmt.Errorf("decode envelope: %w", err))
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, Permanent(fmt.Errorf("%s envelope has no data", row.EventType))
	}

	payload, err := route.decode(data)
	if err != nil {
		return nil, Permanent(fmt.Errorf("decode %s data: %w", row.EventType, err))
	}
	if payload.StoreKey() == uuid.Nil {
		return nil, Permanent(fmt.Errorf("%s data has no store_id", row.EventType))
	}
	return &Decoded{Route: route, Envelope: envelope, Payload: payload}, nil
}
