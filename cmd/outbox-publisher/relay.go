package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
	"github.com/angelmondragon/marketplace-commissions/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	fallbackSendTimeout = 15 * time.Second
	backoffCeiling      = 10 * time.Second
	jitterSpread        = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type claimStore interface {
	Claim(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(tx *gorm.DB, id uuid.UUID, at time.Time) error
	MarkFailed(tx *gorm.DB, id uuid.UUID, cause error) error
	MarkTerminal(tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
}

type deadLetterStore interface {
	Record(tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, at time.Time) error
}

type eventDecoder interface {
	Decode(models.OutboxEvent) (*registry.Decoded, error)
}

// sink delivers one message and waits for the broker acknowledgement.
type sink interface {
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      topicSource
	Rows        claimStore
	DeadLetters deadLetterStore
	Catalog     eventDecoder
	Metrics     *metrics.RelayMetrics
	// Sinks overrides topic resolution; tests inject in-memory sinks here.
	Sinks func(topic string) sink
	Now   func() time.Time
}

// Relay moves committed invoice events from outbox_events to Pub/Sub.
// Rows are claimed in batches inside one transaction, so a crash leaves them
// unpublished and the next claim picks them up again.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	rows        claimStore
	deadLetters deadLetterStore
	catalog     eventDecoder
	metrics     *metrics.RelayMetrics
	sinks       func(topic string) sink
	now         func() time.Time

	batchSize   int
	maxAttempts int
	poll        time.Duration
	sendTimeout time.Duration

	mu     sync.Mutex
	topics map[string]*gcppubsub.Publisher
}

func NewRelay(p RelayParams) (*Relay, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("database client is required")
	case p.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case p.Rows == nil:
		return nil, errors.New("outbox repository is required")
	case p.DeadLetters == nil:
		return nil, errors.New("dead letter repository is required")
	case p.Catalog == nil:
		return nil, errors.New("event catalog is required")
	}

	r := &Relay{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		rows:        p.Rows,
		deadLetters: p.DeadLetters,
		catalog:     p.Catalog,
		metrics:     p.Metrics,
		now:         p.Now,
		batchSize:   positiveOr(p.Outbox.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Outbox.MaxAttempts, fallbackMaxAttempts),
		poll:        fallbackPoll,
		sendTimeout: fallbackSendTimeout,
		topics:      map[string]*gcppubsub.Publisher{},
	}
	if p.Outbox.PollIntervalMS > 0 {
		r.poll = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if p.Outbox.PublishTimeout > 0 {
		r.sendTimeout = p.Outbox.PublishTimeout
	}
	if r.now == nil {
		r.now = func() time.Time { return time.Now().UTC() }
	}
	r.sinks = p.Sinks
	if r.sinks == nil {
		r.sinks = r.topicSink
	}
	return r, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run drains the outbox until ctx is cancelled. A full batch is followed
// immediately by the next one; errors back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	for name, ping := range map[string]func(context.Context) error{
		"database": r.db.Ping,
		"pubsub":   r.pubsub.Ping,
	} {
		if err := ping(ctx); err != nil {
			r.logg.Error(r.logg.WithField(ctx, "dependency", name), "relay dependency unavailable", err)
			return fmt.Errorf("%s ping: %w", name, err)
		}
	}

	delay := r.poll
	for {
		n, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox batch failed", err)
			delay = min(max(2*delay, r.poll), backoffCeiling)
		case n == r.batchSize:
			delay = 0
		default:
			delay = r.poll
		}
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

// Close stops every cached topic publisher, flushing pending messages.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, p := range r.topics {
		p.Stop()
		delete(r.topics, name)
	}
}

func wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d + rand.N(jitterSpread))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// drain claims one batch and settles every row in it. It returns how many
// rows were claimed.
func (r *Relay) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.rows.Claim(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		if claimed == 0 {
			return nil
		}
		r.metrics.IncBatch()
		for _, row := range rows {
			outcome, err := r.deliver(ctx, tx, row)
			if err != nil {
				return err
			}
			lag := time.Duration(0)
			if outcome == metrics.DeliveryPublished {
				lag = r.now().Sub(row.CreatedAt)
			}
			r.metrics.ObserveDelivery(string(row.EventType), outcome, lag)
		}
		return nil
	})
	return claimed, err
}

// deliver publishes one row and records what happened to it. The returned
// error is only set when the row state itself could not be written.
func (r *Relay) deliver(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) (string, error) {
	ctx = r.logg.WithFields(ctx, map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	})

	decoded, err := r.catalog.Decode(row)
	if err != nil {
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, err)
	}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"event_id": decoded.Envelope.EventID,
		"topic":    decoded.Route.Topic,
		"store_id": decoded.OrderingKey(),
	})

	sendErr := r.send(ctx, row, decoded)
	switch {
	case sendErr == nil:
		if err := r.rows.MarkPublished(tx, row.ID, r.now()); err != nil {
			return "", fmt.Errorf("mark %s published: %w", row.ID, err)
		}
		r.logg.Info(ctx, "invoice event published")
		return metrics.DeliveryPublished, nil
	case registry.IsPermanent(sendErr):
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonNonRetryable, sendErr)
	case row.AttemptCount+1 >= r.maxAttempts:
		return r.deadLetter(ctx, tx, row, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, sendErr))
	default:
		if err := r.rows.MarkFailed(tx, row.ID, sendErr); err != nil {
			return "", fmt.Errorf("mark %s failed: %w", row.ID, err)
		}
		r.logg.Warn(r.logg.WithField(ctx, "error", sendErr.Error()), "invoice event publish failed, will retry")
		return metrics.DeliveryRetried, nil
	}
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) (string, error) {
	if err := r.deadLetters.Record(tx, row, reason, cause, r.now()); err != nil {
		return "", fmt.Errorf("dead-letter %s: %w", row.ID, err)
	}
	if err := r.rows.MarkTerminal(tx, row.ID, cause, r.maxAttempts); err != nil {
		return "", fmt.Errorf("mark %s terminal: %w", row.ID, err)
	}
	r.logg.Warn(r.logg.WithFields(ctx, map[string]any{
		"dlq_reason": reason,
		"error":      cause.Error(),
	}), "invoice event dead-lettered")
	return metrics.DeliveryDeadLettered, nil
}

func (r *Relay) send(ctx context.Context, row models.OutboxEvent, decoded *registry.Decoded) error {
	out := r.sinks(decoded.Route.Topic)
	if out == nil {
		return registry.Permanent(fmt.Errorf("no publisher for topic %s", decoded.Route.Topic))
	}
	msg := &gcppubsub.Message{
		Data:        row.Payload,
		OrderingKey: decoded.OrderingKey(),
		Attributes: map[string]string{
			"event_id":       decoded.Envelope.EventID,
			"event_type":     string(row.EventType),
			"aggregate_type": string(row.AggregateType),
			"aggregate_id":   row.AggregateID.String(),
			"occurred_at":    decoded.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	sendCtx, cancel := context.WithTimeout(ctx, r.sendTimeout)
	defer cancel()
	return out.Send(sendCtx, msg)
}

// topicSink returns a cached ordered publisher for topic.
func (r *Relay) topicSink(topic string) sink {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.topics[topic]; ok {
		return orderedSink{p}
	}
	p := r.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	r.topics[topic] = p
	return orderedSink{p}
}

type orderedSink struct {
	p *gcppubsub.Publisher
}

func (s orderedSink) Send(ctx context.Context, msg *gcppubsub.Message) error {
	if _, err := s.p.Publish(ctx, msg).Get(ctx); err != nil {
		// An ordered publisher pauses its key after a failure.
		if msg.OrderingKey != "" {
			s.p.ResumePublish(msg.OrderingKey)
		}
		return err
	}
	return nil
}
