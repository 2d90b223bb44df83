package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error)
}

type deadLetterPruner interface {
	Prune(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxPruneParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Outbox      outboxPruner
	DeadLetters deadLetterPruner
	// KeepEvents and KeepDeadLetters are retention windows.
	KeepEvents      time.Duration
	KeepDeadLetters time.Duration
	// MaxAttempts is the relay's ceiling; rows at it are finished.
	MaxAttempts int
	Now         func() time.Time
}

// NewOutboxPruneJob deletes delivered or abandoned outbox rows and old dead
// letters. Rows still waiting for delivery are kept however old they are.
func NewOutboxPruneJob(p OutboxPruneParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, errors.New("logger is required")
	case p.DB == nil:
		return nil, errors.New("db is required")
	case p.Outbox == nil || p.DeadLetters == nil:
		return nil, errors.New("outbox and dead letter repositories are required")
	case p.KeepEvents <= 0 || p.KeepDeadLetters <= 0:
		return nil, errors.New("retention windows must be positive")
	case p.MaxAttempts <= 0:
		return nil, errors.New("max attempts must be positive")
	}
	if p.Now == nil {
		p.Now = time.Now
	}
	return &outboxPruneJob{p: p}, nil
}

type outboxPruneJob struct {
	p OutboxPruneParams
}

func (j *outboxPruneJob) Name() string { return "outbox-prune" }

func (j *outboxPruneJob) Run(ctx context.Context) error {
	now := j.p.Now().UTC()
	eventCutoff, dlqCutoff := now.Add(-j.p.KeepEvents), now.Add(-j.p.KeepDeadLetters)

	var events, letters int64
	err := j.p.DB.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if events, err = j.p.Outbox.Prune(ctx, tx, eventCutoff, j.p.MaxAttempts); err != nil {
			return fmt.Errorf("prune outbox events: %w", err)
		}
		if letters, err = j.p.DeadLetters.Prune(ctx, tx, dlqCutoff); err != nil {
			return fmt.Errorf("prune dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	j.p.Logger.Info(j.p.Logger.WithFields(ctx, map[string]any{
		"events_before":        eventCutoff,
		"events_deleted":       events,
		"dead_letters_before":  dlqCutoff,
		"dead_letters_deleted": letters,
	}), "outbox pruned")
	return nil
}
