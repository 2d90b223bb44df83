// Package logger wraps zerolog with context-carried fields so a request's
// ids follow it through services and repositories.
package logger

import (
	"context"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/angelmondragon/marketplace-commissions/pkg/env"
)

// Options configures the structured logger.
type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	Output      io.Writer
	// Format is "json" or "console"; empty reads LOG_FORMAT.
	Format string
}

type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

type ctxKey struct{}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Format == "" {
		opts.Format = env.Get("LOG_FORMAT", "json")
	}
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}
	if opts.Level == zerolog.NoLevel {
		opts.Level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339Nano

	base := zerolog.New(out).Level(opts.Level).With().
		Timestamp().
		Str("service", opts.ServiceName).
		Logger()
	return &Logger{base: base, warnStack: opts.WarnStack}
}

// Nop discards everything.
func Nop() *Logger {
	return &Logger{base: zerolog.Nop()}
}

// ParseLevel falls back to info for empty or unknown values.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) with(ctx context.Context, add func(zerolog.Context) zerolog.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	entry := add(l.from(ctx).With()).Logger()
	return context.WithValue(ctx, ctxKey{}, &entry)
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Interface(key, value) })
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context { return c.Fields(fields) })
}

func (l *Logger) WithRequestID(ctx context.Context, requestID string) context.Context {
	return l.WithField(ctx, "request_id", requestID)
}

func (l *Logger) WithStoreID(ctx context.Context, storeID string) context.Context {
	return l.WithField(ctx, "store_id", storeID)
}

func (l *Logger) WithInvoiceID(ctx context.Context, invoiceID string) context.Context {
	return l.WithField(ctx, "invoice_id", invoiceID)
}

// WithActor tags entries with the authenticated caller. storeID may be empty.
func (l *Logger) WithActor(ctx context.Context, userID, role, storeID string) context.Context {
	return l.with(ctx, func(c zerolog.Context) zerolog.Context {
		c = c.Str("user_id", userID).Str("actor_role", role)
		if storeID != "" {
			c = c.Str("store_id", storeID)
		}
		return c
	})
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	ev := l.from(ctx).Warn()
	if l.warnStack {
		ev = ev.Str("stack", stack())
	}
	ev.Msg(msg)
}

// Error always records a stack; err may be nil.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	l.from(ctx).Error().Err(err).Str("stack", stack()).Msg(msg)
}

func stack() string {
	return strings.TrimSpace(string(debug.Stack()))
}
