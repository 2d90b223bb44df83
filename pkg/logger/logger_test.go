package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var e map[string]any
		require.NoError(t, dec.Decode(&e))
		out = append(out, e)
	}
	return out
}

func TestContextFieldsFollowTheRequest(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: ParseLevel("debug"), Output: buf, Format: "json"})

	ctx := log.WithRequestID(context.Background(), "req-123")
	ctx = log.WithActor(ctx, "user-1", "store", "store-9")
	ctx = log.WithInvoiceID(ctx, "inv-1")
	log.Error(ctx, "settle failed", errors.New("boom"))
	log.Info(context.Background(), "unrelated")

	got := entries(t, buf)
	require.Len(t, got, 2)
	assert.Equal(t, "api", got[0]["service"])
	assert.Equal(t, "req-123", got[0]["request_id"])
	assert.Equal(t, "store-9", got[0]["store_id"])
	assert.Equal(t, "inv-1", got[0]["invoice_id"])
	assert.Equal(t, "boom", got[0]["error"])
	assert.NotEmpty(t, got[0]["stack"])
	assert.NotContains(t, got[1], "request_id")
}

func TestWarnStackToggle(t *testing.T) {
	for _, withStack := range []bool{false, true} {
		buf := &bytes.Buffer{}
		New(Options{ServiceName: "cron", Output: buf, WarnStack: withStack, Format: "json"}).
			Warn(context.Background(), "lease busy")
		got := entries(t, buf)
		require.Len(t, got, 1)
		_, has := got[0]["stack"]
		assert.Equal(t, withStack, has)
	}
}

func TestLevelFiltersAndNop(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "api", Level: zerolog.WarnLevel, Output: buf, Format: "json"})
	log.Info(context.Background(), "quiet")
	assert.Zero(t, buf.Len())

	nop := Nop()
	ctx := nop.WithFields(context.Background(), map[string]any{"k": "v"})
	nop.Error(ctx, "dropped", errors.New("x"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, ParseLevel(""))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("invalid"))
	assert.Equal(t, zerolog.DebugLevel, ParseLevel(" DEBUG "))
}
