package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

func TestRequestLoggingAndRecovery(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "api", Output: buf, Format: "json"})

	r := chi.NewRouter()
	r.Use(RequestID(logg), Logging(logg), Recoverer(logg))
	r.Get("/invoices/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	r.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("ledger exploded") })

	req := httptest.NewRequest(http.MethodGet, "/invoices/abc", nil)
	req.Header.Set("X-Request-Id", "req-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "req-42", rec.Header().Get("X-Request-Id"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "request.complete", entry["message"])
	assert.Equal(t, "/invoices/{id}", entry["route"])
	assert.Equal(t, "req-42", entry["request_id"])
	assert.EqualValues(t, http.StatusAccepted, entry["status"])

	buf.Reset()
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.Contains(t, buf.String(), "panic.recovered")
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
