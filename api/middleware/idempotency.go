package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/angelmondragon/marketplace-commissions/api/responses"
	pkgerrors "github.com/angelmondragon/marketplace-commissions/pkg/errors"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
)

const (
	// ReplayDay covers generation and upload URL requests.
	ReplayDay = 24 * time.Hour
	// ReplayWeek covers proof uploads and admin verdicts.
	ReplayWeek = 7 * 24 * time.Hour

	inFlightTTL    = time.Minute
	replayedHeader = "Idempotent-Replayed"
)

type replayStore interface {
	Key(parts ...string) string
	Claim(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

// replay is what Redis holds for one Idempotency-Key. A pending entry marks a
// request still running; it expires quickly if the process dies mid-request.
type replay struct {
	Pending     bool   `json:"pending,omitempty"`
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body,omitempty"`
}

// Idempotent makes a write route replay its first non-5xx response for the
// same caller, path and Idempotency-Key for ttl. A nil store disables it.
func Idempotent(store replayStore, ttl time.Duration, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
			if idemKey == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			fp := fingerprint(r.Method, r.URL.Path, body)
			key := store.Key("replay", UserIDFromContext(ctx), StoreIDFromContext(ctx), r.URL.Path, idemKey)

			pending, _ := json.Marshal(replay{Pending: true, Fingerprint: fp})
			claimed, err := store.Claim(ctx, key, pending, inFlightTTL)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim idempotency key"))
				return
			}
			if !claimed {
				answerFromStore(ctx, store, key, fp, w, logg)
				return
			}

			rec := &capture{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.code() >= http.StatusInternalServerError {
				if err := store.Forget(ctx, key); err != nil && logg != nil {
					logg.Error(ctx, "release idempotency key", err)
				}
				return
			}
			done, _ := json.Marshal(replay{
				Fingerprint: fp,
				Status:      rec.code(),
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.Bytes(),
			})
			if err := store.Save(ctx, key, done, ttl); err != nil && logg != nil {
				logg.Error(ctx, "save idempotent response", err)
			}
		})
	}
}

func answerFromStore(ctx context.Context, store replayStore, key, fp string, w http.ResponseWriter, logg *logger.Logger) {
	raw, err := store.Load(ctx, key)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load idempotent response"))
		return
	}
	var prev replay
	if raw == nil {
		// Expired between the claim and the load; the client can simply retry.
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "idempotent request still settling, retry"))
		return
	}
	if err := json.Unmarshal(raw, &prev); err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotent response"))
		return
	}
	switch {
	case prev.Fingerprint != fp:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "Idempotency-Key already used for a different request"))
	case prev.Pending:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConflict, "a request with this Idempotency-Key is in progress"))
	default:
		if prev.ContentType != "" {
			w.Header().Set("Content-Type", prev.ContentType)
		}
		w.Header().Set(replayedHeader, "true")
		w.WriteHeader(prev.Status)
		_, _ = w.Write(prev.Body)
	}
}

func fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method + " " + path + "\n"))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// capture tees the response so it can be stored after the handler returns.
type capture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (c *capture) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capture) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capture) code() int {
	if c.status == 0 {
		return http.StatusOK
	}
	return c.status
}
