package routes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketplace-commissions/internal/invoices"
	pkgAuth "github.com/angelmondragon/marketplace-commissions/pkg/auth"
	"github.com/angelmondragon/marketplace-commissions/pkg/config"
	"github.com/angelmondragon/marketplace-commissions/pkg/db/models"
	"github.com/angelmondragon/marketplace-commissions/pkg/enums"
	"github.com/angelmondragon/marketplace-commissions/pkg/logger"
	"github.com/angelmondragon/marketplace-commissions/pkg/metrics"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func up(context.Context) error { return nil }

// invoiceStub answers the two calls these tests route to.
type invoiceStub struct {
	invoices.Service
	listedFor invoices.Actor
	verified  bool
}

func (s *invoiceStub) ListInvoices(_ context.Context, actor invoices.Actor, _ invoices.ListFilter) (*invoices.ListResult, error) {
	s.listedFor = actor
	return &invoices.ListResult{Items: []invoices.InvoiceDTO{}}, nil
}

func (s *invoiceStub) Verify(_ context.Context, _ invoices.Actor, in invoices.VerifyInput) (*models.Invoice, error) {
	s.verified = true
	return &models.Invoice{ID: in.InvoiceID, Status: enums.InvoiceStatusSettled}, nil
}

var routerCfg = &config.Config{
	App:       config.AppConfig{Env: "test", Port: "0"},
	JWT:       config.JWTConfig{Secret: "secret", Issuer: "issuer", ExpirationMinutes: 60},
	RateLimit: config.RateLimitConfig{Window: time.Minute, WriteLimit: 30},
	CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
}

func serve(t *testing.T, deps Dependencies, method, path, body string, role enums.ActorRole) *httptest.ResponseRecorder {
	t.Helper()
	if deps.Invoices == nil {
		deps.Invoices = &invoiceStub{}
	}
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if role != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, role))
	}
	rec := httptest.NewRecorder()
	NewRouter(routerCfg, logger.Nop(), deps).ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	rec := serve(t, Dependencies{}, http.MethodGet, "/health/live", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(t, Dependencies{DB: pingFunc(up)}, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"skipped"`)

	down := pingFunc(func(context.Context) error { return errors.New("bucket unreachable") })
	rec = serve(t, Dependencies{DB: pingFunc(up), GCS: down}, http.MethodGet, "/health/ready", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gcs":"down"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewInvoiceMetrics(reg).ObserveSync(metrics.SyncCreated, 2)

	rec := serve(t, Dependencies{Gatherer: reg}, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "invoice_sync_total")
}

func TestStoreListUsesTokenIdentity(t *testing.T) {
	svc := &invoiceStub{}

	rec := serve(t, Dependencies{Invoices: svc}, http.MethodGet, "/api/v1/invoices", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = serve(t, Dependencies{Invoices: svc}, http.MethodGet, "/api/v1/invoices", "", enums.ActorRoleStore)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.ActorRoleStore, svc.listedFor.Role)
	assert.NotEqual(t, uuid.Nil, svc.listedFor.StoreID)
}

func TestAdminVerifyRequiresAdminRole(t *testing.T) {
	svc := &invoiceStub{}
	body := `{"invoice_id":"` + uuid.NewString() + `","action":"confirm"}`

	rec := serve(t, Dependencies{Invoices: svc}, http.MethodPost, "/api/admin/v1/invoices/verify", body, enums.ActorRoleStore)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, svc.verified, "store callers must not reach the service")

	rec = serve(t, Dependencies{Invoices: svc}, http.MethodPost, "/api/admin/v1/invoices/verify", body, enums.ActorRoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, svc.verified)
}

func token(t *testing.T, role enums.ActorRole) string {
	t.Helper()
	payload := pkgAuth.AccessTokenPayload{UserID: uuid.New(), Role: role}
	if role == enums.ActorRoleStore {
		storeID := uuid.New()
		payload.ActiveStoreID = &storeID
	}
	raw, err := pkgAuth.MintAccessToken(routerCfg.JWT, time.Now(), payload)
	require.NoError(t, err)
	return raw
}

func TestListAliasIsNotTakenForAnID(t *testing.T) {
	svc := &invoiceStub{}

	rec := serve(t, Dependencies{Invoices: svc}, http.MethodGet, "/api/v1/invoices/list?status=settled", "", enums.ActorRoleStore)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, enums.ActorRoleStore, svc.listedFor.Role)
}
