package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/auth"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
	"github.com/ledgerlink/backend/internal/infrastructure/crm"
	"github.com/ledgerlink/backend/internal/interfaces/http/handler"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopRouter struct{}

func (nopRouter) Route(_ context.Context, events []integration.WebhookEvent) appintegration.RouteReport {
	return appintegration.RouteReport{Received: len(events)}
}

type emptyTenants struct{}

func (emptyTenants) FindByID(context.Context, uuid.UUID) (*integration.Tenant, error) {
	return nil, integration.ErrTenantNotFound
}
func (emptyTenants) List(context.Context) ([]integration.Tenant, error) { return nil, nil }

type emptyRuns struct{}

func (emptyRuns) Save(context.Context, *integration.SyncRun) error { return nil }
func (emptyRuns) ListRecent(context.Context, uuid.UUID, int) ([]integration.SyncRun, error) {
	return nil, nil
}

type nopTrigger struct{}

func (nopTrigger) TriggerPoll(uuid.UUID, integration.EntityKind, integration.DateWindow) error {
	return nil
}

func newTestEngine(t *testing.T, limiter *middleware.RateLimiter) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	jwtService := auth.NewJWTService(config.OpsConfig{JWTSecret: "0123456789abcdef0123456789abcdef", JWTIssuer: "ledgerlink"})
	engine, err := NewEngine(EngineConfig{
		ServiceName: "ledgerlink",
		MaxBodySize: 1 << 20,
		RateLimiter: limiter,
		Webhook:     handler.NewWebhookHandler(crm.NewSignatureVerifier("secret", 0), nopRouter{}, nil),
		Health:      handler.NewHealthHandler("ledgerlink", nil),
		Ops:         handler.NewOpsHandler(nopTrigger{}, emptyTenants{}, emptyRuns{}, time.UTC, nil),
		JWT:         middleware.JWTMiddlewareConfig{JWTService: jwtService},
	})
	require.NoError(t, err)
	return engine, jwtService
}

func serve(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("[]"))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewEngine_Routes(t *testing.T) {
	engine, jwtService := newTestEngine(t, nil)
	token, err := jwtService.Issue("alice", []string{auth.ScopeRead}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"unknown route", http.MethodGet, "/nope", "", http.StatusNotFound},
		{"unsigned webhook", http.MethodPost, "/webhooks/hubspot", "", http.StatusUnauthorized},
		{"ops without token", http.MethodGet, "/api/v1/ops/tenants", "", http.StatusUnauthorized},
		{"ops tenants", http.MethodGet, "/api/v1/ops/tenants", token.Token, http.StatusOK},
		{"ops runs", http.MethodGet, "/api/v1/ops/tenants/" + uuid.NewString() + "/runs", token.Token, http.StatusOK},
		{"poll needs poll scope", http.MethodPost, "/api/v1/ops/tenants/" + uuid.NewString() + "/poll/contacts", token.Token, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serve(engine, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestNewEngine_RateLimitsOpsOnly(t *testing.T) {
	limiter := middleware.NewRateLimiter(1, time.Minute)
	t.Cleanup(limiter.Stop)
	engine, _ := newTestEngine(t, limiter)

	assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodGet, "/api/v1/ops/tenants", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(engine, http.MethodGet, "/api/v1/ops/tenants", "").Code)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/health", "").Code)
	}
}

func TestNewEngine_RequiresHandlers(t *testing.T) {
	_, err := NewEngine(EngineConfig{})
	assert.Error(t, err)
}

func TestRouter_APIVersion(t *testing.T) {
	engine := gin.New()
	NewRouter(engine, WithAPIVersion("v2")).
		Register(registrarFunc(func(rg *gin.RouterGroup) {
			rg.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		})).
		Setup()

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v2/ping", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

type registrarFunc func(rg *gin.RouterGroup)

func (f registrarFunc) RegisterRoutes(rg *gin.RouterGroup) { f(rg) }
