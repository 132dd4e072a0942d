package router

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/infrastructure/auth"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/interfaces/http/handler"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages versioned API route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
	middleware []gin.HandlerFunc
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// WithAPIMiddleware adds middleware to the versioned API group only
func WithAPIMiddleware(mw ...gin.HandlerFunc) RouterOption {
	return func(r *Router) {
		r.middleware = append(r.middleware, mw...)
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// OpsRoutes mounts the operator API behind bearer auth
type OpsRoutes struct {
	Handler *handler.OpsHandler
	Auth    gin.HandlerFunc
}

// RegisterRoutes mounts /ops
func (o OpsRoutes) RegisterRoutes(rg *gin.RouterGroup) {
	ops := rg.Group("/ops", o.Auth)
	ops.GET("/tenants", middleware.RequireScope(auth.ScopeRead), o.Handler.ListTenants)
	ops.GET("/tenants/:id/runs", middleware.RequireScope(auth.ScopeRead), o.Handler.ListRuns)
	ops.POST("/tenants/:id/poll/:kind", middleware.RequireScope(auth.ScopePoll), o.Handler.TriggerPoll)
}

// EngineConfig holds what NewEngine wires together
type EngineConfig struct {
	Logger         *zap.Logger
	ServiceName    string
	TrustedProxies []string
	TracingEnabled bool
	// ProfilingEnabled labels request profiles by route
	ProfilingEnabled bool
	// Meter is optional; nil disables HTTP metrics
	Meter       metric.Meter
	MaxBodySize int64
	// RateLimiter is optional and applies to the ops API
	RateLimiter *middleware.RateLimiter

	Webhook *handler.WebhookHandler
	Health  *handler.HealthHandler
	Ops     *handler.OpsHandler
	JWT     middleware.JWTMiddlewareConfig
}

// NewEngine builds the gin engine with the full middleware chain and every route
func NewEngine(cfg EngineConfig) (*gin.Engine, error) {
	if cfg.Webhook == nil || cfg.Health == nil {
		return nil, errors.New("router: webhook and health handlers are required")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}

	metrics, err := middleware.HTTPMetrics(cfg.Meter)
	if err != nil {
		return nil, err
	}

	engine.Use(
		logger.Recovery(log),
		middleware.RequestID(),
		middleware.Tracing(middleware.TracingConfig{ServiceName: cfg.ServiceName, Enabled: cfg.TracingEnabled}),
		middleware.SpanEnricher(),
		middleware.Profiling(cfg.ProfilingEnabled),
		logger.GinMiddleware(log),
		metrics,
		middleware.Secure(),
	)
	if cfg.MaxBodySize > 0 {
		engine.Use(middleware.BodyLimit(cfg.MaxBodySize))
	}
	engine.NoRoute(middleware.NoRoute())

	engine.GET("/health", cfg.Health.Health)
	cfg.Webhook.RegisterRoutes(&engine.RouterGroup)

	var apiMiddleware []gin.HandlerFunc
	if cfg.RateLimiter != nil {
		apiMiddleware = append(apiMiddleware, middleware.RateLimit(cfg.RateLimiter))
	}
	r := NewRouter(engine, WithAPIMiddleware(apiMiddleware...))
	if cfg.Ops != nil && cfg.JWT.JWTService != nil {
		if cfg.JWT.Logger == nil {
			cfg.JWT.Logger = log
		}
		r.Register(OpsRoutes{Handler: cfg.Ops, Auth: middleware.JWTAuth(cfg.JWT)})
	}
	r.Setup()

	return engine, nil
}
