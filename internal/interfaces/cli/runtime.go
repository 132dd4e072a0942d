package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/accounting"
	"github.com/ledgerlink/backend/internal/infrastructure/auth"
	"github.com/ledgerlink/backend/internal/infrastructure/cache"
	"github.com/ledgerlink/backend/internal/infrastructure/config"
	"github.com/ledgerlink/backend/internal/infrastructure/crm"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence"
)

// ErrRevocationsUnavailable is returned by token revoke when no shared store is reachable
var ErrRevocationsUnavailable = errors.New("token revocation store unavailable: redis is not reachable")

// TenantStore reads tenants
type TenantStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.Tenant, error)
	List(ctx context.Context) ([]integration.Tenant, error)
}

// WindowPoller runs one poll window for a tenant
type WindowPoller interface {
	PollTenant(ctx context.Context, tenantID uuid.UUID, kind integration.EntityKind, window integration.DateWindow) (appintegration.PollReport, error)
}

// RecordReconciler reconciles one record and returns its outcome
type RecordReconciler interface {
	Reconcile(ctx context.Context, tenantID uuid.UUID, kind integration.EntityKind, direction integration.Direction, record integration.Record) (integration.Outcome, error)
}

// TokenService issues and validates ops tokens
type TokenService interface {
	Issue(operator string, scopes []string, ttl time.Duration) (*auth.IssuedToken, error)
	Validate(token string) (*auth.Claims, error)
}

// Runtime holds what commands operate on. Nil fields are reported as unavailable.
type Runtime struct {
	Tenants     TenantStore
	Poller      WindowPoller
	Reconciler  RecordReconciler
	Tokens      TokenService
	Revocations auth.RevocationList
	Location    *time.Location
	Now         func() time.Time

	closers []func() error
}

// Close releases connections held by the runtime
func (r *Runtime) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		_ = r.closers[i]()
	}
}

func (r *Runtime) now() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return now().In(loc)
}

// Bootstrap connects to the database, Redis and both remote systems using the service configuration
func Bootstrap(ctx context.Context, opts *RootOptions) (*Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  opts.LogLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	rt := &Runtime{}
	rt.closers = append(rt.closers, func() error { return logger.Sync(log) })

	location, err := cfg.Sync.Location()
	if err != nil {
		return nil, err
	}
	rt.Location = location

	if cfg.Ops.JWTSecret != "" {
		rt.Tokens = auth.NewJWTService(cfg.Ops)
	}
	if client, err := cache.NewRedisClient(ctx, cfg.Redis); err == nil {
		rt.closers = append(rt.closers, client.Close)
		rt.Revocations = auth.NewRedisRevocationList(client)
	} else {
		log.Debug("Redis unavailable", zap.Error(err))
	}

	db, err := persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel(opts.LogLevel), 0))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, db.Close)

	hubspotCfg := crm.NewHubSpotConfig(cfg.CRM.ClientID, cfg.CRM.ClientSecret)
	if cfg.CRM.APIBaseURL != "" {
		hubspotCfg.APIBaseURL = cfg.CRM.APIBaseURL
	}
	hubspotCfg.TimeoutSeconds = cfg.CRM.TimeoutSeconds
	crmGateway, err := crm.NewHubSpotGateway(hubspotCfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	crmRefresher, err := crm.NewHubSpotRefresher(hubspotCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	saasuCfg := accounting.NewSaasuConfig()
	if cfg.Accounting.APIBaseURL != "" {
		saasuCfg.APIBaseURL = cfg.Accounting.APIBaseURL
	}
	saasuCfg.TimeoutSeconds = cfg.Accounting.TimeoutSeconds
	if cfg.Accounting.PageSize > 0 {
		saasuCfg.PageSize = cfg.Accounting.PageSize
	}
	accountingGateway, err := accounting.NewSaasuGateway(saasuCfg, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	accountingRefresher, err := accounting.NewSaasuRefresher(saasuCfg)
	if err != nil {
		rt.Close()
		return nil, err
	}

	writeBack, err := cfg.Sync.WriteBackFactor()
	if err != nil {
		rt.Close()
		return nil, err
	}
	options := appintegration.DefaultSyncOptions()
	options.CurrencyFields = cfg.Sync.CurrencyFields
	options.QuoteStages = cfg.Sync.QuoteStages
	options.WriteBackFactor = writeBack

	tenants := persistence.NewGormTenantRepository(db.DB)
	mappings := persistence.NewGormIdentityMapRepository(db.DB)
	runs := persistence.NewGormSyncRunRepository(db.DB)
	sessions := appintegration.NewSessionManager(tenants, log, crmRefresher, accountingRefresher)
	synchronizers := appintegration.NewSynchronizers(appintegration.SynchronizerDeps{
		CRM:        crmGateway,
		Accounting: accountingGateway,
		Mappings:   mappings,
		Options:    options,
		Logger:     log,
	})

	rt.Tenants = tenants
	rt.Poller = appintegration.NewPollDriver(appintegration.PollDriverDeps{
		Accounting:    accountingGateway,
		Synchronizers: synchronizers,
		Runs:          runs,
		Tenants:       tenants,
		Sessions:      sessions,
		Logger:        log,
	})
	rt.Reconciler = &sessionReconciler{sessions: sessions, synchronizers: synchronizers}
	return rt, nil
}

// sessionReconciler opens a fresh tenant session and runs the kind's synchronizer
type sessionReconciler struct {
	sessions      *appintegration.SessionManager
	synchronizers map[integration.EntityKind]integration.Synchronizer
}

func (r *sessionReconciler) Reconcile(ctx context.Context, tenantID uuid.UUID, kind integration.EntityKind, direction integration.Direction, record integration.Record) (integration.Outcome, error) {
	sync, ok := r.synchronizers[kind]
	if !ok {
		return integration.Outcome{}, fmt.Errorf("%w: no synchronizer for %q", integration.ErrInvalidEntityKind, kind)
	}
	session, err := r.sessions.ForTenant(ctx, tenantID)
	if err != nil {
		return integration.Outcome{}, err
	}
	return sync.Reconcile(ctx, session, direction, record)
}
