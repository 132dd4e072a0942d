package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// DefaultRefreshSkew refreshes access tokens this long before they expire
const DefaultRefreshSkew = 5 * time.Minute

// SessionManager loads tenant sessions and keeps their credentials fresh.
// Sessions are values; every refresh returns a new one.
type SessionManager struct {
	tenants    integration.TenantRepository
	refreshers map[integration.System]integration.CredentialRefresher
	skew       time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(tenants integration.TenantRepository, logger *zap.Logger, refreshers ...integration.CredentialRefresher) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &SessionManager{
		tenants:    tenants,
		refreshers: make(map[integration.System]integration.CredentialRefresher, len(refreshers)),
		skew:       DefaultRefreshSkew,
		now:        time.Now,
		logger:     logger,
	}
	for _, r := range refreshers {
		m.refreshers[r.System()] = r
	}
	return m
}

// ForTenant returns a fresh session for a tenant id
func (m *SessionManager) ForTenant(ctx context.Context, tenantID uuid.UUID) (integration.TenantSession, error) {
	tenant, err := m.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return integration.TenantSession{}, err
	}
	return m.Fresh(ctx, tenant.Session())
}

// ResolveCRMAccount returns the id of the tenant a webhook portal id belongs to.
// Credentials are not refreshed; the worker does that when it runs the unit.
func (m *SessionManager) ResolveCRMAccount(ctx context.Context, crmAccountID string) (uuid.UUID, error) {
	tenant, err := m.tenants.FindByCRMAccountID(ctx, crmAccountID)
	if err != nil {
		return uuid.Nil, err
	}
	if err := tenant.Session().RequireConnected(); err != nil {
		return tenant.ID, err
	}
	return tenant.ID, nil
}

// Fresh refreshes both credentials where needed. The tenant must be connected to both systems.
func (m *SessionManager) Fresh(ctx context.Context, session integration.TenantSession) (integration.TenantSession, error) {
	if err := session.RequireConnected(); err != nil {
		return session, err
	}
	for _, system := range []integration.System{integration.SystemCRM, integration.SystemAccounting} {
		next, err := m.Current(ctx, session, system)
		if err != nil {
			return session, err
		}
		session = next
	}
	return session, nil
}

// Current returns session with a usable credential for system, refreshing it when it is about to expire.
// A rejected refresh marks the tenant disconnected for that system.
func (m *SessionManager) Current(ctx context.Context, session integration.TenantSession, system integration.System) (integration.TenantSession, error) {
	cred := session.Credential(system)
	if !cred.Connected {
		return session, &integration.TenantNotConnectedError{TenantID: session.TenantID().String(), System: system}
	}
	if !cred.Expiring(m.now(), m.skew) {
		return session, nil
	}
	refresher, ok := m.refreshers[system]
	if !ok {
		return session, nil
	}

	refreshed, err := refresher.Refresh(ctx, cred)
	if err != nil {
		if integration.IsTenantNotConnected(err) {
			if markErr := m.MarkDisconnected(ctx, session, system); markErr != nil {
				m.logger.Error("Failed to mark tenant disconnected",
					zap.String("tenant_id", session.TenantID().String()),
					zap.String("system", system.String()),
					zap.Error(markErr),
				)
			}
		}
		return session, err
	}

	next := refreshed.Credential
	next.Connected = true
	fileID := session.AccountingFileID()
	if system == integration.SystemAccounting && refreshed.AccountingFileID != "" {
		fileID = refreshed.AccountingFileID
	}
	if err := m.tenants.SaveCredential(ctx, session.TenantID(), system, next, fileID); err != nil {
		return session, err
	}

	m.logger.Info("Credential refreshed",
		zap.String("tenant_id", session.TenantID().String()),
		zap.String("system", system.String()),
		zap.Time("expires_at", next.ExpiresAt),
	)
	return session.WithCredential(system, next).WithAccountingFileID(fileID), nil
}

// MarkDisconnected records that the tenant's connection to system no longer works
func (m *SessionManager) MarkDisconnected(ctx context.Context, session integration.TenantSession, system integration.System) error {
	m.logger.Warn("Tenant disconnected",
		zap.String("tenant_id", session.TenantID().String()),
		zap.String("system", system.String()),
	)
	return m.tenants.MarkDisconnected(ctx, session.TenantID(), system)
}
