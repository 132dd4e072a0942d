package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Credential
// ---------------------------------------------------------------------------

// Credential is the OAuth state a tenant holds for one system.
type Credential struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Connected    bool
}

// Expiring reports whether the access token expires within skew of now.
// A zero ExpiresAt is treated as expired so the first call refreshes.
func (c Credential) Expiring(now time.Time, skew time.Duration) bool {
	if c.AccessToken == "" || c.ExpiresAt.IsZero() {
		return true
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// ---------------------------------------------------------------------------
// Tenant Entity
// ---------------------------------------------------------------------------

// Tenant is one customer account with independent connections to both systems.
type Tenant struct {
	ID   uuid.UUID
	Name string
	// CRMAccountID is the HubSpot portal id webhooks are addressed with
	CRMAccountID string
	// AccountingFileID scopes every accounting call
	AccountingFileID string
	CRM              Credential
	Accounting       Credential
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// NewTenant creates a tenant on its first CRM authorization
func NewTenant(name, crmAccountID string, crm Credential) (*Tenant, error) {
	if crmAccountID == "" {
		return nil, ErrTenantInvalidAccount
	}
	now := time.Now()
	crm.Connected = true
	return &Tenant{
		ID:           uuid.New(),
		Name:         name,
		CRMAccountID: crmAccountID,
		CRM:          crm,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ConnectAccounting links the accounting side after its first authorization
func (t *Tenant) ConnectAccounting(fileID string, cred Credential) {
	cred.Connected = true
	t.AccountingFileID = fileID
	t.Accounting = cred
	t.UpdatedAt = time.Now()
}

// Disconnect clears the connected flag after a credential failure
func (t *Tenant) Disconnect(system System) {
	if system == SystemCRM {
		t.CRM.Connected = false
	} else {
		t.Accounting.Connected = false
	}
	t.UpdatedAt = time.Now()
}

// IsFullyConnected reports whether both systems are connected
func (t *Tenant) IsFullyConnected() bool {
	return t.CRM.Connected && t.Accounting.Connected
}

// Session returns an immutable snapshot for gateway calls
func (t *Tenant) Session() TenantSession {
	return TenantSession{
		tenantID:         t.ID,
		crmAccountID:     t.CRMAccountID,
		accountingFileID: t.AccountingFileID,
		crm:              t.CRM,
		accounting:       t.Accounting,
	}
}

// ---------------------------------------------------------------------------
// TenantSession Value Object
// ---------------------------------------------------------------------------

// TenantSession is passed into every gateway call.
// It is never mutated; a refresh yields a new value.
type TenantSession struct {
	tenantID         uuid.UUID
	crmAccountID     string
	accountingFileID string
	crm              Credential
	accounting       Credential
}

// NewTenantSession builds a session directly, mostly for tests and the CLI.
func NewTenantSession(tenantID uuid.UUID, crmAccountID, accountingFileID string, crm, accounting Credential) TenantSession {
	return TenantSession{
		tenantID:         tenantID,
		crmAccountID:     crmAccountID,
		accountingFileID: accountingFileID,
		crm:              crm,
		accounting:       accounting,
	}
}

func (s TenantSession) TenantID() uuid.UUID      { return s.tenantID }
func (s TenantSession) CRMAccountID() string     { return s.crmAccountID }
func (s TenantSession) AccountingFileID() string { return s.accountingFileID }

// Credential returns the credential held for system
func (s TenantSession) Credential(system System) Credential {
	if system == SystemCRM {
		return s.crm
	}
	return s.accounting
}

// IsConnected reports whether the tenant is connected to system
func (s TenantSession) IsConnected(system System) bool {
	return s.Credential(system).Connected
}

// AccessToken returns the bearer token for system
func (s TenantSession) AccessToken(system System) string {
	return s.Credential(system).AccessToken
}

// WithCredential returns a copy of the session holding cred for system
func (s TenantSession) WithCredential(system System, cred Credential) TenantSession {
	next := s
	if system == SystemCRM {
		next.crm = cred
	} else {
		next.accounting = cred
	}
	return next
}

// WithAccountingFileID returns a copy of the session scoped to another accounting file
func (s TenantSession) WithAccountingFileID(fileID string) TenantSession {
	next := s
	next.accountingFileID = fileID
	return next
}

// RequireConnected returns a TenantNotConnectedError unless both systems are connected
func (s TenantSession) RequireConnected() error {
	for _, system := range []System{SystemCRM, SystemAccounting} {
		if !s.IsConnected(system) {
			return &TenantNotConnectedError{TenantID: s.tenantID.String(), System: system}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ports
// ---------------------------------------------------------------------------

// TenantRepository persists tenants and their credentials
type TenantRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)
	FindByCRMAccountID(ctx context.Context, crmAccountID string) (*Tenant, error)
	ListFullyConnected(ctx context.Context) ([]Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	Save(ctx context.Context, tenant *Tenant) error
	SaveCredential(ctx context.Context, tenantID uuid.UUID, system System, cred Credential, accountingFileID string) error
	MarkDisconnected(ctx context.Context, tenantID uuid.UUID, system System) error
}

// RefreshedCredential is what a refresh grant returns.
// AccountingFileID is only set when the grant scope names a file.
type RefreshedCredential struct {
	Credential       Credential
	AccountingFileID string
}

// CredentialRefresher exchanges a refresh token for a new access token on one system.
// A rejected grant is reported as a TenantNotConnectedError.
type CredentialRefresher interface {
	System() System
	Refresh(ctx context.Context, cred Credential) (RefreshedCredential, error)
}
