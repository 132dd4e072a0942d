package models

import (
	"time"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// TenantModel is the persistence model for the Tenant entity.
// Credentials for both systems are stored inline, one column group per system.
type TenantModel struct {
	BaseModel
	Name             string `gorm:"type:varchar(200);not null"`
	CRMAccountID     string `gorm:"column:crm_account_id;type:varchar(64);not null;uniqueIndex"`
	AccountingFileID string `gorm:"type:varchar(64)"`

	CRMAccessToken  string     `gorm:"column:crm_access_token;type:text"`
	CRMRefreshToken string     `gorm:"column:crm_refresh_token;type:text"`
	CRMExpiresAt    *time.Time `gorm:"column:crm_expires_at"`
	CRMConnected    bool       `gorm:"column:crm_connected;not null;default:false"`

	AccountingAccessToken  string     `gorm:"type:text"`
	AccountingRefreshToken string     `gorm:"type:text"`
	AccountingExpiresAt    *time.Time
	AccountingConnected    bool       `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (TenantModel) TableName() string {
	return "tenants"
}

// ToDomain converts the persistence model to a domain Tenant
func (m *TenantModel) ToDomain() *integration.Tenant {
	return &integration.Tenant{
		ID:               m.ID,
		Name:             m.Name,
		CRMAccountID:     m.CRMAccountID,
		AccountingFileID: m.AccountingFileID,
		CRM:              toCredential(m.CRMAccessToken, m.CRMRefreshToken, m.CRMExpiresAt, m.CRMConnected),
		Accounting:       toCredential(m.AccountingAccessToken, m.AccountingRefreshToken, m.AccountingExpiresAt, m.AccountingConnected),
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Tenant
func (m *TenantModel) FromDomain(t *integration.Tenant) {
	m.ID = t.ID
	m.CreatedAt = t.CreatedAt
	m.UpdatedAt = t.UpdatedAt
	m.Name = t.Name
	m.CRMAccountID = t.CRMAccountID
	m.AccountingFileID = t.AccountingFileID

	m.CRMAccessToken = t.CRM.AccessToken
	m.CRMRefreshToken = t.CRM.RefreshToken
	m.CRMExpiresAt = expiryColumn(t.CRM.ExpiresAt)
	m.CRMConnected = t.CRM.Connected

	m.AccountingAccessToken = t.Accounting.AccessToken
	m.AccountingRefreshToken = t.Accounting.RefreshToken
	m.AccountingExpiresAt = expiryColumn(t.Accounting.ExpiresAt)
	m.AccountingConnected = t.Accounting.Connected
}

// TenantModelFromDomain creates a new persistence model from a domain Tenant
func TenantModelFromDomain(t *integration.Tenant) *TenantModel {
	m := &TenantModel{}
	m.FromDomain(t)
	return m
}

// CredentialColumns returns the column updates that store cred for system
func CredentialColumns(system integration.System, cred integration.Credential) map[string]any {
	prefix := "accounting_"
	if system == integration.SystemCRM {
		prefix = "crm_"
	}
	return map[string]any{
		prefix + "access_token":  cred.AccessToken,
		prefix + "refresh_token": cred.RefreshToken,
		prefix + "expires_at":    expiryColumn(cred.ExpiresAt),
		prefix + "connected":     cred.Connected,
	}
}

// ConnectedColumn returns the connected flag column for system
func ConnectedColumn(system integration.System) string {
	if system == integration.SystemCRM {
		return "crm_connected"
	}
	return "accounting_connected"
}

func toCredential(access, refresh string, expiresAt *time.Time, connected bool) integration.Credential {
	cred := integration.Credential{AccessToken: access, RefreshToken: refresh, Connected: connected}
	if expiresAt != nil {
		cred.ExpiresAt = *expiresAt
	}
	return cred
}

func expiryColumn(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
