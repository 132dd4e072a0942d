package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTenant(t *testing.T) {
	t.Run("Creates with CRM connected", func(t *testing.T) {
		tenant, err := NewTenant("Acme", "4411", Credential{AccessToken: "crm-token"})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, tenant.ID)
		assert.True(t, tenant.CRM.Connected)
		assert.False(t, tenant.Accounting.Connected)
		assert.False(t, tenant.IsFullyConnected())
	})

	t.Run("Requires account id", func(t *testing.T) {
		_, err := NewTenant("Acme", "", Credential{})
		assert.ErrorIs(t, err, ErrTenantInvalidAccount)
	})
}

func TestTenant_ConnectAndDisconnect(t *testing.T) {
	tenant, err := NewTenant("Acme", "4411", Credential{AccessToken: "crm-token"})
	require.NoError(t, err)

	tenant.ConnectAccounting("86536", Credential{AccessToken: "acc-token"})
	assert.True(t, tenant.IsFullyConnected())
	assert.Equal(t, "86536", tenant.AccountingFileID)

	tenant.Disconnect(SystemAccounting)
	assert.False(t, tenant.IsFullyConnected())
	assert.True(t, tenant.CRM.Connected)
}

func TestTenantSession_IsImmutable(t *testing.T) {
	tenant, err := NewTenant("Acme", "4411", Credential{AccessToken: "old"})
	require.NoError(t, err)
	tenant.ConnectAccounting("78831", Credential{AccessToken: "acc"})

	session := tenant.Session()
	refreshed := session.WithCredential(SystemCRM, Credential{AccessToken: "new", Connected: true})

	assert.Equal(t, "old", session.AccessToken(SystemCRM))
	assert.Equal(t, "new", refreshed.AccessToken(SystemCRM))
	assert.Equal(t, "acc", refreshed.AccessToken(SystemAccounting))
	assert.Equal(t, session.TenantID(), refreshed.TenantID())

	// Mutating the tenant afterwards does not leak into an existing session
	tenant.Disconnect(SystemCRM)
	assert.True(t, session.IsConnected(SystemCRM))

	rescoped := session.WithAccountingFileID("99")
	assert.Equal(t, "78831", session.AccountingFileID())
	assert.Equal(t, "99", rescoped.AccountingFileID())
}

func TestTenantSession_RequireConnected(t *testing.T) {
	id := uuid.New()
	session := NewTenantSession(id, "4411", "86536",
		Credential{Connected: true},
		Credential{Connected: false},
	)

	err := session.RequireConnected()
	require.Error(t, err)
	var tnc *TenantNotConnectedError
	require.ErrorAs(t, err, &tnc)
	assert.Equal(t, SystemAccounting, tnc.System)
	assert.Equal(t, id.String(), tnc.TenantID)

	connected := session.WithCredential(SystemAccounting, Credential{Connected: true})
	assert.NoError(t, connected.RequireConnected())
}

func TestCredential_Expiring(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, Credential{}.Expiring(now, time.Minute))
	assert.True(t, Credential{AccessToken: "t"}.Expiring(now, time.Minute))
	assert.True(t, Credential{AccessToken: "t", ExpiresAt: now.Add(30 * time.Second)}.Expiring(now, time.Minute))
	assert.False(t, Credential{AccessToken: "t", ExpiresAt: now.Add(time.Hour)}.Expiring(now, time.Minute))
}
