package integration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

func TestCompanySynchronizer_BothDirections(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectCompanies, "201", map[string]string{
		"name":    "Analytical Engines",
		"address": "1 Main St",
		"city":    "London",
	})
	sync := NewCompanySynchronizer(testDeps(crm, acc, mappings))
	session := connectedSession()

	out, err := sync.Reconcile(ctx, session, integration.DirectionCRMToAccounting, integration.Record{ID: "201"})
	require.NoError(t, err)
	require.True(t, out.Created)
	company := acc.companies[out.DestinationID]
	assert.Equal(t, "Analytical Engines", company.Name)

	company.TradingName = "AE"
	acc.companies[company.ID] = company

	back, err := sync.Reconcile(ctx, session, integration.DirectionAccountingToCRM, integration.Record{ID: company.ID})
	require.NoError(t, err)
	assert.False(t, back.Created)
	assert.Equal(t, "201", back.DestinationID)
	assert.Equal(t, "AE", crm.props(integration.CRMObjectCompanies, "201")["trading_name"])
	assert.Equal(t, 1, crm.count(integration.CRMObjectCompanies))
}

func TestCompanySynchronizer_RequiresProperties(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectCompanies, "201", map[string]string{})
	sync := NewCompanySynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "201"})

	require.Error(t, err)
	assert.Equal(t, integration.StateFailed, out.State)
	assert.Empty(t, acc.companies)
}

func TestCompanySynchronizer_InvalidDirection(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	sync := NewCompanySynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.Direction("SIDEWAYS"), integration.Record{ID: "1"})

	assert.ErrorIs(t, err, integration.ErrInvalidDirection)
	assert.Equal(t, integration.StateFailed, out.State)
}
