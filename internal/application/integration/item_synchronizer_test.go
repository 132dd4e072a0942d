package integration

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

func TestItemSynchronizer_CreatesProduct(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	acc.items["801"] = integration.AccountingItem{ID: "801", Code: "WIDGET-1", Description: "Widget", SellingPrice: decimal.RequireFromString("12.50")}
	sync := NewItemSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.DirectionAccountingToCRM, integration.Record{ID: "801"})
	require.NoError(t, err)

	assert.True(t, out.Created)
	props := crm.props(integration.CRMObjectProducts, out.DestinationID)
	assert.Equal(t, "WIDGET-1", props["hs_sku"])
	assert.Equal(t, "12.5", props["price"])
	assert.Equal(t, "801", props["item_id"])
}

func TestItemSynchronizer_DuplicateSKULinksNewestProduct(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectProducts, "3001", map[string]string{"hs_sku": "WIDGET-1"})
	crm.put(integration.CRMObjectProducts, "3002", map[string]string{"hs_sku": "WIDGET-1"})
	acc.items["801"] = integration.AccountingItem{ID: "801", Code: "WIDGET-1", SellingPrice: decimal.NewFromInt(5)}
	sync := NewItemSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionAccountingToCRM, integration.Record{ID: "801"})
	require.NoError(t, err)

	assert.Equal(t, "3002", out.DestinationID)
	assert.True(t, out.Visited(integration.StateSearchAndLink))
	assert.Equal(t, 2, crm.count(integration.CRMObjectProducts))

	mapping, err := mappings.FindByAccountingID(ctx, integration.EntityKindItem, "801")
	require.NoError(t, err)
	assert.Equal(t, "3002", mapping.CRMID)
}

func TestItemSynchronizer_RejectsCRMToAccounting(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	sync := NewItemSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "3001"})

	assert.ErrorIs(t, err, integration.ErrUnsupportedDirection)
	assert.Equal(t, integration.StateFailed, out.State)
	assert.Equal(t, 0, crm.count(integration.CRMObjectProducts))
}
