package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

func adaProps() map[string]string {
	return map[string]string{
		"firstname":    "Ada",
		"lastname":     "Lovelace",
		"email":        "ada@example.com",
		"phone":        "0400 123 456",
		"contact_type": "Customer",
	}
}

func TestContactSynchronizer_CreateThenUpdate(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", adaProps())
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))
	session := connectedSession()

	out, err := sync.Reconcile(ctx, session, integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)
	assert.Equal(t, integration.StateDone, out.State)
	assert.True(t, out.Created)
	assert.True(t, out.Visited(integration.StateCreateCounterpart))
	require.Len(t, acc.contacts, 1)
	created := acc.contacts[out.DestinationID]
	assert.Equal(t, "Ada", created.GivenName)
	assert.Equal(t, "0400123456", created.PrimaryPhone)
	assert.True(t, created.Types.IsCustomer)

	props := adaProps()
	props["lastname"] = "King"
	crm.put(integration.CRMObjectContacts, "101", props)

	out2, err := sync.Reconcile(ctx, session, integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)
	assert.False(t, out2.Created)
	assert.True(t, out2.Visited(integration.StateFetchRevisionThenUpdate))
	assert.Equal(t, out.DestinationID, out2.DestinationID)
	assert.Equal(t, "King", acc.contacts[out.DestinationID].FamilyName)

	n, _ := mappings.CountByKind(ctx, integration.EntityKindContact)
	assert.Equal(t, int64(1), n)
}

func TestContactSynchronizer_ResolvesCompany(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", adaProps())
	crm.put(integration.CRMObjectCompanies, "201", map[string]string{"name": "Analytical Engines"})
	crm.link(integration.CRMObjectContacts, "101", integration.CRMObjectCompanies, "201")
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)

	require.Len(t, acc.companies, 1)
	companyMapping, err := mappings.FindByCRMID(ctx, integration.EntityKindCompany, "201")
	require.NoError(t, err)
	assert.Equal(t, companyMapping.AccountingID, acc.contacts[out.DestinationID].CompanyID)
	assert.Equal(t, "Analytical Engines", acc.companies[companyMapping.AccountingID].Name)

	// second pass reuses the company mapping
	_, err = sync.Reconcile(ctx, connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)
	assert.Len(t, acc.companies, 1)
}

func TestContactSynchronizer_HealsStaleLink(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", adaProps())
	mappings.seed(integration.EntityKindContact, "101", "999")
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)

	assert.True(t, out.Healed)
	assert.True(t, out.Visited(integration.StateUpdateFailedStaleLink))
	assert.NotEqual(t, "999", out.DestinationID)

	mapping, err := mappings.FindByCRMID(ctx, integration.EntityKindContact, "101")
	require.NoError(t, err)
	assert.Equal(t, out.DestinationID, mapping.AccountingID)
	n, _ := mappings.CountByKind(ctx, integration.EntityKindContact)
	assert.Equal(t, int64(1), n)
}

func TestContactSynchronizer_MissingRevision(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", adaProps())
	acc.contacts["501"] = integration.AccountingContact{ID: "501"}
	mappings.seed(integration.EntityKindContact, "101", "501")
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "101"})

	var missing *integration.MissingPrerequisiteError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "LastUpdatedId", missing.Prerequisite)
	assert.Equal(t, integration.StateFailed, out.State)
	assert.False(t, integration.IsRetryable(err))
}

func TestContactSynchronizer_ToCRMLinksExistingByEmail(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", map[string]string{"email": "ada@example.com", "firstname": "A"})
	acc.contacts["501"] = integration.AccountingContact{ID: "501", LastUpdatedID: "r1", GivenName: "Ada", EmailAddress: "ada@example.com"}
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionAccountingToCRM, integration.Record{ID: "501"})
	require.NoError(t, err)

	assert.Equal(t, "101", out.DestinationID)
	assert.False(t, out.Created)
	assert.True(t, out.Visited(integration.StateCreateFailedDuplicateKey))
	assert.True(t, out.Visited(integration.StateSearchAndLink))
	assert.Equal(t, 1, crm.count(integration.CRMObjectContacts))
	assert.Equal(t, "Ada", crm.props(integration.CRMObjectContacts, "101")["firstname"])

	mapping, err := mappings.FindByAccountingID(ctx, integration.EntityKindContact, "501")
	require.NoError(t, err)
	assert.Equal(t, "101", mapping.CRMID)
}

func TestContactSynchronizer_ToCRMAssociatesCompany(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	acc.companies["601"] = integration.AccountingCompany{ID: "601", Name: "Analytical Engines"}
	acc.contacts["501"] = integration.AccountingContact{ID: "501", GivenName: "Ada", EmailAddress: "ada@example.com", CompanyID: "601"}
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionAccountingToCRM, integration.Record{ID: "501"})
	require.NoError(t, err)
	assert.True(t, out.Visited(integration.StateLinkRelated))

	companyMapping, err := mappings.FindByAccountingID(ctx, integration.EntityKindCompany, "601")
	require.NoError(t, err)
	assert.Equal(t, []string{companyMapping.CRMID},
		crm.associated(integration.CRMObjectContacts, out.DestinationID, integration.CRMObjectCompanies))
}

func TestContactSynchronizer_ToCRMRecreatesStaleCompany(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	acc.companies["601"] = integration.AccountingCompany{ID: "601", Name: "Analytical Engines"}
	acc.contacts["501"] = integration.AccountingContact{ID: "501", GivenName: "Ada", EmailAddress: "ada@example.com", CompanyID: "601"}
	mappings.seed(integration.EntityKindCompany, "7777", "601")
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionAccountingToCRM, integration.Record{ID: "501"})
	require.NoError(t, err)

	companyMapping, err := mappings.FindByAccountingID(ctx, integration.EntityKindCompany, "601")
	require.NoError(t, err)
	assert.NotEqual(t, "7777", companyMapping.CRMID)
	assert.Equal(t, []string{companyMapping.CRMID},
		crm.associated(integration.CRMObjectContacts, out.DestinationID, integration.CRMObjectCompanies))
}

func TestContactSynchronizer_ConcurrentCreateAdoptsWinner(t *testing.T) {
	ctx := context.Background()
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	crm.put(integration.CRMObjectContacts, "101", adaProps())
	mappings.beforeCreate = func() {
		mappings.seed(integration.EntityKindContact, "101", "winner")
	}
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(ctx, connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "101"})
	require.NoError(t, err)

	assert.Equal(t, integration.StateDone, out.State)
	assert.Equal(t, integration.AnomalyDuplicateCreateRace, out.Anomaly)
	assert.Equal(t, "winner", out.DestinationID)
	n, _ := mappings.CountByKind(ctx, integration.EntityKindContact)
	assert.Equal(t, int64(1), n)
}

func TestContactSynchronizer_UsesRecordPayload(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))
	record := integration.Record{ID: "101", Payload: &integration.CRMObject{ID: "101", Properties: adaProps()}}

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.DirectionCRMToAccounting, record)
	require.NoError(t, err)
	assert.True(t, out.Created)
}

func TestContactSynchronizer_RejectsDisconnectedTenant(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))
	session := connectedSession().WithCredential(integration.SystemAccounting, integration.Credential{})

	out, err := sync.Reconcile(context.Background(), session, integration.DirectionCRMToAccounting, integration.Record{ID: "101"})

	assert.True(t, integration.IsTenantNotConnected(err))
	assert.Equal(t, integration.StateFailed, out.State)
	assert.Empty(t, acc.contacts)
}

func TestContactSynchronizer_MissingSourceRecord(t *testing.T) {
	crm, acc, mappings := newFakeCRM(), newFakeAccounting(), newMemoryMappings()
	sync := NewContactSynchronizer(testDeps(crm, acc, mappings))

	out, err := sync.Reconcile(context.Background(), connectedSession(), integration.DirectionCRMToAccounting, integration.Record{ID: "404"})

	assert.True(t, integration.IsNotFound(err))
	assert.Equal(t, integration.StateFailed, out.State)
	assert.Equal(t, []integration.ReconcileState{integration.StateStart, integration.StateFailed}, out.Trail)
}
