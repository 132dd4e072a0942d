package integration

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

const testFileID = "86536"

func connectedSession() integration.TenantSession {
	cred := integration.Credential{AccessToken: "token", Connected: true, ExpiresAt: time.Now().Add(time.Hour)}
	return integration.NewTenantSession(uuid.New(), "portal-1", testFileID, cred, cred)
}

func fixedNow() time.Time {
	return time.Date(2024, 3, 15, 9, 30, 0, 0, time.UTC)
}

func testDeps(crm *fakeCRM, acc *fakeAccounting, mappings *memoryMappings) SynchronizerDeps {
	opts := DefaultSyncOptions()
	opts.Now = fixedNow
	opts.QuoteStages = map[string][]string{testFileID: {"quote"}}
	return SynchronizerDeps{CRM: crm, Accounting: acc, Mappings: mappings, Options: opts}
}

// ---------------------------------------------------------------------------
// memoryMappings
// ---------------------------------------------------------------------------

type memoryMappings struct {
	mu   sync.Mutex
	rows []*integration.IdentityMapping
	// beforeCreate runs once ahead of the next Create, outside the lock
	beforeCreate func()
}

func newMemoryMappings() *memoryMappings {
	return &memoryMappings{}
}

func (m *memoryMappings) find(kind integration.EntityKind, match func(*integration.IdentityMapping) bool) (*integration.IdentityMapping, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Kind == kind && !row.IsDeleted() && match(row) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, integration.ErrMappingNotFound
}

func (m *memoryMappings) FindByCRMID(_ context.Context, kind integration.EntityKind, crmID string) (*integration.IdentityMapping, error) {
	return m.find(kind, func(r *integration.IdentityMapping) bool { return r.CRMID == crmID })
}

func (m *memoryMappings) FindByAccountingID(_ context.Context, kind integration.EntityKind, accountingID string) (*integration.IdentityMapping, error) {
	return m.find(kind, func(r *integration.IdentityMapping) bool { return r.AccountingID == accountingID })
}

func (m *memoryMappings) Create(_ context.Context, kind integration.EntityKind, crmID, accountingID string) (*integration.IdentityMapping, error) {
	if hook := m.beforeCreate; hook != nil {
		m.beforeCreate = nil
		hook()
	}

	mapping, err := integration.NewIdentityMapping(kind, crmID, accountingID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.Kind == kind && !row.IsDeleted() && (row.CRMID == crmID || row.AccountingID == accountingID) {
			return nil, integration.ErrDuplicateMapping
		}
	}
	m.rows = append(m.rows, mapping)
	cp := *mapping
	return &cp, nil
}

func (m *memoryMappings) repoint(mapping *integration.IdentityMapping, system integration.System, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == mapping.ID {
			if err := row.Repoint(system, id); err != nil {
				return err
			}
			return mapping.Repoint(system, id)
		}
	}
	return integration.ErrMappingNotFound
}

func (m *memoryMappings) UpdateAccountingID(_ context.Context, mapping *integration.IdentityMapping, accountingID string) error {
	return m.repoint(mapping, integration.SystemAccounting, accountingID)
}

func (m *memoryMappings) UpdateCRMID(_ context.Context, mapping *integration.IdentityMapping, crmID string) error {
	return m.repoint(mapping, integration.SystemCRM, crmID)
}

func (m *memoryMappings) Delete(_ context.Context, mapping *integration.IdentityMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.rows {
		if row.ID == mapping.ID {
			now := time.Now()
			row.DeletedAt = &now
			return nil
		}
	}
	return integration.ErrMappingNotFound
}

func (m *memoryMappings) CountByKind(_ context.Context, kind integration.EntityKind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, row := range m.rows {
		if row.Kind == kind && !row.IsDeleted() {
			n++
		}
	}
	return n, nil
}

// seed inserts a mapping directly
func (m *memoryMappings) seed(kind integration.EntityKind, crmID, accountingID string) {
	mapping, _ := integration.NewIdentityMapping(kind, crmID, accountingID)
	m.mu.Lock()
	m.rows = append(m.rows, mapping)
	m.mu.Unlock()
}

// ---------------------------------------------------------------------------
// fakeCRM
// ---------------------------------------------------------------------------

type fakeCRM struct {
	mu      sync.Mutex
	nextID  int
	objects map[integration.CRMObjectType]map[string]map[string]string
	assoc   map[string][]string
	updates []string
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		nextID:  1000,
		objects: map[integration.CRMObjectType]map[string]map[string]string{},
		assoc:   map[string][]string{},
	}
}

func assocKey(from integration.CRMObjectType, id string, to integration.CRMObjectType) string {
	return string(from) + "/" + id + "/" + string(to)
}

// put stores an object under id
func (c *fakeCRM) put(objectType integration.CRMObjectType, id string, props map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.objects[objectType] == nil {
		c.objects[objectType] = map[string]map[string]string{}
	}
	c.objects[objectType][id] = copyProps(props)
}

// link stores an association without checks
func (c *fakeCRM) link(from integration.CRMObjectType, fromID string, to integration.CRMObjectType, toIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := assocKey(from, fromID, to)
	c.assoc[key] = append(c.assoc[key], toIDs...)
}

func (c *fakeCRM) props(objectType integration.CRMObjectType, id string) map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyProps(c.objects[objectType][id])
}

func (c *fakeCRM) count(objectType integration.CRMObjectType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects[objectType])
}

func (c *fakeCRM) associated(from integration.CRMObjectType, fromID string, to integration.CRMObjectType) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.assoc[assocKey(from, fromID, to)]...)
}

func (c *fakeCRM) GetObject(_ context.Context, _ integration.TenantSession, objectType integration.CRMObjectType, id string) (*integration.CRMObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	props, ok := c.objects[objectType][id]
	if !ok {
		return nil, &integration.NotFoundError{System: integration.SystemCRM, Kind: objectType.EntityKind(), ID: id}
	}
	return &integration.CRMObject{ID: id, Properties: copyProps(props)}, nil
}

func (c *fakeCRM) CreateObject(_ context.Context, _ integration.TenantSession, objectType integration.CRMObjectType, properties map[string]string) (*integration.CRMObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if key, unique := uniqueProperty(objectType); unique && properties[key] != "" {
		for _, existing := range c.objects[objectType] {
			if existing[key] == properties[key] {
				return nil, &integration.DuplicateKeyError{System: integration.SystemCRM, Kind: objectType.EntityKind(), Key: properties[key]}
			}
		}
	}

	c.nextID++
	id := strconv.Itoa(c.nextID)
	if c.objects[objectType] == nil {
		c.objects[objectType] = map[string]map[string]string{}
	}
	c.objects[objectType][id] = copyProps(properties)
	return &integration.CRMObject{ID: id, Properties: copyProps(properties)}, nil
}

func (c *fakeCRM) UpdateObject(_ context.Context, _ integration.TenantSession, objectType integration.CRMObjectType, id string, properties map[string]string) (*integration.CRMObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	props, ok := c.objects[objectType][id]
	if !ok {
		return nil, &integration.NotFoundError{System: integration.SystemCRM, Kind: objectType.EntityKind(), ID: id}
	}
	for k, v := range properties {
		props[k] = v
	}
	c.updates = append(c.updates, string(objectType)+"/"+id)
	return &integration.CRMObject{ID: id, Properties: copyProps(props)}, nil
}

func (c *fakeCRM) ListAssociatedIDs(_ context.Context, _ integration.TenantSession, from integration.CRMObjectType, id string, to integration.CRMObjectType) ([]string, error) {
	return c.associated(from, id, to), nil
}

func (c *fakeCRM) Associate(_ context.Context, _ integration.TenantSession, from integration.CRMObjectType, fromID string, to integration.CRMObjectType, toID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.objects[from][fromID]; !ok {
		return &integration.NotFoundError{System: integration.SystemCRM, Kind: from.EntityKind(), ID: fromID}
	}
	if _, ok := c.objects[to][toID]; !ok {
		return &integration.NotFoundError{System: integration.SystemCRM, Kind: to.EntityKind(), ID: toID}
	}
	key := assocKey(from, fromID, to)
	for _, existing := range c.assoc[key] {
		if existing == toID {
			return nil
		}
	}
	c.assoc[key] = append(c.assoc[key], toID)
	return nil
}

func (c *fakeCRM) SearchProductsBySKU(_ context.Context, _ integration.TenantSession, sku string) ([]integration.CRMObject, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var found []integration.CRMObject
	for id, props := range c.objects[integration.CRMObjectProducts] {
		if props["hs_sku"] == sku {
			found = append(found, integration.CRMObject{ID: id, Properties: copyProps(props)})
		}
	}
	sort.Slice(found, func(i, j int) bool {
		a, _ := strconv.Atoi(found[i].ID)
		b, _ := strconv.Atoi(found[j].ID)
		return a > b
	})
	return found, nil
}

func (c *fakeCRM) FindContactIDByEmail(_ context.Context, _ integration.TenantSession, email string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, props := range c.objects[integration.CRMObjectContacts] {
		if email != "" && props["email"] == email {
			return id, nil
		}
	}
	return "", &integration.NotFoundError{System: integration.SystemCRM, Kind: integration.EntityKindContact, ID: email}
}

func uniqueProperty(objectType integration.CRMObjectType) (string, bool) {
	switch objectType {
	case integration.CRMObjectContacts:
		return "email", true
	case integration.CRMObjectProducts:
		return "hs_sku", true
	default:
		return "", false
	}
}

func copyProps(props map[string]string) map[string]string {
	if props == nil {
		return nil
	}
	cp := make(map[string]string, len(props))
	for k, v := range props {
		cp[k] = v
	}
	return cp
}

// ---------------------------------------------------------------------------
// fakeAccounting
// ---------------------------------------------------------------------------

type fakeAccounting struct {
	mu        sync.Mutex
	nextID    int
	revision  int
	contacts  map[string]integration.AccountingContact
	companies map[string]integration.AccountingCompany
	invoices  map[string]integration.AccountingInvoice
	items     map[string]integration.AccountingItem
	payments  map[string]integration.AccountingPayment
	accounts  map[string]integration.AccountingBankAccount
	pages     map[integration.EntityKind][][]integration.Record
	listCalls int
	// listErr fails ListModified for the given page
	listErr     error
	listErrPage int
}

func newFakeAccounting() *fakeAccounting {
	return &fakeAccounting{
		nextID:    500,
		contacts:  map[string]integration.AccountingContact{},
		companies: map[string]integration.AccountingCompany{},
		invoices:  map[string]integration.AccountingInvoice{},
		items:     map[string]integration.AccountingItem{},
		payments:  map[string]integration.AccountingPayment{},
		accounts:  map[string]integration.AccountingBankAccount{},
		pages:     map[integration.EntityKind][][]integration.Record{},
	}
}

func (a *fakeAccounting) newID() string {
	a.nextID++
	return strconv.Itoa(a.nextID)
}

func (a *fakeAccounting) newRevision() string {
	a.revision++
	return "rev-" + strconv.Itoa(a.revision)
}

func (a *fakeAccounting) notFound(kind integration.EntityKind, id string) error {
	return &integration.NotFoundError{System: integration.SystemAccounting, Kind: kind, ID: id}
}

func (a *fakeAccounting) staleRevision() error {
	return &integration.RemoteError{System: integration.SystemAccounting, Status: 400, Message: "LastUpdatedId does not match"}
}

func (a *fakeAccounting) GetContact(_ context.Context, _ integration.TenantSession, id string) (*integration.AccountingContact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.contacts[id]
	if !ok {
		return nil, a.notFound(integration.EntityKindContact, id)
	}
	return &c, nil
}

func (a *fakeAccounting) CreateContact(_ context.Context, _ integration.TenantSession, contact integration.AccountingContact) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	contact.ID = a.newID()
	contact.LastUpdatedID = a.newRevision()
	a.contacts[contact.ID] = contact
	return contact.ID, nil
}

func (a *fakeAccounting) UpdateContact(_ context.Context, _ integration.TenantSession, contact integration.AccountingContact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.contacts[contact.ID]
	if !ok {
		return a.notFound(integration.EntityKindContact, contact.ID)
	}
	if existing.LastUpdatedID != contact.LastUpdatedID {
		return a.staleRevision()
	}
	contact.LastUpdatedID = a.newRevision()
	a.contacts[contact.ID] = contact
	return nil
}

func (a *fakeAccounting) DeleteContact(_ context.Context, _ integration.TenantSession, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.contacts[id]; !ok {
		return a.notFound(integration.EntityKindContact, id)
	}
	delete(a.contacts, id)
	return nil
}

func (a *fakeAccounting) GetCompany(_ context.Context, _ integration.TenantSession, id string) (*integration.AccountingCompany, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c, ok := a.companies[id]
	if !ok {
		return nil, a.notFound(integration.EntityKindCompany, id)
	}
	return &c, nil
}

func (a *fakeAccounting) CreateCompany(_ context.Context, _ integration.TenantSession, company integration.AccountingCompany) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	company.ID = a.newID()
	company.LastUpdatedID = a.newRevision()
	a.companies[company.ID] = company
	return company.ID, nil
}

func (a *fakeAccounting) UpdateCompany(_ context.Context, _ integration.TenantSession, company integration.AccountingCompany) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.companies[company.ID]
	if !ok {
		return a.notFound(integration.EntityKindCompany, company.ID)
	}
	if existing.LastUpdatedID != company.LastUpdatedID {
		return a.staleRevision()
	}
	company.LastUpdatedID = a.newRevision()
	a.companies[company.ID] = company
	return nil
}

func (a *fakeAccounting) DeleteCompany(_ context.Context, _ integration.TenantSession, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.companies[id]; !ok {
		return a.notFound(integration.EntityKindCompany, id)
	}
	delete(a.companies, id)
	return nil
}

func (a *fakeAccounting) GetInvoice(_ context.Context, _ integration.TenantSession, id string) (*integration.AccountingInvoice, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	inv, ok := a.invoices[id]
	if !ok {
		return nil, a.notFound(integration.EntityKindDeal, id)
	}
	return &inv, nil
}

func (a *fakeAccounting) CreateInvoice(_ context.Context, _ integration.TenantSession, invoice integration.AccountingInvoice) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	invoice.ID = a.newID()
	invoice.LastUpdatedID = a.newRevision()
	if invoice.InvoiceNumber == integration.InvoiceAutoNumber {
		invoice.InvoiceNumber = "INV-" + invoice.ID
	}
	a.invoices[invoice.ID] = invoice
	return invoice.ID, nil
}

func (a *fakeAccounting) UpdateInvoice(_ context.Context, _ integration.TenantSession, invoice integration.AccountingInvoice) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	existing, ok := a.invoices[invoice.ID]
	if !ok {
		return a.notFound(integration.EntityKindDeal, invoice.ID)
	}
	if existing.LastUpdatedID != invoice.LastUpdatedID {
		return a.staleRevision()
	}
	invoice.LastUpdatedID = a.newRevision()
	a.invoices[invoice.ID] = invoice
	return nil
}

func (a *fakeAccounting) DeleteInvoice(_ context.Context, _ integration.TenantSession, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.invoices[id]; !ok {
		return a.notFound(integration.EntityKindDeal, id)
	}
	delete(a.invoices, id)
	return nil
}

func (a *fakeAccounting) GetItem(_ context.Context, _ integration.TenantSession, id string) (*integration.AccountingItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	item, ok := a.items[id]
	if !ok {
		return nil, a.notFound(integration.EntityKindItem, id)
	}
	return &item, nil
}

func (a *fakeAccounting) ListModified(_ context.Context, _ integration.TenantSession, kind integration.EntityKind, _ integration.DateWindow, page int) ([]integration.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	if a.listErr != nil && page == a.listErrPage {
		return nil, a.listErr
	}
	pages := a.pages[kind]
	if page < 1 || page > len(pages) {
		return []integration.Record{}, nil
	}
	return pages[page-1], nil
}

func (a *fakeAccounting) FindInvoicePayment(_ context.Context, _ integration.TenantSession, invoiceID string) (*integration.AccountingPayment, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.payments[invoiceID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (a *fakeAccounting) GetBankAccount(_ context.Context, _ integration.TenantSession, accountID string) (*integration.AccountingBankAccount, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	acct, ok := a.accounts[accountID]
	if !ok {
		return nil, a.notFound("", accountID)
	}
	return &acct, nil
}

var (
	_ integration.IdentityMapRepository = (*memoryMappings)(nil)
	_ integration.CRMGateway            = (*fakeCRM)(nil)
	_ integration.AccountingGateway     = (*fakeAccounting)(nil)
)

// ---------------------------------------------------------------------------
// memoryTenants
// ---------------------------------------------------------------------------

type memoryTenants struct {
	mu           sync.Mutex
	tenants      map[uuid.UUID]*integration.Tenant
	disconnected []integration.System
}

func newMemoryTenants(tenants ...*integration.Tenant) *memoryTenants {
	m := &memoryTenants{tenants: map[uuid.UUID]*integration.Tenant{}}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *memoryTenants) FindByID(_ context.Context, id uuid.UUID) (*integration.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[id]
	if !ok {
		return nil, integration.ErrTenantNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memoryTenants) FindByCRMAccountID(_ context.Context, crmAccountID string) (*integration.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tenants {
		if t.CRMAccountID == crmAccountID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, integration.ErrTenantNotFound
}

func (m *memoryTenants) ListFullyConnected(ctx context.Context) ([]integration.Tenant, error) {
	all, _ := m.List(ctx)
	connected := make([]integration.Tenant, 0, len(all))
	for _, t := range all {
		if t.IsFullyConnected() {
			connected = append(connected, t)
		}
	}
	return connected, nil
}

func (m *memoryTenants) List(_ context.Context) ([]integration.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]integration.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		list = append(list, *t)
	}
	return list, nil
}

func (m *memoryTenants) Save(_ context.Context, tenant *integration.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tenant
	m.tenants[tenant.ID] = &cp
	return nil
}

func (m *memoryTenants) SaveCredential(_ context.Context, tenantID uuid.UUID, system integration.System, cred integration.Credential, accountingFileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return integration.ErrTenantNotFound
	}
	if system == integration.SystemCRM {
		t.CRM = cred
	} else {
		t.Accounting = cred
	}
	t.AccountingFileID = accountingFileID
	return nil
}

func (m *memoryTenants) MarkDisconnected(_ context.Context, tenantID uuid.UUID, system integration.System) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return integration.ErrTenantNotFound
	}
	t.Disconnect(system)
	m.disconnected = append(m.disconnected, system)
	return nil
}

// connectedTenant returns a tenant connected to both systems with tokens valid for an hour
func connectedTenant() *integration.Tenant {
	cred := integration.Credential{AccessToken: "crm-token", RefreshToken: "crm-refresh", ExpiresAt: time.Now().Add(time.Hour)}
	tenant, _ := integration.NewTenant("Acme", "4411", cred)
	tenant.ConnectAccounting(testFileID, integration.Credential{
		AccessToken: "acc-token", RefreshToken: "acc-refresh", ExpiresAt: time.Now().Add(time.Hour),
	})
	return tenant
}

// ---------------------------------------------------------------------------
// memorySyncRuns
// ---------------------------------------------------------------------------

type memorySyncRuns struct {
	mu   sync.Mutex
	runs []integration.SyncRun
}

func (m *memorySyncRuns) Save(_ context.Context, run *integration.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, *run)
	return nil
}

func (m *memorySyncRuns) ListRecent(_ context.Context, tenantID uuid.UUID, limit int) ([]integration.SyncRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.SyncRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.runs[i].TenantID == tenantID {
			out = append(out, m.runs[i])
		}
	}
	return out, nil
}

var (
	_ integration.TenantRepository  = (*memoryTenants)(nil)
	_ integration.SyncRunRepository = (*memorySyncRuns)(nil)
)
