package integration

import "context"

// ---------------------------------------------------------------------------
// CRM records
// ---------------------------------------------------------------------------

// CRMObjectType is a CRM object collection name as used in API paths.
type CRMObjectType string

const (
	CRMObjectContacts  CRMObjectType = "contacts"
	CRMObjectCompanies CRMObjectType = "companies"
	CRMObjectDeals     CRMObjectType = "deals"
	CRMObjectLineItems CRMObjectType = "line_items"
	CRMObjectProducts  CRMObjectType = "products"
)

// String returns the string representation
func (t CRMObjectType) String() string {
	return string(t)
}

// EntityKind returns the synchronized kind the collection belongs to.
// Line items have no mapping of their own and report the deal kind.
func (t CRMObjectType) EntityKind() EntityKind {
	switch t {
	case CRMObjectContacts:
		return EntityKindContact
	case CRMObjectCompanies:
		return EntityKindCompany
	case CRMObjectDeals, CRMObjectLineItems:
		return EntityKindDeal
	case CRMObjectProducts:
		return EntityKindItem
	default:
		return ""
	}
}

// CRMObjectTypeFor returns the collection that stores kind on the CRM side
func CRMObjectTypeFor(kind EntityKind) CRMObjectType {
	switch kind {
	case EntityKindContact:
		return CRMObjectContacts
	case EntityKindCompany:
		return CRMObjectCompanies
	case EntityKindDeal:
		return CRMObjectDeals
	case EntityKindItem:
		return CRMObjectProducts
	default:
		return ""
	}
}

// CRMObject is a CRM record: an id and its flat string properties.
// Missing or null properties read as the empty string.
type CRMObject struct {
	ID         string
	Properties map[string]string
}

// Get returns a property value or "" when absent
func (o *CRMObject) Get(name string) string {
	if o == nil || o.Properties == nil {
		return ""
	}
	return o.Properties[name]
}

// HasProperties reports whether the CRM returned any property at all
func (o *CRMObject) HasProperties() bool {
	return o != nil && len(o.Properties) > 0
}

// ---------------------------------------------------------------------------
// CRMGateway port
// ---------------------------------------------------------------------------

// CRMGateway is the CRM's REST surface as the synchronizers need it.
// Endpoint paths and property lists are owned by the adapter.
// Errors are classified into the package's error taxonomy.
type CRMGateway interface {
	GetObject(ctx context.Context, session TenantSession, objectType CRMObjectType, id string) (*CRMObject, error)
	CreateObject(ctx context.Context, session TenantSession, objectType CRMObjectType, properties map[string]string) (*CRMObject, error)
	UpdateObject(ctx context.Context, session TenantSession, objectType CRMObjectType, id string, properties map[string]string) (*CRMObject, error)
	// ListAssociatedIDs returns ids of to-objects associated with the from-object, in CRM order
	ListAssociatedIDs(ctx context.Context, session TenantSession, from CRMObjectType, id string, to CRMObjectType) ([]string, error)
	// Associate creates the default association; repeating it is harmless
	Associate(ctx context.Context, session TenantSession, from CRMObjectType, fromID string, to CRMObjectType, toID string) error
	// SearchProductsBySKU returns products with the sku, newest first
	SearchProductsBySKU(ctx context.Context, session TenantSession, sku string) ([]CRMObject, error)
	// FindContactIDByEmail returns the contact id for email, or a NotFoundError
	FindContactIDByEmail(ctx context.Context, session TenantSession, email string) (string, error)
}
