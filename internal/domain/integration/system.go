package integration

// ---------------------------------------------------------------------------
// System
// ---------------------------------------------------------------------------

// System identifies one of the two remote systems a tenant is connected to.
type System string

const (
	// SystemCRM is the customer relationship system (HubSpot).
	SystemCRM System = "CRM"
	// SystemAccounting is the accounting system (Saasu).
	SystemAccounting System = "ACCOUNTING"
)

// IsValid checks if the system is known
func (s System) IsValid() bool {
	switch s {
	case SystemCRM, SystemAccounting:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s System) String() string {
	return string(s)
}

// Other returns the opposite system
func (s System) Other() System {
	if s == SystemCRM {
		return SystemAccounting
	}
	return SystemCRM
}

// ---------------------------------------------------------------------------
// Direction
// ---------------------------------------------------------------------------

// Direction tells a synchronizer which side originated the incoming record.
type Direction string

const (
	// DirectionCRMToAccounting carries a CRM record into the accounting system.
	DirectionCRMToAccounting Direction = "CRM_TO_ACCOUNTING"
	// DirectionAccountingToCRM carries an accounting record into the CRM.
	DirectionAccountingToCRM Direction = "ACCOUNTING_TO_CRM"
)

// IsValid checks if the direction is known
func (d Direction) IsValid() bool {
	switch d {
	case DirectionCRMToAccounting, DirectionAccountingToCRM:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (d Direction) String() string {
	return string(d)
}

// Source returns the system the record comes from
func (d Direction) Source() System {
	if d == DirectionCRMToAccounting {
		return SystemCRM
	}
	return SystemAccounting
}

// Destination returns the system the counterpart lives in
func (d Direction) Destination() System {
	return d.Source().Other()
}

// ParseDirection accepts the canonical names plus the short forms used by the CLI.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case string(DirectionCRMToAccounting), "crm-to-accounting", "a-to-b":
		return DirectionCRMToAccounting, nil
	case string(DirectionAccountingToCRM), "accounting-to-crm", "b-to-a":
		return DirectionAccountingToCRM, nil
	default:
		return "", ErrInvalidDirection
	}
}

// ---------------------------------------------------------------------------
// EntityKind
// ---------------------------------------------------------------------------

// EntityKind is the kind of record kept in sync.
type EntityKind string

const (
	// EntityKindContact links CRM contacts with accounting contacts
	EntityKindContact EntityKind = "contact"
	// EntityKindCompany links CRM companies with accounting companies
	EntityKindCompany EntityKind = "company"
	// EntityKindDeal links CRM deals with accounting invoices
	EntityKindDeal EntityKind = "deal"
	// EntityKindItem links CRM products with accounting inventory items
	EntityKindItem EntityKind = "item"
)

// AllEntityKinds returns every kind in the order the daily poll walks them.
func AllEntityKinds() []EntityKind {
	return []EntityKind{EntityKindItem, EntityKindContact, EntityKindCompany, EntityKindDeal}
}

// IsValid checks if the kind is known
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityKindContact, EntityKindCompany, EntityKindDeal, EntityKindItem:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (k EntityKind) String() string {
	return string(k)
}

// ParseEntityKind parses a kind name, accepting the plural forms used in URLs and the CLI.
func ParseEntityKind(s string) (EntityKind, error) {
	switch s {
	case "contact", "contacts":
		return EntityKindContact, nil
	case "company", "companies":
		return EntityKindCompany, nil
	case "deal", "deals", "invoice", "invoices":
		return EntityKindDeal, nil
	case "item", "items", "product", "products":
		return EntityKindItem, nil
	default:
		return "", ErrInvalidEntityKind
	}
}
