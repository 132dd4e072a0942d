package integration

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// Accounting records
// ---------------------------------------------------------------------------

// AccountingAddress is a postal address block
type AccountingAddress struct {
	Street   string
	City     string
	State    string
	Postcode string
	Country  string
}

// AccountingContact is a contact in the accounting system
type AccountingContact struct {
	ID string
	// LastUpdatedID is the revision marker the accounting system requires on update
	LastUpdatedID string
	Salutation    string
	GivenName     string
	FamilyName    string
	EmailAddress  string
	PrimaryPhone  string
	CompanyID     string
	PostalAddress AccountingAddress
	OtherAddress  AccountingAddress
	Types         ContactTypeFlags
}

// AccountingCompany is a company in the accounting system
type AccountingCompany struct {
	ID              string
	LastUpdatedID   string
	Name            string
	CompanyEmail    string
	TradingName     string
	LongDescription string
}

// Payment status values reported on invoices
const (
	InvoicePaymentStatusPaid   = "P"
	InvoicePaymentStatusUnpaid = "U"
)

// Invoice constants used for quotes raised from CRM deals
const (
	InvoiceTypeQuote         = "Quote"
	InvoiceTransactionSale   = "S"
	InvoiceLayoutItem        = "I"
	InvoiceAutoNumber        = "<Auto Number>"
	DefaultLineItemTaxCode   = "G1"
	AccountingDateLayout     = "2006-01-02"
	AccountingDateTimeLayout = "2006-01-02T15:04:05"
)

// AccountingInvoice is an invoice or quote in the accounting system
type AccountingInvoice struct {
	ID                             string
	LastUpdatedID                  string
	InvoiceNumber                  string
	InvoiceType                    string
	TransactionType                string
	Layout                         string
	TransactionDate                string
	Currency                       string
	TotalAmount                    decimal.Decimal
	BillingContactID               string
	BillingContactFirstName        string
	BillingContactLastName         string
	BillingContactOrganisationName string
	PaymentStatus                  string
	LineItems                      []AccountingLineItem
}

// IsPaid reports whether the invoice is fully paid
func (i *AccountingInvoice) IsPaid() bool {
	return i.PaymentStatus == InvoicePaymentStatusPaid
}

// AccountingLineItem is one line of an invoice
type AccountingLineItem struct {
	Description        string
	TaxCode            string
	TotalAmount        decimal.Decimal
	Quantity           decimal.Decimal
	UnitPrice          decimal.Decimal
	PercentageDiscount decimal.Decimal
	InventoryID        string
	ItemCode           string
}

// AccountingItem is an inventory item
type AccountingItem struct {
	ID            string
	LastUpdatedID string
	Code          string
	Description   string
	SellingPrice  decimal.Decimal
}

// AccountingPayment is a payment transaction applied to an invoice
type AccountingPayment struct {
	TransactionDate  time.Time
	PaymentAccountID string
}

// AccountingBankAccount is the account a payment was banked into
type AccountingBankAccount struct {
	ID   string
	Name string
}

// ---------------------------------------------------------------------------
// DateWindow
// ---------------------------------------------------------------------------

// DateWindow is a last-modified range for polling
type DateWindow struct {
	From time.Time
	To   time.Time
}

// NewDailyWindow returns the window from day to the next day.
// Consecutive daily windows overlap by one day so late edits are picked up.
func NewDailyWindow(day time.Time) DateWindow {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	return DateWindow{From: from, To: from.AddDate(0, 0, 1)}
}

// ---------------------------------------------------------------------------
// AccountingGateway port
// ---------------------------------------------------------------------------

// AccountingGateway is the accounting system's REST surface.
// Every call is scoped by the session's accounting file id.
// Create methods return the new record id.
type AccountingGateway interface {
	GetContact(ctx context.Context, session TenantSession, id string) (*AccountingContact, error)
	CreateContact(ctx context.Context, session TenantSession, contact AccountingContact) (string, error)
	UpdateContact(ctx context.Context, session TenantSession, contact AccountingContact) error
	DeleteContact(ctx context.Context, session TenantSession, id string) error

	GetCompany(ctx context.Context, session TenantSession, id string) (*AccountingCompany, error)
	CreateCompany(ctx context.Context, session TenantSession, company AccountingCompany) (string, error)
	UpdateCompany(ctx context.Context, session TenantSession, company AccountingCompany) error
	DeleteCompany(ctx context.Context, session TenantSession, id string) error

	GetInvoice(ctx context.Context, session TenantSession, id string) (*AccountingInvoice, error)
	CreateInvoice(ctx context.Context, session TenantSession, invoice AccountingInvoice) (string, error)
	UpdateInvoice(ctx context.Context, session TenantSession, invoice AccountingInvoice) error
	DeleteInvoice(ctx context.Context, session TenantSession, id string) error

	GetItem(ctx context.Context, session TenantSession, id string) (*AccountingItem, error)

	// ListModified returns one page (1-based) of records of kind modified inside window.
	// An empty slice marks the end of the sequence.
	ListModified(ctx context.Context, session TenantSession, kind EntityKind, window DateWindow, page int) ([]Record, error)

	// FindInvoicePayment returns the first payment applied to the invoice, or nil when there is none
	FindInvoicePayment(ctx context.Context, session TenantSession, invoiceID string) (*AccountingPayment, error)
	GetBankAccount(ctx context.Context, session TenantSession, accountID string) (*AccountingBankAccount, error)
}
