package accounting

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// saasuAddress is a postal address block
type saasuAddress struct {
	Street   string `json:"Street"`
	City     string `json:"City"`
	State    string `json:"State"`
	Postcode string `json:"Postcode"`
	Country  string `json:"Country"`
}

// saasuContact is a Saasu contact resource
type saasuContact struct {
	ID            json.Number  `json:"Id,omitempty"`
	LastUpdatedID string       `json:"LastUpdatedId,omitempty"`
	Salutation    string       `json:"Salutation,omitempty"`
	GivenName     string       `json:"GivenName"`
	FamilyName    string       `json:"FamilyName"`
	EmailAddress  string       `json:"EmailAddress,omitempty"`
	PrimaryPhone  string       `json:"PrimaryPhone,omitempty"`
	CompanyID     json.Number  `json:"CompanyId,omitempty"`
	PostalAddress saasuAddress `json:"PostalAddress"`
	OtherAddress  saasuAddress `json:"OtherAddress"`
	IsPartner     bool         `json:"IsPartner"`
	IsCustomer    bool         `json:"IsCustomer"`
	IsSupplier    bool         `json:"IsSupplier"`
	IsContractor  bool         `json:"IsContractor"`
}

// saasuCompany is a Saasu company resource
type saasuCompany struct {
	ID              json.Number `json:"Id,omitempty"`
	LastUpdatedID   string      `json:"LastUpdatedId,omitempty"`
	Name            string      `json:"Name"`
	CompanyEmail    string      `json:"CompanyEmail,omitempty"`
	TradingName     string      `json:"TradingName,omitempty"`
	LongDescription string      `json:"LongDescription,omitempty"`
}

// saasuLineItem is one invoice line
type saasuLineItem struct {
	Description        string      `json:"Description"`
	TaxCode            string      `json:"TaxCode,omitempty"`
	TotalAmount        json.Number `json:"TotalAmount"`
	Quantity           json.Number `json:"Quantity,omitempty"`
	UnitPrice          json.Number `json:"UnitPrice,omitempty"`
	PercentageDiscount json.Number `json:"PercentageDiscount,omitempty"`
	InventoryID        json.Number `json:"InventoryId,omitempty"`
	ItemCode           string      `json:"ItemCode,omitempty"`
}

// saasuInvoice is a Saasu invoice or quote resource
type saasuInvoice struct {
	TransactionID                  json.Number     `json:"TransactionId,omitempty"`
	LastUpdatedID                  string          `json:"LastUpdatedId,omitempty"`
	InvoiceNumber                  string          `json:"InvoiceNumber,omitempty"`
	InvoiceType                    string          `json:"InvoiceType,omitempty"`
	TransactionType                string          `json:"TransactionType,omitempty"`
	Layout                         string          `json:"Layout,omitempty"`
	TransactionDate                string          `json:"TransactionDate,omitempty"`
	Currency                       string          `json:"Currency,omitempty"`
	TotalAmount                    json.Number     `json:"TotalAmount,omitempty"`
	BillingContactID               json.Number     `json:"BillingContactId,omitempty"`
	BillingContactFirstName        string          `json:"BillingContactFirstName,omitempty"`
	BillingContactLastName         string          `json:"BillingContactLastName,omitempty"`
	BillingContactOrganisationName string          `json:"BillingContactOrganisationName,omitempty"`
	PaymentStatus                  string          `json:"PaymentStatus,omitempty"`
	LineItems                      []saasuLineItem `json:"LineItems,omitempty"`
}

// saasuItem is a Saasu inventory item
type saasuItem struct {
	ID            json.Number `json:"Id"`
	LastUpdatedID string      `json:"LastUpdatedId,omitempty"`
	Code          string      `json:"Code"`
	Description   string      `json:"Description"`
	SellingPrice  json.Number `json:"SellingPrice,omitempty"`
}

// saasuPayment is a payment transaction
type saasuPayment struct {
	TransactionID    json.Number `json:"TransactionId"`
	TransactionDate  string      `json:"TransactionDate"`
	PaymentAccountID json.Number `json:"PaymentAccountId"`
}

// saasuAccount is a ledger account
type saasuAccount struct {
	ID   json.Number `json:"Id"`
	Name string      `json:"Name"`
}

// List and insert envelopes
type (
	saasuContactList struct {
		Contacts []saasuContact `json:"Contacts"`
	}
	saasuCompanyList struct {
		Companies []saasuCompany `json:"Companies"`
	}
	saasuInvoiceList struct {
		Invoices []saasuInvoice `json:"Invoices"`
	}
	saasuItemList struct {
		Items []saasuItem `json:"Items"`
	}
	saasuPaymentList struct {
		PaymentTransactions []saasuPayment `json:"PaymentTransactions"`
	}
	saasuInsertResult struct {
		InsertedContactID json.Number `json:"InsertedContactId"`
		InsertedCompanyID json.Number `json:"InsertedCompanyId"`
		InsertedEntityID  json.Number `json:"InsertedEntityId"`
		LastUpdatedID     string      `json:"LastUpdatedId"`
	}
)

// saasuErrorResponse is the error body Saasu returns on 4xx/5xx
type saasuErrorResponse struct {
	Message          string `json:"Message"`
	ExceptionMessage string `json:"ExceptionMessage"`
}

func (e saasuErrorResponse) String() string {
	if e.ExceptionMessage != "" {
		return e.Message + ": " + e.ExceptionMessage
	}
	return e.Message
}

// saasuTokenRequest is the body of the refresh grant
type saasuTokenRequest struct {
	GrantType    string `json:"grant_type"`
	RefreshToken string `json:"refresh_token"`
}

// saasuTokenResponse is the authorisation endpoint response
type saasuTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
}

// fileIDFromScope extracts N from a "fileid:N" scope
func fileIDFromScope(scope string) string {
	for _, part := range strings.Fields(scope) {
		if id, ok := strings.CutPrefix(part, "fileid:"); ok {
			return id
		}
	}
	return ""
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func toNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func idNumber(id string) json.Number {
	return json.Number(strings.TrimSpace(id))
}

func toDecimal(n json.Number) decimal.Decimal {
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}

func fromAddress(a integration.AccountingAddress) saasuAddress {
	return saasuAddress{Street: a.Street, City: a.City, State: a.State, Postcode: a.Postcode, Country: a.Country}
}

func (a saasuAddress) toDomain() integration.AccountingAddress {
	return integration.AccountingAddress{Street: a.Street, City: a.City, State: a.State, Postcode: a.Postcode, Country: a.Country}
}

func fromContact(c integration.AccountingContact) saasuContact {
	return saasuContact{
		ID:            idNumber(c.ID),
		LastUpdatedID: c.LastUpdatedID,
		Salutation:    c.Salutation,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		EmailAddress:  c.EmailAddress,
		PrimaryPhone:  c.PrimaryPhone,
		CompanyID:     idNumber(c.CompanyID),
		PostalAddress: fromAddress(c.PostalAddress),
		OtherAddress:  fromAddress(c.OtherAddress),
		IsPartner:     c.Types.IsPartner,
		IsCustomer:    c.Types.IsCustomer,
		IsSupplier:    c.Types.IsSupplier,
		IsContractor:  c.Types.IsContractor,
	}
}

func (c saasuContact) toDomain() *integration.AccountingContact {
	return &integration.AccountingContact{
		ID:            c.ID.String(),
		LastUpdatedID: c.LastUpdatedID,
		Salutation:    c.Salutation,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
		EmailAddress:  c.EmailAddress,
		PrimaryPhone:  c.PrimaryPhone,
		CompanyID:     c.CompanyID.String(),
		PostalAddress: c.PostalAddress.toDomain(),
		OtherAddress:  c.OtherAddress.toDomain(),
		Types: integration.ContactTypeFlags{
			IsPartner:    c.IsPartner,
			IsCustomer:   c.IsCustomer,
			IsSupplier:   c.IsSupplier,
			IsContractor: c.IsContractor,
		},
	}
}

func fromCompany(c integration.AccountingCompany) saasuCompany {
	return saasuCompany{
		ID:              idNumber(c.ID),
		LastUpdatedID:   c.LastUpdatedID,
		Name:            c.Name,
		CompanyEmail:    c.CompanyEmail,
		TradingName:     c.TradingName,
		LongDescription: c.LongDescription,
	}
}

func (c saasuCompany) toDomain() *integration.AccountingCompany {
	return &integration.AccountingCompany{
		ID:              c.ID.String(),
		LastUpdatedID:   c.LastUpdatedID,
		Name:            c.Name,
		CompanyEmail:    c.CompanyEmail,
		TradingName:     c.TradingName,
		LongDescription: c.LongDescription,
	}
}

func fromInvoice(inv integration.AccountingInvoice) saasuInvoice {
	lines := make([]saasuLineItem, 0, len(inv.LineItems))
	for _, l := range inv.LineItems {
		lines = append(lines, saasuLineItem{
			Description:        l.Description,
			TaxCode:            l.TaxCode,
			TotalAmount:        toNumber(l.TotalAmount),
			Quantity:           toNumber(l.Quantity),
			UnitPrice:          toNumber(l.UnitPrice),
			PercentageDiscount: toNumber(l.PercentageDiscount),
			InventoryID:        idNumber(l.InventoryID),
			ItemCode:           l.ItemCode,
		})
	}
	return saasuInvoice{
		TransactionID:    idNumber(inv.ID),
		LastUpdatedID:    inv.LastUpdatedID,
		InvoiceNumber:    inv.InvoiceNumber,
		InvoiceType:      inv.InvoiceType,
		TransactionType:  inv.TransactionType,
		Layout:           inv.Layout,
		TransactionDate:  inv.TransactionDate,
		Currency:         inv.Currency,
		TotalAmount:      toNumber(inv.TotalAmount),
		BillingContactID: idNumber(inv.BillingContactID),
		LineItems:        lines,
	}
}

func (inv saasuInvoice) toDomain() *integration.AccountingInvoice {
	lines := make([]integration.AccountingLineItem, 0, len(inv.LineItems))
	for _, l := range inv.LineItems {
		lines = append(lines, integration.AccountingLineItem{
			Description:        l.Description,
			TaxCode:            l.TaxCode,
			TotalAmount:        toDecimal(l.TotalAmount),
			Quantity:           toDecimal(l.Quantity),
			UnitPrice:          toDecimal(l.UnitPrice),
			PercentageDiscount: toDecimal(l.PercentageDiscount),
			InventoryID:        l.InventoryID.String(),
			ItemCode:           l.ItemCode,
		})
	}
	return &integration.AccountingInvoice{
		ID:                             inv.TransactionID.String(),
		LastUpdatedID:                  inv.LastUpdatedID,
		InvoiceNumber:                  inv.InvoiceNumber,
		InvoiceType:                    inv.InvoiceType,
		TransactionType:                inv.TransactionType,
		Layout:                         inv.Layout,
		TransactionDate:                inv.TransactionDate,
		Currency:                       inv.Currency,
		TotalAmount:                    toDecimal(inv.TotalAmount),
		BillingContactID:               inv.BillingContactID.String(),
		BillingContactFirstName:        inv.BillingContactFirstName,
		BillingContactLastName:         inv.BillingContactLastName,
		BillingContactOrganisationName: inv.BillingContactOrganisationName,
		PaymentStatus:                  inv.PaymentStatus,
		LineItems:                      lines,
	}
}

func (i saasuItem) toDomain() *integration.AccountingItem {
	return &integration.AccountingItem{
		ID:            i.ID.String(),
		LastUpdatedID: i.LastUpdatedID,
		Code:          i.Code,
		Description:   i.Description,
		SellingPrice:  toDecimal(i.SellingPrice),
	}
}

// parseSaasuTime accepts Saasu's date-time and date forms
func parseSaasuTime(s string) (time.Time, bool) {
	for _, layout := range []string{integration.AccountingDateTimeLayout, time.RFC3339, integration.AccountingDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
