package integration

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// CRM property names read and written by the mappers
const (
	propFirstName       = "firstname"
	propLastName        = "lastname"
	propEmail           = "email"
	propPhone           = "phone"
	propSalutation      = "salutation"
	propAddress         = "address"
	propCity            = "city"
	propState           = "state"
	propZip             = "zip"
	propCountry         = "country"
	propContactType     = "contact_type"
	propName            = "name"
	propTradingName     = "trading_name"
	propDealName        = "dealname"
	propDealStage       = "dealstage"
	propAmount          = "amount"
	propInvoiceNumber   = "invoice_number"
	propDatePaid        = "date_paid"
	propBankAccount     = "bank_account"
	propDescription     = "description"
	propTaxCode         = "tax_code"
	propQuantity        = "quantity"
	propPrice           = "price"
	propProductAmount   = "product_amount"
	propItemID          = "item_id"
	propSKU             = "hs_sku"
	propDiscountPercent = "hs_discount_percentage"
)

var phoneDisallowed = regexp.MustCompile(`[^A-Za-z0-9\-]`)

// NormalizePhone keeps letters, digits and hyphens, then drops the hyphens
func NormalizePhone(raw string) string {
	return strings.ReplaceAll(phoneDisallowed.ReplaceAllString(raw, ""), "-", "")
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

// ToAccountingContact maps a CRM contact. The second result lists contact_type tags
// that are not one of the known categories, for the caller to log.
func ToAccountingContact(obj integration.CRMObject) (integration.AccountingContact, []string) {
	address := integration.AccountingAddress{
		Street:   obj.Get(propAddress),
		City:     obj.Get(propCity),
		State:    obj.Get(propState),
		Postcode: obj.Get(propZip),
		Country:  obj.Get(propCountry),
	}
	types := integration.ParseContactTypes(obj.Get(propContactType))

	return integration.AccountingContact{
		Salutation:    obj.Get(propSalutation),
		GivenName:     obj.Get(propFirstName),
		FamilyName:    obj.Get(propLastName),
		EmailAddress:  obj.Get(propEmail),
		PrimaryPhone:  NormalizePhone(obj.Get(propPhone)),
		PostalAddress: address,
		OtherAddress:  address,
		Types:         types.Flags,
	}, types.Unrecognized
}

// ToCRMContact maps an accounting contact to CRM properties
func ToCRMContact(c integration.AccountingContact) map[string]string {
	return map[string]string{
		propFirstName:   c.GivenName,
		propLastName:    c.FamilyName,
		propEmail:       c.EmailAddress,
		propPhone:       c.PrimaryPhone,
		propSalutation:  c.Salutation,
		propAddress:     c.PostalAddress.Street,
		propCity:        c.PostalAddress.City,
		propState:       c.PostalAddress.State,
		propZip:         c.PostalAddress.Postcode,
		propCountry:     c.PostalAddress.Country,
		propContactType: c.Types.Join(),
	}
}

// ---------------------------------------------------------------------------
// Companies
// ---------------------------------------------------------------------------

// ToAccountingCompany maps a CRM company.
// LongDescription joins the address parts with single spaces, empty parts included.
func ToAccountingCompany(obj integration.CRMObject) integration.AccountingCompany {
	return integration.AccountingCompany{
		Name:         obj.Get(propName),
		CompanyEmail: obj.Get(propEmail),
		TradingName:  obj.Get(propTradingName),
		LongDescription: strings.Join([]string{
			obj.Get(propAddress),
			obj.Get(propCity),
			obj.Get(propState),
			obj.Get(propCountry),
			obj.Get(propZip),
		}, " "),
	}
}

// ToCRMCompany maps an accounting company to CRM properties
func ToCRMCompany(c integration.AccountingCompany) map[string]string {
	return map[string]string{
		propName:        c.Name,
		propEmail:       c.CompanyEmail,
		propTradingName: c.TradingName,
	}
}

// ---------------------------------------------------------------------------
// Deals and invoices
// ---------------------------------------------------------------------------

// PaymentDetails is the result of the paid-invoice lookup; empty when unknown
type PaymentDetails struct {
	DatePaid    string
	BankAccount string
}

// ToCRMDeal maps an accounting invoice to deal properties.
// currencyField names the tenant's currency property; empty means none is written.
// Payment details are only used when the invoice is paid.
func ToCRMDeal(inv integration.AccountingInvoice, payment PaymentDetails, currencyField string) map[string]string {
	org := ""
	if inv.BillingContactOrganisationName != "" {
		org = "- " + inv.BillingContactOrganisationName
	}

	props := map[string]string{
		propDealName:      inv.BillingContactFirstName + " " + inv.BillingContactLastName + " " + org,
		propInvoiceNumber: inv.InvoiceNumber,
		propAmount:        inv.TotalAmount.String(),
		propDatePaid:      "",
		propBankAccount:   "",
	}
	if currencyField != "" {
		props[currencyField] = inv.Currency
	}
	if inv.IsPaid() {
		props[propDatePaid] = payment.DatePaid
		props[propBankAccount] = payment.BankAccount
	}
	return props
}

// ToAccountingInvoice maps a deal and its line items to a new quote.
// The total is the sum of the line amounts.
func ToAccountingInvoice(deal integration.CRMObject, lineItems []integration.CRMObject, billingContactID string, today time.Time, currencyField string) integration.AccountingInvoice {
	lines := make([]integration.AccountingLineItem, 0, len(lineItems))
	total := decimal.Zero
	for _, li := range lineItems {
		line := ToAccountingLineItem(li)
		total = total.Add(line.TotalAmount)
		lines = append(lines, line)
	}

	inv := integration.AccountingInvoice{
		InvoiceNumber:    integration.InvoiceAutoNumber,
		InvoiceType:      integration.InvoiceTypeQuote,
		TransactionType:  integration.InvoiceTransactionSale,
		Layout:           integration.InvoiceLayoutItem,
		TransactionDate:  today.Format(integration.AccountingDateLayout),
		TotalAmount:      total,
		BillingContactID: billingContactID,
		LineItems:        lines,
	}
	if currencyField != "" {
		inv.Currency = deal.Get(currencyField)
	}
	return inv
}

// ToAccountingLineItem maps one CRM line item
func ToAccountingLineItem(li integration.CRMObject) integration.AccountingLineItem {
	taxCode := li.Get(propTaxCode)
	if taxCode == "" {
		taxCode = integration.DefaultLineItemTaxCode
	}
	return integration.AccountingLineItem{
		Description:        li.Get(propDescription),
		TaxCode:            taxCode,
		TotalAmount:        parseDecimal(li.Get(propAmount)),
		Quantity:           parseDecimal(li.Get(propQuantity)),
		UnitPrice:          parseDecimal(li.Get(propPrice)),
		PercentageDiscount: parseDecimal(li.Get(propDiscountPercent)),
		InventoryID:        li.Get(propItemID),
		ItemCode:           li.Get(propSKU),
	}
}

// WriteBackAmount is the deal amount written back after an invoice is raised
func WriteBackAmount(total, factor decimal.Decimal) string {
	return total.Mul(factor).String()
}

// ---------------------------------------------------------------------------
// Items
// ---------------------------------------------------------------------------

// ToCRMProduct maps an accounting item to product properties; the item code is the SKU
func ToCRMProduct(item integration.AccountingItem) map[string]string {
	price := item.SellingPrice.String()
	return map[string]string{
		propName:          item.Code,
		propSKU:           item.Code,
		propItemID:        item.ID,
		propDescription:   item.Description,
		propPrice:         price,
		propProductAmount: price,
		propTaxCode:       integration.DefaultLineItemTaxCode,
	}
}

// parseDecimal reads a CRM number property; blanks and junk read as zero
func parseDecimal(s string) decimal.Decimal {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
