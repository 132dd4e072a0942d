package integration

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"+61 (2) 9876-5432", "61298765432"},
		{"0400-123-456", "0400123456"},
		{"ext. 12a", "ext12a"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizePhone(tt.raw))
		})
	}
}

func TestToAccountingContact(t *testing.T) {
	obj := integration.CRMObject{ID: "101", Properties: map[string]string{
		"firstname":    "Ada",
		"lastname":     "Lovelace",
		"email":        "ada@example.com",
		"phone":        "+61 400-123-456",
		"salutation":   "Ms",
		"address":      "1 Main St",
		"city":         "Sydney",
		"state":        "NSW",
		"zip":          "2000",
		"country":      "Australia",
		"contact_type": "Customer;wholesaler;supplier",
	}}

	contact, unrecognized := ToAccountingContact(obj)

	assert.Equal(t, "Ada", contact.GivenName)
	assert.Equal(t, "Lovelace", contact.FamilyName)
	assert.Equal(t, "61400123456", contact.PrimaryPhone)
	assert.Equal(t, "Ms", contact.Salutation)
	assert.Equal(t, contact.PostalAddress, contact.OtherAddress)
	assert.Equal(t, "2000", contact.PostalAddress.Postcode)
	assert.True(t, contact.Types.IsCustomer)
	assert.True(t, contact.Types.IsSupplier)
	assert.False(t, contact.Types.IsPartner)
	assert.Equal(t, []string{"wholesaler"}, unrecognized)
}

func TestToAccountingContact_MissingFields(t *testing.T) {
	contact, unrecognized := ToAccountingContact(integration.CRMObject{ID: "1"})
	assert.Empty(t, contact.GivenName)
	assert.Empty(t, contact.PrimaryPhone)
	assert.Empty(t, contact.Types.Tags())
	assert.Empty(t, unrecognized)
}

func TestContactMapping_RoundTrip(t *testing.T) {
	t.Run("crm to accounting to crm", func(t *testing.T) {
		props := map[string]string{
			"firstname":    "Ada",
			"lastname":     "Lovelace",
			"email":        "ada@example.com",
			"phone":        "02-9876-5432",
			"salutation":   "Ms",
			"address":      "1 Main St",
			"city":         "Sydney",
			"state":        "NSW",
			"zip":          "2000",
			"country":      "Australia",
			"contact_type": "partner;contractor",
		}

		acc, _ := ToAccountingContact(integration.CRMObject{Properties: props})
		back := ToCRMContact(acc)

		want := make(map[string]string, len(props))
		for k, v := range props {
			want[k] = v
		}
		want["phone"] = "0298765432"
		assert.Equal(t, want, back)
	})

	t.Run("accounting to crm to accounting", func(t *testing.T) {
		address := integration.AccountingAddress{Street: "2 High St", City: "Perth", State: "WA", Postcode: "6000", Country: "Australia"}
		acc := integration.AccountingContact{
			Salutation:    "Dr",
			GivenName:     "Grace",
			FamilyName:    "Hopper",
			EmailAddress:  "grace@example.com",
			PrimaryPhone:  "0412345678",
			PostalAddress: address,
			OtherAddress:  address,
			Types:         integration.ContactTypeFlags{IsPartner: true, IsCustomer: true, IsSupplier: true, IsContractor: true},
		}

		back, unrecognized := ToAccountingContact(integration.CRMObject{Properties: ToCRMContact(acc)})
		assert.Equal(t, acc, back)
		assert.Empty(t, unrecognized)
	})
}

func TestToCRMContact_TagOrder(t *testing.T) {
	props := ToCRMContact(integration.AccountingContact{
		Types: integration.ContactTypeFlags{IsContractor: true, IsPartner: true},
	})
	assert.Equal(t, "partner;contractor", props["contact_type"])

	props = ToCRMContact(integration.AccountingContact{})
	assert.Equal(t, "", props["contact_type"])
}

func TestCompanyMapping(t *testing.T) {
	obj := integration.CRMObject{Properties: map[string]string{
		"name":         "Acme",
		"email":        "ops@acme.test",
		"trading_name": "Acme Trading",
		"address":      "1 Main St",
		"city":         "Sydney",
		"country":      "Australia",
		"zip":          "2000",
	}}

	company := ToAccountingCompany(obj)
	assert.Equal(t, "Acme", company.Name)
	assert.Equal(t, "ops@acme.test", company.CompanyEmail)
	assert.Equal(t, "Acme Trading", company.TradingName)
	// state is empty and collapses to a double space
	assert.Equal(t, "1 Main St Sydney  Australia 2000", company.LongDescription)

	props := ToCRMCompany(company)
	assert.Equal(t, map[string]string{"name": "Acme", "email": "ops@acme.test", "trading_name": "Acme Trading"}, props)
}

func TestToCRMDeal(t *testing.T) {
	paid := integration.AccountingInvoice{
		InvoiceNumber:                  "INV-100",
		Currency:                       "AUD",
		TotalAmount:                    decimal.RequireFromString("250.50"),
		BillingContactFirstName:        "Ada",
		BillingContactLastName:         "Lovelace",
		BillingContactOrganisationName: "Acme",
		PaymentStatus:                  integration.InvoicePaymentStatusPaid,
	}
	payment := PaymentDetails{DatePaid: "2024-05-03", BankAccount: "Business Cheque"}

	t.Run("paid with currency field", func(t *testing.T) {
		props := ToCRMDeal(paid, payment, "deal_currency_code")
		assert.Equal(t, "Ada Lovelace - Acme", props["dealname"])
		assert.Equal(t, "INV-100", props["invoice_number"])
		assert.Equal(t, "250.5", props["amount"])
		assert.Equal(t, "AUD", props["deal_currency_code"])
		assert.NotContains(t, props, "deal_currency")
		assert.Equal(t, "2024-05-03", props["date_paid"])
		assert.Equal(t, "Business Cheque", props["bank_account"])
	})

	t.Run("unpaid ignores payment details", func(t *testing.T) {
		unpaid := paid
		unpaid.PaymentStatus = integration.InvoicePaymentStatusUnpaid
		unpaid.BillingContactOrganisationName = ""

		props := ToCRMDeal(unpaid, payment, "")
		assert.Equal(t, "Ada Lovelace ", props["dealname"])
		assert.Equal(t, "", props["date_paid"])
		assert.Equal(t, "", props["bank_account"])
		assert.NotContains(t, props, "deal_currency")
		assert.NotContains(t, props, "deal_currency_code")
	})
}

func TestToAccountingInvoice(t *testing.T) {
	deal := integration.CRMObject{ID: "55", Properties: map[string]string{
		"dealname":      "Big deal",
		"amount":        "999",
		"deal_currency": "NZD",
	}}
	lines := []integration.CRMObject{
		{ID: "7001", Properties: map[string]string{
			"description": "Widget", "amount": "20.00", "quantity": "2", "price": "10",
			"item_id": "4001", "hs_sku": "W-1",
		}},
		{ID: "7002", Properties: map[string]string{
			"description": "Service", "amount": "5.5", "quantity": "1", "price": "5.5",
			"tax_code": "FRE", "hs_discount_percentage": "10",
		}},
	}
	today := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

	inv := ToAccountingInvoice(deal, lines, "301", today, "deal_currency")

	assert.Equal(t, integration.InvoiceAutoNumber, inv.InvoiceNumber)
	assert.Equal(t, "Quote", inv.InvoiceType)
	assert.Equal(t, "S", inv.TransactionType)
	assert.Equal(t, "I", inv.Layout)
	assert.Equal(t, "2024-05-01", inv.TransactionDate)
	assert.Equal(t, "NZD", inv.Currency)
	assert.Equal(t, "301", inv.BillingContactID)
	assert.True(t, decimal.RequireFromString("25.5").Equal(inv.TotalAmount))

	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, "G1", inv.LineItems[0].TaxCode)
	assert.True(t, inv.LineItems[0].PercentageDiscount.IsZero())
	assert.Equal(t, "4001", inv.LineItems[0].InventoryID)
	assert.Equal(t, "W-1", inv.LineItems[0].ItemCode)
	assert.Equal(t, "FRE", inv.LineItems[1].TaxCode)
	assert.Equal(t, "10", inv.LineItems[1].PercentageDiscount.String())

	noCurrency := ToAccountingInvoice(deal, nil, "301", today, "")
	assert.Empty(t, noCurrency.Currency)
	assert.True(t, noCurrency.TotalAmount.IsZero())
}

func TestWriteBackAmount(t *testing.T) {
	factor := decimal.RequireFromString("1.10")
	assert.Equal(t, "110", WriteBackAmount(decimal.NewFromInt(100), factor))
	assert.Equal(t, "28.05", WriteBackAmount(decimal.RequireFromString("25.5"), factor))
}

func TestToCRMProduct(t *testing.T) {
	props := ToCRMProduct(integration.AccountingItem{
		ID:           "4001",
		Code:         "W-1",
		Description:  "Widget",
		SellingPrice: decimal.RequireFromString("12.50"),
	})
	assert.Equal(t, map[string]string{
		"name":           "W-1",
		"hs_sku":         "W-1",
		"item_id":        "4001",
		"description":    "Widget",
		"price":          "12.5",
		"product_amount": "12.5",
		"tax_code":       "G1",
	}, props)
}
