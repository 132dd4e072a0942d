package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseContactTypes(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		want         ContactTypeFlags
		unrecognized []string
	}{
		{"empty", "", ContactTypeFlags{}, nil},
		{"single bare tag", "customer", ContactTypeFlags{IsCustomer: true}, nil},
		{"single tag mixed case", "Supplier", ContactTypeFlags{IsSupplier: true}, nil},
		{"multiple tags", "partner;contractor", ContactTypeFlags{IsPartner: true, IsContractor: true}, nil},
		{"all tags with spaces", " partner ; CUSTOMER;supplier;contractor ", ContactTypeFlags{true, true, true, true}, nil},
		{"unrecognized tag kept aside", "customer;Reseller", ContactTypeFlags{IsCustomer: true}, []string{"Reseller"}},
		{"only unrecognized", "vip", ContactTypeFlags{}, []string{"vip"}},
		{"empty segments", ";;customer;", ContactTypeFlags{IsCustomer: true}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseContactTypes(tt.raw)
			assert.Equal(t, tt.want, got.Flags)
			assert.Equal(t, tt.unrecognized, got.Unrecognized)
		})
	}
}

func TestContactTypeFlags_Join(t *testing.T) {
	assert.Equal(t, "", ContactTypeFlags{}.Join())
	assert.Equal(t, "customer", ContactTypeFlags{IsCustomer: true}.Join())
	assert.Equal(t, "partner;customer;supplier;contractor", ContactTypeFlags{true, true, true, true}.Join())
	assert.Equal(t, "supplier;contractor", ContactTypeFlags{IsContractor: true, IsSupplier: true}.Join())
}

func TestContactTypes_RoundTrip(t *testing.T) {
	for _, flags := range []ContactTypeFlags{
		{},
		{IsPartner: true},
		{IsCustomer: true, IsSupplier: true},
		{true, true, true, true},
	} {
		assert.Equal(t, flags, ParseContactTypes(flags.Join()).Flags)
	}
}
