package crm

import (
	"errors"
	"strings"
)

// HubSpotConfig holds configuration for the HubSpot CRM API
type HubSpotConfig struct {
	// APIBaseURL is the base URL for the HubSpot API
	APIBaseURL string
	// ClientID is the OAuth app client id used for token refresh
	ClientID string
	// ClientSecret signs webhooks and authenticates token refresh
	ClientSecret string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// Properties lists the properties requested per object type
	Properties map[string][]string
}

const (
	// HubSpotAPIURL is the production API endpoint
	HubSpotAPIURL = "https://api.hubapi.com"
	// HubSpotDefaultTimeoutSeconds bounds every CRM request
	HubSpotDefaultTimeoutSeconds = 30
)

// Errors for HubSpot configuration
var (
	ErrHubSpotConfigMissingClientID     = errors.New("hubspot: client id is required")
	ErrHubSpotConfigMissingClientSecret = errors.New("hubspot: client secret is required")
)

// DefaultHubSpotProperties returns the properties the mappers read, per object type.
func DefaultHubSpotProperties() map[string][]string {
	return map[string][]string{
		"contacts":   {"firstname", "lastname", "email", "phone", "salutation", "address", "city", "state", "zip", "country", "contact_type"},
		"companies":  {"name", "email", "trading_name", "address", "city", "state", "zip", "country"},
		"deals":      {"dealname", "dealstage", "amount", "invoice_number", "deal_currency", "deal_currency_code", "date_paid", "bank_account"},
		"line_items": {"name", "description", "tax_code", "product_amount", "quantity", "price", "item_id", "hs_sku", "amount", "hs_discount_percentage"},
		"products":   {"name", "hs_sku", "item_id", "description", "price", "product_amount", "tax_code", "createdate"},
	}
}

// NewHubSpotConfig creates a new HubSpot configuration with defaults
func NewHubSpotConfig(clientID, clientSecret string) *HubSpotConfig {
	return &HubSpotConfig{
		APIBaseURL:     HubSpotAPIURL,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		TimeoutSeconds: HubSpotDefaultTimeoutSeconds,
		Properties:     DefaultHubSpotProperties(),
	}
}

// Validate validates the configuration and fills defaults
func (c *HubSpotConfig) Validate() error {
	if c.ClientID == "" {
		return ErrHubSpotConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrHubSpotConfigMissingClientSecret
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = HubSpotAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = HubSpotDefaultTimeoutSeconds
	}
	defaults := DefaultHubSpotProperties()
	if c.Properties == nil {
		c.Properties = defaults
	}
	for objectType, props := range defaults {
		if len(c.Properties[objectType]) == 0 {
			c.Properties[objectType] = props
		}
	}
	return nil
}

// PropertiesFor returns the comma separated property list for an object type
func (c *HubSpotConfig) PropertiesFor(objectType string) string {
	return strings.Join(c.Properties[objectType], ",")
}
