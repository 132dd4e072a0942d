package accounting

import (
	"errors"
	"strings"
)

// SaasuConfig holds configuration for the Saasu accounting API
type SaasuConfig struct {
	// APIBaseURL is the base URL for the Saasu API
	APIBaseURL string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// PageSize is sent on list calls when positive; Saasu's default applies otherwise
	PageSize int
}

const (
	// SaasuAPIURL is the production API endpoint
	SaasuAPIURL = "https://api.saasu.com"
	// SaasuDefaultTimeoutSeconds bounds every accounting request
	SaasuDefaultTimeoutSeconds = 30
	// SaasuMaxPageSize is the largest page Saasu serves
	SaasuMaxPageSize = 1000
)

// Errors for Saasu configuration
var (
	ErrSaasuConfigInvalidPageSize = errors.New("saasu: page size must not exceed 1000")
)

// NewSaasuConfig creates a new Saasu configuration with defaults
func NewSaasuConfig() *SaasuConfig {
	return &SaasuConfig{
		APIBaseURL:     SaasuAPIURL,
		TimeoutSeconds: SaasuDefaultTimeoutSeconds,
	}
}

// Validate validates the configuration and fills defaults
func (c *SaasuConfig) Validate() error {
	if c.PageSize > SaasuMaxPageSize {
		return ErrSaasuConfigInvalidPageSize
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = SaasuAPIURL
	}
	c.APIBaseURL = strings.TrimRight(c.APIBaseURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = SaasuDefaultTimeoutSeconds
	}
	return nil
}
