package integration

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultWriteBackFactor is applied to the invoice total written back to the deal amount
var DefaultWriteBackFactor = decimal.RequireFromString("1.10")

// SyncOptions holds the per-tenant rules the synchronizers apply.
// Maps are keyed by accounting file id.
type SyncOptions struct {
	// CurrencyFields names the deal property carrying the invoice currency
	CurrencyFields map[string]string
	// QuoteStages lists the deal stages that raise a quote; a file without an entry raises none
	QuoteStages map[string][]string
	// WriteBackFactor multiplies the invoice total before it is written to the deal amount
	WriteBackFactor decimal.Decimal
	// Now returns the current time; used for invoice transaction dates
	Now func() time.Time
}

// DefaultSyncOptions returns the options used when nothing is configured
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		CurrencyFields: map[string]string{
			"86536": "deal_currency",
			"78831": "deal_currency_code",
		},
		QuoteStages:     map[string][]string{},
		WriteBackFactor: DefaultWriteBackFactor,
		Now:             time.Now,
	}
}

// CurrencyField returns the deal currency property for a file, or "" when none is configured
func (o SyncOptions) CurrencyField(fileID string) string {
	return o.CurrencyFields[fileID]
}

// IsQuoteStage reports whether a deal in stage should be invoiced for a file.
// Only stages configured for the file qualify.
func (o SyncOptions) IsQuoteStage(fileID, stage string) bool {
	if stage == "" {
		return false
	}
	for _, s := range o.QuoteStages[fileID] {
		if s == stage {
			return true
		}
	}
	return false
}

func (o SyncOptions) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

func (o SyncOptions) factor() decimal.Decimal {
	if o.WriteBackFactor.IsZero() {
		return DefaultWriteBackFactor
	}
	return o.WriteBackFactor
}
