package integration

import (
	"context"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// Metrics receives reconciliation measurements
type Metrics interface {
	RecordOutcome(ctx context.Context, outcome integration.Outcome)
	RecordPollPages(ctx context.Context, kind integration.EntityKind, pages int)
	RecordWebhookEvents(ctx context.Context, disposition string, count int)
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(context.Context, integration.Outcome) {}
func (noopMetrics) RecordPollPages(context.Context, integration.EntityKind, int) {}
func (noopMetrics) RecordWebhookEvents(context.Context, string, int) {}

func metricsOrNoop(m Metrics) Metrics {
	if m == nil {
		return noopMetrics{}
	}
	return m
}
