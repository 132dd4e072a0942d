package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/domain/integration"
)

// SyncMetrics records reconciliation measurements as OTel instruments.
type SyncMetrics struct {
	outcomes      metric.Int64Counter
	created       metric.Int64Counter
	healed        metric.Int64Counter
	anomalies     metric.Int64Counter
	pollFetches   metric.Int64Histogram
	webhookEvents metric.Int64Counter
}

// NewSyncMetrics creates the instrument set on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	var m SyncMetrics
	var err error

	if m.outcomes, err = meter.Int64Counter("ledgerlink.reconcile.outcomes",
		metric.WithDescription("Reconciliation attempts by kind, direction and terminal state"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, &MetricsError{Metric: "reconcile.outcomes", Err: err}
	}
	if m.created, err = meter.Int64Counter("ledgerlink.reconcile.created",
		metric.WithDescription("Counterparts created"),
		metric.WithUnit("{record}")); err != nil {
		return nil, &MetricsError{Metric: "reconcile.created", Err: err}
	}
	if m.healed, err = meter.Int64Counter("ledgerlink.reconcile.healed",
		metric.WithDescription("Stale links replaced by a new counterpart"),
		metric.WithUnit("{record}")); err != nil {
		return nil, &MetricsError{Metric: "reconcile.healed", Err: err}
	}
	if m.anomalies, err = meter.Int64Counter("ledgerlink.reconcile.anomalies",
		metric.WithDescription("Reconciliations that succeeded along an unexpected path"),
		metric.WithUnit("{record}")); err != nil {
		return nil, &MetricsError{Metric: "reconcile.anomalies", Err: err}
	}
	if m.pollFetches, err = meter.Int64Histogram("ledgerlink.poll.fetches",
		metric.WithDescription("Page requests per poll window"),
		metric.WithUnit("{page}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 10, 20, 50, 100)); err != nil {
		return nil, &MetricsError{Metric: "poll.fetches", Err: err}
	}
	if m.webhookEvents, err = meter.Int64Counter("ledgerlink.webhook.events",
		metric.WithDescription("Webhook events by disposition"),
		metric.WithUnit("{event}")); err != nil {
		return nil, &MetricsError{Metric: "webhook.events", Err: err}
	}
	return &m, nil
}

// RecordOutcome counts one reconciliation attempt
func (m *SyncMetrics) RecordOutcome(ctx context.Context, outcome integration.Outcome) {
	attrs := []attribute.KeyValue{
		attribute.String("kind", outcome.Kind.String()),
		attribute.String("direction", outcome.Direction.String()),
		attribute.String("state", outcome.State.String()),
	}
	if outcome.ErrorClass != "" {
		attrs = append(attrs, attribute.String("error_class", outcome.ErrorClass))
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attrs...))

	kind := metric.WithAttributes(attribute.String("kind", outcome.Kind.String()))
	if outcome.Created {
		m.created.Add(ctx, 1, kind)
	}
	if outcome.Healed {
		m.healed.Add(ctx, 1, kind)
	}
	if outcome.Anomaly != "" {
		m.anomalies.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", outcome.Kind.String()),
			attribute.String("anomaly", outcome.Anomaly),
		))
	}
}

// RecordPollPages records the page requests of one poll window
func (m *SyncMetrics) RecordPollPages(ctx context.Context, kind integration.EntityKind, pages int) {
	m.pollFetches.Record(ctx, int64(pages), metric.WithAttributes(attribute.String("kind", kind.String())))
}

// RecordWebhookEvents counts webhook events by disposition
func (m *SyncMetrics) RecordWebhookEvents(ctx context.Context, disposition string, count int) {
	if count <= 0 {
		return
	}
	m.webhookEvents.Add(ctx, int64(count), metric.WithAttributes(attribute.String("disposition", disposition)))
}

// MetricsError reports an instrument that could not be created
type MetricsError struct {
	Metric string
	Err    error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("failed to create metric %s: %v", e.Metric, e.Err)
}

func (e *MetricsError) Unwrap() error { return e.Err }

var _ appintegration.Metrics = (*SyncMetrics)(nil)
