package integration

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// DefaultDedupTTL is how long a delivered webhook event is remembered
const DefaultDedupTTL = 24 * time.Hour

// TenantResolver maps a webhook portal id to a tenant that can sync
type TenantResolver interface {
	ResolveCRMAccount(ctx context.Context, crmAccountID string) (uuid.UUID, error)
}

// RouterOptions configures the EventRouter
type RouterOptions struct {
	// PropagateDeletions queues *.deletion events instead of filtering them
	PropagateDeletions bool
	DedupTTL           time.Duration
}

// RouteReport counts what happened to each event of a batch
type RouteReport struct {
	Received   int
	Invalid    int
	Duplicate  int
	Filtered   int
	Dropped    int
	Unknown    int
	Dispatched int
	Failed     int
}

// EventRouter turns webhook batches into queued units. It does no remote I/O itself.
type EventRouter struct {
	tenants  TenantResolver
	queue    integration.Enqueuer
	dedup    integration.EventDeduplicator
	validate *validator.Validate
	opts     RouterOptions
	metrics  Metrics
	now      func() time.Time
	logger   *zap.Logger
}

// NewEventRouter creates a new EventRouter. dedup may be nil.
func NewEventRouter(
	tenants TenantResolver,
	queue integration.Enqueuer,
	dedup integration.EventDeduplicator,
	opts RouterOptions,
	logger *zap.Logger,
) *EventRouter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DedupTTL <= 0 {
		opts.DedupTTL = DefaultDedupTTL
	}
	return &EventRouter{
		tenants:  tenants,
		queue:    queue,
		dedup:    dedup,
		validate: validator.New(),
		opts:     opts,
		metrics:  noopMetrics{},
		now:      time.Now,
		logger:   logger,
	}
}

// SetMetrics sets where batch counts are reported
func (r *EventRouter) SetMetrics(m Metrics) {
	r.metrics = metricsOrNoop(m)
}

// routedTarget is one distinct record touched by a batch
type routedTarget struct {
	prefix   string
	objectID string
	deletion bool
}

// Route validates, filters and groups a batch, then enqueues one unit per distinct record.
// An event stays marked as delivered only once its unit is queued; on any failure its
// de-duplication key is released so a redelivery is processed.
func (r *EventRouter) Route(ctx context.Context, events []integration.WebhookEvent) RouteReport {
	report := RouteReport{Received: len(events)}

	accounts := make([]string, 0)
	targets := make(map[string][]routedTarget)
	keys := make(map[string]map[routedTarget][]string)

	for _, event := range events {
		if err := r.validate.Struct(event); err != nil {
			report.Invalid++
			r.logger.Warn("Dropping invalid webhook event", zap.Int64("event_id", event.EventID), zap.Error(err))
			continue
		}
		if event.IsAssociationRemoval() || (event.IsDeletion() && !r.opts.PropagateDeletions) {
			report.Filtered++
			continue
		}
		claimed, fresh := r.claim(ctx, event)
		if !fresh {
			report.Duplicate++
			continue
		}

		account := event.AccountID()
		target := routedTarget{prefix: event.KindPrefix(), objectID: event.TargetObjectID(), deletion: event.IsDeletion()}
		if keys[account] == nil {
			keys[account] = make(map[routedTarget][]string)
			accounts = append(accounts, account)
		}
		if _, ok := keys[account][target]; !ok {
			targets[account] = append(targets[account], target)
			keys[account][target] = nil
		}
		if claimed != "" {
			keys[account][target] = append(keys[account][target], claimed)
		}
	}

	for _, account := range accounts {
		r.routeAccount(ctx, account, targets[account], keys[account], &report)
	}

	r.recordReport(ctx, report)
	r.logger.Info("Webhook batch routed",
		zap.Int("received", report.Received),
		zap.Int("invalid", report.Invalid),
		zap.Int("duplicate", report.Duplicate),
		zap.Int("filtered", report.Filtered),
		zap.Int("dropped", report.Dropped),
		zap.Int("unknown", report.Unknown),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("failed", report.Failed),
	)
	return report
}

// claim marks the event as delivered and returns its key. fresh is false for a redelivery.
// A dedup store failure lets the event through unclaimed.
func (r *EventRouter) claim(ctx context.Context, event integration.WebhookEvent) (key string, fresh bool) {
	if r.dedup == nil {
		return "", true
	}
	key = event.DedupKey()
	marked, err := r.dedup.MarkProcessed(ctx, key, r.opts.DedupTTL)
	if err != nil {
		r.logger.Warn("Webhook de-duplication unavailable", zap.String("key", key), zap.Error(err))
		return "", true
	}
	if !marked {
		return "", false
	}
	return key, true
}

// release forgets keys so that a redelivery of their events is routed again
func (r *EventRouter) release(ctx context.Context, keys []string) {
	if r.dedup == nil {
		return
	}
	for _, key := range keys {
		if err := r.dedup.Forget(ctx, key); err != nil {
			r.logger.Error("Failed to release webhook event", zap.String("key", key), zap.Error(err))
		}
	}
}

func (r *EventRouter) routeAccount(ctx context.Context, account string, targets []routedTarget, keys map[routedTarget][]string, report *RouteReport) {
	tenantID, err := r.tenants.ResolveCRMAccount(ctx, account)
	switch {
	case errors.Is(err, integration.ErrTenantNotFound):
		report.Dropped += len(targets)
		r.logger.Warn("Dropping events for unknown portal", zap.String("portal_id", account), zap.Int("events", len(targets)))
		return
	case integration.IsTenantNotConnected(err):
		report.Dropped += len(targets)
		r.logger.Warn("Dropping events for tenant that cannot sync",
			zap.String("portal_id", account), zap.Int("events", len(targets)), zap.Error(err))
		return
	case err != nil:
		report.Failed += len(targets)
		r.logger.Error("Failed to resolve webhook portal", zap.String("portal_id", account), zap.Error(err))
		for _, target := range targets {
			r.release(ctx, keys[target])
		}
		return
	}

	for _, target := range targets {
		unit, ok := r.unitFor(tenantID, target)
		if !ok {
			report.Unknown++
			r.logger.Info("Ignoring webhook event of unknown kind",
				zap.String("tenant_id", tenantID.String()),
				zap.String("kind", target.prefix),
				zap.String("crm_id", target.objectID),
			)
			continue
		}
		if err := r.queue.Enqueue(ctx, unit); err != nil {
			report.Failed++
			r.logger.Error("Failed to enqueue webhook unit",
				zap.String("tenant_id", tenantID.String()),
				zap.String("action", unit.Action.String()),
				zap.String("kind", unit.Kind.String()),
				zap.String("crm_id", target.objectID),
				zap.Error(err),
			)
			r.release(ctx, keys[target])
			continue
		}
		report.Dispatched++
	}
}

// unitFor builds the queued unit for a target; false for kinds the service does not sync
func (r *EventRouter) unitFor(tenantID uuid.UUID, target routedTarget) (integration.ReconcileUnit, bool) {
	unit := integration.ReconcileUnit{
		Action:     integration.UnitActionReconcile,
		TenantID:   tenantID,
		Direction:  integration.DirectionCRMToAccounting,
		Record:     integration.Record{ID: target.objectID},
		EnqueuedAt: r.now(),
	}

	if target.deletion {
		kind, err := integration.ParseEntityKind(target.prefix)
		if err != nil || kind == integration.EntityKindItem {
			return unit, false
		}
		unit.Action = integration.UnitActionDelete
		unit.Kind = kind
		return unit, true
	}

	switch target.prefix {
	case integration.WebhookKindContact:
		unit.Kind = integration.EntityKindContact
	case integration.WebhookKindCompany:
		unit.Kind = integration.EntityKindCompany
	case integration.WebhookKindDeal:
		unit.Kind = integration.EntityKindDeal
	case integration.WebhookKindLineItem:
		unit.Action = integration.UnitActionLineItem
		unit.Kind = integration.EntityKindDeal
	default:
		return unit, false
	}
	return unit, true
}

func (r *EventRouter) recordReport(ctx context.Context, report RouteReport) {
	for disposition, count := range map[string]int{
		"invalid":    report.Invalid,
		"duplicate":  report.Duplicate,
		"filtered":   report.Filtered,
		"dropped":    report.Dropped,
		"unknown":    report.Unknown,
		"dispatched": report.Dispatched,
		"failed":     report.Failed,
	} {
		if count > 0 {
			r.metrics.RecordWebhookEvents(ctx, disposition, count)
		}
	}
}
