package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// PollReport summarizes one poll window walk
type PollReport struct {
	Kind   integration.EntityKind
	Window integration.DateWindow
	// Fetches counts page requests, including the final empty page
	Fetches int
	Seen    int
	Done    int
	Skipped int
	Failed  int
}

// PollDriverDeps holds the PollDriver collaborators. Runs, Tenants, Sessions and Metrics may be nil;
// Tenants and Sessions are needed by PollDay only.
type PollDriverDeps struct {
	Accounting    integration.AccountingGateway
	Synchronizers map[integration.EntityKind]integration.Synchronizer
	Runs          integration.SyncRunRepository
	Tenants       integration.TenantRepository
	Sessions      *SessionManager
	Metrics       Metrics
	Logger        *zap.Logger
}

// PollDriver walks the accounting system's modified records page by page
// and reconciles each one into the CRM.
type PollDriver struct {
	accounting    integration.AccountingGateway
	synchronizers map[integration.EntityKind]integration.Synchronizer
	runs          integration.SyncRunRepository
	tenants       integration.TenantRepository
	sessions      *SessionManager
	metrics       Metrics
	logger        *zap.Logger
}

// NewPollDriver creates a new PollDriver
func NewPollDriver(deps PollDriverDeps) *PollDriver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollDriver{
		accounting:    deps.Accounting,
		synchronizers: deps.Synchronizers,
		runs:          deps.Runs,
		tenants:       deps.Tenants,
		sessions:      deps.Sessions,
		metrics:       metricsOrNoop(deps.Metrics),
		logger:        logger,
	}
}

// PollWindow fetches pages 1..n of records of kind modified in [from, to) and reconciles
// each record sequentially, stopping at the first empty page. A page failure abandons the
// remaining pages and is returned; record failures are only counted.
func (d *PollDriver) PollWindow(ctx context.Context, session integration.TenantSession, kind integration.EntityKind, from, to time.Time) (PollReport, error) {
	window := integration.DateWindow{From: from, To: to}
	report := PollReport{Kind: kind, Window: window}

	sync, ok := d.synchronizers[kind]
	if !ok {
		return report, fmt.Errorf("%w: no synchronizer for %q", integration.ErrInvalidEntityKind, kind)
	}

	logger := d.logger.With(
		zap.String("tenant_id", session.TenantID().String()),
		zap.String("kind", kind.String()),
		zap.Time("from", from),
		zap.Time("to", to),
	)
	run := integration.NewSyncRun(session.TenantID(), kind, window)
	pollErr := d.walk(ctx, session, sync, window, &report, logger)

	run.Finish(report.Fetches, report.Seen, report.Failed, pollErr)
	d.saveRun(ctx, run, logger)
	d.metrics.RecordPollPages(ctx, kind, report.Fetches)

	if pollErr != nil {
		logger.Error("Poll window abandoned",
			zap.Int("fetches", report.Fetches),
			zap.Int("seen", report.Seen),
			zap.Error(pollErr),
		)
		return report, pollErr
	}
	logger.Info("Poll window completed",
		zap.Int("fetches", report.Fetches),
		zap.Int("seen", report.Seen),
		zap.Int("done", report.Done),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (d *PollDriver) walk(
	ctx context.Context,
	session integration.TenantSession,
	sync integration.Synchronizer,
	window integration.DateWindow,
	report *PollReport,
	logger *zap.Logger,
) error {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		records, err := d.accounting.ListModified(ctx, session, report.Kind, window, page)
		report.Fetches++
		if err != nil {
			return fmt.Errorf("integration: poll %s page %d: %w", report.Kind, page, err)
		}
		if len(records) == 0 {
			return nil
		}
		logger.Debug("Poll page fetched", zap.Int("page", page), zap.Int("records", len(records)))

		for _, record := range records {
			report.Seen++
			outcome, err := sync.Reconcile(ctx, session, integration.DirectionAccountingToCRM, record)
			d.metrics.RecordOutcome(ctx, outcome)
			switch {
			case err != nil:
				report.Failed++
				if integration.IsTenantNotConnected(err) {
					return err
				}
			case outcome.State == integration.StateSkipped:
				report.Skipped++
			default:
				report.Done++
			}
		}
	}
}

func (d *PollDriver) saveRun(ctx context.Context, run *integration.SyncRun, logger *zap.Logger) {
	if d.runs == nil {
		return
	}
	if err := d.runs.Save(ctx, run); err != nil {
		logger.Warn("Failed to record sync run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
}

// PollTenant loads a fresh session for tenantID and polls one window of kind
func (d *PollDriver) PollTenant(ctx context.Context, tenantID uuid.UUID, kind integration.EntityKind, window integration.DateWindow) (PollReport, error) {
	if d.sessions == nil {
		return PollReport{Kind: kind, Window: window}, fmt.Errorf("integration: tenant poll needs sessions")
	}
	session, err := d.sessions.ForTenant(ctx, tenantID)
	if err != nil {
		return PollReport{Kind: kind, Window: window}, err
	}
	return d.PollWindow(ctx, session, kind, window.From, window.To)
}

// PollDay polls the daily window of day for every tenant connected to both systems,
// walking kinds in integration.AllEntityKinds order. Failures are logged per tenant and kind.
func (d *PollDriver) PollDay(ctx context.Context, day time.Time) error {
	if d.tenants == nil || d.sessions == nil {
		return fmt.Errorf("integration: daily poll needs tenants and sessions")
	}
	tenants, err := d.tenants.ListFullyConnected(ctx)
	if err != nil {
		return err
	}

	window := integration.NewDailyWindow(day)
	d.logger.Info("Daily poll started", zap.Int("tenants", len(tenants)), zap.Time("from", window.From))

	for i := range tenants {
		session, err := d.sessions.Fresh(ctx, tenants[i].Session())
		if err != nil {
			d.logger.Warn("Skipping tenant in daily poll",
				zap.String("tenant_id", tenants[i].ID.String()), zap.Error(err))
			continue
		}
		for _, kind := range integration.AllEntityKinds() {
			if _, err := d.PollWindow(ctx, session, kind, window.From, window.To); err != nil {
				if integration.IsTenantNotConnected(err) {
					break
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
			}
		}
	}
	return nil
}
