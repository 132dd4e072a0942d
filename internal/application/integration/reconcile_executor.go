package integration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// Deleter propagates a CRM deletion
type Deleter interface {
	Delete(ctx context.Context, session integration.TenantSession, kind integration.EntityKind, crmID string) error
}

// ReconcileExecutorDeps holds the ReconcileExecutor collaborators.
// CRM is needed for line item units and Deleter for delete units; both may be nil otherwise.
type ReconcileExecutorDeps struct {
	Sessions      *SessionManager
	Synchronizers map[integration.EntityKind]integration.Synchronizer
	CRM           integration.CRMGateway
	Deleter       Deleter
	Metrics       Metrics
	Logger        *zap.Logger
}

// ReconcileExecutor runs one queued unit: it loads a fresh session, performs the unit's action
// and marks the tenant disconnected when a remote system rejects its credential.
type ReconcileExecutor struct {
	sessions      *SessionManager
	synchronizers map[integration.EntityKind]integration.Synchronizer
	crm           integration.CRMGateway
	deleter       Deleter
	metrics       Metrics
	logger        *zap.Logger
}

// NewReconcileExecutor creates a new ReconcileExecutor
func NewReconcileExecutor(deps ReconcileExecutorDeps) *ReconcileExecutor {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconcileExecutor{
		sessions:      deps.Sessions,
		synchronizers: deps.Synchronizers,
		crm:           deps.CRM,
		deleter:       deps.Deleter,
		metrics:       metricsOrNoop(deps.Metrics),
		logger:        logger,
	}
}

// Execute runs one unit. Only errors that satisfy integration.IsRetryable are worth retrying.
func (e *ReconcileExecutor) Execute(ctx context.Context, unit integration.ReconcileUnit) error {
	switch unit.Action {
	case "", integration.UnitActionReconcile:
		sync, ok := e.synchronizers[unit.Kind]
		if !ok {
			return fmt.Errorf("%w: no synchronizer for %q", integration.ErrInvalidEntityKind, unit.Kind)
		}
		return e.withSession(ctx, unit, func(session integration.TenantSession) error {
			return e.reconcile(ctx, sync, session, unit.Direction, unit.Record)
		})

	case integration.UnitActionLineItem:
		sync, ok := e.synchronizers[integration.EntityKindDeal]
		if !ok || e.crm == nil {
			return fmt.Errorf("%w: line item units need the deal synchronizer", integration.ErrInvalidEntityKind)
		}
		return e.withSession(ctx, unit, func(session integration.TenantSession) error {
			return e.reconcileLineItemDeals(ctx, sync, session, unit.Record.ID)
		})

	case integration.UnitActionDelete:
		if e.deleter == nil {
			return fmt.Errorf("deletion propagation is disabled: %s %s", unit.Kind, unit.Record.ID)
		}
		return e.withSession(ctx, unit, func(session integration.TenantSession) error {
			return e.deleter.Delete(ctx, session, unit.Kind, unit.Record.ID)
		})

	default:
		return fmt.Errorf("unknown unit action %q", unit.Action)
	}
}

// withSession runs fn with a fresh session and handles rejected credentials
func (e *ReconcileExecutor) withSession(ctx context.Context, unit integration.ReconcileUnit, fn func(integration.TenantSession) error) error {
	session, err := e.sessions.ForTenant(ctx, unit.TenantID)
	if err != nil {
		return err
	}

	err = fn(session)
	if err == nil {
		return nil
	}

	var notConnected *integration.TenantNotConnectedError
	if errors.As(err, &notConnected) && notConnected.Err != nil {
		if markErr := e.sessions.MarkDisconnected(ctx, session, notConnected.System); markErr != nil {
			e.logger.Error("Failed to mark tenant disconnected",
				zap.String("tenant_id", unit.TenantID.String()),
				zap.Error(markErr),
			)
		}
	}
	return err
}

func (e *ReconcileExecutor) reconcile(ctx context.Context, sync integration.Synchronizer, session integration.TenantSession, direction integration.Direction, record integration.Record) error {
	outcome, err := sync.Reconcile(ctx, session, direction, record)
	e.metrics.RecordOutcome(ctx, outcome)
	return err
}

// reconcileLineItemDeals reconciles every deal a line item belongs to.
// All deals are attempted; the joined error keeps each deal's classification.
func (e *ReconcileExecutor) reconcileLineItemDeals(ctx context.Context, sync integration.Synchronizer, session integration.TenantSession, lineItemID string) error {
	dealIDs, err := e.crm.ListAssociatedIDs(ctx, session, integration.CRMObjectLineItems, lineItemID, integration.CRMObjectDeals)
	if err != nil {
		return fmt.Errorf("resolve deals of line item %s: %w", lineItemID, err)
	}

	var errs []error
	for _, dealID := range dealIDs {
		if err := e.reconcile(ctx, sync, session, integration.DirectionCRMToAccounting, integration.Record{ID: dealID}); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
