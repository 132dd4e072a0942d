package integration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// reconcilePlan is what one synchronizer direction supplies to the shared flow.
// S is the source record type, P the prepared destination payload.
type reconcilePlan[S any, P any] struct {
	// hydrate fetches the source record when the unit only carries its id
	hydrate func(ctx context.Context, session integration.TenantSession, id string) (S, error)
	// prepare maps the source record and resolves prerequisites; a skipError skips the record
	prepare func(ctx context.Context, session integration.TenantSession, src S) (P, error)
	// create makes the counterpart and returns its id
	create func(ctx context.Context, session integration.TenantSession, payload P) (string, error)
	// update writes onto the existing counterpart
	update func(ctx context.Context, session integration.TenantSession, payload P, destID string) error
	// search finds an existing destination record after a duplicate key on create; optional
	search func(ctx context.Context, session integration.TenantSession, payload P) (string, error)
	// link resolves related records once both ids are known; optional
	link func(ctx context.Context, session integration.TenantSession, src S, payload P, destID string) error
}

// skipError ends a reconciliation in SKIPPED
type skipError struct {
	reason string
}

func (e *skipError) Error() string { return "skipped: " + e.reason }

func skip(format string, args ...any) error {
	return &skipError{reason: fmt.Sprintf(format, args...)}
}

// reconcileFlow drives the reconciliation state machine for one entity kind
type reconcileFlow struct {
	kind     integration.EntityKind
	mappings integration.IdentityMapRepository
	logger   *zap.Logger
}

func newReconcileFlow(kind integration.EntityKind, mappings integration.IdentityMapRepository, logger *zap.Logger) *reconcileFlow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &reconcileFlow{kind: kind, mappings: mappings, logger: logger.With(zap.String("kind", kind.String()))}
}

// runPlan reconciles one record along plan.
// err is non-nil exactly when the outcome is FAILED.
func runPlan[S any, P any](
	ctx context.Context,
	f *reconcileFlow,
	session integration.TenantSession,
	direction integration.Direction,
	record integration.Record,
	plan reconcilePlan[S, P],
) (integration.Outcome, error) {
	out := integration.NewOutcome(session.TenantID(), f.kind, direction, record.ID)

	if err := session.RequireConnected(); err != nil {
		return f.fail(&out, err)
	}
	if record.ID == "" {
		return f.fail(&out, integration.ErrMappingInvalidID)
	}

	src, err := sourceOf(ctx, session, record, plan)
	if err != nil {
		return f.fail(&out, err)
	}

	payload, err := plan.prepare(ctx, session, src)
	if err != nil {
		var skipped *skipError
		if errors.As(err, &skipped) {
			out.Skip(skipped.reason)
			f.logger.Info("Reconciliation skipped", append(f.fields(&out), zap.String("reason", skipped.reason))...)
			return out, nil
		}
		return f.fail(&out, err)
	}

	out.Enter(integration.StateLookupMapping)
	mapping, err := integration.FindBySource(ctx, f.mappings, f.kind, direction.Source(), record.ID)
	switch {
	case err == nil:
		out.DestinationID = mapping.IDIn(direction.Destination())
		if err := updateExisting(ctx, f, session, &out, mapping, payload, plan); err != nil {
			return f.fail(&out, err)
		}
	case errors.Is(err, integration.ErrMappingNotFound):
		if err := createNew(ctx, f, session, &out, payload, plan); err != nil {
			return f.fail(&out, err)
		}
	default:
		return f.fail(&out, err)
	}

	if plan.link != nil {
		out.Enter(integration.StateLinkRelated)
		if err := plan.link(ctx, session, src, payload, out.DestinationID); err != nil {
			return f.fail(&out, err)
		}
	}

	out.Enter(integration.StateDone)
	f.logger.Info("Reconciliation done",
		append(f.fields(&out), zap.Bool("created", out.Created), zap.Bool("healed", out.Healed))...)
	return out, nil
}

// sourceOf returns the record payload as S, fetching it when the record carries only an id
func sourceOf[S any, P any](ctx context.Context, session integration.TenantSession, record integration.Record, plan reconcilePlan[S, P]) (S, error) {
	if record.Payload != nil {
		src, ok := record.Payload.(S)
		if !ok {
			var zero S
			return zero, fmt.Errorf("integration: unexpected payload %T for record %s", record.Payload, record.ID)
		}
		return src, nil
	}
	return plan.hydrate(ctx, session, record.ID)
}

// updateExisting runs FETCH_REVISION_THEN_UPDATE and, when the counterpart is gone,
// the stale-link recovery that creates a fresh one and repoints the mapping.
func updateExisting[S any, P any](
	ctx context.Context,
	f *reconcileFlow,
	session integration.TenantSession,
	out *integration.Outcome,
	mapping *integration.IdentityMapping,
	payload P,
	plan reconcilePlan[S, P],
) error {
	out.Enter(integration.StateFetchRevisionThenUpdate)
	err := plan.update(ctx, session, payload, out.DestinationID)
	if err == nil {
		return nil
	}
	if !integration.IsNotFound(err) {
		return err
	}

	f.logger.Warn("Counterpart no longer exists, recreating it", append(f.fields(out), zap.Error(err))...)
	out.Enter(integration.StateUpdateFailedStaleLink)
	out.Enter(integration.StateCreateCounterpart)

	newID, err := plan.create(ctx, session, payload)
	if err != nil {
		return err
	}

	destination := out.Direction.Destination()
	if destination == integration.SystemCRM {
		err = f.mappings.UpdateCRMID(ctx, mapping, newID)
	} else {
		err = f.mappings.UpdateAccountingID(ctx, mapping, newID)
	}
	if err != nil {
		out.DestinationID = newID
		return fmt.Errorf("integration: repoint mapping %s: %w", mapping.ID, err)
	}

	out.DestinationID = newID
	out.Created = true
	out.Healed = true
	return nil
}

// createNew runs CREATE_COUNTERPART and, on a duplicate key, SEARCH_AND_LINK; then records the mapping
func createNew[S any, P any](
	ctx context.Context,
	f *reconcileFlow,
	session integration.TenantSession,
	out *integration.Outcome,
	payload P,
	plan reconcilePlan[S, P],
) error {
	out.Enter(integration.StateCreateCounterpart)
	destID, err := plan.create(ctx, session, payload)
	switch {
	case err == nil:
		out.Created = true
	case integration.IsDuplicateKey(err) && plan.search != nil:
		f.logger.Warn("Counterpart already exists, searching for it", append(f.fields(out), zap.Error(err))...)
		out.Enter(integration.StateCreateFailedDuplicateKey)
		out.Enter(integration.StateSearchAndLink)
		destID, err = plan.search(ctx, session, payload)
		if err != nil {
			return err
		}
	default:
		return err
	}

	out.DestinationID = destID
	linked, raced, err := linkMapping(ctx, f.mappings, f.kind, out.Direction.Source(), out.SourceID, destID)
	if err != nil {
		return err
	}
	if raced {
		out.Anomaly = integration.AnomalyDuplicateCreateRace
		f.logger.Warn("Concurrent reconciliation linked this record first; adopting its mapping",
			append(f.fields(out), zap.String("orphaned_id", destID), zap.String("anomaly", out.Anomaly))...)
		out.DestinationID = linked
	}
	return nil
}

// linkMapping records sourceID ↔ destID. When a concurrent writer got there first
// it returns the winner's destination id with raced set.
func linkMapping(
	ctx context.Context,
	mappings integration.IdentityMapRepository,
	kind integration.EntityKind,
	source integration.System,
	sourceID, destID string,
) (string, bool, error) {
	crmID, accountingID := sourceID, destID
	if source == integration.SystemAccounting {
		crmID, accountingID = destID, sourceID
	}

	_, err := mappings.Create(ctx, kind, crmID, accountingID)
	if err == nil {
		return destID, false, nil
	}
	if !errors.Is(err, integration.ErrDuplicateMapping) {
		return "", false, err
	}

	winner, findErr := integration.FindBySource(ctx, mappings, kind, source, sourceID)
	if findErr != nil {
		// the destination id is linked to another source record
		return "", false, fmt.Errorf("%w: %s %s", err, kind, destID)
	}
	return winner.IDIn(source.Other()), true, nil
}

// fail moves the outcome to FAILED and logs at a level matching the error class
func (f *reconcileFlow) fail(out *integration.Outcome, err error) (integration.Outcome, error) {
	out.Fail(err)
	fields := append(f.fields(out), zap.String("error_class", out.ErrorClass), zap.Error(err))

	var missing *integration.MissingPrerequisiteError
	switch {
	case errors.As(err, &missing), integration.IsTenantNotConnected(err):
		f.logger.Warn("Reconciliation aborted", fields...)
	case integration.IsRetryable(err):
		f.logger.Warn("Reconciliation failed, retryable", fields...)
	default:
		f.logger.Error("Reconciliation failed", fields...)
	}
	return *out, err
}

// fields names the tenant and both systems' ids for an outcome
func (f *reconcileFlow) fields(out *integration.Outcome) []zap.Field {
	crmID, accountingID := out.SourceID, out.DestinationID
	if out.Direction.Source() == integration.SystemAccounting {
		crmID, accountingID = out.DestinationID, out.SourceID
	}
	return []zap.Field{
		zap.String("tenant_id", out.TenantID.String()),
		zap.String("direction", out.Direction.String()),
		zap.String("crm_id", crmID),
		zap.String("accounting_id", accountingID),
	}
}

// missingRevision reports an accounting record that cannot be updated without its marker
func missingRevision(kind integration.EntityKind, id string) error {
	return &integration.MissingPrerequisiteError{Kind: kind, ID: id, Prerequisite: "LastUpdatedId"}
}
