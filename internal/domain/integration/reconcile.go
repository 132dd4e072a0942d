package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Record
// ---------------------------------------------------------------------------

// Record is an incoming record from its source system.
// Payload holds the decoded remote value (*CRMObject, *AccountingContact,
// *AccountingCompany, *AccountingInvoice or *AccountingItem) or nil when only
// the id is known, in which case the synchronizer fetches it.
type Record struct {
	ID      string
	Payload any
}

// ---------------------------------------------------------------------------
// ReconcileState
// ---------------------------------------------------------------------------

// ReconcileState is a step of one reconciliation attempt.
type ReconcileState string

const (
	StateStart                    ReconcileState = "START"
	StateLookupMapping            ReconcileState = "LOOKUP_MAPPING"
	StateCreateCounterpart        ReconcileState = "CREATE_COUNTERPART"
	StateFetchRevisionThenUpdate  ReconcileState = "FETCH_REVISION_THEN_UPDATE"
	StateUpdateFailedStaleLink    ReconcileState = "UPDATE_FAILED_STALE_LINK"
	StateCreateFailedDuplicateKey ReconcileState = "CREATE_FAILED_DUPLICATE_KEY"
	StateSearchAndLink            ReconcileState = "SEARCH_AND_LINK"
	StateLinkRelated              ReconcileState = "LINK_RELATED"
	StateDone                     ReconcileState = "DONE"
	StateFailed                   ReconcileState = "FAILED"
	StateSkipped                  ReconcileState = "SKIPPED"
)

// String returns the string representation
func (s ReconcileState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition follows
func (s ReconcileState) IsTerminal() bool {
	switch s {
	case StateDone, StateFailed, StateSkipped:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

// Anomaly tags for outcomes that succeeded along an unexpected path
const (
	AnomalyDuplicateCreateRace = "duplicate_create_race"
)

// Outcome is the result of one reconciliation attempt.
type Outcome struct {
	TenantID      uuid.UUID
	Kind          EntityKind
	Direction     Direction
	SourceID      string
	DestinationID string
	State         ReconcileState
	// Trail lists every state entered, in order
	Trail []ReconcileState
	// Created is set when a new counterpart was created
	Created bool
	// Healed is set when a stale link was replaced
	Healed bool
	// Reason explains a SKIPPED outcome
	Reason     string
	Anomaly    string
	ErrorClass string
}

// NewOutcome starts an outcome in the START state
func NewOutcome(tenantID uuid.UUID, kind EntityKind, direction Direction, sourceID string) Outcome {
	return Outcome{
		TenantID:  tenantID,
		Kind:      kind,
		Direction: direction,
		SourceID:  sourceID,
		State:     StateStart,
		Trail:     []ReconcileState{StateStart},
	}
}

// Enter moves the outcome to state
func (o *Outcome) Enter(state ReconcileState) {
	o.State = state
	o.Trail = append(o.Trail, state)
}

// Fail moves the outcome to FAILED and records the error class
func (o *Outcome) Fail(err error) {
	o.ErrorClass = ErrorClass(err)
	o.Enter(StateFailed)
}

// Skip moves the outcome to SKIPPED with a reason
func (o *Outcome) Skip(reason string) {
	o.Reason = reason
	o.Enter(StateSkipped)
}

// Visited reports whether state appears in the trail
func (o *Outcome) Visited(state ReconcileState) bool {
	for _, s := range o.Trail {
		if s == state {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Synchronizer and queue ports
// ---------------------------------------------------------------------------

// Synchronizer reconciles one entity kind in either direction.
// The returned outcome is always populated; err is non-nil exactly when the state is FAILED.
type Synchronizer interface {
	Kind() EntityKind
	Reconcile(ctx context.Context, session TenantSession, direction Direction, record Record) (Outcome, error)
}

// UnitAction is what a queued unit asks the worker to do
type UnitAction string

const (
	// UnitActionReconcile reconciles Record as Kind. The zero value means the same.
	UnitActionReconcile UnitAction = "reconcile"
	// UnitActionLineItem reconciles every deal the CRM line item Record belongs to
	UnitActionLineItem UnitAction = "line_item"
	// UnitActionDelete propagates the CRM deletion of Record
	UnitActionDelete UnitAction = "delete"
)

// String returns the action name, "reconcile" for the zero value
func (a UnitAction) String() string {
	if a == "" {
		return string(UnitActionReconcile)
	}
	return string(a)
}

// ReconcileUnit is one queued piece of reconciliation work.
type ReconcileUnit struct {
	Action     UnitAction
	Kind       EntityKind
	TenantID   uuid.UUID
	Direction  Direction
	Record     Record
	EnqueuedAt time.Time
}

// Enqueuer accepts units for asynchronous reconciliation
type Enqueuer interface {
	Enqueue(ctx context.Context, unit ReconcileUnit) error
}
