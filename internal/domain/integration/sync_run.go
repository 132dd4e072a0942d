package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SyncRunStatus is the status of one poll window run
type SyncRunStatus string

const (
	SyncRunStatusRunning SyncRunStatus = "RUNNING"
	SyncRunStatusSuccess SyncRunStatus = "SUCCESS"
	SyncRunStatusPartial SyncRunStatus = "PARTIAL"
	SyncRunStatusFailed  SyncRunStatus = "FAILED"
)

// IsValid checks if the status is known
func (s SyncRunStatus) IsValid() bool {
	switch s {
	case SyncRunStatusRunning, SyncRunStatusSuccess, SyncRunStatusPartial, SyncRunStatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation
func (s SyncRunStatus) String() string {
	return string(s)
}

// SyncRun records one poll window walk for audit
type SyncRun struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Kind          EntityKind
	WindowFrom    time.Time
	WindowTo      time.Time
	PagesFetched  int
	RecordsSeen   int
	RecordsFailed int
	Status        SyncRunStatus
	ErrorMessage  string
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// NewSyncRun starts a run
func NewSyncRun(tenantID uuid.UUID, kind EntityKind, window DateWindow) *SyncRun {
	return &SyncRun{
		ID:         uuid.New(),
		TenantID:   tenantID,
		Kind:       kind,
		WindowFrom: window.From,
		WindowTo:   window.To,
		Status:     SyncRunStatusRunning,
		StartedAt:  time.Now(),
	}
}

// Finish closes the run. A page error fails it; record failures make it partial.
func (r *SyncRun) Finish(pages, seen, failed int, err error) {
	now := time.Now()
	r.PagesFetched = pages
	r.RecordsSeen = seen
	r.RecordsFailed = failed
	r.FinishedAt = &now
	switch {
	case err != nil:
		r.Status = SyncRunStatusFailed
		r.ErrorMessage = err.Error()
	case failed > 0:
		r.Status = SyncRunStatusPartial
	default:
		r.Status = SyncRunStatusSuccess
	}
}

// Duration returns how long the run took, or zero while running
func (r *SyncRun) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SyncRunRepository persists poll runs
type SyncRunRepository interface {
	Save(ctx context.Context, run *SyncRun) error
	ListRecent(ctx context.Context, tenantID uuid.UUID, limit int) ([]SyncRun, error)
}
