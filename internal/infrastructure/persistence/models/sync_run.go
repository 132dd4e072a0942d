package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// SyncRunModel is the persistence model for one poll window run
type SyncRunModel struct {
	BaseModel
	TenantID      uuid.UUID                 `gorm:"type:uuid;not null;index:idx_sync_runs_tenant_started,priority:1"`
	Kind          integration.EntityKind    `gorm:"type:varchar(16);not null"`
	WindowFrom    time.Time                 `gorm:"not null"`
	WindowTo      time.Time                 `gorm:"not null"`
	PagesFetched  int                       `gorm:"not null;default:0"`
	RecordsSeen   int                       `gorm:"not null;default:0"`
	RecordsFailed int                       `gorm:"not null;default:0"`
	Status        integration.SyncRunStatus `gorm:"type:varchar(16);not null"`
	ErrorMessage  string                    `gorm:"type:text"`
	StartedAt     time.Time                 `gorm:"not null;index:idx_sync_runs_tenant_started,priority:2"`
	FinishedAt    *time.Time
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	return &integration.SyncRun{
		ID:            m.ID,
		TenantID:      m.TenantID,
		Kind:          m.Kind,
		WindowFrom:    m.WindowFrom,
		WindowTo:      m.WindowTo,
		PagesFetched:  m.PagesFetched,
		RecordsSeen:   m.RecordsSeen,
		RecordsFailed: m.RecordsFailed,
		Status:        m.Status,
		ErrorMessage:  m.ErrorMessage,
		StartedAt:     m.StartedAt,
		FinishedAt:    m.FinishedAt,
	}
}

// FromDomain populates the persistence model from a domain SyncRun
func (m *SyncRunModel) FromDomain(run *integration.SyncRun) {
	m.ID = run.ID
	m.TenantID = run.TenantID
	m.Kind = run.Kind
	m.WindowFrom = run.WindowFrom
	m.WindowTo = run.WindowTo
	m.PagesFetched = run.PagesFetched
	m.RecordsSeen = run.RecordsSeen
	m.RecordsFailed = run.RecordsFailed
	m.Status = run.Status
	m.ErrorMessage = run.ErrorMessage
	m.StartedAt = run.StartedAt
	m.FinishedAt = run.FinishedAt
	m.CreatedAt = run.StartedAt
	m.UpdatedAt = time.Now()
	if run.FinishedAt != nil {
		m.UpdatedAt = *run.FinishedAt
	}
}

// SyncRunModelFromDomain creates a new persistence model from a domain SyncRun
func SyncRunModelFromDomain(run *integration.SyncRun) *SyncRunModel {
	m := &SyncRunModel{}
	m.FromDomain(run)
	return m
}
