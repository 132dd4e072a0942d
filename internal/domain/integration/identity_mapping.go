package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// IdentityMapping Entity
// ---------------------------------------------------------------------------

// IdentityMapping links one CRM record with its accounting counterpart.
// For a given kind, CRMID and AccountingID are each unique among live mappings.
type IdentityMapping struct {
	// ID is the unique identifier of this mapping
	ID uuid.UUID
	// Kind is the entity kind both records belong to
	Kind EntityKind
	// CRMID is the record id in the CRM
	CRMID string
	// AccountingID is the record id in the accounting system
	AccountingID string
	// CreatedAt is when the link was first made
	CreatedAt time.Time
	// UpdatedAt is when a stale id was last repaired
	UpdatedAt time.Time
	// DeletedAt is set by the deletion workflow
	DeletedAt *time.Time
}

// NewIdentityMapping creates a live mapping between two remote ids
func NewIdentityMapping(kind EntityKind, crmID, accountingID string) (*IdentityMapping, error) {
	if !kind.IsValid() {
		return nil, ErrInvalidEntityKind
	}
	if crmID == "" || accountingID == "" {
		return nil, ErrMappingInvalidID
	}

	now := time.Now()
	return &IdentityMapping{
		ID:           uuid.New(),
		Kind:         kind,
		CRMID:        crmID,
		AccountingID: accountingID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// IDIn returns the id this mapping holds for the given system
func (m *IdentityMapping) IDIn(system System) string {
	if system == SystemCRM {
		return m.CRMID
	}
	return m.AccountingID
}

// Repoint replaces the id held for system, used when the stored counterpart is gone.
func (m *IdentityMapping) Repoint(system System, newID string) error {
	if newID == "" {
		return ErrMappingInvalidID
	}
	if system == SystemCRM {
		m.CRMID = newID
	} else {
		m.AccountingID = newID
	}
	m.UpdatedAt = time.Now()
	return nil
}

// IsDeleted reports whether the mapping has been removed by the deletion workflow
func (m *IdentityMapping) IsDeleted() bool {
	return m.DeletedAt != nil
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// IdentityMapRepository is the durable identity map.
// Lookups ignore deleted mappings and return ErrMappingNotFound on a miss.
// Create returns ErrDuplicateMapping when either id is already linked for the kind.
type IdentityMapRepository interface {
	FindByCRMID(ctx context.Context, kind EntityKind, crmID string) (*IdentityMapping, error)
	FindByAccountingID(ctx context.Context, kind EntityKind, accountingID string) (*IdentityMapping, error)
	Create(ctx context.Context, kind EntityKind, crmID, accountingID string) (*IdentityMapping, error)
	UpdateAccountingID(ctx context.Context, mapping *IdentityMapping, accountingID string) error
	UpdateCRMID(ctx context.Context, mapping *IdentityMapping, crmID string) error
	Delete(ctx context.Context, mapping *IdentityMapping) error
	CountByKind(ctx context.Context, kind EntityKind) (int64, error)
}

// FindBySource looks up a mapping by the id the record carries in its source system.
func FindBySource(ctx context.Context, repo IdentityMapRepository, kind EntityKind, source System, id string) (*IdentityMapping, error) {
	if source == SystemCRM {
		return repo.FindByCRMID(ctx, kind, id)
	}
	return repo.FindByAccountingID(ctx, kind, id)
}
