package models

import (
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// IdentityMappingModel is the persistence model for the IdentityMapping entity.
// Each remote id is unique per kind among live rows; deleted rows keep their ids for audit.
type IdentityMappingModel struct {
	BaseModel
	Kind         integration.EntityKind `gorm:"type:varchar(16);not null;uniqueIndex:uq_identity_mappings_crm,priority:1,where:deleted_at IS NULL;uniqueIndex:uq_identity_mappings_accounting,priority:1,where:deleted_at IS NULL"`
	CRMID        string                 `gorm:"column:crm_id;type:varchar(64);not null;uniqueIndex:uq_identity_mappings_crm,priority:2,where:deleted_at IS NULL"`
	AccountingID string                 `gorm:"column:accounting_id;type:varchar(64);not null;uniqueIndex:uq_identity_mappings_accounting,priority:2,where:deleted_at IS NULL"`
	DeletedAt    gorm.DeletedAt         `gorm:"index"`
}

// TableName returns the table name for GORM
func (IdentityMappingModel) TableName() string {
	return "identity_mappings"
}

// ToDomain converts the persistence model to a domain IdentityMapping
func (m *IdentityMappingModel) ToDomain() *integration.IdentityMapping {
	mapping := &integration.IdentityMapping{
		ID:           m.ID,
		Kind:         m.Kind,
		CRMID:        m.CRMID,
		AccountingID: m.AccountingID,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
	if m.DeletedAt.Valid {
		deletedAt := m.DeletedAt.Time
		mapping.DeletedAt = &deletedAt
	}
	return mapping
}

// FromDomain populates the persistence model from a domain IdentityMapping
func (m *IdentityMappingModel) FromDomain(mapping *integration.IdentityMapping) {
	m.ID = mapping.ID
	m.Kind = mapping.Kind
	m.CRMID = mapping.CRMID
	m.AccountingID = mapping.AccountingID
	m.CreatedAt = mapping.CreatedAt
	m.UpdatedAt = mapping.UpdatedAt
	m.DeletedAt = gorm.DeletedAt{}
	if mapping.DeletedAt != nil {
		m.DeletedAt = gorm.DeletedAt{Time: *mapping.DeletedAt, Valid: true}
	}
}

// IdentityMappingModelFromDomain creates a new persistence model from a domain IdentityMapping
func IdentityMappingModelFromDomain(mapping *integration.IdentityMapping) *IdentityMappingModel {
	m := &IdentityMappingModel{}
	m.FromDomain(mapping)
	return m
}
