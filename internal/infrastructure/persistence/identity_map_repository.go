package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormIdentityMapRepository implements integration.IdentityMapRepository using GORM.
// Deleted mappings are soft deleted and never returned by lookups.
type GormIdentityMapRepository struct {
	db *gorm.DB
}

// NewGormIdentityMapRepository creates a new GormIdentityMapRepository
func NewGormIdentityMapRepository(db *gorm.DB) *GormIdentityMapRepository {
	return &GormIdentityMapRepository{db: db}
}

// FindByCRMID finds the live mapping holding a CRM id
func (r *GormIdentityMapRepository) FindByCRMID(ctx context.Context, kind integration.EntityKind, crmID string) (*integration.IdentityMapping, error) {
	return r.findOne(ctx, "kind = ? AND crm_id = ?", kind, crmID)
}

// FindByAccountingID finds the live mapping holding an accounting id
func (r *GormIdentityMapRepository) FindByAccountingID(ctx context.Context, kind integration.EntityKind, accountingID string) (*integration.IdentityMapping, error) {
	return r.findOne(ctx, "kind = ? AND accounting_id = ?", kind, accountingID)
}

func (r *GormIdentityMapRepository) findOne(ctx context.Context, query string, args ...any) (*integration.IdentityMapping, error) {
	var model models.IdentityMappingModel
	if err := r.db.WithContext(ctx).Where(query, args...).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Create links two remote ids. A unique violation on either side returns ErrDuplicateMapping.
func (r *GormIdentityMapRepository) Create(ctx context.Context, kind integration.EntityKind, crmID, accountingID string) (*integration.IdentityMapping, error) {
	mapping, err := integration.NewIdentityMapping(kind, crmID, accountingID)
	if err != nil {
		return nil, err
	}

	model := models.IdentityMappingModelFromDomain(mapping)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, integration.ErrDuplicateMapping
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// UpdateAccountingID repoints a mapping at a new accounting record
func (r *GormIdentityMapRepository) UpdateAccountingID(ctx context.Context, mapping *integration.IdentityMapping, accountingID string) error {
	return r.repoint(ctx, mapping, integration.SystemAccounting, "accounting_id", accountingID)
}

// UpdateCRMID repoints a mapping at a new CRM record
func (r *GormIdentityMapRepository) UpdateCRMID(ctx context.Context, mapping *integration.IdentityMapping, crmID string) error {
	return r.repoint(ctx, mapping, integration.SystemCRM, "crm_id", crmID)
}

func (r *GormIdentityMapRepository) repoint(ctx context.Context, mapping *integration.IdentityMapping, system integration.System, column, newID string) error {
	next := *mapping
	if err := next.Repoint(system, newID); err != nil {
		return err
	}

	result := r.db.WithContext(ctx).
		Model(&models.IdentityMappingModel{}).
		Where("id = ?", mapping.ID).
		Updates(map[string]any{
			column:       newID,
			"updated_at": next.UpdatedAt,
		})
	if result.Error != nil {
		if isUniqueViolation(result.Error) {
			return integration.ErrDuplicateMapping
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}

	*mapping = next
	return nil
}

// Delete soft deletes a mapping, freeing both ids for a new link
func (r *GormIdentityMapRepository) Delete(ctx context.Context, mapping *integration.IdentityMapping) error {
	result := r.db.WithContext(ctx).Delete(&models.IdentityMappingModel{}, "id = ?", mapping.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrMappingNotFound
	}
	return nil
}

// CountByKind counts live mappings of one kind
func (r *GormIdentityMapRepository) CountByKind(ctx context.Context, kind integration.EntityKind) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.IdentityMappingModel{}).
		Where("kind = ?", kind).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// isUniqueViolation recognizes a unique constraint failure translated by the dialector.
// Every connection is opened with TranslateError.
func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// Ensure GormIdentityMapRepository implements IdentityMapRepository
var _ integration.IdentityMapRepository = (*GormIdentityMapRepository)(nil)
