package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/persistence/models"
)

// GormTenantRepository implements integration.TenantRepository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// FindByID finds a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Tenant, error) {
	var model models.TenantModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrTenantNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByCRMAccountID finds the tenant a CRM portal belongs to
func (r *GormTenantRepository) FindByCRMAccountID(ctx context.Context, crmAccountID string) (*integration.Tenant, error) {
	if crmAccountID == "" {
		return nil, integration.ErrTenantNotFound
	}
	var model models.TenantModel
	if err := r.db.WithContext(ctx).
		Where("crm_account_id = ?", crmAccountID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrTenantNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListFullyConnected lists tenants connected to both systems, oldest first
func (r *GormTenantRepository) ListFullyConnected(ctx context.Context) ([]integration.Tenant, error) {
	return r.list(r.db.WithContext(ctx).
		Where("crm_connected = ? AND accounting_connected = ?", true, true))
}

// List lists every tenant, oldest first
func (r *GormTenantRepository) List(ctx context.Context) ([]integration.Tenant, error) {
	return r.list(r.db.WithContext(ctx))
}

func (r *GormTenantRepository) list(query *gorm.DB) ([]integration.Tenant, error) {
	var tenantModels []models.TenantModel
	if err := query.Order("created_at ASC").Find(&tenantModels).Error; err != nil {
		return nil, err
	}

	tenants := make([]integration.Tenant, len(tenantModels))
	for i, model := range tenantModels {
		tenants[i] = *model.ToDomain()
	}
	return tenants, nil
}

// Save creates or updates a tenant
func (r *GormTenantRepository) Save(ctx context.Context, tenant *integration.Tenant) error {
	model := models.TenantModelFromDomain(tenant)
	return r.db.WithContext(ctx).Save(model).Error
}

// SaveCredential stores a refreshed credential without touching the other system's columns.
// A non-empty accountingFileID also rescopes the tenant's accounting file.
func (r *GormTenantRepository) SaveCredential(ctx context.Context, tenantID uuid.UUID, system integration.System, cred integration.Credential, accountingFileID string) error {
	updates := models.CredentialColumns(system, cred)
	if accountingFileID != "" {
		updates["accounting_file_id"] = accountingFileID
	}
	updates["updated_at"] = time.Now()
	return r.update(ctx, tenantID, updates)
}

// MarkDisconnected clears the connected flag for one system
func (r *GormTenantRepository) MarkDisconnected(ctx context.Context, tenantID uuid.UUID, system integration.System) error {
	return r.update(ctx, tenantID, map[string]any{
		models.ConnectedColumn(system): false,
		"updated_at":                   time.Now(),
	})
}

func (r *GormTenantRepository) update(ctx context.Context, tenantID uuid.UUID, updates map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&models.TenantModel{}).
		Where("id = ?", tenantID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrTenantNotFound
	}
	return nil
}

// Ensure GormTenantRepository implements TenantRepository
var _ integration.TenantRepository = (*GormTenantRepository)(nil)
