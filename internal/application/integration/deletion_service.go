package integration

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// DeletionService removes the accounting counterpart of a deleted CRM record along with its mapping
type DeletionService struct {
	accounting integration.AccountingGateway
	mappings   integration.IdentityMapRepository
	logger     *zap.Logger
}

// NewDeletionService creates a new DeletionService
func NewDeletionService(accounting integration.AccountingGateway, mappings integration.IdentityMapRepository, logger *zap.Logger) *DeletionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeletionService{accounting: accounting, mappings: mappings, logger: logger}
}

// Delete deletes the counterpart of crmID. A record that was never linked is ignored,
// and a counterpart that is already gone still has its mapping removed.
func (s *DeletionService) Delete(ctx context.Context, session integration.TenantSession, kind integration.EntityKind, crmID string) error {
	mapping, err := s.mappings.FindByCRMID(ctx, kind, crmID)
	if errors.Is(err, integration.ErrMappingNotFound) {
		s.logger.Debug("Deleted record was never linked",
			zap.String("tenant_id", session.TenantID().String()),
			zap.String("kind", kind.String()),
			zap.String("crm_id", crmID),
		)
		return nil
	}
	if err != nil {
		return err
	}

	switch kind {
	case integration.EntityKindContact:
		err = s.accounting.DeleteContact(ctx, session, mapping.AccountingID)
	case integration.EntityKindCompany:
		err = s.accounting.DeleteCompany(ctx, session, mapping.AccountingID)
	case integration.EntityKindDeal:
		err = s.accounting.DeleteInvoice(ctx, session, mapping.AccountingID)
	default:
		return integration.ErrInvalidEntityKind
	}
	if err != nil && !integration.IsNotFound(err) {
		return err
	}

	if err := s.mappings.Delete(ctx, mapping); err != nil {
		return err
	}
	s.logger.Info("Counterpart deleted",
		zap.String("tenant_id", session.TenantID().String()),
		zap.String("kind", kind.String()),
		zap.String("crm_id", crmID),
		zap.String("accounting_id", mapping.AccountingID),
	)
	return nil
}
