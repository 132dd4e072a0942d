package integration

import (
	"context"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// CompanySynchronizer reconciles companies in both directions
type CompanySynchronizer struct {
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	flow       *reconcileFlow
}

// NewCompanySynchronizer creates a new CompanySynchronizer
func NewCompanySynchronizer(deps SynchronizerDeps) *CompanySynchronizer {
	return &CompanySynchronizer{
		crm:        deps.CRM,
		accounting: deps.Accounting,
		flow:       newReconcileFlow(integration.EntityKindCompany, deps.Mappings, deps.logger()),
	}
}

// Kind returns the entity kind
func (s *CompanySynchronizer) Kind() integration.EntityKind {
	return integration.EntityKindCompany
}

// Reconcile reconciles one company
func (s *CompanySynchronizer) Reconcile(ctx context.Context, session integration.TenantSession, direction integration.Direction, record integration.Record) (integration.Outcome, error) {
	switch direction {
	case integration.DirectionCRMToAccounting:
		return runPlan(ctx, s.flow, session, direction, record, s.toAccounting())
	case integration.DirectionAccountingToCRM:
		return runPlan(ctx, s.flow, session, direction, record, s.toCRM())
	default:
		return rejectDirection(s.flow, session, direction, record, integration.ErrInvalidDirection)
	}
}

func (s *CompanySynchronizer) toAccounting() reconcilePlan[*integration.CRMObject, integration.AccountingCompany] {
	return reconcilePlan[*integration.CRMObject, integration.AccountingCompany]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.CRMObject, error) {
			return s.crm.GetObject(ctx, session, integration.CRMObjectCompanies, id)
		},
		prepare: func(_ context.Context, _ integration.TenantSession, src *integration.CRMObject) (integration.AccountingCompany, error) {
			if err := requireProperties(integration.EntityKindCompany, src); err != nil {
				return integration.AccountingCompany{}, err
			}
			return ToAccountingCompany(*src), nil
		},
		create: func(ctx context.Context, session integration.TenantSession, company integration.AccountingCompany) (string, error) {
			return s.accounting.CreateCompany(ctx, session, company)
		},
		update: func(ctx context.Context, session integration.TenantSession, company integration.AccountingCompany, destID string) error {
			existing, err := s.accounting.GetCompany(ctx, session, destID)
			if err != nil {
				return err
			}
			if existing == nil || existing.LastUpdatedID == "" {
				return missingRevision(integration.EntityKindCompany, destID)
			}
			company.ID = destID
			company.LastUpdatedID = existing.LastUpdatedID
			return s.accounting.UpdateCompany(ctx, session, company)
		},
	}
}

func (s *CompanySynchronizer) toCRM() reconcilePlan[*integration.AccountingCompany, map[string]string] {
	return reconcilePlan[*integration.AccountingCompany, map[string]string]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingCompany, error) {
			return s.accounting.GetCompany(ctx, session, id)
		},
		prepare: func(_ context.Context, _ integration.TenantSession, src *integration.AccountingCompany) (map[string]string, error) {
			return ToCRMCompany(*src), nil
		},
		create: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			return createCRMObject(ctx, s.crm, session, integration.CRMObjectCompanies, props)
		},
		update: func(ctx context.Context, session integration.TenantSession, props map[string]string, destID string) error {
			_, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectCompanies, destID, props)
			return err
		},
	}
}

// Ensure CompanySynchronizer implements Synchronizer
var _ integration.Synchronizer = (*CompanySynchronizer)(nil)
