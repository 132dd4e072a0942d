package integration

import (
	"context"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// ItemSynchronizer pushes accounting inventory items to CRM products.
// Items only flow from accounting to CRM.
type ItemSynchronizer struct {
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	flow       *reconcileFlow
}

// NewItemSynchronizer creates a new ItemSynchronizer
func NewItemSynchronizer(deps SynchronizerDeps) *ItemSynchronizer {
	return &ItemSynchronizer{
		crm:        deps.CRM,
		accounting: deps.Accounting,
		flow:       newReconcileFlow(integration.EntityKindItem, deps.Mappings, deps.logger()),
	}
}

// Kind returns the entity kind
func (s *ItemSynchronizer) Kind() integration.EntityKind {
	return integration.EntityKindItem
}

// Reconcile reconciles one item; CRM → accounting is rejected with ErrUnsupportedDirection
func (s *ItemSynchronizer) Reconcile(ctx context.Context, session integration.TenantSession, direction integration.Direction, record integration.Record) (integration.Outcome, error) {
	if direction != integration.DirectionAccountingToCRM {
		return rejectDirection(s.flow, session, direction, record, integration.ErrUnsupportedDirection)
	}

	return runPlan(ctx, s.flow, session, direction, record, reconcilePlan[*integration.AccountingItem, map[string]string]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingItem, error) {
			return s.accounting.GetItem(ctx, session, id)
		},
		prepare: func(_ context.Context, _ integration.TenantSession, item *integration.AccountingItem) (map[string]string, error) {
			return ToCRMProduct(*item), nil
		},
		create: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			return createCRMObject(ctx, s.crm, session, integration.CRMObjectProducts, props)
		},
		search: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			sku := props[propSKU]
			products, err := s.crm.SearchProductsBySKU(ctx, session, sku)
			if err != nil {
				return "", err
			}
			if len(products) == 0 {
				return "", &integration.NotFoundError{System: integration.SystemCRM, Kind: integration.EntityKindItem, ID: sku}
			}
			return products[0].ID, nil
		},
		update: func(ctx context.Context, session integration.TenantSession, props map[string]string, destID string) error {
			_, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectProducts, destID, props)
			return err
		},
	})
}

// Ensure ItemSynchronizer implements Synchronizer
var _ integration.Synchronizer = (*ItemSynchronizer)(nil)
