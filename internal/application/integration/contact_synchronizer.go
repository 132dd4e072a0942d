package integration

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// ContactSynchronizer reconciles contacts in both directions
type ContactSynchronizer struct {
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	flow       *reconcileFlow
	related    *relatedResolver
	logger     *zap.Logger
}

// NewContactSynchronizer creates a new ContactSynchronizer
func NewContactSynchronizer(deps SynchronizerDeps) *ContactSynchronizer {
	logger := deps.logger()
	return &ContactSynchronizer{
		crm:        deps.CRM,
		accounting: deps.Accounting,
		flow:       newReconcileFlow(integration.EntityKindContact, deps.Mappings, logger),
		related:    newRelatedResolver(deps.Mappings, logger),
		logger:     logger,
	}
}

// Kind returns the entity kind
func (s *ContactSynchronizer) Kind() integration.EntityKind {
	return integration.EntityKindContact
}

// Reconcile reconciles one contact
func (s *ContactSynchronizer) Reconcile(ctx context.Context, session integration.TenantSession, direction integration.Direction, record integration.Record) (integration.Outcome, error) {
	switch direction {
	case integration.DirectionCRMToAccounting:
		return runPlan(ctx, s.flow, session, direction, record, s.toAccounting())
	case integration.DirectionAccountingToCRM:
		return runPlan(ctx, s.flow, session, direction, record, s.toCRM())
	default:
		return rejectDirection(s.flow, session, direction, record, integration.ErrInvalidDirection)
	}
}

// ---------------------------------------------------------------------------
// CRM → accounting
// ---------------------------------------------------------------------------

func (s *ContactSynchronizer) toAccounting() reconcilePlan[*integration.CRMObject, integration.AccountingContact] {
	return reconcilePlan[*integration.CRMObject, integration.AccountingContact]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.CRMObject, error) {
			return s.crm.GetObject(ctx, session, integration.CRMObjectContacts, id)
		},
		prepare: func(ctx context.Context, session integration.TenantSession, src *integration.CRMObject) (integration.AccountingContact, error) {
			if err := requireProperties(integration.EntityKindContact, src); err != nil {
				return integration.AccountingContact{}, err
			}
			contact, unrecognized := ToAccountingContact(*src)
			if len(unrecognized) > 0 {
				s.logger.Warn("Ignoring unrecognized contact types",
					zap.String("tenant_id", session.TenantID().String()),
					zap.String("crm_id", src.ID),
					zap.Strings("contact_types", unrecognized),
				)
			}

			companyID, err := s.accountingCompanyFor(ctx, session, src.ID)
			if err != nil {
				return integration.AccountingContact{}, err
			}
			contact.CompanyID = companyID
			return contact, nil
		},
		create: func(ctx context.Context, session integration.TenantSession, contact integration.AccountingContact) (string, error) {
			return s.accounting.CreateContact(ctx, session, contact)
		},
		update: func(ctx context.Context, session integration.TenantSession, contact integration.AccountingContact, destID string) error {
			existing, err := s.accounting.GetContact(ctx, session, destID)
			if err != nil {
				return err
			}
			if existing == nil || existing.LastUpdatedID == "" {
				return missingRevision(integration.EntityKindContact, destID)
			}
			contact.ID = destID
			contact.LastUpdatedID = existing.LastUpdatedID
			return s.accounting.UpdateContact(ctx, session, contact)
		},
	}
}

// accountingCompanyFor resolves the accounting company of the contact's first associated CRM company
func (s *ContactSynchronizer) accountingCompanyFor(ctx context.Context, session integration.TenantSession, contactID string) (string, error) {
	companyIDs, err := s.crm.ListAssociatedIDs(ctx, session, integration.CRMObjectContacts, contactID, integration.CRMObjectCompanies)
	if err != nil {
		return "", err
	}
	if len(companyIDs) == 0 {
		return "", nil
	}

	crmCompanyID := companyIDs[0]
	return s.related.resolve(ctx, integration.EntityKindCompany, integration.SystemCRM, crmCompanyID, func(ctx context.Context) (string, error) {
		obj, err := s.crm.GetObject(ctx, session, integration.CRMObjectCompanies, crmCompanyID)
		if err != nil {
			return "", err
		}
		return s.accounting.CreateCompany(ctx, session, ToAccountingCompany(*obj))
	})
}

// ---------------------------------------------------------------------------
// accounting → CRM
// ---------------------------------------------------------------------------

func (s *ContactSynchronizer) toCRM() reconcilePlan[*integration.AccountingContact, map[string]string] {
	return reconcilePlan[*integration.AccountingContact, map[string]string]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingContact, error) {
			return s.accounting.GetContact(ctx, session, id)
		},
		prepare: func(_ context.Context, _ integration.TenantSession, src *integration.AccountingContact) (map[string]string, error) {
			return ToCRMContact(*src), nil
		},
		create: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			return createCRMObject(ctx, s.crm, session, integration.CRMObjectContacts, props)
		},
		search: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			id, err := s.crm.FindContactIDByEmail(ctx, session, props[propEmail])
			if err != nil {
				return "", err
			}
			if _, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectContacts, id, props); err != nil {
				return "", err
			}
			return id, nil
		},
		update: func(ctx context.Context, session integration.TenantSession, props map[string]string, destID string) error {
			_, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectContacts, destID, props)
			return err
		},
		link: func(ctx context.Context, session integration.TenantSession, src *integration.AccountingContact, _ map[string]string, destID string) error {
			if src.CompanyID == "" {
				return nil
			}
			return s.associateCompany(ctx, session, destID, src.CompanyID)
		},
	}
}

// associateCompany links the CRM contact to the CRM counterpart of an accounting company
func (s *ContactSynchronizer) associateCompany(ctx context.Context, session integration.TenantSession, crmContactID, accountingCompanyID string) error {
	create := func(ctx context.Context) (string, error) {
		company, err := s.accounting.GetCompany(ctx, session, accountingCompanyID)
		if err != nil {
			return "", err
		}
		return createCRMObject(ctx, s.crm, session, integration.CRMObjectCompanies, ToCRMCompany(*company))
	}

	crmCompanyID, err := s.related.resolve(ctx, integration.EntityKindCompany, integration.SystemAccounting, accountingCompanyID, create)
	if err != nil {
		return err
	}
	err = s.crm.Associate(ctx, session, integration.CRMObjectContacts, crmContactID, integration.CRMObjectCompanies, crmCompanyID)
	if !integration.IsNotFound(err) {
		return err
	}

	crmCompanyID, err = s.related.recreate(ctx, integration.EntityKindCompany, integration.SystemAccounting, accountingCompanyID, create)
	if err != nil {
		return err
	}
	return s.crm.Associate(ctx, session, integration.CRMObjectContacts, crmContactID, integration.CRMObjectCompanies, crmCompanyID)
}

// Ensure ContactSynchronizer implements Synchronizer
var _ integration.Synchronizer = (*ContactSynchronizer)(nil)
