package integration

import (
	"context"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// DealSynchronizer reconciles CRM deals with accounting invoices.
// CRM → accounting raises a quote for deals in a quote stage and writes the
// invoiced amount back to the deal; accounting → CRM keeps the deal in step
// with the invoice and its payment.
type DealSynchronizer struct {
	crm        integration.CRMGateway
	accounting integration.AccountingGateway
	opts       SyncOptions
	flow       *reconcileFlow
	related    *relatedResolver
	logger     *zap.Logger
}

// NewDealSynchronizer creates a new DealSynchronizer
func NewDealSynchronizer(deps SynchronizerDeps) *DealSynchronizer {
	logger := deps.logger()
	return &DealSynchronizer{
		crm:        deps.CRM,
		accounting: deps.Accounting,
		opts:       deps.Options,
		flow:       newReconcileFlow(integration.EntityKindDeal, deps.Mappings, logger),
		related:    newRelatedResolver(deps.Mappings, logger),
		logger:     logger,
	}
}

// Kind returns the entity kind
func (s *DealSynchronizer) Kind() integration.EntityKind {
	return integration.EntityKindDeal
}

// Reconcile reconciles one deal or invoice
func (s *DealSynchronizer) Reconcile(ctx context.Context, session integration.TenantSession, direction integration.Direction, record integration.Record) (integration.Outcome, error) {
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
// CRM deal → accounting invoice
// ---------------------------------------------------------------------------

func (s *DealSynchronizer) toAccounting() reconcilePlan[*integration.CRMObject, integration.AccountingInvoice] {
	return reconcilePlan[*integration.CRMObject, integration.AccountingInvoice]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.CRMObject, error) {
			return s.crm.GetObject(ctx, session, integration.CRMObjectDeals, id)
		},
		prepare: s.prepareInvoice,
		create: func(ctx context.Context, session integration.TenantSession, invoice integration.AccountingInvoice) (string, error) {
			return s.accounting.CreateInvoice(ctx, session, invoice)
		},
		update: func(ctx context.Context, session integration.TenantSession, invoice integration.AccountingInvoice, destID string) error {
			existing, err := s.accounting.GetInvoice(ctx, session, destID)
			if err != nil {
				return err
			}
			if existing == nil || existing.LastUpdatedID == "" {
				return missingRevision(integration.EntityKindDeal, destID)
			}
			invoice.ID = destID
			invoice.LastUpdatedID = existing.LastUpdatedID
			invoice.InvoiceNumber = existing.InvoiceNumber
			if existing.TransactionDate != "" {
				invoice.TransactionDate = existing.TransactionDate
			}
			return s.accounting.UpdateInvoice(ctx, session, invoice)
		},
		link: func(ctx context.Context, session integration.TenantSession, deal *integration.CRMObject, invoice integration.AccountingInvoice, _ string) error {
			amount := WriteBackAmount(invoice.TotalAmount, s.opts.factor())
			_, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectDeals, deal.ID, map[string]string{propAmount: amount})
			return err
		},
	}
}

// prepareInvoice gates on the deal stage, resolves the billing contact and loads the line items
func (s *DealSynchronizer) prepareInvoice(ctx context.Context, session integration.TenantSession, deal *integration.CRMObject) (integration.AccountingInvoice, error) {
	if err := requireProperties(integration.EntityKindDeal, deal); err != nil {
		return integration.AccountingInvoice{}, err
	}
	fileID := session.AccountingFileID()
	stage := deal.Get(propDealStage)
	if !s.opts.IsQuoteStage(fileID, stage) {
		return integration.AccountingInvoice{}, skip("deal stage %q does not raise a quote", stage)
	}

	contactIDs, err := s.crm.ListAssociatedIDs(ctx, session, integration.CRMObjectDeals, deal.ID, integration.CRMObjectContacts)
	if err != nil {
		return integration.AccountingInvoice{}, err
	}
	if len(contactIDs) == 0 {
		return integration.AccountingInvoice{}, &integration.MissingPrerequisiteError{
			Kind: integration.EntityKindDeal, ID: deal.ID, Prerequisite: "associated contact",
		}
	}
	billingContactID, err := s.accountingContactFor(ctx, session, contactIDs[0])
	if err != nil {
		return integration.AccountingInvoice{}, err
	}

	lineItemIDs, err := s.crm.ListAssociatedIDs(ctx, session, integration.CRMObjectDeals, deal.ID, integration.CRMObjectLineItems)
	if err != nil {
		return integration.AccountingInvoice{}, err
	}
	if len(lineItemIDs) == 0 {
		return integration.AccountingInvoice{}, &integration.MissingPrerequisiteError{
			Kind: integration.EntityKindDeal, ID: deal.ID, Prerequisite: "line items",
		}
	}
	lineItems := make([]integration.CRMObject, 0, len(lineItemIDs))
	for _, id := range lineItemIDs {
		li, err := s.crm.GetObject(ctx, session, integration.CRMObjectLineItems, id)
		if err != nil {
			return integration.AccountingInvoice{}, err
		}
		lineItems = append(lineItems, *li)
	}

	return ToAccountingInvoice(*deal, lineItems, billingContactID, s.opts.now(), s.opts.CurrencyField(fileID)), nil
}

// accountingContactFor resolves the accounting counterpart of a deal's CRM contact
func (s *DealSynchronizer) accountingContactFor(ctx context.Context, session integration.TenantSession, crmContactID string) (string, error) {
	return s.related.resolve(ctx, integration.EntityKindContact, integration.SystemCRM, crmContactID, func(ctx context.Context) (string, error) {
		obj, err := s.crm.GetObject(ctx, session, integration.CRMObjectContacts, crmContactID)
		if err != nil {
			return "", err
		}
		contact, _ := ToAccountingContact(*obj)
		return s.accounting.CreateContact(ctx, session, contact)
	})
}

// ---------------------------------------------------------------------------
// accounting invoice → CRM deal
// ---------------------------------------------------------------------------

func (s *DealSynchronizer) toCRM() reconcilePlan[*integration.AccountingInvoice, map[string]string] {
	return reconcilePlan[*integration.AccountingInvoice, map[string]string]{
		hydrate: func(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingInvoice, error) {
			return s.accounting.GetInvoice(ctx, session, id)
		},
		prepare: func(ctx context.Context, session integration.TenantSession, inv *integration.AccountingInvoice) (map[string]string, error) {
			payment := s.paymentDetails(ctx, session, inv)
			return ToCRMDeal(*inv, payment, s.opts.CurrencyField(session.AccountingFileID())), nil
		},
		create: func(ctx context.Context, session integration.TenantSession, props map[string]string) (string, error) {
			return createCRMObject(ctx, s.crm, session, integration.CRMObjectDeals, props)
		},
		update: func(ctx context.Context, session integration.TenantSession, props map[string]string, destID string) error {
			_, err := s.crm.UpdateObject(ctx, session, integration.CRMObjectDeals, destID, props)
			return err
		},
		link: func(ctx context.Context, session integration.TenantSession, inv *integration.AccountingInvoice, _ map[string]string, destID string) error {
			if inv.BillingContactID == "" {
				return nil
			}
			return s.associateBillingContact(ctx, session, destID, inv.BillingContactID)
		},
	}
}

// paymentDetails looks up when and where a paid invoice was banked.
// Lookup failures are logged and leave the details empty.
func (s *DealSynchronizer) paymentDetails(ctx context.Context, session integration.TenantSession, inv *integration.AccountingInvoice) PaymentDetails {
	if !inv.IsPaid() {
		return PaymentDetails{}
	}
	logger := s.logger.With(
		zap.String("tenant_id", session.TenantID().String()),
		zap.String("accounting_id", inv.ID),
	)

	payment, err := s.accounting.FindInvoicePayment(ctx, session, inv.ID)
	if err != nil {
		logger.Warn("Failed to look up invoice payment", zap.Error(err))
		return PaymentDetails{}
	}
	if payment == nil {
		return PaymentDetails{}
	}

	var details PaymentDetails
	if !payment.TransactionDate.IsZero() {
		details.DatePaid = payment.TransactionDate.Format(integration.AccountingDateLayout)
	}
	if payment.PaymentAccountID == "" {
		return details
	}
	account, err := s.accounting.GetBankAccount(ctx, session, payment.PaymentAccountID)
	if err != nil {
		logger.Warn("Failed to look up payment bank account",
			zap.String("account_id", payment.PaymentAccountID), zap.Error(err))
		return details
	}
	details.BankAccount = account.Name
	return details
}

// associateBillingContact links the deal to the CRM counterpart of the invoice's billing contact.
// A counterpart deleted in the CRM is recreated and the association retried once.
func (s *DealSynchronizer) associateBillingContact(ctx context.Context, session integration.TenantSession, dealID, accountingContactID string) error {
	create := func(ctx context.Context) (string, error) {
		contact, err := s.accounting.GetContact(ctx, session, accountingContactID)
		if err != nil {
			return "", err
		}
		props := ToCRMContact(*contact)
		id, err := createCRMObject(ctx, s.crm, session, integration.CRMObjectContacts, props)
		if integration.IsDuplicateKey(err) {
			return s.crm.FindContactIDByEmail(ctx, session, props[propEmail])
		}
		return id, err
	}

	crmContactID, err := s.related.resolve(ctx, integration.EntityKindContact, integration.SystemAccounting, accountingContactID, create)
	if err != nil {
		return err
	}
	err = s.crm.Associate(ctx, session, integration.CRMObjectDeals, dealID, integration.CRMObjectContacts, crmContactID)
	if !integration.IsNotFound(err) {
		return err
	}

	crmContactID, err = s.related.recreate(ctx, integration.EntityKindContact, integration.SystemAccounting, accountingContactID, create)
	if err != nil {
		return err
	}
	return s.crm.Associate(ctx, session, integration.CRMObjectDeals, dealID, integration.CRMObjectContacts, crmContactID)
}

// Ensure DealSynchronizer implements Synchronizer
var _ integration.Synchronizer = (*DealSynchronizer)(nil)
