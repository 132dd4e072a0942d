package accounting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the Saasu API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// SaasuGateway implements integration.AccountingGateway against the Saasu REST API
type SaasuGateway struct {
	config     *SaasuConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSaasuGateway creates a new Saasu gateway with the given configuration
func NewSaasuGateway(config *SaasuConfig, logger *zap.Logger) (*SaasuGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SaasuGateway{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(config.TimeoutSeconds) * time.Second,
		},
		logger: logger,
	}, nil
}

// callScope names the record a request is about, for error classification
type callScope struct {
	kind integration.EntityKind
	id   string
}

// Execute sends one request and decodes the JSON response into out.
// path is relative to the API base URL and carries its own fileId query.
// Non-success responses are returned as taxonomy errors wrapping *integration.RemoteError.
func (g *SaasuGateway) Execute(ctx context.Context, session integration.TenantSession, method, path string, body, out any) error {
	return g.do(ctx, session, method, path, body, out, callScope{})
}

// ---------------------------------------------------------------------------
// Contacts
// ---------------------------------------------------------------------------

// GetContact fetches a contact including its LastUpdatedId
func (g *SaasuGateway) GetContact(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingContact, error) {
	var c saasuContact
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "contact/"+url.PathEscape(id), nil), nil, &c, callScope{integration.EntityKindContact, id}); err != nil {
		return nil, err
	}
	return c.toDomain(), nil
}

// CreateContact creates a contact and returns its id
func (g *SaasuGateway) CreateContact(ctx context.Context, session integration.TenantSession, contact integration.AccountingContact) (string, error) {
	contact.ID = ""
	contact.LastUpdatedID = ""
	var res saasuInsertResult
	if err := g.do(ctx, session, http.MethodPost, g.path(session, "contact", nil), fromContact(contact), &res, callScope{kind: integration.EntityKindContact}); err != nil {
		return "", err
	}
	return insertedID(res.InsertedContactID, integration.EntityKindContact)
}

// UpdateContact replaces a contact; LastUpdatedID must be current
func (g *SaasuGateway) UpdateContact(ctx context.Context, session integration.TenantSession, contact integration.AccountingContact) error {
	return g.do(ctx, session, http.MethodPut, g.path(session, "contact/"+url.PathEscape(contact.ID), nil), fromContact(contact), nil, callScope{integration.EntityKindContact, contact.ID})
}

// DeleteContact deletes a contact
func (g *SaasuGateway) DeleteContact(ctx context.Context, session integration.TenantSession, id string) error {
	return g.do(ctx, session, http.MethodDelete, g.path(session, "contact/"+url.PathEscape(id), nil), nil, nil, callScope{integration.EntityKindContact, id})
}

// ---------------------------------------------------------------------------
// Companies
// ---------------------------------------------------------------------------

// GetCompany fetches a company including its LastUpdatedId
func (g *SaasuGateway) GetCompany(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingCompany, error) {
	var c saasuCompany
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "company/"+url.PathEscape(id), nil), nil, &c, callScope{integration.EntityKindCompany, id}); err != nil {
		return nil, err
	}
	return c.toDomain(), nil
}

// CreateCompany creates a company and returns its id
func (g *SaasuGateway) CreateCompany(ctx context.Context, session integration.TenantSession, company integration.AccountingCompany) (string, error) {
	company.ID = ""
	company.LastUpdatedID = ""
	var res saasuInsertResult
	if err := g.do(ctx, session, http.MethodPost, g.path(session, "company", nil), fromCompany(company), &res, callScope{kind: integration.EntityKindCompany}); err != nil {
		return "", err
	}
	return insertedID(res.InsertedCompanyID, integration.EntityKindCompany)
}

// UpdateCompany replaces a company; LastUpdatedID must be current
func (g *SaasuGateway) UpdateCompany(ctx context.Context, session integration.TenantSession, company integration.AccountingCompany) error {
	return g.do(ctx, session, http.MethodPut, g.path(session, "company/"+url.PathEscape(company.ID), nil), fromCompany(company), nil, callScope{integration.EntityKindCompany, company.ID})
}

// DeleteCompany deletes a company
func (g *SaasuGateway) DeleteCompany(ctx context.Context, session integration.TenantSession, id string) error {
	return g.do(ctx, session, http.MethodDelete, g.path(session, "company/"+url.PathEscape(id), nil), nil, nil, callScope{integration.EntityKindCompany, id})
}

// ---------------------------------------------------------------------------
// Invoices
// ---------------------------------------------------------------------------

// GetInvoice fetches an invoice including its LastUpdatedId
func (g *SaasuGateway) GetInvoice(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingInvoice, error) {
	var inv saasuInvoice
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "invoice/"+url.PathEscape(id), nil), nil, &inv, callScope{integration.EntityKindDeal, id}); err != nil {
		return nil, err
	}
	return inv.toDomain(), nil
}

// CreateInvoice creates an invoice or quote and returns its id
func (g *SaasuGateway) CreateInvoice(ctx context.Context, session integration.TenantSession, invoice integration.AccountingInvoice) (string, error) {
	invoice.ID = ""
	invoice.LastUpdatedID = ""
	var res saasuInsertResult
	if err := g.do(ctx, session, http.MethodPost, g.path(session, "invoice", nil), fromInvoice(invoice), &res, callScope{kind: integration.EntityKindDeal}); err != nil {
		return "", err
	}
	return insertedID(res.InsertedEntityID, integration.EntityKindDeal)
}

// UpdateInvoice replaces an invoice; LastUpdatedID must be current
func (g *SaasuGateway) UpdateInvoice(ctx context.Context, session integration.TenantSession, invoice integration.AccountingInvoice) error {
	return g.do(ctx, session, http.MethodPut, g.path(session, "invoice/"+url.PathEscape(invoice.ID), nil), fromInvoice(invoice), nil, callScope{integration.EntityKindDeal, invoice.ID})
}

// DeleteInvoice deletes an invoice
func (g *SaasuGateway) DeleteInvoice(ctx context.Context, session integration.TenantSession, id string) error {
	return g.do(ctx, session, http.MethodDelete, g.path(session, "invoice/"+url.PathEscape(id), nil), nil, nil, callScope{integration.EntityKindDeal, id})
}

// ---------------------------------------------------------------------------
// Items, payments and accounts
// ---------------------------------------------------------------------------

// GetItem fetches an inventory item
func (g *SaasuGateway) GetItem(ctx context.Context, session integration.TenantSession, id string) (*integration.AccountingItem, error) {
	var item saasuItem
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "item/"+url.PathEscape(id), nil), nil, &item, callScope{integration.EntityKindItem, id}); err != nil {
		return nil, err
	}
	return item.toDomain(), nil
}

// FindInvoicePayment returns the first payment applied to an invoice, or nil
func (g *SaasuGateway) FindInvoicePayment(ctx context.Context, session integration.TenantSession, invoiceID string) (*integration.AccountingPayment, error) {
	var res saasuPaymentList
	query := url.Values{"ForInvoiceId": {invoiceID}}
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "payments", query), nil, &res, callScope{integration.EntityKindDeal, invoiceID}); err != nil {
		return nil, err
	}
	if len(res.PaymentTransactions) == 0 {
		return nil, nil
	}

	first := res.PaymentTransactions[0]
	payment := &integration.AccountingPayment{PaymentAccountID: first.PaymentAccountID.String()}
	if t, ok := parseSaasuTime(first.TransactionDate); ok {
		payment.TransactionDate = t
	}
	return payment, nil
}

// GetBankAccount fetches the ledger account a payment was banked into
func (g *SaasuGateway) GetBankAccount(ctx context.Context, session integration.TenantSession, accountID string) (*integration.AccountingBankAccount, error) {
	var acc saasuAccount
	if err := g.do(ctx, session, http.MethodGet, g.path(session, "account/"+url.PathEscape(accountID), nil), nil, &acc, callScope{id: accountID}); err != nil {
		return nil, err
	}
	return &integration.AccountingBankAccount{ID: acc.ID.String(), Name: acc.Name}, nil
}

// ---------------------------------------------------------------------------
// Listing
// ---------------------------------------------------------------------------

// ListModified returns one page of active records modified inside window
func (g *SaasuGateway) ListModified(ctx context.Context, session integration.TenantSession, kind integration.EntityKind, window integration.DateWindow, page int) ([]integration.Record, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{
		"LastModifiedFromDate": {window.From.Format(integration.AccountingDateLayout)},
		"LastModifiedToDate":   {window.To.Format(integration.AccountingDateLayout)},
		"Page":                 {strconv.Itoa(page)},
		"IsActive":             {"true"},
	}
	if g.config.PageSize > 0 {
		query.Set("PageSize", strconv.Itoa(g.config.PageSize))
	}
	scope := callScope{kind: kind}

	switch kind {
	case integration.EntityKindContact:
		var res saasuContactList
		if err := g.do(ctx, session, http.MethodGet, g.path(session, "contacts", query), nil, &res, scope); err != nil {
			return nil, err
		}
		records := make([]integration.Record, 0, len(res.Contacts))
		for _, c := range res.Contacts {
			records = append(records, integration.Record{ID: c.ID.String(), Payload: c.toDomain()})
		}
		return records, nil

	case integration.EntityKindCompany:
		var res saasuCompanyList
		if err := g.do(ctx, session, http.MethodGet, g.path(session, "companies", query), nil, &res, scope); err != nil {
			return nil, err
		}
		records := make([]integration.Record, 0, len(res.Companies))
		for _, c := range res.Companies {
			records = append(records, integration.Record{ID: c.ID.String(), Payload: c.toDomain()})
		}
		return records, nil

	case integration.EntityKindDeal:
		var res saasuInvoiceList
		if err := g.do(ctx, session, http.MethodGet, g.path(session, "invoices", query), nil, &res, scope); err != nil {
			return nil, err
		}
		records := make([]integration.Record, 0, len(res.Invoices))
		for _, inv := range res.Invoices {
			records = append(records, integration.Record{ID: inv.TransactionID.String(), Payload: inv.toDomain()})
		}
		return records, nil

	case integration.EntityKindItem:
		var res saasuItemList
		if err := g.do(ctx, session, http.MethodGet, g.path(session, "items", query), nil, &res, scope); err != nil {
			return nil, err
		}
		records := make([]integration.Record, 0, len(res.Items))
		for _, item := range res.Items {
			records = append(records, integration.Record{ID: item.ID.String(), Payload: item.toDomain()})
		}
		return records, nil

	default:
		return nil, integration.ErrInvalidEntityKind
	}
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

// path builds a resource path scoped by the session's file id
func (g *SaasuGateway) path(session integration.TenantSession, resource string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("fileId", session.AccountingFileID())
	return "/" + resource + "?" + query.Encode()
}

// do executes a request and classifies failures
func (g *SaasuGateway) do(ctx context.Context, session integration.TenantSession, method, path string, body, out any, scope callScope) error {
	if !session.IsConnected(integration.SystemAccounting) {
		return &integration.TenantNotConnectedError{TenantID: session.TenantID().String(), System: integration.SystemAccounting}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("saasu: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("saasu: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken(integration.SystemAccounting))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &integration.TransientRemoteError{System: integration.SystemAccounting, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &integration.TransientRemoteError{System: integration.SystemAccounting, Err: fmt.Errorf("saasu: failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		classified := classify(resp.StatusCode, respBody, session, scope)
		g.logger.Debug("Saasu request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.Error(classified),
		)
		return classified
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("%w: %v", integration.ErrRemoteInvalidResponse, err)
	}
	return nil
}

// classify maps a failed response onto the error taxonomy
func classify(status int, body []byte, session integration.TenantSession, scope callScope) error {
	var errBody saasuErrorResponse
	_ = json.Unmarshal(body, &errBody)
	message := errBody.String()
	if message == "" {
		message = http.StatusText(status)
	}
	remote := &integration.RemoteError{System: integration.SystemAccounting, Status: status, Message: message}

	switch {
	case status == http.StatusUnauthorized:
		return &integration.TenantNotConnectedError{TenantID: session.TenantID().String(), System: integration.SystemAccounting, Err: remote}
	case status == http.StatusTooManyRequests || status >= 500:
		return &integration.TransientRemoteError{System: integration.SystemAccounting, Err: remote}
	case status == http.StatusNotFound:
		return &integration.NotFoundError{System: integration.SystemAccounting, Kind: scope.kind, ID: scope.id, Err: remote}
	case status == http.StatusConflict:
		return &integration.DuplicateKeyError{System: integration.SystemAccounting, Kind: scope.kind, Err: remote}
	default:
		return remote
	}
}

func insertedID(id json.Number, kind integration.EntityKind) (string, error) {
	if id == "" || id == "0" {
		return "", fmt.Errorf("%w: create %s returned no id", integration.ErrRemoteInvalidResponse, kind)
	}
	return id.String(), nil
}

// Ensure SaasuGateway implements AccountingGateway
var _ integration.AccountingGateway = (*SaasuGateway)(nil)
