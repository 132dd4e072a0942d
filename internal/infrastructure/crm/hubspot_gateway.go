package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// maxResponseSize is the maximum allowed response size from the HubSpot API (10MB)
const maxResponseSize = 10 * 1024 * 1024

// duplicateValueMarker appears in HubSpot's message when a unique property value is taken
const duplicateValueMarker = "PropertyValueCoordinates"

// HubSpotGateway implements integration.CRMGateway against the HubSpot REST API
type HubSpotGateway struct {
	config     *HubSpotConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewHubSpotGateway creates a new HubSpot gateway with the given configuration
func NewHubSpotGateway(config *HubSpotConfig, logger *zap.Logger) (*HubSpotGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HubSpotGateway{
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
	key  string
}

// Execute sends one request and decodes the JSON response into out.
// Non-success responses are returned as taxonomy errors wrapping *integration.RemoteError.
func (g *HubSpotGateway) Execute(ctx context.Context, session integration.TenantSession, method, path string, body, out any) error {
	return g.do(ctx, session, method, path, body, out, callScope{})
}

// GetObject fetches one object with the configured property list
func (g *HubSpotGateway) GetObject(ctx context.Context, session integration.TenantSession, objectType integration.CRMObjectType, id string) (*integration.CRMObject, error) {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s?%s", objectType, url.PathEscape(id), url.Values{
		"properties": {g.config.PropertiesFor(objectType.String())},
	}.Encode())

	var obj hubSpotObject
	if err := g.do(ctx, session, http.MethodGet, path, nil, &obj, callScope{kind: objectType.EntityKind(), id: id}); err != nil {
		return nil, err
	}
	return toCRMObject(obj), nil
}

// CreateObject creates an object and returns it with its new id
func (g *HubSpotGateway) CreateObject(ctx context.Context, session integration.TenantSession, objectType integration.CRMObjectType, properties map[string]string) (*integration.CRMObject, error) {
	path := fmt.Sprintf("/crm/v3/objects/%s", objectType)
	scope := callScope{kind: objectType.EntityKind(), key: uniqueKey(objectType, properties)}

	var obj hubSpotObject
	if err := g.do(ctx, session, http.MethodPost, path, hubSpotObjectInput{Properties: properties}, &obj, scope); err != nil {
		return nil, err
	}
	if obj.ID == "" {
		return nil, fmt.Errorf("%w: create %s returned no id", integration.ErrRemoteInvalidResponse, objectType)
	}
	return toCRMObject(obj), nil
}

// UpdateObject patches an object's properties
func (g *HubSpotGateway) UpdateObject(ctx context.Context, session integration.TenantSession, objectType integration.CRMObjectType, id string, properties map[string]string) (*integration.CRMObject, error) {
	path := fmt.Sprintf("/crm/v3/objects/%s/%s", objectType, url.PathEscape(id))

	var obj hubSpotObject
	if err := g.do(ctx, session, http.MethodPatch, path, hubSpotObjectInput{Properties: properties}, &obj, callScope{kind: objectType.EntityKind(), id: id}); err != nil {
		return nil, err
	}
	return toCRMObject(obj), nil
}

// ListAssociatedIDs lists the ids of to-objects associated with an object
func (g *HubSpotGateway) ListAssociatedIDs(ctx context.Context, session integration.TenantSession, from integration.CRMObjectType, id string, to integration.CRMObjectType) ([]string, error) {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/%s?limit=500", from, url.PathEscape(id), to)

	var res hubSpotAssociationResults
	if err := g.do(ctx, session, http.MethodGet, path, nil, &res, callScope{kind: from.EntityKind(), id: id}); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(res.Results))
	for _, r := range res.Results {
		if s := r.ToObjectID.String(); s != "" {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// Associate creates the default association between two objects
func (g *HubSpotGateway) Associate(ctx context.Context, session integration.TenantSession, from integration.CRMObjectType, fromID string, to integration.CRMObjectType, toID string) error {
	path := fmt.Sprintf("/crm/v4/objects/%s/%s/associations/default/%s/%s",
		from, url.PathEscape(fromID), to, url.PathEscape(toID))
	return g.do(ctx, session, http.MethodPut, path, nil, nil, callScope{kind: from.EntityKind(), id: fromID})
}

// SearchProductsBySKU returns products whose hs_sku equals sku, newest first
func (g *HubSpotGateway) SearchProductsBySKU(ctx context.Context, session integration.TenantSession, sku string) ([]integration.CRMObject, error) {
	req := hubSpotSearchRequest{
		FilterGroups: []hubSpotFilterGroup{{
			Filters: []hubSpotFilter{{PropertyName: "hs_sku", Operator: "EQ", Value: sku}},
		}},
		Sorts:      []hubSpotSort{{PropertyName: "createdate", Direction: "DESCENDING"}},
		Properties: g.config.Properties[integration.CRMObjectProducts.String()],
		Limit:      10,
	}

	var res hubSpotSearchResponse
	if err := g.do(ctx, session, http.MethodPost, "/crm/v3/objects/products/search", req, &res, callScope{kind: integration.EntityKindItem, key: sku}); err != nil {
		return nil, err
	}

	objects := make([]integration.CRMObject, 0, len(res.Results))
	for _, r := range res.Results {
		objects = append(objects, *toCRMObject(r))
	}
	return objects, nil
}

// FindContactIDByEmail resolves a contact id through the email id property
func (g *HubSpotGateway) FindContactIDByEmail(ctx context.Context, session integration.TenantSession, email string) (string, error) {
	if email == "" {
		return "", &integration.NotFoundError{System: integration.SystemCRM, Kind: integration.EntityKindContact}
	}
	path := fmt.Sprintf("/crm/v3/objects/contacts/%s?idProperty=email", url.PathEscape(email))

	var obj hubSpotObject
	if err := g.do(ctx, session, http.MethodGet, path, nil, &obj, callScope{kind: integration.EntityKindContact, id: email}); err != nil {
		return "", err
	}
	return obj.ID, nil
}

// do executes a request and classifies failures
func (g *HubSpotGateway) do(ctx context.Context, session integration.TenantSession, method, path string, body, out any, scope callScope) error {
	if !session.IsConnected(integration.SystemCRM) {
		return &integration.TenantNotConnectedError{TenantID: session.TenantID().String(), System: integration.SystemCRM}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hubspot: failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.config.APIBaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("hubspot: failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+session.AccessToken(integration.SystemCRM))

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &integration.TransientRemoteError{System: integration.SystemCRM, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &integration.TransientRemoteError{System: integration.SystemCRM, Err: fmt.Errorf("hubspot: failed to read response: %w", err)}
	}

	if resp.StatusCode >= 400 {
		classified := g.classify(resp.StatusCode, respBody, session, scope)
		g.logger.Debug("HubSpot request failed",
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
func (g *HubSpotGateway) classify(status int, body []byte, session integration.TenantSession, scope callScope) error {
	var errBody hubSpotErrorResponse
	_ = json.Unmarshal(body, &errBody)
	message := errBody.String()
	if message == "" {
		message = http.StatusText(status)
	}
	remote := &integration.RemoteError{System: integration.SystemCRM, Status: status, Message: message}

	switch {
	case status == http.StatusUnauthorized:
		return &integration.TenantNotConnectedError{TenantID: session.TenantID().String(), System: integration.SystemCRM, Err: remote}
	case status == http.StatusTooManyRequests || errBody.Category == hubSpotCategoryRateLimit || status >= 500:
		return &integration.TransientRemoteError{System: integration.SystemCRM, Err: remote}
	case status == http.StatusNotFound || errBody.Category == hubSpotCategoryNotFound:
		return &integration.NotFoundError{System: integration.SystemCRM, Kind: scope.kind, ID: scope.id, Err: remote}
	case status == http.StatusConflict || errBody.Category == hubSpotCategoryConflict:
		return &integration.DuplicateKeyError{System: integration.SystemCRM, Kind: scope.kind, Key: scope.key, Err: remote}
	case status == http.StatusBadRequest && strings.Contains(errBody.Message, duplicateValueMarker):
		return &integration.DuplicateKeyError{System: integration.SystemCRM, Kind: scope.kind, Key: scope.key, Err: remote}
	default:
		return remote
	}
}

// uniqueKey returns the property HubSpot enforces uniqueness on for an object type
func uniqueKey(objectType integration.CRMObjectType, properties map[string]string) string {
	switch objectType {
	case integration.CRMObjectProducts:
		return properties["hs_sku"]
	case integration.CRMObjectContacts:
		return properties["email"]
	default:
		return ""
	}
}

func toCRMObject(obj hubSpotObject) *integration.CRMObject {
	return &integration.CRMObject{ID: obj.ID, Properties: flattenProperties(obj.Properties)}
}

// Ensure HubSpotGateway implements CRMGateway
var _ integration.CRMGateway = (*HubSpotGateway)(nil)
