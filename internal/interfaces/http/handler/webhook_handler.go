package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/crm"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/infrastructure/telemetry"
	"github.com/ledgerlink/backend/internal/interfaces/http/dto"
)

// DefaultMaxWebhookPayloadSize bounds a webhook batch. HubSpot sends at most 100 events.
const DefaultMaxWebhookPayloadSize = 1 << 20

// SignatureVerifier checks a webhook signature
type SignatureVerifier interface {
	Verify(req crm.SignatureRequest) error
}

// EventRouter routes a verified webhook batch
type EventRouter interface {
	Route(ctx context.Context, events []integration.WebhookEvent) appintegration.RouteReport
}

// WebhookHandler receives CRM webhook batches.
// These endpoints are called by HubSpot and authenticate by signature only.
type WebhookHandler struct {
	BaseHandler
	verifier   SignatureVerifier
	router     EventRouter
	maxPayload int
	// publicBaseURL is the scheme and host HubSpot signed, e.g. https://sync.example.com
	publicBaseURL string
	logger        *zap.Logger
}

// WebhookHandlerOption configures a WebhookHandler
type WebhookHandlerOption func(*WebhookHandler)

// WithMaxPayloadSize overrides DefaultMaxWebhookPayloadSize
func WithMaxPayloadSize(n int) WebhookHandlerOption {
	return func(h *WebhookHandler) {
		if n > 0 {
			h.maxPayload = n
		}
	}
}

// WithPublicBaseURL sets the externally visible origin used for v2 and v3 signatures
func WithPublicBaseURL(u string) WebhookHandlerOption {
	return func(h *WebhookHandler) { h.publicBaseURL = u }
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(verifier SignatureVerifier, router EventRouter, logger *zap.Logger, opts ...WebhookHandlerOption) *WebhookHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &WebhookHandler{
		verifier:   verifier,
		router:     router,
		maxPayload: DefaultMaxWebhookPayloadSize,
		logger:     logger.Named("webhook"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes mounts POST /webhooks/hubspot
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/hubspot", h.HandleHubSpot)
}

// HandleHubSpot verifies, decodes and routes a batch. A batch with an event that could not
// be queued gets 503 so HubSpot redelivers it; events already queued are skipped as duplicates.
func (h *WebhookHandler) HandleHubSpot(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, int64(h.maxPayload)+1))
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) > h.maxPayload {
		h.ErrorWithCode(c, dto.ErrCodeTooLarge, "Payload too large")
		return
	}

	if err := h.verifier.Verify(h.signatureRequest(c, payload)); err != nil {
		h.logger.Warn("Rejected webhook with invalid signature",
			zap.String("client_ip", c.ClientIP()),
			zap.Int("body_size", len(payload)),
		)
		h.ErrorWithCode(c, dto.ErrCodeInvalidSignature, "Invalid webhook signature")
		return
	}

	var events []integration.WebhookEvent
	if err := json.Unmarshal(payload, &events); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidJSON, "Webhook body must be a JSON array of events")
		return
	}

	ctx, span := telemetry.StartSpan(c.Request.Context(), "webhook.hubspot.route",
		attribute.Int("webhook.events", len(events)))
	report := h.router.Route(ctx, events)
	telemetry.EndSpan(span, routeError(report))

	logger.L(ctx).Info("Webhook batch routed",
		zap.Int("received", report.Received),
		zap.Int("dispatched", report.Dispatched),
		zap.Int("duplicate", report.Duplicate),
		zap.Int("failed", report.Failed),
	)
	status := http.StatusOK
	if report.Failed > 0 {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, toWebhookAck(report))
}

func (h *WebhookHandler) signatureRequest(c *gin.Context, body []byte) crm.SignatureRequest {
	return crm.SignatureRequest{
		Method:      c.Request.Method,
		URI:         h.requestURI(c),
		Body:        body,
		Signature:   c.GetHeader(crm.HeaderSignature),
		Version:     c.GetHeader(crm.HeaderSignatureVersion),
		SignatureV3: c.GetHeader(crm.HeaderSignatureV3),
		Timestamp:   c.GetHeader(crm.HeaderRequestTimestamp),
	}
}

// requestURI rebuilds the URL HubSpot called
func (h *WebhookHandler) requestURI(c *gin.Context) string {
	if h.publicBaseURL != "" {
		return h.publicBaseURL + c.Request.URL.RequestURI()
	}
	scheme := "https"
	if c.Request.TLS == nil && c.GetHeader("X-Forwarded-Proto") == "http" {
		scheme = "http"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.RequestURI()
}

func routeError(report appintegration.RouteReport) error {
	if report.Failed == 0 {
		return nil
	}
	return errors.New(strconv.Itoa(report.Failed) + " webhook events failed")
}

func toWebhookAck(r appintegration.RouteReport) dto.WebhookAck {
	return dto.WebhookAck{
		Received:   r.Received,
		Invalid:    r.Invalid,
		Duplicate:  r.Duplicate,
		Filtered:   r.Filtered,
		Dropped:    r.Dropped,
		Unknown:    r.Unknown,
		Dispatched: r.Dispatched,
		Failed:     r.Failed,
	}
}
