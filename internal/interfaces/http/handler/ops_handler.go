package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/scheduler"
	"github.com/ledgerlink/backend/internal/interfaces/http/dto"
	"github.com/ledgerlink/backend/internal/interfaces/http/middleware"
)

// Run listing bounds
const (
	DefaultRunsLimit = 20
	MaxRunsLimit     = 200
)

// PollTrigger starts a background poll of one tenant and kind
type PollTrigger interface {
	TriggerPoll(tenantID uuid.UUID, kind integration.EntityKind, window integration.DateWindow) error
}

// TenantReader reads tenants for the ops API
type TenantReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*integration.Tenant, error)
	List(ctx context.Context) ([]integration.Tenant, error)
}

// OpsHandler serves the operator API
type OpsHandler struct {
	BaseHandler
	trigger  PollTrigger
	tenants  TenantReader
	runs     integration.SyncRunRepository
	location *time.Location
	now      func() time.Time
	logger   *zap.Logger
}

// NewOpsHandler creates a new OpsHandler. Poll windows default to today in location.
func NewOpsHandler(trigger PollTrigger, tenants TenantReader, runs integration.SyncRunRepository, location *time.Location, logger *zap.Logger) *OpsHandler {
	if location == nil {
		location = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpsHandler{
		trigger:  trigger,
		tenants:  tenants,
		runs:     runs,
		location: location,
		now:      time.Now,
		logger:   logger.Named("ops"),
	}
}

// TenantResponse is a tenant's connection status
type TenantResponse struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	CRMAccountID        string `json:"crm_account_id"`
	AccountingFileID    string `json:"accounting_file_id,omitempty"`
	CRMConnected        bool   `json:"crm_connected"`
	AccountingConnected bool   `json:"accounting_connected"`
}

// ListTenants handles GET /ops/tenants
func (h *OpsHandler) ListTenants(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to list tenants", zap.Error(err))
		h.InternalError(c)
		return
	}
	out := make([]TenantResponse, len(tenants))
	for i, t := range tenants {
		out[i] = TenantResponse{
			ID:                  t.ID.String(),
			Name:                t.Name,
			CRMAccountID:        t.CRMAccountID,
			AccountingFileID:    t.AccountingFileID,
			CRMConnected:        t.CRM.Connected,
			AccountingConnected: t.Accounting.Connected,
		}
	}
	h.Success(c, out)
}

// TriggerPoll handles POST /ops/tenants/:id/poll/:kind
func (h *OpsHandler) TriggerPoll(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Tenant id must be a UUID")
		return
	}
	kind, err := integration.ParseEntityKind(c.Param("kind"))
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidKind, "Unknown kind "+strconv.Quote(c.Param("kind")))
		return
	}

	var req dto.PollRequest
	bind := c.ShouldBind
	if c.Request.ContentLength == 0 {
		bind = c.ShouldBindQuery
	}
	if err := bind(&req); err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidWindow, "from and to must be YYYY-MM-DD dates")
		return
	}
	window, err := h.window(req)
	if err != nil {
		h.ErrorWithCode(c, dto.ErrCodeInvalidWindow, err.Error())
		return
	}

	tenant, err := h.tenants.FindByID(c.Request.Context(), tenantID)
	if err != nil {
		if errors.Is(err, integration.ErrTenantNotFound) {
			h.ErrorWithCode(c, dto.ErrCodeTenantNotFound, "Tenant not found")
			return
		}
		h.logger.Error("Failed to load tenant", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		h.InternalError(c)
		return
	}
	if !tenant.IsFullyConnected() {
		h.ErrorWithCode(c, dto.ErrCodeConflict, "Tenant is not connected to both systems")
		return
	}

	switch err := h.trigger.TriggerPoll(tenantID, kind, window); {
	case errors.Is(err, scheduler.ErrPollInProgress):
		h.ErrorWithCode(c, dto.ErrCodePollInProgress, "A poll for this tenant and kind is already running")
		return
	case errors.Is(err, scheduler.ErrSchedulerNotRunning):
		h.ErrorWithCode(c, dto.ErrCodeUnavailable, "Poll scheduler is not running")
		return
	case err != nil:
		h.logger.Error("Failed to trigger poll", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		h.InternalError(c)
		return
	}

	h.logger.Info("Manual poll triggered",
		zap.String("tenant_id", tenantID.String()),
		zap.String("kind", kind.String()),
		zap.String("operator", middleware.GetOperator(c)),
		zap.Time("from", window.From),
		zap.Time("to", window.To),
	)
	h.Accepted(c, dto.PollAccepted{
		TenantID:   tenantID.String(),
		Kind:       kind.String(),
		WindowFrom: window.From,
		WindowTo:   window.To,
	})
}

// window resolves the requested dates in the poll location
func (h *OpsHandler) window(req dto.PollRequest) (integration.DateWindow, error) {
	if req.From == "" {
		if req.To != "" {
			return integration.DateWindow{}, errors.New("to requires from")
		}
		return integration.NewDailyWindow(h.now().In(h.location)), nil
	}

	from, err := time.ParseInLocation(integration.AccountingDateLayout, req.From, h.location)
	if err != nil {
		return integration.DateWindow{}, err
	}
	window := integration.NewDailyWindow(from)
	if req.To != "" {
		to, err := time.ParseInLocation(integration.AccountingDateLayout, req.To, h.location)
		if err != nil {
			return integration.DateWindow{}, err
		}
		if !to.After(from) {
			return integration.DateWindow{}, errors.New("to must be after from")
		}
		window.To = to
	}
	return window, nil
}

// ListRuns handles GET /ops/tenants/:id/runs?limit=n
func (h *OpsHandler) ListRuns(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Tenant id must be a UUID")
		return
	}
	limit := DefaultRunsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			h.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, MaxRunsLimit)
	}

	runs, err := h.runs.ListRecent(c.Request.Context(), tenantID, limit)
	if err != nil {
		h.logger.Error("Failed to list sync runs", zap.String("tenant_id", tenantID.String()), zap.Error(err))
		h.InternalError(c)
		return
	}

	out := make([]dto.SyncRunResponse, len(runs))
	for i, r := range runs {
		out[i] = dto.SyncRunResponse{
			ID:            r.ID.String(),
			Kind:          r.Kind.String(),
			WindowFrom:    r.WindowFrom,
			WindowTo:      r.WindowTo,
			Status:        r.Status.String(),
			PagesFetched:  r.PagesFetched,
			RecordsSeen:   r.RecordsSeen,
			RecordsFailed: r.RecordsFailed,
			ErrorMessage:  r.ErrorMessage,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
		}
	}
	h.Success(c, out)
}
