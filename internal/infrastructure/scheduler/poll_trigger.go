package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appintegration "github.com/ledgerlink/backend/internal/application/integration"
	"github.com/ledgerlink/backend/internal/domain/integration"
)

// Poller runs the daily accounting poll and single tenant windows
type Poller interface {
	PollDay(ctx context.Context, day time.Time) error
	PollTenant(ctx context.Context, tenantID uuid.UUID, kind integration.EntityKind, window integration.DateWindow) (appintegration.PollReport, error)
}

// PollTriggerConfig holds configuration for the daily poll trigger
type PollTriggerConfig struct {
	// Hour and Minute are the wall clock time of the daily poll in Location
	Hour     int
	Minute   int
	Location *time.Location

	// CheckInterval is how often to check if it's time to run
	CheckInterval time.Duration
	// PollTimeout bounds one daily poll or manual window
	PollTimeout time.Duration
}

// DefaultPollTriggerConfig returns 20:00 in the server's local zone
func DefaultPollTriggerConfig() PollTriggerConfig {
	return PollTriggerConfig{
		Hour:          20,
		Minute:        0,
		Location:      time.Local,
		CheckInterval: time.Minute,
		PollTimeout:   2 * time.Hour,
	}
}

// Validate validates the configuration
func (c *PollTriggerConfig) Validate() error {
	if c.Hour < 0 || c.Hour > 23 || c.Minute < 0 || c.Minute > 59 {
		return ErrInvalidConfig
	}
	if c.Location == nil || c.CheckInterval <= 0 || c.PollTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// PollTrigger starts the daily poll at the configured time and runs manual
// poll windows requested by operators, one at a time per tenant and kind.
type PollTrigger struct {
	config PollTriggerConfig
	poller Poller
	logger *zap.Logger
	now    func() time.Time

	cancel      context.CancelFunc
	baseCtx     context.Context
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
	inFlight    map[string]struct{}
}

// NewPollTrigger creates a new poll trigger
func NewPollTrigger(config PollTriggerConfig, poller Poller, logger *zap.Logger) (*PollTrigger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PollTrigger{
		config:   config,
		poller:   poller,
		logger:   logger,
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}, nil
}

// Start starts the trigger loop
func (c *PollTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.baseCtx = ctx
	c.mu.Unlock()

	c.wg.Add(1)
	go c.runLoop(ctx)

	c.logger.Info("Poll trigger started",
		zap.Int("hour", c.config.Hour),
		zap.Int("minute", c.config.Minute),
		zap.String("timezone", c.config.Location.String()),
	)
	return nil
}

// Stop stops the trigger and waits for running polls
func (c *PollTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.logger.Info("Poll trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *PollTrigger) runLoop(ctx context.Context) {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkAndTrigger(ctx)
		}
	}
}

// checkAndTrigger runs the daily poll once per local date, at or after the configured time
func (c *PollTrigger) checkAndTrigger(ctx context.Context) {
	now := c.now().In(c.config.Location)
	if !c.due(now) {
		return
	}
	c.logger.Info("Triggering daily poll", zap.String("date", now.Format(integration.AccountingDateLayout)))

	pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
	defer cancel()
	if err := c.poller.PollDay(pollCtx, now); err != nil {
		c.logger.Error("Daily poll failed", zap.Error(err))
	}
}

// due reports whether the daily poll should run at now and claims the date when it should.
// A trigger started after the configured time on a given day still runs once that day.
func (c *PollTrigger) due(now time.Time) bool {
	date := now.Format(integration.AccountingDateLayout)
	scheduled := time.Date(now.Year(), now.Month(), now.Day(), c.config.Hour, c.config.Minute, 0, 0, c.config.Location)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastRunDate == date || now.Before(scheduled) {
		return false
	}
	c.lastRunDate = date
	return true
}

// TriggerPoll starts a poll of one window for a tenant in the background.
// It returns ErrPollInProgress while the same tenant and kind is still polling.
func (c *PollTrigger) TriggerPoll(tenantID uuid.UUID, kind integration.EntityKind, window integration.DateWindow) error {
	key := tenantID.String() + "/" + kind.String()

	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	if _, busy := c.inFlight[key]; busy {
		c.mu.Unlock()
		return ErrPollInProgress
	}
	c.inFlight[key] = struct{}{}
	ctx := c.baseCtx
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			delete(c.inFlight, key)
			c.mu.Unlock()
		}()

		pollCtx, cancel := context.WithTimeout(ctx, c.config.PollTimeout)
		defer cancel()
		report, err := c.poller.PollTenant(pollCtx, tenantID, kind, window)
		if err != nil {
			c.logger.Error("Manual poll failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("kind", kind.String()),
				zap.Error(err),
			)
			return
		}
		c.logger.Info("Manual poll completed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("kind", kind.String()),
			zap.Int("seen", report.Seen),
			zap.Int("failed", report.Failed),
		)
	}()
	return nil
}
