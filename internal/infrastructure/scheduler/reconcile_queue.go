package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
	"github.com/ledgerlink/backend/internal/infrastructure/logger"
	"github.com/ledgerlink/backend/internal/infrastructure/telemetry"
)

// UnitExecutor reconciles one queued unit
type UnitExecutor interface {
	Execute(ctx context.Context, unit integration.ReconcileUnit) error
}

// ReconcileQueueConfig holds configuration for the reconcile queue
type ReconcileQueueConfig struct {
	// Workers is the number of concurrent reconciliations
	Workers int
	// QueueSize is the capacity of the pending unit buffer
	QueueSize int
	// JobTimeout is the maximum time one reconciliation can run
	JobTimeout time.Duration
	// RetryAttempts is the number of retries for transient failures
	RetryAttempts int
	// RetryDelay is the base delay between retries (with exponential backoff)
	RetryDelay time.Duration
	// MaxRetryDelay caps the backoff
	MaxRetryDelay time.Duration
}

// DefaultReconcileQueueConfig returns default configuration
func DefaultReconcileQueueConfig() ReconcileQueueConfig {
	return ReconcileQueueConfig{
		Workers:       4,
		QueueSize:     1000,
		JobTimeout:    2 * time.Minute,
		RetryAttempts: 3,
		RetryDelay:    30 * time.Second,
		MaxRetryDelay: 30 * time.Minute,
	}
}

// Validate validates the configuration
func (c *ReconcileQueueConfig) Validate() error {
	if c.Workers <= 0 || c.QueueSize <= 0 {
		return ErrInvalidConfig
	}
	if c.JobTimeout <= 0 {
		return ErrInvalidConfig
	}
	if c.RetryAttempts < 0 || c.RetryDelay < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// backoff returns the delay before retry number attempt (1-based)
func (c *ReconcileQueueConfig) backoff(attempt int) time.Duration {
	delay := c.RetryDelay * time.Duration(1<<(attempt-1))
	if c.MaxRetryDelay > 0 && delay > c.MaxRetryDelay {
		delay = c.MaxRetryDelay
	}
	return delay
}

// queuedUnit is a unit plus its retry bookkeeping
type queuedUnit struct {
	unit    integration.ReconcileUnit
	attempt int
}

// ReconcileQueue runs reconciliation units on a fixed worker pool.
// Delivery is at-least-once and unordered. Only failures that satisfy
// integration.IsRetryable are retried.
type ReconcileQueue struct {
	config   ReconcileQueueConfig
	executor UnitExecutor
	logger   *zap.Logger

	jobs      chan queuedUnit
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	retries   sync.WaitGroup
	mu        sync.RWMutex
	isRunning bool
}

// NewReconcileQueue creates a new reconcile queue
func NewReconcileQueue(config ReconcileQueueConfig, executor UnitExecutor, log *zap.Logger) (*ReconcileQueue, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ReconcileQueue{
		config:   config,
		executor: executor,
		logger:   log,
		jobs:     make(chan queuedUnit, config.QueueSize),
	}, nil
}

// Start starts the worker pool
func (q *ReconcileQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = true
	q.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	for i := 0; i < q.config.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}

	q.logger.Info("Reconcile queue started",
		zap.Int("workers", q.config.Workers),
		zap.Int("queue_size", q.config.QueueSize),
		zap.Duration("job_timeout", q.config.JobTimeout),
	)
	return nil
}

// Stop stops accepting units, cancels pending retries and waits for in-flight work
func (q *ReconcileQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.isRunning {
		q.mu.Unlock()
		return nil
	}
	q.isRunning = false
	q.mu.Unlock()

	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.retries.Wait()
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("Reconcile queue stopped gracefully", zap.Int("abandoned", len(q.jobs)))
		return nil
	case <-ctx.Done():
		q.logger.Warn("Reconcile queue stop timed out")
		return ctx.Err()
	}
}

// Enqueue implements integration.Enqueuer
func (q *ReconcileQueue) Enqueue(ctx context.Context, unit integration.ReconcileUnit) error {
	if unit.EnqueuedAt.IsZero() {
		unit.EnqueuedAt = time.Now()
	}
	if err := q.submit(queuedUnit{unit: unit}); err != nil {
		return err
	}
	logger.L(ctx).Debug("Reconcile unit queued",
		logger.ReconcileFields(unit.TenantID.String(), unit.Kind.String(), "", "")...)
	return nil
}

// Pending returns the number of units waiting for a worker
func (q *ReconcileQueue) Pending() int {
	return len(q.jobs)
}

func (q *ReconcileQueue) submit(job queuedUnit) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if !q.isRunning {
		return ErrSchedulerNotRunning
	}
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrJobQueueFull
	}
}

func (q *ReconcileQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job, workerID)
		}
	}
}

func (q *ReconcileQueue) process(ctx context.Context, job queuedUnit, workerID int) {
	unit := job.unit
	jobCtx, cancel := context.WithTimeout(ctx, q.config.JobTimeout)
	defer cancel()
	jobCtx = logger.WithTenantID(logger.WithContext(jobCtx, q.logger), unit.TenantID.String())

	var err error
	telemetry.WithProfilingLabels(jobCtx, map[string]string{
		telemetry.ProfilingLabelKind:   unit.Kind.String(),
		telemetry.ProfilingLabelAction: unit.Action.String(),
	}, func(ctx context.Context) {
		err = q.executor.Execute(ctx, unit)
	})
	if err == nil {
		return
	}

	fields := append(logger.ReconcileFields(unit.TenantID.String(), unit.Kind.String(), "", ""),
		zap.Int("worker_id", workerID),
		zap.String("action", unit.Action.String()),
		zap.String("record_id", unit.Record.ID),
		zap.String("direction", unit.Direction.String()),
		zap.Int("attempt", job.attempt+1),
		zap.Error(err),
	)

	if !integration.IsRetryable(err) || job.attempt >= q.config.RetryAttempts {
		q.logger.Error("Reconcile unit failed", fields...)
		return
	}

	job.attempt++
	delay := q.config.backoff(job.attempt)
	q.logger.Warn("Reconcile unit scheduled for retry", append(fields, zap.Duration("delay", delay))...)
	q.retryLater(ctx, job, delay)
}

// retryLater resubmits job after delay unless the queue stops first
func (q *ReconcileQueue) retryLater(ctx context.Context, job queuedUnit, delay time.Duration) {
	q.retries.Add(1)
	go func() {
		defer q.retries.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := q.submit(job); err != nil {
			q.logger.Warn("Failed to re-queue reconcile unit",
				zap.String("tenant_id", job.unit.TenantID.String()),
				zap.String("record_id", job.unit.Record.ID),
				zap.Error(err),
			)
		}
	}()
}

var _ integration.Enqueuer = (*ReconcileQueue)(nil)
