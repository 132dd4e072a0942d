package scheduler

import (
	"context"
	"errors"
	"runtime/pprof"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

type funcExecutor func(ctx context.Context, unit integration.ReconcileUnit) error

func (f funcExecutor) Execute(ctx context.Context, unit integration.ReconcileUnit) error {
	return f(ctx, unit)
}

func fastQueueConfig() ReconcileQueueConfig {
	return ReconcileQueueConfig{
		Workers:       2,
		QueueSize:     10,
		JobTimeout:    time.Second,
		RetryAttempts: 2,
		RetryDelay:    5 * time.Millisecond,
		MaxRetryDelay: 20 * time.Millisecond,
	}
}

func testUnit(id string) integration.ReconcileUnit {
	return integration.ReconcileUnit{
		Kind:      integration.EntityKindContact,
		TenantID:  uuid.New(),
		Direction: integration.DirectionCRMToAccounting,
		Record:    integration.Record{ID: id},
	}
}

func startQueue(t *testing.T, cfg ReconcileQueueConfig, exec UnitExecutor) *ReconcileQueue {
	t.Helper()
	q, err := NewReconcileQueue(cfg, exec, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = q.Stop(ctx)
	})
	return q
}

// ---------------------------------------------------------------------------
// Config
// ---------------------------------------------------------------------------

func TestReconcileQueueConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ReconcileQueueConfig)
		valid  bool
	}{
		{"default", func(*ReconcileQueueConfig) {}, true},
		{"no workers", func(c *ReconcileQueueConfig) { c.Workers = 0 }, false},
		{"no buffer", func(c *ReconcileQueueConfig) { c.QueueSize = 0 }, false},
		{"no timeout", func(c *ReconcileQueueConfig) { c.JobTimeout = 0 }, false},
		{"negative retries", func(c *ReconcileQueueConfig) { c.RetryAttempts = -1 }, false},
		{"zero retries", func(c *ReconcileQueueConfig) { c.RetryAttempts = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultReconcileQueueConfig()
			tt.mutate(&cfg)
			if tt.valid {
				assert.NoError(t, cfg.Validate())
			} else {
				assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
			}
		})
	}
}

func TestReconcileQueueConfig_Backoff(t *testing.T) {
	cfg := ReconcileQueueConfig{RetryDelay: time.Second, MaxRetryDelay: 3 * time.Second}
	assert.Equal(t, time.Second, cfg.backoff(1))
	assert.Equal(t, 2*time.Second, cfg.backoff(2))
	assert.Equal(t, 3*time.Second, cfg.backoff(3))
}

// ---------------------------------------------------------------------------
// Queue behaviour
// ---------------------------------------------------------------------------

func TestReconcileQueue_EnqueueBeforeStart(t *testing.T) {
	q, err := NewReconcileQueue(fastQueueConfig(), funcExecutor(func(context.Context, integration.ReconcileUnit) error { return nil }), nil)
	require.NoError(t, err)
	assert.ErrorIs(t, q.Enqueue(context.Background(), testUnit("1")), ErrSchedulerNotRunning)
}

func TestReconcileQueue_ExecutesUnits(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	q := startQueue(t, fastQueueConfig(), funcExecutor(func(_ context.Context, unit integration.ReconcileUnit) error {
		mu.Lock()
		defer mu.Unlock()
		seen[unit.Record.ID] = true
		return nil
	}))

	for _, id := range []string{"1", "2", "3"} {
		require.NoError(t, q.Enqueue(context.Background(), testUnit(id)))
	}

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestReconcileQueue_LabelsProfilesByKindAndAction(t *testing.T) {
	labels := make(chan [2]string, 1)
	q := startQueue(t, fastQueueConfig(), funcExecutor(func(ctx context.Context, _ integration.ReconcileUnit) error {
		kind, _ := pprof.Label(ctx, "kind")
		action, _ := pprof.Label(ctx, "action")
		labels <- [2]string{kind, action}
		return nil
	}))

	unit := testUnit("1")
	unit.Kind = integration.EntityKindDeal
	unit.Action = integration.UnitActionLineItem
	require.NoError(t, q.Enqueue(context.Background(), unit))

	select {
	case got := <-labels:
		assert.Equal(t, [2]string{"deal", "line_item"}, got)
	case <-time.After(time.Second):
		t.Fatal("unit was not executed")
	}
}

func TestReconcileQueue_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, fastQueueConfig(), funcExecutor(func(context.Context, integration.ReconcileUnit) error {
		if calls.Add(1) < 3 {
			return &integration.TransientRemoteError{System: integration.SystemCRM, Err: errors.New("429")}
		}
		return nil
	}))

	require.NoError(t, q.Enqueue(context.Background(), testUnit("1")))

	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestReconcileQueue_StopsRetryingAfterMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, fastQueueConfig(), funcExecutor(func(context.Context, integration.ReconcileUnit) error {
		calls.Add(1)
		return &integration.TransientRemoteError{System: integration.SystemAccounting, Err: errors.New("503")}
	}))

	require.NoError(t, q.Enqueue(context.Background(), testUnit("1")))

	// first attempt plus two retries
	assert.Eventually(t, func() bool { return calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load())
}

func TestReconcileQueue_DoesNotRetryPermanentFailures(t *testing.T) {
	var calls atomic.Int32
	q := startQueue(t, fastQueueConfig(), funcExecutor(func(context.Context, integration.ReconcileUnit) error {
		calls.Add(1)
		return &integration.NotFoundError{System: integration.SystemCRM, Kind: integration.EntityKindContact, ID: "1"}
	}))

	require.NoError(t, q.Enqueue(context.Background(), testUnit("1")))

	assert.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestReconcileQueue_JobTimeout(t *testing.T) {
	cfg := fastQueueConfig()
	cfg.JobTimeout = 10 * time.Millisecond
	cfg.RetryAttempts = 0

	deadlineHit := make(chan struct{})
	q := startQueue(t, cfg, funcExecutor(func(ctx context.Context, _ integration.ReconcileUnit) error {
		<-ctx.Done()
		close(deadlineHit)
		return ctx.Err()
	}))

	require.NoError(t, q.Enqueue(context.Background(), testUnit("1")))

	select {
	case <-deadlineHit:
	case <-time.After(time.Second):
		t.Fatal("job context was not cancelled")
	}
}

func TestReconcileQueue_Full(t *testing.T) {
	cfg := fastQueueConfig()
	cfg.Workers = 1
	cfg.QueueSize = 1

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	q := startQueue(t, cfg, funcExecutor(func(ctx context.Context, _ integration.ReconcileUnit) error {
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))
	defer close(release)

	require.NoError(t, q.Enqueue(context.Background(), testUnit("1")))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), testUnit("2")))
	assert.Equal(t, 1, q.Pending())
	assert.ErrorIs(t, q.Enqueue(context.Background(), testUnit("3")), ErrJobQueueFull)
}

func TestReconcileQueue_StopIsIdempotent(t *testing.T) {
	q, err := NewReconcileQueue(fastQueueConfig(), funcExecutor(func(context.Context, integration.ReconcileUnit) error { return nil }), nil)
	require.NoError(t, err)
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Start(context.Background()))

	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
	assert.ErrorIs(t, q.Enqueue(context.Background(), testUnit("1")), ErrSchedulerNotRunning)
}
