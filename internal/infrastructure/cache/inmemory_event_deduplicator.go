package cache

import (
	"context"
	"sync"
	"time"

	"github.com/ledgerlink/backend/internal/domain/integration"
)

// InMemoryEventDeduplicator keeps delivered webhook keys in a map.
// State is per process, so it only suits single-instance deployments and tests.
type InMemoryEventDeduplicator struct {
	mu        sync.Mutex
	expiresAt map[string]time.Time
	now       func() time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewInMemoryEventDeduplicator creates a deduplicator that sweeps expired keys every interval
func NewInMemoryEventDeduplicator(interval time.Duration) *InMemoryEventDeduplicator {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	d := &InMemoryEventDeduplicator{
		expiresAt: make(map[string]time.Time),
		now:       time.Now,
		stopChan:  make(chan struct{}),
	}
	d.wg.Add(1)
	go d.cleanupLoop(interval)
	return d
}

// MarkProcessed returns true if key was not marked or its mark expired
func (d *InMemoryEventDeduplicator) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if exp, ok := d.expiresAt[key]; ok && now.Before(exp) {
		return false, nil
	}
	d.expiresAt[key] = now.Add(ttl)
	return true, nil
}

// Forget removes key
func (d *InMemoryEventDeduplicator) Forget(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.expiresAt, key)
	return nil
}

// Close stops the sweeper. Safe to call multiple times.
func (d *InMemoryEventDeduplicator) Close() error {
	d.closeOnce.Do(func() {
		close(d.stopChan)
		d.wg.Wait()
	})
	return nil
}

// Size returns the number of remembered keys
func (d *InMemoryEventDeduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.expiresAt)
}

func (d *InMemoryEventDeduplicator) cleanupLoop(interval time.Duration) {
	defer d.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-d.stopChan:
			return
		case <-ticker.C:
			d.cleanup()
		}
	}
}

func (d *InMemoryEventDeduplicator) cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, exp := range d.expiresAt {
		if !now.Before(exp) {
			delete(d.expiresAt, key)
		}
	}
}

var _ integration.EventDeduplicator = (*InMemoryEventDeduplicator)(nil)
