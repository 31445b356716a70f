package authz

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Registry keeps one Store per browser session. Stores live in process
// memory, so a permission change is only observed by a session once its
// identity changes.
type Registry struct {
	reader  Reader
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*registryEntry
}

type registryEntry struct {
	store    *Store
	lastSeen time.Time
}

// NewRegistry constructs an empty Registry.
func NewRegistry(reader Reader, logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		reader:  reader,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
		stores:  make(map[string]*registryEntry),
	}
}

// Store returns the store of sessionID, creating it on first use.
func (r *Registry) Store(sessionID string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.stores[sessionID]
	if !ok {
		entry = &registryEntry{store: NewStore(r.reader, r.logger, r.metrics)}
		r.stores[sessionID] = entry
	}
	entry.lastSeen = r.now()
	r.metrics.setStores(len(r.stores))
	return entry.store
}

// Lookup returns the store of sessionID without creating one.
func (r *Registry) Lookup(sessionID string) (*Store, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.stores[sessionID]
	if !ok {
		return nil, false
	}
	return entry.store, true
}

// Forget drops the store of sessionID.
func (r *Registry) Forget(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stores, sessionID)
	r.metrics.setStores(len(r.stores))
}

// Len returns the number of tracked sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Sweep removes stores idle for longer than idle and returns how many were
// removed.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.now().Add(-idle)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.stores {
		if entry.lastSeen.Before(cutoff) {
			delete(r.stores, id)
			removed++
		}
	}
	r.metrics.setStores(len(r.stores))
	return removed
}

// Run sweeps idle stores every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval, idle time.Duration) error {
	if interval <= 0 || idle <= 0 {
		r.logger.Info("authz registry sweeper disabled")
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.logger.Info("authz registry sweep", slog.Int("removed", n))
			}
		}
	}
}
