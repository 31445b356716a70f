package authz

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// loadFailedMessage is shown to users when the record could not be read.
const loadFailedMessage = "permissions could not be loaded"

// Reader fetches the authorization record of one identity. A missing record
// is reported as found == false with a nil error.
type Reader interface {
	FindByIdentity(ctx context.Context, identityID string) (Record, bool, error)
}

// Store resolves the authorization record of the current identity and exposes
// it as State. Every identity change starts exactly one fetch; results of a
// fetch issued for a superseded identity are dropped.
//
// There is no fetch timeout. A reader that never returns leaves the store
// loading until the identity changes again.
type Store struct {
	reader  Reader
	logger  *slog.Logger
	metrics *Metrics

	mu       sync.Mutex
	started  bool
	identity string
	gen      uint64
	state    State
	settled  chan struct{}
	pending  bool
}

// NewStore constructs a Store. Until SetIdentity is called the store reports
// loading, matching an unresolved session.
func NewStore(reader Reader, logger *slog.Logger, metrics *Metrics) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		reader:  reader,
		logger:  logger,
		metrics: metrics,
		state:   State{Loading: true},
		settled: make(chan struct{}),
		pending: true,
	}
}

// SetIdentity feeds the current identity into the store. An empty identity
// means logged out. Repeating the current identity is a no-op.
//
// The fetch runs on its own goroutine and outlives ctx cancellation; ctx only
// contributes values such as the request ID to logging.
func (s *Store) SetIdentity(ctx context.Context, identityID string) {
	s.mu.Lock()
	if s.started && s.identity == identityID {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.identity = identityID
	s.gen++
	gen := s.gen

	// Wake waiters of the superseded fetch; they re-read the new state.
	if s.pending {
		close(s.settled)
	}

	if identityID == "" {
		s.state = State{}
		s.settled = closedChan()
		s.pending = false
		s.mu.Unlock()
		return
	}

	s.state = loadingState(identityID)
	s.settled = make(chan struct{})
	s.pending = true
	s.mu.Unlock()

	go s.fetch(context.WithoutCancel(ctx), gen, identityID)
}

func (s *Store) fetch(ctx context.Context, gen uint64, identityID string) {
	start := time.Now()
	rec, found, err := s.reader.FindByIdentity(ctx, identityID)
	elapsed := time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen {
		s.metrics.observeFetch(fetchStale, elapsed)
		s.logger.Debug("authz discard stale fetch", slog.String("identity", identityID))
		return
	}

	switch {
	case err != nil:
		s.metrics.observeFetch(fetchError, elapsed)
		s.logger.Warn("authz load record", slog.String("identity", identityID), slog.Any("error", err))
		st := State{IdentityID: identityID, Err: loadFailedMessage}
		s.state = st
	case !found:
		s.metrics.observeFetch(fetchEmpty, elapsed)
		s.state = State{IdentityID: identityID}
	default:
		s.metrics.observeFetch(fetchFound, elapsed)
		s.state = stateFromRecord(identityID, rec)
	}
	close(s.settled)
	s.pending = false
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the identity the store currently tracks.
func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

// Wait blocks until the current state is no longer loading or ctx is done,
// and returns the latest snapshot either way.
func (s *Store) Wait(ctx context.Context) State {
	for {
		s.mu.Lock()
		st, ch := s.state, s.settled
		s.mu.Unlock()
		if !st.Loading {
			return st
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s.State()
		}
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
