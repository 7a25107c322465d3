// ABOUTME: In-memory view state store with transition tracking and subscriptions
// ABOUTME: Merges partial transitions, exposes IsTransitioning, and optionally persists state

package viewstate

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// persistTimeout bounds a single Persister call.
const persistTimeout = 2 * time.Second

// Persister saves the latest state under a key so a frontend can restore it.
type Persister interface {
	SavePanelState(ctx context.Context, key string, state PanelState) error
}

// Options configures a Store.
type Options struct {
	// Initial is the starting state. A zero Mode becomes ModeConversation.
	Initial PanelState

	// TransitionDuration is how long IsTransitioning stays true after a
	// transition. Zero means transitions complete immediately.
	TransitionDuration time.Duration

	// Persister and PersistKey enable saving every applied state.
	Persister  Persister
	PersistKey string

	Logger *slog.Logger
}

// Store owns the panel state. Callers never mutate state directly; they
// request transitions and observe the result.
type Store struct {
	// applyMu orders apply, persist and notify across concurrent transitions
	applyMu sync.Mutex

	mu            sync.RWMutex
	state         PanelState
	transitioning bool
	generation    uint64
	timer         *time.Timer
	duration      time.Duration
	closed        bool

	subMu       sync.Mutex
	subscribers map[uint64]func(PanelState)
	nextSubID   uint64

	persister  Persister
	persistKey string
	logger     *slog.Logger
}

// New creates a Store.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	initial := opts.Initial
	if !initial.Mode.Valid() {
		initial.Mode = ModeConversation
	}
	return &Store{
		state:       initial,
		duration:    opts.TransitionDuration,
		subscribers: make(map[uint64]func(PanelState)),
		persister:   opts.Persister,
		persistKey:  opts.PersistKey,
		logger:      logger.With("component", "viewstate"),
	}
}

// State returns a copy of the current state.
func (s *Store) State() PanelState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// IsTransitioning reports whether a transition is still settling.
func (s *Store) IsTransitioning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transitioning
}

// TransitionToState merges t into the current state and notifies subscribers.
// A transition requested while another is settling replaces it and restarts
// the settle timer. Unknown modes are ignored.
//
// Concurrent transitions are applied, persisted and announced one at a time,
// so the Persister and subscribers always end on the latest state.
// Subscribers must not call TransitionToState.
func (s *Store) TransitionToState(t Transition) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	if t.Mode != nil && !t.Mode.Valid() {
		s.logger.Warn("ignoring transition to unknown mode", "mode", string(*t.Mode))
		t.Mode = nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.state = t.Apply(s.state)
	s.generation++
	gen := s.generation
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.duration > 0 {
		s.transitioning = true
		s.timer = time.AfterFunc(s.duration, func() { s.settle(gen) })
	} else {
		s.transitioning = false
	}
	state := s.state
	s.mu.Unlock()

	s.logger.Debug("transition applied",
		"open", state.Open,
		"mode", string(state.Mode),
		"assistant_id", state.SelectedAssistantID,
		"state_id", state.SelectedAssistantStateID)

	s.persist(state)
	s.notify(state)
}

// settle clears the transitioning flag if no newer transition started.
func (s *Store) settle(gen uint64) {
	s.applyMu.Lock()
	defer s.applyMu.Unlock()

	s.mu.Lock()
	if s.closed || gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.transitioning = false
	s.timer = nil
	state := s.state
	s.mu.Unlock()

	s.notify(state)
}

// Subscribe registers fn to be called with the state after every transition
// and again when the transition settles. Returns an unsubscribe func.
func (s *Store) Subscribe(fn func(PanelState)) func() {
	s.subMu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// SubscribeSelect calls fn with sel(state) whenever that value changes.
// fn is called once immediately with the current value.
func SubscribeSelect[T comparable](s *Store, sel func(PanelState) T, fn func(T)) func() {
	var mu sync.Mutex
	last := sel(s.State())
	fn(last)

	return s.Subscribe(func(state PanelState) {
		v := sel(state)
		mu.Lock()
		changed := v != last
		last = v
		mu.Unlock()
		if changed {
			fn(v)
		}
	})
}

// Close stops the settle timer and drops subscribers. Later transitions are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.transitioning = false
	s.mu.Unlock()

	s.subMu.Lock()
	clear(s.subscribers)
	s.subMu.Unlock()
}

func (s *Store) notify(state PanelState) {
	s.subMu.Lock()
	fns := make([]func(PanelState), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}

func (s *Store) persist(state PanelState) {
	if s.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.persister.SavePanelState(ctx, s.persistKey, state); err != nil {
		s.logger.Warn("failed to persist panel state", "key", s.persistKey, "error", err)
	}
}
