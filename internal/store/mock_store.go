// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/coven-workbench/internal/viewstate"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	events      []*Event          // ordered by Seq
	eventIndex  map[string]*Event // keyed by event ID
	panelStates map[string]viewstate.PanelState
	nextSeq     int64

	// SaveErr, when set, is returned by SaveEvent.
	SaveErr error
	// GetEventsErr, when set, is returned by GetEvents.
	GetEventsErr error
}

var _ Store = (*MockStore)(nil)

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		eventIndex:  make(map[string]*Event),
		panelStates: make(map[string]viewstate.PanelState),
	}
}

func copyEvent(e *Event) *Event {
	c := *e
	c.Debug = e.Debug.Clone()
	return &c
}

// SaveEvent stores an event.
func (m *MockStore) SaveEvent(ctx context.Context, event *Event) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if err := prepareEvent(event); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.eventIndex[event.ID]; ok {
		return ErrDuplicateEvent
	}
	m.nextSeq++
	event.Seq = m.nextSeq

	stored := copyEvent(event)
	m.events = append(m.events, stored)
	m.eventIndex[stored.ID] = stored
	return nil
}

// GetEvent retrieves an event by ID.
func (m *MockStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.eventIndex[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return copyEvent(e), nil
}

// GetEventsAfter returns events newer than afterID.
func (m *MockStore) GetEventsAfter(ctx context.Context, conversationID, afterID string, limit int) ([]*Event, error) {
	limit = clampLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var afterSeq int64
	if e, ok := m.eventIndex[afterID]; ok && e.ConversationID == conversationID {
		afterSeq = e.Seq
	}

	var out []*Event
	for _, e := range m.events {
		if e.ConversationID == conversationID && e.Seq > afterSeq {
			out = append(out, copyEvent(e))
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// GetEvents pages through a conversation's events.
func (m *MockStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
	if m.GetEventsErr != nil {
		return nil, m.GetEventsErr
	}
	if p.ConversationID == "" {
		return nil, errors.New("conversation_id required")
	}
	limit := clampLimit(p.Limit)

	var afterSeq int64
	if p.Cursor != "" {
		var err error
		afterSeq, err = decodeCursor(p.Cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events {
		if e.ConversationID != p.ConversationID || e.Seq <= afterSeq {
			continue
		}
		out = append(out, copyEvent(e))
		if len(out) > limit {
			break
		}
	}
	return pageResult(out, limit), nil
}

// SavePanelState stores a client's panel state.
func (m *MockStore) SavePanelState(ctx context.Context, clientID string, state viewstate.PanelState) error {
	if clientID == "" {
		return errors.New("client_id required")
	}
	if !state.Mode.Valid() {
		return fmt.Errorf("invalid panel mode %q", state.Mode)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panelStates[clientID] = state
	return nil
}

// GetPanelState retrieves a client's panel state.
func (m *MockStore) GetPanelState(ctx context.Context, clientID string) (viewstate.PanelState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.panelStates[clientID]
	if !ok {
		return viewstate.PanelState{}, ErrPanelStateNotFound
	}
	return state, nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
