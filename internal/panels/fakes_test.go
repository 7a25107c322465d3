// ABOUTME: Test doubles for the panel controller's stream client and view state
// ABOUTME: Record subscriptions, listeners, releases, and transition requests

package panels

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/viewstate"
)

// fakeSubscription stands in for a shared stream handle.
type fakeSubscription struct {
	id string

	mu        sync.Mutex
	listeners map[string]map[eventstream.ListenerID]eventstream.Listener
	nextID    int
	releases  int
}

func newFakeSubscription(id string) *fakeSubscription {
	return &fakeSubscription{
		id:        id,
		listeners: make(map[string]map[eventstream.ListenerID]eventstream.Listener),
	}
}

func (s *fakeSubscription) AddEventListener(name string, fn eventstream.Listener) eventstream.ListenerID {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := eventstream.ListenerID(fmt.Sprintf("l%d", s.nextID))
	if s.listeners[name] == nil {
		s.listeners[name] = make(map[eventstream.ListenerID]eventstream.Listener)
	}
	s.listeners[name][id] = fn
	return id
}

func (s *fakeSubscription) RemoveEventListener(name string, id eventstream.ListenerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.listeners[name][id]; !ok {
		return false
	}
	delete(s.listeners[name], id)
	return true
}

func (s *fakeSubscription) Release() {
	s.mu.Lock()
	s.releases++
	s.mu.Unlock()
}

func (s *fakeSubscription) listenerCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners[name])
}

func (s *fakeSubscription) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// snapshot returns the listeners registered for name, as a dispatch in
// progress would hold them.
func (s *fakeSubscription) snapshot(name string) []eventstream.Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]eventstream.Listener, 0, len(s.listeners[name]))
	for _, fn := range s.listeners[name] {
		fns = append(fns, fn)
	}
	return fns
}

// emit delivers an event to every listener for its name and collects errors.
func (s *fakeSubscription) emit(ev eventstream.Event) error {
	s.mu.Lock()
	fns := make([]eventstream.Listener, 0, len(s.listeners[ev.Name]))
	for _, fn := range s.listeners[ev.Name] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	var errs []error
	for _, fn := range fns {
		errs = append(errs, fn(ev))
	}
	return errors.Join(errs...)
}

// fakeStreams hands out one fakeSubscription per conversation id.
// When gate is non-nil, acquisition blocks until it is closed or ctx ends.
type fakeStreams struct {
	mu    sync.Mutex
	subs  map[string]*fakeSubscription
	calls []string
	err   error
	gate  chan struct{}

	// ignoreCancel makes a gated acquisition succeed even after ctx ends.
	ignoreCancel bool
}

func newFakeStreams() *fakeStreams {
	return &fakeStreams{subs: make(map[string]*fakeSubscription)}
}

func (f *fakeStreams) Conversation(ctx context.Context, _ string, conversationID string) (eventstream.Subscription, error) {
	f.mu.Lock()
	f.calls = append(f.calls, conversationID)
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		if f.ignoreCancel {
			<-gate
		} else {
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	if err != nil {
		return nil, err
	}
	return f.sub(conversationID), nil
}

func (f *fakeStreams) sub(conversationID string) *fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.subs[conversationID]
	if !ok {
		s = newFakeSubscription(conversationID)
		f.subs[conversationID] = s
	}
	return s
}

// recordingView is a ViewState that records every requested transition.
type recordingView struct {
	mu            sync.Mutex
	state         viewstate.PanelState
	transitioning bool
	transitions   []viewstate.Transition
}

func newRecordingView(initial viewstate.PanelState) *recordingView {
	return &recordingView{state: initial}
}

func (v *recordingView) State() viewstate.PanelState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *recordingView) IsTransitioning() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.transitioning
}

func (v *recordingView) TransitionToState(t viewstate.Transition) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.transitions = append(v.transitions, t)
	v.state = t.Apply(v.state)
}

func (v *recordingView) recorded() []viewstate.Transition {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]viewstate.Transition(nil), v.transitions...)
}
