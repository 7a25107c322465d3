// ABOUTME: Feed bridges view state changes and stream events into Bubble Tea messages
// ABOUTME: State and status updates coalesce to the latest; transcript events drop when the buffer is full

package tui

import (
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/viewstate"
)

const transcriptBuffer = 64

// StateMsg carries the current panel state to the program.
type StateMsg struct {
	State         viewstate.PanelState
	Transitioning bool
}

// EventMsg carries one conversation event to the program.
type EventMsg struct {
	Event eventstream.Event
}

// StatusMsg replaces the status line.
type StatusMsg string

// StateSource is the part of the view state store the feed observes.
// *viewstate.Store implements it.
type StateSource interface {
	State() viewstate.PanelState
	IsTransitioning() bool
	Subscribe(fn func(viewstate.PanelState)) func()
}

// Feed delivers store updates and stream events to a Bubble Tea program.
// Subscribers never block: only the newest state is kept, and events are
// dropped once transcriptBuffer are pending.
type Feed struct {
	source StateSource

	mu     sync.Mutex
	unsubs []func()

	latest  atomic.Pointer[StateMsg]
	changed chan struct{}
	events  chan EventMsg

	status        atomic.Pointer[StatusMsg]
	statusChanged chan struct{}

	dropped   atomic.Int64
	done      chan struct{}
	closeOnce sync.Once
}

// NewFeed subscribes to source and queues its current state.
func NewFeed(source StateSource) *Feed {
	f := &Feed{
		source:        source,
		changed:       make(chan struct{}, 1),
		events:        make(chan EventMsg, transcriptBuffer),
		statusChanged: make(chan struct{}, 1),
		done:          make(chan struct{}),
	}
	f.unsubs = append(f.unsubs, source.Subscribe(func(viewstate.PanelState) { f.pushState() }))
	f.pushState()
	return f
}

// Announce queues a status line. Only the newest pending status is kept.
func (f *Feed) Announce(status string) {
	msg := StatusMsg(status)
	f.status.Store(&msg)
	select {
	case f.statusChanged <- struct{}{}:
	default:
	}
}

// WatchFocus announces each assistant state view focuses after the call.
// The watch ends when the feed is closed.
func (f *Feed) WatchFocus(view *viewstate.Store) {
	var watching atomic.Bool
	unsub := viewstate.SubscribeSelect(view, FocusTarget, func(target string) {
		if watching.Load() && target != "" {
			f.Announce("focused " + target)
		}
	})
	watching.Store(true)

	f.mu.Lock()
	f.unsubs = append(f.unsubs, unsub)
	f.mu.Unlock()
}

// FocusTarget names the assistant state s shows, or "" when the assistant
// panel is closed or has no selection.
func FocusTarget(s viewstate.PanelState) string {
	if !s.Open || s.Mode != viewstate.ModeAssistant || s.SelectedAssistantID == "" {
		return ""
	}
	if s.SelectedAssistantStateID == "" {
		return s.SelectedAssistantID
	}
	return s.SelectedAssistantID + "/" + s.SelectedAssistantStateID
}

func (f *Feed) pushState() {
	f.latest.Store(&StateMsg{State: f.source.State(), Transitioning: f.source.IsTransitioning()})
	select {
	case f.changed <- struct{}{}:
	default:
	}
}

// Listener returns a stream listener that forwards events to the program.
func (f *Feed) Listener() eventstream.Listener {
	return func(ev eventstream.Event) error {
		select {
		case f.events <- EventMsg{Event: ev}:
		default:
			f.dropped.Add(1)
		}
		return nil
	}
}

// Dropped returns how many events were discarded for a full buffer.
func (f *Feed) Dropped() int64 {
	return f.dropped.Load()
}

// Next returns a command that waits for the next update. The model issues
// it again after every feed message. It yields nil once the feed is closed.
func (f *Feed) Next() tea.Cmd {
	return func() tea.Msg {
		select {
		case <-f.done:
			return nil
		case <-f.changed:
			return *f.latest.Load()
		case ev := <-f.events:
			return ev
		case <-f.statusChanged:
			return *f.status.Load()
		}
	}
}

// Close unsubscribes from the store and releases waiting commands.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		unsubs := f.unsubs
		f.unsubs = nil
		f.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		close(f.done)
	})
}
