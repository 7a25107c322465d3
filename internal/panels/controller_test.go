// ABOUTME: Tests for the conversation panel controller
// ABOUTME: Covers subscription lifecycle, focus event handling, toggles, and predicates

package panels

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/viewstate"
)

const testServiceURL = "http://127.0.0.1:3000"

func newTestController(t *testing.T, streams *fakeStreams, view ViewState) *Controller {
	t.Helper()
	c := New(Options{ServiceURL: testServiceURL, Streams: streams, View: view})
	t.Cleanup(c.Close)
	return c
}

func activate(t *testing.T, c *Controller, id string) {
	t.Helper()
	require.NoError(t, c.OnActivate(t.Context(), id))
	require.NoError(t, c.WaitSubscribed(t.Context()))
}

func TestOnActivate_RegistersExactlyOneFocusListener(t *testing.T) {
	for _, id := range []string{"conv-1", "c", "0f9a6c1e-3b7e-4a55-8f0a-2d2c1a9b7e11"} {
		t.Run(id, func(t *testing.T) {
			streams := newFakeStreams()
			c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

			activate(t, c, id)

			sub := streams.sub(id)
			assert.Equal(t, 1, sub.listenerCount(FocusEventName))
			assert.Equal(t, id, c.ConversationID())
		})
	}
}

func TestOnActivate_EmptyConversationID(t *testing.T) {
	streams := newFakeStreams()
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	err := c.OnActivate(t.Context(), "")
	assert.ErrorIs(t, err, ErrEmptyConversationID)
	assert.Empty(t, streams.calls)
	assert.ErrorIs(t, c.WaitSubscribed(t.Context()), ErrNotActive)
}

func TestOnActivate_SameConversationIsNoop(t *testing.T) {
	streams := newFakeStreams()
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	activate(t, c, "conv-1")
	activate(t, c, "conv-1")

	assert.Equal(t, []string{"conv-1"}, streams.calls)
	assert.Equal(t, 1, streams.sub("conv-1").listenerCount(FocusEventName))
}

func TestOnActivate_ConversationChangeTearsDownPreviousHandle(t *testing.T) {
	streams := newFakeStreams()
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	activate(t, c, "conv-1")
	activate(t, c, "conv-2")

	first := streams.sub("conv-1")
	second := streams.sub("conv-2")
	assert.Equal(t, 0, first.listenerCount(FocusEventName))
	assert.Equal(t, 1, first.releaseCount())
	assert.Equal(t, 1, second.listenerCount(FocusEventName))
	assert.Equal(t, 0, second.releaseCount())
	assert.Equal(t, "conv-2", c.ConversationID())
}

func TestOnDeactivate_RemovesListenerAndIsIdempotent(t *testing.T) {
	streams := newFakeStreams()
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	activate(t, c, "conv-1")
	sub := streams.sub("conv-1")
	require.Equal(t, 1, sub.listenerCount(FocusEventName))

	c.OnDeactivate()
	assert.Equal(t, 0, sub.listenerCount(FocusEventName))
	assert.Equal(t, 1, sub.releaseCount())
	assert.Equal(t, "", c.ConversationID())

	assert.NotPanics(t, c.OnDeactivate)
	assert.Equal(t, 1, sub.releaseCount(), "second deactivate must not release again")
}

func TestOnDeactivate_WithoutActivation(t *testing.T) {
	c := newTestController(t, newFakeStreams(), newRecordingView(viewstate.DefaultState()))
	assert.NotPanics(t, c.OnDeactivate)
}

func TestOnDeactivate_WhilePendingCancelsAcquisition(t *testing.T) {
	streams := newFakeStreams()
	streams.gate = make(chan struct{})
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	require.Eventually(t, func() bool {
		streams.mu.Lock()
		defer streams.mu.Unlock()
		return len(streams.calls) == 1
	}, time.Second, time.Millisecond)

	c.OnDeactivate()
	c.Close()

	sub := streams.sub("conv-1")
	assert.Equal(t, 0, sub.listenerCount(FocusEventName))
	assert.Equal(t, 0, sub.releaseCount(), "nothing was acquired, nothing to release")
}

func TestOnDeactivate_LateAcquisitionIsReleasedImmediately(t *testing.T) {
	streams := newFakeStreams()
	streams.gate = make(chan struct{})
	streams.ignoreCancel = true
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	require.Eventually(t, func() bool {
		streams.mu.Lock()
		defer streams.mu.Unlock()
		return len(streams.calls) == 1
	}, time.Second, time.Millisecond)

	c.OnDeactivate()
	close(streams.gate)
	c.Close()

	sub := streams.sub("conv-1")
	assert.Equal(t, 0, sub.listenerCount(FocusEventName))
	assert.Equal(t, 1, sub.releaseCount())
}

func TestOnActivate_AcquisitionFailure(t *testing.T) {
	streams := newFakeStreams()
	streams.err = errors.New("service unavailable")
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	err := c.WaitSubscribed(t.Context())
	assert.EqualError(t, err, "service unavailable")
	assert.Equal(t, 0, streams.sub("conv-1").listenerCount(FocusEventName))

	assert.NotPanics(t, c.OnDeactivate)
}

func TestOnActivate_RetriesAfterFailure(t *testing.T) {
	streams := newFakeStreams()
	streams.err = errors.New("service unavailable")
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	require.EqualError(t, c.WaitSubscribed(t.Context()), "service unavailable")

	streams.mu.Lock()
	streams.err = nil
	streams.mu.Unlock()

	activate(t, c, "conv-1")
	assert.Equal(t, []string{"conv-1", "conv-1"}, streams.calls)
	assert.Equal(t, 1, streams.sub("conv-1").listenerCount(FocusEventName))
	assert.Equal(t, "conv-1", c.ConversationID())

	activate(t, c, "conv-1")
	assert.Len(t, streams.calls, 2, "a healthy activation is not repeated")
}

func TestOnActivate_PendingSameConversationIsNoop(t *testing.T) {
	streams := newFakeStreams()
	streams.gate = make(chan struct{})
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))
	close(streams.gate)
	require.NoError(t, c.WaitSubscribed(t.Context()))

	assert.Equal(t, []string{"conv-1"}, streams.calls)
	assert.Equal(t, 1, streams.sub("conv-1").listenerCount(FocusEventName))
}

func TestWaitSubscribed_ContextDone(t *testing.T) {
	streams := newFakeStreams()
	streams.gate = make(chan struct{})
	c := newTestController(t, streams, newRecordingView(viewstate.DefaultState()))

	require.NoError(t, c.OnActivate(t.Context(), "conv-1"))

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.WaitSubscribed(ctx), context.DeadlineExceeded)
}

func TestHandleFocusEvent_RequestsAssistantTransition(t *testing.T) {
	view := newRecordingView(viewstate.DefaultState())
	c := newTestController(t, newFakeStreams(), view)

	err := c.HandleFocusEvent(eventstream.Event{
		Name: FocusEventName,
		Data: `{"assistant_id":"a1","state_id":"s1"}`,
	})
	require.NoError(t, err)

	got := view.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, viewstate.FocusAssistant("a1", "s1"), got[0])

	raw, err := got[0].MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":true,"mode":"assistant","selected_assistant_id":"a1","selected_assistant_state_id":"s1"}`, string(raw))
}

func TestHandleFocusEvent_MalformedPayload(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		missing bool
	}{
		{name: "not json", data: `assistant a1`},
		{name: "truncated", data: `{"assistant_id":"a1"`},
		{name: "array", data: `["a1","s1"]`},
		{name: "wrong type", data: `{"assistant_id":7,"state_id":"s1"}`},
		{name: "empty", data: ``},
		{name: "missing state", data: `{"assistant_id":"a1"}`, missing: true},
		{name: "missing assistant", data: `{"state_id":"s1"}`, missing: true},
		{name: "empty object", data: `{}`, missing: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := newRecordingView(viewstate.DefaultState())
			c := newTestController(t, newFakeStreams(), view)

			err := c.HandleFocusEvent(eventstream.Event{Name: FocusEventName, Data: tt.data})

			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
			assert.Equal(t, tt.data, parseErr.Data)
			assert.Equal(t, tt.missing, errors.Is(err, ErrMissingField))
			assert.Empty(t, view.recorded())
		})
	}
}

func TestFocusEventFromStream(t *testing.T) {
	streams := newFakeStreams()
	view := newRecordingView(viewstate.DefaultState())
	c := newTestController(t, streams, view)
	activate(t, c, "conv-1")

	sub := streams.sub("conv-1")
	require.NoError(t, sub.emit(eventstream.Event{Name: FocusEventName, Data: `{"assistant_id":"a2","state_id":"s3"}`}))
	assert.Equal(t, viewstate.PanelState{
		Open:                     true,
		Mode:                     viewstate.ModeAssistant,
		SelectedAssistantID:      "a2",
		SelectedAssistantStateID: "s3",
	}, view.State())

	err := sub.emit(eventstream.Event{Name: FocusEventName, Data: `nope`})
	var parseErr *ParseError
	assert.ErrorAs(t, err, &parseErr)
	assert.Len(t, view.recorded(), 1)

	c.OnDeactivate()
	require.NoError(t, sub.emit(eventstream.Event{Name: FocusEventName, Data: `{"assistant_id":"a9","state_id":"s9"}`}))
	assert.Len(t, view.recorded(), 1, "no transitions after deactivation")
}

func TestOnDeactivate_InFlightFocusEventIsDropped(t *testing.T) {
	streams := newFakeStreams()
	view := newRecordingView(viewstate.DefaultState())
	c := newTestController(t, streams, view)
	activate(t, c, "conv-1")

	inFlight := streams.sub("conv-1").snapshot(FocusEventName)
	require.Len(t, inFlight, 1)

	c.OnDeactivate()
	require.NoError(t, inFlight[0](eventstream.Event{Name: FocusEventName, Data: `{"assistant_id":"a1","state_id":"s1"}`}))
	assert.Empty(t, view.recorded())
	assert.Equal(t, viewstate.DefaultState(), view.State())
}

var priorStates = []viewstate.PanelState{
	{Open: false, Mode: viewstate.ModeConversation},
	{Open: true, Mode: viewstate.ModeConversation},
	{Open: false, Mode: viewstate.ModeAssistant},
	{Open: true, Mode: viewstate.ModeAssistant, SelectedAssistantID: "a1", SelectedAssistantStateID: "s1"},
}

func TestActivateConversationPanel_AlwaysOpensConversation(t *testing.T) {
	for _, prior := range priorStates {
		view := newRecordingView(prior)
		c := newTestController(t, newFakeStreams(), view)

		c.ActivateConversationPanel()

		got := view.recorded()
		require.Len(t, got, 1)
		raw, err := got[0].MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"open":true,"mode":"conversation"}`, string(raw))
		assert.True(t, c.ConversationActive())
	}
}

func TestActivateAssistantPanel_KeepsSelection(t *testing.T) {
	view := newRecordingView(viewstate.PanelState{
		Open:                     true,
		Mode:                     viewstate.ModeConversation,
		SelectedAssistantID:      "a1",
		SelectedAssistantStateID: "s1",
	})
	c := newTestController(t, newFakeStreams(), view)

	c.ActivateAssistantPanel()

	raw, err := view.recorded()[0].MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"open":true,"mode":"assistant"}`, string(raw))
	assert.Equal(t, "a1", view.State().SelectedAssistantID)
	assert.Equal(t, "s1", view.State().SelectedAssistantStateID)
	assert.True(t, c.AssistantActive())
}

func TestDismissPanel_AlwaysCloses(t *testing.T) {
	for _, prior := range priorStates {
		view := newRecordingView(prior)
		c := newTestController(t, newFakeStreams(), view)

		c.DismissPanel()

		got := view.recorded()
		require.Len(t, got, 1)
		raw, err := got[0].MarshalJSON()
		require.NoError(t, err)
		assert.JSONEq(t, `{"open":false}`, string(raw))

		after := view.State()
		assert.False(t, after.Open)
		assert.Equal(t, prior.Mode, after.Mode)
		assert.Equal(t, prior.SelectedAssistantID, after.SelectedAssistantID)
	}
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		mode         viewstate.Mode
		open         bool
		conversation bool
		assistant    bool
	}{
		{viewstate.ModeConversation, true, true, false},
		{viewstate.ModeConversation, false, false, false},
		{viewstate.ModeAssistant, true, false, true},
		{viewstate.ModeAssistant, false, false, false},
	}

	for _, tt := range tests {
		s := viewstate.PanelState{Mode: tt.mode, Open: tt.open}
		assert.Equal(t, tt.conversation, ConversationActive(s), "conversation %s open=%v", tt.mode, tt.open)
		assert.Equal(t, tt.assistant, AssistantActive(s), "assistant %s open=%v", tt.mode, tt.open)

		c := newTestController(t, newFakeStreams(), newRecordingView(s))
		assert.Equal(t, tt.conversation, c.ConversationActive())
		assert.Equal(t, tt.assistant, c.AssistantActive())
	}
}

func TestCanActivateGuards(t *testing.T) {
	view := newRecordingView(viewstate.PanelState{Open: true, Mode: viewstate.ModeConversation})
	c := newTestController(t, newFakeStreams(), view)

	assert.False(t, c.CanActivateConversation(), "already active")
	assert.True(t, c.CanActivateAssistant())

	view.transitioning = true
	assert.False(t, c.CanActivateAssistant(), "transition in progress")

	view.transitioning = false
	c.DismissPanel()
	assert.True(t, c.CanActivateConversation())

	// Guards are advisory; the action still goes through
	c.ActivateConversationPanel()
	c.ActivateConversationPanel()
	assert.Len(t, view.recorded(), 3)
}

func TestScenario_FocusThenDismiss(t *testing.T) {
	store := viewstate.New(viewstate.Options{})
	t.Cleanup(store.Close)
	streams := newFakeStreams()
	c := newTestController(t, streams, store)

	activate(t, c, "conv-1")

	err := streams.sub("conv-1").emit(eventstream.Event{
		ID:   "1",
		Name: FocusEventName,
		Data: `{"assistant_id":"asst-9","state_id":"st-2"}`,
	})
	require.NoError(t, err)
	assert.Equal(t, viewstate.PanelState{
		Open:                     true,
		Mode:                     viewstate.ModeAssistant,
		SelectedAssistantID:      "asst-9",
		SelectedAssistantStateID: "st-2",
	}, store.State())

	c.DismissPanel()
	assert.Equal(t, viewstate.PanelState{
		Open:                     false,
		Mode:                     viewstate.ModeAssistant,
		SelectedAssistantID:      "asst-9",
		SelectedAssistantStateID: "st-2",
	}, store.State())
}
