// ABOUTME: Conversation panel controller bridging focus events to view state transitions
// ABOUTME: Owns one borrowed conversation stream subscription per activation

package panels

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/viewstate"
)

// Errors returned by the controller.
var (
	ErrEmptyConversationID = errors.New("conversation id is required")
	ErrNotActive           = errors.New("controller is not active")
)

// StreamClient lends out conversation stream subscriptions.
// *eventstream.Client implements it.
type StreamClient interface {
	Conversation(ctx context.Context, serviceURL, conversationID string) (eventstream.Subscription, error)
}

// ViewState is the part of the view state store the controller drives.
// *viewstate.Store implements it.
type ViewState interface {
	State() viewstate.PanelState
	IsTransitioning() bool
	TransitionToState(viewstate.Transition)
}

// Options configures a Controller.
type Options struct {
	ServiceURL string
	Streams    StreamClient
	View       ViewState
	Logger     *slog.Logger
}

// Controller reacts to focus events for the active conversation and exposes
// the panel toggles.
type Controller struct {
	serviceURL string
	streams    StreamClient
	view       ViewState
	logger     *slog.Logger

	mu     sync.Mutex
	active *activation
	wg     sync.WaitGroup
}

// activation is one OnActivate call. It captures the subscription it
// acquired so teardown never touches another activation's handle.
type activation struct {
	conversationID string
	cancel         context.CancelFunc
	settled        chan struct{}

	mu         sync.Mutex
	sub        eventstream.Subscription
	listenerID eventstream.ListenerID
	err        error
	stopped    bool
}

// New creates a Controller.
func New(opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		serviceURL: opts.ServiceURL,
		streams:    opts.Streams,
		view:       opts.View,
		logger:     logger.With("component", "panels"),
	}
}

// OnActivate subscribes to conversationID's stream in the background and
// registers the focus listener once the subscription is acquired. Any
// previous activation for a different conversation is torn down first.
// Activating the already active conversation is a no-op unless its
// acquisition failed, in which case it is retried.
//
// Acquisition failures are logged and reported by WaitSubscribed.
// Cancelling ctx aborts a pending acquisition.
func (c *Controller) OnActivate(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return ErrEmptyConversationID
	}

	c.mu.Lock()
	prev := c.active
	if prev != nil && prev.conversationID == conversationID && !prev.failed() {
		c.mu.Unlock()
		return nil
	}
	actx, cancel := context.WithCancel(ctx)
	a := &activation{
		conversationID: conversationID,
		cancel:         cancel,
		settled:        make(chan struct{}),
	}
	c.active = a
	c.wg.Add(1)
	c.mu.Unlock()

	if prev != nil {
		c.teardown(prev)
	}

	go func() {
		defer c.wg.Done()
		c.acquire(actx, a)
	}()
	return nil
}

// acquire borrows the stream and registers the focus listener in one step.
func (c *Controller) acquire(ctx context.Context, a *activation) {
	logger := c.logger.With("conversation_id", a.conversationID)

	sub, err := c.streams.Conversation(ctx, c.serviceURL, a.conversationID)

	a.mu.Lock()
	defer a.mu.Unlock()
	defer close(a.settled)

	if err != nil {
		a.err = err
		if a.stopped {
			logger.Debug("subscription cancelled before it was acquired", "error", err)
		} else {
			logger.Error("failed to subscribe to conversation events", "error", err)
		}
		return
	}
	if a.stopped {
		// Deactivated while acquiring: give the handle straight back
		sub.Release()
		a.err = ErrNotActive
		logger.Debug("released subscription acquired after deactivation")
		return
	}

	a.listenerID = sub.AddEventListener(FocusEventName, func(ev eventstream.Event) error {
		return c.onFocusEvent(a, ev)
	})
	a.sub = sub
	logger.Info("subscribed to conversation events")
}

// onFocusEvent handles a focus event delivered to a's listener. a.mu is held
// across the transition so none lands after teardown of a returns.
func (c *Controller) onFocusEvent(a *activation, ev eventstream.Event) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		c.logger.Debug("dropping focus event for deactivated conversation",
			"conversation_id", a.conversationID,
			"event_id", ev.ID)
		return nil
	}
	return c.HandleFocusEvent(ev)
}

// failed reports whether a's acquisition has settled with an error.
func (a *activation) failed() bool {
	select {
	case <-a.settled:
	default:
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err != nil
}

// teardown removes a's listener from the handle a acquired and releases it.
func (c *Controller) teardown(a *activation) {
	a.cancel()

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	if a.sub == nil {
		return
	}
	a.sub.RemoveEventListener(FocusEventName, a.listenerID)
	a.sub.Release()
	a.sub = nil
	c.logger.Info("unsubscribed from conversation events", "conversation_id", a.conversationID)
}

// OnDeactivate removes the focus listener and releases the subscription.
// It waits for an in-flight focus event to finish; no transition from the
// old activation happens after it returns. Safe to call any number of times.
func (c *Controller) OnDeactivate() {
	c.mu.Lock()
	a := c.active
	c.active = nil
	c.mu.Unlock()

	if a != nil {
		c.teardown(a)
	}
}

// Close deactivates the controller and waits for background acquisition to finish.
func (c *Controller) Close() {
	c.OnDeactivate()
	c.wg.Wait()
}

// ConversationID returns the active conversation, or "" when inactive.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.conversationID
}

// WaitSubscribed blocks until the active conversation's subscription has been
// acquired or has failed, and returns the failure.
func (c *Controller) WaitSubscribed(ctx context.Context) error {
	c.mu.Lock()
	a := c.active
	c.mu.Unlock()
	if a == nil {
		return ErrNotActive
	}

	select {
	case <-a.settled:
	case <-ctx.Done():
		return ctx.Err()
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.err
}

// HandleFocusEvent opens the assistant panel on the assistant state named by
// ev.Data. A malformed payload returns *ParseError and changes nothing.
func (c *Controller) HandleFocusEvent(ev eventstream.Event) error {
	p, err := ParseFocusEvent(ev.Data)
	if err != nil {
		return err
	}
	c.logger.Debug("focusing assistant state",
		"assistant_id", p.AssistantID,
		"state_id", p.StateID,
		"event_id", ev.ID)
	c.view.TransitionToState(viewstate.FocusAssistant(p.AssistantID, p.StateID))
	return nil
}

// ActivateConversationPanel opens the conversation panel.
func (c *Controller) ActivateConversationPanel() {
	c.view.TransitionToState(viewstate.OpenPanel(viewstate.ModeConversation))
}

// ActivateAssistantPanel opens the assistant panel, keeping the current selection.
func (c *Controller) ActivateAssistantPanel() {
	c.view.TransitionToState(viewstate.OpenPanel(viewstate.ModeAssistant))
}

// DismissPanel closes the panel.
func (c *Controller) DismissPanel() {
	c.view.TransitionToState(viewstate.ClosePanel())
}

// ConversationActive reports whether the conversation panel is showing.
func (c *Controller) ConversationActive() bool {
	return ConversationActive(c.view.State())
}

// AssistantActive reports whether the assistant panel is showing.
func (c *Controller) AssistantActive() bool {
	return AssistantActive(c.view.State())
}

// CanActivateConversation is the UI guard for the conversation toggle.
func (c *Controller) CanActivateConversation() bool {
	return !c.ConversationActive() && !c.view.IsTransitioning()
}

// CanActivateAssistant is the UI guard for the assistant toggle.
func (c *Controller) CanActivateAssistant() bool {
	return !c.AssistantActive() && !c.view.IsTransitioning()
}

// ConversationActive reports whether s shows the conversation panel.
func ConversationActive(s viewstate.PanelState) bool {
	return s.Open && s.Mode == viewstate.ModeConversation
}

// AssistantActive reports whether s shows the assistant panel.
func AssistantActive(s viewstate.PanelState) bool {
	return s.Open && s.Mode == viewstate.ModeAssistant
}
