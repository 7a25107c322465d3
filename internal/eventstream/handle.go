// ABOUTME: Shared stream handle: SSE connection loop, reconnects, and listener dispatch
// ABOUTME: Listeners run on the handle's single reader goroutine in registration order

package eventstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

type listenerEntry struct {
	id ListenerID
	fn Listener
}

// Handle is a live stream shared by every caller that borrowed it from the
// Client. It is safe for concurrent use.
type Handle struct {
	client *Client
	key    handleKey
	url    string

	ctx    context.Context
	cancel context.CancelFunc

	// refs is guarded by client.mu
	refs int

	// ready is closed once the first connection attempt finishes;
	// connectErr is written before the close.
	ready      chan struct{}
	connectErr error
	done       chan struct{}

	mu          sync.RWMutex
	listeners   map[string][]listenerEntry
	lastEventID string
	retry       time.Duration

	seen *seenIDs
}

func newHandle(c *Client, key handleKey, streamURL string) *Handle {
	ctx, cancel := context.WithCancel(c.ctx)
	return &Handle{
		client:    c,
		key:       key,
		url:       streamURL,
		ctx:       ctx,
		cancel:    cancel,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		listeners: make(map[string][]listenerEntry),
		retry:     c.opts.RetryDelay,
		seen:      newSeenIDs(c.opts.SeenSize),
	}
}

// ID returns the id the stream is scoped to (the conversation id).
func (h *Handle) ID() string { return h.key.id }

// Done is closed when the handle's connection loop has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// LastEventID returns the id of the last event received.
func (h *Handle) LastEventID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastEventID
}

// AddEventListener registers fn for events named name and returns the id
// needed to remove it.
func (h *Handle) AddEventListener(name string, fn Listener) ListenerID {
	id := ListenerID(uuid.New().String())

	h.mu.Lock()
	h.listeners[name] = append(h.listeners[name], listenerEntry{id: id, fn: fn})
	h.mu.Unlock()

	h.client.logger.Debug("listener added", "stream_id", h.key.id, "event", name, "listener_id", string(id))
	return id
}

// RemoveEventListener unregisters a listener. Returns false if it was not registered.
func (h *Handle) RemoveEventListener(name string, id ListenerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries := h.listeners[name]
	for i, e := range entries {
		if e.id != id {
			continue
		}
		// Copy so an in-flight dispatch keeps iterating its own snapshot
		remaining := make([]listenerEntry, 0, len(entries)-1)
		remaining = append(remaining, entries[:i]...)
		remaining = append(remaining, entries[i+1:]...)
		if len(remaining) == 0 {
			delete(h.listeners, name)
		} else {
			h.listeners[name] = remaining
		}
		h.client.logger.Debug("listener removed", "stream_id", h.key.id, "event", name, "listener_id", string(id))
		return true
	}
	return false
}

// ListenerCount returns how many listeners are registered for name.
func (h *Handle) ListenerCount(name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[name])
}

// Release gives back one reference. The stream stops when none remain.
func (h *Handle) Release() {
	h.client.release(h)
}

// Dispatch delivers ev to the listeners registered for ev.Name as if it had
// arrived on the stream. Used for locally synthesized events.
func (h *Handle) Dispatch(ev Event) {
	h.mu.RLock()
	entries := h.listeners[ev.Name]
	h.mu.RUnlock()

	for _, e := range entries {
		if err := e.fn(ev); err != nil {
			h.client.opts.OnListenerError(ev, err)
		}
	}
}

// run is the connection loop. The first connection result is published on
// ready; after that, dropped streams are retried until the handle is stopped.
func (h *Handle) run() {
	defer close(h.done)
	logger := h.client.logger.With("stream_id", h.key.id)

	body, err := h.connect()
	h.connectErr = err
	close(h.ready)
	if err != nil {
		h.client.forget(h)
		h.cancel()
		logger.Warn("stream connection failed", "url", h.url, "error", err)
		return
	}
	logger.Info("stream connected", "url", h.url)

	for {
		err := h.consume(body)
		body.Close()

		if h.ctx.Err() != nil {
			return
		}
		logger.Warn("stream dropped, reconnecting", "error", err, "retry", h.retryDelay())

		for {
			if !h.sleep(h.retryDelay()) {
				return
			}
			body, err = h.connect()
			if err == nil {
				logger.Info("stream reconnected", "last_event_id", h.LastEventID())
				break
			}
			if h.ctx.Err() != nil {
				return
			}
			logger.Warn("stream reconnect failed", "error", err)
		}
	}
}

// connect opens the stream and returns its body on a 200 text/event-stream response.
func (h *Handle) connect() (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if tok := h.client.opts.Token; tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if last := h.LastEventID(); last != "" {
		req.Header.Set("Last-Event-ID", last)
	}

	resp, err := h.client.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(msg)}
	}
	return resp.Body, nil
}

// consume reads frames until the body ends or the handle stops.
func (h *Handle) consume(body io.Reader) error {
	err := readFrames(h.ctx, body, func(f frame) error {
		if f.retry > 0 {
			h.mu.Lock()
			h.retry = f.retry
			h.mu.Unlock()
		}
		if f.event.Name == "" {
			return nil
		}
		if f.hasID {
			h.mu.Lock()
			h.lastEventID = f.event.ID
			h.mu.Unlock()
			if f.event.ID != "" && !h.seen.markNew(f.event.ID) {
				return nil
			}
		}
		h.Dispatch(f.event)
		return nil
	})
	if err == nil {
		return io.EOF
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (h *Handle) retryDelay() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.retry
}

// sleep waits d or until the handle stops. Returns false if stopped.
func (h *Handle) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// StatusError is returned when the service answers a stream request with a
// non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stream request failed with status %d: %s", e.StatusCode, e.Body)
}
