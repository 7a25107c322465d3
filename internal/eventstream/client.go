// ABOUTME: Event stream client with a shared, reference-counted handle registry
// ABOUTME: One live SSE connection per (service URL, stream type, id), borrowed by many callers

package eventstream

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	defaultRetryDelay = 3 * time.Second
	defaultSeenSize   = 1024
)

// Options configures a Client.
type Options struct {
	// HTTPClient performs stream requests. It must not set a Timeout, which
	// would cut long-lived streams. Defaults to a plain &http.Client{}.
	HTTPClient *http.Client

	// Token is sent as a bearer token when non-empty.
	Token string

	// RetryDelay is the reconnect delay until the server advertises one.
	RetryDelay time.Duration

	// SeenSize bounds the per-handle replay dedupe set.
	SeenSize int

	// OnListenerError receives errors returned by listeners. Defaults to
	// logging at error level.
	OnListenerError func(Event, error)

	Logger *slog.Logger
}

type handleKey struct {
	serviceURL string
	streamType StreamType
	id         string
}

// Client hands out shared stream handles. Callers borrow a handle with
// CreateOrUpdate and give it back with Handle.Release; the connection closes
// when the last borrower releases it.
type Client struct {
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles map[handleKey]*Handle
	closed  bool
	wg      sync.WaitGroup
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	if opts.SeenSize <= 0 {
		opts.SeenSize = defaultSeenSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "eventstream")
	if opts.OnListenerError == nil {
		opts.OnListenerError = func(ev Event, err error) {
			logger.Error("event listener failed",
				"event", ev.Name,
				"event_id", ev.ID,
				"error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		handles: make(map[handleKey]*Handle),
	}
}

// CreateOrUpdate returns the handle for (serviceURL, streamType, id), opening
// the stream if no handle exists yet. Every successful call adds a reference
// that the caller must give back with Release.
//
// The call blocks until the stream is connected, the first connection fails,
// or ctx is done. Concurrent callers for the same key share one connection
// attempt.
func (c *Client) CreateOrUpdate(ctx context.Context, serviceURL string, streamType StreamType, id string) (*Handle, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	streamURL, err := buildStreamURL(serviceURL, streamType, id)
	if err != nil {
		return nil, err
	}
	key := handleKey{serviceURL: strings.TrimSuffix(serviceURL, "/"), streamType: streamType, id: id}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	h, ok := c.handles[key]
	if ok {
		h.refs++
	} else {
		h = newHandle(c, key, streamURL)
		h.refs = 1
		c.handles[key] = h
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			h.run()
		}()
	}
	c.mu.Unlock()

	select {
	case <-h.ready:
	case <-ctx.Done():
		h.Release()
		return nil, ctx.Err()
	}

	if h.connectErr != nil {
		return nil, h.connectErr
	}

	c.logger.Debug("stream handle borrowed",
		"stream_type", string(streamType),
		"id", id,
		"reused", ok)
	return h, nil
}

// Conversation borrows the conversation stream for conversationID.
func (c *Client) Conversation(ctx context.Context, serviceURL, conversationID string) (Subscription, error) {
	h, err := c.CreateOrUpdate(ctx, serviceURL, StreamTypeConversation, conversationID)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// Len returns the number of live handles.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handles)
}

// Close stops every stream and waits for their goroutines to exit.
// Outstanding handles become inert; Release on them is a no-op.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for key, h := range c.handles {
		h.refs = 0
		delete(c.handles, key)
	}
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
	c.logger.Debug("event stream client closed")
}

// release drops one reference on h and stops it at zero. Called by Handle.Release.
func (c *Client) release(h *Handle) {
	c.mu.Lock()
	if h.refs <= 0 {
		c.mu.Unlock()
		return
	}
	h.refs--
	stop := h.refs == 0
	if stop && c.handles[h.key] == h {
		delete(c.handles, h.key)
	}
	c.mu.Unlock()

	if stop {
		h.cancel()
		c.logger.Debug("stream handle closed", "id", h.key.id)
	}
}

// forget removes h from the registry after its first connection failed.
func (c *Client) forget(h *Handle) {
	c.mu.Lock()
	if c.handles[h.key] == h {
		delete(c.handles, h.key)
	}
	h.refs = 0
	c.mu.Unlock()
}

func buildStreamURL(serviceURL string, streamType StreamType, id string) (string, error) {
	collection, err := streamType.path()
	if err != nil {
		return "", err
	}
	u, err := url.Parse(serviceURL)
	if err != nil {
		return "", fmt.Errorf("parsing service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("service url must be http or https: %q", serviceURL)
	}
	return u.JoinPath("api", collection, id, "events").String(), nil
}
