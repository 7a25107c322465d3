// ABOUTME: Event, listener, and subscription types for conversation event streams
// ABOUTME: Shared by the stream client and anything that consumes named events

package eventstream

import "errors"

// StreamType scopes a stream on the service. Only conversation streams exist today.
type StreamType string

const (
	StreamTypeConversation StreamType = "conversation"
)

// path returns the URL collection segment for the stream type.
func (t StreamType) path() (string, error) {
	switch t {
	case StreamTypeConversation:
		return "conversations", nil
	default:
		return "", errors.New("unknown stream type: " + string(t))
	}
}

// Event is one named event received on a stream.
type Event struct {
	ID   string
	Name string
	Data string
}

// Listener handles an event. A returned error is reported to the client's
// listener error hook and does not stop delivery to other listeners.
type Listener func(Event) error

// ListenerID identifies a registered listener for later removal.
type ListenerID string

// Subscription is a borrowed reference to a shared stream.
// *Handle implements it.
type Subscription interface {
	AddEventListener(name string, fn Listener) ListenerID
	RemoveEventListener(name string, id ListenerID) bool
	Release()
}

// Errors returned by the client.
var (
	ErrClientClosed = errors.New("event stream client closed")
	ErrEmptyID      = errors.New("stream id is required")
)
