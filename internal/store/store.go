// ABOUTME: Store interface and data types for coven-workbench persistence
// ABOUTME: Defines the conversation Event record and the panel state operations

package store

import (
	"context"
	"errors"
	"time"

	"github.com/2389/coven-workbench/internal/debuginfo"
	"github.com/2389/coven-workbench/internal/viewstate"
)

// Errors returned by Store implementations.
var (
	ErrEventNotFound      = errors.New("event not found")
	ErrDuplicateEvent     = errors.New("event already exists")
	ErrPanelStateNotFound = errors.New("panel state not found")
	ErrInvalidEvent       = errors.New("invalid event")
	ErrInvalidCursor      = errors.New("invalid cursor")
)

// Limits applied to event queries.
const (
	DefaultEventLimit = 100
	MaxEventLimit     = 500
)

// Event is one named event published to a conversation stream.
// Seq orders events within the whole ledger and is assigned on save.
type Event struct {
	Seq            int64              `json:"seq"`
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Name           string             `json:"event"`
	Data           string             `json:"data"`
	Debug          debuginfo.Metadata `json:"debug,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

// GetEventsParams pages through a conversation's history, oldest first.
type GetEventsParams struct {
	ConversationID string // Required
	Limit          int    // 1-500, defaults to 100
	Cursor         string // Opaque cursor from a previous result
}

// GetEventsResult is one page of history.
type GetEventsResult struct {
	Events     []*Event `json:"events"`
	NextCursor string   `json:"next_cursor,omitempty"`
	HasMore    bool     `json:"has_more"`
}

// Store persists conversation events and client panel state.
type Store interface {
	// SaveEvent stores event, assigning Seq and filling CreatedAt when zero.
	// Returns ErrDuplicateEvent if the id is taken.
	SaveEvent(ctx context.Context, event *Event) error

	// GetEvent returns ErrEventNotFound for unknown ids.
	GetEvent(ctx context.Context, id string) (*Event, error)

	// GetEventsAfter returns up to limit events of conversationID newer than
	// afterID, oldest first. When more exist, the most recent are kept.
	// An empty or unknown afterID replays from the start of the conversation.
	GetEventsAfter(ctx context.Context, conversationID, afterID string, limit int) ([]*Event, error)

	// GetEvents pages through history with an opaque cursor.
	GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error)

	// SavePanelState and GetPanelState keep the last panel state per client.
	// GetPanelState returns ErrPanelStateNotFound when nothing was saved.
	SavePanelState(ctx context.Context, clientID string, state viewstate.PanelState) error
	GetPanelState(ctx context.Context, clientID string) (viewstate.PanelState, error)

	Close() error
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultEventLimit
	}
	if limit > MaxEventLimit {
		return MaxEventLimit
	}
	return limit
}
