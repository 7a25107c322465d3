// ABOUTME: Conversation service: record events in the ledger, then fan them out
// ABOUTME: The ledger is the source of truth; live delivery is best effort on top of it

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/coven-workbench/internal/store"
)

// EventStore defines what the service needs from storage
type EventStore interface {
	SaveEvent(ctx context.Context, event *store.Event) error
	GetEventsAfter(ctx context.Context, conversationID, afterID string, limit int) ([]*store.Event, error)
	GetEvents(ctx context.Context, p store.GetEventsParams) (*store.GetEventsResult, error)
}

// Service records conversation events and broadcasts them to live streams.
type Service struct {
	store       EventStore
	broadcaster *Broadcaster
	logger      *slog.Logger
}

// NewService creates a conversation Service.
func NewService(s EventStore, b *Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       s,
		broadcaster: b,
		logger:      logger.With("component", "conversation"),
	}
}

// Publish saves event and then broadcasts it. An event that fails to save
// is not broadcast.
func (s *Service) Publish(ctx context.Context, event *store.Event) error {
	if event.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id is required", store.ErrInvalidEvent)
	}
	if event.Name == "" {
		return fmt.Errorf("%w: event name is required", store.ErrInvalidEvent)
	}

	if err := s.store.SaveEvent(ctx, event); err != nil {
		return fmt.Errorf("recording event: %w", err)
	}

	s.logger.Debug("event recorded",
		"conversation_id", event.ConversationID,
		"event", event.Name,
		"event_id", event.ID,
		"seq", event.Seq)

	s.broadcaster.Publish(event)
	return nil
}

// Follow subscribes to live events and returns the backlog newer than
// lastEventID. Live events already contained in the backlog are filtered
// out, so the caller can write the backlog and then drain live without
// gaps or duplicates. The live channel closes when ctx is cancelled or the
// subscriber is dropped for falling behind.
func (s *Service) Follow(ctx context.Context, conversationID, lastEventID string, limit int) (backlog []*store.Event, live <-chan *store.Event, err error) {
	ctx, cancel := context.WithCancel(ctx)

	// Subscribe before reading the ledger so nothing published in between is missed
	raw, _ := s.broadcaster.Subscribe(ctx, conversationID)

	backlog, err = s.store.GetEventsAfter(ctx, conversationID, lastEventID, limit)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("loading backlog: %w", err)
	}

	var lastSeq int64
	if n := len(backlog); n > 0 {
		lastSeq = backlog[n-1].Seq
	}

	out := make(chan *store.Event)
	go func() {
		defer close(out)
		defer cancel()
		for ev := range raw {
			if ev.Seq <= lastSeq {
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return backlog, out, nil
}

// History returns one page of a conversation's events, oldest first.
func (s *Service) History(ctx context.Context, p store.GetEventsParams) (*store.GetEventsResult, error) {
	res, err := s.store.GetEvents(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return res, nil
}
