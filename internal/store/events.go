// ABOUTME: Conversation event ledger backing stream replay and history
// ABOUTME: Provides save, lookup, replay-after-id, and cursor pagination over conversation_events

package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const eventColumns = `seq, id, conversation_id, event, data, debug, created_at`

// prepareEvent validates a new event and fills its id and timestamp.
// Names and ids become SSE field lines, so they may not contain line breaks.
func prepareEvent(event *Event) error {
	if event.ConversationID == "" {
		return fmt.Errorf("%w: conversation_id required", ErrInvalidEvent)
	}
	if event.Name == "" {
		return fmt.Errorf("%w: event name required", ErrInvalidEvent)
	}
	if HasLineBreak(event.Name) {
		return fmt.Errorf("%w: event name contains a line break", ErrInvalidEvent)
	}
	if HasLineBreak(event.ID) {
		return fmt.Errorf("%w: event id contains a line break", ErrInvalidEvent)
	}
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	return nil
}

// HasLineBreak reports whether s contains a carriage return or newline.
func HasLineBreak(s string) bool {
	return strings.ContainsAny(s, "\r\n")
}

// SaveEvent persists an event and assigns its Seq
func (s *SQLiteStore) SaveEvent(ctx context.Context, event *Event) error {
	if err := prepareEvent(event); err != nil {
		return err
	}

	var debug *string
	if len(event.Debug) > 0 {
		raw, err := json.Marshal(event.Debug)
		if err != nil {
			return fmt.Errorf("encoding debug metadata: %w", err)
		}
		str := string(raw)
		debug = &str
	}

	query := `
		INSERT INTO conversation_events (id, conversation_id, event, data, debug, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.ConversationID,
		event.Name,
		event.Data,
		debug,
		event.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateEvent
		}
		return fmt.Errorf("inserting event: %w", err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading event seq: %w", err)
	}
	event.Seq = seq

	s.logger.Debug("saved conversation event",
		"event_id", event.ID,
		"conversation_id", event.ConversationID,
		"event", event.Name,
		"seq", seq,
	)
	return nil
}

// GetEvent retrieves a single event by ID
func (s *SQLiteStore) GetEvent(ctx context.Context, id string) (*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM conversation_events WHERE id = ?`

	event, err := scanEvent(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying event: %w", err)
	}
	return event, nil
}

// GetEventsAfter returns the events a reconnecting stream missed.
func (s *SQLiteStore) GetEventsAfter(ctx context.Context, conversationID, afterID string, limit int) ([]*Event, error) {
	limit = clampLimit(limit)

	var afterSeq int64
	if afterID != "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT seq FROM conversation_events WHERE id = ? AND conversation_id = ?`,
			afterID, conversationID,
		).Scan(&afterSeq)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("looking up last event id: %w", err)
		}
	}

	// Newest first so the limit keeps the most recent events
	query := `
		SELECT ` + eventColumns + `
		FROM conversation_events
		WHERE conversation_id = ? AND seq > ?
		ORDER BY seq DESC
		LIMIT ?
	`
	events, err := s.queryEvents(ctx, query, conversationID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(events)
	return events, nil
}

// GetEvents retrieves events for a conversation with pagination support.
// Events are returned in chronological order (oldest first).
func (s *SQLiteStore) GetEvents(ctx context.Context, p GetEventsParams) (*GetEventsResult, error) {
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

	// Fetch one extra row to learn whether another page exists
	query := `
		SELECT ` + eventColumns + `
		FROM conversation_events
		WHERE conversation_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`
	events, err := s.queryEvents(ctx, query, p.ConversationID, afterSeq, limit+1)
	if err != nil {
		return nil, err
	}
	return pageResult(events, limit), nil
}

func pageResult(events []*Event, limit int) *GetEventsResult {
	result := &GetEventsResult{Events: events}
	if len(events) > limit {
		result.Events = events[:limit]
		result.HasMore = true
		result.NextCursor = encodeCursor(result.Events[limit-1].Seq)
	}
	if result.Events == nil {
		result.Events = []*Event{}
	}
	return result
}

// queryEvents is a helper that executes a query and returns events
func (s *SQLiteStore) queryEvents(ctx context.Context, query string, args ...any) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event row: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event rows: %w", err)
	}
	return events, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	event := &Event{}
	var debug sql.NullString
	var createdAt string

	if err := row.Scan(
		&event.Seq,
		&event.ID,
		&event.ConversationID,
		&event.Name,
		&event.Data,
		&debug,
		&createdAt,
	); err != nil {
		return nil, err
	}

	if debug.Valid && debug.String != "" {
		if err := json.Unmarshal([]byte(debug.String), &event.Debug); err != nil {
			return nil, fmt.Errorf("decoding debug metadata: %w", err)
		}
	}

	var err error
	event.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return event, nil
}

// encodeCursor creates an opaque cursor string from an event seq.
func encodeCursor(seq int64) string {
	return base64.StdEncoding.EncodeToString([]byte("seq:" + strconv.FormatInt(seq, 10)))
}

// decodeCursor parses an opaque cursor string back into a seq.
func decodeCursor(cursor string) (int64, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}
	raw, ok := strings.CutPrefix(string(decoded), "seq:")
	if !ok {
		return 0, errors.New("invalid cursor format")
	}
	seq, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seq < 0 {
		return 0, fmt.Errorf("invalid cursor seq %q", raw)
	}
	return seq, nil
}
