// ABOUTME: HTTP API handlers for conversation streams, publishing, and history
// ABOUTME: Streams replay the ledger after Last-Event-ID and then follow live events

package workbench

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coven-workbench/internal/auth"
	"github.com/2389/coven-workbench/internal/debuginfo"
	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/panels"
	"github.com/2389/coven-workbench/internal/store"
)

// maxPublishBody bounds POST bodies.
const maxPublishBody = 1 << 20

// PublishRequest is the body of POST /api/conversations/{id}/events.
// Data may be a JSON string, sent as-is, or any other JSON value, sent in
// its compact encoding.
type PublishRequest struct {
	ID    string             `json:"id,omitempty"`
	Event string             `json:"event"`
	Data  json.RawMessage    `json:"data"`
	Debug debuginfo.Metadata `json:"debug,omitempty"`
}

// eventData turns the request's data field into the SSE data string.
func eventData(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// handleStream serves a conversation's events as server-sent events.
func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	conversationID := r.PathValue("id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	lastEventID := r.Header.Get("Last-Event-ID")
	if lastEventID == "" {
		lastEventID = r.URL.Query().Get("last_event_id")
	}

	backlog, live, err := s.conversation.Follow(r.Context(), conversationID, lastEventID, s.config.Stream.HistoryLimit)
	if err != nil {
		s.logger.Error("failed to open conversation stream", "conversation_id", conversationID, "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "retry: %d\n\n", s.config.Stream.Retry.Milliseconds())
	for _, ev := range backlog {
		_, _ = w.Write(eventstream.FormatFrame(ev.ID, ev.Name, ev.Data))
	}
	flusher.Flush()

	logger := s.logger.With("conversation_id", conversationID, "remote_addr", r.RemoteAddr)
	logger.Debug("stream opened", "last_event_id", lastEventID, "replayed", len(backlog))

	keepalive := time.NewTicker(s.config.Stream.KeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("stream closed by client")
			return
		case <-s.closing:
			logger.Debug("stream closed for shutdown")
			return
		case ev, ok := <-live:
			if !ok {
				// Dropped for falling behind; the client reconnects and replays
				logger.Info("stream subscription ended")
				return
			}
			if _, err := w.Write(eventstream.FormatFrame(ev.ID, ev.Name, ev.Data)); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := w.Write([]byte(": keepalive\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handlePublish records and broadcasts an event to a conversation.
func (s *Service) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPublishBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Event == "" {
		s.sendJSONError(w, http.StatusBadRequest, "event is required")
		return
	}
	if store.HasLineBreak(req.Event) {
		s.sendJSONError(w, http.StatusBadRequest, "event must not contain line breaks")
		return
	}
	if store.HasLineBreak(req.ID) {
		s.sendJSONError(w, http.StatusBadRequest, "id must not contain line breaks")
		return
	}
	data, err := eventData(req.Data)
	if err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid data: "+err.Error())
		return
	}

	s.publish(w, r, &store.Event{
		ID:             req.ID,
		ConversationID: r.PathValue("id"),
		Name:           req.Event,
		Data:           data,
		Debug:          req.Debug,
	})
}

// handleFocus publishes assistant.state.focus for the assistant state in the path.
func (s *Service) handleFocus(w http.ResponseWriter, r *http.Request) {
	payload, err := json.Marshal(panels.FocusEventPayload{
		AssistantID: r.PathValue("assistant_id"),
		StateID:     r.PathValue("state_id"),
	})
	if err != nil {
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.publish(w, r, &store.Event{
		ConversationID: r.PathValue("id"),
		Name:           panels.FocusEventName,
		Data:           string(payload),
	})
}

// publish stamps request debug metadata on ev and hands it to the conversation service.
func (s *Service) publish(w http.ResponseWriter, r *http.Request, ev *store.Event) {
	publisher := "anonymous"
	if p := auth.FromContext(r.Context()); p != nil {
		publisher = p.ID
	}
	ev.Debug = ev.Debug.Merge(debuginfo.New().
		Set("request_id", uuid.New().String()).
		Set("publisher", publisher))

	if err := s.conversation.Publish(r.Context(), ev); err != nil {
		if errors.Is(err, store.ErrDuplicateEvent) {
			s.sendJSONError(w, http.StatusConflict, "event id already exists")
			return
		}
		if errors.Is(err, store.ErrInvalidEvent) {
			s.sendJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("failed to publish event",
			"conversation_id", ev.ConversationID,
			"event", ev.Name,
			"error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.logger.Info("event published",
		"conversation_id", ev.ConversationID,
		"event", ev.Name,
		"event_id", ev.ID,
		"publisher", publisher,
		"debug_keys", ev.Debug.Keys())
	s.writeJSON(w, http.StatusCreated, ev)
}

// handleHistory returns a page of a conversation's events.
func (s *Service) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.config.Stream.HistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.sendJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	res, err := s.conversation.History(r.Context(), store.GetEventsParams{
		ConversationID: r.PathValue("id"),
		Limit:          limit,
		Cursor:         q.Get("cursor"),
	})
	if errors.Is(err, store.ErrInvalidCursor) {
		s.sendJSONError(w, http.StatusBadRequest, "invalid cursor")
		return
	}
	if err != nil {
		s.logger.Error("failed to load history",
			"conversation_id", r.PathValue("id"),
			"error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Service) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Service) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
