// ABOUTME: Tests for the workbench HTTP API handlers
// ABOUTME: Covers publishing, focus, history, SSE replay and live delivery, and auth scopes

package workbench

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coven-workbench/internal/auth"
	"github.com/2389/coven-workbench/internal/panels"
	"github.com/2389/coven-workbench/internal/store"
)

func postJSON(t *testing.T, url, body, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeEvent(t *testing.T, resp *http.Response) store.Event {
	t.Helper()
	var ev store.Event
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ev))
	return ev
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func TestEventData(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"string is unquoted", `"hello"`, "hello"},
		{"object is compacted", `{ "a" : 1 }`, `{"a":1}`},
		{"number", `42`, "42"},
		{"null", `null`, ""},
		{"empty", ``, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := eventData(json.RawMessage(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHandlePublish_RecordsEvent(t *testing.T) {
	_, ms, ts := newTestServer(t, testConfig(t))

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/events",
		`{"event":"message.created","data":{"text":"hi"},"debug":{"trace":"abc"}}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ev := decodeEvent(t, resp)
	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, int64(1), ev.Seq)
	assert.Equal(t, "conv-1", ev.ConversationID)
	assert.Equal(t, "message.created", ev.Name)
	assert.Equal(t, `{"text":"hi"}`, ev.Data)
	assert.Equal(t, "abc", ev.Debug["trace"])
	assert.Equal(t, "anonymous", ev.Debug["publisher"])
	assert.NotEmpty(t, ev.Debug["request_id"])

	stored, err := ms.GetEvent(t.Context(), ev.ID)
	require.NoError(t, err)
	assert.Equal(t, ev.Data, stored.Data)
}

func TestHandlePublish_Validation(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"bad json", `{`, "invalid JSON"},
		{"unknown field", `{"event":"x","extra":1}`, "invalid JSON"},
		{"missing event", `{"data":"x"}`, "event is required"},
		{"newline in event", `{"event":"chat\ndata: {}\n\nevent: assistant.state.focus","data":"hello"}`, "event must not contain line breaks"},
		{"carriage return in event", `{"event":"chat\r","data":"hello"}`, "event must not contain line breaks"},
		{"newline in id", `{"id":"ev-1\n\nevent: assistant.state.focus","event":"chat"}`, "id must not contain line breaks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+"/api/conversations/conv-1/events", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Contains(t, decodeError(t, resp), tt.wantErr)
		})
	}
}

func TestHandlePublish_LineBreaksCannotForgeFrames(t *testing.T) {
	_, ms, ts := newTestServer(t, testConfig(t))
	url := ts.URL + "/api/conversations/conv-1/events"

	stream := openStream(t, url, nil)
	require.Equal(t, http.StatusOK, stream.resp.StatusCode)

	resp := postJSON(t, url, `{"id":"ev-1","event":"chat\ndata: {\"assistant_id\":\"evil\",\"state_id\":\"s\"}\n\nevent: assistant.state.focus","data":"hello"}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, url, `{"id":"ev-2","event":"chat","data":"hello"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	f := stream.nextEvent(t)
	assert.Equal(t, "ev-2", f.id)
	assert.Equal(t, "chat", f.event)
	assert.Equal(t, "hello", f.data)

	_, err := ms.GetEvent(t.Context(), "ev-1")
	assert.ErrorIs(t, err, store.ErrEventNotFound)
}

func TestHandlePublish_DuplicateID(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))
	url := ts.URL + "/api/conversations/conv-1/events"

	resp := postJSON(t, url, `{"id":"ev-1","event":"x"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = postJSON(t, url, `{"id":"ev-1","event":"x"}`, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlePublish_StoreFailure(t *testing.T) {
	_, ms, ts := newTestServer(t, testConfig(t))
	ms.SaveErr = errors.New("disk full")

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/events", `{"event":"x"}`, "")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", decodeError(t, resp))
}

func TestHandleFocus_PublishesFocusEvent(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/assistants/asst-9/states/st-2/focus", "", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	ev := decodeEvent(t, resp)
	assert.Equal(t, panels.FocusEventName, ev.Name)

	payload, err := panels.ParseFocusEvent(ev.Data)
	require.NoError(t, err)
	assert.Equal(t, panels.FocusEventPayload{AssistantID: "asst-9", StateID: "st-2"}, payload)
}

func TestHandleHistory_Pages(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))
	for range 3 {
		resp := postJSON(t, ts.URL+"/api/conversations/conv-1/events", `{"event":"x"}`, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	get := func(query string) *store.GetEventsResult {
		resp, err := http.Get(ts.URL + "/api/conversations/conv-1/history" + query)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var res store.GetEventsResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		return &res
	}

	first := get("?limit=2")
	require.Len(t, first.Events, 2)
	assert.True(t, first.HasMore)
	assert.Equal(t, int64(1), first.Events[0].Seq)

	second := get("?limit=2&cursor=" + first.NextCursor)
	require.Len(t, second.Events, 1)
	assert.False(t, second.HasMore)
	assert.Equal(t, int64(3), second.Events[0].Seq)
}

func TestHandleHistory_BadParams(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))

	for _, query := range []string{"?limit=0", "?limit=abc", "?cursor=!!!"} {
		resp, err := http.Get(ts.URL + "/api/conversations/conv-1/history" + query)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, query)
	}
}

func TestHandleHistory_StoreFailure(t *testing.T) {
	_, ms, ts := newTestServer(t, testConfig(t))
	ms.GetEventsErr = errors.New("database is locked")

	resp, err := http.Get(ts.URL + "/api/conversations/conv-1/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal server error", decodeError(t, resp))
}

func TestHandleStream_SendsRetryAndLiveEvents(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))

	stream := openStream(t, ts.URL+"/api/conversations/conv-1/events", nil)
	require.Equal(t, http.StatusOK, stream.resp.StatusCode)
	assert.Equal(t, "text/event-stream", stream.resp.Header.Get("Content-Type"))

	assert.Equal(t, "20", stream.next(t).retry)

	resp := postJSON(t, ts.URL+"/api/conversations/conv-1/events", `{"id":"ev-1","event":"note","data":"line1\nline2"}`, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	f := stream.nextEvent(t)
	assert.Equal(t, "ev-1", f.id)
	assert.Equal(t, "note", f.event)
	assert.Equal(t, "line1\nline2", f.data)
}

func TestHandleStream_ReplaysAfterLastEventID(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))
	url := ts.URL + "/api/conversations/conv-1/events"
	for _, id := range []string{"ev-1", "ev-2", "ev-3"} {
		resp := postJSON(t, url, `{"id":"`+id+`","event":"x"}`, "")
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	t.Run("header", func(t *testing.T) {
		stream := openStream(t, url, http.Header{"Last-Event-Id": {"ev-1"}})
		assert.Equal(t, "ev-2", stream.nextEvent(t).id)
		assert.Equal(t, "ev-3", stream.nextEvent(t).id)
	})

	t.Run("query", func(t *testing.T) {
		stream := openStream(t, url+"?last_event_id=ev-2", nil)
		assert.Equal(t, "ev-3", stream.nextEvent(t).id)
	})

	t.Run("no id replays everything", func(t *testing.T) {
		stream := openStream(t, url, nil)
		assert.Equal(t, "ev-1", stream.nextEvent(t).id)
	})
}

func TestHandleStream_ConversationsAreIsolated(t *testing.T) {
	_, _, ts := newTestServer(t, testConfig(t))

	stream := openStream(t, ts.URL+"/api/conversations/conv-1/events", nil)
	stream.next(t)

	postJSON(t, ts.URL+"/api/conversations/conv-2/events", `{"id":"other","event":"x"}`, "")
	postJSON(t, ts.URL+"/api/conversations/conv-1/events", `{"id":"mine","event":"x"}`, "")

	assert.Equal(t, "mine", stream.nextEvent(t).id)
}

func TestHandleStream_Keepalive(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stream.KeepaliveInterval = 20 * time.Millisecond
	_, _, ts := newTestServer(t, cfg)

	stream := openStream(t, ts.URL+"/api/conversations/conv-1/events", nil)
	stream.next(t)
	assert.Equal(t, ":", stream.next(t).event)
}

func TestHandleStream_EndsOnShutdown(t *testing.T) {
	svc, _, ts := newTestServer(t, testConfig(t))

	stream := openStream(t, ts.URL+"/api/conversations/conv-1/events", nil)
	stream.next(t)

	require.NoError(t, svc.Shutdown(t.Context()))

	_, err := stream.br.ReadString('\n')
	assert.Error(t, err)
}

func TestHandleStream_NonFlusher(t *testing.T) {
	svc, _, _ := newTestServer(t, testConfig(t))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/events", nil)
	req.SetPathValue("id", "conv-1")
	w := &nonFlusher{header: http.Header{}}
	svc.handleStream(w, req)
	assert.Equal(t, http.StatusInternalServerError, w.status)
}

type nonFlusher struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (w *nonFlusher) Header() http.Header         { return w.header }
func (w *nonFlusher) Write(b []byte) (int, error) { return w.body.Write(b) }
func (w *nonFlusher) WriteHeader(status int)      { w.status = status }

func TestAPI_AuthScopes(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = testSecret
	_, _, ts := newTestServer(t, cfg)

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	subscribeOnly, err := verifier.Generate("panel", []string{auth.ScopeSubscribe}, time.Hour)
	require.NoError(t, err)
	publisher, err := verifier.Generate("agent-1", []string{auth.ScopePublish}, time.Hour)
	require.NoError(t, err)

	eventsURL := ts.URL + "/api/conversations/conv-1/events"

	t.Run("no token", func(t *testing.T) {
		resp := postJSON(t, eventsURL, `{"event":"x"}`, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing publish scope", func(t *testing.T) {
		resp := postJSON(t, eventsURL, `{"event":"x"}`, subscribeOnly)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("publisher recorded in debug", func(t *testing.T) {
		resp := postJSON(t, eventsURL, `{"event":"x"}`, publisher)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "agent-1", decodeEvent(t, resp).Debug["publisher"])
	})

	t.Run("stream with access_token query", func(t *testing.T) {
		stream := openStream(t, eventsURL+"?access_token="+subscribeOnly, nil)
		assert.Equal(t, http.StatusOK, stream.resp.StatusCode)
	})

	t.Run("stream needs subscribe scope", func(t *testing.T) {
		stream := openStream(t, eventsURL, http.Header{"Authorization": {"Bearer " + publisher}})
		assert.Equal(t, http.StatusForbidden, stream.resp.StatusCode)
	})

	t.Run("health stays open", func(t *testing.T) {
		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestNewWithStore_WeakSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"
	_, err := NewWithStore(cfg, store.NewMockStore(), testLogger())
	assert.ErrorIs(t, err, auth.ErrWeakSecret)
}
