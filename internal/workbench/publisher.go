// ABOUTME: HTTP client for publishing events to the workbench service
// ABOUTME: Used by agents and tools that drive conversation panels from outside

package workbench

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/2389/coven-workbench/internal/debuginfo"
	"github.com/2389/coven-workbench/internal/store"
)

// APIError is a non-2xx answer from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("workbench API error (%d): %s", e.StatusCode, e.Message)
}

// Publisher publishes events over the service's HTTP API.
type Publisher struct {
	baseURL *url.URL
	token   string
	http    *http.Client
}

// NewPublisher creates a Publisher for serviceURL. A nil httpClient uses a
// client with a 10s timeout.
func NewPublisher(serviceURL, token string, httpClient *http.Client) (*Publisher, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("parsing service url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("service url must be http or https: %q", serviceURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Publisher{baseURL: u, token: token, http: httpClient}, nil
}

// Publish sends an event with data as its payload string.
func (p *Publisher) Publish(ctx context.Context, conversationID, event, data string, debug debuginfo.Metadata) (*store.Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(PublishRequest{Event: event, Data: raw, Debug: debug})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	var ev store.Event
	if err := p.do(ctx, http.MethodPost, p.baseURL.JoinPath("api", "conversations", conversationID, "events"), body, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// Focus asks every panel following conversationID to show the assistant state.
func (p *Publisher) Focus(ctx context.Context, conversationID, assistantID, stateID string) (*store.Event, error) {
	u := p.baseURL.JoinPath("api", "conversations", conversationID, "assistants", assistantID, "states", stateID, "focus")

	var ev store.Event
	if err := p.do(ctx, http.MethodPost, u, nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// History fetches one page of a conversation's events.
func (p *Publisher) History(ctx context.Context, conversationID string, limit int, cursor string) (*store.GetEventsResult, error) {
	u := p.baseURL.JoinPath("api", "conversations", conversationID, "history")
	q := u.Query()
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	u.RawQuery = q.Encode()

	var res store.GetEventsResult
	if err := p.do(ctx, http.MethodGet, u, nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (p *Publisher) do(ctx context.Context, method string, u *url.URL, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		msg := string(raw)
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			msg = apiErr.Error
		}
		return &APIError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
