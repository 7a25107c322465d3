// ABOUTME: Shared helpers for workbench service tests
// ABOUTME: Builds services on the mock store and reads raw SSE frames from streams

package workbench

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/store"
)

const testSecret = "workbench-test-secret-that-is-long-enough"

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Server.GRPCAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "workbench.db")
	cfg.Stream.Retry = 20 * time.Millisecond
	return cfg
}

// newTestServer serves svc.Handler() over httptest. Cleanup shuts the
// service down first so open streams end before the server closes.
func newTestServer(t *testing.T, cfg *config.Config) (*Service, *store.MockStore, *httptest.Server) {
	t.Helper()
	ms := store.NewMockStore()
	svc, err := NewWithStore(cfg, ms, testLogger())
	require.NoError(t, err)

	ts := httptest.NewServer(svc.Handler())
	t.Cleanup(ts.Close)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	return svc, ms, ts
}

type sseFrame struct {
	id    string
	event string
	data  string
	retry string
}

// sseReader reads frames from an open stream response.
type sseReader struct {
	resp *http.Response
	br   *bufio.Reader
}

// openStream connects to a conversation's events stream.
func openStream(t *testing.T, url string, header http.Header) *sseReader {
	t.Helper()
	req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return &sseReader{resp: resp, br: bufio.NewReader(resp.Body)}
}

// next returns the next frame, including retry-only and comment frames.
// Comments are reported with event set to ":".
func (r *sseReader) next(t *testing.T) sseFrame {
	t.Helper()
	var f sseFrame
	var data []string
	got := false
	for {
		line, err := r.br.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if got {
				f.data = strings.Join(data, "\n")
				return f
			}
			continue
		}
		got = true
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "":
			f.event = ":"
		case "id":
			f.id = value
		case "event":
			f.event = value
		case "data":
			data = append(data, value)
		case "retry":
			f.retry = value
		}
	}
}

// nextEvent skips retry-only and comment frames.
func (r *sseReader) nextEvent(t *testing.T) sseFrame {
	t.Helper()
	for {
		f := r.next(t)
		if f.event == ":" || (f.event == "" && f.id == "" && f.data == "") {
			continue
		}
		return f
	}
}
