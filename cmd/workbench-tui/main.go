// ABOUTME: Terminal frontend following one conversation's panels
// ABOUTME: Hosts the panel controller in a Bubble Tea program and restores the last panel state

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"

	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/eventstream"
	"github.com/2389/coven-workbench/internal/logging"
	"github.com/2389/coven-workbench/internal/panels"
	"github.com/2389/coven-workbench/internal/store"
	"github.com/2389/coven-workbench/internal/tui"
	"github.com/2389/coven-workbench/internal/viewstate"
)

type options struct {
	configPath     string
	serviceURL     string
	conversationID string
	token          string
	statePath      string
	logFile        string
	events         []string
}

func main() {
	var opts options
	pflag.StringVarP(&opts.configPath, "config", "c", "", "config file path")
	pflag.StringVar(&opts.serviceURL, "service-url", "", "workbench service URL (overrides WORKBENCH_SERVICE_URL and config)")
	pflag.StringVar(&opts.conversationID, "conversation", "", "conversation id to follow")
	pflag.StringVar(&opts.token, "token", "", "API token (overrides config)")
	pflag.StringVar(&opts.statePath, "state-path", "", "SQLite file keeping the last panel state (overrides config)")
	pflag.StringVar(&opts.logFile, "log-file", "", "write logs to this file; logs are discarded when empty")
	pflag.StringSliceVar(&opts.events, "events", []string{"message", panels.FocusEventName}, "event names shown in the transcript")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	cfg, err := config.LoadOrDefault(config.ResolvePath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Workbench.ServiceURL = cfg.ResolveServiceURL(opts.serviceURL)
	if opts.conversationID != "" {
		cfg.Workbench.ConversationID = opts.conversationID
	}
	if opts.token != "" {
		cfg.Workbench.Token = opts.token
	}
	if opts.statePath != "" {
		cfg.Workbench.StatePath = opts.statePath
	}
	if err := cfg.ValidateClient(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Workbench.ConversationID == "" {
		return errors.New("a conversation id is required (--conversation or workbench.conversation_id)")
	}

	logger, closeLog, err := openLogger(cfg.Logging, opts.logFile)
	if err != nil {
		return err
	}
	defer closeLog()

	viewOpts := viewstate.Options{
		Initial:            viewstate.DefaultState(),
		TransitionDuration: cfg.Workbench.TransitionDuration,
		Logger:             logger,
	}
	if cfg.Workbench.StatePath != "" {
		states, err := store.NewSQLiteStore(cfg.Workbench.StatePath)
		if err != nil {
			return fmt.Errorf("opening state store: %w", err)
		}
		defer states.Close()

		key := "tui:" + cfg.Workbench.ConversationID
		restored, err := states.GetPanelState(ctx, key)
		switch {
		case err == nil:
			viewOpts.Initial = restored
		case !errors.Is(err, store.ErrPanelStateNotFound):
			logger.Warn("failed to restore panel state", "error", err)
		}
		viewOpts.Persister = states
		viewOpts.PersistKey = key
	}

	view := viewstate.New(viewOpts)
	defer view.Close()

	streams := eventstream.NewClient(eventstream.Options{
		Token:      cfg.Workbench.Token,
		RetryDelay: cfg.Stream.Retry,
		Logger:     logger,
	})
	defer streams.Close()

	ctrl := panels.New(panels.Options{
		ServiceURL: cfg.Workbench.ServiceURL,
		Streams:    streams,
		View:       view,
		Logger:     logger,
	})
	defer ctrl.Close()

	feed := tui.NewFeed(view)
	defer feed.Close()
	feed.WatchFocus(view)

	// Stops the transcript follower when the program exits
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	model := tui.NewModel(ctrl, feed, view.State())
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if err := ctrl.OnActivate(ctx, cfg.Workbench.ConversationID); err != nil {
		return err
	}
	go followTranscript(ctx, streams, feed, cfg, opts.events)
	go func() {
		if err := ctrl.WaitSubscribed(ctx); err != nil && ctx.Err() == nil {
			feed.Announce("not subscribed: " + err.Error())
		}
	}()

	_, err = program.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// followTranscript borrows the conversation stream alongside the controller
// and forwards the transcript events to the feed.
func followTranscript(ctx context.Context, streams *eventstream.Client, feed *tui.Feed, cfg *config.Config, names []string) {
	handle, err := streams.CreateOrUpdate(ctx, cfg.Workbench.ServiceURL, eventstream.StreamTypeConversation, cfg.Workbench.ConversationID)
	if err != nil {
		if ctx.Err() == nil {
			feed.Announce("stream unavailable: " + err.Error())
		}
		return
	}
	defer handle.Release()

	listener := feed.Listener()
	ids := make(map[string]eventstream.ListenerID, len(names))
	for _, name := range names {
		ids[name] = handle.AddEventListener(name, listener)
	}
	defer func() {
		for name, id := range ids {
			handle.RemoveEventListener(name, id)
		}
	}()

	select {
	case <-ctx.Done():
	case <-handle.Done():
	}
}

func openLogger(cfg config.LoggingConfig, path string) (*slog.Logger, func(), error) {
	if path == "" {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	return logging.New(cfg, f), func() { f.Close() }, nil
}
