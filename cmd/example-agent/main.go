// ABOUTME: Example agent that drives a conversation's panels from outside
// ABOUTME: Publishes a message and an assistant.state.focus event per step, cycling assistant states

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/debuginfo"
	"github.com/2389/coven-workbench/internal/logging"
	"github.com/2389/coven-workbench/internal/workbench"
)

// target is one assistant state the agent focuses.
type target struct {
	assistantID string
	stateID     string
}

func parseTargets(specs []string) ([]target, error) {
	targets := make([]target, 0, len(specs))
	for _, spec := range specs {
		aid, sid, ok := strings.Cut(spec, ":")
		if !ok || aid == "" || sid == "" {
			return nil, fmt.Errorf("invalid target %q, want ASSISTANT:STATE", spec)
		}
		targets = append(targets, target{assistantID: aid, stateID: sid})
	}
	if len(targets) == 0 {
		return nil, errors.New("at least one target is required")
	}
	return targets, nil
}

func main() {
	configPath := pflag.StringP("config", "c", "", "config file path")
	serviceURL := pflag.String("service-url", "", "workbench service URL (overrides WORKBENCH_SERVICE_URL and config)")
	conversationID := pflag.String("conversation", "", "conversation id to drive")
	token := pflag.String("token", "", "API token with the publish scope (overrides config)")
	interval := pflag.Duration("interval", 5*time.Second, "delay between steps")
	count := pflag.Int("count", 0, "number of steps (0 runs until interrupted)")
	specs := pflag.StringSlice("targets", []string{"asst-1:thinking", "asst-1:answer", "asst-2:review"}, "ASSISTANT:STATE pairs to cycle through")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath, *serviceURL, *conversationID, *token, *interval, *count, *specs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFlag, serviceURL, conversationID, token string, interval time.Duration, count int, specs []string) error {
	cfg, err := config.LoadOrDefault(config.ResolvePath(configFlag))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Workbench.ServiceURL = cfg.ResolveServiceURL(serviceURL)
	if conversationID == "" {
		conversationID = cfg.Workbench.ConversationID
	}
	if token == "" {
		token = cfg.Workbench.Token
	}
	if err := cfg.ValidateClient(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if conversationID == "" {
		return errors.New("a conversation id is required (--conversation or workbench.conversation_id)")
	}
	if interval <= 0 {
		return errors.New("interval must be positive")
	}

	targets, err := parseTargets(specs)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, os.Stderr).With("component", "example-agent")
	pub, err := workbench.NewPublisher(cfg.Workbench.ServiceURL, token, nil)
	if err != nil {
		return err
	}

	logger.Info("driving conversation",
		"service_url", cfg.Workbench.ServiceURL,
		"conversation_id", conversationID,
		"targets", len(targets))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for step := 0; count == 0 || step < count; step++ {
		t := targets[step%len(targets)]
		if err := publishStep(ctx, pub, logger, conversationID, step, t); err != nil {
			var apiErr *workbench.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode < 500 {
				// 4xx responses are fatal
				return err
			}
			logger.Warn("step failed", "step", step, "error", err)
		}

		if count != 0 && step == count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	return nil
}

func publishStep(ctx context.Context, pub *workbench.Publisher, logger *slog.Logger, conversationID string, step int, t target) error {
	text := fmt.Sprintf("%s moved to %s", t.assistantID, t.stateID)
	debug := debuginfo.New().Set("step", step).Set("agent", "example-agent")
	if _, err := pub.Publish(ctx, conversationID, "message", text, debug); err != nil {
		return fmt.Errorf("publishing message: %w", err)
	}

	ev, err := pub.Focus(ctx, conversationID, t.assistantID, t.stateID)
	if err != nil {
		return fmt.Errorf("publishing focus: %w", err)
	}
	logger.Info("focused assistant state",
		"step", step,
		"assistant_id", t.assistantID,
		"state_id", t.stateID,
		"event_id", ev.ID,
		"request_id", ev.Debug.String("request_id"))
	return nil
}
