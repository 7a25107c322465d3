// ABOUTME: Local development orchestrator for the workbench stack
// ABOUTME: Runs the service, frontend, and example agent from the dev config section

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/devstack"
	"github.com/2389/coven-workbench/internal/logging"
	"github.com/2389/coven-workbench/internal/workbench"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "config file path")
	pflag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configFlag string) error {
	path := config.ResolvePath(configFlag)
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateDev(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stderr)

	green := color.New(color.FgGreen)
	green.Print("▶ ")
	fmt.Printf("workbench-dev: %d processes from %s\n", len(cfg.Dev.Processes), path)

	sup := devstack.New(devstack.Options{
		Processes: cfg.Dev.Processes,
		Probe: devstack.GRPCHealthProbe{
			Addr:    cfg.Server.GRPCAddr,
			Service: workbench.HealthServiceName,
		},
		ReadyTimeout: cfg.Dev.ReadyTimeout,
		GracePeriod:  cfg.Dev.GracePeriod,
		Output:       devstack.NewOutput(os.Stdout),
		Logger:       logger,
	})
	return sup.Run(ctx)
}
