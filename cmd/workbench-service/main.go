// ABOUTME: Entry point for the workbench service that owns conversation event streams
// ABOUTME: Subcommands: serve, token (mint JWTs), health (HTTP and gRPC checks)

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/2389/coven-workbench/internal/auth"
	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/devstack"
	"github.com/2389/coven-workbench/internal/logging"
	"github.com/2389/coven-workbench/internal/workbench"
)

// Version is set at build time.
var version = "dev"

const banner = `
                    _    _                     _
 __      _____  _ __| | _| |__   ___ _ __   ___| |__
 \ \ /\ / / _ \| '__| |/ / '_ \ / _ \ '_ \ / __| '_ \
  \ V  V / (_) | |  |   <| |_) |  __/ | | | (__| | | |
   \_/\_/ \___/|_|  |_|\_\_.__/ \___|_| |_|\___|_| |_|
`

func usage() {
	fmt.Println("Usage: workbench-service <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                        Start the workbench service")
	fmt.Println("  token --sub NAME --scope S   Mint an API token")
	fmt.Println("  health                       Check service health")
	fmt.Println("  version                      Print the version")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, args)
	case "token":
		err = runToken(args)
	case "health":
		err = runHealth(ctx, args)
	case "version":
		fmt.Println(version)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves and loads the config file, falling back to defaults
// when it does not exist.
func loadConfig(flagValue string) (*config.Config, string, error) {
	path := config.ResolvePath(flagValue)
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func runServe(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	httpAddr := fs.String("http-addr", "", "HTTP listen address (overrides config)")
	grpcAddr := fs.String("grpc-addr", "", "gRPC listen address (overrides config)")
	dbPath := fs.String("db", "", "SQLite database path (overrides config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if *httpAddr != "" {
		cfg.Server.HTTPAddr = *httpAddr
	}
	if *grpcAddr != "" {
		cfg.Server.GRPCAddr = *grpcAddr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "workbench.db"
	}
	if err := cfg.ValidateService(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging, os.Stderr)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("gRPC:      %s\n", cfg.Server.GRPCAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Auth:      ")
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("disabled")
	} else {
		fmt.Println("jwt")
	}
	fmt.Println()

	svc, err := workbench.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating service: %w", err)
	}
	return svc.Run(ctx)
}

func runToken(args []string) error {
	fs := pflag.NewFlagSet("token", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	subject := fs.String("sub", "", "token subject (who is calling)")
	scopes := fs.StringSlice("scope", []string{auth.ScopeSubscribe}, "scopes to grant: subscribe, publish")
	expires := fs.Duration("expires", 0, "token lifetime (0 for no expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is not configured")
	}

	verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return err
	}
	token, err := verifier.Generate(*subject, *scopes, *expires)
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Println(token)
	return nil
}

func runHealth(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("health", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "config file path")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("http://%s/health/ready", cfg.Server.HTTPAddr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: HTTP status %d", resp.StatusCode)
	}

	probe := devstack.GRPCHealthProbe{Addr: cfg.Server.GRPCAddr, Service: workbench.HealthServiceName}
	if err := probe.Ready(ctx); err != nil {
		return fmt.Errorf("unhealthy: gRPC %w", err)
	}

	fmt.Println("healthy")
	return nil
}
