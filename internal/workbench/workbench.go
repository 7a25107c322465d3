// ABOUTME: Workbench service orchestrator coordinating the HTTP API and gRPC health servers
// ABOUTME: Owns the event ledger, the conversation broadcaster, and graceful shutdown

package workbench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/2389/coven-workbench/internal/auth"
	"github.com/2389/coven-workbench/internal/config"
	"github.com/2389/coven-workbench/internal/conversation"
	"github.com/2389/coven-workbench/internal/store"
)

// HealthServiceName is the gRPC health service name reported by the workbench.
// The empty name reports the same status.
const HealthServiceName = "coven.workbench.v1.Workbench"

// Service is the backend that owns per-conversation event streams.
type Service struct {
	config       *config.Config
	store        store.Store
	broadcaster  *conversation.Broadcaster
	conversation *conversation.Service
	grpcServer   *grpc.Server
	health       *health.Server
	httpServer   *http.Server
	handler      http.Handler
	logger       *slog.Logger

	// closing is closed at shutdown so open streams end before the HTTP
	// server waits on them.
	closing   chan struct{}
	closeOnce sync.Once

	ready     atomic.Bool
	listening chan struct{}
	httpAddr  string
	grpcAddr  string
}

// initStore opens the SQLite ledger, honoring WORKBENCH_DB_PATH.
func initStore(cfg *config.Config) (store.Store, error) {
	dbPath := cfg.Database.Path
	if envPath := os.Getenv("WORKBENCH_DB_PATH"); envPath != "" {
		dbPath = envPath
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// New creates a Service backed by the SQLite store named in cfg.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}
	svc, err := NewWithStore(cfg, s, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	return svc, nil
}

// NewWithStore creates a Service on an existing store. The Service closes
// the store on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	broadcaster := conversation.NewBroadcaster(logger)
	svc := &Service{
		config:       cfg,
		store:        s,
		broadcaster:  broadcaster,
		conversation: conversation.NewService(s, broadcaster, logger),
		logger:       logger.With("component", "workbench"),
		closing:      make(chan struct{}),
		listening:    make(chan struct{}),
	}

	svc.grpcServer = grpc.NewServer(
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    15 * time.Second,
			Timeout: 5 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             5 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	svc.health = health.NewServer()
	svc.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	svc.health.SetServingStatus(HealthServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(svc.grpcServer, svc.health)

	mux := http.NewServeMux()

	// Health and docs - no auth required
	mux.HandleFunc("GET /health", svc.handleHealth)
	mux.HandleFunc("GET /health/ready", svc.handleReady)
	mux.HandleFunc("GET /docs", svc.handleDocs)

	if err := svc.registerAPIRoutes(mux); err != nil {
		return nil, err
	}

	svc.handler = mux
	svc.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return svc, nil
}

// registerAPIRoutes registers the /api routes with or without auth middleware.
func (s *Service) registerAPIRoutes(mux *http.ServeMux) error {
	routes := []struct {
		pattern string
		scope   string
		handler http.HandlerFunc
	}{
		{"GET /api/conversations/{id}/events", auth.ScopeSubscribe, s.handleStream},
		{"GET /api/conversations/{id}/history", auth.ScopeSubscribe, s.handleHistory},
		{"POST /api/conversations/{id}/events", auth.ScopePublish, s.handlePublish},
		{"POST /api/conversations/{id}/assistants/{assistant_id}/states/{state_id}/focus", auth.ScopePublish, s.handleFocus},
	}

	if s.config.Auth.JWTSecret == "" {
		for _, rt := range routes {
			mux.Handle(rt.pattern, rt.handler)
		}
		s.logger.Warn("HTTP auth disabled - no jwt_secret configured")
		return nil
	}

	verifier, err := auth.NewJWTVerifier([]byte(s.config.Auth.JWTSecret))
	if err != nil {
		return fmt.Errorf("creating JWT verifier: %w", err)
	}
	authMiddleware := auth.HTTPAuthMiddleware(verifier)
	for _, rt := range routes {
		mux.Handle(rt.pattern, authMiddleware(auth.RequireScope(rt.scope)(rt.handler)))
	}
	s.logger.Info("HTTP auth middleware enabled")
	return nil
}

// Handler returns the HTTP handler serving the API, health, and docs routes.
func (s *Service) Handler() http.Handler {
	return s.handler
}

// Conversation returns the conversation service used to publish events.
func (s *Service) Conversation() *conversation.Service {
	return s.conversation
}

// setupListeners creates TCP listeners for gRPC and HTTP.
func (s *Service) setupListeners() (grpcLn, httpLn net.Listener, err error) {
	s.logger.Info("starting workbench service",
		"grpc_addr", s.config.Server.GRPCAddr,
		"http_addr", s.config.Server.HTTPAddr,
	)

	grpcLn, err = net.Listen("tcp", s.config.Server.GRPCAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on gRPC address: %w", err)
	}

	httpLn, err = net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on HTTP address: %w", err)
	}

	return grpcLn, httpLn, nil
}

// startServers starts gRPC and HTTP servers in goroutines, returning error channel.
func (s *Service) startServers(grpcLn, httpLn net.Listener) chan error {
	errCh := make(chan error, 2)

	go func() {
		s.logger.Info("gRPC server listening", "addr", grpcLn.Addr().String())
		if err := s.grpcServer.Serve(grpcLn); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	go func() {
		s.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := s.httpServer.Serve(httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (s *Service) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		s.logger.Error("server error", "error", err)
		select {
		case more := <-errCh:
			s.logger.Error("additional server error", "error", more)
		default:
		}
		return err
	}
}

// Run starts the servers and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if a server fails.
func (s *Service) Run(ctx context.Context) error {
	grpcLn, httpLn, err := s.setupListeners()
	if err != nil {
		return err
	}
	s.httpAddr = httpLn.Addr().String()
	s.grpcAddr = grpcLn.Addr().String()

	errCh := s.startServers(grpcLn, httpLn)
	s.markReady(true)
	close(s.listening)

	serverErr := s.waitForShutdownSignal(ctx, errCh)
	shutdownErr := s.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// WaitListening blocks until Run has bound its listeners.
func (s *Service) WaitListening(ctx context.Context) error {
	select {
	case <-s.listening:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HTTPAddr returns the bound HTTP address once Run is listening.
func (s *Service) HTTPAddr() string { return s.httpAddr }

// GRPCAddr returns the bound gRPC address once Run is listening.
func (s *Service) GRPCAddr() string { return s.grpcAddr }

func (s *Service) markReady(ready bool) {
	s.ready.Store(ready)
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if ready {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(HealthServiceName, status)
}

// gracefulShutdown performs shutdown with a fresh context and timeout,
// since the Run context is already canceled.
func (s *Service) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// shutdownGRPCServer gracefully stops the gRPC server or force-stops on context cancel.
func (s *Service) shutdownGRPCServer(ctx context.Context) {
	stopped := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		s.grpcServer.Stop()
	}
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown ends open streams, stops both servers, and closes the store.
// Safe to call more than once.
func (s *Service) Shutdown(ctx context.Context) error {
	var errs []error
	s.closeOnce.Do(func() {
		s.logger.Info("shutting down workbench service")
		s.markReady(false)
		s.health.Shutdown()
		close(s.closing)

		errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))
		s.shutdownGRPCServer(ctx)
		s.broadcaster.Close()
		errs = appendCloseError(errs, "store close", s.store.Close())
	})
	return errors.Join(errs...)
}

// handleHealth returns 200 OK if the server is alive.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the servers are listening.
func (s *Service) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
