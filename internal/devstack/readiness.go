// ABOUTME: Readiness probes used to hold back dependent processes
// ABOUTME: The gRPC probe calls the standard health service of the workbench

package devstack

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ReadinessProbe reports whether a process is ready to serve.
type ReadinessProbe interface {
	Ready(ctx context.Context) error
}

// ProbeFunc adapts a function to ReadinessProbe.
type ProbeFunc func(ctx context.Context) error

// Ready calls f.
func (f ProbeFunc) Ready(ctx context.Context) error { return f(ctx) }

// GRPCHealthProbe checks grpc.health.v1.Health on Addr.
type GRPCHealthProbe struct {
	Addr    string
	Service string
}

// Ready returns nil when the service reports SERVING.
func (p GRPCHealthProbe) Ready(ctx context.Context) error {
	conn, err := grpc.NewClient(p.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("creating health client: %w", err)
	}
	defer conn.Close()

	res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: p.Service})
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if res.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("health status %s", res.GetStatus())
	}
	return nil
}

// WaitReady polls probe every interval until it succeeds or ctx is done.
// The returned error carries the last probe failure.
func WaitReady(ctx context.Context, probe ReadinessProbe, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastErr error
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, interval+time.Second)
		lastErr = probe.Ready(attemptCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("not ready: %w (last error: %v)", context.Cause(ctx), lastErr)
		case <-ticker.C:
		}
	}
}
