// ABOUTME: Supervisor for the local development stack of child processes
// ABOUTME: Starts processes in order, gates on readiness, and stops them all together

package devstack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/2389/coven-workbench/internal/config"
)

const defaultProbeInterval = 200 * time.Millisecond

// ProcessExitError reports a required process that exited on its own.
type ProcessExitError struct {
	Name string
	Err  error // nil for a clean exit
}

func (e *ProcessExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("process %s exited", e.Name)
	}
	return fmt.Sprintf("process %s exited: %v", e.Name, e.Err)
}

func (e *ProcessExitError) Unwrap() error { return e.Err }

// Options configures a Supervisor.
type Options struct {
	Processes []config.ProcessConfig

	// Probe gates processes started after a WaitReady process.
	Probe         ReadinessProbe
	ProbeInterval time.Duration
	ReadyTimeout  time.Duration

	// GracePeriod is how long a process has to exit after SIGINT before it
	// is killed.
	GracePeriod time.Duration

	Output *Output
	Logger *slog.Logger
}

// Supervisor runs the dev stack.
type Supervisor struct {
	opts   Options
	width  int
	logger *slog.Logger
}

// New creates a Supervisor.
func New(opts Options) *Supervisor {
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = defaultProbeInterval
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = config.DefaultReadyTimeout
	}
	if opts.GracePeriod <= 0 {
		opts.GracePeriod = config.DefaultGracePeriod
	}
	if opts.Output == nil {
		opts.Output = NewOutput(os.Stdout)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	width := 0
	for _, p := range opts.Processes {
		width = max(width, len(p.Name))
	}
	return &Supervisor{
		opts:   opts,
		width:  width,
		logger: logger.With("component", "devstack"),
	}
}

type process struct {
	cfg    config.ProcessConfig
	cmd    *exec.Cmd
	stdout *PrefixWriter
	stderr *PrefixWriter
}

// Run starts every process and blocks until the stack stops.
//
// The stack stops when ctx is cancelled, a required process exits, a
// process fails to start, a readiness wait fails, or every process has
// exited. All running processes then get SIGINT and, after the grace
// period, SIGKILL. Run returns nil when ctx was cancelled or everything
// exited, and the stopping error otherwise.
func (s *Supervisor) Run(ctx context.Context) error {
	if len(s.opts.Processes) == 0 {
		return errors.New("no processes configured")
	}
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var (
		wg sync.WaitGroup
		mu sync.Mutex
		// Processes not yet exited, including those not yet started
		running = len(s.opts.Processes)
	)

	for i, pc := range s.opts.Processes {
		if ctx.Err() != nil {
			break
		}
		if len(pc.Command) == 0 {
			cancel(fmt.Errorf("process %s has no command", pc.Name))
			break
		}

		p, err := s.start(ctx, i, pc)
		if err != nil {
			cancel(err)
			break
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.cmd.Wait()
			p.stdout.Flush()
			p.stderr.Flush()
			s.exited(ctx, p, err, cancel)

			mu.Lock()
			running--
			last := running == 0
			mu.Unlock()
			if last {
				cancel(nil)
			}
		}()

		if pc.WaitReady && s.opts.Probe != nil {
			if err := s.waitReady(ctx, pc.Name); err != nil {
				cancel(err)
				break
			}
		}
	}

	<-ctx.Done()
	s.logger.Info("stopping dev stack")
	wg.Wait()

	cause := context.Cause(ctx)
	if errors.Is(cause, context.Canceled) {
		return nil
	}
	return cause
}

func (s *Supervisor) start(ctx context.Context, index int, pc config.ProcessConfig) (*process, error) {
	c := ColorFor(pc.Color, index)
	p := &process{
		cfg:    pc,
		stdout: s.opts.Output.Prefixed(pc.Name, s.width, c),
		stderr: s.opts.Output.Prefixed(pc.Name, s.width, c),
	}

	cmd := exec.CommandContext(ctx, pc.Command[0], pc.Command[1:]...)
	cmd.Dir = pc.Dir
	cmd.Stdout = p.stdout
	cmd.Stderr = p.stderr
	if len(pc.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range pc.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	configureStop(cmd, s.opts.GracePeriod)
	p.cmd = cmd

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", pc.Name, err)
	}
	s.logger.Info("process started", "name", pc.Name, "pid", cmd.Process.Pid)
	return p, nil
}

func (s *Supervisor) exited(ctx context.Context, p *process, err error, cancel context.CancelCauseFunc) {
	if ctx.Err() != nil {
		s.logger.Debug("process stopped", "name", p.cfg.Name, "error", err)
		return
	}
	if p.cfg.Optional {
		s.logger.Info("optional process exited", "name", p.cfg.Name, "error", err)
		return
	}
	s.logger.Error("required process exited", "name", p.cfg.Name, "error", err)
	cancel(&ProcessExitError{Name: p.cfg.Name, Err: err})
}

func (s *Supervisor) waitReady(ctx context.Context, name string) error {
	s.logger.Info("waiting for readiness", "name", name)
	waitCtx, cancel := context.WithTimeoutCause(ctx, s.opts.ReadyTimeout,
		fmt.Errorf("%s not ready after %s", name, s.opts.ReadyTimeout))
	defer cancel()

	if err := WaitReady(waitCtx, s.opts.Probe, s.opts.ProbeInterval); err != nil {
		if ctx.Err() != nil {
			// Stack already stopping; keep its cause
			return context.Cause(ctx)
		}
		return err
	}
	s.logger.Info("process ready", "name", name)
	return nil
}
