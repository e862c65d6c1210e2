package supervise

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/podup/podup/internal/clock"
)

// outputDrainDelay bounds how long Wait keeps reading a dead service's
// output pipes. Grandchildren inherit the pipes and can hold them open past
// the service's own death; without a bound that would block the join and
// the kill escalation indefinitely.
const outputDrainDelay = time.Second

// child tracks one launched service. done is closed when the process has
// been reaped, which is the only state the shutdown path consults, so a
// child is never signaled after it exited.
type child struct {
	name string
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (c *child) exited() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Supervisor launches a fixed set of services and blocks until all of them
// have exited. There is no restart policy: every service is launched once.
type Supervisor struct {
	clock  clock.Clock
	log    zerolog.Logger
	grace  time.Duration
	stdout io.Writer
	stderr io.Writer
}

// Options configures a Supervisor.
type Options struct {
	// Grace bounds how long shutdown waits for a signaled child before
	// escalating to SIGKILL.
	Grace time.Duration

	// Stdout and Stderr receive the children's prefixed output. Nil
	// defaults to the supervisor process's own streams.
	Stdout io.Writer
	Stderr io.Writer
}

// New creates a Supervisor.
func New(clk clock.Clock, log zerolog.Logger, opts Options) *Supervisor {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Supervisor{
		clock:  clk,
		log:    log,
		grace:  opts.Grace,
		stdout: opts.Stdout,
		stderr: opts.Stderr,
	}
}

// Run launches every spec and waits until all launched processes exit.
// Canceling ctx is the graceful-shutdown request: SIGTERM is forwarded to
// every still-running child and Run returns only after the set has fully
// drained. A warmup of nil disables the deferred action.
//
// A spec that fails to launch is reported and skipped; Run fails outright
// only when nothing could be launched.
func (s *Supervisor) Run(ctx context.Context, specs []ServiceSpec, warmup *Warmup) error {
	var children []*child
	var launchErrs []error

	for _, spec := range specs {
		c, err := s.launch(spec)
		if err != nil {
			le := &LaunchError{Service: spec.Name, Err: err}
			s.log.Error().Str("service", spec.Name).Err(err).Msg("service failed to launch")
			launchErrs = append(launchErrs, le)
			continue
		}
		children = append(children, c)
		s.log.Info().Str("service", c.name).Int("pid", c.cmd.Process.Pid).Msg("service launched")
	}

	if len(children) == 0 {
		if len(specs) == 0 {
			return nil
		}
		return errors.Join(append([]error{ErrNoServices}, launchErrs...)...)
	}

	// The warmup stops mattering once Run returns; give it a context that
	// dies with the run.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if warmup != nil {
		go s.runWarmup(runCtx, warmup)
	}

	allDone := make(chan struct{})
	go func() {
		for _, c := range children {
			<-c.done
		}
		close(allDone)
	}()

	var shutdownErr error
	select {
	case <-allDone:
		// Every service exited on its own; nothing to forward.
	case <-ctx.Done():
		shutdownErr = s.drain(children)
		<-allDone
	}

	for _, c := range children {
		if c.err != nil {
			s.log.Warn().Str("service", c.name).Err(c.err).Msg("service exited with error")
		} else {
			s.log.Info().Str("service", c.name).Msg("service exited")
		}
	}
	return shutdownErr
}

// launch starts one service process with prefixed output streams.
func (s *Supervisor) launch(spec ServiceSpec) (*child, error) {
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.WaitDelay = outputDrainDelay

	env := os.Environ()
	for k, v := range spec.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	outw := newLineWriter(spec.Name, s.stdout)
	errw := newLineWriter(spec.Name, s.stderr)
	cmd.Stdout = outw
	cmd.Stderr = errw

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	c := &child{name: spec.Name, cmd: cmd, done: make(chan struct{})}
	go func() {
		c.err = cmd.Wait()
		_ = outw.Flush()
		_ = errw.Flush()
		close(c.done)
	}()
	return c, nil
}

// drain forwards SIGTERM to every still-running child, then waits for the
// set to empty. Children that outlive the grace period are killed and
// reported. The grace deadline is shared, so total shutdown time tracks
// the slowest child, not the sum.
func (s *Supervisor) drain(children []*child) error {
	for _, c := range children {
		if c.exited() {
			continue
		}
		s.log.Info().Str("service", c.name).Msg("forwarding termination signal")
		if err := c.cmd.Process.Signal(syscall.SIGTERM); err != nil {
			// The process may have exited between the check and the
			// signal; that race is harmless.
			s.log.Debug().Str("service", c.name).Err(err).Msg("signal not delivered")
		}
	}

	// The channel from After delivers once; fan the deadline out as a close
	// so every waiter sees it.
	expired := make(chan struct{})
	go func() {
		<-s.clock.After(s.grace)
		close(expired)
	}()

	var mu sync.Mutex
	var hung []string

	var wg sync.WaitGroup
	for _, c := range children {
		wg.Add(1)
		go func(c *child) {
			defer wg.Done()
			select {
			case <-c.done:
			case <-expired:
				if c.exited() {
					return
				}
				s.log.Error().Str("service", c.name).Msg("grace period expired, killing")
				_ = c.cmd.Process.Kill()
				<-c.done
				mu.Lock()
				hung = append(hung, c.name)
				mu.Unlock()
			}
		}(c)
	}
	wg.Wait()

	if len(hung) > 0 {
		return &ShutdownTimeoutError{Services: hung}
	}
	return nil
}

// runWarmup waits out the configured delay and runs the action once.
// Failures are logged and swallowed; shutdown cancels a pending warmup.
func (s *Supervisor) runWarmup(ctx context.Context, w *Warmup) {
	select {
	case <-ctx.Done():
		s.log.Debug().Str("warmup", w.Name).Msg("warmup canceled before delay elapsed")
		return
	case <-s.clock.After(w.Delay):
	}

	s.log.Info().Str("warmup", w.Name).Msg("running warmup action")
	if err := w.Run(); err != nil {
		s.log.Warn().Str("warmup", w.Name).Err(err).Msg("warmup action failed")
		return
	}
	s.log.Info().Str("warmup", w.Name).Msg("warmup action complete")
}
