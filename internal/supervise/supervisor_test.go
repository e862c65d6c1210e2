package supervise

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/podup/podup/internal/clock"
)

func newSupervisor(grace time.Duration, out io.Writer) *Supervisor {
	return New(&clock.RealClock{}, zerolog.Nop(), Options{
		Grace:  grace,
		Stdout: out,
		Stderr: io.Discard,
	})
}

func shService(name, script string) ServiceSpec {
	return ServiceSpec{Name: name, Command: "sh", Args: []string{"-c", script}}
}

func TestRunWaitsForAllServices(t *testing.T) {
	s := newSupervisor(time.Second, io.Discard)

	start := time.Now()
	err := s.Run(context.Background(), []ServiceSpec{
		shService("quick", "exit 0"),
		shService("slow", "sleep 0.3"),
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// One service exiting must not terminate the other: the run lasts as
	// long as the slowest child.
	if elapsed := time.Since(start); elapsed < 250*time.Millisecond {
		t.Errorf("Run returned after %v, before the slow service finished", elapsed)
	}
}

func TestRunServiceCrashDoesNotEscalate(t *testing.T) {
	s := newSupervisor(time.Second, io.Discard)

	err := s.Run(context.Background(), []ServiceSpec{
		shService("crasher", "exit 7"),
		shService("survivor", "sleep 0.2"),
	}, nil)
	// A child's own failure is not a supervision failure.
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRunForwardsTerminationSignal(t *testing.T) {
	s := newSupervisor(5*time.Second, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	// Each child exits promptly on TERM; none exits on its own.
	script := `trap 'exit 0' TERM; while true; do sleep 0.05; done`
	specs := []ServiceSpec{
		shService("a", script),
		shService("b", script),
		shService("c", script),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, specs, nil)
	}()

	time.Sleep(150 * time.Millisecond)
	start := time.Now()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after shutdown signal")
	}

	// Drain time tracks the slowest child, not the sum: three children
	// each shutting down in well under a second must drain concurrently.
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("drain took %v, children were not shut down concurrently", elapsed)
	}
}

func TestRunEscalatesAfterGracePeriod(t *testing.T) {
	s := newSupervisor(200*time.Millisecond, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	specs := []ServiceSpec{
		// Short inner sleeps so no orphaned grandchild holds the output
		// pipe open after the shell is killed.
		shService("stubborn", `trap '' TERM; while true; do sleep 0.05; done`),
		shService("polite", `trap 'exit 0' TERM; while true; do sleep 0.05; done`),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, specs, nil)
	}()

	time.Sleep(150 * time.Millisecond)
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return; escalation failed")
	}

	var timeout *ShutdownTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *ShutdownTimeoutError", err)
	}
	if len(timeout.Services) != 1 || timeout.Services[0] != "stubborn" {
		t.Errorf("hung services = %v, want [stubborn]", timeout.Services)
	}
}

func TestRunEscalationUnblockedByGrandchildHoldingPipes(t *testing.T) {
	// The backgrounded sleep inherits the output pipes and outlives the
	// killed shell; the join must still come back promptly instead of
	// waiting for the orphan to release them.
	s := newSupervisor(200*time.Millisecond, io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	specs := []ServiceSpec{
		shService("stubborn", `trap '' TERM; sleep 30 & while true; do sleep 0.05; done`),
	}

	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, specs, nil)
	}()

	time.Sleep(150 * time.Millisecond)
	start := time.Now()
	cancel()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return; orphaned grandchild blocked the join")
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("drain took %v, want grace plus bounded pipe drain", elapsed)
	}

	var timeout *ShutdownTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("error = %v, want *ShutdownTimeoutError", err)
	}
	if len(timeout.Services) != 1 || timeout.Services[0] != "stubborn" {
		t.Errorf("hung services = %v, want [stubborn]", timeout.Services)
	}
}

func TestRunLaunchFailureIsIsolated(t *testing.T) {
	s := newSupervisor(time.Second, io.Discard)

	err := s.Run(context.Background(), []ServiceSpec{
		{Name: "ghost", Command: "/nonexistent/binary"},
		shService("real", "exit 0"),
	}, nil)
	if err != nil {
		t.Fatalf("Run failed despite one launchable service: %v", err)
	}
}

func TestRunFailsWhenNothingLaunches(t *testing.T) {
	s := newSupervisor(time.Second, io.Discard)

	err := s.Run(context.Background(), []ServiceSpec{
		{Name: "ghost", Command: "/nonexistent/binary"},
	}, nil)
	if err == nil {
		t.Fatal("expected error when no service launches")
	}
	if !errors.Is(err, ErrNoServices) {
		t.Errorf("error = %v, want ErrNoServices", err)
	}
	var le *LaunchError
	if !errors.As(err, &le) || le.Service != "ghost" {
		t.Errorf("error does not carry the launch failure: %v", err)
	}
}

func TestRunEmptySpecSet(t *testing.T) {
	s := newSupervisor(time.Second, io.Discard)
	if err := s.Run(context.Background(), nil, nil); err != nil {
		t.Errorf("Run with no specs failed: %v", err)
	}
}

func TestRunPrefixesChildOutput(t *testing.T) {
	var buf bytes.Buffer
	s := newSupervisor(time.Second, &buf)

	err := s.Run(context.Background(), []ServiceSpec{
		shService("echoer", "echo hello from child"),
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "[echoer] hello from child") {
		t.Errorf("output = %q, want prefixed line", buf.String())
	}
}

func TestRunAppliesEnvOverrides(t *testing.T) {
	var buf bytes.Buffer
	s := newSupervisor(time.Second, &buf)

	err := s.Run(context.Background(), []ServiceSpec{
		{
			Name:    "env",
			Command: "sh",
			Args:    []string{"-c", `echo "port=$SERVICE_PORT"`},
			Env:     map[string]string{"SERVICE_PORT": "8188"},
		},
	}, nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(buf.String(), "port=8188") {
		t.Errorf("output = %q, env override not applied", buf.String())
	}
}

func TestWarmupRunsAfterDelay(t *testing.T) {
	// FakeClock fires After immediately, so the warmup runs without a
	// real wait.
	s := New(clock.NewFakeClock(time.Now()), zerolog.Nop(), Options{
		Grace:  time.Second,
		Stdout: io.Discard,
		Stderr: io.Discard,
	})

	var ran atomic.Bool
	fired := make(chan struct{})
	warmup := &Warmup{
		Name:  "prefetch",
		Delay: time.Hour,
		Run: func() error {
			ran.Store(true)
			close(fired)
			return nil
		},
	}

	err := s.Run(context.Background(), []ServiceSpec{
		shService("svc", "sleep 0.3"),
	}, warmup)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("warmup never ran")
	}
	if !ran.Load() {
		t.Error("warmup did not run")
	}
}

func TestWarmupFailureDoesNotAffectRun(t *testing.T) {
	s := New(clock.NewFakeClock(time.Now()), zerolog.Nop(), Options{
		Grace:  time.Second,
		Stdout: io.Discard,
		Stderr: io.Discard,
	})

	warmup := &Warmup{
		Name:  "prefetch",
		Delay: time.Minute,
		Run:   func() error { return errors.New("registry unreachable") },
	}

	err := s.Run(context.Background(), []ServiceSpec{
		shService("svc", "sleep 0.2"),
	}, warmup)
	if err != nil {
		t.Errorf("warmup failure leaked into Run: %v", err)
	}
}

func TestWarmupCanceledByShutdown(t *testing.T) {
	// Real clock and a long delay: shutdown must win the race and the
	// warmup must never run.
	s := newSupervisor(time.Second, io.Discard)

	var ran atomic.Bool
	warmup := &Warmup{
		Name:  "prefetch",
		Delay: time.Hour,
		Run: func() error {
			ran.Store(true)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, []ServiceSpec{
			shService("svc", `trap 'exit 0' TERM; while true; do sleep 0.05; done`),
		}, warmup)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return")
	}
	if ran.Load() {
		t.Error("warmup ran despite pending delay at shutdown")
	}
}
