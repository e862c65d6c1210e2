// Package supervise launches the managed services and tracks them until
// they exit. Services are independent: one exiting never terminates its
// siblings. Cancellation of the run context is the single shutdown path;
// it forwards SIGTERM to every still-running child and waits for a full
// drain, escalating to SIGKILL after the grace period.
package supervise

import (
	"errors"
	"fmt"
	"time"
)

// ServiceSpec describes one managed service. Specs are built once from
// configuration and never mutated; the supervisor owns them for the
// lifetime of the run.
type ServiceSpec struct {
	// Name identifies the service in output, logs, and errors.
	Name string

	// Command is the executable to launch.
	Command string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory. Empty means the supervisor's own.
	Dir string

	// Env holds environment overrides merged over the parent environment.
	Env map[string]string
}

// Warmup is the single deferred best-effort action: Run is invoked once
// Delay has elapsed after launch. Its failure is logged and otherwise
// ignored, and shutdown cancels it if the delay has not fired yet.
type Warmup struct {
	Name  string
	Delay time.Duration
	Run   func() error
}

// LaunchError reports a service that failed to start. Other services keep
// running; the run only fails when nothing could be launched.
type LaunchError struct {
	Service string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Service, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ShutdownTimeoutError reports children that outlived the grace period
// after signal forwarding and had to be killed.
type ShutdownTimeoutError struct {
	Services []string
}

func (e *ShutdownTimeoutError) Error() string {
	return fmt.Sprintf("services did not exit within grace period: %v", e.Services)
}

// ErrNoServices indicates no service in the launch set could be started.
var ErrNoServices = errors.New("no services could be launched")
