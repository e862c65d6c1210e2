package provision

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Runner executes one external command to completion. The planner drives
// all step actions through this interface so tests can substitute a fake.
type Runner interface {
	// Run executes argv in dir and returns the command's failure, if any.
	Run(ctx context.Context, dir string, argv []string) error
}

// ExecRunner runs commands through os/exec, inheriting the parent
// environment and streaming output to the configured writers.
type ExecRunner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecRunner creates an ExecRunner writing to the process's own
// stdout and stderr.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes argv in dir.
func (r *ExecRunner) Run(ctx context.Context, dir string, argv []string) error {
	if len(argv) == 0 {
		return fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}
