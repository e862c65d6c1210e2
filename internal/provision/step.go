// Package provision computes and executes the install steps a pod still
// needs. Every step carries a pure filesystem predicate; a step whose
// predicate already holds is skipped, so re-running the planner after a
// partial failure converges on a fully provisioned pod.
package provision

import (
	"fmt"
	"strings"

	"github.com/podup/podup/internal/config"
	"github.com/podup/podup/internal/fsops"
)

// Step is one provisioning unit: a name, an ordering rank, a pure
// filesystem predicate, and the commands to run when the predicate is
// false. Predicates must never have side effects.
type Step struct {
	// Name identifies the step in output and errors.
	Name string

	// Rank orders execution; lower ranks run first. Steps with equal
	// ranks keep their declared order.
	Rank int

	// Check reports whether the step is already satisfied.
	Check func(fs fsops.FS) (bool, error)

	// Commands is the ordered list of argv vectors executed when Check
	// is false.
	Commands [][]string
}

// StepError reports a failed provisioning step with enough context for the
// operator to re-run after fixing the cause.
type StepError struct {
	// Step is the failing step's name.
	Step string

	// Command is the command that failed, formatted for display.
	Command string

	// Err is the underlying failure, typically an exit status.
	Err error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("provisioning step %s failed: %s: %v", e.Step, e.Command, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// FromConfig converts declarative config steps into executable ones. Each
// predicate is an existence check on the step's creates path resolved
// against the data root.
func FromConfig(cfg *config.Config) []Step {
	steps := make([]Step, 0, len(cfg.Steps))
	for _, cs := range cfg.Steps {
		marker := cfg.AbsPath(cs.Creates)
		steps = append(steps, Step{
			Name: cs.Name,
			Rank: cs.Rank,
			Check: func(fs fsops.FS) (bool, error) {
				return fs.Exists(marker)
			},
			Commands: cs.Commands,
		})
	}
	return steps
}

func formatCommand(argv []string) string {
	return strings.Join(argv, " ")
}
