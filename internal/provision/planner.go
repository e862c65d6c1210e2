package provision

import (
	"context"
	"sort"

	"github.com/rs/zerolog"

	"github.com/podup/podup/internal/fsops"
)

// Planner decides which provisioning steps still need to run and executes
// them in rank order, fail-fast. There is no rollback: a failed run leaves
// the pod partially provisioned and a re-run picks up where it left off.
type Planner struct {
	fs     fsops.FS
	runner Runner
	dir    string
	log    zerolog.Logger
}

// New creates a Planner executing step commands in dir.
func New(fs fsops.FS, runner Runner, dir string, log zerolog.Logger) *Planner {
	return &Planner{fs: fs, runner: runner, dir: dir, log: log}
}

// Plan returns the steps whose predicates do not yet hold, sorted by
// ascending rank. It never mutates anything.
func (p *Planner) Plan(steps []Step) ([]Step, error) {
	pending := make([]Step, 0, len(steps))
	for _, step := range steps {
		satisfied, err := step.Check(p.fs)
		if err != nil {
			return nil, &StepError{Step: step.Name, Command: "check", Err: err}
		}
		if !satisfied {
			pending = append(pending, step)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].Rank < pending[j].Rank
	})
	return pending, nil
}

// Run plans and executes the pending steps. It returns the names of the
// steps that ran to completion; on failure, the returned names cover only
// the steps that finished before the failing one.
func (p *Planner) Run(ctx context.Context, steps []Step) ([]string, error) {
	pending, err := p.Plan(steps)
	if err != nil {
		return nil, err
	}

	var executed []string
	for _, step := range pending {
		// An earlier step's action may have satisfied this one in passing;
		// re-check right before acting so its commands don't run against a
		// now-existing artifact.
		satisfied, err := step.Check(p.fs)
		if err != nil {
			return executed, &StepError{Step: step.Name, Command: "check", Err: err}
		}
		if satisfied {
			p.log.Info().Str("step", step.Name).Msg("step satisfied by an earlier action, skipping")
			continue
		}
		p.log.Info().Str("step", step.Name).Int("rank", step.Rank).Msg("running provisioning step")
		for _, argv := range step.Commands {
			if err := p.runner.Run(ctx, p.dir, argv); err != nil {
				p.log.Error().Str("step", step.Name).Str("command", formatCommand(argv)).Err(err).Msg("provisioning step failed")
				return executed, &StepError{Step: step.Name, Command: formatCommand(argv), Err: err}
			}
		}
		executed = append(executed, step.Name)
		p.log.Info().Str("step", step.Name).Msg("provisioning step complete")
	}
	return executed, nil
}
