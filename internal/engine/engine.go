// Package engine orchestrates the pod boot flow: the fast-restart gate,
// provisioning, shared-directory linking, and supervision, in that order.
// Provisioning and linking failures abort before any service launches, so
// the pod is never left half-running.
package engine

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/podup/podup/internal/clock"
	"github.com/podup/podup/internal/config"
	"github.com/podup/podup/internal/fsops"
	"github.com/podup/podup/internal/linker"
	"github.com/podup/podup/internal/provision"
	"github.com/podup/podup/internal/supervise"
)

// Engine coordinates the planner, linker, and supervisor over one shared
// configuration. It is the main API surface called by the CLI.
type Engine struct {
	cfg    *config.Config
	fs     fsops.FS
	runner provision.Runner
	clock  clock.Clock
	log    zerolog.Logger
}

// New creates an Engine with the given dependencies.
func New(cfg *config.Config, fs fsops.FS, runner provision.Runner, clk clock.Clock, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:    cfg,
		fs:     fs,
		runner: runner,
		clock:  clk,
		log:    log,
	}
}

// UpResult reports what the full boot flow did before supervision started.
type UpResult struct {
	// FastRestart is true when the gate skipped provisioning and linking.
	FastRestart bool

	// Provisioned lists the provisioning steps that executed.
	Provisioned []string

	// Linked lists the source directories that were relinked.
	Linked []string
}

// Up runs the full flow: when the fast-restart gate passes, it goes
// straight to supervision; otherwise it provisions and links first. It
// blocks until every launched service has exited.
func (e *Engine) Up(ctx context.Context) (*UpResult, error) {
	result := &UpResult{}

	fast, err := e.FastRestart()
	if err != nil {
		return result, err
	}
	result.FastRestart = fast

	if fast {
		e.log.Info().Msg("all application artifacts present, fast restart")
	} else {
		executed, err := e.Provision(ctx)
		result.Provisioned = executed
		if err != nil {
			return result, err
		}
		linked, err := e.Link()
		result.Linked = linked
		if err != nil {
			return result, err
		}
	}

	return result, e.Supervise(ctx)
}

// Provision runs the planner over the configured steps.
func (e *Engine) Provision(ctx context.Context) ([]string, error) {
	p := provision.New(e.fs, e.runner, e.cfg.Root, e.log)
	return p.Run(ctx, provision.FromConfig(e.cfg))
}

// PendingSteps returns the names of the provisioning steps that still need
// to run, in execution order. It never mutates anything.
func (e *Engine) PendingSteps() ([]string, error) {
	p := provision.New(e.fs, e.runner, e.cfg.Root, e.log)
	pending, err := p.Plan(provision.FromConfig(e.cfg))
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(pending))
	for _, step := range pending {
		names = append(names, step.Name)
	}
	return names, nil
}

// Link reconciles every configured mount into the shared tree.
func (e *Engine) Link() ([]string, error) {
	l := linker.New(e.fs, e.log)
	return l.Reconcile(e.mounts())
}

// Supervise launches the configured services and blocks until they have
// all exited or ctx is canceled and the set has drained.
func (e *Engine) Supervise(ctx context.Context) error {
	specs := make([]supervise.ServiceSpec, 0, len(e.cfg.Services))
	for _, svc := range e.cfg.Services {
		dir := e.cfg.Root
		if svc.Dir != "" {
			dir = e.cfg.AbsPath(svc.Dir)
		}
		specs = append(specs, supervise.ServiceSpec{
			Name:    svc.Name,
			Command: svc.Command,
			Args:    svc.Args,
			Dir:     dir,
			Env:     svc.Env,
		})
	}

	var warmup *supervise.Warmup
	if w := e.cfg.Warmup; w != nil {
		argv := append([]string{w.Command}, w.Args...)
		warmup = &supervise.Warmup{
			Name:  w.Command,
			Delay: w.Delay,
			Run: func() error {
				// Best effort: the warmup gets its own context so an
				// in-flight prefetch is not cut off mid-download.
				return e.runner.Run(context.Background(), e.cfg.Root, argv)
			},
		}
	}

	s := supervise.New(e.clock, e.log, supervise.Options{Grace: e.cfg.ShutdownGrace})
	return s.Run(ctx, specs, warmup)
}

func (e *Engine) mounts() []linker.Mount {
	mounts := make([]linker.Mount, 0, len(e.cfg.Mounts))
	for _, m := range e.cfg.Mounts {
		mounts = append(mounts, linker.Mount{
			Source: e.cfg.AbsPath(m.Source),
			Dest:   e.cfg.AbsPath(m.Dest),
		})
	}
	return mounts
}
