package cli

import (
	"encoding/json"
	"os"

	"github.com/podup/podup/internal/clock"
	"github.com/podup/podup/internal/config"
	"github.com/podup/podup/internal/engine"
	"github.com/podup/podup/internal/fsops"
	"github.com/podup/podup/internal/logging"
	"github.com/podup/podup/internal/provision"
)

// newEngine creates an engine with real implementations of all dependencies.
func newEngine() (*engine.Engine, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	fs := fsops.NewRealFS()
	runner := provision.NewExecRunner()
	clk := &clock.RealClock{}
	log := logging.New(os.Stderr)

	return engine.New(cfg, fs, runner, clk, log), nil
}

// outputJSON outputs a value as JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
