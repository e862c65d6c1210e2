package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up under the data root when no --config flag
// is given.
const DefaultFileName = "podup.toml"

type fileConfig struct {
	Root          string        `toml:"root"`
	SharedDir     string        `toml:"shared_dir"`
	ShutdownGrace string        `toml:"shutdown_grace"`
	Apps          []fileApp     `toml:"app"`
	Steps         []fileStep    `toml:"step"`
	Mounts        []fileMount   `toml:"mount"`
	Services      []fileService `toml:"service"`
	Warmup        *fileWarmup   `toml:"warmup"`
}

type fileApp struct {
	Name string `toml:"name"`
	Dir  string `toml:"dir"`
}

type fileStep struct {
	Name     string     `toml:"name"`
	Rank     int        `toml:"rank"`
	Creates  string     `toml:"creates"`
	Commands [][]string `toml:"commands"`
}

type fileMount struct {
	Source string `toml:"source"`
	Dest   string `toml:"dest"`
}

type fileService struct {
	Name    string            `toml:"name"`
	Command string            `toml:"command"`
	Args    []string          `toml:"args"`
	Dir     string            `toml:"dir"`
	Env     map[string]string `toml:"env"`
}

type fileWarmup struct {
	Command string   `toml:"command"`
	Args    []string `toml:"args"`
	Delay   string   `toml:"delay"`
}

// Load builds the effective configuration: the built-in defaults overridden
// by the TOML file at path. An empty path falls back to podup.toml under
// the data root, and a missing fallback file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = cfg.AbsPath(DefaultFileName)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return cfg, nil
		}
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, fmt.Errorf("load pod config: %w", err)
	}

	if meta.IsDefined("root") {
		root := strings.TrimSpace(raw.Root)
		if root != "" {
			cfg.Root = root
		}
	}
	// PODUP_ROOT beats the file: the operator's environment is the final word.
	if env := os.Getenv(EnvRoot); env != "" {
		cfg.Root = env
	}

	if meta.IsDefined("shared_dir") && raw.SharedDir != "" {
		cfg.SharedDir = raw.SharedDir
	}

	if meta.IsDefined("shutdown_grace") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ShutdownGrace))
		if err != nil {
			return nil, fmt.Errorf("parse shutdown_grace: %w", err)
		}
		cfg.ShutdownGrace = d
	}

	if meta.IsDefined("app") {
		cfg.Apps = nil
		for _, a := range raw.Apps {
			cfg.Apps = append(cfg.Apps, App{Name: a.Name, Dir: a.Dir})
		}
	}

	if meta.IsDefined("step") {
		cfg.Steps = nil
		for _, s := range raw.Steps {
			cfg.Steps = append(cfg.Steps, Step{
				Name:     s.Name,
				Rank:     s.Rank,
				Creates:  s.Creates,
				Commands: s.Commands,
			})
		}
	}

	if meta.IsDefined("mount") {
		cfg.Mounts = nil
		for _, m := range raw.Mounts {
			cfg.Mounts = append(cfg.Mounts, Mount{Source: m.Source, Dest: m.Dest})
		}
	}

	if meta.IsDefined("service") {
		cfg.Services = nil
		for _, s := range raw.Services {
			cfg.Services = append(cfg.Services, Service{
				Name:    s.Name,
				Command: s.Command,
				Args:    s.Args,
				Dir:     s.Dir,
				Env:     s.Env,
			})
		}
	}

	if meta.IsDefined("warmup") {
		w := &Warmup{Command: raw.Warmup.Command, Args: raw.Warmup.Args}
		if raw.Warmup.Delay != "" {
			d, err := time.ParseDuration(strings.TrimSpace(raw.Warmup.Delay))
			if err != nil {
				return nil, fmt.Errorf("parse warmup delay: %w", err)
			}
			w.Delay = d
		}
		cfg.Warmup = w
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
