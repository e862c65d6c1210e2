// Package config manages podup configuration and the pod filesystem layout.
//
// All configuration lives in one Config value constructed at startup and
// passed into the planner, linker, and supervisor. Nothing in podup reads
// ambient environment state after the Config is built; the only environment
// hook is PODUP_ROOT, which overrides the data root, and the optional
// podup.toml file, which overrides the built-in layout.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnvRoot overrides the pod data root directory.
const EnvRoot = "PODUP_ROOT"

// DefaultRoot is the data root used on the standard GPU pod image.
const DefaultRoot = "/workspace"

// defaultSharedDir is the shared model tree, relative to the data root.
const defaultSharedDir = "shared/models"

// SharedCategories are the model category directories every managed
// application's private model directories are relinked into. The names are
// fixed: the wrapped applications look them up by exact name.
var SharedCategories = []string{
	"checkpoints",
	"vae",
	"loras",
	"embeddings",
	"controlnet",
	"upscale_models",
	"hypernetworks",
}

// App identifies one managed application by its top-level install
// directory. The Fast-Restart Gate checks these directories: when every one
// exists, provisioning and linking are skipped entirely.
type App struct {
	// Name is the application identifier used in output and logs.
	Name string

	// Dir is the application's install directory, relative to Root.
	Dir string
}

// Step is one declarative provisioning step. Its predicate is a plain
// existence check on Creates; its action is a sequence of external
// commands run in order.
type Step struct {
	// Name identifies the step in output, logs, and errors.
	Name string

	// Rank orders steps; lower ranks run first.
	Rank int

	// Creates is the path (relative to Root) whose existence marks the
	// step as already satisfied.
	Creates string

	// Commands is the ordered list of argv vectors to execute.
	Commands [][]string
}

// Mount describes one private directory to consolidate into the shared
// tree: Source is moved into Dest and replaced with a symlink.
type Mount struct {
	// Source is the application's private directory, relative to Root.
	Source string

	// Dest is the shared backing directory, relative to Root.
	Dest string
}

// Service describes one long-running managed process. Services are
// launched once and never restarted; ports and other knobs are passed
// through as arguments and environment overrides, never parsed by podup.
type Service struct {
	// Name identifies the service in output, logs, and errors.
	Name string

	// Command is the executable to launch.
	Command string

	// Args are the command arguments.
	Args []string

	// Dir is the working directory, relative to Root. Empty means Root.
	Dir string

	// Env holds environment overrides merged over the parent environment.
	Env map[string]string
}

// Warmup is the single deferred best-effort action run a fixed delay after
// the services launch. Its failure never affects supervision.
type Warmup struct {
	Command string
	Args    []string
	Delay   time.Duration
}

// Config is the complete podup configuration.
type Config struct {
	// Root is the pod data root. All relative paths below resolve
	// against it.
	Root string

	// SharedDir is the shared model tree, relative to Root.
	SharedDir string

	// Apps are the managed applications, checked by the fast-restart gate.
	Apps []App

	// Steps are the provisioning steps in declared order; Rank decides
	// execution order.
	Steps []Step

	// Mounts are the shared-directory reconciliations, applied after
	// provisioning.
	Mounts []Mount

	// Services are the processes the supervisor launches.
	Services []Service

	// Warmup is the optional deferred action; nil disables it.
	Warmup *Warmup

	// ShutdownGrace bounds how long the supervisor waits for a signaled
	// child before escalating to a forced kill.
	ShutdownGrace time.Duration
}

// Default returns the configuration for the standard pod layout: the
// Stable Diffusion web UI, ComfyUI, and the Ollama runtime, with both UIs'
// model directories backed by one shared tree.
func Default() *Config {
	root := os.Getenv(EnvRoot)
	if root == "" {
		root = DefaultRoot
	}

	return &Config{
		Root:      root,
		SharedDir: defaultSharedDir,
		Apps: []App{
			{Name: "webui", Dir: "stable-diffusion-webui"},
			{Name: "comfyui", Dir: "ComfyUI"},
		},
		Steps: []Step{
			{
				Name:    "install-webui",
				Rank:    10,
				Creates: "stable-diffusion-webui",
				Commands: [][]string{
					{"git", "clone", "https://github.com/AUTOMATIC1111/stable-diffusion-webui.git", "stable-diffusion-webui"},
					{"python3", "-m", "venv", "stable-diffusion-webui/venv"},
				},
			},
			{
				Name:    "install-comfyui",
				Rank:    20,
				Creates: "ComfyUI",
				Commands: [][]string{
					{"git", "clone", "https://github.com/comfyanonymous/ComfyUI.git", "ComfyUI"},
					{"python3", "-m", "pip", "install", "-r", "ComfyUI/requirements.txt"},
				},
			},
			{
				Name:    "install-comfyui-manager",
				Rank:    30,
				Creates: "ComfyUI/custom_nodes/ComfyUI-Manager",
				Commands: [][]string{
					{"git", "clone", "https://github.com/ltdrdata/ComfyUI-Manager.git", "ComfyUI/custom_nodes/ComfyUI-Manager"},
				},
			},
		},
		Mounts: defaultMounts(),
		Services: []Service{
			{
				Name:    "webui",
				Command: "python3",
				Args:    []string{"launch.py", "--listen", "--port", "3000"},
				Dir:     "stable-diffusion-webui",
			},
			{
				Name:    "comfyui",
				Command: "python3",
				Args:    []string{"main.py", "--listen", "0.0.0.0", "--port", "8188"},
				Dir:     "ComfyUI",
			},
			{
				Name:    "ollama",
				Command: "ollama",
				Args:    []string{"serve"},
				Env:     map[string]string{"OLLAMA_HOST": "0.0.0.0:11434"},
			},
		},
		Warmup: &Warmup{
			Command: "ollama",
			Args:    []string{"pull", "llama3"},
			Delay:   15 * time.Second,
		},
		ShutdownGrace: 30 * time.Second,
	}
}

// webuiModelDirs maps each shared category to the web UI's private
// directory for it. The web UI predates the shared layout, so its names
// diverge from the category names.
var webuiModelDirs = map[string]string{
	"checkpoints":    "models/Stable-diffusion",
	"vae":            "models/VAE",
	"loras":          "models/Lora",
	"embeddings":     "embeddings",
	"controlnet":     "models/ControlNet",
	"upscale_models": "models/ESRGAN",
	"hypernetworks":  "models/hypernetworks",
}

// defaultMounts folds both applications' model directories into the shared
// tree, one mount per category. ComfyUI's directory names match the
// category names directly.
func defaultMounts() []Mount {
	mounts := make([]Mount, 0, 2*len(SharedCategories))
	for _, cat := range SharedCategories {
		mounts = append(mounts, Mount{
			Source: filepath.Join("stable-diffusion-webui", webuiModelDirs[cat]),
			Dest:   filepath.Join(defaultSharedDir, cat),
		})
	}
	for _, cat := range SharedCategories {
		mounts = append(mounts, Mount{
			Source: filepath.Join("ComfyUI", "models", cat),
			Dest:   filepath.Join(defaultSharedDir, cat),
		})
	}
	return mounts
}

// AbsPath resolves a configured path against the data root. Absolute paths
// pass through unchanged.
func (c *Config) AbsPath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Root, p)
}

// SharedPath returns the absolute shared tree directory.
func (c *Config) SharedPath() string {
	return c.AbsPath(c.SharedDir)
}

// Validate checks that the configuration is internally coherent.
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("config: root must not be empty")
	}
	if len(c.Apps) == 0 {
		return fmt.Errorf("config: at least one managed application is required")
	}

	seen := make(map[string]bool, len(c.Services))
	for _, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("config: service with empty name")
		}
		if svc.Command == "" {
			return fmt.Errorf("config: service %s has no command", svc.Name)
		}
		if seen[svc.Name] {
			return fmt.Errorf("config: duplicate service name %s", svc.Name)
		}
		seen[svc.Name] = true
	}

	steps := make(map[string]bool, len(c.Steps))
	for _, step := range c.Steps {
		if step.Name == "" {
			return fmt.Errorf("config: step with empty name")
		}
		if steps[step.Name] {
			return fmt.Errorf("config: duplicate step name %s", step.Name)
		}
		steps[step.Name] = true
		if step.Creates == "" {
			return fmt.Errorf("config: step %s has no creates path", step.Name)
		}
		if len(step.Commands) == 0 {
			return fmt.Errorf("config: step %s has no commands", step.Name)
		}
		for _, cmd := range step.Commands {
			if len(cmd) == 0 {
				return fmt.Errorf("config: step %s contains an empty command", step.Name)
			}
		}
	}

	for _, m := range c.Mounts {
		if m.Source == "" || m.Dest == "" {
			return fmt.Errorf("config: mount with empty source or dest")
		}
	}

	if c.ShutdownGrace <= 0 {
		return fmt.Errorf("config: shutdown grace must be positive")
	}
	return nil
}
