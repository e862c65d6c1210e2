package engine

import (
	"fmt"
	"os"
	"path/filepath"
)

// FastRestart is the gate decision: true when every managed application's
// top-level artifact directory already exists, meaning provisioning and
// linking can be skipped. Pure existence checks only, so calling it is
// always safe.
func (e *Engine) FastRestart() (bool, error) {
	for _, app := range e.cfg.Apps {
		exists, err := e.fs.Exists(e.cfg.AbsPath(app.Dir))
		if err != nil {
			return false, fmt.Errorf("gate check for %s: %w", app.Name, err)
		}
		if !exists {
			return false, nil
		}
	}
	return true, nil
}

// AppStatus reports one managed application's artifact presence.
type AppStatus struct {
	Name    string
	Dir     string
	Present bool
}

// MountStatus reports one shared mount's reconciliation state.
type MountStatus struct {
	Source string
	Linked bool
}

// Status is the read-only view assembled for the status command.
type Status struct {
	FastRestart  bool
	SharedDir    string
	Apps         []AppStatus
	PendingSteps []string
	Mounts       []MountStatus
}

// Status inspects the pod without mutating anything.
func (e *Engine) Status() (*Status, error) {
	st := &Status{SharedDir: e.cfg.SharedPath()}

	for _, app := range e.cfg.Apps {
		dir := e.cfg.AbsPath(app.Dir)
		exists, err := e.fs.Exists(dir)
		if err != nil {
			return nil, fmt.Errorf("status check for %s: %w", app.Name, err)
		}
		st.Apps = append(st.Apps, AppStatus{Name: app.Name, Dir: dir, Present: exists})
	}

	fast, err := e.FastRestart()
	if err != nil {
		return nil, err
	}
	st.FastRestart = fast

	pending, err := e.PendingSteps()
	if err != nil {
		return nil, err
	}
	st.PendingSteps = pending

	for _, m := range e.mounts() {
		linked, err := e.isLinked(m.Source, m.Dest)
		if err != nil {
			return nil, err
		}
		st.Mounts = append(st.Mounts, MountStatus{Source: m.Source, Linked: linked})
	}

	return st, nil
}

// isLinked reports whether source is already a symlink pointing at dest.
func (e *Engine) isLinked(source, dest string) (bool, error) {
	info, err := e.fs.Lstat(source)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("status check for %s: %w", source, err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		return false, nil
	}
	target, err := e.fs.Readlink(source)
	if err != nil {
		return false, fmt.Errorf("status check for %s: %w", source, err)
	}
	return filepath.Clean(target) == filepath.Clean(dest), nil
}
