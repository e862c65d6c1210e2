// Package linker consolidates each application's private model directories
// into one shared backing tree. A reconciled directory is moved into the
// shared location and replaced with a symlink, so every managed application
// reads and writes the same underlying files.
package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/podup/podup/internal/fsops"
)

// Mount is one source directory to fold into the shared tree.
type Mount struct {
	// Source is the application's private directory (absolute).
	Source string

	// Dest is the shared backing directory (absolute).
	Dest string
}

// MountError reports a failed reconciliation with path context.
type MountError struct {
	Source string
	Dest   string
	Err    error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("link %s -> %s: %v", e.Source, e.Dest, e.Err)
}

func (e *MountError) Unwrap() error {
	return e.Err
}

// Linker reconciles mounts. It touches only the filesystem; it is run
// strictly before any service launches, so nothing reads the directories
// it mutates.
type Linker struct {
	fs  fsops.FS
	log zerolog.Logger
}

// New creates a Linker.
func New(fs fsops.FS, log zerolog.Logger) *Linker {
	return &Linker{fs: fs, log: log}
}

// Reconcile processes every mount in order, halting at the first failure.
// It returns the sources it relinked; already-linked mounts are skipped
// and not counted.
func (l *Linker) Reconcile(mounts []Mount) ([]string, error) {
	var linked []string
	for _, m := range mounts {
		changed, err := l.reconcileOne(m)
		if err != nil {
			return linked, &MountError{Source: m.Source, Dest: m.Dest, Err: err}
		}
		if changed {
			linked = append(linked, m.Source)
		}
	}
	return linked, nil
}

// reconcileOne migrates one mount. The order of operations is what keeps
// data safe: copy first, verify the copy landed, and only then remove the
// source and drop the symlink in its place.
func (l *Linker) reconcileOne(m Mount) (bool, error) {
	info, err := l.fs.Lstat(m.Source)
	switch {
	case err == nil && info.Mode()&os.ModeSymlink != 0:
		// Already reconciled on a previous run.
		return false, nil
	case err == nil && !info.IsDir():
		return false, fmt.Errorf("source is not a directory")
	case err != nil && !os.IsNotExist(err):
		return false, fmt.Errorf("failed to stat source: %w", err)
	}
	sourceExists := err == nil

	if err := l.fs.MkdirAll(m.Dest, 0755); err != nil {
		return false, fmt.Errorf("failed to create destination: %w", err)
	}

	if sourceExists {
		skipped, err := l.fs.CopyNoClobber(m.Source, m.Dest)
		if err != nil {
			return false, fmt.Errorf("failed to copy contents: %w", err)
		}
		// The destination wins on name collisions; the colliding source
		// entries are about to be discarded, so say so loudly.
		for _, name := range skipped {
			l.log.Warn().
				Str("source", m.Source).
				Str("entry", name).
				Msg("destination already has this entry, discarding source copy")
		}

		if err := l.verifyMigrated(m); err != nil {
			return false, err
		}

		if err := l.fs.RemoveAll(m.Source); err != nil {
			return false, fmt.Errorf("failed to remove migrated source: %w", err)
		}
	}

	if err := l.fs.MkdirAll(filepath.Dir(m.Source), 0755); err != nil {
		return false, fmt.Errorf("failed to create source parent: %w", err)
	}
	if err := l.fs.Symlink(m.Dest, m.Source); err != nil {
		return false, fmt.Errorf("failed to create symlink: %w", err)
	}

	l.log.Info().Str("source", m.Source).Str("dest", m.Dest).Msg("relinked directory into shared tree")
	return true, nil
}

// verifyMigrated confirms every source entry has a counterpart at the
// destination before the source is removed.
func (l *Linker) verifyMigrated(m Mount) error {
	entries, err := l.fs.ReadDir(m.Source)
	if err != nil {
		return fmt.Errorf("failed to re-read source: %w", err)
	}
	for _, entry := range entries {
		exists, err := l.fs.Exists(filepath.Join(m.Dest, entry.Name()))
		if err != nil {
			return fmt.Errorf("failed to verify copied entry %s: %w", entry.Name(), err)
		}
		if !exists {
			return fmt.Errorf("entry %s missing at destination after copy", entry.Name())
		}
	}
	return nil
}
