// Package fsops provides filesystem operations with safety guarantees.
//
// All filesystem mutations in podup go through the FS interface, which
// abstracts the handful of operations the provisioner and linker need and
// keeps them testable against a temp directory.
//
// Key features:
//   - Symlink-aware operations (Lstat, Readlink, Symlink)
//   - No-clobber copy: an existing destination entry is never overwritten
//   - Existence checks that do not follow symlinks
package fsops

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// FS provides an abstraction for filesystem operations.
// All filesystem mutations in podup must go through this interface.
type FS interface {
	// Lstat returns file info without following symlinks.
	Lstat(path string) (os.FileInfo, error)

	// Readlink reads the target of a symlink.
	Readlink(path string) (string, error)

	// ReadDir lists the entries of a directory.
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parent directories.
	MkdirAll(path string, perm os.FileMode) error

	// RemoveAll removes a path and all its contents.
	RemoveAll(path string) error

	// Symlink creates a symbolic link at newname pointing to oldname.
	Symlink(oldname, newname string) error

	// CopyNoClobber copies every entry of the directory src into dst,
	// skipping any entry whose name already exists in dst. It returns the
	// names of the skipped entries.
	CopyNoClobber(src, dst string) ([]string, error)

	// Exists checks if a path exists. Symlinks count as existing even when
	// their target is gone.
	Exists(path string) (bool, error)
}

// RealFS implements FS using actual OS operations.
type RealFS struct{}

// NewRealFS creates a new RealFS.
func NewRealFS() *RealFS {
	return &RealFS{}
}

// Lstat returns file info without following symlinks.
func (fs *RealFS) Lstat(path string) (os.FileInfo, error) {
	return os.Lstat(path)
}

// Readlink reads the target of a symlink.
func (fs *RealFS) Readlink(path string) (string, error) {
	return os.Readlink(path)
}

// ReadDir lists the entries of a directory.
func (fs *RealFS) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// MkdirAll creates a directory and all parent directories.
func (fs *RealFS) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// RemoveAll removes a path and all its contents.
func (fs *RealFS) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// Symlink creates a symbolic link at newname pointing to oldname.
func (fs *RealFS) Symlink(oldname, newname string) error {
	return os.Symlink(oldname, newname)
}

// CopyNoClobber copies every entry of src into dst without overwriting
// anything that already exists in dst. Entries skipped because of a name
// collision are returned so the caller can report them.
func (fs *RealFS) CopyNoClobber(src, dst string) ([]string, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	var skipped []string
	for _, entry := range entries {
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if _, err := os.Lstat(dstPath); err == nil {
			skipped = append(skipped, entry.Name())
			continue
		} else if !os.IsNotExist(err) {
			return skipped, fmt.Errorf("failed to stat destination entry: %w", err)
		}

		if err := fs.copyEntry(entry, srcPath, dstPath); err != nil {
			return skipped, err
		}
	}

	return skipped, nil
}

// copyEntry dispatches one directory entry to the right copy strategy.
// Symlinks are recreated as symlinks, never dereferenced: a link to a
// directory must not be expanded and a dangling link must not abort the
// copy.
func (fs *RealFS) copyEntry(entry os.DirEntry, src, dst string) error {
	if entry.Type()&os.ModeSymlink != 0 {
		return fs.copySymlink(src, dst)
	}
	if entry.IsDir() {
		return fs.copyDir(src, dst)
	}
	info, err := entry.Info()
	if err != nil {
		return fmt.Errorf("failed to get entry info: %w", err)
	}
	return fs.copyFile(src, dst, info.Mode())
}

// copySymlink recreates the link at dst with src's target.
func (fs *RealFS) copySymlink(src, dst string) error {
	target, err := os.Readlink(src)
	if err != nil {
		return fmt.Errorf("failed to read symlink: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if err := os.Symlink(target, dst); err != nil {
		return fmt.Errorf("failed to recreate symlink: %w", err)
	}
	return nil
}

// copyFile copies a single file from src to dst.
func (fs *RealFS) copyFile(src, dst string, mode os.FileMode) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source: %w", err)
	}
	defer func() {
		_ = srcFile.Close()
	}()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}

	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create destination: %w", err)
	}
	defer func() {
		_ = dstFile.Close()
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}

	return dstFile.Sync()
}

// copyDir recursively copies a directory from src to dst.
// Used only for entries that do not exist at the destination, so it never
// needs collision handling below the top level.
func (fs *RealFS) copyDir(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat source directory: %w", err)
	}

	if err := os.MkdirAll(dst, srcInfo.Mode()); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		if err := fs.copyEntry(entry, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}

	return nil
}

// Exists checks if a path exists.
func (fs *RealFS) Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}
