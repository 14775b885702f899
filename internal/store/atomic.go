package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var errWriterClosed = errors.New("atomic writer is closed")

// AtomicWriter writes a file through a temporary sibling that replaces the
// target on Commit. Readers see the old content or the new, never a mix.
type AtomicWriter struct {
	target string
	tmp    *os.File
}

// NewAtomicWriter starts a replacement of path, creating its directory
// with owner-only permissions when missing.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	target := filepath.Clean(path)
	dir, base := filepath.Split(target)
	if base == "" || base == "." || base == ".." {
		return nil, fmt.Errorf("invalid file name %q", path)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	// CreateTemp opens with O_EXCL and mode 0600.
	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	return &AtomicWriter{target: target, tmp: tmp}, nil
}

// Write appends to the pending content. A failed write aborts the writer.
func (aw *AtomicWriter) Write(p []byte) (int, error) {
	if aw.tmp == nil {
		return 0, errWriterClosed
	}
	n, err := aw.tmp.Write(p)
	if err != nil {
		return n, errors.Join(err, aw.Abort())
	}
	return n, nil
}

// Commit flushes the pending content to disk and moves it over the target.
func (aw *AtomicWriter) Commit() error {
	if aw.tmp == nil {
		return errWriterClosed
	}
	tmp := aw.tmp
	aw.tmp = nil

	err := tmp.Sync()
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), aw.target)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", aw.target, err)
	}
	return nil
}

// Abort discards the pending content. It is safe to call after Commit.
func (aw *AtomicWriter) Abort() error {
	if aw.tmp == nil {
		return nil
	}
	tmp := aw.tmp
	aw.tmp = nil

	err := tmp.Close()
	if removeErr := os.Remove(tmp.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		err = errors.Join(err, removeErr)
	}
	return err
}

// AtomicWriteFile replaces path with data.
func AtomicWriteFile(path string, data []byte) error {
	aw, err := NewAtomicWriter(path)
	if err != nil {
		return err
	}
	if _, err := aw.Write(data); err != nil {
		return err
	}
	return aw.Commit()
}

// EnsureFilePermissions narrows path to 0600 when group or others have access.
func EnsureFilePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o077 != 0 {
		return os.Chmod(path, 0o600)
	}
	return nil
}
