package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var (
	// ErrLockTimeout is returned when another process keeps the vault locked past the timeout.
	ErrLockTimeout = errors.New("lock acquisition timeout")
	// ErrLockNotHeld is returned by Unlock on a lock that is not held.
	ErrLockNotHeld = errors.New("lock not held")
)

const lockRetryInterval = 50 * time.Millisecond

// errWouldBlock is returned by tryLock when another handle holds the lock.
var errWouldBlock = errors.New("lock is held elsewhere")

// FileLock is an exclusive advisory lock on a vault, taken on a sibling
// ".lock" file that records the holder's process ID. A lock file left by a
// crashed process carries no OS lock and is simply taken over.
type FileLock struct {
	path string
	file *os.File
}

// NewFileLock returns the lock guarding the vault at vaultPath.
func NewFileLock(vaultPath string) *FileLock {
	return &FileLock{path: vaultPath + ".lock"}
}

// Lock acquires the lock, retrying until timeout.
func (fl *FileLock) Lock(timeout time.Duration) error {
	if fl.file != nil {
		return errors.New("lock already held")
	}
	if err := os.MkdirAll(filepath.Dir(fl.path), 0o700); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := fl.acquire()
		if err == nil {
			fl.file = f
			return nil
		}
		if !errors.Is(err, errWouldBlock) {
			return err
		}
		if time.Now().After(deadline) {
			return ErrLockTimeout
		}
		time.Sleep(lockRetryInterval)
	}
}

func (fl *FileLock) acquire() (*os.File, error) {
	f, err := os.OpenFile(filepath.Clean(fl.path), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock file: %w", err)
	}
	if err := tryLock(f); err != nil {
		f.Close()
		return nil, err
	}

	// The previous holder may have removed the file between our open and
	// our lock, leaving us with an orphaned inode.
	held, err1 := f.Stat()
	current, err2 := os.Stat(fl.path)
	if err1 != nil || err2 != nil || !os.SameFile(held, current) {
		_ = unlock(f)
		f.Close()
		return nil, errWouldBlock
	}

	err = f.Truncate(0)
	if err == nil {
		_, err = f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0)
	}
	if err != nil {
		_ = unlock(f)
		f.Close()
		return nil, fmt.Errorf("failed to record lock holder: %w", err)
	}
	return f, nil
}

// Unlock releases the lock and removes the lock file.
func (fl *FileLock) Unlock() error {
	if fl.file == nil {
		return ErrLockNotHeld
	}
	f := fl.file
	fl.file = nil
	return release(f, fl.path)
}

// IsLocked reports whether this FileLock holds the lock.
func (fl *FileLock) IsLocked() bool {
	return fl.file != nil
}
