package dirlock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned when another process holds the install lock.
var ErrLocked = errors.New("install directory is locked")

// Lock represents an acquired directory lock.
// The lock is held for as long as the underlying file handle remains open.
type Lock struct {
	path string
	f    *os.File
}

// LockPath returns the lock file path for a given install directory.
func LockPath(dir string) string {
	return filepath.Join(dir, ".lock")
}

// Acquire takes an exclusive, non-blocking OS file lock inside dir. It keeps
// two processes sharing a work directory from provisioning at the same time.
func Acquire(dir string) (*Lock, error) {
	lockPath := LockPath(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	// #nosec G304 -- lockPath is derived from the configured work directory.
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		_ = f.Close()
		if errors.Is(err, ErrLocked) {
			return nil, fmt.Errorf("%w: %s", ErrLocked, lockPath)
		}
		return nil, err
	}

	// Record the holder for operators; failures here are not fatal.
	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "pid=%d\nstarted_at=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	_ = f.Sync()

	return &Lock{path: lockPath, f: f}, nil
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// Release unlocks and closes the lock.
func (l *Lock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	err := unlockFile(l.f)
	_ = l.f.Close()
	l.f = nil
	return err
}
