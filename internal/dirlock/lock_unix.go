//go:build !windows

package dirlock

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

var errNilFile = errors.New("dirlock: nil file")

// lockFile takes a non-blocking exclusive flock. The kernel drops it when
// the process exits, so a crashed install never leaves a stale lock.
func lockFile(f *os.File) error {
	if f == nil {
		return errNilFile
	}
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, unix.EWOULDBLOCK):
		return ErrLocked
	default:
		return fmt.Errorf("flock %s: %w", f.Name(), err)
	}
}

func unlockFile(f *os.File) error {
	if f == nil {
		return nil
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil {
		return fmt.Errorf("unlock %s: %w", f.Name(), err)
	}
	return nil
}
