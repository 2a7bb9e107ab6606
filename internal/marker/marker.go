package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"piexed/internal/fsutil"
)

// FileName is the lock artifact inside the install directory.
const FileName = ".installed"

var ErrAlreadyInstalled = errors.New("already installed")

type state struct {
	installed bool
	at        string
}

// Marker is the durable Uninstalled -> Installed flag. Reads go through an
// in-process snapshot loaded at startup; the snapshot only flips to installed
// after the lock file is durably on disk.
type Marker struct {
	path string
	cur  atomic.Pointer[state]
}

func New(installDir string) *Marker {
	m := &Marker{path: filepath.Join(installDir, FileName)}
	m.cur.Store(&state{})
	return m
}

func (m *Marker) Path() string {
	return m.path
}

// Load refreshes the snapshot from disk. A missing file means uninstalled.
func (m *Marker) Load() error {
	// #nosec G304 -- path is derived from the configured work directory.
	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			m.cur.Store(&state{})
			return nil
		}
		return fmt.Errorf("read install marker: %w", err)
	}
	m.cur.Store(&state{installed: true, at: strings.TrimSpace(string(data))})
	return nil
}

func (m *Marker) Installed() bool {
	return m.cur.Load().installed
}

// InstalledAt returns the recorded timestamp, or nil when not installed.
func (m *Marker) InstalledAt() *string {
	s := m.cur.Load()
	if !s.installed {
		return nil
	}
	at := s.at
	return &at
}

// Write records completion at now. Exactly one writer wins; later callers get
// ErrAlreadyInstalled and the snapshot is refreshed from the winner's file.
func (m *Marker) Write(now time.Time) error {
	at := now.UTC().Format(time.RFC3339Nano)
	if err := fsutil.CreateFileExclusive(m.path, []byte(at), 0o600); err != nil {
		if errors.Is(err, fsutil.ErrExists) {
			_ = m.Load()
			return ErrAlreadyInstalled
		}
		return fmt.Errorf("write install marker: %w", err)
	}
	m.cur.Store(&state{installed: true, at: at})
	return nil
}
