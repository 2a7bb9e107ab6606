package progress

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"piexed/internal/fsutil"
	"piexed/internal/logging"
	"piexed/internal/models"
	"piexed/internal/ws"
)

const (
	FileName   = ".progress"
	NotStarted = "Not started"
)

// Tracker holds the progress of the current provisioning run. Percent only
// moves forward within a run; Reset starts a new run.
type Tracker struct {
	mu   sync.RWMutex
	cur  models.Progress
	path string
	hub  *ws.Hub
}

// New returns a tracker mirrored to installDir/.progress. installDir may be
// empty to keep progress in memory only; hub may be nil.
func New(installDir string, hub *ws.Hub) *Tracker {
	t := &Tracker{cur: initial(), hub: hub}
	if installDir != "" {
		t.path = filepath.Join(installDir, FileName)
	}
	return t
}

func initial() models.Progress {
	return models.Progress{Progress: 0, Step: NotStarted}
}

// Load restores the last mirrored state, if any.
func (t *Tracker) Load() error {
	if t.path == "" {
		return nil
	}
	// #nosec G304 -- path is derived from the configured work directory.
	data, err := os.ReadFile(t.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	var p models.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	t.mu.Lock()
	t.cur = p
	t.mu.Unlock()
	return nil
}

func (t *Tracker) Get() models.Progress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.cur
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.cur = initial()
	t.mu.Unlock()
	if t.path != "" {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logging.Warnf("remove progress file: %v", err)
		}
	}
}

// Set records step at percent. A percent lower than the current one is
// raised to it.
func (t *Tracker) Set(percent int, step string) models.Progress {
	t.mu.Lock()
	if percent > 100 {
		percent = 100
	}
	if percent < t.cur.Progress {
		percent = t.cur.Progress
	}
	t.cur = models.Progress{Progress: percent, Step: step}
	p := t.cur
	t.mu.Unlock()

	t.persist(p)
	t.hub.Publish(ws.Event{Type: ws.EventInstallProgress, Payload: p})
	return p
}

// Fail keeps the reached percent and replaces the step.
func (t *Tracker) Fail(step string) models.Progress {
	t.mu.Lock()
	t.cur.Step = step
	p := t.cur
	t.mu.Unlock()

	t.persist(p)
	t.hub.Publish(ws.Event{Type: ws.EventInstallFailed, Payload: p})
	return p
}

func (t *Tracker) persist(p models.Progress) {
	if t.path == "" {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := fsutil.WriteFileAtomic(t.path, data, 0o600); err != nil {
		logging.Warnf("write progress file: %v", err)
	}
}
