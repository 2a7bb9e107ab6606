package installer

import (
	"context"
	"errors"
	"fmt"

	"piexed/internal/db"
)

type Stage string

const (
	StageValidate Stage = "validate"
	StageConnect  Stage = "connect"
	StageMigrate  Stage = "migrate"
	StageSeed     Stage = "seed"
	StageConfig   Stage = "config"
	StageMarker   Stage = "marker"
)

// Causes reported for stages that are not connectivity failures. Connectivity
// failures use the db.Cause values.
const (
	CauseMigrationFailed = "migration_failed"
	CauseSeedFailed      = "seed_failed"
	CauseFilesystem      = "filesystem"
	CauseTimeout         = string(db.CauseTimeout)
	CausePanic           = "panic"
)

var (
	ErrInProgress       = errors.New("installation already in progress")
	ErrAlreadyInstalled = errors.New("application is already installed")
)

// ValidationError is an operator input problem; nothing was touched.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// StageError is a failure of one provisioning stage. Err keeps the
// originating error so callers can errors.As into *db.ProbeError or
// *db.MigrationError.
type StageError struct {
	Stage Stage
	Cause string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func causeOf(stage Stage, err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return CauseTimeout
	}
	var pe *db.ProbeError
	if errors.As(err, &pe) {
		return string(pe.Cause)
	}
	switch stage {
	case StageConnect:
		return string(db.CauseUnknown)
	case StageMigrate:
		return CauseMigrationFailed
	case StageSeed:
		return CauseSeedFailed
	default:
		return CauseFilesystem
	}
}
