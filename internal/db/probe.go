package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Cause is a stable classification of a connectivity failure.
type Cause string

const (
	CauseCredentialsInvalid Cause = "credentials_invalid"
	CauseHostUnreachable    Cause = "host_unreachable"
	CauseDatabaseMissing    Cause = "database_missing"
	CauseTimeout            Cause = "timeout"
	CauseUnknown            Cause = "unknown"
)

type ProbeError struct {
	Cause Cause
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("database probe failed (%s): %v", e.Cause, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Probe opens a connection, runs a liveness query and releases the handle.
func Probe(ctx context.Context, cfg Config) error {
	gdb, err := Connect(ctx, cfg)
	if err != nil {
		return err
	}
	Close(gdb)
	return nil
}

// Connect is Probe that hands the live handle to the caller. Errors are
// always *ProbeError.
func Connect(ctx context.Context, cfg Config) (*gorm.DB, error) {
	if cfg.Backend == BackendSQLite {
		dir := filepath.Dir(cfg.SQLitePath)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			if err == nil {
				err = fmt.Errorf("%s is not a directory", dir)
			}
			return nil, &ProbeError{Cause: CauseDatabaseMissing, Err: err}
		}
	}

	gdb, err := Open(ctx, cfg)
	if err != nil {
		return nil, &ProbeError{Cause: Classify(ctx, err), Err: err}
	}
	var one int
	if err := gdb.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error; err != nil {
		Close(gdb)
		return nil, &ProbeError{Cause: Classify(ctx, err), Err: err}
	}
	return gdb, nil
}

// Classify maps a driver error onto a Cause.
func Classify(ctx context.Context, err error) Cause {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return CauseTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "28P01", "28000":
			return CauseCredentialsInvalid
		case "3D000":
			return CauseDatabaseMissing
		}
		return CauseUnknown
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return CauseHostUnreachable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return CauseTimeout
		}
		return CauseHostUnreachable
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return CauseHostUnreachable
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "password authentication failed"):
		return CauseCredentialsInvalid
	case strings.Contains(msg, "does not exist") && strings.Contains(msg, "database"):
		return CauseDatabaseMissing
	case strings.Contains(msg, "unable to open database file"):
		return CauseDatabaseMissing
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"):
		return CauseHostUnreachable
	}
	return CauseUnknown
}
