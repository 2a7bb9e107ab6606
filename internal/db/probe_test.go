package db

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeSQLiteSucceeds(t *testing.T) {
	err := Probe(context.Background(), Config{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "probe.db"),
	})
	assert.NoError(t, err)
}

func TestProbeSQLiteMissingDirectory(t *testing.T) {
	err := Probe(context.Background(), Config{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "missing", "probe.db"),
	})
	var pe *ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CauseDatabaseMissing, pe.Cause)
}

func TestProbePostgresUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Probe(ctx, Config{
		Backend:     BackendPostgres,
		DatabaseURL: fmt.Sprintf("host=127.0.0.1 port=%d user=u password=p dbname=d sslmode=disable connect_timeout=2", addr.Port),
	})
	var pe *ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CauseHostUnreachable, pe.Cause)
}

func TestClassify(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		err  error
		want Cause
	}{
		{"bad password", &pgconn.PgError{Code: "28P01", Message: "password authentication failed"}, CauseCredentialsInvalid},
		{"bad auth spec", fmt.Errorf("connect: %w", &pgconn.PgError{Code: "28000"}), CauseCredentialsInvalid},
		{"missing database", &pgconn.PgError{Code: "3D000"}, CauseDatabaseMissing},
		{"other sqlstate", &pgconn.PgError{Code: "42601"}, CauseUnknown},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, CauseHostUnreachable},
		{"dns", &net.DNSError{Err: "no such host", Name: "nope.invalid"}, CauseHostUnreachable},
		{"deadline", fmt.Errorf("dial: %w", context.DeadlineExceeded), CauseTimeout},
		{"sqlite open", errors.New("unable to open database file: out of memory (14)"), CauseDatabaseMissing},
		{"opaque", errors.New("boom"), CauseUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(ctx, tc.err))
		})
	}
}

func TestClassifyUsesExpiredContext(t *testing.T) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	assert.Equal(t, CauseTimeout, Classify(ctx, errors.New("read: connection reset")))
}

func TestProbeErrorUnwraps(t *testing.T) {
	inner := errors.New("inner")
	err := error(&ProbeError{Cause: CauseUnknown, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "unknown")
}
