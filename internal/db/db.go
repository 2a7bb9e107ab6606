package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"piexed/internal/models"
)

type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
)

type Config struct {
	Backend     Backend
	SQLitePath  string
	DatabaseURL string
}

func ParseBackend(raw string) (Backend, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return BackendPostgres, nil
	}
	switch raw {
	case "sqlite", "sqlite3":
		return BackendSQLite, nil
	case "postgres", "postgresql", "pg":
		return BackendPostgres, nil
	default:
		return "", fmt.Errorf("unsupported db backend %q (expected sqlite or postgres)", raw)
	}
}

// ConfigFromRequest resolves the wizard's connection parameters into a
// driver configuration.
func ConfigFromRequest(in models.DBConfig) (Config, error) {
	backend, err := ParseBackend(in.Type)
	if err != nil {
		return Config{}, err
	}
	switch backend {
	case BackendSQLite:
		path := strings.TrimSpace(in.Path)
		if path == "" {
			path = strings.TrimSpace(in.Database)
		}
		if path == "" {
			return Config{}, errors.New("sqlite path is required")
		}
		return Config{Backend: backend, SQLitePath: path}, nil
	default:
		if strings.TrimSpace(in.Host) == "" {
			return Config{}, errors.New("database host is required")
		}
		if strings.TrimSpace(in.Database) == "" {
			return Config{}, errors.New("database name is required")
		}
		return Config{Backend: backend, DatabaseURL: postgresDSN(in)}, nil
	}
}

func postgresDSN(in models.DBConfig) string {
	port := int(in.Port)
	if port == 0 {
		port = 5432
	}
	sslMode := strings.TrimSpace(in.SSLMode)
	if sslMode == "" {
		sslMode = "disable"
	}
	parts := []string{
		"host=" + quoteDSNValue(strings.TrimSpace(in.Host)),
		"port=" + strconv.Itoa(port),
		"dbname=" + quoteDSNValue(strings.TrimSpace(in.Database)),
		"sslmode=" + quoteDSNValue(sslMode),
	}
	if in.User != "" {
		parts = append(parts, "user="+quoteDSNValue(in.User))
	}
	if in.Password != "" {
		parts = append(parts, "password="+quoteDSNValue(in.Password))
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue quotes a keyword/value DSN value per libpq rules.
func quoteDSNValue(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// Open returns a live handle. The caller owns it and must Close it.
func Open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	backend := cfg.Backend
	if backend == "" {
		backend = BackendSQLite
	}
	switch backend {
	case BackendSQLite:
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, errors.New("sqlite path is required")
		}
		return openSQLite(ctx, cfg.SQLitePath)
	case BackendPostgres:
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, errors.New("database url is required for postgres")
		}
		return openPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("unsupported db backend %q", backend)
	}
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		Logger:               logger.Discard,
		DisableAutomaticPing: true,
	}
}

func openSQLite(ctx context.Context, dbPath string) (*gorm.DB, error) {
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	gdb, err := gorm.Open(sqlite.Open(dsn), gormConfig())
	if err != nil {
		return nil, err
	}
	if err := ping(ctx, gdb); err != nil {
		Close(gdb)
		return nil, err
	}
	return gdb, nil
}

func openPostgres(ctx context.Context, databaseURL string) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.Open(databaseURL), gormConfig())
	if err != nil {
		return nil, err
	}
	if err := ping(ctx, gdb); err != nil {
		Close(gdb)
		return nil, err
	}
	return gdb, nil
}

func ping(ctx context.Context, gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying pool. Safe on nil.
func Close(gdb *gorm.DB) {
	if gdb == nil {
		return
	}
	if sqlDB, err := gdb.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
