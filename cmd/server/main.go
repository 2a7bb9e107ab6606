package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"piexed/internal/app"
	"piexed/internal/config"
	"piexed/internal/logging"
)

var envWarnings []string

func main() {
	var cfg config.Config

	flag.StringVar(&cfg.Addr, "addr", getEnv("ADDR", "127.0.0.1:3000"), "listen address")
	flag.StringVar(&cfg.WorkDir, "work-dir", getEnv("WORK_DIR", "."), "work directory (.env, install/ state, relative sqlite paths)")
	flag.StringVar(&cfg.StaticDir, "static-dir", defaultStaticDir(), "static files directory (frontend build output)")
	flag.StringVar(&cfg.LogFormat, "log-format", getEnv("LOG_FORMAT", "text"), "log format (text or json)")
	flag.StringVar(&cfg.LogLevel, "log-level", getEnv("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", getEnvDuration("PROBE_TIMEOUT", 10*time.Second), "database connectivity check timeout")
	flag.DurationVar(&cfg.StageTimeout, "stage-timeout", getEnvDuration("STAGE_TIMEOUT", 60*time.Second), "timeout for each provisioning stage")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", getEnvInt("BCRYPT_COST", 0), "bcrypt cost for the admin password (0=library default)")
	flag.Parse()

	logger, err := logging.Setup(cfg.LogFormat)
	if err != nil {
		log.Fatalf("invalid LOG_FORMAT %q: %v", cfg.LogFormat, err)
	}
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("invalid LOG_LEVEL %q: %v", cfg.LogLevel, err)
	}
	logger.SetLevel(level)
	for _, w := range envWarnings {
		logging.Warnf("%s", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg); err != nil {
		logging.Fatalf("server error: %v", err)
	}
}

// defaultStaticDir finds an exported dashboard build next to the binary or
// in the working directory. Empty means the server answers with plain-text
// hints instead of the UI.
func defaultStaticDir() string {
	if val := os.Getenv("STATIC_DIR"); val != "" {
		return val
	}

	var candidates []string
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), "ui"))
	}
	candidates = append(candidates, "out", filepath.Join("frontend", "out"), filepath.Join("..", "frontend", "out"))
	for _, dir := range candidates {
		if hasIndexHTML(dir) {
			return dir
		}
	}
	return ""
}

func hasIndexHTML(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, "index.html"))
	return err == nil && !info.IsDir()
}

func getEnv(key, defaultValue string) string {
	return envOr(key, defaultValue, func(v string) (string, error) { return v, nil })
}

func getEnvInt(key string, defaultValue int) int {
	return envOr(key, defaultValue, strconv.Atoi)
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	return envOr(key, defaultValue, time.ParseDuration)
}

// envOr parses the environment variable key, falling back to defaultValue
// when it is unset or malformed. Malformed values are reported once the
// logger is configured.
func envOr[T any](key string, defaultValue T, parse func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue
	}
	v, err := parse(raw)
	if err != nil {
		envWarnings = append(envWarnings, fmt.Sprintf("ignoring %s=%q: %v", key, raw, err))
		return defaultValue
	}
	return v
}
