package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"piexed/internal/api"
	"piexed/internal/config"
	"piexed/internal/installer"
	"piexed/internal/logging"
	"piexed/internal/metrics"
	"piexed/internal/seed"
	"piexed/internal/ws"
)

const (
	defaultAddr         = "127.0.0.1:3000"
	defaultProbeTimeout = 10 * time.Second
	defaultStageTimeout = 60 * time.Second
)

func Run(ctx context.Context, cfg config.Config) error {
	applySafeDefaults(&cfg)
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("invalid addr %q (expected host:port): %w", cfg.Addr, err)
	}

	in, hub, m, err := Build(cfg)
	if err != nil {
		return err
	}

	doc, err := api.LoadOpenAPI(ctx)
	if err != nil {
		return err
	}

	handler := api.New(api.Dependencies{
		Config:    cfg,
		Installer: in,
		Hub:       hub,
		Metrics:   m,
		OpenAPI:   doc,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Infof("listening on http://%s (installed=%t)", cfg.Addr, in.Marker().Installed())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

// Build prepares the work directory and restores marker and progress state
// from disk. The server and the provision command share it.
func Build(cfg config.Config) (*installer.Installer, *ws.Hub, *metrics.Metrics, error) {
	applySafeDefaults(&cfg)

	hub := ws.NewHub()
	m := metrics.New()
	in := installer.New(installer.Options{
		WorkDir:      cfg.WorkDir,
		Metrics:      m,
		Hub:          hub,
		Seeder:       seed.Loader{Cost: cfg.BcryptCost},
		ProbeTimeout: cfg.ProbeTimeout,
		StageTimeout: cfg.StageTimeout,
	})
	if err := os.MkdirAll(in.InstallDir(), 0o700); err != nil {
		return nil, nil, nil, err
	}
	if err := in.Marker().Load(); err != nil {
		return nil, nil, nil, err
	}
	if err := in.Progress().Load(); err != nil {
		logging.Warnf("ignoring unreadable progress file: %v", err)
	}
	m.SetInstalled(in.Marker().Installed())
	m.SetProgress(in.Progress().Get().Progress)
	return in, hub, m, nil
}

func applySafeDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = defaultAddr
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = defaultStageTimeout
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.BcryptCost < bcrypt.MinCost {
		cfg.BcryptCost = bcrypt.MinCost
	}
	if cfg.BcryptCost > bcrypt.MaxCost {
		cfg.BcryptCost = bcrypt.MaxCost
	}
}
