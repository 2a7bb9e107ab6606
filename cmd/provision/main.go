// Command provision runs the installer once from a JSON request file, without
// starting the HTTP server. It shares the work directory layout with the
// server, so either can finish what the other started.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"piexed/internal/app"
	"piexed/internal/config"
	"piexed/internal/installer"
	"piexed/internal/logging"
	"piexed/internal/models"
)

func main() {
	requestPath := flag.String("request", "install.json", "path to the installation request (JSON body of POST /install)")
	var cfg config.Config
	flag.StringVar(&cfg.WorkDir, "work-dir", ".", "work directory (.env, install/ state, relative sqlite paths)")
	flag.StringVar(&cfg.LogFormat, "log-format", "text", "log format (text or json)")
	flag.DurationVar(&cfg.ProbeTimeout, "probe-timeout", 10*time.Second, "database connectivity check timeout")
	flag.DurationVar(&cfg.StageTimeout, "stage-timeout", 60*time.Second, "timeout for each provisioning stage")
	flag.IntVar(&cfg.BcryptCost, "bcrypt-cost", 0, "bcrypt cost for the admin password (0=library default)")
	flag.Parse()

	if _, err := logging.Setup(cfg.LogFormat); err != nil {
		log.Fatalf("invalid log format %q: %v", cfg.LogFormat, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, *requestPath))
}

func run(ctx context.Context, cfg config.Config, requestPath string) int {
	// #nosec G304 -- the request path is an operator-supplied flag.
	raw, err := os.ReadFile(requestPath)
	if err != nil {
		logging.Errorf("read request: %v", err)
		return 1
	}
	var req models.InstallRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		logging.Errorf("decode request %s: %v", requestPath, err)
		return 1
	}

	in, _, _, err := app.Build(cfg)
	if err != nil {
		logging.Errorf("prepare work dir: %v", err)
		return 1
	}

	res, err := in.Install(ctx, req)
	if err != nil {
		if errors.Is(err, installer.ErrAlreadyInstalled) {
			logging.Infof("already installed at %s", deref(in.Status().InstalledAt))
			return 0
		}
		logging.Errorf("%s: %v", res.Message, err)
		return 1
	}
	fmt.Println(res.Message)
	return 0
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
