package api

import (
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"piexed/internal/config"
	"piexed/internal/installer"
	"piexed/internal/logging"
	"piexed/internal/metrics"
	"piexed/internal/ws"
)

type Dependencies struct {
	Config    config.Config
	Installer *installer.Installer
	Hub       *ws.Hub
	Metrics   *metrics.Metrics
	// OpenAPI is the loaded document used for request validation; nil
	// disables schema checks beyond the installer's own validation.
	OpenAPI *openapi3.T
}

func New(dep Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)

	hub := dep.Hub
	if hub == nil {
		hub = ws.NewHub()
	}
	api := &server{
		cfg:       dep.Config,
		installer: dep.Installer,
		hub:       hub,
		metrics:   dep.Metrics,
	}
	if dep.OpenAPI != nil {
		schema, err := requestSchema(dep.OpenAPI, installPath)
		if err != nil {
			logging.Warnf("openapi request validation disabled: %v", err)
		}
		api.installSchema = schema
	}

	r.Use(api.observeRequests)
	r.Use(api.requireInstalled)

	installRoutes := func(r chi.Router) {
		r.Post("/", api.handleInstall)
		r.Get("/status", api.handleInstallStatus)
		r.Get("/progress", api.handleInstallProgress)
		r.Get("/progress/ws", api.handleProgressWS)
		r.Post("/check-db", api.handleCheckDB)
	}
	r.Route(installPath, func(r chi.Router) {
		ui := api.handleInstallUI(dep.Config.StaticDir)
		r.Get("/", ui)
		r.Head("/", ui)
		installRoutes(r)
	})
	r.Route("/api"+installPath, installRoutes)

	r.Get("/openapi.yml", handleOpenAPISpec)
	r.Get("/docs", handleOpenAPIDocs)
	r.Get("/healthz", api.handleHealthz)
	r.Get("/readyz", api.handleReadyz)
	r.Get("/metrics", api.handleMetrics)

	uiEnabled := false
	if spa := spaIndex(dep.Config.StaticDir); spa != nil {
		r.Get("/", spa)
		r.Get("/*", spa)
		r.Head("/", spa)
		r.Head("/*", spa)
		uiEnabled = true
	}

	if !uiEnabled {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("piexed is installed and running\n\nHint: build the frontend and point --static-dir to its output\n"))
		})
	}

	return r
}

// spaIndex returns a single-page-app handler for staticDir, or nil when the
// directory has no index.html.
func spaIndex(staticDir string) http.HandlerFunc {
	if staticDir == "" || !fileExists(filepath.Join(staticDir, "index.html")) {
		return nil
	}
	return spaHandler(staticDir)
}

func spaHandler(staticDir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(staticDir))
	indexPath := filepath.Join(staticDir, "index.html")

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.NotFound(w, r)
			return
		}

		reqPath := path.Clean(r.URL.Path)
		if reqPath == "/" {
			http.ServeFile(w, r, indexPath)
			return
		}

		rel := strings.TrimPrefix(reqPath, "/")
		target := filepath.Join(staticDir, rel)
		if info, err := os.Stat(target); err == nil && !info.IsDir() {
			fileServer.ServeHTTP(w, r)
			return
		}

		http.ServeFile(w, r, indexPath)
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
