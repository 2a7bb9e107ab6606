package api

import (
	"net/http"
	"os"
)

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

// handleReadyz reports whether the install directory is usable. Readiness
// does not depend on being installed; the installer must be reachable on a
// fresh deployment.
func (s *server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.installer == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("installer_unavailable\n"))
		return
	}
	if info, err := os.Stat(s.installer.InstallDir()); err != nil || !info.IsDir() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("install_dir_unavailable\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		http.NotFound(w, r)
		return
	}
	s.metrics.Handler().ServeHTTP(w, r)
}
