package api

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const installPath = "/install"

// exemptPrefixes are never gated: framework assets and operational endpoints.
var exemptPrefixes = []string{
	"/_next/",
	"/static/",
	"/assets/",
}

var exemptPaths = map[string]struct{}{
	"/favicon.ico": {},
	"/robots.txt":  {},
	"/healthz":     {},
	"/readyz":      {},
	"/metrics":     {},
	"/openapi.yml": {},
	"/docs":        {},
}

func isExemptPath(p string) bool {
	if _, ok := exemptPaths[p]; ok {
		return true
	}
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

func isInstallPath(p string) bool {
	for _, base := range []string{installPath, "/api" + installPath} {
		if p == base || strings.HasPrefix(p, base+"/") {
			return true
		}
	}
	return false
}

func isInstallUI(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return r.URL.Path == installPath || r.URL.Path == installPath+"/"
}

// requireInstalled routes traffic by the completion marker: everything goes
// to the installer until it is written, and the installer UI goes back to
// the application root afterwards. The marker snapshot never reports
// installed before the lock file is on disk.
func (s *server) requireInstalled(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := r.URL.Path
		if isExemptPath(p) {
			next.ServeHTTP(w, r)
			return
		}
		installed := s.installer.Marker().Installed()
		switch {
		case isInstallPath(p):
			if installed && isInstallUI(r) {
				http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
				return
			}
		case !installed:
			http.Redirect(w, r, installPath, http.StatusTemporaryRedirect)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *server) observeRequests(next http.Handler) http.Handler {
	if s.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.ObserveHTTPRequest(r.Method, route, status, time.Since(start))
	})
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		if h.Get("X-Frame-Options") == "" {
			h.Set("X-Frame-Options", "DENY")
		}
		if h.Get("Content-Security-Policy") == "" {
			h.Set("Content-Security-Policy", "frame-ancestors 'none'")
		}
		if h.Get("Cross-Origin-Opener-Policy") == "" && isTrustworthyOrigin(r) {
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
		}
		if h.Get("Cross-Origin-Resource-Policy") == "" {
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
		}
		if h.Get("X-Content-Type-Options") == "" {
			h.Set("X-Content-Type-Options", "nosniff")
		}
		if h.Get("Referrer-Policy") == "" {
			h.Set("Referrer-Policy", "no-referrer")
		}
		next.ServeHTTP(w, r)
	})
}

func isTrustworthyOrigin(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.ToLower(strings.TrimSpace(host))
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
