package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"piexed/internal/installer"
	"piexed/internal/logging"
	"piexed/internal/models"
)

func (s *server) handleInstall(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.InstallResult{Message: "Invalid request body", Error: err.Error()})
		return
	}
	var req models.InstallRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, models.InstallResult{Message: "Invalid request body", Error: err.Error()})
		return
	}
	if err := installer.Validate(req); err != nil {
		var ve *installer.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusBadRequest, models.InstallResult{Message: ve.Message, Error: ve.Field, Stage: string(installer.StageValidate)})
			return
		}
		writeJSON(w, http.StatusBadRequest, models.InstallResult{Message: "Invalid installation request", Error: err.Error()})
		return
	}
	if err := validateBody(s.installSchema, raw); err != nil {
		writeJSON(w, http.StatusBadRequest, models.InstallResult{Message: "Invalid installation request", Error: err.Error(), Stage: string(installer.StageValidate)})
		return
	}

	// A dropped connection must not abort provisioning halfway.
	ctx := context.WithoutCancel(r.Context())
	res, err := s.installer.Install(ctx, req)
	writeJSON(w, installStatusCode(err), res)
}

func installStatusCode(err error) int {
	var ve *installer.ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.Is(err, installer.ErrAlreadyInstalled), errors.Is(err, installer.ErrInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) handleInstallStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.installer.Status())
}

func (s *server) handleInstallProgress(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.installer.Progress().Get())
}

func (s *server) handleCheckDB(w http.ResponseWriter, r *http.Request) {
	if s.installer.Marker().Installed() {
		writeError(w, http.StatusConflict, "already_installed", "application is already installed", nil)
		return
	}

	var req models.CheckDBRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.DBConfig == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "dbConfig is required", nil)
		return
	}

	tables, err := s.installer.CheckTables(r.Context(), *req.DBConfig)
	if err != nil {
		var ve *installer.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, "invalid_request", ve.Message, map[string]any{"field": ve.Field})
			return
		}
		var se *installer.StageError
		if errors.As(err, &se) {
			writeError(w, http.StatusInternalServerError, se.Cause, se.Err.Error(), map[string]any{"stage": string(se.Stage)})
			return
		}
		logging.Errorf("check database: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to check database", nil)
		return
	}
	writeJSON(w, http.StatusOK, models.CheckDBResponse{Tables: tables})
}

func (s *server) handleInstallUI(staticDir string) http.HandlerFunc {
	spa := spaIndex(staticDir)
	return func(w http.ResponseWriter, r *http.Request) {
		if spa != nil {
			spa(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("piexed is not installed yet\n\nPOST the installation settings to /install (see /openapi.yml), then poll /install/progress.\n"))
	}
}
