package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"piexed/internal/config"
	"piexed/internal/db"
	"piexed/internal/installer"
	"piexed/internal/metrics"
	"piexed/internal/models"
	"piexed/internal/seed"
)

func newTestServer(t *testing.T) (*installer.Installer, *httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	in := installer.New(installer.Options{
		WorkDir: dir,
		Seeder:  seed.Loader{Cost: bcrypt.MinCost},
	})
	require.NoError(t, os.MkdirAll(in.InstallDir(), 0o700))

	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)

	handler := New(Dependencies{
		Config:    config.Config{WorkDir: dir},
		Installer: in,
		Metrics:   metrics.New(),
		OpenAPI:   doc,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return in, srv, dir
}

func noRedirectClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func validBody() map[string]any {
	return map[string]any{
		"dbConfig": map[string]any{"type": "sqlite", "path": "piexed.db"},
		"adminUser": map[string]any{
			"username": "admin",
			"email":    "admin@example.com",
			"password": "hunter2-plaintext",
		},
		"siteConfig": map[string]any{
			"siteName":        "Piexed",
			"siteDescription": "AI studio",
			"siteUrl":         "http://localhost:3000",
			"defaultModel":    "Pi-o",
		},
		"storageConfig": map[string]any{"type": "local", "path": "/srv/piexed"},
	}
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	res, err := noRedirectClient().Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	return res, buf.Bytes()
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	res, err := noRedirectClient().Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	require.NoError(t, json.NewDecoder(res.Body).Decode(dst))
	return res.StatusCode
}

func TestInstallEndpointSucceeds(t *testing.T) {
	_, srv, dir := newTestServer(t)

	var before models.InstallStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/install/status", &before))
	assert.False(t, before.Installed)
	assert.Nil(t, before.InstalledAt)

	res, body := postJSON(t, srv.URL+"/install", validBody())
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var result models.InstallResult
	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success)

	var after models.InstallStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/install/status", &after))
	assert.True(t, after.Installed)
	require.NotNil(t, after.InstalledAt)
	assert.NotEmpty(t, *after.InstalledAt)

	var p models.Progress
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/install/progress", &p))
	assert.Equal(t, 100, p.Progress)

	env, err := os.ReadFile(filepath.Join(dir, ".env"))
	require.NoError(t, err)
	assert.NotContains(t, string(env), "hunter2-plaintext")
}

func TestInstallEndpointMissingStorageConfig(t *testing.T) {
	in, srv, dir := newTestServer(t)
	body := validBody()
	delete(body, "storageConfig")

	res, raw := postJSON(t, srv.URL+"/install", body)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var result models.InstallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Success)
	assert.Equal(t, "Missing required configuration data", result.Message)
	assert.Equal(t, "storageConfig", result.Error)

	assert.NoFileExists(t, filepath.Join(dir, "piexed.db"))
	assert.NoFileExists(t, in.Marker().Path())
}

func TestInstallEndpointIncompleteAdmin(t *testing.T) {
	_, srv, _ := newTestServer(t)
	body := validBody()
	body["adminUser"] = map[string]any{"username": "admin", "email": "admin@example.com"}

	res, raw := postJSON(t, srv.URL+"/install", body)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(raw), "Admin user information is incomplete")
}

func TestInstallEndpointSchemaViolation(t *testing.T) {
	_, srv, _ := newTestServer(t)
	body := validBody()
	body["adminUser"].(map[string]any)["email"] = "not-an-email"

	res, raw := postJSON(t, srv.URL+"/install", body)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	var result models.InstallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.Equal(t, "Invalid installation request", result.Message)
	assert.Contains(t, result.Error, "/adminUser/email")
}

func TestInstallEndpointMalformedJSON(t *testing.T) {
	_, srv, _ := newTestServer(t)
	res, err := noRedirectClient().Post(srv.URL+"/install", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestInstallEndpointUnreachableDatabase(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	_, srv, _ := newTestServer(t)
	body := validBody()
	body["dbConfig"] = map[string]any{
		"type":     "postgres",
		"host":     "127.0.0.1",
		"port":     fmt.Sprint(port),
		"user":     "piexed",
		"password": "pw",
		"database": "piexed",
	}

	res, raw := postJSON(t, srv.URL+"/install", body)
	require.Equal(t, http.StatusInternalServerError, res.StatusCode, string(raw))
	var result models.InstallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Success)
	assert.Equal(t, "connect", result.Stage)
	assert.Equal(t, string(db.CauseHostUnreachable), result.Cause)
	assert.NotEmpty(t, result.Error)

	var status models.InstallStatus
	getJSON(t, srv.URL+"/install/status", &status)
	assert.False(t, status.Installed)
}

func TestInstallEndpointTwice(t *testing.T) {
	_, srv, dir := newTestServer(t)

	res, raw := postJSON(t, srv.URL+"/install", validBody())
	require.Equal(t, http.StatusOK, res.StatusCode, string(raw))

	res, raw = postJSON(t, srv.URL+"/install", validBody())
	require.Equal(t, http.StatusConflict, res.StatusCode)
	var result models.InstallResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.False(t, result.Success)

	gdb, err := db.Open(context.Background(), db.Config{Backend: db.BackendSQLite, SQLitePath: filepath.Join(dir, "piexed.db")})
	require.NoError(t, err)
	defer db.Close(gdb)
	var users, plans int64
	require.NoError(t, gdb.Table("users").Count(&users).Error)
	require.NoError(t, gdb.Table("subscription_plans").Count(&plans).Error)
	assert.EqualValues(t, 1, users)
	assert.EqualValues(t, len(seed.DefaultPlans), plans)
}

func TestProgressBeforeAnyRun(t *testing.T) {
	_, srv, _ := newTestServer(t)
	var p models.Progress
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/install/progress", &p))
	assert.Equal(t, models.Progress{Progress: 0, Step: "Not started"}, p)
}

func TestAPIInstallAliasServesStatus(t *testing.T) {
	_, srv, _ := newTestServer(t)
	var status models.InstallStatus
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/install/status", &status))
	assert.False(t, status.Installed)
}

func TestCheckDBEndpoint(t *testing.T) {
	_, srv, _ := newTestServer(t)

	res, raw := postJSON(t, srv.URL+"/install/check-db", map[string]any{
		"dbConfig": map[string]any{"type": "sqlite", "path": "check.db"},
	})
	require.Equal(t, http.StatusOK, res.StatusCode, string(raw))
	var out models.CheckDBResponse
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Len(t, out.Tables, len(db.Tables))

	res, _ = postJSON(t, srv.URL+"/install/check-db", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCheckDBRejectedAfterInstall(t *testing.T) {
	_, srv, _ := newTestServer(t)
	res, raw := postJSON(t, srv.URL+"/install", validBody())
	require.Equal(t, http.StatusOK, res.StatusCode, string(raw))

	res, _ = postJSON(t, srv.URL+"/install/check-db", map[string]any{
		"dbConfig": map[string]any{"type": "sqlite", "path": "check.db"},
	})
	assert.Equal(t, http.StatusConflict, res.StatusCode)
}

func TestInstallStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, installStatusCode(nil))
	assert.Equal(t, http.StatusBadRequest, installStatusCode(&installer.ValidationError{Field: "dbConfig"}))
	assert.Equal(t, http.StatusConflict, installStatusCode(installer.ErrAlreadyInstalled))
	assert.Equal(t, http.StatusConflict, installStatusCode(installer.ErrInProgress))
	assert.Equal(t, http.StatusInternalServerError, installStatusCode(&installer.StageError{Stage: installer.StageSeed}))
}
