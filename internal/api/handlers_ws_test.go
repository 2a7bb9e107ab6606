package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"piexed/internal/config"
	"piexed/internal/installer"
	"piexed/internal/seed"
	"piexed/internal/ws"
)

func TestProgressWebSocketStreamsRun(t *testing.T) {
	dir := t.TempDir()
	hub := ws.NewHub()
	in := installer.New(installer.Options{
		WorkDir: dir,
		Hub:     hub,
		Seeder:  seed.Loader{Cost: bcrypt.MinCost},
	})
	doc, err := LoadOpenAPI(context.Background())
	require.NoError(t, err)
	srv := httptest.NewServer(New(Dependencies{
		Config:    config.Config{WorkDir: dir},
		Installer: in,
		Hub:       hub,
		OpenAPI:   doc,
	}))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/install/progress/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Second)))

	var snapshot ws.Event
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, ws.EventInstallProgress, snapshot.Type)

	res, raw := postJSON(t, srv.URL+"/install", validBody())
	require.Equal(t, 200, res.StatusCode, string(raw))

	last := -1
	for {
		var evt struct {
			Type    string          `json:"type"`
			Seq     int64           `json:"seq"`
			Payload json.RawMessage `json:"payload"`
		}
		require.NoError(t, conn.ReadJSON(&evt))
		if evt.Type == ws.EventInstallCompleted {
			break
		}
		require.Equal(t, ws.EventInstallProgress, evt.Type)
		var p struct {
			Progress int `json:"progress"`
		}
		require.NoError(t, json.Unmarshal(evt.Payload, &p))
		assert.GreaterOrEqual(t, p.Progress, last)
		last = p.Progress
	}
	assert.Equal(t, 100, last)
}
