package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"piexed/internal/ws"
)

// handleProgressWS streams progress events. The current snapshot is sent
// first so a client that connects mid-run starts from the right step;
// ?afterSeq= replays what a reconnecting client missed.
func (s *server) handleProgressWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()

	s.metrics.IncProgressConnections()
	defer s.metrics.DecProgressConnections()

	var afterSeq int64
	if raw := r.URL.Query().Get("afterSeq"); raw != "" {
		if v, err := strconv.ParseInt(raw, 10, 64); err == nil && v > 0 {
			afterSeq = v
		}
	}

	client, first := s.hub.Subscribe(afterSeq, &ws.Event{
		Type:    ws.EventInstallProgress,
		Payload: s.installer.Progress().Get(),
	})
	defer s.hub.Unsubscribe(client)

	conn.SetReadLimit(4 * 1024)
	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	write := func(data []byte) error {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	for _, msg := range first {
		if err := write(msg.Data); err != nil {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-done:
			return
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			if err := write(msg.Data); err != nil {
				return
			}
		}
	}
}
