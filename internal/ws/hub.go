// Package ws fans installer events out to websocket clients.
package ws

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventInstallProgress  = "install.progress"
	EventInstallCompleted = "install.completed"
	EventInstallFailed    = "install.failed"

	// replayLimit covers a full run several times over; a run emits fewer
	// than ten events.
	replayLimit = 256
	clientQueue = 64
)

type Event struct {
	Type    string `json:"type"`
	Ts      string `json:"ts"`
	Seq     int64  `json:"seq"`
	Payload any    `json:"payload,omitempty"`
}

// Message is an encoded Event ready to be written to a connection.
type Message struct {
	Seq  int64
	Type string
	Data []byte
}

type Hub struct {
	mu      sync.Mutex
	clients map[*Client]struct{}
	seq     int64
	replay  []Message
}

type Client struct {
	send chan Message
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]struct{})}
}

func (c *Client) Messages() <-chan Message {
	return c.send
}

// Subscribe registers a client. The returned messages come first, in order:
// an optional snapshot stamped with the current sequence, then any retained
// events newer than afterSeq. Nothing published after the call is lost or
// delivered twice.
func (h *Hub) Subscribe(afterSeq int64, snapshot *Event) (*Client, []Message) {
	c := &Client{send: make(chan Message, clientQueue)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}

	var first []Message
	if snapshot != nil {
		evt := *snapshot
		evt.Seq = h.seq
		if msg, ok := encode(evt); ok {
			first = append(first, msg)
		}
	}
	if afterSeq > 0 {
		for _, msg := range h.replay {
			if msg.Seq > afterSeq {
				first = append(first, msg)
			}
		}
	}
	return c, first
}

func (h *Hub) Unsubscribe(c *Client) {
	if h == nil || c == nil {
		return
	}
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish stamps evt and delivers it to every client. A client whose queue
// is full misses the event; it can reconnect with its last seen sequence.
func (h *Hub) Publish(evt Event) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	evt.Seq = h.seq
	msg, ok := encode(evt)
	if !ok {
		return
	}

	h.replay = append(h.replay, msg)
	if len(h.replay) > replayLimit {
		h.replay = h.replay[len(h.replay)-replayLimit:]
	}
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

func encode(evt Event) (Message, bool) {
	if evt.Ts == "" {
		evt.Ts = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return Message{}, false
	}
	return Message{Seq: evt.Seq, Type: evt.Type, Data: data}, true
}
