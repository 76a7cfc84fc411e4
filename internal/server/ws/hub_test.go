package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chanBus hands out caller-controlled channels per bus channel name.
type chanBus struct {
	mu    sync.Mutex
	chans map[string]chan []byte
}

func newChanBus() *chanBus {
	return &chanBus{chans: make(map[string]chan []byte)}
}

func (b *chanBus) channel(name string) chan []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.chans[name]; !ok {
		b.chans[name] = make(chan []byte, 16)
	}
	return b.chans[name]
}

func (b *chanBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.channel(channel) <- payload
	return nil
}

func (b *chanBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	return b.channel(channel), nil
}

func dialHub(t *testing.T) (*chanBus, *websocket.Conn) {
	t.Helper()

	bus := newChanBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(bus, logger, Config{Mode: "serve", StartedAt: time.Now()})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return bus, conn
}

func TestHub_StatusAndBroadcast(t *testing.T) {
	bus, conn := dialHub(t)

	// First frame is the status snapshot.
	var status struct {
		Type    string `json:"type"`
		Payload struct {
			Mode        string `json:"mode"`
			WSConnected bool   `json:"ws_connected"`
		} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "server_status", status.Type)
	assert.Equal(t, "serve", status.Payload.Mode)
	assert.True(t, status.Payload.WSConnected)

	// A bus event on a default channel reaches the client verbatim.
	event, _ := json.Marshal(map[string]any{"event": "sale_created", "asset": "gold"})
	bus.channel("sales") <- event

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, string(event), string(got))
}

func TestHub_Unsubscribe(t *testing.T) {
	bus, conn := dialHub(t)

	// Drain the status frame.
	_, _, err := conn.ReadMessage()
	require.NoError(t, err)

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{"sales"}}))
	// Give the read pump a beat to apply the change.
	time.Sleep(50 * time.Millisecond)

	bus.channel("sales") <- []byte(`{"event":"sale_created"}`)
	bus.channel("policy") <- []byte(`{"event":"policy_decision"}`)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)

	// Only the still-subscribed channel's message arrives.
	assert.Contains(t, string(got), "policy_decision")
}
