package events

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	return conn
}

func TestHub_BroadcastsToSubscribers(t *testing.T) {
	t.Parallel()
	hub, srv := startHub(t)

	a := dial(t, srv)
	defer a.Close()
	b := dial(t, srv)
	defer b.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish("sources.resolved", map[string]any{"streams": 3})

	for _, conn := range []*websocket.Conn{a, b} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev struct {
			ID   string         `json:"id"`
			Type string         `json:"type"`
			Time time.Time      `json:"time"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, "sources.resolved", ev.Type)
		assert.Equal(t, float64(3), ev.Data["streams"])
		assert.False(t, ev.Time.IsZero())
		_, err = uuid.Parse(ev.ID)
		assert.NoError(t, err)
	}
}

func TestHub_UnregistersClosedClients(t *testing.T) {
	t.Parallel()
	hub, srv := startHub(t)

	conn := dial(t, srv)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	t.Parallel()

	// not running: the queue fills and further events are dropped
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastQueue*2; i++ {
			hub.Publish("tick", i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Len(t, hub.broadcast, broadcastQueue)
}

func TestHub_PublishSkipsUnencodable(t *testing.T) {
	t.Parallel()
	hub := NewHub()
	hub.Publish("bad", make(chan int))
	assert.Empty(t, hub.broadcast)
}
