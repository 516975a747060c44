package events

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialBroadcaster(t *testing.T, broadcaster *Broadcaster) *websocket.Conn {
	t.Helper()
	router := chi.NewRouter()
	RegisterRoutes(router, broadcaster)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := strings.Replace(server.URL, "http://", "ws://", 1) + "/v1/castbreeze/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, broadcaster *Broadcaster, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for broadcaster.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d", want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestBroadcasterDeliversEvents(t *testing.T) {
	broadcaster := NewBroadcaster()
	defer broadcaster.Close()

	conn := dialBroadcaster(t, broadcaster)
	waitForSubscribers(t, broadcaster, 1)

	broadcaster.Publish("playback.completed", map[string]any{"status": "playing"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	require.NotEmpty(t, event.ID)
	require.Equal(t, "playback.completed", event.Type)
	require.NotEmpty(t, event.Timestamp)
	data := event.Data.(map[string]any)
	require.Equal(t, "playing", data["status"])
}

func TestBroadcasterDropsClosedSubscribers(t *testing.T) {
	broadcaster := NewBroadcaster()
	defer broadcaster.Close()

	conn := dialBroadcaster(t, broadcaster)
	waitForSubscribers(t, broadcaster, 1)

	conn.Close()
	waitForSubscribers(t, broadcaster, 0)

	// publishing into an empty set is a no-op
	broadcaster.Publish("playback.completed", nil)
	require.Equal(t, 0, broadcaster.SubscriberCount())
}

func TestBroadcasterCloseRejectsNewSubscribers(t *testing.T) {
	broadcaster := NewBroadcaster()
	broadcaster.Close()
	require.Equal(t, 0, broadcaster.SubscriberCount())
}
