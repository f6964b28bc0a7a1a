package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub("https://quran.app/", zerolog.Nop())
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(server.Close)
	return hub, server
}

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "dial websocket")
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg), "read channel message")
	return msg
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount = %d, want %d", hub.ClientCount(), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_BroadcastReachesAllClients(t *testing.T) {
	hub, server := newTestHub(t)

	first := dial(t, server)
	second := dial(t, server)
	waitForClients(t, hub, 2)

	hub.Activated("3.60.0")

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, conn)
		assert.Equal(t, TypeUpdated, msg.Type)
		assert.Equal(t, "3.60.0", msg.Version)
	}
}

func TestHub_LateClientLearnsCurrentVersion(t *testing.T) {
	hub, server := newTestHub(t)

	// Activation happened while no tab was open; delivery of the
	// broadcast is best-effort only.
	hub.Activated("3.60.0")

	// A tab connecting afterwards learns the version on its next load.
	conn := dial(t, server)
	msg := readMessage(t, conn)
	assert.Equal(t, TypeUpdated, msg.Type)
	assert.Equal(t, "3.60.0", msg.Version)
}

func TestHub_SkipWaitingForwarded(t *testing.T) {
	hub, server := newTestHub(t)

	triggered := make(chan struct{}, 1)
	hub.OnSkipWaiting(func() {
		triggered <- struct{}{}
	})

	conn := dial(t, server)
	require.NoError(t, conn.WriteJSON(Message{Type: TypeSkipWaiting}))

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("SKIP_WAITING was not forwarded to the lifecycle callback")
	}
}

func TestHub_RouteNotificationClick_WithClient(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	focused, deepLink := hub.RouteNotificationClick("prayer")
	assert.True(t, focused, "an open tab should be focused")
	assert.Empty(t, deepLink)

	msg := readMessage(t, conn)
	assert.Equal(t, TypeNotificationClick, msg.Type)
	assert.Equal(t, "prayer", msg.Category)
}

func TestHub_RouteNotificationClick_NoClients(t *testing.T) {
	hub, _ := newTestHub(t)

	focused, deepLink := hub.RouteNotificationClick("quran")
	assert.False(t, focused)
	assert.Equal(t, "https://quran.app/?tab=quran", deepLink)
}

func TestHub_ClientCountTracksDisconnects(t *testing.T) {
	hub, server := newTestHub(t)

	conn := dial(t, server)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
