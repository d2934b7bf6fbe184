package events

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dvloznov/statement-converter/internal/session"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, hub *Hub) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.URL.Query().Get("session"), map[string]string{"type": "hello"})
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	return conn
}

func TestHubDeliversToSessionClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	url := newHubServer(t, hub)

	a := dial(t, url+"?session=s1")
	defer a.Close()
	b := dial(t, url+"?session=s2")
	defer b.Close()

	var hello map[string]string
	require.NoError(t, a.ReadJSON(&hello))
	assert.Equal(t, "hello", hello["type"])
	require.NoError(t, b.ReadJSON(&hello))

	require.Eventually(t, func() bool { return hub.Clients("s1") == 1 && hub.Clients("s2") == 1 },
		time.Second, 5*time.Millisecond)

	hub.Publish(session.Update{Kind: session.UpdateState, SessionID: "s1", State: session.StateProcessing})

	var got session.Update
	require.NoError(t, a.ReadJSON(&got))
	assert.Equal(t, session.UpdateState, got.Kind)
	assert.Equal(t, session.StateProcessing, got.State)

	// s2 only sees its own updates.
	hub.Publish(session.Update{Kind: session.UpdateState, SessionID: "s2", State: session.StateSuccess})
	require.NoError(t, b.ReadJSON(&got))
	assert.Equal(t, "s2", got.SessionID)
}

func TestHubRemovesDisconnectedClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	url := newHubServer(t, hub)

	conn := dial(t, url+"?session=s1")
	require.Eventually(t, func() bool { return hub.Clients("s1") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool { return hub.Clients("s1") == 0 }, 2*time.Second, 5*time.Millisecond)
	// Publishing to a session without clients is a no-op.
	hub.Publish(session.Update{SessionID: "s1"})
}
