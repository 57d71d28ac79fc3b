package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolioalerts/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeUser(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(ts.Close)
	return hub, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url, user string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"?user="+user, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) models.NotificationEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	var ev models.NotificationEvent
	require.NoError(t, json.Unmarshal(msg, &ev))
	return ev
}

func TestPublishReachesOnlyOwner(t *testing.T) {
	hub, url := startHub(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")

	require.Eventually(t, func() bool {
		return hub.Connections("alice") == 1 && hub.Connections("bob") == 1
	}, 2*time.Second, 10*time.Millisecond)

	n := hub.Publish(models.NotificationEvent{Type: "notification", UserID: "alice", AlertID: 4, NotificationID: 9})
	assert.Equal(t, 1, n)

	ev := readEvent(t, alice)
	assert.Equal(t, int64(9), ev.NotificationID)
	assert.Equal(t, int64(4), ev.AlertID)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err)
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url, "alice")

	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return hub.Connections("alice") == 0 }, 2*time.Second, 10*time.Millisecond)

	assert.Zero(t, hub.Publish(models.NotificationEvent{UserID: "alice"}))
}

// chanSubscriber feeds queued payloads to Run.
type chanSubscriber chan string

func (c chanSubscriber) ReceiveMessage(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case msg := <-c:
		return msg, nil
	}
}

func TestRunForwardsSubscribedEvents(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, url, "alice")
	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, 2*time.Second, 10*time.Millisecond)

	sub := make(chanSubscriber, 2)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(ctx, sub)
	}()

	sub <- "not json"
	sub <- `{"type":"notification","user_id":"alice","alert_id":1,"notification_id":2}`

	ev := readEvent(t, conn)
	assert.Equal(t, int64(2), ev.NotificationID)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type closedSubscriber struct{ calls int }

func (c *closedSubscriber) ReceiveMessage(context.Context) (string, error) {
	c.calls++
	return "", redis.ErrClosed
}

func TestRunReturnsWhenSubscriptionClosed(t *testing.T) {
	hub := NewHub()
	sub := &closedSubscriber{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Run(context.Background(), sub)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run kept retrying a closed subscription")
	}
	assert.Equal(t, 1, sub.calls)
}
