package client

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap/zaptest"

	"portfolioalerts/internal/models"
	"portfolioalerts/internal/push"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	c, err := New(ts.URL, WithUserID("alice"), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return c
}

func TestNewRequiresAbsoluteURL(t *testing.T) {
	_, err := New("localhost:8081")
	assert.Error(t, err)
	_, err = New("/api")
	assert.Error(t, err)

	c, err := New("http://localhost:8081/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081/api/active_alerts", c.endpoint("/api/active_alerts", nil))
}

func TestUserHeaderIsSent(t *testing.T) {
	var got atomic.String
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get(UserHeader))
		_, _ = w.Write([]byte(`{"unread_count":4}`))
	}))

	n, err := c.UnreadCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "alice", got.Load())
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Alert not found or does not belong to the user"}`))
	}))

	err := c.DeleteAlert(context.Background(), 42)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "Alert not found or does not belong to the user", apiErr.Display("fallback"))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestAPIErrorWithoutBody(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	_, err := c.ActiveAlerts(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "fallback", apiErr.Display("fallback"))
	assert.Equal(t, "fallback", Message(err, "fallback"))
}

func TestTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := New(url)
	require.NoError(t, err)

	_, err = c.Notifications(context.Background())
	var tErr *TransportError
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "GET /notifications", tErr.Op)
	assert.Zero(t, StatusCode(err))
}

func TestEmptySuccessBodyIsAccepted(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	assert.NoError(t, c.MarkRead(context.Background(), 1))
}

func TestSetAlertValidatesBeforeSending(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Inc()
		w.WriteHeader(http.StatusCreated)
	}))

	drafts := []models.AlertDraft{
		{Name: "Bitcoin", Cryptocurrency: "btc", AlertType: "more", Threshold: 0},
		{Name: "Bitcoin", Cryptocurrency: "btc", AlertType: "more", Threshold: -1},
		{Name: "Bitcoin", Cryptocurrency: "btc", AlertType: "up", Threshold: 1},
		{Name: "Bitcoin", Cryptocurrency: " ", AlertType: "more", Threshold: 1},
	}
	for _, d := range drafts {
		_, err := c.SetAlert(context.Background(), d)
		var vErr *ValidationError
		assert.ErrorAs(t, err, &vErr)
	}
	assert.Zero(t, calls.Load())
}

func TestLooseTimestamps(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id":1,"alert_id":1,"notification_text":"a","created_at":"2024-05-01T10:00:00Z"},
			{"id":2,"alert_id":1,"notification_text":"b","created_at":"2024-05-01 10:00:00"},
			{"id":3,"alert_id":1,"notification_text":"c","created_at":"not a date"},
			{"id":4,"alert_id":1,"notification_text":"d","created_at":null},
			{"id":5,"alert_id":1,"notification_text":"e"}
		]`))
	}))

	list, err := c.Notifications(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 5)

	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NotNil(t, list[0].CreatedAt)
	assert.True(t, want.Equal(*list[0].CreatedAt))
	require.NotNil(t, list[1].CreatedAt)
	assert.True(t, want.Equal(*list[1].CreatedAt))
	assert.Nil(t, list[2].CreatedAt)
	assert.Nil(t, list[3].CreatedAt)
	assert.Nil(t, list[4].CreatedAt)
	assert.Equal(t, "c", list[2].NotificationText)
}

func TestAssetEnvelopeFailure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"Asset not found"}`))
	}))

	_, err := c.UpdateAsset(context.Background(), AssetInput{ID: 3, Amount: 1})
	assert.Equal(t, "Asset not found", Message(err, "x"))

	_, err = c.AddAsset(context.Background(), AssetInput{Name: "btc", Abbreviation: "btc"})
	assert.Equal(t, "Please enter a valid amount.", Message(err, "x"))
}

func TestUploadCSVSendsMultipart(t *testing.T) {
	var got atomic.String
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"No file part"}`))
			return
		}
		b, _ := io.ReadAll(f)
		got.Store(hdr.Filename + ":" + string(b))
		_, _ = w.Write([]byte(`{"message":"CSV uploaded successfully"}`))
	}))

	msg, err := c.UploadCSV(context.Background(), "dir/holdings.csv", strings.NewReader("btc,1"))
	require.NoError(t, err)
	assert.Equal(t, "CSV uploaded successfully", msg)
	assert.Equal(t, "holdings.csv:btc,1", got.Load())
}

func TestStreamURL(t *testing.T) {
	c, err := New("https://alerts.example.com/base")
	require.NoError(t, err)
	assert.Equal(t, "wss://alerts.example.com/base/notifications/stream", c.streamURL())

	c, err = New("http://localhost:8081")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8081/notifications/stream", c.streamURL())
}

func TestListenReceivesPushedEvents(t *testing.T) {
	hub := push.NewHub()
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeUser(w, r, r.Header.Get(UserHeader))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := make(chan models.NotificationEvent, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.Listen(ctx, func(ev models.NotificationEvent) { events <- ev })
	}()

	require.Eventually(t, func() bool { return hub.Connections("alice") == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Publish(models.NotificationEvent{Type: "notification", UserID: "alice", AlertID: 3, NotificationID: 8})

	select {
	case ev := <-events:
		assert.Equal(t, int64(8), ev.NotificationID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Listen did not return")
	}
}

func TestListenBacksOffWhenServerDropsConnections(t *testing.T) {
	dials := atomic.NewInt64(0)
	upgrader := websocket.Upgrader{}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		dials.Inc()
		conn.Close()
	}))
	c.streamBackoff = 20 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()

	err := c.Listen(ctx, func(models.NotificationEvent) {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 20ms, 40ms, 80ms, 160ms between dials fit at most five in the window
	assert.GreaterOrEqual(t, dials.Load(), int64(2))
	assert.LessOrEqual(t, dials.Load(), int64(5))
}
