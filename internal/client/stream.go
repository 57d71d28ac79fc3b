package client

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"portfolioalerts/internal/models"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	maxStreamBackoff = 30 * time.Second
	// a connection that lasted at least this long resets the backoff
	stableStreamAfter = 10 * time.Second
)

func (c *Client) streamURL() string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + "/notifications/stream"
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// DialStream opens the notification push channel once.
func (c *Client) DialStream(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.userID != "" {
		header.Set(UserHeader, c.userID)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.streamURL(), header)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode}
		}
		return nil, &TransportError{Op: "GET /notifications/stream", Err: err}
	}
	return conn, nil
}

// Listen keeps the push channel open until ctx is done and calls onEvent for
// every event received. Failed dials and connections dropped soon after
// connecting are retried with exponential backoff capped at 30s.
func (c *Client) Listen(ctx context.Context, onEvent func(models.NotificationEvent)) error {
	backoff := c.streamBackoff

	wait := func(reason string, err error) error {
		c.log.Warn(reason, zap.Duration("retry_in", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxStreamBackoff {
			backoff = maxStreamBackoff
		}
		return nil
	}

	for {
		conn, err := c.DialStream(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := wait("Notification stream connection failed", err); err != nil {
				return err
			}
			continue
		}

		c.log.Info("Notification stream connected")
		connectedAt := time.Now()
		c.readStream(ctx, conn, onEvent)

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Since(connectedAt) >= stableStreamAfter {
			backoff = c.streamBackoff
			continue
		}
		if err := wait("Notification stream dropped shortly after connecting", nil); err != nil {
			return err
		}
	}
}

func (c *Client) readStream(ctx context.Context, conn *websocket.Conn, onEvent func(models.NotificationEvent)) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn("Notification stream closed", zap.Error(err))
			}
			return
		}

		var event models.NotificationEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.log.Error("Error parsing notification event", zap.Error(err))
			continue
		}
		onEvent(event)
	}
}
