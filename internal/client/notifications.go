package client

import (
	"context"
	"net/http"
	"strconv"

	"portfolioalerts/internal/models"
)

type unreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// Notifications lists the user's notifications, newest first.
func (c *Client) Notifications(ctx context.Context) ([]models.Notification, error) {
	var wire []wireNotification
	if err := c.doJSON(ctx, http.MethodGet, "/notifications", nil, nil, &wire); err != nil {
		return nil, err
	}
	list := make([]models.Notification, 0, len(wire))
	for _, w := range wire {
		list = append(list, w.notification())
	}
	return list, nil
}

// UnreadCount fetches the number of unread notifications.
func (c *Client) UnreadCount(ctx context.Context) (int, error) {
	var resp unreadCountResponse
	if err := c.doJSON(ctx, http.MethodGet, "/notifications/unread-count", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.UnreadCount, nil
}

// MarkRead flags a notification as read. The acknowledgement body is
// ignored.
func (c *Client) MarkRead(ctx context.Context, id int64) error {
	path := "/notifications/" + strconv.FormatInt(id, 10) + "/mark-read"
	return c.doJSON(ctx, http.MethodPost, path, nil, nil, nil)
}
