package database

import (
	"context"
	"database/sql"

	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ListNotifications returns the notifications raised by the user's alerts,
// newest first
func (s *Store) ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error) {
	query := `
		SELECT n.id, n.alert_id, n.notification_text, n.current_price, n.is_read, n.created_at
		FROM notifications n
		JOIN alerts a ON a.id = n.alert_id
		WHERE a.user_id = $1
		ORDER BY n.created_at DESC, n.id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Log.Error("Failed to query notifications",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "select notifications")
	}
	defer rows.Close()

	notifications := make([]*models.Notification, 0)
	for rows.Next() {
		var n models.Notification
		var createdAt sql.NullTime
		if err := rows.Scan(&n.ID, &n.AlertID, &n.NotificationText, &n.CurrentPrice, &n.IsRead, &createdAt); err != nil {
			return nil, errors.Wrap(err, "scan notification")
		}
		n.CreatedAt = nullTimePtr(createdAt)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate notifications")
	}

	return notifications, nil
}

// UnreadCount counts the user's unread notifications
func (s *Store) UnreadCount(ctx context.Context, userID string) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM notifications n
		JOIN alerts a ON a.id = n.alert_id
		WHERE a.user_id = $1 AND NOT n.is_read
	`

	var count int
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, errors.Wrap(err, "count unread notifications")
	}
	return count, nil
}

// MarkNotificationRead flags a notification as read. Marking an already read
// notification succeeds; an unknown id yields ErrNotFound.
func (s *Store) MarkNotificationRead(ctx context.Context, userID string, id int64) error {
	query := `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND alert_id IN (SELECT id FROM alerts WHERE user_id = $2)
	`

	result, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		logger.Log.Error("Failed to mark notification read",
			zap.Int64("notification_id", id),
			zap.Error(err),
		)
		return errors.Wrap(err, "mark notification read")
	}

	return expectAffected(result)
}

// LastUnreadPrice returns the price recorded by the newest unread
// notification of an alert. ok is false when there is none.
func (s *Store) LastUnreadPrice(ctx context.Context, alertID int64) (price float64, ok bool, err error) {
	query := `
		SELECT current_price FROM notifications
		WHERE alert_id = $1 AND NOT is_read
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`

	err = s.db.QueryRowContext(ctx, query, alertID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "select last unread price")
	}
	return price, true, nil
}

// CreateNotification stores a new unread notification
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (alert_id, notification_text, current_price)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`

	var createdAt sql.NullTime
	err := s.db.QueryRowContext(ctx, query, n.AlertID, n.NotificationText, n.CurrentPrice).Scan(&n.ID, &createdAt)
	if err != nil {
		logger.Log.Error("Failed to save notification",
			zap.Int64("alert_id", n.AlertID),
			zap.Error(err),
		)
		return errors.Wrap(err, "insert notification")
	}
	n.CreatedAt = nullTimePtr(createdAt)
	n.IsRead = false

	return nil
}
