package database

import (
	"context"
	"database/sql"

	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const alertColumns = `id, user_id, name, cryptocurrency, alert_type, threshold, created_at, status`

// CreateAlert inserts a new active alert and fills in its id, creation time
// and status. A second active alert with the same coin and direction for the
// same user yields ErrAlreadyExists.
func (s *Store) CreateAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		INSERT INTO alerts (user_id, name, cryptocurrency, alert_type, threshold)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, status
	`

	var createdAt sql.NullTime
	err := s.db.QueryRowContext(
		ctx,
		query,
		alert.UserID,
		alert.Name,
		alert.Cryptocurrency,
		alert.AlertType,
		alert.Threshold,
	).Scan(&alert.ID, &createdAt, &alert.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		logger.Log.Error("Failed to create alert in database",
			zap.String("user_id", alert.UserID),
			zap.String("cryptocurrency", alert.Cryptocurrency),
			zap.Error(err),
		)
		return errors.Wrap(err, "insert alert")
	}
	alert.CreatedAt = nullTimePtr(createdAt)

	return nil
}

// GetAlert retrieves one of the user's alerts by id
func (s *Store) GetAlert(ctx context.Context, userID string, id int64) (*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE id = $1 AND user_id = $2`

	alert, err := scanAlert(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		logger.Log.Error("Failed to retrieve alert",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "select alert")
	}

	return alert, nil
}

// ListActiveAlerts returns the user's active alerts, newest first
func (s *Store) ListActiveAlerts(ctx context.Context, userID string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at DESC, id DESC
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		logger.Log.Error("Failed to query alerts by user ID",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "select active alerts")
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// ActiveAlertsByCryptocurrency returns every user's active alerts on a coin.
// The abbreviation is matched case-insensitively.
func (s *Store) ActiveAlertsByCryptocurrency(ctx context.Context, abbreviation string) ([]*models.Alert, error) {
	query := `
		SELECT ` + alertColumns + `
		FROM alerts
		WHERE lower(cryptocurrency) = lower($1) AND status = 'active'
		ORDER BY id
	`

	rows, err := s.db.QueryContext(ctx, query, abbreviation)
	if err != nil {
		logger.Log.Error("Failed to query alerts by cryptocurrency",
			zap.String("cryptocurrency", abbreviation),
			zap.Error(err),
		)
		return nil, errors.Wrap(err, "select alerts by cryptocurrency")
	}
	defer rows.Close()

	return scanAlerts(rows)
}

// UpdateAlert rewrites the editable fields of an existing alert
func (s *Store) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	query := `
		UPDATE alerts
		SET name = $1, threshold = $2, alert_type = $3
		WHERE id = $4 AND user_id = $5
	`

	result, err := s.db.ExecContext(
		ctx,
		query,
		alert.Name,
		alert.Threshold,
		alert.AlertType,
		alert.ID,
		alert.UserID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		logger.Log.Error("Failed to update alert",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err),
		)
		return errors.Wrap(err, "update alert")
	}

	return expectAffected(result)
}

// DeleteAlert deletes one of the user's alerts. Its notifications go with it.
func (s *Store) DeleteAlert(ctx context.Context, userID string, id int64) error {
	query := `DELETE FROM alerts WHERE id = $1 AND user_id = $2`

	result, err := s.db.ExecContext(ctx, query, id, userID)
	if err != nil {
		logger.Log.Error("Failed to delete alert",
			zap.Int64("alert_id", id),
			zap.Error(err),
		)
		return errors.Wrap(err, "delete alert")
	}

	return expectAffected(result)
}

func expectAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var createdAt sql.NullTime

	err := row.Scan(
		&alert.ID,
		&alert.UserID,
		&alert.Name,
		&alert.Cryptocurrency,
		&alert.AlertType,
		&alert.Threshold,
		&createdAt,
		&alert.Status,
	)
	if err != nil {
		return nil, err
	}
	alert.CreatedAt = nullTimePtr(createdAt)

	return &alert, nil
}

// Helper function to scan alert rows
func scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	alerts := make([]*models.Alert, 0)

	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan alert")
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate alerts")
	}

	return alerts, nil
}
