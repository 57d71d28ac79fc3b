package database

import (
	"context"
	"database/sql"

	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// AddAsset inserts a portfolio position. An asset with the same name or
// abbreviation yields ErrAlreadyExists.
func (s *Store) AddAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO portfolio (user_id, name, abbreviation, amount)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`

	err := s.db.QueryRowContext(ctx, query, asset.UserID, asset.Name, asset.Abbreviation, asset.Amount).Scan(&asset.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		logger.Log.Error("Failed to add asset",
			zap.String("user_id", asset.UserID),
			zap.String("abbreviation", asset.Abbreviation),
			zap.Error(err),
		)
		return errors.Wrap(err, "insert asset")
	}
	return nil
}

// UpdateAsset sets the amount of a position and, when name is not empty, its
// name.
func (s *Store) UpdateAsset(ctx context.Context, userID string, id int64, name string, amount float64) error {
	query := `
		UPDATE portfolio
		SET amount = $1, name = COALESCE(NULLIF($2, ''), name)
		WHERE id = $3 AND user_id = $4
	`

	result, err := s.db.ExecContext(ctx, query, amount, name, id, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return errors.Wrap(err, "update asset")
	}
	return expectAffected(result)
}

// DeleteAsset removes a position and deactivates the alerts set on its coin.
func (s *Store) DeleteAsset(ctx context.Context, userID string, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin delete asset")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var abbreviation string
	err = tx.QueryRowContext(ctx,
		`DELETE FROM portfolio WHERE id = $1 AND user_id = $2 RETURNING abbreviation`,
		id, userID,
	).Scan(&abbreviation)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return errors.Wrap(err, "delete asset")
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE alerts SET status = 'inactive'
		 WHERE user_id = $1 AND lower(cryptocurrency) = lower($2) AND status = 'active'`,
		userID, abbreviation,
	)
	if err != nil {
		return errors.Wrap(err, "deactivate alerts")
	}
	if n, _ := result.RowsAffected(); n > 0 {
		logger.Log.Warn("Alerts marked inactive due to portfolio change",
			zap.String("user_id", userID),
			zap.String("cryptocurrency", abbreviation),
			zap.Int64("alerts", n),
		)
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit delete asset")
	}
	return nil
}

// SearchAssets returns the user's positions whose name contains query
func (s *Store) SearchAssets(ctx context.Context, userID, query string) ([]models.AssetMatch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, amount FROM portfolio
		 WHERE user_id = $1 AND name ILIKE '%' || $2 || '%'
		 ORDER BY name`,
		userID, query,
	)
	if err != nil {
		return nil, errors.Wrap(err, "search assets")
	}
	defer rows.Close()

	matches := make([]models.AssetMatch, 0)
	for rows.Next() {
		var m models.AssetMatch
		if err := rows.Scan(&m.ID, &m.AssetName, &m.Amount); err != nil {
			return nil, errors.Wrap(err, "scan asset")
		}
		matches = append(matches, m)
	}
	return matches, errors.Wrap(rows.Err(), "iterate assets")
}

// OwnedCoins lists the user's positions in insertion order
func (s *Store) OwnedCoins(ctx context.Context, userID string) ([]models.OwnedCoin, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, abbreviation, amount FROM portfolio WHERE user_id = $1 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "select owned coins")
	}
	defer rows.Close()

	coins := make([]models.OwnedCoin, 0)
	for rows.Next() {
		var c models.OwnedCoin
		if err := rows.Scan(&c.ID, &c.Name, &c.Abbreviation, &c.Amount); err != nil {
			return nil, errors.Wrap(err, "scan owned coin")
		}
		coins = append(coins, c)
	}
	return coins, errors.Wrap(rows.Err(), "iterate owned coins")
}
