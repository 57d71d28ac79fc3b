package database

import (
	"context"
	"database/sql"
	"time"

	"portfolioalerts/internal/logger"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is the Postgres backed persistence for alerts, notifications and
// portfolio assets.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies the connection.
func Open(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}

	logger.Log.Info("Database connection established")
	return &Store{db: db}, nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS portfolio (
	id           BIGSERIAL PRIMARY KEY,
	user_id      TEXT NOT NULL,
	name         TEXT NOT NULL,
	abbreviation TEXT NOT NULL,
	amount       DOUBLE PRECISION NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS portfolio_user_abbreviation_idx ON portfolio (user_id, lower(abbreviation));
CREATE UNIQUE INDEX IF NOT EXISTS portfolio_user_name_idx ON portfolio (user_id, lower(name));

CREATE TABLE IF NOT EXISTS alerts (
	id             BIGSERIAL PRIMARY KEY,
	user_id        TEXT NOT NULL,
	name           TEXT NOT NULL,
	cryptocurrency TEXT NOT NULL,
	alert_type     TEXT NOT NULL CHECK (alert_type IN ('more', 'less')),
	threshold      DOUBLE PRECISION NOT NULL CHECK (threshold > 0),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	status         TEXT NOT NULL DEFAULT 'active'
);
CREATE UNIQUE INDEX IF NOT EXISTS alerts_active_unique_idx
	ON alerts (user_id, lower(cryptocurrency), alert_type) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS alerts_cryptocurrency_idx ON alerts (lower(cryptocurrency)) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS notifications (
	id                BIGSERIAL PRIMARY KEY,
	alert_id          BIGINT NOT NULL REFERENCES alerts (id) ON DELETE CASCADE,
	created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
	notification_text TEXT NOT NULL,
	current_price     DOUBLE PRECISION NOT NULL,
	is_read           BOOLEAN NOT NULL DEFAULT false
);
CREATE INDEX IF NOT EXISTS notifications_alert_idx ON notifications (alert_id, created_at DESC);
`

// EnsureSchema creates the tables and indexes when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "ensure schema")
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
