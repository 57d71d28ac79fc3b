package models

import (
	"time"
)

// Alert directions.
const (
	AlertMore = "more"
	AlertLess = "less"
)

// Alert statuses.
const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// ValidAlertType reports whether t is one of the two supported directions.
func ValidAlertType(t string) bool {
	return t == AlertMore || t == AlertLess
}

// Alert represents a price threshold a user set on a coin they hold
type Alert struct {
	ID             int64      `json:"id" db:"id"`
	UserID         string     `json:"user_id" db:"user_id"`
	Name           string     `json:"name" db:"name"`
	Cryptocurrency string     `json:"cryptocurrency" db:"cryptocurrency"`
	AlertType      string     `json:"alert_type" db:"alert_type"`
	Threshold      float64    `json:"threshold" db:"threshold"`
	CreatedAt      *time.Time `json:"created_at,omitempty" db:"created_at"`
	Status         string     `json:"status" db:"status"`
}

// AlertDraft is an alert definition collected from the editor form.
// It only becomes an Alert once the server accepts it.
type AlertDraft struct {
	Name           string  `json:"name"`
	Cryptocurrency string  `json:"cryptocurrency"`
	AlertType      string  `json:"alert_type"`
	Threshold      float64 `json:"threshold"`
}

// Notification is generated when an alert condition is met
type Notification struct {
	ID               int64      `json:"id" db:"id"`
	AlertID          int64      `json:"alert_id" db:"alert_id"`
	NotificationText string     `json:"notification_text" db:"notification_text"`
	CurrentPrice     float64    `json:"current_price" db:"current_price"`
	IsRead           bool       `json:"is_read" db:"is_read"`
	CreatedAt        *time.Time `json:"created_at,omitempty" db:"created_at"`
}

// OwnedCoin identifies a coin the user holds. Abbreviation is the key used
// to namespace editor form fields.
type OwnedCoin struct {
	ID           int64   `json:"id,omitempty"`
	Name         string  `json:"name"`
	Abbreviation string  `json:"abbreviation"`
	Amount       float64 `json:"amount,omitempty"`
}

// Asset is a portfolio position
type Asset struct {
	ID           int64   `json:"id" db:"id"`
	UserID       string  `json:"-" db:"user_id"`
	Name         string  `json:"name" db:"name"`
	Abbreviation string  `json:"abbreviation" db:"abbreviation"`
	Amount       float64 `json:"amount" db:"amount"`
}

// AssetMatch is the shape returned by the asset search endpoint
type AssetMatch struct {
	ID        int64   `json:"id"`
	AssetName string  `json:"asset_name"`
	Amount    float64 `json:"amount"`
}

// PriceUpdate is the standardized price message carried on Kafka
type PriceUpdate struct {
	Exchange  string  `json:"exchange"`
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// NotificationEvent is fanned out to connected clients whenever a
// notification is stored for one of their alerts.
type NotificationEvent struct {
	Type           string `json:"type"`
	UserID         string `json:"user_id"`
	AlertID        int64  `json:"alert_id"`
	NotificationID int64  `json:"notification_id"`
	Timestamp      string `json:"timestamp"`
}
