package client

import (
	"strings"
	"time"

	"portfolioalerts/internal/models"
)

// Layouts accepted for created_at, tried in order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
}

// looseTime decodes any JSON value. Only strings in one of the known
// layouts produce a time; everything else leaves it unset.
type looseTime struct {
	t *time.Time
}

func (lt *looseTime) UnmarshalJSON(b []byte) error {
	lt.t = parseTimestamp(strings.Trim(string(b), `"`))
	return nil
}

func parseTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return nil
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// wireAlert shadows the embedded CreatedAt so an odd timestamp does not
// fail the whole list.
type wireAlert struct {
	models.Alert
	CreatedAt looseTime `json:"created_at"`
}

func (w wireAlert) alert() models.Alert {
	a := w.Alert
	a.CreatedAt = w.CreatedAt.t
	return a
}

type wireNotification struct {
	models.Notification
	CreatedAt looseTime `json:"created_at"`
}

func (w wireNotification) notification() models.Notification {
	n := w.Notification
	n.CreatedAt = w.CreatedAt.t
	return n
}
