package alertlist

import (
	"time"

	"github.com/shopspring/decimal"

	"portfolioalerts/internal/models"
)

const (
	EmptyMessage = "No active alerts."
	UnknownDate  = "Unknown date"
	DateLayout   = "Jan 2, 2006, 3:04:05 PM"
)

// Row is one alert as shown in the list.
type Row struct {
	ID             int64
	Name           string
	Cryptocurrency string
	AlertType      string
	Direction      string // Above or Below
	DirectionLong  string // More than or Less than
	Threshold      string
	Created        string
}

// DirectionLabel returns the short and long labels for an alert type.
func DirectionLabel(alertType string) (short, long string) {
	switch alertType {
	case models.AlertMore:
		return "Above", "More than"
	case models.AlertLess:
		return "Below", "Less than"
	}
	return alertType, alertType
}

// FormatCreated renders t in loc, or UnknownDate when there is no time.
func FormatCreated(t *time.Time, loc *time.Location) string {
	if t == nil || t.IsZero() {
		return UnknownDate
	}
	return t.In(loc).Format(DateLayout)
}

func newRow(a models.Alert, loc *time.Location) Row {
	short, long := DirectionLabel(a.AlertType)
	return Row{
		ID:             a.ID,
		Name:           a.Name,
		Cryptocurrency: a.Cryptocurrency,
		AlertType:      a.AlertType,
		Direction:      short,
		DirectionLong:  long,
		Threshold:      decimal.NewFromFloat(a.Threshold).String(),
		Created:        FormatCreated(a.CreatedAt, loc),
	}
}
