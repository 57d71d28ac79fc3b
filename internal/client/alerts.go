package client

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"portfolioalerts/internal/models"
)

// AlertUpdate is the body of an alert edit.
type AlertUpdate struct {
	Name      string  `json:"name"`
	Threshold float64 `json:"threshold"`
	AlertType string  `json:"alert_type"`
}

type setAlertResponse struct {
	Message string `json:"message"`
	AlertID int64  `json:"alert_id"`
}

// OwnedCoins fetches the coins the user holds.
func (c *Client) OwnedCoins(ctx context.Context) ([]models.OwnedCoin, error) {
	var coins []models.OwnedCoin
	if err := c.doJSON(ctx, http.MethodGet, "/get-owned-coins", nil, nil, &coins); err != nil {
		return nil, err
	}
	return coins, nil
}

// SetAlert submits one draft and returns the id of the stored alert. Drafts
// that could never be valid are rejected without a request.
func (c *Client) SetAlert(ctx context.Context, draft models.AlertDraft) (int64, error) {
	if strings.TrimSpace(draft.Cryptocurrency) == "" {
		return 0, &ValidationError{Field: "cryptocurrency", Reason: "cryptocurrency is required"}
	}
	if !models.ValidAlertType(draft.AlertType) {
		return 0, &ValidationError{Field: "alert_type", Reason: "alert type must be more or less"}
	}
	if !(draft.Threshold > 0) {
		return 0, &ValidationError{Field: "threshold", Reason: "threshold must be a positive number"}
	}

	var resp setAlertResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/set_alert", nil, draft, &resp); err != nil {
		return 0, err
	}
	return resp.AlertID, nil
}

// ActiveAlerts lists the user's active alerts.
func (c *Client) ActiveAlerts(ctx context.Context) ([]models.Alert, error) {
	var wire []wireAlert
	if err := c.doJSON(ctx, http.MethodGet, "/api/active_alerts", nil, nil, &wire); err != nil {
		return nil, err
	}
	alerts := make([]models.Alert, 0, len(wire))
	for _, w := range wire {
		alerts = append(alerts, w.alert())
	}
	return alerts, nil
}

// Alert fetches one alert.
func (c *Client) Alert(ctx context.Context, id int64) (*models.Alert, error) {
	var w wireAlert
	if err := c.doJSON(ctx, http.MethodGet, alertPath(id), nil, nil, &w); err != nil {
		return nil, err
	}
	alert := w.alert()
	return &alert, nil
}

// UpdateAlert rewrites an alert and returns the server's copy.
func (c *Client) UpdateAlert(ctx context.Context, id int64, update AlertUpdate) (*models.Alert, error) {
	if !models.ValidAlertType(update.AlertType) {
		return nil, &ValidationError{Field: "alert_type", Reason: "alert type must be more or less"}
	}
	if !(update.Threshold > 0) {
		return nil, &ValidationError{Field: "threshold", Reason: "threshold must be a positive number"}
	}

	var w wireAlert
	if err := c.doJSON(ctx, http.MethodPut, alertPath(id), nil, update, &w); err != nil {
		return nil, err
	}
	alert := w.alert()
	return &alert, nil
}

// DeleteAlert removes an alert.
func (c *Client) DeleteAlert(ctx context.Context, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, alertPath(id), nil, nil, nil)
}

func alertPath(id int64) string {
	return "/api/alert/" + strconv.FormatInt(id, 10)
}
