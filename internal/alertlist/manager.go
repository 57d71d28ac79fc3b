// Package alertlist manages the list of active alerts: loading and
// rendering rows, deleting after confirmation and editing in place.
package alertlist

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolioalerts/internal/client"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/seq"
)

const (
	DeleteConfirmMessage = "Are you sure you want to delete this alert?"
	DeleteErrorMessage   = "Error deleting alert."
	LoadErrorMessage     = "Error loading alerts."
	UpdateErrorMessage   = "Error updating alert."
)

type API interface {
	ActiveAlerts(ctx context.Context) ([]models.Alert, error)
	Alert(ctx context.Context, id int64) (*models.Alert, error)
	UpdateAlert(ctx context.Context, id int64, update client.AlertUpdate) (*models.Alert, error)
	DeleteAlert(ctx context.Context, id int64) error
}

// Confirmer asks the user a yes/no question and blocks for the answer.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// Alerter shows a blocking message to the user.
type Alerter interface {
	Alert(message string)
}

// State is what the list currently shows. Exactly one of Rows, Empty or
// Err describes it.
type State struct {
	Rows  []Row
	Empty string
	Err   string
}

// EditForm is the pre-filled form for one alert.
type EditForm struct {
	ID        int64
	Name      string
	AlertType string
	Threshold string
}

type Option func(*Manager)

// WithLocation sets the zone creation times are shown in. Defaults to
// time.Local.
func WithLocation(loc *time.Location) Option {
	return func(m *Manager) { m.loc = loc }
}

type Manager struct {
	api     API
	confirm Confirmer
	alert   Alerter
	log     *zap.Logger
	loc     *time.Location
	guard   seq.Guard

	mu    sync.Mutex
	state State
}

func New(api API, confirm Confirmer, alert Alerter, log *zap.Logger, opts ...Option) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	m := &Manager{api: api, confirm: confirm, alert: alert, log: log, loc: time.Local}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load fetches the active alerts and replaces the list. A failure becomes
// a visible error in the returned state.
func (m *Manager) Load(ctx context.Context) State {
	ticket := m.guard.Next()
	alerts, err := m.api.ActiveAlerts(ctx)

	var next State
	if err != nil {
		m.log.Error("Error fetching active alerts", zap.Error(err))
		next.Err = client.Message(err, LoadErrorMessage)
	} else if len(alerts) == 0 {
		next.Empty = EmptyMessage
	} else {
		next.Rows = make([]Row, 0, len(alerts))
		for _, a := range alerts {
			next.Rows = append(next.Rows, newRow(a, m.loc))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.guard.Current(ticket) {
		return m.state
	}
	m.state = next
	return next
}

// State returns the last rendered list.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Delete removes an alert once the user confirms, then reloads the list.
// It reports whether a delete request succeeded. On failure the user is
// told and the current list is left as it is.
func (m *Manager) Delete(ctx context.Context, id int64) (bool, error) {
	if !m.confirm.Confirm(ctx, DeleteConfirmMessage) {
		return false, nil
	}

	if err := m.api.DeleteAlert(ctx, id); err != nil {
		m.log.Error("Error deleting alert", zap.Int64("alert_id", id), zap.Error(err))
		m.alert.Alert(DeleteErrorMessage)
		return false, errors.Wrapf(err, "delete alert %d", id)
	}

	m.Load(ctx)
	return true, nil
}

// BeginEdit fetches an alert and returns a form filled with its values.
func (m *Manager) BeginEdit(ctx context.Context, id int64) (*EditForm, error) {
	a, err := m.api.Alert(ctx, id)
	if err != nil {
		m.log.Error("Error fetching alert", zap.Int64("alert_id", id), zap.Error(err))
		return nil, errors.Wrapf(err, "fetch alert %d", id)
	}
	return &EditForm{
		ID:        a.ID,
		Name:      a.Name,
		AlertType: a.AlertType,
		Threshold: decimal.NewFromFloat(a.Threshold).String(),
	}, nil
}

// SubmitEdit validates and saves the form, then reloads the list.
func (m *Manager) SubmitEdit(ctx context.Context, form EditForm) error {
	threshold, err := decimal.NewFromString(form.Threshold)
	if err != nil || !threshold.IsPositive() {
		return &client.ValidationError{
			Field:  "threshold",
			Reason: "Please enter a valid threshold greater than 0.",
		}
	}
	if !models.ValidAlertType(form.AlertType) {
		return &client.ValidationError{
			Field:  "alert_type",
			Reason: fmt.Sprintf("Unknown alert type %q.", form.AlertType),
		}
	}

	update := client.AlertUpdate{
		Name:      form.Name,
		Threshold: threshold.InexactFloat64(),
		AlertType: form.AlertType,
	}
	if _, err := m.api.UpdateAlert(ctx, form.ID, update); err != nil {
		m.log.Error("Error updating alert", zap.Int64("alert_id", form.ID), zap.Error(err))
		m.alert.Alert(client.Message(err, UpdateErrorMessage))
		return errors.Wrapf(err, "update alert %d", form.ID)
	}

	m.Load(ctx)
	return nil
}
