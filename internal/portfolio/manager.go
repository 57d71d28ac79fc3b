// Package portfolio drives the asset actions around the alert screens:
// adding, updating, deleting and searching positions, CSV import and
// logout.
package portfolio

import (
	"context"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolioalerts/internal/client"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/seq"
)

const (
	InvalidAmountMessage = "Please enter a valid amount."
	UnexpectedMessage    = "An unexpected error occurred. Please try again later."
	UpdateErrorMessage   = "Error updating asset."
	DeleteErrorMessage   = "Error deleting asset."
	DeleteConfirmMessage = "Are you sure you want to delete this asset?"
	MinSearchLength      = 2
)

type API interface {
	AddAsset(ctx context.Context, in client.AssetInput) (string, error)
	UpdateAsset(ctx context.Context, in client.AssetInput) (string, error)
	DeleteAsset(ctx context.Context, id int64) (string, error)
	SearchAssets(ctx context.Context, query string) ([]models.AssetMatch, error)
	UploadCSV(ctx context.Context, filename string, r io.Reader) (string, error)
	Logout(ctx context.Context) (message, redirect string, err error)
}

type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

type Manager struct {
	api     API
	confirm Confirmer
	log     *zap.Logger
	search  seq.Guard

	mu      sync.Mutex
	results []models.AssetMatch
}

func New(api API, confirm Confirmer, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{api: api, confirm: confirm, log: log}
}

func parseAmount(raw string) (float64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !d.IsPositive() {
		return 0, &client.ValidationError{Field: "amount", Reason: InvalidAmountMessage}
	}
	f := d.InexactFloat64()
	if f <= 0 || math.IsInf(f, 0) {
		return 0, &client.ValidationError{Field: "amount", Reason: InvalidAmountMessage}
	}
	return f, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// userMessage is the text shown for a failed asset call. Messages the
// server chose to explain are passed through; anything else gets fallback.
func userMessage(err error, fallback string) string {
	var vErr *client.ValidationError
	if errors.As(err, &vErr) {
		return vErr.Reason
	}
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" &&
		(apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusOK) {
		return apiErr.Message
	}
	return fallback
}

// Add creates a position and returns the message to show.
func (m *Manager) Add(ctx context.Context, name, abbreviation, amount string) (string, error) {
	n, err := parseAmount(amount)
	if err != nil {
		return userMessage(err, UnexpectedMessage), err
	}
	in := client.AssetInput{Name: normalize(name), Abbreviation: normalize(abbreviation), Amount: n}
	if in.Name == "" || in.Abbreviation == "" {
		err := &client.ValidationError{Field: "name", Reason: "Please enter a name and an abbreviation."}
		return err.Reason, err
	}

	msg, err := m.api.AddAsset(ctx, in)
	if err != nil {
		m.log.Error("Error adding asset", zap.String("abbreviation", in.Abbreviation), zap.Error(err))
		return userMessage(err, UnexpectedMessage), errors.Wrap(err, "add asset")
	}
	return msg, nil
}

// Update changes the amount of a position and, when name is not blank, its
// name.
func (m *Manager) Update(ctx context.Context, id int64, name, amount string) (string, error) {
	n, err := parseAmount(amount)
	if err != nil {
		return userMessage(err, UnexpectedMessage), err
	}

	msg, err := m.api.UpdateAsset(ctx, client.AssetInput{ID: id, Name: normalize(name), Amount: n})
	if err != nil {
		m.log.Error("Error updating asset", zap.Int64("asset_id", id), zap.Error(err))
		return userMessage(err, UpdateErrorMessage), errors.Wrapf(err, "update asset %d", id)
	}
	return msg, nil
}

// Delete removes a position after confirmation. An empty message with a
// nil error means the user declined.
func (m *Manager) Delete(ctx context.Context, id int64) (string, error) {
	if !m.confirm.Confirm(ctx, DeleteConfirmMessage) {
		return "", nil
	}
	msg, err := m.api.DeleteAsset(ctx, id)
	if err != nil {
		m.log.Error("Error deleting asset", zap.Int64("asset_id", id), zap.Error(err))
		return userMessage(err, DeleteErrorMessage), errors.Wrapf(err, "delete asset %d", id)
	}
	return msg, nil
}

// Search looks positions up by name. Queries shorter than MinSearchLength
// clear the results without a request. Results of a search overtaken by a
// newer one are dropped.
func (m *Manager) Search(ctx context.Context, query string) ([]models.AssetMatch, error) {
	ticket := m.search.Next()
	query = strings.TrimSpace(query)

	if utf8.RuneCountInString(query) < MinSearchLength {
		m.mu.Lock()
		m.results = nil
		m.mu.Unlock()
		return nil, nil
	}

	found, err := m.api.SearchAssets(ctx, query)
	if err != nil {
		m.log.Error("Error searching assets", zap.String("query", query), zap.Error(err))
		return m.Results(), errors.Wrap(err, "search assets")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.search.Current(ticket) {
		m.results = found
	}
	return append([]models.AssetMatch(nil), m.results...), nil
}

func (m *Manager) Results() []models.AssetMatch {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.AssetMatch(nil), m.results...)
}

// UploadCSV sends a portfolio export and returns the server's message.
func (m *Manager) UploadCSV(ctx context.Context, filename string, r io.Reader) (string, error) {
	msg, err := m.api.UploadCSV(ctx, filename, r)
	if err != nil {
		m.log.Error("Error uploading CSV", zap.String("file", filename), zap.Error(err))
		return client.Message(err, UnexpectedMessage), errors.Wrap(err, "upload csv")
	}
	return msg, nil
}

// Logout ends the session and returns where to go next.
func (m *Manager) Logout(ctx context.Context) (message, redirect string, err error) {
	message, redirect, err = m.api.Logout(ctx)
	if err != nil {
		m.log.Error("Error logging out", zap.Error(err))
		return client.Message(err, UnexpectedMessage), "", errors.Wrap(err, "logout")
	}
	return message, redirect, nil
}
