// Package editor holds the state of the alert editor: the owned coins of
// the open session, the search filter, and the per-coin direction and
// threshold inputs that become alert drafts on save.
package editor

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolioalerts/internal/client"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/seq"
)

const (
	SaveSuccessMessage = "Alerts set successfully!"
	SaveFailureMessage = "Failed to set alerts."
	NothingToSave      = "No alerts to set."
)

var ErrClosed = errors.New("editor is not open")

// API is the subset of the alerts client the editor talks to.
type API interface {
	OwnedCoins(ctx context.Context) ([]models.OwnedCoin, error)
	SetAlert(ctx context.Context, draft models.AlertDraft) (int64, error)
}

// SaveResult reports how a batch submission went.
type SaveResult struct {
	Message   string
	Submitted []int64
	Failed    *models.AlertDraft
}

type Editor struct {
	api   API
	log   *zap.Logger
	guard seq.Guard

	mu      sync.Mutex
	session *session
}

func New(api API, log *zap.Logger) *Editor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Editor{api: api, log: log}
}

// Open starts a session with the user's owned coins. A failed fetch is
// logged and leaves an empty session, so the returned forms are empty
// rather than stale.
func (e *Editor) Open(ctx context.Context) ([]CoinForm, error) {
	ticket := e.guard.Next()

	e.mu.Lock()
	e.session = &session{inputs: make(map[string]*input)}
	e.mu.Unlock()

	coins, err := e.api.OwnedCoins(ctx)
	if err != nil {
		e.log.Error("Error fetching owned coins", zap.Error(err))
		return nil, errors.Wrap(err, "fetch owned coins")
	}

	if !e.guard.Current(ticket) {
		e.log.Debug("Discarding stale owned coins response")
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.session == nil {
			return nil, ErrClosed
		}
		return e.session.render(), nil
	}

	s, rejected := newSession(coins)
	for _, c := range rejected {
		e.log.Warn("Skipping coin with missing or duplicate abbreviation",
			zap.String("name", c.Name), zap.String("abbreviation", c.Abbreviation))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		// closed while the fetch was in flight
		return nil, ErrClosed
	}
	e.session = s
	return s.render(), nil
}

// Close drops the session and everything typed into it.
func (e *Editor) Close() {
	e.guard.Invalidate()
	e.mu.Lock()
	e.session = nil
	e.mu.Unlock()
}

func (e *Editor) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// Search re-renders the coin list filtered by query.
func (e *Editor) Search(query string) []CoinForm {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	e.session.query = query
	return e.session.render()
}

// Forms returns the current rendering without changing the filter.
func (e *Editor) Forms() []CoinForm {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	return e.session.render()
}

// Select picks the direction for a coin. Picking one direction clears the
// other since both radios share a group.
func (e *Editor) Select(abbreviation, direction string) error {
	if !models.ValidAlertType(direction) {
		return &client.ValidationError{Field: "alert_type", Reason: fmt.Sprintf("unknown direction %q", direction)}
	}
	return e.withCoin(abbreviation, func(in *input) { in.direction = direction })
}

// SetValue stores the raw threshold text for a coin.
func (e *Editor) SetValue(abbreviation, raw string) error {
	return e.withCoin(abbreviation, func(in *input) { in.value = raw })
}

func (e *Editor) withCoin(abbreviation string, fn func(*input)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ErrClosed
	}
	if _, ok := e.session.find(abbreviation); !ok {
		return errors.Errorf("no owned coin %q", abbreviation)
	}
	fn(e.session.inputFor(abbreviation))
	return nil
}

// Drafts collects a draft for every coin that has both a direction and a
// value. A value that is not a positive number fails the whole batch.
func (e *Editor) Drafts() ([]models.AlertDraft, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, ErrClosed
	}

	var drafts []models.AlertDraft
	for _, c := range e.session.coins {
		in, ok := e.session.inputs[c.Abbreviation]
		if !ok || in.direction == "" {
			continue
		}
		raw := strings.TrimSpace(in.value)
		if raw == "" {
			continue
		}
		threshold, err := parseThreshold(raw)
		if err != nil {
			return nil, &client.ValidationError{
				Field:  ValueID(c.Abbreviation),
				Reason: fmt.Sprintf("Threshold for %s must be a number greater than 0.", c.Name),
			}
		}
		drafts = append(drafts, models.AlertDraft{
			Name:           c.Name,
			Cryptocurrency: c.Abbreviation,
			AlertType:      in.direction,
			Threshold:      threshold,
		})
	}
	return drafts, nil
}

func parseThreshold(raw string) (float64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, errors.New("threshold must be positive")
	}
	// the wire carries a float64, so values that underflow to zero or
	// overflow to infinity are rejected here rather than mid-batch
	f := d.InexactFloat64()
	if f <= 0 || math.IsInf(f, 0) {
		return 0, errors.New("threshold out of range")
	}
	return f, nil
}

// Save sends the drafts one at a time and stops at the first failure.
// Alerts already accepted before the failure stay on the server.
func (e *Editor) Save(ctx context.Context) (SaveResult, error) {
	drafts, err := e.Drafts()
	if err != nil {
		return SaveResult{Message: client.Message(err, SaveFailureMessage)}, err
	}
	if len(drafts) == 0 {
		return SaveResult{Message: NothingToSave}, nil
	}

	var res SaveResult
	for i := range drafts {
		id, err := e.api.SetAlert(ctx, drafts[i])
		if err != nil {
			e.log.Error("Error setting alert",
				zap.String("cryptocurrency", drafts[i].Cryptocurrency),
				zap.String("alert_type", drafts[i].AlertType),
				zap.Error(err))
			res.Message = SaveFailureMessage
			res.Failed = &drafts[i]
			return res, errors.Wrapf(err, "set alert for %s", drafts[i].Cryptocurrency)
		}
		res.Submitted = append(res.Submitted, id)
	}
	res.Message = SaveSuccessMessage
	return res, nil
}
