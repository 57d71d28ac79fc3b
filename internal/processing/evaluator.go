package processing

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	priceUpdatesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "price_updates_processed_total",
			Help: "Total number of price updates evaluated against alerts",
		},
	)
	notificationsCreatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_created_total",
			Help: "Total number of notifications created",
		},
		[]string{"alert_type"},
	)
)

func init() {
	prometheus.MustRegister(priceUpdatesTotal)
	prometheus.MustRegister(notificationsCreatedTotal)
}

// Store is the slice of persistence alert evaluation needs.
type Store interface {
	ActiveAlertsByCryptocurrency(ctx context.Context, abbreviation string) ([]*models.Alert, error)
	LastUnreadPrice(ctx context.Context, alertID int64) (float64, bool, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Publisher fans an event out to the API instances.
type Publisher interface {
	Publish(ctx context.Context, channel, message string) error
}

// Evaluator turns price updates into notifications.
type Evaluator struct {
	store     Store
	publisher Publisher
	channel   string
	cooldown  time.Duration
	now       func() time.Time

	mu            sync.Mutex
	lastTriggered map[int64]time.Time // alert id -> last notification
}

func NewEvaluator(store Store, publisher Publisher, channel string, cooldown time.Duration) *Evaluator {
	return &Evaluator{
		store:         store,
		publisher:     publisher,
		channel:       channel,
		cooldown:      cooldown,
		now:           time.Now,
		lastTriggered: make(map[int64]time.Time),
	}
}

// CoinFromSymbol maps an exchange product id such as "BTC-USD" to the
// abbreviation alerts are keyed by.
func CoinFromSymbol(symbol string) string {
	base, _, _ := strings.Cut(symbol, "-")
	base, _, _ = strings.Cut(base, "/")
	return strings.ToLower(strings.TrimSpace(base))
}

// ConditionMet reports whether price crosses the alert threshold: strictly
// above for "more", strictly below for "less".
func ConditionMet(alert *models.Alert, price decimal.Decimal) bool {
	threshold := decimal.NewFromFloat(alert.Threshold)
	switch alert.AlertType {
	case models.AlertMore:
		return price.GreaterThan(threshold)
	case models.AlertLess:
		return price.LessThan(threshold)
	}
	return false
}

// NotificationText renders the message stored for a triggered alert.
func NotificationText(alert *models.Alert, price decimal.Decimal) string {
	direction := "below"
	if alert.AlertType == models.AlertMore {
		direction = "above"
	}
	return fmt.Sprintf("%s is now %s %s USD (current price: %s USD).",
		alert.Name, direction, decimal.NewFromFloat(alert.Threshold).String(), price.String())
}

// supersedes reports whether price moved further past the threshold than the
// last unread notification did. Only then is a new notification worth
// storing.
func supersedes(alertType string, price, last decimal.Decimal) bool {
	if alertType == models.AlertMore {
		return price.GreaterThan(last)
	}
	return price.LessThan(last)
}

// Process evaluates one price update and returns the notifications created.
func (e *Evaluator) Process(ctx context.Context, update models.PriceUpdate) ([]*models.Notification, error) {
	priceUpdatesTotal.Inc()

	coin := CoinFromSymbol(update.Symbol)
	if coin == "" {
		return nil, errors.Errorf("price update without symbol: %+v", update)
	}
	price := decimal.NewFromFloat(update.Price)

	alerts, err := e.store.ActiveAlertsByCryptocurrency(ctx, coin)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch alerts for %s", coin)
	}

	var created []*models.Notification
	for _, alert := range alerts {
		if !ConditionMet(alert, price) {
			continue
		}

		if e.coolingDown(alert.ID) {
			logger.Log.Debug("Alert suppressed, cooldown active", zap.Int64("alert_id", alert.ID))
			continue
		}

		last, ok, err := e.store.LastUnreadPrice(ctx, alert.ID)
		if err != nil {
			logger.Log.Error("Failed to read last notification price",
				zap.Int64("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}
		if ok && !supersedes(alert.AlertType, price, decimal.NewFromFloat(last)) {
			continue
		}

		n := &models.Notification{
			AlertID:          alert.ID,
			NotificationText: NotificationText(alert, price),
			CurrentPrice:     update.Price,
		}
		if err := e.store.CreateNotification(ctx, n); err != nil {
			logger.Log.Error("Error processing alert",
				zap.Int64("alert_id", alert.ID),
				zap.Error(err),
			)
			continue
		}

		e.markTriggered(alert.ID)
		notificationsCreatedTotal.WithLabelValues(alert.AlertType).Inc()
		created = append(created, n)

		logger.Log.Info("Notification created",
			zap.Int64("alert_id", alert.ID),
			zap.String("cryptocurrency", alert.Cryptocurrency),
			zap.Float64("price", update.Price),
			zap.Float64("threshold", alert.Threshold),
		)

		e.publish(ctx, alert, n)
	}

	return created, nil
}

func (e *Evaluator) coolingDown(alertID int64) bool {
	if e.cooldown <= 0 {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	last, ok := e.lastTriggered[alertID]
	return ok && e.now().Sub(last) < e.cooldown
}

func (e *Evaluator) markTriggered(alertID int64) {
	e.mu.Lock()
	e.lastTriggered[alertID] = e.now()
	e.mu.Unlock()
}

func (e *Evaluator) publish(ctx context.Context, alert *models.Alert, n *models.Notification) {
	if e.publisher == nil {
		return
	}

	event := models.NotificationEvent{
		Type:           "notification",
		UserID:         alert.UserID,
		AlertID:        alert.ID,
		NotificationID: n.ID,
		Timestamp:      e.now().UTC().Format(time.RFC3339),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		logger.Log.Error("Failed to marshal notification event", zap.Error(err))
		return
	}

	if err := e.publisher.Publish(ctx, e.channel, string(payload)); err != nil {
		logger.Log.Error("Failed to publish notification event",
			zap.Int64("alert_id", alert.ID),
			zap.Error(err),
		)
	}
}
