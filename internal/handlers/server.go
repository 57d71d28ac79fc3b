package handlers

import (
	"context"
	"net/http"
	"time"

	"portfolioalerts/internal/models"

	"github.com/go-redis/redis_rate/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the persistence the handlers need. *database.Store satisfies it.
type Store interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, userID string, id int64) (*models.Alert, error)
	ListActiveAlerts(ctx context.Context, userID string) ([]*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	DeleteAlert(ctx context.Context, userID string, id int64) error

	ListNotifications(ctx context.Context, userID string) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID string, id int64) error

	AddAsset(ctx context.Context, asset *models.Asset) error
	UpdateAsset(ctx context.Context, userID string, id int64, name string, amount float64) error
	DeleteAsset(ctx context.Context, userID string, id int64) error
	SearchAssets(ctx context.Context, userID, query string) ([]models.AssetMatch, error)
	OwnedCoins(ctx context.Context, userID string) ([]models.OwnedCoin, error)
}

// ResponseCache caches rendered responses. *cache.Cache satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, key, endpoint string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	InvalidateByPrefix(ctx context.Context, prefix, endpoint string)
}

// StreamServer upgrades a request into a push connection for a user.
type StreamServer interface {
	ServeUser(w http.ResponseWriter, r *http.Request, userID string)
}

type Options struct {
	Instance      string
	Cache         ResponseCache
	CacheTTL      time.Duration
	Limiter       *redis_rate.Limiter
	RatePerMinute int
	Stream        StreamServer
}

// Server serves the portfolio, alert and notification endpoints.
type Server struct {
	store         Store
	cache         ResponseCache
	cacheTTL      time.Duration
	limiter       *redis_rate.Limiter
	ratePerMinute int
	stream        StreamServer
	instance      string
}

func NewServer(store Store, opts Options) *Server {
	s := &Server{
		store:         store,
		cache:         opts.Cache,
		cacheTTL:      opts.CacheTTL,
		limiter:       opts.Limiter,
		ratePerMinute: opts.RatePerMinute,
		stream:        opts.Stream,
		instance:      opts.Instance,
	}
	if s.cache == nil {
		s.cache = noCache{}
	}
	if s.cacheTTL <= 0 {
		s.cacheTTL = 30 * time.Second
	}
	return s
}

// Routes builds the request multiplexer.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())

	s.handle(mux, "GET /get-owned-coins", s.OwnedCoinsHandler)
	s.handle(mux, "POST /add_asset", s.AddAssetHandler)
	s.handle(mux, "POST /update_asset", s.UpdateAssetHandler)
	s.handle(mux, "POST /delete_asset", s.DeleteAssetHandler)
	s.handle(mux, "GET /search_assets", s.SearchAssetsHandler)

	s.handle(mux, "POST /api/set_alert", s.CreateAlertHandler)
	s.handle(mux, "GET /api/active_alerts", s.ActiveAlertsHandler)
	s.handle(mux, "GET /api/alert/{id}", s.GetAlertHandler)
	s.handle(mux, "PUT /api/alert/{id}", s.UpdateAlertHandler)
	s.handle(mux, "DELETE /api/alert/{id}", s.DeleteAlertHandler)

	s.handle(mux, "GET /notifications", s.NotificationsHandler)
	s.handle(mux, "GET /notifications/unread-count", s.UnreadCountHandler)
	s.handle(mux, "POST /notifications/{id}/mark-read", s.MarkReadHandler)
	if s.stream != nil {
		s.handle(mux, "GET /notifications/stream", s.StreamHandler)
	}

	return withRequestID(mux)
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.Handle(pattern, instrument(pattern, s.instance, requireUser(s.rateLimit(h))))
}

// StreamHandler hands the connection to the push hub.
func (s *Server) StreamHandler(w http.ResponseWriter, r *http.Request) {
	s.stream.ServeUser(w, r, userFromContext(r.Context()))
}

type noCache struct{}

func (noCache) Get(context.Context, string, string) (string, error) { return "", nil }

func (noCache) Set(context.Context, string, string, time.Duration) error { return nil }

func (noCache) InvalidateByPrefix(context.Context, string, string) {}
