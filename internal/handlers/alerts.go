package handlers

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"portfolioalerts/internal/database"
	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/tracing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

const activeAlertsEndpoint = "/api/active_alerts"

// CreateAlertRequest mirrors the editor payload. Fields are pointers so a
// missing field can be told apart from a zero value; the threshold accepts
// a JSON number or a numeric string.
type CreateAlertRequest struct {
	Name           *string          `json:"name"`
	Cryptocurrency *string          `json:"cryptocurrency"`
	AlertType      *string          `json:"alert_type"`
	Threshold      *decimal.Decimal `json:"threshold"`
}

type UpdateAlertRequest struct {
	Name      string           `json:"name"`
	Threshold *decimal.Decimal `json:"threshold"`
	AlertType string           `json:"alert_type"`
}

type CreateAlertResponse struct {
	Message string `json:"message"`
	AlertID int64  `json:"alert_id"`
}

// CreateAlertHandler handles creating a new alert
func (s *Server) CreateAlertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "CreateAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	userID := userFromContext(ctx)

	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if field := req.missingField(); field != "" {
		writeError(w, http.StatusBadRequest, "Missing field: "+field)
		return
	}
	if !models.ValidAlertType(*req.AlertType) {
		writeError(w, http.StatusBadRequest, "alert_type must be 'more' or 'less'")
		return
	}
	if !req.Threshold.IsPositive() {
		writeError(w, http.StatusBadRequest, "threshold must be greater than 0")
		return
	}

	alert := &models.Alert{
		UserID:         userID,
		Name:           strings.TrimSpace(*req.Name),
		Cryptocurrency: strings.TrimSpace(*req.Cryptocurrency),
		AlertType:      *req.AlertType,
		Threshold:      req.Threshold.InexactFloat64(),
	}

	if err := s.store.CreateAlert(ctx, alert); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			writeError(w, http.StatusConflict,
				"An active alert already exists for "+alert.Cryptocurrency+" ("+alert.AlertType+")")
			return
		}
		logger.Log.Error("Failed to create alert",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to create alert")
		return
	}

	s.cache.InvalidateByPrefix(ctx, activeAlertsPrefix(userID), activeAlertsEndpoint)

	logger.Log.Info("Alert created",
		zap.String("trace_id", traceID),
		zap.Int64("alert_id", alert.ID),
		zap.String("cryptocurrency", alert.Cryptocurrency),
	)
	writeJSON(w, http.StatusCreated, CreateAlertResponse{
		Message: "Alert set successfully!",
		AlertID: alert.ID,
	})
}

func (req CreateAlertRequest) missingField() string {
	switch {
	case req.Name == nil:
		return "name"
	case req.Cryptocurrency == nil || strings.TrimSpace(*req.Cryptocurrency) == "":
		return "cryptocurrency"
	case req.AlertType == nil:
		return "alert_type"
	case req.Threshold == nil:
		return "threshold"
	}
	return ""
}

// ActiveAlertsHandler lists the user's active alerts, served from cache
// when possible
func (s *Server) ActiveAlertsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "ActiveAlertsHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	userID := userFromContext(ctx)
	cacheKey := activeAlertsPrefix(userID) + "all"

	cached, err := s.cache.Get(ctx, cacheKey, activeAlertsEndpoint)
	if err == nil && cached != "" {
		logger.Log.Debug("Cache hit for active alerts",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
		)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(cached))
		return
	}

	alerts, err := s.store.ListActiveAlerts(ctx, userID)
	if err != nil {
		logger.Log.Error("Failed to fetch alerts",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to fetch alerts")
		return
	}
	if alerts == nil {
		alerts = []*models.Alert{}
	}

	respBytes, err := json.Marshal(alerts)
	if err != nil {
		logger.Log.Error("Failed to encode JSON response",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to encode JSON response")
		return
	}

	if cacheErr := s.cache.Set(ctx, cacheKey, string(respBytes), s.cacheTTL); cacheErr != nil {
		logger.Log.Warn("Failed to store response in cache",
			zap.String("trace_id", traceID),
			zap.String("cache_key", cacheKey),
			zap.Error(cacheErr),
		)
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(respBytes)
}

// GetAlertHandler retrieves a specific alert by ID
func (s *Server) GetAlertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "GetAlertHandler")
	defer span.End()

	alertID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	alert, err := s.store.GetAlert(ctx, userFromContext(ctx), alertID)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			logger.Log.Error("Failed to fetch alert",
				zap.String("trace_id", span.SpanContext().TraceID().String()),
				zap.Int64("alert_id", alertID),
				zap.Error(err),
			)
		}
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	writeJSON(w, http.StatusOK, alert)
}

// UpdateAlertHandler updates the name, threshold and direction of an alert
func (s *Server) UpdateAlertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "UpdateAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	userID := userFromContext(ctx)

	alertID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	existing, err := s.store.GetAlert(ctx, userID, alertID)
	if err != nil {
		logger.Log.Warn("Failed to fetch alert for update",
			zap.String("trace_id", traceID),
			zap.Int64("alert_id", alertID),
			zap.Error(err),
		)
		writeError(w, http.StatusNotFound, "Alert not found")
		return
	}

	var req UpdateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// Update fields if provided
	if name := strings.TrimSpace(req.Name); name != "" {
		existing.Name = name
	}
	if req.AlertType != "" {
		if !models.ValidAlertType(req.AlertType) {
			writeError(w, http.StatusBadRequest, "alert_type must be 'more' or 'less'")
			return
		}
		existing.AlertType = req.AlertType
	}
	if req.Threshold != nil {
		if !req.Threshold.IsPositive() {
			writeError(w, http.StatusBadRequest, "threshold must be greater than 0")
			return
		}
		existing.Threshold = req.Threshold.InexactFloat64()
	}

	if err := s.store.UpdateAlert(ctx, existing); err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			writeError(w, http.StatusNotFound, "Alert not found")
		case errors.Is(err, database.ErrAlreadyExists):
			writeError(w, http.StatusConflict,
				"An active alert already exists for "+existing.Cryptocurrency+" ("+existing.AlertType+")")
		default:
			logger.Log.Error("Failed to update alert",
				zap.String("trace_id", traceID),
				zap.Int64("alert_id", alertID),
				zap.Error(err),
			)
			writeError(w, http.StatusInternalServerError, "Failed to update alert")
		}
		return
	}

	s.cache.InvalidateByPrefix(ctx, activeAlertsPrefix(userID), activeAlertsEndpoint)

	writeJSON(w, http.StatusOK, existing)
}

// DeleteAlertHandler deletes an alert
func (s *Server) DeleteAlertHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "DeleteAlertHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()
	userID := userFromContext(ctx)

	alertID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid alert id")
		return
	}

	if err := s.store.DeleteAlert(ctx, userID, alertID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Alert not found or does not belong to the user")
			return
		}
		logger.Log.Error("Failed to delete alert",
			zap.String("trace_id", traceID),
			zap.Int64("alert_id", alertID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to delete alert")
		return
	}

	s.cache.InvalidateByPrefix(ctx, activeAlertsPrefix(userID), activeAlertsEndpoint)

	writeJSON(w, http.StatusOK, Response{Message: "Alert deleted successfully"})
}

// activeAlertsPrefix namespaces cached alert lists per user without putting
// the raw user id in the key.
func activeAlertsPrefix(userID string) string {
	hash := sha256.Sum256([]byte(userID))
	return "active_alerts_" + hex.EncodeToString(hash[:8]) + "_"
}
