package handlers

import (
	"net/http"

	"portfolioalerts/internal/database"
	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/tracing"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

// NotificationsHandler lists the user's notifications, newest first
func (s *Server) NotificationsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "NotificationsHandler")
	defer span.End()

	notifications, err := s.store.ListNotifications(ctx, userFromContext(ctx))
	if err != nil {
		logger.Log.Error("Failed to fetch notifications",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to fetch notifications")
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}

	writeJSON(w, http.StatusOK, notifications)
}

// UnreadCountHandler reports how many notifications are still unread
func (s *Server) UnreadCountHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	count, err := s.store.UnreadCount(ctx, userFromContext(ctx))
	if err != nil {
		logger.Log.Error("Failed to count unread notifications",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to count notifications")
		return
	}

	writeJSON(w, http.StatusOK, UnreadCountResponse{UnreadCount: count})
}

// MarkReadHandler flags a notification as read. Repeating the call is a
// successful no-op.
func (s *Server) MarkReadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer(tracing.TracerName)
	ctx, span := tracer.Start(ctx, "MarkReadHandler")
	defer span.End()

	notificationID, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "Invalid notification id")
		return
	}

	if err := s.store.MarkNotificationRead(ctx, userFromContext(ctx), notificationID); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Notification not found")
			return
		}
		logger.Log.Error("Failed to mark notification read",
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.Int64("notification_id", notificationID),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to mark notification read")
		return
	}

	writeJSON(w, http.StatusOK, Response{Message: "Notification marked as read."})
}
