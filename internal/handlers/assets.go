package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"portfolioalerts/internal/database"
	"portfolioalerts/internal/logger"
	"portfolioalerts/internal/models"
	"portfolioalerts/internal/tracing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type AssetRequest struct {
	ID           flexID           `json:"id"`
	Name         string           `json:"name"`
	Abbreviation string           `json:"abbreviation"`
	Amount       *decimal.Decimal `json:"amount"`
}

// AssetResponse is the success/message envelope the portfolio endpoints use.
type AssetResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

type SearchAssetsResponse struct {
	Assets []models.AssetMatch `json:"assets"`
}

// flexID accepts an id posted either as a JSON number or as a string, the
// asset forms send both.
type flexID int64

func (id *flexID) UnmarshalJSON(b []byte) error {
	raw := strings.Trim(string(b), `"`)
	if raw == "" || raw == "null" {
		*id = 0
		return nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return errors.Wrap(err, "invalid id")
	}
	*id = flexID(v)
	return nil
}

func writeAssetError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, AssetResponse{Success: false, Error: message, Message: message})
}

// OwnedCoinsHandler lists the coins the user holds
func (s *Server) OwnedCoinsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	coins, err := s.store.OwnedCoins(ctx, userFromContext(ctx))
	if err != nil {
		logger.Log.Error("Error fetching owned coins",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.String("trace_id", tracing.TraceID(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to fetch owned coins")
		return
	}
	if coins == nil {
		coins = []models.OwnedCoin{}
	}

	writeJSON(w, http.StatusOK, coins)
}

// AddAssetHandler adds a position. Name and abbreviation are stored trimmed
// and lowercased.
func (s *Server) AddAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAssetError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}

	asset := &models.Asset{
		UserID:       userFromContext(ctx),
		Name:         strings.ToLower(strings.TrimSpace(req.Name)),
		Abbreviation: strings.ToLower(strings.TrimSpace(req.Abbreviation)),
	}
	if asset.Name == "" || asset.Abbreviation == "" {
		writeAssetError(w, http.StatusBadRequest, "Name and abbreviation are required")
		return
	}
	if req.Amount == nil || !req.Amount.IsPositive() {
		writeAssetError(w, http.StatusBadRequest, "Please enter a valid amount.")
		return
	}
	asset.Amount = req.Amount.InexactFloat64()

	if err := s.store.AddAsset(ctx, asset); err != nil {
		if errors.Is(err, database.ErrAlreadyExists) {
			logger.Log.Warn("Asset already exists",
				zap.String("abbreviation", asset.Abbreviation),
			)
			writeAssetError(w, http.StatusBadRequest, "Asset already exists!")
			return
		}
		logger.Log.Error("Error while adding asset",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		writeAssetError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	writeJSON(w, http.StatusOK, AssetResponse{Success: true, Message: "Asset added successfully"})
}

// UpdateAssetHandler changes the amount (and optionally the name) of a
// position
func (s *Server) UpdateAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 || req.Amount == nil {
		writeAssetError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}
	if !req.Amount.IsPositive() {
		writeAssetError(w, http.StatusBadRequest, "Please enter a valid amount.")
		return
	}

	name := strings.ToLower(strings.TrimSpace(req.Name))
	err := s.store.UpdateAsset(ctx, userFromContext(ctx), int64(req.ID), name, req.Amount.InexactFloat64())
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, AssetResponse{Success: true, Message: "Asset updated successfully"})
	case errors.Is(err, database.ErrNotFound):
		writeAssetError(w, http.StatusNotFound, "Asset not found")
	case errors.Is(err, database.ErrAlreadyExists):
		writeAssetError(w, http.StatusBadRequest, "Asset already exists!")
	default:
		logger.Log.Error("Error in update_asset",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		writeAssetError(w, http.StatusInternalServerError, "Database error occurred")
	}
}

// DeleteAssetHandler removes a position; alerts on that coin become inactive
func (s *Server) DeleteAssetHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := userFromContext(ctx)

	var req AssetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID <= 0 {
		writeAssetError(w, http.StatusBadRequest, "Invalid data provided")
		return
	}

	err := s.store.DeleteAsset(ctx, userID, int64(req.ID))
	switch {
	case err == nil:
		s.cache.InvalidateByPrefix(ctx, activeAlertsPrefix(userID), activeAlertsEndpoint)
		writeJSON(w, http.StatusOK, AssetResponse{Success: true, Message: "Asset deleted successfully"})
	case errors.Is(err, database.ErrNotFound):
		writeAssetError(w, http.StatusNotFound, "Asset not found")
	default:
		logger.Log.Error("Error in delete_asset",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		writeAssetError(w, http.StatusInternalServerError, "Database error occurred")
	}
}

// SearchAssetsHandler finds positions whose name contains the query
func (s *Server) SearchAssetsHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeJSON(w, http.StatusOK, SearchAssetsResponse{Assets: []models.AssetMatch{}})
		return
	}

	assets, err := s.store.SearchAssets(ctx, userFromContext(ctx), query)
	if err != nil {
		logger.Log.Error("Failed to search assets",
			zap.String("request_id", requestIDFromContext(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "Failed to search assets")
		return
	}
	if assets == nil {
		assets = []models.AssetMatch{}
	}

	writeJSON(w, http.StatusOK, SearchAssetsResponse{Assets: assets})
}
