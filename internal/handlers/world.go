package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"zombierun.dev/internal/services"
)

// WorldHandler handles tile inspection endpoints
type WorldHandler struct {
	worldService *services.WorldService
	log          *zap.Logger
}

// NewWorldHandler creates a new WorldHandler
func NewWorldHandler(ws *services.WorldService, log *zap.Logger) *WorldHandler {
	return &WorldHandler{worldService: ws, log: log}
}

// GetTile handles GET /api/games/{gid}/tiles/{tid} - returns a stored tile
func (h *WorldHandler) GetTile(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	tileID, ok := parseIDParam(w, r, "tid")
	if !ok {
		return
	}

	tile, err := h.worldService.GetTile(r.Context(), gameID, tileID)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, tile)
}

// GetTileAt handles GET /api/games/{gid}/tiles?lat=&lon= - returns the tile
// containing a point
func (h *WorldHandler) GetTileAt(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	lat, err := parseFloatParam(r, "lat", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lat")
		return
	}
	lon, err := parseFloatParam(r, "lon", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid lon")
		return
	}

	tile, err := h.worldService.GetTileAt(r.Context(), gameID, lat, lon)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, tile)
}

// HasTile handles HEAD /api/games/{gid}/tiles/{tid}
func (h *WorldHandler) HasTile(w http.ResponseWriter, r *http.Request) {
	gameID, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	tileID, ok := parseIDParam(w, r, "tid")
	if !ok {
		return
	}
	if !h.worldService.TileExists(r.Context(), gameID, tileID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
}
