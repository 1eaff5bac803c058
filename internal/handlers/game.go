package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/services"
)

// GameHandler handles game-related endpoints
type GameHandler struct {
	gameService *services.GameService
	log         *zap.Logger
}

// NewGameHandler creates a new GameHandler
func NewGameHandler(gs *services.GameService, log *zap.Logger) *GameHandler {
	return &GameHandler{gameService: gs, log: log}
}

type gameIDResponse struct {
	GameID int64 `json:"game_id"`
}

// CreateGame handles POST /api/games
func (h *GameHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, err := h.gameService.CreateGame(r.Context(), email)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusCreated, gameIDResponse{GameID: id})
}

// Join handles POST /api/games/{gid}/join
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	if err := h.gameService.JoinGame(r.Context(), id, email); err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, gameIDResponse{GameID: id})
}

// GetState handles GET /api/games/{gid}?lat=&lon=&debug=
func (h *GameHandler) GetState(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "gid")
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

	state, err := h.gameService.GetState(r.Context(), id, email, geo.LatLon{Lat: lat, Lon: lon}, parseBoolParam(r, "debug"))
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// Update handles POST /api/games/{gid}/update
func (h *GameHandler) Update(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	var pos models.Position
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := h.gameService.Update(r.Context(), id, email, pos, parseBoolParam(r, "debug"))
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// Start handles POST /api/games/{gid}/start - places the destination
func (h *GameHandler) Start(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	var dest geo.LatLon
	if err := json.NewDecoder(r.Body).Decode(&dest); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	state, err := h.gameService.Start(r.Context(), id, email, dest)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, state)
}

// LastGame handles GET /api/players/me/game
func (h *GameHandler) LastGame(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, err := h.gameService.LastGame(r.Context(), email)
	if err != nil {
		respondServiceError(w, h.log, err)
		return
	}
	respondJSON(w, http.StatusOK, gameIDResponse{GameID: id})
}
