package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"zombierun.dev/internal/game"
	"zombierun.dev/internal/middleware"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/services"
	"zombierun.dev/internal/world"
)

// PlayerHeader carries the acting player's email. Authentication happens in
// front of this server.
const PlayerHeader = "X-Player-Email"

// SetupRoutes configures all routes and returns the router
func SetupRoutes(gs *services.GameService, ws *services.WorldService, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))

	// Initialize handlers
	gameHandler := NewGameHandler(gs, log)
	worldHandler := NewWorldHandler(ws, log)
	socketHandler := NewSocketHandler(gs, log)

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/games", gameHandler.CreateGame)
		r.Route("/games/{gid}", func(r chi.Router) {
			r.Get("/", gameHandler.GetState)
			r.Post("/join", gameHandler.Join)
			r.Post("/update", gameHandler.Update)
			r.Post("/start", gameHandler.Start)
			r.Get("/ws", socketHandler.Serve)

			// Tile inspection
			r.Get("/tiles", worldHandler.GetTileAt)
			r.Get("/tiles/{tid}", worldHandler.GetTile)
			r.Head("/tiles/{tid}", worldHandler.HasTile)
		})

		r.Get("/players/me/game", gameHandler.LastGame)

		// Health check
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("encoding JSON response", zap.Error(err))
	}
}

// respondError writes an error JSON response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a service failure onto a status code. Anything
// unexpected is logged and hidden behind a 500.
func respondServiceError(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidLocation), errors.Is(err, models.ErrDecode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrForbidden), errors.Is(err, services.ErrNotInGame):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrGameNotFound), errors.Is(err, services.ErrTileNotFound),
		errors.Is(err, world.ErrPlayerNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, game.ErrGameExists):
		respondError(w, http.StatusConflict, err.Error())
	default:
		log.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// playerEmail returns the acting player, writing a 401 when there is none
func playerEmail(w http.ResponseWriter, r *http.Request) (string, bool) {
	email := r.Header.Get(PlayerHeader)
	if email == "" {
		respondError(w, http.StatusUnauthorized, "missing "+PlayerHeader+" header")
		return "", false
	}
	return email, true
}

// parseIDParam parses an integer URL parameter, writing a 400 on failure
func parseIDParam(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid "+name)
		return 0, false
	}
	return id, true
}

// parseFloatParam parses a float query parameter with a default value
func parseFloatParam(r *http.Request, name string, defaultVal float64) (float64, error) {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(val, 64)
}

// parseBoolParam reports whether a query flag is set to a true value
func parseBoolParam(r *http.Request, name string) bool {
	b, err := strconv.ParseBool(r.URL.Query().Get(name))
	return err == nil && b
}
