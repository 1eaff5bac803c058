package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"zombierun.dev/internal/game"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/services"
	"zombierun.dev/internal/world"
)

const (
	socketReadTimeout  = 60 * time.Second
	socketWriteTimeout = 10 * time.Second
	socketPingInterval = 25 * time.Second
)

var upgrader = websocket.Upgrader{
	// Clients are native apps; origin is not meaningful
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SocketHandler streams updates over a websocket: every position message runs
// one update tick and is answered with the resulting state
type SocketHandler struct {
	gameService *services.GameService
	log         *zap.Logger
}

// NewSocketHandler creates a new SocketHandler
func NewSocketHandler(gs *services.GameService, log *zap.Logger) *SocketHandler {
	return &SocketHandler{gameService: gs, log: log}
}

// socketReply is either a state or an error, never both
type socketReply struct {
	State *models.GameState `json:"state,omitempty"`
	Error string            `json:"error,omitempty"`
}

// Serve handles GET /api/games/{gid}/ws
func (h *SocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	email, ok := playerEmail(w, r)
	if !ok {
		return
	}
	id, ok := parseIDParam(w, r, "gid")
	if !ok {
		return
	}
	debug := parseBoolParam(r, "debug")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.log.With(zap.Int64("game", id), zap.String("email", email))
	log.Debug("socket opened")

	conn.SetReadLimit(1 << 16)
	_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(socketReadTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(socketPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(socketWriteTimeout)); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var pos models.Position
		if err := conn.ReadJSON(&pos); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("socket read failed", zap.Error(err))
			}
			return
		}

		var reply socketReply
		state, err := h.gameService.Update(r.Context(), id, email, pos, debug)
		if err != nil {
			if !isClientError(err) {
				log.Error("socket update failed", zap.Error(err))
			}
			reply.Error = err.Error()
		} else {
			reply.State = state
		}

		_ = conn.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn("socket write failed", zap.Error(err))
			return
		}
	}
}

// isClientError reports whether err was caused by the request rather than
// the server
func isClientError(err error) bool {
	return errors.Is(err, models.ErrInvalidLocation) ||
		errors.Is(err, services.ErrNotInGame) ||
		errors.Is(err, services.ErrForbidden) ||
		errors.Is(err, game.ErrGameNotFound) ||
		errors.Is(err, world.ErrPlayerNotFound)
}
