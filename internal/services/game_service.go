package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"zombierun.dev/internal/game"
	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/world"
)

// GlobalGameID is the game everyone can join without an invitation
const GlobalGameID int64 = 1

var (
	// ErrForbidden is returned when a player acts on a game they do not own
	ErrForbidden = errors.New("forbidden")
	// ErrNotInGame is returned when the acting player has not joined the game
	ErrNotInGame = errors.New("player not in game")
)

// first range new game ids are drawn from; it doubles after each collision
const gameIDRange int64 = 2e16

const maxCreateAttempts = 8

// GameService implements the game use cases on top of the repository
type GameService struct {
	repo *game.Repository
	log  *zap.Logger
}

// NewGameService creates a new GameService
func NewGameService(repo *game.Repository, log *zap.Logger) *GameService {
	return &GameService{repo: repo, log: log}
}

// CreateGame starts a game owned by owner, who joins it immediately
func (s *GameService) CreateGame(ctx context.Context, owner string) (int64, error) {
	span := gameIDRange
	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id := 2 + rand.Int64N(span-1)
		g, err := s.repo.Create(ctx, id, owner, geo.LatLon{})
		if errors.Is(err, game.ErrGameExists) {
			span *= 2
			continue
		}
		if err != nil {
			return 0, err
		}
		if err := s.join(ctx, g, owner); err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, fmt.Errorf("no free game id after %d attempts: %w", maxCreateAttempts, game.ErrGameExists)
}

// JoinGame adds a player to a game. Joining twice is a no-op, and the global
// game is created by whoever joins it first.
func (s *GameService) JoinGame(ctx context.Context, id int64, email string) error {
	var (
		g   *game.Game
		err error
	)
	if id == GlobalGameID {
		g, _, err = s.repo.GetOrCreate(ctx, id, email, geo.LatLon{})
	} else {
		g, err = s.repo.Get(ctx, id, geo.LatLon{})
	}
	if err != nil {
		return err
	}

	_, err = g.GetPlayer(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, world.ErrPlayerNotFound) {
		return err
	}
	return s.join(ctx, g, email)
}

func (s *GameService) join(ctx context.Context, g *game.Game, email string) error {
	p, err := models.NewPlayer(email)
	if err != nil {
		return err
	}
	// a sentinel fortification is placed at the player's first location
	p.Fortify()
	if err := g.AddPlayer(ctx, p); err != nil {
		return err
	}
	if err := g.Put(ctx, true); err != nil {
		return err
	}
	s.log.Info("player joined", zap.Int64("game", g.ID()), zap.String("email", email))
	return nil
}

// GetState runs a tick for the player and returns what they can see from
// viewpoint
func (s *GameService) GetState(ctx context.Context, id int64, email string, viewpoint geo.LatLon, debug bool) (*models.GameState, error) {
	g, _, err := s.load(ctx, id, email, viewpoint)
	if err != nil {
		return nil, err
	}
	return s.tick(ctx, g, email, debug)
}

// Update records the player's new position, fortifying there if asked, then
// runs a tick like GetState
func (s *GameService) Update(ctx context.Context, id int64, email string, pos models.Position, debug bool) (*models.GameState, error) {
	viewpoint := geo.LatLon{Lat: pos.Lat, Lon: pos.Lon}
	g, p, err := s.load(ctx, id, email, viewpoint)
	if err != nil {
		return nil, err
	}
	if err := p.SetLocation(pos.Lat, pos.Lon); err != nil {
		return nil, err
	}
	if pos.Fortify {
		p.Fortify()
	}
	if err := g.SetPlayer(ctx, p); err != nil {
		return nil, err
	}
	return s.tick(ctx, g, email, debug)
}

// Start places the destination. Only the game's owner may start it.
func (s *GameService) Start(ctx context.Context, id int64, email string, dest geo.LatLon) (*models.GameState, error) {
	g, err := s.repo.Get(ctx, id, dest)
	if err != nil {
		return nil, err
	}
	if g.Owner() != email {
		return nil, fmt.Errorf("%s cannot start game %d: %w", email, id, ErrForbidden)
	}
	d, err := models.NewDestination(dest.Lat, dest.Lon)
	if err != nil {
		return nil, err
	}
	g.SetDestination(d)
	if err := g.Put(ctx, true); err != nil {
		return nil, err
	}
	s.log.Info("game started", zap.Int64("game", id), zap.Float64("lat", dest.Lat), zap.Float64("lon", dest.Lon))
	return s.state(ctx, g, email, false)
}

// LastGame returns the game the player was most recently seen in
func (s *GameService) LastGame(ctx context.Context, email string) (int64, error) {
	return s.repo.LastGame(ctx, email)
}

// load opens a game at viewpoint and checks the player has joined it
func (s *GameService) load(ctx context.Context, id int64, email string, viewpoint geo.LatLon) (*game.Game, *models.Player, error) {
	g, err := s.repo.Get(ctx, id, viewpoint)
	if err != nil {
		return nil, nil, err
	}
	p, err := g.GetPlayer(ctx, email)
	if errors.Is(err, world.ErrPlayerNotFound) {
		return nil, nil, fmt.Errorf("%s in game %d: %w", email, id, ErrNotInGame)
	}
	if err != nil {
		return nil, nil, err
	}
	return g, p, nil
}

func (s *GameService) tick(ctx context.Context, g *game.Game, email string, debug bool) (*models.GameState, error) {
	if err := g.Advance(ctx, email); err != nil {
		return nil, err
	}
	if err := g.Put(ctx, false); err != nil {
		return nil, err
	}
	return s.state(ctx, g, email, debug)
}

// state renders the game as seen by email: every loaded player, the visible
// zombies and the destination
func (s *GameService) state(ctx context.Context, g *game.Game, email string, debug bool) (*models.GameState, error) {
	players, err := g.Players(ctx)
	if err != nil {
		return nil, err
	}
	zombies, err := g.Zombies(ctx)
	if err != nil {
		return nil, err
	}

	st := &models.GameState{
		GameID:  g.ID(),
		Owner:   g.Owner(),
		Player:  email,
		Players: make([]models.PlayerRecord, 0, len(players)),
		Zombies: make([]models.ZombieRecord, 0, len(zombies)),
	}
	for _, p := range players {
		st.Players = append(st.Players, p.Record())
	}
	for _, z := range zombies {
		if g.IsVisible(z) {
			st.Zombies = append(st.Zombies, z.Record())
		}
	}
	if d := g.Destination(); d != nil {
		rec := d.Record()
		st.Destination = &rec
	}
	if debug {
		if st.Debug, err = g.DebugMap(ctx); err != nil {
			return nil, err
		}
	}
	return st, nil
}
