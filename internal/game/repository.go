package game

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

// Settings are the defaults given to new games and the persistence policy
type Settings struct {
	Population world.Population
	// how stale the durable copy of a game record may get
	Staleness time.Duration
	// seeds zombie placement and meandering; zero seeds from the clock
	Seed uint64
	Now  func() time.Time
}

// Repository loads and creates games through the two storage tiers
type Repository struct {
	fast     store.Cache
	durable  store.Durable
	tiles    *world.TileCache
	settings Settings
	now      func() time.Time
	log      *zap.Logger
}

// NewRepository creates a new game repository
func NewRepository(fast store.Cache, durable store.Durable, tiles *world.TileCache, settings Settings, log *zap.Logger) *Repository {
	if settings.Now == nil {
		settings.Now = time.Now
	}
	if settings.Staleness <= 0 {
		settings.Staleness = world.DefaultDurableStaleness
	}
	if settings.Population.Speed <= 0 {
		settings.Population.Speed = world.DefaultZombieSpeed
	}
	return &Repository{
		fast:     fast,
		durable:  durable,
		tiles:    tiles,
		settings: settings,
		now:      settings.Now,
		log:      log,
	}
}

// Get loads a game and points it at viewpoint
func (r *Repository) Get(ctx context.Context, id int64, viewpoint geo.LatLon) (*Game, error) {
	g, err := r.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.SetViewpoint(viewpoint.Lat, viewpoint.Lon); err != nil {
		return nil, err
	}
	return g, nil
}

// Create makes a new, unsaved game. It is persisted by its first Put.
func (r *Repository) Create(ctx context.Context, id int64, owner string, viewpoint geo.LatLon) (*Game, error) {
	exists, err := r.Exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("game %d: %w", id, ErrGameExists)
	}

	now := r.now()
	g := r.newGame(id, now)
	g.owner = owner
	g.pop = r.settings.Population
	g.createdAt = now
	g.lastTickAt = now
	if err := g.SetViewpoint(viewpoint.Lat, viewpoint.Lon); err != nil {
		return nil, err
	}
	r.log.Info("created game", zap.Int64("game", id), zap.String("owner", owner))
	return g, nil
}

// GetOrCreate loads a game, creating it for owner when it does not exist yet.
// It reports whether the game was created.
func (r *Repository) GetOrCreate(ctx context.Context, id int64, owner string, viewpoint geo.LatLon) (*Game, bool, error) {
	g, err := r.Get(ctx, id, viewpoint)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, ErrGameNotFound) {
		return nil, false, err
	}
	g, err = r.Create(ctx, id, owner, viewpoint)
	if err != nil {
		return nil, false, err
	}
	return g, true, nil
}

// Exists reports whether a game has been stored
func (r *Repository) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := r.load(ctx, id)
	if errors.Is(err, ErrGameNotFound) {
		return false, nil
	}
	return err == nil, err
}

// LastGame returns the game the player was most recently seen in
func (r *Repository) LastGame(ctx context.Context, email string) (int64, error) {
	id, err := r.tiles.LatestGameForPlayer(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return 0, fmt.Errorf("no game for %s: %w", email, ErrGameNotFound)
	}
	return id, err
}

// newGame builds an empty game. Its RNG mixes in the last tick time so each
// request draws a fresh sequence, reproducible from the seed and the clock.
func (r *Repository) newGame(id int64, lastTick time.Time) *Game {
	seed := r.settings.Seed
	if seed == 0 {
		seed = uint64(r.now().UnixNano())
	}
	return &Game{
		id:   id,
		rng:  world.NewRNG(seed ^ uint64(id) ^ uint64(lastTick.UnixNano())),
		repo: r,
		log:  r.log.With(zap.Int64("game", id)),
	}
}

// load reads the game record from the cache, falling back to the durable
// store when it is missing or undecodable
func (r *Repository) load(ctx context.Context, id int64) (*Game, error) {
	key := store.GameKey(id)
	b, err := r.fast.Get(ctx, key)
	switch {
	case err == nil:
		rec, err := store.DecodeGame(b)
		if err == nil {
			var g *Game
			if g, err = r.fromRecord(rec); err == nil {
				return g, nil
			}
		}
		r.log.Warn("discarding undecodable cached game", zap.String("key", key), zap.Error(err))
	case !errors.Is(err, store.ErrCacheMiss):
		r.log.Warn("game cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec, err := r.durable.GetGame(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("game %d: %w", id, ErrGameNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading game %d: %w", id, err)
	}
	g, err := r.fromRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("loading game %d: %w", id, err)
	}
	if b, err := store.EncodeGame(rec); err == nil {
		if err := r.fast.Set(ctx, key, b); err != nil {
			r.log.Warn("game cache refill failed", zap.String("key", key), zap.Error(err))
		}
	}
	return g, nil
}

func (r *Repository) fromRecord(rec *store.GameRecord) (*Game, error) {
	g := r.newGame(rec.ID, rec.LastTickAt)
	g.owner = rec.Owner
	g.pop = world.Population{Density: rec.ZombieDensity, Speed: rec.ZombieSpeed}
	g.createdAt = rec.CreatedAt
	g.lastTickAt = rec.LastTickAt
	g.updatedAt = rec.UpdatedAt
	g.saved = true
	if rec.Destination != "" {
		d, err := models.DecodeDestination(rec.Destination)
		if err != nil {
			return nil, err
		}
		g.destination = d
	}
	return g, nil
}
