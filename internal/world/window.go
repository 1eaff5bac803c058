package world

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
)

// PlayerVisionMeters is the default window radius: what a player can see
const PlayerVisionMeters = 500.0

// maxWindowSteps caps how many rows or columns a window spans on either side
// of its center. Only windows close to a pole reach it.
const maxWindowSteps = 64

// ErrPlayerNotFound is returned when no tier knows where a player is
var ErrPlayerNotFound = errors.New("player not found")

// WindowConfig describes the area a Window loads
type WindowConfig struct {
	GameID     int64
	Center     geo.LatLon
	Radius     float64
	Population Population
	RNG        *RNG
}

// Window is the set of tiles a request works on: every tile near a center
// point plus any tile pulled in to find or place a player. Entities are owned
// by exactly one loaded tile, and moving one updates its tile membership.
type Window struct {
	gameID int64
	center geo.LatLon
	radius float64
	pop    Population
	rng    *RNG

	cache *TileCache
	grid  geo.Grid
	log   *zap.Logger

	tiles map[int64]*GameTile
}

// OpenWindow loads, creating and populating where missing, every tile within
// cfg.Radius of cfg.Center
func OpenWindow(ctx context.Context, cache *TileCache, cfg WindowConfig, log *zap.Logger) (*Window, error) {
	if !geo.ValidLatLon(cfg.Center.Lat, cfg.Center.Lon) {
		return nil, fmt.Errorf("window center %v: %w", cfg.Center, models.ErrInvalidLocation)
	}
	if cfg.Radius <= 0 {
		cfg.Radius = PlayerVisionMeters
	}
	if cfg.RNG == nil {
		cfg.RNG = NewRNG(uint64(cfg.GameID))
	}

	w := &Window{
		gameID: cfg.GameID,
		center: cfg.Center,
		radius: cfg.Radius,
		pop:    cfg.Population,
		rng:    cfg.RNG,
		cache:  cache,
		grid:   cache.Grid(),
		log:    log.With(zap.Int64("game", cfg.GameID)),
		tiles:  make(map[int64]*GameTile),
	}

	lat, lon := cfg.Center.Lat, cfg.Center.Lon
	latSpan, lonSpan := w.grid.LatSpan(), w.grid.LonSpan()

	rowSteps := int64(0)
	for rowSteps < maxWindowSteps && geo.Distance(lat, lon, lat+float64(rowSteps)*latSpan, lon) < cfg.Radius {
		rowSteps++
	}
	colSteps := int64(0)
	for colSteps < maxWindowSteps && geo.Distance(lat, lon, lat, lon+float64(colSteps)*lonSpan) < cfg.Radius {
		colSteps++
	}
	if colSteps == maxWindowSteps {
		w.log.Warn("window clipped near pole", zap.Float64("lat", lat), zap.Float64("radius", cfg.Radius))
	}
	if 2*colSteps+1 > w.grid.Cols() {
		colSteps = w.grid.Cols() / 2
	}

	row, col := w.grid.Row(lat), w.grid.Col(lon)
	for r := row - rowSteps; r <= row+rowSteps; r++ {
		if r < 0 || r >= w.grid.Rows() {
			continue
		}
		for c := col - colSteps; c <= col+colSteps; c++ {
			if _, err := w.tile(ctx, w.grid.TileIDForRowCol(r, c)); err != nil {
				return nil, err
			}
		}
	}

	w.log.Debug("opened window",
		zap.Float64("lat", lat), zap.Float64("lon", lon), zap.Int("tiles", len(w.tiles)))
	return w, nil
}

// tile returns a loaded tile, loading it or creating and populating a new one
func (w *Window) tile(ctx context.Context, id int64) (*GameTile, error) {
	if t, ok := w.tiles[id]; ok {
		return t, nil
	}
	t, err := w.cache.Load(ctx, w.gameID, id)
	if errors.Is(err, store.ErrNotFound) {
		t = NewGameTile(w.grid, w.gameID, id)
		n := t.PopulateZombies(w.pop, w.rng, w.log)
		w.log.Info("created tile", zap.Int64("tile", id), zap.Int("zombies", n))
	} else if err != nil {
		return nil, err
	}
	w.tiles[id] = t
	return t, nil
}

// tileFor returns the tile an entity belongs in by location
func (w *Window) tileFor(ctx context.Context, e models.Locatable) (*GameTile, error) {
	loc, ok := e.Location()
	if !ok {
		return w.tile(ctx, geo.UnlocatedTileID)
	}
	return w.tile(ctx, w.grid.TileID(loc.Lat, loc.Lon))
}

func (w *Window) GameID() int64      { return w.gameID }
func (w *Window) Center() geo.LatLon { return w.center }
func (w *Window) Radius() float64    { return w.radius }

// IsVisible reports whether e is located within the window radius
func (w *Window) IsVisible(e models.Locatable) bool {
	loc, ok := e.Location()
	if !ok {
		return false
	}
	return w.center.DistanceTo(loc) < w.radius
}

// Tiles returns the loaded tiles ordered by id
func (w *Window) Tiles() []*GameTile {
	tiles := make([]*GameTile, 0, len(w.tiles))
	for _, t := range w.tiles {
		tiles = append(tiles, t)
	}
	sortTiles(tiles)
	return tiles
}

// Players returns every player in the loaded tiles
func (w *Window) Players() []*models.Player {
	var players []*models.Player
	for _, t := range w.Tiles() {
		players = append(players, t.players...)
	}
	return players
}

// Zombies returns every zombie in the loaded tiles
func (w *Window) Zombies() []*models.Zombie {
	var zombies []*models.Zombie
	for _, t := range w.Tiles() {
		zombies = append(zombies, t.zombies...)
	}
	return zombies
}

// NumZombies counts the zombies in the loaded tiles
func (w *Window) NumZombies() int {
	n := 0
	for _, t := range w.tiles {
		n += len(t.zombies)
	}
	return n
}

// loadedPlayer finds a player in the loaded tiles
func (w *Window) loadedPlayer(email string) (*models.Player, *GameTile) {
	for _, t := range w.Tiles() {
		if p := t.Player(email); p != nil {
			return p, t
		}
	}
	return nil, nil
}

// GetPlayer finds a player in the loaded tiles, then via the cached player
// index, then by querying the durable store. Tiles found along the way stay
// loaded.
func (w *Window) GetPlayer(ctx context.Context, email string) (*models.Player, error) {
	p, _, err := w.findPlayer(ctx, email)
	return p, err
}

func (w *Window) findPlayer(ctx context.Context, email string) (*models.Player, *GameTile, error) {
	if p, t := w.loadedPlayer(email); p != nil {
		return p, t, nil
	}

	if id, ok := w.cache.PlayerTile(ctx, w.gameID, email); ok {
		if _, loaded := w.tiles[id]; !loaded {
			t, err := w.cache.Load(ctx, w.gameID, id)
			switch {
			case err == nil:
				w.tiles[id] = t
				if p := t.Player(email); p != nil {
					return p, t, nil
				}
			case errors.Is(err, store.ErrNotFound):
			default:
				return nil, nil, err
			}
		}
	}

	t, err := w.cache.FindPlayerTile(ctx, w.gameID, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("%s in game %d: %w", email, w.gameID, ErrPlayerNotFound)
	}
	if err != nil {
		return nil, nil, err
	}
	// a loaded copy is fresher than whatever the durable store returned
	if _, loaded := w.tiles[t.id]; loaded {
		return nil, nil, fmt.Errorf("%s in game %d: %w", email, w.gameID, ErrPlayerNotFound)
	}
	w.tiles[t.id] = t
	return t.Player(email), t, nil
}

// AddPlayer places a new player in the tile matching its location
func (w *Window) AddPlayer(ctx context.Context, p *models.Player) error {
	t, err := w.tileFor(ctx, p)
	if err != nil {
		return err
	}
	t.AddPlayer(p)
	return nil
}

// SetPlayer stores p in the tile matching its location, removing any copy
// held elsewhere. A player changing tiles flushes the window through both
// tiers so no durable tile keeps listing them where they were.
func (w *Window) SetPlayer(ctx context.Context, p *models.Player) error {
	_, from, err := w.findPlayer(ctx, p.Email())
	if err != nil && !errors.Is(err, ErrPlayerNotFound) {
		return err
	}
	to, err := w.tileFor(ctx, p)
	if err != nil {
		return err
	}

	for _, t := range w.tiles {
		if t != to {
			t.RemovePlayer(p.Email())
		}
	}
	to.AddPlayer(p)

	if from == nil || from.id != to.id {
		var fromID int64 = geo.UnlocatedTileID
		if from != nil {
			fromID = from.id
		}
		w.log.Debug("player changed tile",
			zap.String("email", p.Email()), zap.Int64("from", fromID), zap.Int64("to", to.id))
		return w.Put(ctx, true)
	}
	return nil
}

// SetZombie moves z to the tile matching its location
func (w *Window) SetZombie(ctx context.Context, z *models.Zombie) error {
	to, err := w.tileFor(ctx, z)
	if err != nil {
		return err
	}

	var from *GameTile
	for _, t := range w.tiles {
		if t.HasZombie(z.ID()) {
			from = t
			break
		}
	}

	switch {
	case from == nil:
		w.log.Warn("zombie missing from its tile", zap.String("zombie", z.ID()), zap.Int64("tile", to.id))
		to.AddZombie(z)
	case from != to:
		from.RemoveZombie(z.ID())
		to.AddZombie(z)
	default:
		from.SetZombie(z)
	}
	return nil
}

// Put writes every loaded tile through the tile cache
func (w *Window) Put(ctx context.Context, force bool) error {
	return w.cache.Put(ctx, w.Tiles(), force)
}

// DebugMap lists the bounds of every loaded tile with a location
func (w *Window) DebugMap() *models.DebugMap {
	m := &models.DebugMap{Tiles: make([]models.TileBounds, 0, len(w.tiles))}
	for _, t := range w.Tiles() {
		if t.id == geo.UnlocatedTileID {
			continue
		}
		m.Tiles = append(m.Tiles, t.Bounds())
	}
	return m
}
