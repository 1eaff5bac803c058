// Package game holds the Game aggregate: one game's window of tiles around a
// viewpoint, the tick that moves its zombies, and its persistence.
package game

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

// MaxTickSeconds bounds how far zombies move in one tick, however long the
// game sat idle
const MaxTickSeconds = 600.0

var (
	ErrGameNotFound = errors.New("game not found")
	ErrGameExists   = errors.New("game already exists")
)

// Game is one game as seen from a viewpoint. A Game is built per request and
// is not safe for concurrent use.
type Game struct {
	id          int64
	owner       string
	destination *models.Destination
	pop         world.Population

	createdAt  time.Time
	lastTickAt time.Time
	// last durable write of the game record
	updatedAt time.Time
	saved     bool

	viewpoint geo.LatLon
	window    *world.Window
	rng       *world.RNG

	repo *Repository
	log  *zap.Logger
}

func (g *Game) ID() int64                        { return g.id }
func (g *Game) Owner() string                    { return g.owner }
func (g *Game) Destination() *models.Destination { return g.destination }
func (g *Game) Population() world.Population     { return g.pop }
func (g *Game) CreatedAt() time.Time             { return g.createdAt }
func (g *Game) LastTickAt() time.Time            { return g.lastTickAt }
func (g *Game) Viewpoint() geo.LatLon            { return g.viewpoint }

// SetDestination places the game's goal; nil clears it
func (g *Game) SetDestination(d *models.Destination) {
	g.destination = d
}

// SetViewpoint moves the center of the game's window. Tiles loaded for the
// old viewpoint are dropped, so call it before touching the game.
func (g *Game) SetViewpoint(lat, lon float64) error {
	if !geo.ValidLatLon(lat, lon) {
		return fmt.Errorf("viewpoint (%v, %v): %w", lat, lon, models.ErrInvalidLocation)
	}
	v := geo.LatLon{Lat: lat, Lon: lon}
	if v != g.viewpoint {
		g.viewpoint = v
		g.window = nil
	}
	return nil
}

// Window returns the tiles around the viewpoint, loading them on first use
func (g *Game) Window(ctx context.Context) (*world.Window, error) {
	if g.window != nil {
		return g.window, nil
	}
	w, err := world.OpenWindow(ctx, g.repo.tiles, world.WindowConfig{
		GameID:     g.id,
		Center:     g.viewpoint,
		Radius:     world.PlayerVisionMeters,
		Population: g.pop,
		RNG:        g.rng,
	}, g.log)
	if err != nil {
		return nil, fmt.Errorf("opening window for game %d: %w", g.id, err)
	}
	g.window = w
	return w, nil
}

// IsVisible reports whether e is within sight of the viewpoint
func (g *Game) IsVisible(e models.Locatable) bool {
	loc, ok := e.Location()
	if !ok {
		return false
	}
	return g.viewpoint.DistanceTo(loc) < world.PlayerVisionMeters
}

// Players returns every player in the loaded tiles
func (g *Game) Players(ctx context.Context) ([]*models.Player, error) {
	w, err := g.Window(ctx)
	if err != nil {
		return nil, err
	}
	return w.Players(), nil
}

// Zombies returns every zombie in the loaded tiles
func (g *Game) Zombies(ctx context.Context) ([]*models.Zombie, error) {
	w, err := g.Window(ctx)
	if err != nil {
		return nil, err
	}
	return w.Zombies(), nil
}

// GetPlayer finds a player anywhere in the game
func (g *Game) GetPlayer(ctx context.Context, email string) (*models.Player, error) {
	w, err := g.Window(ctx)
	if err != nil {
		return nil, err
	}
	return w.GetPlayer(ctx, email)
}

// AddPlayer places a new player in the game
func (g *Game) AddPlayer(ctx context.Context, p *models.Player) error {
	w, err := g.Window(ctx)
	if err != nil {
		return err
	}
	return w.AddPlayer(ctx, p)
}

// SetPlayer stores a changed player
func (g *Game) SetPlayer(ctx context.Context, p *models.Player) error {
	w, err := g.Window(ctx)
	if err != nil {
		return err
	}
	return w.SetPlayer(ctx, p)
}

// VisibleEntities returns the zombies, players and destination within sight
func (g *Game) VisibleEntities(ctx context.Context) ([]models.Trigger, error) {
	w, err := g.Window(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Trigger
	for _, z := range w.Zombies() {
		if g.IsVisible(z) {
			out = append(out, z)
		}
	}
	for _, p := range w.Players() {
		if g.IsVisible(p) {
			out = append(out, p)
		}
	}
	if g.destination != nil && g.IsVisible(g.destination) {
		out = append(out, g.destination)
	}
	return out, nil
}

// playersInPlay are the visible players zombies may still chase
func (g *Game) playersInPlay(w *world.Window) []*models.Player {
	var out []*models.Player
	for _, p := range w.Players() {
		if g.IsVisible(p) && !p.HasReachedDestination() && !p.IsInfected() {
			out = append(out, p)
		}
	}
	return out
}

// fortifications are the located fortifications of players in play plus the
// destination
func (g *Game) fortifications(inPlay []*models.Player) []models.Locatable {
	var out []models.Locatable
	for _, p := range inPlay {
		if f := p.Fortification(); f != nil && f.HasLocation() {
			out = append(out, f)
		}
	}
	if g.destination != nil && g.destination.HasLocation() {
		out = append(out, g.destination)
	}
	return out
}

// infectors are the zombies and zombie players that can infect on contact
func (g *Game) infectors(w *world.Window) []models.Trigger {
	var out []models.Trigger
	for _, z := range w.Zombies() {
		out = append(out, z)
	}
	for _, p := range w.Players() {
		if p.IsZombie() {
			out = append(out, p)
		}
	}
	return out
}

// Advance runs one tick for the player with email: it advances every visible
// entity's state, moves the zombies for the time since the last tick and
// fires the triggers around that player. Nothing is persisted beyond what
// tile changes force; call Put afterwards.
func (g *Game) Advance(ctx context.Context, email string) error {
	w, err := g.Window(ctx)
	if err != nil {
		return err
	}

	now := g.repo.now()
	elapsed := now.Sub(g.lastTickAt).Seconds()
	seconds := math.Min(math.Max(elapsed, 0), MaxTickSeconds)

	visible, err := g.VisibleEntities(ctx)
	if err != nil {
		return err
	}
	for _, e := range visible {
		if p, ok := e.(*models.Player); ok {
			p.Invalidate(now)
		}
	}
	for _, p := range w.Players() {
		if err := w.SetPlayer(ctx, p); err != nil {
			return err
		}
	}
	for _, z := range w.Zombies() {
		if err := w.SetZombie(ctx, z); err != nil {
			return err
		}
	}

	inPlay := g.playersInPlay(w)
	forts := g.fortifications(inPlay)
	zombies := w.Zombies()
	for _, z := range zombies {
		if err := advanceZombie(z, seconds, inPlay, forts, g.rng); err != nil {
			g.log.Warn("zombie stopped at the edge of the map", zap.String("zombie", z.ID()), zap.Error(err))
		}
	}
	for _, z := range zombies {
		if err := w.SetZombie(ctx, z); err != nil {
			return err
		}
	}
	g.lastTickAt = now

	p, err := w.GetPlayer(ctx, email)
	if err != nil {
		return err
	}
	if !p.HasLocation() {
		return nil
	}
	g.trigger(w, p, now)
	return w.SetPlayer(ctx, p)
}

// trigger fires everything within reach of p. The destination goes first, and
// a player who has reached it is no longer caught by zombies.
func (g *Game) trigger(w *world.Window, p *models.Player, now time.Time) {
	if d := g.destination; d != nil && d.HasLocation() && p.DistanceTo(d) < models.TriggerDistanceMeters {
		if models.ApplyTrigger(d.Trigger(), p, now) {
			g.log.Info("player reached destination", zap.String("email", p.Email()))
		}
	}
	if p.HasReachedDestination() {
		return
	}
	for _, t := range g.infectors(w) {
		if other, ok := t.(*models.Player); ok && other.Email() == p.Email() {
			continue
		}
		if p.DistanceTo(t) < models.TriggerDistanceMeters && models.ApplyTrigger(t.Trigger(), p, now) {
			g.log.Info("player infected", zap.String("email", p.Email()))
		}
	}
}

// Put writes the game's tiles and record. Durable writes happen when forced,
// on first save, and once the durable copy is older than the staleness bound.
func (g *Game) Put(ctx context.Context, force bool) error {
	force = force || !g.saved
	w, err := g.Window(ctx)
	if err != nil {
		return err
	}
	if err := w.Put(ctx, force); err != nil {
		return err
	}

	now := g.repo.now()
	rec, err := g.record()
	if err != nil {
		return err
	}
	if force || now.Sub(g.updatedAt) > g.repo.settings.Staleness {
		rec.UpdatedAt = now
		if err := g.repo.durable.PutGame(ctx, rec); err != nil {
			return fmt.Errorf("writing game %d: %w", g.id, err)
		}
		g.updatedAt = now
		g.saved = true
	}

	b, err := store.EncodeGame(rec)
	if err != nil {
		return fmt.Errorf("encoding game %d: %w", g.id, err)
	}
	if err := g.repo.fast.Set(ctx, store.GameKey(g.id), b); err != nil {
		g.log.Warn("game cache write failed", zap.Error(err))
	}
	return nil
}

// DebugMap lists the bounds of the loaded tiles
func (g *Game) DebugMap(ctx context.Context) (*models.DebugMap, error) {
	w, err := g.Window(ctx)
	if err != nil {
		return nil, err
	}
	return w.DebugMap(), nil
}

func (g *Game) record() (*store.GameRecord, error) {
	rec := &store.GameRecord{
		ID:            g.id,
		Owner:         g.owner,
		ZombieSpeed:   g.pop.Speed,
		ZombieDensity: g.pop.Density,
		CreatedAt:     g.createdAt,
		LastTickAt:    g.lastTickAt,
		UpdatedAt:     g.updatedAt,
	}
	if g.destination != nil {
		s, err := models.EncodeDestination(g.destination)
		if err != nil {
			return nil, fmt.Errorf("encoding destination of game %d: %w", g.id, err)
		}
		rec.Destination = s
	}
	return rec, nil
}
