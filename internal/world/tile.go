package world

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
)

// Zombie population parameters
const (
	DefaultZombieSpeed          = 3 * 0.447 // 3 mph in m/s
	DefaultZombieDensity        = 20.0      // zombies per km²
	ZombieSpeedVariance         = 0.2
	MinZombieDistanceFromPlayer = 50.0
	MaxZombieClusterSize        = 4
	MaxZombieClusterRadius      = 30.0

	// consecutive rejected cluster centers before population gives up
	maxClusterAttempts = 1000
)

// Population is the zombie density target and base speed of a game
type Population struct {
	Density float64
	Speed   float64
}

// DefaultPopulation returns the standard population settings
func DefaultPopulation() Population {
	return Population{Density: DefaultZombieDensity, Speed: DefaultZombieSpeed}
}

// GameTile is one grid cell of a game and the players and zombies located in
// it. Membership is assigned by the owning Window; a tile never recomputes it.
type GameTile struct {
	gameID int64
	id     int64
	nw, se geo.LatLon

	players []*models.Player
	zombies []*models.Zombie

	// last durable write; zero until saved
	updatedAt time.Time
	saved     bool
}

// NewGameTile creates an empty, unsaved tile
func NewGameTile(grid geo.Grid, gameID, id int64) *GameTile {
	return &GameTile{
		gameID:  gameID,
		id:      id,
		nw:      grid.NWCorner(id),
		se:      grid.SECorner(id),
		players: make([]*models.Player, 0),
		zombies: make([]*models.Zombie, 0),
	}
}

func (t *GameTile) ID() int64            { return t.id }
func (t *GameTile) GameID() int64        { return t.gameID }
func (t *GameTile) NW() geo.LatLon       { return t.nw }
func (t *GameTile) SE() geo.LatLon       { return t.se }
func (t *GameTile) UpdatedAt() time.Time { return t.updatedAt }
func (t *GameTile) Saved() bool          { return t.saved }
func (t *GameTile) NumZombies() int      { return len(t.zombies) }
func (t *GameTile) NumPlayers() int      { return len(t.players) }

// Players returns the tile's players; the slice is a copy, the players are not
func (t *GameTile) Players() []*models.Player {
	return append([]*models.Player(nil), t.players...)
}

// Zombies returns the tile's zombies; the slice is a copy, the zombies are not
func (t *GameTile) Zombies() []*models.Zombie {
	return append([]*models.Zombie(nil), t.zombies...)
}

// Player finds a player by email
func (t *GameTile) Player(email string) *models.Player {
	for _, p := range t.players {
		if p.Email() == email {
			return p
		}
	}
	return nil
}

// HasPlayer reports whether the tile lists email
func (t *GameTile) HasPlayer(email string) bool {
	return t.Player(email) != nil
}

// AddPlayer inserts p, replacing any entry with the same email
func (t *GameTile) AddPlayer(p *models.Player) {
	t.RemovePlayer(p.Email())
	t.players = append(t.players, p)
}

// RemovePlayer drops every entry for email and reports whether one existed
func (t *GameTile) RemovePlayer(email string) bool {
	kept := t.players[:0]
	for _, p := range t.players {
		if p.Email() != email {
			kept = append(kept, p)
		}
	}
	removed := len(kept) != len(t.players)
	clear(t.players[len(kept):])
	t.players = kept
	return removed
}

// Zombie finds a zombie by id
func (t *GameTile) Zombie(id string) *models.Zombie {
	if i := t.zombieIndex(id); i >= 0 {
		return t.zombies[i]
	}
	return nil
}

// HasZombie reports whether the tile holds a zombie with this id
func (t *GameTile) HasZombie(id string) bool {
	return t.zombieIndex(id) >= 0
}

// AddZombie inserts z unless a zombie with the same id is already present
func (t *GameTile) AddZombie(z *models.Zombie) bool {
	if t.HasZombie(z.ID()) {
		return false
	}
	t.zombies = append(t.zombies, z)
	return true
}

// RemoveZombie drops the zombie with id and reports whether it existed
func (t *GameTile) RemoveZombie(id string) bool {
	i := t.zombieIndex(id)
	if i < 0 {
		return false
	}
	t.zombies = append(t.zombies[:i], t.zombies[i+1:]...)
	return true
}

// SetZombie replaces the stored zombie with the same id
func (t *GameTile) SetZombie(z *models.Zombie) bool {
	i := t.zombieIndex(z.ID())
	if i < 0 {
		return false
	}
	t.zombies[i] = z
	return true
}

func (t *GameTile) zombieIndex(id string) int {
	for i, z := range t.zombies {
		if z.ID() == id {
			return i
		}
	}
	return -1
}

// AreaSqKm approximates the tile's area from its NW-to-NE and NW-to-SW edge
// lengths. It treats the cell as a rectangle, which overstates the area of
// cells near the poles.
func (t *GameTile) AreaSqKm() float64 {
	width := geo.Distance(t.nw.Lat, t.nw.Lon, t.nw.Lat, t.se.Lon)
	height := geo.Distance(t.nw.Lat, t.nw.Lon, t.se.Lat, t.nw.Lon)
	return width / 1000 * height / 1000
}

// ZombiesPerSqKm is the tile's current zombie density
func (t *GameTile) ZombiesPerSqKm() float64 {
	area := t.AreaSqKm()
	if area == 0 {
		return math.Inf(1)
	}
	return float64(len(t.zombies)) / area
}

// Contains reports whether a point lies within the tile's bounds
func (t *GameTile) Contains(lat, lon float64) bool {
	if t.id == geo.UnlocatedTileID {
		return false
	}
	return lat <= t.nw.Lat && lat > t.se.Lat && lon >= t.nw.Lon && lon < t.se.Lon
}

// PopulateZombies adds zombie clusters until the tile meets the density
// target. The unlocated tile is never populated. Returns the number added.
func (t *GameTile) PopulateZombies(pop Population, rng *RNG, log *zap.Logger) int {
	if t.id == geo.UnlocatedTileID {
		log.Debug("not populating zombies in the unlocated tile")
		return 0
	}

	added := 0
	for t.ZombiesPerSqKm() < pop.Density {
		size := rng.IntRange(1, MaxZombieClusterSize)
		attempts := 0
		for {
			n, ok := t.addZombieCluster(size, pop.Speed, rng, log)
			if ok {
				added += n
				break
			}
			attempts++
			if attempts >= maxClusterAttempts {
				log.Warn("giving up on zombie population: no room away from players",
					zap.Int64("tile", t.id), zap.Int("zombies", len(t.zombies)))
				return added
			}
		}
	}
	log.Debug("populated zombies", zap.Int64("tile", t.id), zap.Int("added", added))
	return added
}

func (t *GameTile) addZombieCluster(size int, speed float64, rng *RNG, log *zap.Logger) (int, bool) {
	lat := t.nw.Lat - rng.Uniform(0, t.nw.Lat-t.se.Lat)
	lon := t.nw.Lon + rng.Uniform(0, t.se.Lon-t.nw.Lon)

	for _, p := range t.players {
		if p.DistanceToLatLon(lat, lon) < MinZombieDistanceFromPlayer {
			log.Debug("declining zombie cluster near player", zap.Int64("tile", t.id))
			return 0, false
		}
	}

	for i := 0; i < size; i++ {
		zLat, zLon := t.randomPointNear(lat, lon, rng.Uniform(0, MaxZombieClusterRadius), rng)
		z, err := models.NewZombie(uuid.NewString(), speed*(1+rng.Uniform(-ZombieSpeedVariance, ZombieSpeedVariance)))
		if err != nil {
			// speed is only invalid if the game was configured with a non-positive speed
			log.Error("cannot create zombie", zap.Error(err))
			return i, true
		}
		if err := z.SetLocation(zLat, zLon); err != nil {
			log.Error("cannot place zombie", zap.Error(err))
			return i, true
		}
		t.AddZombie(z)
	}
	return size, true
}

// randomPointNear picks a point distance meters from (lat, lon) on a random
// bearing, retrying bearings that leave the tile and falling back to the
// center itself.
func (t *GameTile) randomPointNear(lat, lon, distance float64, rng *RNG) (float64, float64) {
	for i := 0; i < 8; i++ {
		rad := 2 * math.Pi * rng.Float64()
		toLat, toLon := lat+math.Sin(rad), lon+math.Cos(rad)
		magnitude := distance / geo.Distance(lat, lon, toLat, toLon)
		pLat := lat + (toLat-lat)*magnitude
		pLon := lon + (toLon-lon)*magnitude
		if t.Contains(pLat, pLon) {
			return pLat, pLon
		}
	}
	return lat, lon
}

// Bounds returns the tile rectangle as NE/SW corners
func (t *GameTile) Bounds() models.TileBounds {
	return models.TileBounds{
		NE: geo.LatLon{Lat: t.nw.Lat, Lon: t.se.Lon},
		SW: geo.LatLon{Lat: t.se.Lat, Lon: t.nw.Lon},
	}
}

// View renders the tile for operators
func (t *GameTile) View() *models.TileView {
	v := &models.TileView{
		GameID:    t.gameID,
		TileID:    t.id,
		NW:        t.nw,
		SE:        t.se,
		Players:   make([]models.PlayerRecord, 0, len(t.players)),
		Zombies:   make([]models.ZombieRecord, 0, len(t.zombies)),
		UpdatedAt: t.updatedAt,
	}
	if t.id != geo.UnlocatedTileID {
		v.Density = t.ZombiesPerSqKm()
	}
	for _, p := range t.players {
		v.Players = append(v.Players, p.Record())
	}
	for _, z := range t.zombies {
		v.Zombies = append(v.Zombies, z.Record())
	}
	return v
}

// Record encodes the tile for storage
func (t *GameTile) Record() (*store.TileRecord, error) {
	rec := &store.TileRecord{
		GameID:       t.gameID,
		TileID:       t.id,
		NWLat:        t.nw.Lat,
		NWLon:        t.nw.Lon,
		PlayerEmails: make([]string, 0, len(t.players)),
		Players:      make([]string, 0, len(t.players)),
		Zombies:      make([]string, 0, len(t.zombies)),
		UpdatedAt:    t.updatedAt,
	}
	for _, p := range t.players {
		s, err := models.EncodePlayer(p)
		if err != nil {
			return nil, fmt.Errorf("encoding player in tile %d: %w", t.id, err)
		}
		rec.PlayerEmails = append(rec.PlayerEmails, p.Email())
		rec.Players = append(rec.Players, s)
	}
	for _, z := range t.zombies {
		s, err := models.EncodeZombie(z)
		if err != nil {
			return nil, fmt.Errorf("encoding zombie in tile %d: %w", t.id, err)
		}
		rec.Zombies = append(rec.Zombies, s)
	}
	return rec, nil
}

// TileFromRecord decodes a stored tile. Any undecodable entity fails the
// whole tile with models.ErrDecode.
func TileFromRecord(grid geo.Grid, rec *store.TileRecord) (*GameTile, error) {
	t := NewGameTile(grid, rec.GameID, rec.TileID)
	t.updatedAt = rec.UpdatedAt
	t.saved = true
	for _, s := range rec.Players {
		p, err := models.DecodePlayer(s)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", rec.TileID, err)
		}
		t.players = append(t.players, p)
	}
	for _, s := range rec.Zombies {
		z, err := models.DecodeZombie(s)
		if err != nil {
			return nil, fmt.Errorf("tile %d: %w", rec.TileID, err)
		}
		t.zombies = append(t.zombies, z)
	}
	return t, nil
}

func sortTiles(tiles []*GameTile) {
	sort.Slice(tiles, func(i, j int) bool { return tiles[i].id < tiles[j].id })
}
