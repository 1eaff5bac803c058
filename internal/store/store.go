// Package store holds the persistence tiers behind the game: a volatile
// shared cache and a durable key-value store, plus the records kept in them.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrCacheMiss is returned by Cache.Get when a key is absent or expired
	ErrCacheMiss = errors.New("cache miss")
	// ErrNotFound is returned by Durable lookups that match nothing
	ErrNotFound = errors.New("not found")
	// ErrCorrupt is returned when a stored record cannot be decoded
	ErrCorrupt = errors.New("corrupt record")
)

// RecordVersion is stamped into every stored record
const RecordVersion = 1

// Cache is a volatile shared cache with best-effort expiry
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetMulti(ctx context.Context, items map[string][]byte) error
}

// Durable is the persistent store. It supports the one query the game needs:
// find the tiles containing a player email, newest first.
type Durable interface {
	GetTile(ctx context.Context, gameID, tileID int64) (*TileRecord, error)
	PutTiles(ctx context.Context, tiles []*TileRecord) error
	FindTileByPlayer(ctx context.Context, gameID int64, email string) (*TileRecord, error)
	LatestTileForPlayer(ctx context.Context, email string) (*TileRecord, error)
	GetGame(ctx context.Context, id int64) (*GameRecord, error)
	PutGame(ctx context.Context, g *GameRecord) error
}

// TileRecord is a stored GameTile. Players and Zombies hold encoded entities;
// PlayerEmails parallels Players for querying.
type TileRecord struct {
	Version      int       `msgpack:"v"`
	GameID       int64     `msgpack:"game_id"`
	TileID       int64     `msgpack:"tile_id"`
	NWLat        float64   `msgpack:"nw_lat"`
	NWLon        float64   `msgpack:"nw_lon"`
	PlayerEmails []string  `msgpack:"player_emails"`
	Players      []string  `msgpack:"players"`
	Zombies      []string  `msgpack:"zombies"`
	UpdatedAt    time.Time `msgpack:"updated_at"`
}

// HasPlayer reports whether email is listed in the tile
func (r *TileRecord) HasPlayer(email string) bool {
	return slices.Contains(r.PlayerEmails, email)
}

// GameRecord is a stored Game
type GameRecord struct {
	Version       int       `msgpack:"v"`
	ID            int64     `msgpack:"id"`
	Owner         string    `msgpack:"owner"`
	Destination   string    `msgpack:"destination,omitempty"`
	ZombieSpeed   float64   `msgpack:"zombie_speed"`
	ZombieDensity float64   `msgpack:"zombie_density"`
	CreatedAt     time.Time `msgpack:"created_at"`
	LastTickAt    time.Time `msgpack:"last_tick_at"`
	UpdatedAt     time.Time `msgpack:"updated_at"`
}

// TileKey names a tile in both tiers
func TileKey(gameID, tileID int64) string {
	return fmt.Sprintf("g%d_gt%d", gameID, tileID)
}

// GameKey names a game in both tiers
func GameKey(id int64) string {
	return fmt.Sprintf("g%d", id)
}

// PlayerTileKey names the cached player-email to tile-id index entry
func PlayerTileKey(gameID int64, email string) string {
	return fmt.Sprintf("g%d_p%s", gameID, email)
}

// EncodeTile serializes a tile record
func EncodeTile(r *TileRecord) ([]byte, error) {
	r.Version = RecordVersion
	return msgpack.Marshal(r)
}

// DecodeTile parses a tile record, wrapping failures in ErrCorrupt
func DecodeTile(b []byte) (*TileRecord, error) {
	var r TileRecord
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: tile: %v", ErrCorrupt, err)
	}
	if r.Version != RecordVersion {
		return nil, fmt.Errorf("%w: tile version %d", ErrCorrupt, r.Version)
	}
	if len(r.PlayerEmails) != len(r.Players) {
		return nil, fmt.Errorf("%w: tile %d lists %d emails for %d players", ErrCorrupt, r.TileID, len(r.PlayerEmails), len(r.Players))
	}
	return &r, nil
}

// EncodeGame serializes a game record
func EncodeGame(g *GameRecord) ([]byte, error) {
	g.Version = RecordVersion
	return msgpack.Marshal(g)
}

// DecodeGame parses a game record, wrapping failures in ErrCorrupt
func DecodeGame(b []byte) (*GameRecord, error) {
	var g GameRecord
	if err := msgpack.Unmarshal(b, &g); err != nil {
		return nil, fmt.Errorf("%w: game: %v", ErrCorrupt, err)
	}
	if g.Version != RecordVersion {
		return nil, fmt.Errorf("%w: game version %d", ErrCorrupt, g.Version)
	}
	return &g, nil
}

// newest picks the most recently updated record
func newest(records []*TileRecord) *TileRecord {
	var best *TileRecord
	for _, r := range records {
		if best == nil || r.UpdatedAt.After(best.UpdatedAt) {
			best = r
		}
	}
	return best
}
