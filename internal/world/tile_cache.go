package world

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/store"
)

// DefaultDurableStaleness is how old a durable copy may get before a
// non-forced Put writes through to it again
const DefaultDurableStaleness = 30 * time.Second

// TileCacheConfig tunes a TileCache
type TileCacheConfig struct {
	Grid      geo.Grid
	Staleness time.Duration
	Now       func() time.Time
}

// TileCache reads tiles through the volatile cache into the durable store and
// writes them back, throttling durable writes to once per staleness window.
type TileCache struct {
	fast      store.Cache
	durable   store.Durable
	grid      geo.Grid
	staleness time.Duration
	now       func() time.Time
	log       *zap.Logger
}

// NewTileCache creates a new tile cache over the two tiers
func NewTileCache(fast store.Cache, durable store.Durable, cfg TileCacheConfig, log *zap.Logger) *TileCache {
	if cfg.Staleness <= 0 {
		cfg.Staleness = DefaultDurableStaleness
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Grid.Rows() == 0 {
		cfg.Grid = geo.DefaultGrid
	}
	return &TileCache{
		fast:      fast,
		durable:   durable,
		grid:      cfg.Grid,
		staleness: cfg.Staleness,
		now:       cfg.Now,
		log:       log,
	}
}

// Grid returns the grid tiles are cut from
func (c *TileCache) Grid() geo.Grid {
	return c.grid
}

// Load returns the stored tile, or store.ErrNotFound when neither tier has
// it. An undecodable cached copy is logged and treated as a miss.
func (c *TileCache) Load(ctx context.Context, gameID, tileID int64) (*GameTile, error) {
	key := store.TileKey(gameID, tileID)

	b, err := c.fast.Get(ctx, key)
	switch {
	case err == nil:
		t, err := c.decode(b)
		if err == nil {
			return t, nil
		}
		c.log.Warn("discarding undecodable cached tile", zap.String("key", key), zap.Error(err))
	case !errors.Is(err, store.ErrCacheMiss):
		c.log.Warn("tile cache read failed", zap.String("key", key), zap.Error(err))
	}

	rec, err := c.durable.GetTile(ctx, gameID, tileID)
	if err != nil {
		return nil, fmt.Errorf("loading tile %s: %w", key, err)
	}
	t, err := TileFromRecord(c.grid, rec)
	if err != nil {
		return nil, fmt.Errorf("loading tile %s: %w", key, err)
	}
	c.remember(ctx, rec)
	return t, nil
}

// Put writes tiles and the email-to-tile index of their players to the
// volatile cache, and through to the durable store for tiles that are forced,
// unsaved or stale. Volatile write failures are logged, not returned.
func (c *TileCache) Put(ctx context.Context, tiles []*GameTile, force bool) error {
	now := c.now()

	var (
		durable []*store.TileRecord
		written []*GameTile
	)
	items := make(map[string][]byte, len(tiles))
	for _, t := range tiles {
		writeThrough := force || !t.saved || now.Sub(t.updatedAt) > c.staleness
		rec, err := t.Record()
		if err != nil {
			return err
		}
		if writeThrough {
			rec.UpdatedAt = now
			durable = append(durable, rec)
			written = append(written, t)
		}
		b, err := store.EncodeTile(rec)
		if err != nil {
			return fmt.Errorf("encoding tile %d: %w", t.id, err)
		}
		items[store.TileKey(t.gameID, t.id)] = b
		for _, p := range t.players {
			items[store.PlayerTileKey(t.gameID, p.Email())] = []byte(strconv.FormatInt(t.id, 10))
		}
	}

	if len(durable) > 0 {
		if err := c.durable.PutTiles(ctx, durable); err != nil {
			return fmt.Errorf("writing %d tiles: %w", len(durable), err)
		}
		for _, t := range written {
			t.updatedAt = now
			t.saved = true
		}
		c.log.Debug("wrote tiles through", zap.Int("tiles", len(durable)), zap.Bool("force", force))
	}

	if err := c.fast.SetMulti(ctx, items); err != nil {
		c.log.Warn("tile cache write failed", zap.Int("items", len(items)), zap.Error(err))
	}
	return nil
}

// PlayerTile looks up the cached tile id for a player
func (c *TileCache) PlayerTile(ctx context.Context, gameID int64, email string) (int64, bool) {
	b, err := c.fast.Get(ctx, store.PlayerTileKey(gameID, email))
	if err != nil {
		return 0, false
	}
	id, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		c.log.Warn("discarding bad player index entry", zap.String("email", email), zap.Error(err))
		return 0, false
	}
	return id, true
}

// FindPlayerTile asks the durable store for the newest tile listing email
func (c *TileCache) FindPlayerTile(ctx context.Context, gameID int64, email string) (*GameTile, error) {
	rec, err := c.durable.FindTileByPlayer(ctx, gameID, email)
	if err != nil {
		return nil, err
	}
	t, err := TileFromRecord(c.grid, rec)
	if err != nil {
		return nil, err
	}
	c.remember(ctx, rec)
	return t, nil
}

// LatestGameForPlayer returns the game of the newest tile listing email
func (c *TileCache) LatestGameForPlayer(ctx context.Context, email string) (int64, error) {
	rec, err := c.durable.LatestTileForPlayer(ctx, email)
	if err != nil {
		return 0, err
	}
	return rec.GameID, nil
}

func (c *TileCache) decode(b []byte) (*GameTile, error) {
	rec, err := store.DecodeTile(b)
	if err != nil {
		return nil, err
	}
	return TileFromRecord(c.grid, rec)
}

// remember repopulates the volatile tier after a durable read
func (c *TileCache) remember(ctx context.Context, rec *store.TileRecord) {
	b, err := store.EncodeTile(rec)
	if err == nil {
		err = c.fast.Set(ctx, store.TileKey(rec.GameID, rec.TileID), b)
	}
	if err != nil {
		c.log.Warn("tile cache refill failed", zap.Int64("tile", rec.TileID), zap.Error(err))
	}
}
