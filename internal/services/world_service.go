package services

import (
	"context"
	"errors"
	"fmt"

	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

// ErrTileNotFound is returned for tiles no game has created yet
var ErrTileNotFound = errors.New("tile not found")

// WorldService exposes stored tiles for inspection. It reads through the tile
// cache and never creates or populates tiles.
type WorldService struct {
	tiles *world.TileCache
}

// NewWorldService creates a new WorldService
func NewWorldService(tiles *world.TileCache) *WorldService {
	return &WorldService{tiles: tiles}
}

// Grid returns the grid tile ids refer to
func (ws *WorldService) Grid() geo.Grid {
	return ws.tiles.Grid()
}

// GetTile returns a stored tile by id
func (ws *WorldService) GetTile(ctx context.Context, gameID, tileID int64) (*models.TileView, error) {
	t, err := ws.tiles.Load(ctx, gameID, tileID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("tile %d of game %d: %w", tileID, gameID, ErrTileNotFound)
	}
	if err != nil {
		return nil, err
	}
	return t.View(), nil
}

// GetTileAt returns the stored tile containing a point
func (ws *WorldService) GetTileAt(ctx context.Context, gameID int64, lat, lon float64) (*models.TileView, error) {
	if !geo.ValidLatLon(lat, lon) {
		return nil, fmt.Errorf("(%v, %v): %w", lat, lon, models.ErrInvalidLocation)
	}
	return ws.GetTile(ctx, gameID, ws.tiles.Grid().TileID(lat, lon))
}

// TileExists checks if a tile has been stored
func (ws *WorldService) TileExists(ctx context.Context, gameID, tileID int64) bool {
	_, err := ws.tiles.Load(ctx, gameID, tileID)
	return err == nil
}
