package models

import (
	"time"

	"zombierun.dev/internal/geo"
)

// DebugMap lists the bounds of every tile loaded for a request
type DebugMap struct {
	Tiles []TileBounds `json:"tiles"`
}

// TileBounds is a tile rectangle as NE and SW corners
type TileBounds struct {
	NE geo.LatLon `json:"ne"`
	SW geo.LatLon `json:"sw"`
}

// TileView is an operator's view of one stored tile
type TileView struct {
	GameID    int64          `json:"game_id"`
	TileID    int64          `json:"tile_id"`
	NW        geo.LatLon     `json:"nw"`
	SE        geo.LatLon     `json:"se"`
	Players   []PlayerRecord `json:"players"`
	Zombies   []ZombieRecord `json:"zombies"`
	Density   float64        `json:"zombies_per_sq_km"`
	UpdatedAt time.Time      `json:"updated_at"`
}
