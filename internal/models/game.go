package models

// GameState is the view of a game returned to the acting player
type GameState struct {
	GameID      int64              `json:"game_id"`
	Owner       string             `json:"owner"`
	Player      string             `json:"player"`
	Players     []PlayerRecord     `json:"players"`
	Zombies     []ZombieRecord     `json:"zombies"`
	Destination *DestinationRecord `json:"destination,omitempty"`
	Debug       *DebugMap          `json:"debug,omitempty"`
}

// Position is a client-supplied location report
type Position struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Fortify bool    `json:"fortify,omitempty"`
}
