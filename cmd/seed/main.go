package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"zombierun.dev/internal/config"
	"zombierun.dev/internal/game"
	"zombierun.dev/internal/geo"
	"zombierun.dev/internal/models"
	"zombierun.dev/internal/services"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

const defaultOwner = "seed@zombierun.dev"

func main() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: seed <output-dir> <lat> <lon> [owner-email]")
		fmt.Println("Creates a game in the configured store with its owner at lat/lon and")
		fmt.Println("writes every populated tile around them to <output-dir>/tiles.")
		os.Exit(1)
	}

	outputDir := os.Args[1]
	lat, err := strconv.ParseFloat(os.Args[2], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid lat %q: %v\n", os.Args[2], err)
		os.Exit(1)
	}
	lon, err := strconv.ParseFloat(os.Args[3], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid lon %q: %v\n", os.Args[3], err)
		os.Exit(1)
	}
	owner := defaultOwner
	if len(os.Args) > 4 {
		owner = os.Args[4]
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	log, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Ensure output directory exists
	tilesDir := filepath.Join(outputDir, "tiles")
	if err := os.MkdirAll(tilesDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	durable, err := store.OpenBolt(cfg.DataPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	defer durable.Close()

	fast := store.NewMemoryCache(cfg.CacheTTL)
	tiles := world.NewTileCache(fast, durable, world.TileCacheConfig{Staleness: cfg.Game.DurableStaleness}, log)
	repo := game.NewRepository(fast, durable, tiles, game.Settings{
		Population: world.Population{Density: cfg.Game.ZombieDensity, Speed: cfg.Game.ZombieSpeed},
		Staleness:  cfg.Game.DurableStaleness,
		Seed:       cfg.Game.Seed,
	}, log)
	gs := services.NewGameService(repo, log)

	ctx := context.Background()
	id, err := gs.CreateGame(ctx, owner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create game: %v\n", err)
		os.Exit(1)
	}
	if _, err := gs.Update(ctx, id, owner, models.Position{Lat: lat, Lon: lon}, false); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to place %s: %v\n", owner, err)
		os.Exit(1)
	}
	fmt.Printf("Created game %d owned by %s at (%f, %f)\n", id, owner, lat, lon)

	g, err := repo.Get(ctx, id, geo.LatLon{Lat: lat, Lon: lon})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to reload game: %v\n", err)
		os.Exit(1)
	}
	w, err := g.Window(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open window: %v\n", err)
		os.Exit(1)
	}
	if err := g.Put(ctx, true); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save game: %v\n", err)
		os.Exit(1)
	}

	for _, t := range w.Tiles() {
		filename := fmt.Sprintf("gt%d.json", t.ID())
		path := filepath.Join(tilesDir, filename)

		data, err := json.MarshalIndent(t.View(), "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR marshaling JSON: %v\n", err)
			continue
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "  ERROR writing file: %v\n", err)
			continue
		}

		fmt.Printf("  Created %s (%d zombies, %d players)\n", filename, t.NumZombies(), t.NumPlayers())
	}

	log.Info("seeded game", zap.Int64("game", id), zap.Int("tiles", len(w.Tiles())))
	fmt.Println("Done!")
}
