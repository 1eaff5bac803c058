package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"zombierun.dev/internal/config"
	"zombierun.dev/internal/game"
	"zombierun.dev/internal/handlers"
	"zombierun.dev/internal/services"
	"zombierun.dev/internal/store"
	"zombierun.dev/internal/world"
)

func main() {
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
	zap.ReplaceGlobals(log)

	durable, err := store.OpenBolt(cfg.DataPath)
	if err != nil {
		log.Fatal("opening durable store", zap.Error(err))
	}
	defer durable.Close()

	fast, closeCache := newCache(cfg, log)
	defer closeCache()

	tiles := world.NewTileCache(fast, durable, world.TileCacheConfig{Staleness: cfg.Game.DurableStaleness}, log)
	repo := game.NewRepository(fast, durable, tiles, game.Settings{
		Population: world.Population{Density: cfg.Game.ZombieDensity, Speed: cfg.Game.ZombieSpeed},
		Staleness:  cfg.Game.DurableStaleness,
		Seed:       cfg.Game.Seed,
	}, log)

	gameService := services.NewGameService(repo, log)
	worldService := services.NewWorldService(tiles)

	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           handlers.SetupRoutes(gameService, worldService, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", zap.String("addr", cfg.ServerAddr), zap.String("data", cfg.DataPath))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown failed", zap.Error(err))
	}
}

// newCache connects to redis when configured and falls back to an in-process
// cache otherwise
func newCache(cfg *config.Config, log *zap.Logger) (store.Cache, func()) {
	if cfg.RedisAddr == "" {
		log.Info("using in-process cache")
		return store.NewMemoryCache(cfg.CacheTTL), func() {}
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("connecting to redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	log.Info("using redis cache", zap.String("addr", cfg.RedisAddr))

	c := store.NewRedisCache(client, cfg.CacheTTL)
	return c, func() {
		if err := c.Close(); err != nil {
			log.Warn("closing redis", zap.Error(err))
		}
	}
}
