package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds all application configuration
type Config struct {
	ServerAddr string
	// bbolt file holding the durable tier
	DataPath string
	// shared volatile cache; empty keeps the cache in process
	RedisAddr string
	CacheTTL  time.Duration
	Logging   LoggingConfig
	Game      GameConfig
}

// LoggingConfig selects the log level and encoder
type LoggingConfig struct {
	Level  string
	Format string
}

// GameConfig holds game-specific settings
type GameConfig struct {
	ZombieSpeed      float64
	ZombieDensity    float64
	DurableStaleness time.Duration
	Seed             uint64
}

// Load reads an optional .env file and then the environment
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":8080"),
		DataPath:   getEnv("DATA_PATH", "data/zombierun.db"),
		RedisAddr:  os.Getenv("REDIS_ADDR"),
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	var err error
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Game.ZombieSpeed, err = getFloat("ZOMBIE_SPEED", 3*0.447); err != nil {
		return nil, err
	}
	if cfg.Game.ZombieDensity, err = getFloat("ZOMBIE_DENSITY", 20); err != nil {
		return nil, err
	}
	if cfg.Game.DurableStaleness, err = getDuration("DURABLE_STALENESS", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Game.Seed, err = getUint("RNG_SEED", 0); err != nil {
		return nil, err
	}

	if cfg.Game.ZombieSpeed <= 0 {
		return nil, fmt.Errorf("ZOMBIE_SPEED must be positive, got %v", cfg.Game.ZombieSpeed)
	}
	if cfg.Game.ZombieDensity < 0 {
		return nil, fmt.Errorf("ZOMBIE_DENSITY must not be negative, got %v", cfg.Game.ZombieDensity)
	}
	return cfg, nil
}

// NewLogger builds a JSON production logger or a colored console one
func NewLogger(cfg LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return f, nil
}

func getUint(key string, fallback uint64) (uint64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return n, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
