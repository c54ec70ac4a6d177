package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	StockfishPath      string `yaml:"stockfish_path"`
	EngineThreads      int    `yaml:"engine_threads"`
	EngineHashMB       int    `yaml:"engine_hash_mb"`
	EngineDefaultElo   int    `yaml:"engine_default_elo"`
	EnginePoolCapacity int    `yaml:"engine_pool_capacity"`
	// EngineMoveTime switches untimed computer games to fixed-time searches.
	EngineMoveTime time.Duration `yaml:"engine_move_time"`
	EngineCacheSize int          `yaml:"engine_cache_size"`

	// BookPath is a Polyglot opening book; empty falls back to default locations.
	BookPath   string `yaml:"book_path"`
	BookMaxPly int    `yaml:"book_max_ply"`

	RedisURL    string `yaml:"redis_url"`
	DatabaseURL string `yaml:"database_url"`

	HTTPAddr   string `yaml:"http_addr"`
	EventsAddr string `yaml:"events_addr"`

	SessionTTL time.Duration `yaml:"session_ttl"`
	MessageDir string        `yaml:"message_dir"`
}

func defaults() *AppConfig {
	return &AppConfig{
		EngineThreads:      1,
		EngineHashMB:       16,
		EngineDefaultElo:   1500,
		EnginePoolCapacity: 2,
		EngineCacheSize:    1024,
		HTTPAddr:           ":8080",
		EventsAddr:         ":8081",
		SessionTTL:         time.Hour,
		BookMaxPly:         12,
	}
}

// Load applies defaults, then the YAML file named by CHESS_CONFIG_FILE, then
// environment variables.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CHESS_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.StockfishPath, "STOCKFISH_PATH")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.HTTPAddr, "HTTP_ADDR")
	setString(&c.EventsAddr, "EVENTS_ADDR")
	setString(&c.MessageDir, "MESSAGE_DIR")
	setString(&c.BookPath, "CHESS_POLYGLOT_BOOK_PATH")

	var errs []error
	errs = append(errs,
		setInt(&c.EngineThreads, "ENGINE_THREADS"),
		setInt(&c.EngineHashMB, "ENGINE_HASH_MB"),
		setInt(&c.EngineDefaultElo, "ENGINE_DEFAULT_ELO"),
		setInt(&c.EnginePoolCapacity, "ENGINE_POOL_CAPACITY"),
		setInt(&c.EngineCacheSize, "ENGINE_CACHE_SIZE"),
		setInt(&c.BookMaxPly, "CHESS_BOOK_MAX_PLY"),
		setDuration(&c.EngineMoveTime, "ENGINE_MOVE_TIME"),
		setDuration(&c.SessionTTL, "CHESS_SESSION_TTL"),
	)
	return errors.Join(errs...)
}

func (c *AppConfig) Validate() error {
	if c.StockfishPath == "" {
		return errors.New("STOCKFISH_PATH is required")
	}
	if c.EngineThreads <= 0 || c.EngineHashMB <= 0 {
		return errors.New("engine threads and hash must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("CHESS_SESSION_TTL must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

// setDuration accepts Go durations ("90s", "1h") or bare seconds.
func setDuration(dst *time.Duration, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = time.Duration(n) * time.Second
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
