package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsAndEnv(t *testing.T) {
	t.Setenv("CHESS_CONFIG_FILE", "")
	t.Setenv("STOCKFISH_PATH", "/usr/games/stockfish")
	t.Setenv("ENGINE_THREADS", "4")
	t.Setenv("CHESS_SESSION_TTL", "120")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.EngineThreads != 4 || cfg.EngineHashMB != 16 || cfg.SessionTTL != 2*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.HTTPAddr != ":8080" || cfg.EngineDefaultElo != 1500 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestFileThenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chess.yaml")
	body := "stockfish_path: /opt/sf\nengine_hash_mb: 128\nsession_ttl: 30m\nredis_url: redis://cache:6379/0\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CHESS_CONFIG_FILE", path)
	t.Setenv("STOCKFISH_PATH", "")
	t.Setenv("ENGINE_HASH_MB", "256")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StockfishPath != "/opt/sf" || cfg.EngineHashMB != 256 || cfg.SessionTTL != 30*time.Minute {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RedisURL != "redis://cache:6379/0" {
		t.Fatalf("redis url = %q", cfg.RedisURL)
	}
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("CHESS_CONFIG_FILE", "")
	t.Setenv("STOCKFISH_PATH", "")
	if _, err := Load(); err == nil {
		t.Fatalf("missing engine path accepted")
	}
	t.Setenv("STOCKFISH_PATH", "/usr/games/stockfish")
	t.Setenv("ENGINE_THREADS", "many")
	if _, err := Load(); err == nil {
		t.Fatalf("bad integer accepted")
	}
	t.Setenv("ENGINE_THREADS", "")
	t.Setenv("CHESS_CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("missing config file accepted")
	}
}
