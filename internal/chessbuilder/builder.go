package chessbuilder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/archive"
	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/chess/openingbook"
	"github.com/park285/cheese-chess/internal/chess/uci"
	"github.com/park285/cheese-chess/internal/config"
	"github.com/park285/cheese-chess/internal/msgcat"
	"github.com/park285/cheese-chess/internal/service/games"
	"github.com/park285/cheese-chess/internal/store"
)

const engineCacheTTL = 7 * 24 * time.Hour

type Deps struct {
	Service  *games.Service
	Pool     *uci.Pool
	Store    *store.Store
	Archive  archive.Repository
	Messages *msgcat.Catalog

	redis *redis.Client
	db    *sql.DB
}

// New wires the engine pool, storage and game service. Redis and Postgres
// are optional: without them games live in memory and archives are kept in
// process.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	// Redis: live games + engine move cache
	var cache uci.Cache = uci.NewMemoryCache(cfg.EngineCacheSize)
	if cfg.RedisURL != "" {
		rdb, err := store.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis: %w", err)
		}
		d.redis = rdb
		d.Store = store.NewStore(rdb, cfg.SessionTTL)
		cache = store.NewEngineCache(rdb, engineCacheTTL, logger.Named("engine_cache"))
	} else {
		logger.Warn("redis_disabled", zap.String("reason", "REDIS_URL not set; games are not persisted"))
	}

	// Postgres: finished games
	if cfg.DatabaseURL != "" {
		db, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		d.db = db
		if err := archive.EnsureSchema(ctx, db); err != nil {
			return nil, err
		}
		d.Archive = archive.NewPostgresRepository(db)
	} else {
		d.Archive = archive.NewMemoryRepository()
	}

	pool, err := uci.NewPool(uci.PoolConfig{BinaryPath: cfg.StockfishPath, PerKeyCapacity: cfg.EnginePoolCapacity})
	if err != nil {
		return nil, fmt.Errorf("init engine pool: %w", err)
	}
	d.Pool = pool

	msgs, err := msgcat.New(cfg.MessageDir)
	if err != nil {
		return nil, fmt.Errorf("init messages: %w", err)
	}
	d.Messages = msgs

	book, err := loadBook(cfg.BookPath, logger)
	if err != nil {
		return nil, err
	}

	engineLog := logger.Named("uci")
	bookLog := logger.Named("book")
	engines := func(elo int) game.MoveSource {
		engine := pool.Engine(uci.Options{
			Threads: cfg.EngineThreads,
			HashMB:  cfg.EngineHashMB,
			Elo:     elo,
			Cache:   cache,
			Logger:  engineLog,
		})
		if book == nil {
			return engine
		}
		return openingbook.NewSource(book, engine, cfg.BookMaxPly, bookLog)
	}

	svc, err := games.NewService(engines, d.Store, d.Archive, msgs, games.Config{
		SessionTTL: cfg.SessionTTL,
		DefaultElo: cfg.EngineDefaultElo,
		MoveTime:   cfg.EngineMoveTime,
	}, logger.Named("games"))
	if err != nil {
		return nil, err
	}
	d.Service = svc
	ok = true
	return d, nil
}

// loadBook opens the configured opening book. Without one, computer games
// use the engine from the first move.
func loadBook(path string, logger *zap.Logger) (*openingbook.Book, error) {
	if path == "" {
		var err error
		if path, err = openingbook.ResolvePath(); err != nil {
			return nil, err
		}
	}
	if path == "" {
		logger.Info("opening_book_disabled")
		return nil, nil
	}
	book, err := openingbook.Open(path)
	if err != nil {
		return nil, err
	}
	logger.Info("opening_book_loaded", zap.String("path", path))
	return book, nil
}

// Close stops the service, then releases engines and connections.
func (d *Deps) Close() error {
	if d.Service != nil {
		d.Service.Close()
	}
	var errs []error
	if d.Pool != nil {
		errs = append(errs, d.Pool.Close())
	}
	if d.redis != nil {
		errs = append(errs, d.redis.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}
