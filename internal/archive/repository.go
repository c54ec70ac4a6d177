package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

var ErrNotFound = errors.New("archived game not found")

// FinishedGame is the permanent record of a game that has ended.
type FinishedGame struct {
	ID         string
	Mode       string
	HumanColor string
	Elo        int
	Result     string // PGN result code
	Winner     string
	Cause      string
	Moves      []string
	SAN        []string
	PGN        string
	StartedAt  time.Time
	EndedAt    time.Time
}

func (g *FinishedGame) Duration() time.Duration {
	d := g.EndedAt.Sub(g.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

type Repository interface {
	// SaveGame inserts or replaces the record with the same ID.
	SaveGame(ctx context.Context, g *FinishedGame) error
	GetGame(ctx context.Context, id string) (*FinishedGame, error)
	RecentGames(ctx context.Context, limit int) ([]*FinishedGame, error)
}

// Open connects to DATABASE_URL with the pool limits used across services.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS chess_games (
	game_id      TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	human_color  TEXT NOT NULL DEFAULT '',
	elo          INTEGER NOT NULL DEFAULT 0,
	result       TEXT NOT NULL,
	winner       TEXT NOT NULL,
	cause        TEXT NOT NULL,
	moves_raw    JSONB NOT NULL,
	moves_san    JSONB NOT NULL,
	pgn          TEXT NOT NULL,
	started_at   TIMESTAMPTZ NOT NULL,
	ended_at     TIMESTAMPTZ NOT NULL,
	duration_ms  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS chess_games_ended_at_idx ON chess_games (ended_at DESC);`

type postgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) Repository {
	return &postgresRepository{db: db}
}

// EnsureSchema creates the archive table when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create archive schema: %w", err)
	}
	return nil
}

func (r *postgresRepository) SaveGame(ctx context.Context, g *FinishedGame) error {
	if g == nil {
		return fmt.Errorf("nil finished game")
	}
	movesRaw, err := json.Marshal(nonNil(g.Moves))
	if err != nil {
		return fmt.Errorf("marshal moves_raw: %w", err)
	}
	movesSAN, err := json.Marshal(nonNil(g.SAN))
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}

	const query = `
		INSERT INTO chess_games (
			game_id, mode, human_color, elo,
			result, winner, cause,
			moves_raw, moves_san, pgn,
			started_at, ended_at, duration_ms
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11, $12, $13)
		ON CONFLICT (game_id) DO UPDATE SET
			result = EXCLUDED.result,
			winner = EXCLUDED.winner,
			cause = EXCLUDED.cause,
			moves_raw = EXCLUDED.moves_raw,
			moves_san = EXCLUDED.moves_san,
			pgn = EXCLUDED.pgn,
			ended_at = EXCLUDED.ended_at,
			duration_ms = EXCLUDED.duration_ms`

	_, err = r.db.ExecContext(ctx, query,
		g.ID, g.Mode, g.HumanColor, g.Elo,
		g.Result, g.Winner, g.Cause,
		movesRaw, movesSAN, g.PGN,
		g.StartedAt, g.EndedAt, g.Duration().Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("upsert chess game: %w", err)
	}
	return nil
}

const selectColumns = `
	SELECT game_id, mode, human_color, elo, result, winner, cause,
		moves_raw, moves_san, pgn, started_at, ended_at
	FROM chess_games`

func (r *postgresRepository) GetGame(ctx context.Context, id string) (*FinishedGame, error) {
	g, err := scanGame(r.db.QueryRowContext(ctx, selectColumns+` WHERE game_id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return g, err
}

func (r *postgresRepository) RecentGames(ctx context.Context, limit int) ([]*FinishedGame, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, selectColumns+` ORDER BY ended_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select chess games: %w", err)
	}
	defer rows.Close()

	games := make([]*FinishedGame, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*FinishedGame, error) {
	var (
		g        FinishedGame
		movesRaw []byte
		movesSAN []byte
	)
	err := s.Scan(&g.ID, &g.Mode, &g.HumanColor, &g.Elo, &g.Result, &g.Winner, &g.Cause,
		&movesRaw, &movesSAN, &g.PGN, &g.StartedAt, &g.EndedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan chess game: %w", err)
	}
	if err := json.Unmarshal(movesRaw, &g.Moves); err != nil {
		return nil, fmt.Errorf("unmarshal moves_raw: %w", err)
	}
	if err := json.Unmarshal(movesSAN, &g.SAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	return &g, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
