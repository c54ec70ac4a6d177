package openingbook

import (
	"context"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxPly is how deep into the game book moves are played.
const DefaultMaxPly = 12

// Engine is the move source consulted once the book runs out.
type Engine interface {
	BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error)
	BestMoveTimed(ctx context.Context, fen string, wtime, btime time.Duration) (string, error)
	Stop() error
}

// Source answers from the book while the game is within MaxPly plies and
// the position is in the book; otherwise it asks the engine.
type Source struct {
	book   *Book
	engine Engine
	maxPly int
	log    *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSource(book *Book, engine Engine, maxPly int, logger *zap.Logger) *Source {
	if maxPly <= 0 {
		maxPly = DefaultMaxPly
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{
		book:   book,
		engine: engine,
		maxPly: maxPly,
		log:    logger,
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

func (s *Source) BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error) {
	if mv, ok := s.fromBook(fen); ok {
		return mv, nil
	}
	return s.engine.BestMove(ctx, fen, movetime)
}

func (s *Source) BestMoveTimed(ctx context.Context, fen string, wtime, btime time.Duration) (string, error) {
	if mv, ok := s.fromBook(fen); ok {
		return mv, nil
	}
	return s.engine.BestMoveTimed(ctx, fen, wtime, btime)
}

func (s *Source) Stop() error { return s.engine.Stop() }

func (s *Source) fromBook(fen string) (string, bool) {
	if s.book == nil {
		return "", false
	}
	ply, ok := plyOf(fen)
	if !ok || ply >= s.maxPly {
		return "", false
	}
	s.mu.Lock()
	mv, found := s.book.Pick(fen, s.rng)
	s.mu.Unlock()
	if found {
		s.log.Debug("book_move", zap.String("fen", fen), zap.String("move", mv), zap.Int("ply", ply))
	}
	return mv, found
}

// plyOf derives the number of plies played from the FEN side-to-move and
// fullmove fields.
func plyOf(fen string) (int, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 6 {
		return 0, false
	}
	full, err := strconv.Atoi(fields[5])
	if err != nil || full < 1 {
		return 0, false
	}
	ply := (full - 1) * 2
	if fields[1] == "b" {
		ply++
	}
	return ply, true
}
