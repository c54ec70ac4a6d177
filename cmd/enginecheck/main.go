package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/park285/cheese-chess/internal/chess/uci"
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func main() {
	path := os.Getenv("STOCKFISH_PATH")
	if path == "" {
		log.Fatal("STOCKFISH_PATH is required")
	}
	elo := 0
	if v := os.Getenv("ENGINE_DEFAULT_ELO"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			log.Fatalf("ENGINE_DEFAULT_ELO: %v", err)
		}
		elo = n
	}
	fen := startFEN
	if len(os.Args) > 1 {
		fen = os.Args[1]
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	started := time.Now()
	s, err := uci.Launch(ctx, path, uci.Options{Cache: uci.NewMemoryCache(8)})
	if err != nil {
		log.Fatalf("engine launch error: %v", err)
	}
	defer s.Close()
	log.Printf("handshake ok in %s (state=%s)", time.Since(started).Round(time.Millisecond), s.State())

	if elo != 0 {
		applied, err := s.SetElo(ctx, elo)
		if err != nil {
			log.Fatalf("set elo: %v", err)
		}
		log.Printf("elo limited to %d", applied)
	}

	started = time.Now()
	move, err := s.BestMove(ctx, fen, time.Second)
	if err != nil {
		log.Fatalf("bestmove error: %v", err)
	}
	info := s.LastInfo()
	score := fmt.Sprintf("cp %d", info.EvalCP)
	if info.Mate != 0 {
		score = fmt.Sprintf("mate %d", info.Mate)
	}
	fmt.Printf("bestmove %s depth=%d score=%s pv=%v (%s)\n",
		move, info.Depth, score, info.PV, time.Since(started).Round(time.Millisecond))

	// A second search of the same position comes from the cache.
	started = time.Now()
	if _, err := s.BestMove(ctx, fen, time.Second); err != nil {
		log.Fatalf("cached bestmove error: %v", err)
	}
	log.Printf("cached lookup in %s", time.Since(started).Round(time.Millisecond))
}
