// Package openingbook serves opening moves from a Polyglot book and names
// openings by their ECO code.
package openingbook

import (
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	chesslib "github.com/corentings/chess/v2"
)

// Result is one book move for a position.
type Result struct {
	Move   string
	Weight uint16
}

// Book is a loaded Polyglot opening book. It is read-only and safe for
// concurrent use.
type Book struct {
	pb *chesslib.PolyglotBook
}

// Open loads the book at path.
func Open(path string) (*Book, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("polyglot book path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open polyglot book %q: %w", path, err)
	}
	defer file.Close()
	b, err := Load(file)
	if err != nil {
		return nil, fmt.Errorf("load polyglot book %q: %w", path, err)
	}
	return b, nil
}

func Load(r io.Reader) (*Book, error) {
	pb, err := chesslib.LoadFromReader(r)
	if err != nil {
		return nil, err
	}
	return &Book{pb: pb}, nil
}

// ResolvePath returns CHESS_POLYGLOT_BOOK_PATH when set, else the first
// default location that exists, else "".
func ResolvePath() (string, error) {
	if envPath := strings.TrimSpace(os.Getenv("CHESS_POLYGLOT_BOOK_PATH")); envPath != "" {
		if exists(envPath) {
			return envPath, nil
		}
		return "", fmt.Errorf("env CHESS_POLYGLOT_BOOK_PATH points to missing file: %s", envPath)
	}
	for _, candidate := range defaultBookPaths() {
		if exists(candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func defaultBookPaths() []string {
	return []string{
		filepath.Join("resources", "opening", "Cerebellum3Merge.bin"),
		filepath.Join("resources", "opening", "book.bin"),
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Moves lists the book moves legal in fen, heaviest first.
func (b *Book) Moves(fen string) ([]Result, error) {
	game, err := gameFromFEN(fen)
	if err != nil {
		return nil, err
	}
	hashStr, err := chesslib.NewZobristHasher().HashPosition(game.FEN())
	if err != nil {
		return nil, fmt.Errorf("compute polyglot hash: %w", err)
	}
	entries := b.pb.FindMoves(chesslib.ZobristHashToUint64(hashStr))

	out := make([]Result, 0, len(entries))
	for _, entry := range entries {
		move := chesslib.DecodeMove(entry.Move).ToMove()
		uci := move.String()
		// 책 데이터 오류로 불법 수가 섞일 수 있음.
		if err := game.Clone().PushNotationMove(uci, chesslib.UCINotation{}, nil); err != nil {
			continue
		}
		out = append(out, Result{Move: uci, Weight: entry.Weight})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight == out[j].Weight {
			return out[i].Move < out[j].Move
		}
		return out[i].Weight > out[j].Weight
	})
	return out, nil
}

// Pick chooses a book move for fen at random, proportionally to weight.
// Zero-weight entries are only chosen when every entry has zero weight.
func (b *Book) Pick(fen string, r *rand.Rand) (string, bool) {
	moves, err := b.Moves(fen)
	if err != nil || len(moves) == 0 {
		return "", false
	}
	total := 0
	for _, m := range moves {
		total += int(m.Weight)
	}
	if total == 0 {
		return moves[0].Move, true
	}
	n := r.IntN(total)
	for _, m := range moves {
		n -= int(m.Weight)
		if n < 0 {
			return m.Move, true
		}
	}
	return moves[0].Move, true
}

func gameFromFEN(fen string) (*chesslib.Game, error) {
	if strings.TrimSpace(fen) == "" || fen == "startpos" {
		return chesslib.NewGame(), nil
	}
	option, err := chesslib.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("parse fen %q: %w", fen, err)
	}
	return chesslib.NewGame(option), nil
}
