package game

import (
	"time"

	"github.com/park285/cheese-chess/internal/chess/clock"
	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

// lockedPosition exposes the game to notation.FEN while the lock is held.
type lockedPosition struct{ g *Game }

func (p lockedPosition) Board() *rules.Board     { return p.g.board }
func (p lockedPosition) Turn() rules.Color       { return p.g.turn }
func (p lockedPosition) History() *rules.History { return p.g.history }
func (p lockedPosition) HalfMoves() int          { return p.g.halfMoves }

func (g *Game) FEN() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return notation.FEN(lockedPosition{g})
}

// Board returns a copy of the current board.
func (g *Game) Board() *rules.Board {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board.Clone()
}

func (g *Game) Turn() rules.Color {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.turn
}

func (g *Game) HalfMoves() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.halfMoves
}

func (g *Game) IsOver() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.over
}

// Outcome reports the result; ok is false while the game is active.
func (g *Game) Outcome() (Outcome, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.outcome, g.over
}

func (g *Game) IsCheck() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.board.IsCheck(g.turn)
}

func (g *Game) Plies() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.Len()
}

func (g *Game) SAN() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.SAN()
}

func (g *Game) UnicodeSAN() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.UnicodeSAN()
}

func (g *Game) RawMoves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return notation.RawMoves(g.history)
}

// MoveText is the numbered move list, e.g. "1. e4 e5 2. Nf3".
func (g *Game) MoveText() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.history.String()
}

// LegalMoves lists the side to move's legal moves as raw strings.
func (g *Game) LegalMoves() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	moves := g.board.GenerateAllValidMoves(g.turn, g.history)
	out := make([]string, 0, len(moves))
	for _, m := range moves {
		out = append(out, notation.EncodeMove(m))
	}
	return out
}

// PGN renders the game with the given header tags. A nil tags slice uses the
// default Event and Round tags.
func (g *Game) PGN(tags []notation.Tag) string {
	if tags == nil {
		tags = notation.DefaultTags()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	result := ""
	if g.over {
		result = g.outcome.Result()
	}
	return notation.PGN(tags, g.history.SAN(), result)
}

func (g *Game) WhiteClock() *clock.Clock { return g.white }

func (g *Game) BlackClock() *clock.Clock { return g.black }

// Remaining reports both clocks; ok is false for untimed games.
func (g *Game) Remaining() (white, black time.Duration, ok bool) {
	if !g.timed() {
		return 0, 0, false
	}
	return g.white.Remaining(), g.black.Remaining(), true
}

// Snapshot is a consistent view of the game taken under one lock.
type Snapshot struct {
	FEN        string
	Turn       rules.Color
	Check      bool
	HalfMoves  int
	Raw        []string
	SAN        []string
	UnicodeSAN []string
	MoveText   string
	Legal      []string
	Over       bool
	Outcome    Outcome
	Timed      bool
	WhiteLeft  time.Duration
	BlackLeft  time.Duration
}

func (g *Game) Snapshot() Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := Snapshot{
		FEN:        notation.FEN(lockedPosition{g}),
		Turn:       g.turn,
		Check:      g.board.IsCheck(g.turn),
		HalfMoves:  g.halfMoves,
		Raw:        notation.RawMoves(g.history),
		SAN:        g.history.SAN(),
		UnicodeSAN: g.history.UnicodeSAN(),
		MoveText:   g.history.String(),
		Over:       g.over,
		Outcome:    g.outcome,
		Timed:      g.timed(),
	}
	if !g.over {
		for _, m := range g.board.GenerateAllValidMoves(g.turn, g.history) {
			s.Legal = append(s.Legal, notation.EncodeMove(m))
		}
	}
	if s.Timed {
		s.WhiteLeft, s.BlackLeft = g.white.Remaining(), g.black.Remaining()
	}
	return s
}
