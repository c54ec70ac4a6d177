// Package game drives a chess game: turn order, move application, clocks,
// termination and undo. ComputerGame delegates one side to an engine.
package game

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/chess/clock"
	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

// Game is safe for concurrent use. Callbacks run on the calling goroutine
// after the game's lock has been released.
type Game struct {
	mu sync.Mutex

	board     *rules.Board
	history   *rules.History
	turn      rules.Color
	halfMoves int
	// gen changes on every applied or undone ply.
	gen uint64

	white, black  *clock.Clock
	increment     time.Duration
	clocksRunning bool

	over    bool
	outcome Outcome

	choosePromotion PromotionChooser
	onMove          func(*rules.Move)
	onUndo          func(*rules.Move)
	onEnd           func(Outcome)

	log *zap.Logger

	stopWatch chan struct{}
	closeOnce sync.Once
}

// events collects what a locked operation produced so callbacks can fire
// once the lock is released.
type events struct {
	moved  []*rules.Move
	undone []*rules.Move
	ended  *Outcome
}

func New(opts ...Option) *Game {
	g := &Game{
		board:           rules.NewStartingBoard(),
		history:         rules.NewHistory(notation.Notator{}),
		turn:            rules.White,
		choosePromotion: declinePromotion,
		log:             zap.NewNop(),
		stopWatch:       make(chan struct{}),
	}
	for _, o := range opts {
		o(g)
	}
	if g.timed() {
		go g.watchClocks()
	}
	return g
}

func (g *Game) timed() bool { return g.white != nil && g.black != nil }

func (g *Game) clockOf(c rules.Color) *clock.Clock {
	if c == rules.White {
		return g.white
	}
	return g.black
}

// watchClocks ends the game when either clock runs out.
func (g *Game) watchClocks() {
	var flagged rules.Color
	select {
	case <-g.stopWatch:
		return
	case <-g.white.Done():
		flagged = rules.White
	case <-g.black.Done():
		flagged = rules.Black
	}
	g.mu.Lock()
	var ev events
	if !g.over {
		g.finishLocked(Outcome{Winner: winnerOf(flagged.Opponent()), Cause: CauseTime}, &ev)
	}
	g.mu.Unlock()
	g.fire(ev)
}

// NewMove builds a move on the game's board. The result is only meaningful
// until the board changes.
func (g *Game) NewMove(from, to rules.Square) *rules.Move {
	g.mu.Lock()
	defer g.mu.Unlock()
	return rules.NewMove(g.board, from, to)
}

// MakeMove validates and applies m. It returns false, leaving the game
// untouched, when the game is over, it is not the mover's turn, the move is
// illegal or a promotion is declined.
func (g *Game) MakeMove(m *rules.Move) bool {
	g.mu.Lock()
	var ev events
	ok := g.makeMoveLocked(m, &ev)
	g.mu.Unlock()
	g.fire(ev)
	return ok
}

// MakeRawMove decodes a raw move such as "e2e4" or "e7e8q" and applies it.
func (g *Game) MakeRawMove(raw string) bool {
	g.mu.Lock()
	var ev events
	ok := false
	if m, parsed := notation.ParseMove(g.board, raw); parsed {
		ok = g.makeMoveLocked(m, &ev)
	}
	g.mu.Unlock()
	g.fire(ev)
	return ok
}

// Replay applies raw moves in order, stopping at the first one rejected.
func (g *Game) Replay(moves []string) error {
	for i, raw := range moves {
		if !g.MakeRawMove(raw) {
			return fmt.Errorf("replay move %d %q: rejected", i+1, raw)
		}
	}
	return nil
}

func (g *Game) makeMoveLocked(m *rules.Move, ev *events) bool {
	if g.over || m == nil || m.Piece == nil || m.Piece.Color != g.turn {
		return false
	}
	if g.board.At(m.From) != m.Piece {
		return false
	}
	if !rules.IsValidMove(g.board, m, g.history) {
		return false
	}
	m.Kind = rules.Classify(g.board, m, g.history)
	if m.Kind == rules.Promotion && !m.Promotion.IsPromotionTarget() {
		t, ok := g.choosePromotion(g.turn)
		if !ok || !t.IsPromotionTarget() {
			m.Kind = rules.Unclassified
			return false
		}
		m.Promotion = t
	}
	if m.Kind != rules.Promotion {
		m.Promotion = rules.NoPieceType
	}

	g.board.Apply(m)
	m.Piece.Moved = true
	if m.Kind == rules.Castling {
		if rook := g.board.At(castledRookSquare(m)); rook != nil {
			rook.Moved = true
		}
	}
	g.history.Append(g.board, m)
	g.gen++

	if g.timed() && g.history.Len() >= 2 {
		g.switchClocksLocked(g.turn)
	}

	if m.Piece.Type == rules.Pawn || m.Kind == rules.Capture {
		g.halfMoves = 0
	} else {
		g.halfMoves++
	}
	g.turn = g.turn.Opponent()
	ev.moved = append(ev.moved, m)
	g.log.Debug("move_applied",
		zap.String("move", notation.EncodeMove(m)),
		zap.String("kind", m.Kind.String()),
		zap.Int("ply", g.history.Len()))

	g.checkTerminationLocked(ev)
	return true
}

// switchClocksLocked hands the clock from mover to the opponent, starting
// the pair on the first call.
func (g *Game) switchClocksLocked(mover rules.Color) {
	moverClock := g.clockOf(mover)
	if g.clocksRunning {
		moverClock.Pause()
		moverClock.AddTime(g.increment)
	}
	g.clocksRunning = true
	g.clockOf(mover.Opponent()).Resume()
}

func (g *Game) checkTerminationLocked(ev *events) {
	if g.over {
		return
	}
	if len(g.board.GenerateAllValidMoves(g.turn, g.history)) == 0 {
		if g.board.IsCheck(g.turn) {
			g.finishLocked(Outcome{Winner: winnerOf(g.turn.Opponent()), Cause: CauseCheckmate}, ev)
		} else {
			g.finishLocked(Outcome{Winner: WinnerNone, Cause: CauseStalemate}, ev)
		}
		return
	}
	if g.halfMoves >= 100 {
		g.finishLocked(Outcome{Winner: WinnerNone, Cause: CauseFiftyMove}, ev)
	}
}

func (g *Game) finishLocked(o Outcome, ev *events) {
	g.over = true
	g.outcome = o
	if g.timed() {
		g.white.Pause()
		g.black.Pause()
	}
	ev.ended = &o
	g.log.Info("game_over",
		zap.String("winner", string(o.Winner)),
		zap.String("cause", string(o.Cause)),
		zap.Int("plies", g.history.Len()))
}

// UndoLastMove reverses exactly one ply. Finished games cannot be undone.
func (g *Game) UndoLastMove() bool {
	g.mu.Lock()
	var ev events
	ok := g.undoLocked(&ev)
	g.mu.Unlock()
	g.fire(ev)
	return ok
}

func (g *Game) undoLocked(ev *events) bool {
	if g.over || g.history.Len() == 0 {
		return false
	}
	m := g.history.Pop()
	g.board.Revert(m)
	g.gen++
	m.Piece.Moved = !m.FirstMove
	if m.Kind == rules.Castling {
		if rook := g.board.At(castlingRookHome(m)); rook != nil {
			rook.Moved = false
		}
	}
	mover := m.Piece.Color
	g.turn = mover

	if g.timed() && g.clocksRunning {
		g.clockOf(mover.Opponent()).Pause()
		if g.history.Len() >= 2 {
			g.clockOf(mover).Resume()
		} else {
			g.clockOf(mover).Pause()
			g.clocksRunning = false
		}
	}

	g.halfMoves = 0
	for _, hm := range g.history.Moves() {
		if hm.Piece.Type == rules.Pawn || hm.Kind == rules.Capture {
			g.halfMoves = 0
		} else {
			g.halfMoves++
		}
	}
	ev.undone = append(ev.undone, m)
	g.log.Debug("move_undone", zap.String("move", notation.EncodeMove(m)), zap.Int("ply", g.history.Len()))
	return true
}

// Resign ends the game with the opponent of c as winner.
func (g *Game) Resign(c rules.Color) bool {
	g.mu.Lock()
	var ev events
	ok := !g.over
	if ok {
		g.finishLocked(Outcome{Winner: winnerOf(c.Opponent()), Cause: CauseResign}, &ev)
	}
	g.mu.Unlock()
	g.fire(ev)
	return ok
}

// Close stops the clocks and the clock watcher. The game stays readable.
func (g *Game) Close() {
	g.closeOnce.Do(func() {
		close(g.stopWatch)
		if g.timed() {
			g.white.Close()
			g.black.Close()
		}
	})
}

func (g *Game) fire(ev events) {
	for _, m := range ev.undone {
		if g.onUndo != nil {
			g.onUndo(m)
		}
	}
	for _, m := range ev.moved {
		if g.onMove != nil {
			g.onMove(m)
		}
	}
	if ev.ended != nil && g.onEnd != nil {
		g.onEnd(*ev.ended)
	}
}

func castledRookSquare(m *rules.Move) rules.Square {
	if m.To.File > m.From.File {
		return rules.Sq(m.To.Rank, 5)
	}
	return rules.Sq(m.To.Rank, 3)
}

func castlingRookHome(m *rules.Move) rules.Square {
	if m.To.File > m.From.File {
		return rules.Sq(m.From.Rank, 7)
	}
	return rules.Sq(m.From.Rank, 0)
}
