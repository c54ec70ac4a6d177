package game

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

// MoveSource picks moves for the engine side; uci.Session satisfies it.
type MoveSource interface {
	BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error)
	BestMoveTimed(ctx context.Context, fen string, wtime, btime time.Duration) (string, error)
	Stop() error
}

const (
	// untimedBudget is the clock the engine is told both sides have in an
	// untimed game.
	untimedBudget = 10 * time.Minute
	cancelGrace   = 50 * time.Millisecond
)

// Result is delivered by StartComputerMove.
type Result struct {
	Move *rules.Move
	OK   bool
}

// ComputerGame is a Game where one side is played by a MoveSource.
type ComputerGame struct {
	*Game

	human    rules.Color
	engine   MoveSource
	elo      int
	moveTime time.Duration

	calcMu sync.Mutex
	calc   *calculation
}

// calculation is one engine search in flight.
type calculation struct {
	cancel    context.CancelFunc
	done      chan struct{}
	cancelled atomic.Bool
}

type ComputerOption func(*ComputerGame)

// WithMoveTime makes untimed games search a fixed time per move instead of
// managing the simulated clock.
func WithMoveTime(d time.Duration) ComputerOption {
	return func(c *ComputerGame) { c.moveTime = d }
}

func NewComputerGame(human rules.Color, engine MoveSource, elo int, copts []ComputerOption, opts ...Option) *ComputerGame {
	c := &ComputerGame{Game: New(opts...), human: human, engine: engine, elo: elo}
	for _, o := range copts {
		o(c)
	}
	return c
}

func (c *ComputerGame) HumanColor() rules.Color { return c.human }

func (c *ComputerGame) EngineColor() rules.Color { return c.human.Opponent() }

func (c *ComputerGame) Elo() int { return c.elo }

// EngineToMove reports whether the engine should be asked for a move.
func (c *ComputerGame) EngineToMove() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.over && c.turn == c.EngineColor()
}

// ExecuteComputerMove asks the engine for a move and applies it. It returns
// false when it is not the engine's turn, the search was cancelled or failed,
// or the position changed while the engine was thinking.
func (c *ComputerGame) ExecuteComputerMove(ctx context.Context) (*rules.Move, bool) {
	c.mu.Lock()
	if c.over || c.turn != c.EngineColor() {
		c.mu.Unlock()
		return nil, false
	}
	// 잠금을 쥔 채 등록해야 이후의 취소가 이 탐색에 닿는다.
	calc, calcCtx := c.beginCalculation(ctx)
	defer c.endCalculation(calc)
	fen := notation.FEN(lockedPosition{c.Game})
	gen := c.gen
	wtime, btime, timed := untimedBudget, untimedBudget, false
	if c.timed() {
		wtime, btime, timed = c.white.Remaining(), c.black.Remaining(), true
	}
	c.mu.Unlock()

	var raw string
	var err error
	if !timed && c.moveTime > 0 {
		raw, err = c.engine.BestMove(calcCtx, fen, c.moveTime)
	} else {
		raw, err = c.engine.BestMoveTimed(calcCtx, fen, wtime, btime)
	}
	if calc.cancelled.Load() || calcCtx.Err() != nil {
		c.log.Debug("engine_move_discarded", zap.String("fen", fen))
		return nil, false
	}
	if err != nil {
		c.log.Warn("engine_move_failed", zap.String("fen", fen), zap.Error(err))
		return nil, false
	}

	c.mu.Lock()
	var ev events
	if c.over || c.turn != c.EngineColor() || c.gen != gen {
		c.mu.Unlock()
		c.log.Debug("engine_move_stale", zap.String("fen", fen), zap.String("move", raw))
		return nil, false
	}
	m, ok := notation.DecodeEngineMove(c.board, raw)
	if ok {
		ok = c.makeMoveLocked(m, &ev)
	}
	c.mu.Unlock()
	c.fire(ev)
	if !ok {
		c.log.Warn("engine_move_rejected", zap.String("fen", fen), zap.String("move", raw))
		return nil, false
	}
	return m, true
}

// StartComputerMove runs ExecuteComputerMove on its own goroutine.
func (c *ComputerGame) StartComputerMove(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		m, ok := c.ExecuteComputerMove(ctx)
		out <- Result{Move: m, OK: ok}
	}()
	return out
}

func (c *ComputerGame) beginCalculation(parent context.Context) (*calculation, context.Context) {
	ctx, cancel := context.WithCancel(parent)
	calc := &calculation{cancel: cancel, done: make(chan struct{})}
	c.calcMu.Lock()
	c.calc = calc
	c.calcMu.Unlock()
	return calc, ctx
}

func (c *ComputerGame) endCalculation(calc *calculation) {
	calc.cancel()
	c.calcMu.Lock()
	if c.calc == calc {
		c.calc = nil
	}
	c.calcMu.Unlock()
	close(calc.done)
}

// CancelCalculation stops an in-flight engine search and waits briefly for
// the worker to give up. Any move it produces afterwards is discarded.
func (c *ComputerGame) CancelCalculation() {
	c.calcMu.Lock()
	calc := c.calc
	c.calcMu.Unlock()
	if calc == nil {
		return
	}
	calc.cancelled.Store(true)
	if err := c.engine.Stop(); err != nil {
		c.log.Debug("engine_stop_failed", zap.Error(err))
	}
	calc.cancel()
	select {
	case <-calc.done:
	case <-time.After(cancelGrace):
	}
}

// MakeMove applies a human move. Engine-side moves are rejected.
func (c *ComputerGame) MakeMove(m *rules.Move) bool {
	c.CancelCalculation()
	if m == nil || m.Piece == nil || m.Piece.Color != c.human {
		return false
	}
	return c.Game.MakeMove(m)
}

func (c *ComputerGame) MakeRawMove(raw string) bool {
	c.CancelCalculation()
	c.mu.Lock()
	var ev events
	ok := false
	if m, parsed := notation.ParseMove(c.board, raw); parsed && m.Piece != nil && m.Piece.Color == c.human {
		ok = c.makeMoveLocked(m, &ev)
	}
	c.mu.Unlock()
	c.fire(ev)
	return ok
}

// UndoLastMove takes back plies until the human is to move again: two when
// the engine has replied, one when it has not.
func (c *ComputerGame) UndoLastMove() bool {
	c.CancelCalculation()
	c.mu.Lock()
	var ev events
	ok := false
	switch {
	case c.over:
	case c.turn == c.human && c.history.Len() >= 2:
		ok = c.undoLocked(&ev) && c.undoLocked(&ev)
	case c.turn != c.human && c.history.Len() >= 1:
		ok = c.undoLocked(&ev)
	}
	c.mu.Unlock()
	c.fire(ev)
	return ok
}

func (c *ComputerGame) Resign() bool {
	c.CancelCalculation()
	return c.Game.Resign(c.human)
}

// PGN tags the game with the human and computer players.
func (c *ComputerGame) PGN() string {
	return c.Game.PGN(notation.ComputerTags(c.human, c.elo))
}
