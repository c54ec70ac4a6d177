package game

import (
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/chess/clock"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

// PromotionChooser picks the piece a pawn of the given color promotes to.
// Returning false declines and the move is not applied. It runs while the
// game is locked and must not call back into the game.
type PromotionChooser func(c rules.Color) (rules.PieceType, bool)

func declinePromotion(rules.Color) (rules.PieceType, bool) {
	return rules.NoPieceType, false
}

type Option func(*Game)

// WithClocks makes the game timed. Both clocks are owned by the game from
// then on and closed by Close.
func WithClocks(white, black *clock.Clock) Option {
	return func(g *Game) {
		if white != nil && black != nil {
			g.white, g.black = white, black
		}
	}
}

// WithIncrement credits d to the mover's clock after each move once the
// clocks are running.
func WithIncrement(d time.Duration) Option {
	return func(g *Game) { g.increment = d }
}

func WithPromotionChooser(fn PromotionChooser) Option {
	return func(g *Game) {
		if fn != nil {
			g.choosePromotion = fn
		}
	}
}

func WithOnMoveApplied(fn func(*rules.Move)) Option {
	return func(g *Game) { g.onMove = fn }
}

func WithOnUndo(fn func(*rules.Move)) Option {
	return func(g *Game) { g.onUndo = fn }
}

func WithOnGameEnd(fn func(Outcome)) Option {
	return func(g *Game) { g.onEnd = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.log = l
		}
	}
}
