package game

import (
	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

type Winner string

const (
	WinnerWhite Winner = "white"
	WinnerBlack Winner = "black"
	WinnerNone  Winner = "none"
)

// Cause names how a game ended.
type Cause string

const (
	CauseCheckmate Cause = "checkmate"
	CauseStalemate Cause = "stalemate"
	CauseFiftyMove Cause = "50"
	CauseTime      Cause = "time"
	CauseResign    Cause = "resign"
)

// Outcome is set once, when the game leaves the active state.
type Outcome struct {
	Winner Winner
	Cause  Cause
}

func winnerOf(c rules.Color) Winner {
	if c == rules.White {
		return WinnerWhite
	}
	return WinnerBlack
}

// Result is the PGN result code.
func (o Outcome) Result() string {
	switch o.Winner {
	case WinnerWhite:
		return notation.ResultWhiteWins
	case WinnerBlack:
		return notation.ResultBlackWins
	case WinnerNone:
		return notation.ResultDraw
	default:
		return notation.ResultOngoing
	}
}
