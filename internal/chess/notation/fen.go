package notation

import (
	"strconv"
	"strings"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Position is the read side of a game that FEN needs.
type Position interface {
	Board() *rules.Board
	Turn() rules.Color
	History() *rules.History
	HalfMoves() int
}

// FEN renders the six FEN fields. Castling rights come from the moved flags
// and the en passant target from the last history move.
func FEN(p Position) string {
	b := p.Board()
	h := p.History()

	var sb strings.Builder
	sb.WriteString(Placement(b))

	sb.WriteByte(' ')
	if p.Turn() == rules.White {
		sb.WriteByte('w')
	} else {
		sb.WriteByte('b')
	}

	sb.WriteByte(' ')
	sb.WriteString(CastlingRights(b))

	sb.WriteByte(' ')
	sb.WriteString(EnPassantTarget(h))

	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.HalfMoves()))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(h.Len()/2 + 1))
	return sb.String()
}

// Placement is the first FEN field, rank 8 first.
func Placement(b *rules.Board) string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		empty := 0
		for file := 0; file < 8; file++ {
			p := b.At(rules.Sq(rank, file))
			if p == nil {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			sb.WriteString(PieceLetter(p))
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if rank > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

func CastlingRights(b *rules.Board) string {
	var sb strings.Builder
	if rules.CanCastleKingside(b, rules.White) {
		sb.WriteByte('K')
	}
	if rules.CanCastleQueenside(b, rules.White) {
		sb.WriteByte('Q')
	}
	if rules.CanCastleKingside(b, rules.Black) {
		sb.WriteByte('k')
	}
	if rules.CanCastleQueenside(b, rules.Black) {
		sb.WriteByte('q')
	}
	if sb.Len() == 0 {
		return "-"
	}
	return sb.String()
}

// EnPassantTarget names the square behind a pawn that just made a double
// push, whether or not a capture is available.
func EnPassantTarget(h *rules.History) string {
	last := h.Last()
	if !rules.IsDoublePawnPush(last) {
		return "-"
	}
	return SquareString(rules.Sq((last.From.Rank+last.To.Rank)/2, last.To.File))
}
