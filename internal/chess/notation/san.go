package notation

import (
	"strings"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

// Notator renders history entries; it satisfies rules.Notator.
type Notator struct{}

var _ rules.Notator = Notator{}

func (Notator) Algebraic(b *rules.Board, m *rules.Move, h *rules.History) string {
	return Algebraic(b, m, h)
}

func (Notator) UnicodeAlgebraic(b *rules.Board, m *rules.Move, h *rules.History) string {
	return UnicodeAlgebraic(b, m, h)
}

// Algebraic renders m in standard algebraic notation. b must be the board
// after m was applied and h must already end with m; the move is briefly
// reverted to compute disambiguation.
func Algebraic(b *rules.Board, m *rules.Move, h *rules.History) string {
	if m.Kind == rules.Castling {
		return castlingText(m) + checkSuffix(b, m, h)
	}

	var sb strings.Builder
	capture := m.IsCapture() || m.Kind == rules.EnPassant
	if m.Piece.Type == rules.Pawn {
		if capture {
			sb.WriteByte(byte('a' + m.From.File))
		}
	} else {
		sb.WriteByte(pieceLetters[m.Piece.Type])
		b.Revert(m)
		sb.WriteString(disambiguation(b, m))
		b.Apply(m)
	}
	if capture {
		sb.WriteByte('x')
	}
	sb.WriteString(SquareString(m.To))
	if m.Kind == rules.Promotion {
		sb.WriteByte('=')
		sb.WriteByte(pieceLetters[m.Promotion])
	}
	sb.WriteString(checkSuffix(b, m, h))
	return sb.String()
}

var unicodeReplacer = strings.NewReplacer(
	"K", unicodeSymbols[rules.King],
	"Q", unicodeSymbols[rules.Queen],
	"R", unicodeSymbols[rules.Rook],
	"B", unicodeSymbols[rules.Bishop],
	"N", unicodeSymbols[rules.Knight],
)

// UnicodeAlgebraic is Algebraic with figurine piece symbols.
func UnicodeAlgebraic(b *rules.Board, m *rules.Move, h *rules.History) string {
	return unicodeReplacer.Replace(Algebraic(b, m, h))
}

func castlingText(m *rules.Move) string {
	if m.To.File > m.From.File {
		return "O-O"
	}
	return "O-O-O"
}

// disambiguation runs on the pre-move board.
func disambiguation(b *rules.Board, m *rules.Move) string {
	var rivals, sameFile, sameRank bool
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			from := rules.Sq(rank, file)
			if from == m.From {
				continue
			}
			p := b.At(from)
			if p == nil || p.Color != m.Piece.Color || p.Type != m.Piece.Type {
				continue
			}
			if !rules.IsValidNormalMove(b, rules.NewMove(b, from, m.To)) {
				continue
			}
			rivals = true
			if from.File == m.From.File {
				sameFile = true
			}
			if from.Rank == m.From.Rank {
				sameRank = true
			}
		}
	}
	switch {
	case !rivals:
		return ""
	case !sameFile:
		return string(byte('a' + m.From.File))
	case !sameRank:
		return string(byte('1' + m.From.Rank))
	default:
		return SquareString(m.From)
	}
}

func checkSuffix(b *rules.Board, m *rules.Move, h *rules.History) string {
	opp := m.Piece.Color.Opponent()
	if !b.IsCheck(opp) {
		return ""
	}
	if len(b.GenerateAllValidMoves(opp, h)) == 0 {
		return "#"
	}
	return "+"
}
