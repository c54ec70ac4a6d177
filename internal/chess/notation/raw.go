package notation

import (
	"fmt"
	"strings"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

// EncodeMove renders m the way UCI engines do: "e2e4", "e7e8q".
func EncodeMove(m *rules.Move) string {
	s := SquareString(m.From) + SquareString(m.To)
	if m.Promotion != rules.NoPieceType {
		s += strings.ToLower(string(pieceLetters[m.Promotion]))
	}
	return s
}

// RawMoves renders every history move with EncodeMove.
func RawMoves(h *rules.History) []string {
	moves := h.Moves()
	out := make([]string, len(moves))
	for i, m := range moves {
		out[i] = EncodeMove(m)
	}
	return out
}

// ParseMove decodes an untrusted raw move against b. The returned move is not
// validated; ok is false when the text is malformed.
func ParseMove(b *rules.Board, s string) (m *rules.Move, ok bool) {
	s = strings.TrimSpace(s)
	if len(s) != 4 && len(s) != 5 {
		return nil, false
	}
	from, ok := ParseSquare(s[0:2])
	if !ok {
		return nil, false
	}
	to, ok := ParseSquare(s[2:4])
	if !ok {
		return nil, false
	}
	m = rules.NewMove(b, from, to)
	if len(s) == 5 {
		t, ok := promotionType(s[4])
		if !ok {
			return nil, false
		}
		m.Promotion = t
	}
	return m, true
}

// DecodeEngineMove decodes a move produced by the engine. Text that is not a
// move at all returns ok=false; squares followed by an unknown promotion
// letter panic.
func DecodeEngineMove(b *rules.Board, s string) (*rules.Move, bool) {
	s = strings.TrimSpace(s)
	if len(s) == 5 {
		_, fromOK := ParseSquare(s[0:2])
		_, toOK := ParseSquare(s[2:4])
		if _, known := promotionType(s[4]); fromOK && toOK && !known {
			panic(fmt.Sprintf("notation: unknown promotion letter in engine move %q", s))
		}
	}
	return ParseMove(b, s)
}

func promotionType(letter byte) (rules.PieceType, bool) {
	t, ok := PieceTypeFromLetter(letter)
	if !ok || !t.IsPromotionTarget() {
		return rules.NoPieceType, false
	}
	return t, true
}
