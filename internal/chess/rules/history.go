package rules

import (
	"strconv"
	"strings"
)

// Notator renders an applied move. Both methods receive the board after the
// move and the history that already contains it.
type Notator interface {
	Algebraic(b *Board, m *Move, h *History) string
	UnicodeAlgebraic(b *Board, m *Move, h *History) string
}

// History keeps applied moves together with their SAN renderings. The three
// sequences always have the same length.
type History struct {
	notator Notator
	moves   []*Move
	san     []string
	unicode []string
}

// NewHistory returns an empty history. A nil notator leaves the SAN sequences
// filled with empty strings.
func NewHistory(n Notator) *History {
	return &History{notator: n}
}

// Append records m, which must already be applied to b.
func (h *History) Append(b *Board, m *Move) {
	h.moves = append(h.moves, m)
	var ascii, uni string
	if h.notator != nil {
		ascii = h.notator.Algebraic(b, m, h)
		uni = h.notator.UnicodeAlgebraic(b, m, h)
	}
	h.san = append(h.san, ascii)
	h.unicode = append(h.unicode, uni)
}

// Pop removes and returns the last move, or nil when empty.
func (h *History) Pop() *Move {
	n := len(h.moves)
	if n == 0 {
		return nil
	}
	m := h.moves[n-1]
	h.moves = h.moves[:n-1]
	h.san = h.san[:n-1]
	h.unicode = h.unicode[:n-1]
	return m
}

func (h *History) Reset() {
	h.moves = nil
	h.san = nil
	h.unicode = nil
}

func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.moves)
}

func (h *History) Last() *Move {
	if h.Len() == 0 {
		return nil
	}
	return h.moves[len(h.moves)-1]
}

func (h *History) Moves() []*Move {
	out := make([]*Move, len(h.moves))
	copy(out, h.moves)
	return out
}

func (h *History) SAN() []string {
	out := make([]string, len(h.san))
	copy(out, h.san)
	return out
}

func (h *History) UnicodeSAN() []string {
	out := make([]string, len(h.unicode))
	copy(out, h.unicode)
	return out
}

// String renders numbered move text: "1. e4 e5 2. Nf3".
func (h *History) String() string {
	return NumberedMoveText(h.san)
}

// NumberedMoveText joins SAN tokens with full-move numbers.
func NumberedMoveText(san []string) string {
	var sb strings.Builder
	for i, mv := range san {
		if i%2 == 0 {
			if i > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(strconv.Itoa(i/2 + 1))
			sb.WriteString(". ")
		} else {
			sb.WriteByte(' ')
		}
		sb.WriteString(mv)
	}
	return sb.String()
}
