// Package notation converts between board state and the textual chess
// notations: square names, FEN, algebraic move text, raw engine moves and PGN.
package notation

import (
	"strings"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

// SquareString renders a square as "a1".."h8".
func SquareString(sq rules.Square) string {
	return string([]byte{byte('a' + sq.File), byte('1' + sq.Rank)})
}

// ParseSquare reads "a1".."h8".
func ParseSquare(s string) (rules.Square, bool) {
	if len(s) != 2 {
		return rules.Square{}, false
	}
	sq := rules.Sq(int(s[1]-'1'), int(s[0]-'a'))
	return sq, sq.Valid()
}

var pieceLetters = map[rules.PieceType]byte{
	rules.Pawn:   'P',
	rules.Knight: 'N',
	rules.Bishop: 'B',
	rules.Rook:   'R',
	rules.Queen:  'Q',
	rules.King:   'K',
}

var unicodeSymbols = map[rules.PieceType]string{
	rules.Pawn:   "♙",
	rules.Knight: "♘",
	rules.Bishop: "♗",
	rules.Rook:   "♖",
	rules.Queen:  "♕",
	rules.King:   "♔",
}

// PieceLetter is uppercase for White and lowercase for Black.
func PieceLetter(p *rules.Piece) string {
	if p == nil {
		return ""
	}
	l := string(pieceLetters[p.Type])
	if p.Color == rules.Black {
		return strings.ToLower(l)
	}
	return l
}

func UnicodeSymbol(t rules.PieceType) string {
	return unicodeSymbols[t]
}

// PieceFromLetter reads a FEN piece letter; case selects the color.
func PieceFromLetter(letter byte) (*rules.Piece, bool) {
	t, ok := PieceTypeFromLetter(letter)
	if !ok {
		return nil, false
	}
	c := rules.White
	if letter >= 'a' && letter <= 'z' {
		c = rules.Black
	}
	return rules.NewPiece(c, t), true
}

func PieceTypeFromLetter(letter byte) (rules.PieceType, bool) {
	if letter >= 'a' && letter <= 'z' {
		letter -= 'a' - 'A'
	}
	for t, l := range pieceLetters {
		if l == letter {
			return t, true
		}
	}
	return rules.NoPieceType, false
}
