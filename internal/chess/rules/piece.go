package rules

// Color identifies a side.
type Color int

const (
	White Color = iota
	Black
)

func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

// PieceType is the tagged kind of a piece. NoPieceType marks "no promotion".
type PieceType int

const (
	NoPieceType PieceType = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	default:
		return "none"
	}
}

// IsPromotionTarget reports whether a pawn may promote to t.
func (t PieceType) IsPromotionTarget() bool {
	switch t {
	case Knight, Bishop, Rook, Queen:
		return true
	default:
		return false
	}
}

// Piece is shared by pointer so that its identity and moved flag travel with it.
type Piece struct {
	Color Color
	Type  PieceType
	Moved bool
}

func NewPiece(c Color, t PieceType) *Piece {
	return &Piece{Color: c, Type: t}
}

func (p *Piece) IsWhite() bool { return p != nil && p.Color == White }
