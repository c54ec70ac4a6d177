package rules

// MoveKind classifies an applied move. A move is Unclassified until Game applies it.
type MoveKind int

const (
	Unclassified MoveKind = iota
	Normal
	Capture
	Castling
	EnPassant
	Promotion
)

func (k MoveKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Capture:
		return "capture"
	case Castling:
		return "castling"
	case EnPassant:
		return "en_passant"
	case Promotion:
		return "promotion"
	default:
		return "unclassified"
	}
}

// Move snapshots the moving and captured pieces at construction. FirstMove is
// captured at the same time so undo can restore the moved flag unambiguously.
type Move struct {
	From     Square
	To       Square
	Piece    *Piece
	Captured *Piece
	Kind     MoveKind

	// Promotion is the requested promotion type, NoPieceType otherwise.
	Promotion PieceType
	// Promoted is the piece created by PromotePawn; re-application reuses it.
	Promoted *Piece

	FirstMove bool
}

func NewMove(b *Board, from, to Square) *Move {
	m := &Move{From: from, To: to}
	if from.Valid() {
		m.Piece = b.At(from)
	}
	if to.Valid() {
		m.Captured = b.At(to)
	}
	m.FirstMove = m.Piece != nil && !m.Piece.Moved
	return m
}

// IsCapture reports whether the move takes an opposing piece.
func (m *Move) IsCapture() bool {
	return m.Captured != nil && m.Piece != nil && m.Piece.Color != m.Captured.Color
}
