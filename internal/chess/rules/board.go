package rules

import "strings"

// Board owns the 64 squares. It is not safe for concurrent use; simulation
// during validation mutates and restores it in place.
type Board struct {
	grid [8][8]*Piece
}

func NewBoard() *Board {
	return &Board{}
}

// NewStartingBoard returns a board with the standard initial position.
func NewStartingBoard() *Board {
	b := NewBoard()
	b.SetupPieces()
	return b
}

func (b *Board) At(sq Square) *Piece {
	if !sq.Valid() {
		return nil
	}
	return b.grid[sq.Rank][sq.File]
}

func (b *Board) Set(sq Square, p *Piece) {
	if !sq.Valid() {
		return
	}
	b.grid[sq.Rank][sq.File] = p
}

var backRankOrder = [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}

func (b *Board) SetupPieces() {
	for file := 0; file < 8; file++ {
		b.Set(Sq(0, file), NewPiece(White, backRankOrder[file]))
		b.Set(Sq(1, file), NewPiece(White, Pawn))
		b.Set(Sq(6, file), NewPiece(Black, Pawn))
		b.Set(Sq(7, file), NewPiece(Black, backRankOrder[file]))
	}
}

func (b *Board) Clear() {
	b.grid = [8][8]*Piece{}
}

// MakeMove relocates the moving piece without any legality check.
func (b *Board) MakeMove(m *Move) {
	b.Set(m.To, m.Piece)
	b.Set(m.From, nil)
}

// UndoMove is the exact inverse of MakeMove.
func (b *Board) UndoMove(m *Move) {
	b.Set(m.From, m.Piece)
	b.Set(m.To, m.Captured)
}

func (b *Board) FindKing(c Color) (Square, bool) {
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b.grid[rank][file]
			if p != nil && p.Type == King && p.Color == c {
				return Sq(rank, file), true
			}
		}
	}
	return Square{}, false
}

// IsCheck reports whether any opposing piece has a possible move onto c's king.
func (b *Board) IsCheck(c Color) bool {
	king, ok := b.FindKing(c)
	if !ok {
		return false
	}
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b.grid[rank][file]
			if p == nil || p.Color == c {
				continue
			}
			if IsPossibleMove(b, NewMove(b, Sq(rank, file), king)) {
				return true
			}
		}
	}
	return false
}

// IsAttacked reports whether a piece of color by could move onto target,
// ignoring the attacker's own king safety. Pawns attack along their capture
// diagonals whether or not target is occupied.
func (b *Board) IsAttacked(target Square, by Color) bool {
	if occupant := b.At(target); occupant != nil && occupant.Color == by {
		return false
	}
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b.grid[rank][file]
			if p == nil || p.Color != by {
				continue
			}
			from := Sq(rank, file)
			if !PatternAllowed(p.Type, p.Color, from, target, true) {
				continue
			}
			if !pathBlocked(b, from, target, p.Type) {
				return true
			}
		}
	}
	return false
}

func (b *Board) IsSafeAfterMove(m *Move) bool {
	b.MakeMove(m)
	safe := !b.IsCheck(m.Piece.Color)
	b.UndoMove(m)
	return safe
}

func (b *Board) isSafeAfterEnPassant(m *Move) bool {
	saved := m.Captured
	b.PerformEnPassant(m)
	safe := !b.IsCheck(m.Piece.Color)
	b.UndoEnPassant(m)
	m.Captured = saved
	return safe
}

func (b *Board) isSafeAfterCastling(m *Move) bool {
	b.PerformCastling(m)
	safe := !b.IsCheck(m.Piece.Color)
	b.UndoCastling(m)
	return safe
}

// GenerateAllValidNormalMoves lists c's legal moves excluding en passant and castling.
func (b *Board) GenerateAllValidNormalMoves(c Color) []*Move {
	return b.generate(c, func(m *Move) bool { return IsValidNormalMove(b, m) })
}

// GenerateAllValidMoves lists c's legal moves including en passant and castling.
func (b *Board) GenerateAllValidMoves(c Color, h *History) []*Move {
	return b.generate(c, func(m *Move) bool { return IsValidMove(b, m, h) })
}

func (b *Board) generate(c Color, valid func(*Move) bool) []*Move {
	var out []*Move
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p := b.grid[rank][file]
			if p == nil || p.Color != c {
				continue
			}
			from := Sq(rank, file)
			for tr := 0; tr < 8; tr++ {
				for tf := 0; tf < 8; tf++ {
					m := NewMove(b, from, Sq(tr, tf))
					if valid(m) {
						out = append(out, m)
					}
				}
			}
		}
	}
	return out
}

// PromotePawn replaces the moving pawn with a new piece of type t on the
// destination. The created piece is kept on the move and reused when the same
// move is applied again.
func (b *Board) PromotePawn(m *Move, t PieceType) bool {
	if m.Piece == nil || m.Piece.Type != Pawn || !t.IsPromotionTarget() {
		return false
	}
	if m.Promoted == nil || m.Promoted.Type != t {
		m.Promoted = &Piece{Color: m.Piece.Color, Type: t, Moved: true}
	}
	m.Promotion = t
	b.Set(m.To, m.Promoted)
	b.Set(m.From, nil)
	return true
}

func (b *Board) UndoPromotion(m *Move) {
	b.UndoMove(m)
}

func enPassantVictim(m *Move) Square {
	return Sq(m.From.Rank, m.To.File)
}

func (b *Board) PerformEnPassant(m *Move) {
	victim := enPassantVictim(m)
	m.Captured = b.At(victim)
	b.MakeMove(m)
	b.Set(victim, nil)
}

func (b *Board) UndoEnPassant(m *Move) {
	b.Set(m.From, m.Piece)
	b.Set(m.To, nil)
	b.Set(enPassantVictim(m), m.Captured)
}

// castlingRookSquares returns the rook's origin and destination for a king move.
func castlingRookSquares(m *Move) (Square, Square) {
	rank := m.From.Rank
	if m.To.File > m.From.File {
		return Sq(rank, 7), Sq(rank, 5)
	}
	return Sq(rank, 0), Sq(rank, 3)
}

func (b *Board) PerformCastling(m *Move) {
	b.MakeMove(m)
	oldRook, newRook := castlingRookSquares(m)
	b.Set(newRook, b.At(oldRook))
	b.Set(oldRook, nil)
}

func (b *Board) UndoCastling(m *Move) {
	b.UndoMove(m)
	oldRook, newRook := castlingRookSquares(m)
	b.Set(oldRook, b.At(newRook))
	b.Set(newRook, nil)
}

// Apply performs m according to its Kind.
func (b *Board) Apply(m *Move) {
	switch m.Kind {
	case Castling:
		b.PerformCastling(m)
	case EnPassant:
		b.PerformEnPassant(m)
	case Promotion:
		b.PromotePawn(m, m.Promotion)
	default:
		b.MakeMove(m)
	}
}

// Revert is the exact inverse of Apply.
func (b *Board) Revert(m *Move) {
	switch m.Kind {
	case Castling:
		b.UndoCastling(m)
	case EnPassant:
		b.UndoEnPassant(m)
	case Promotion:
		b.UndoPromotion(m)
	default:
		b.UndoMove(m)
	}
}

// Clone deep-copies the board. Pieces in the clone are new values.
func (b *Board) Clone() *Board {
	out := NewBoard()
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			if p := b.grid[rank][file]; p != nil {
				cp := *p
				out.grid[rank][file] = &cp
			}
		}
	}
	return out
}

// Equal compares occupancy, piece kinds and moved flags.
func (b *Board) Equal(o *Board) bool {
	for rank := 0; rank < 8; rank++ {
		for file := 0; file < 8; file++ {
			p, q := b.grid[rank][file], o.grid[rank][file]
			if (p == nil) != (q == nil) {
				return false
			}
			if p != nil && *p != *q {
				return false
			}
		}
	}
	return true
}

var asciiLetters = map[PieceType]byte{
	Pawn: 'p', Knight: 'n', Bishop: 'b', Rook: 'r', Queen: 'q', King: 'k',
}

// String draws the board from rank 8 down, uppercase for White.
func (b *Board) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		for file := 0; file < 8; file++ {
			p := b.grid[rank][file]
			if p == nil {
				sb.WriteByte('.')
				continue
			}
			ch := asciiLetters[p.Type]
			if p.Color == White {
				ch -= 'a' - 'A'
			}
			sb.WriteByte(ch)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
