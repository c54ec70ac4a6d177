package rules

// IsPossibleMove checks occupancy, pattern and path, ignoring king safety.
func IsPossibleMove(b *Board, m *Move) bool {
	if m.Piece == nil || !m.From.Valid() || !m.To.Valid() {
		return false
	}
	if b.At(m.From) == nil {
		return false
	}
	if m.Captured != nil && m.Captured.Color == m.Piece.Color {
		return false
	}
	if !PatternAllowed(m.Piece.Type, m.Piece.Color, m.From, m.To, m.IsCapture()) {
		return false
	}
	return !pathBlocked(b, m.From, m.To, m.Piece.Type)
}

// IsValidNormalMove is IsPossibleMove plus king safety.
func IsValidNormalMove(b *Board, m *Move) bool {
	if !IsPossibleMove(b, m) {
		return false
	}
	return b.IsSafeAfterMove(m)
}

// IsValidMove accepts a normal move, en passant or castling, then checks king
// safety once more for the branch that matched.
func IsValidMove(b *Board, m *Move, h *History) bool {
	switch {
	case IsValidNormalMove(b, m):
		return b.IsSafeAfterMove(m)
	case IsValidEnPassant(b, m, h):
		return b.isSafeAfterEnPassant(m)
	case IsValidCastling(b, m):
		return b.isSafeAfterCastling(m)
	default:
		return false
	}
}

func pathBlocked(b *Board, from, to Square, t PieceType) bool {
	switch t {
	case Pawn:
		if from.RankDistance(to) == 2 {
			middle := Sq(from.Rank+sign(to.Rank-from.Rank), from.File)
			return b.At(middle) != nil
		}
		return false
	case Bishop, Rook, Queen:
		dr, df := sign(to.Rank-from.Rank), sign(to.File-from.File)
		for sq := Sq(from.Rank+dr, from.File+df); sq != to; sq = Sq(sq.Rank+dr, sq.File+df) {
			if !sq.Valid() {
				return true
			}
			if b.At(sq) != nil {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func IsDoublePawnPush(m *Move) bool {
	if m == nil || m.Piece == nil || m.Piece.Type != Pawn {
		return false
	}
	return m.From.RankDistance(m.To) == 2
}

// IsPromotion reports whether m brings a pawn to its last rank.
func IsPromotion(m *Move) bool {
	if m.Piece == nil || m.Piece.Type != Pawn {
		return false
	}
	return m.To.Rank == backRank(m.Piece.Color.Opponent())
}

// IsEnPassantPattern reports a diagonal pawn step onto an empty square.
func IsEnPassantPattern(b *Board, m *Move) bool {
	if m.Piece == nil || m.Piece.Type != Pawn || b.At(m.To) != nil {
		return false
	}
	return PatternAllowed(Pawn, m.Piece.Color, m.From, m.To, true)
}

func IsValidEnPassant(b *Board, m *Move, h *History) bool {
	if !IsEnPassantPattern(b, m) || b.At(m.From) != m.Piece {
		return false
	}
	if h == nil || h.Len() == 0 {
		return false
	}
	last := h.Last()
	if !IsDoublePawnPush(last) || last.Piece.Color == m.Piece.Color {
		return false
	}
	if b.At(last.To) != last.Piece || b.At(m.To) != nil {
		return false
	}
	if m.From.Rank != last.To.Rank || m.From.FileDistance(last.To) != 1 {
		return false
	}
	if m.To.Rank-last.To.Rank != forward(m.Piece.Color) || m.To.File != last.To.File {
		return false
	}
	return b.isSafeAfterEnPassant(m)
}

func IsValidCastling(b *Board, m *Move) bool {
	if m.Piece == nil || b.At(m.From) != m.Piece {
		return false
	}
	if m.Piece.Type != King || m.Piece.Moved {
		return false
	}
	color := m.Piece.Color
	if b.IsCheck(color) {
		return false
	}
	rank := backRank(color)
	if m.From.Rank != rank || m.To.Rank != rank || m.From.File != 4 {
		return false
	}
	var rookFile, transitFile int
	switch m.To.File {
	case 6:
		rookFile, transitFile = 7, 5
	case 2:
		rookFile, transitFile = 0, 3
	default:
		return false
	}
	rookSq := Sq(rank, rookFile)
	rook := b.At(rookSq)
	if rook == nil || rook.Type != Rook || rook.Color != color || rook.Moved {
		return false
	}
	if pathBlocked(b, rookSq, m.From, Rook) {
		return false
	}
	if b.IsAttacked(Sq(rank, transitFile), color.Opponent()) {
		return false
	}
	return b.isSafeAfterCastling(m)
}

func CanCastleKingside(b *Board, c Color) bool {
	return castlingPiecesUnmoved(b, c, 7)
}

func CanCastleQueenside(b *Board, c Color) bool {
	return castlingPiecesUnmoved(b, c, 0)
}

func castlingPiecesUnmoved(b *Board, c Color, rookFile int) bool {
	rank := backRank(c)
	king := b.At(Sq(rank, 4))
	rook := b.At(Sq(rank, rookFile))
	return king != nil && king.Type == King && king.Color == c && !king.Moved &&
		rook != nil && rook.Type == Rook && rook.Color == c && !rook.Moved
}

// Classify picks the kind of a move already known to be valid, with priority
// castling, promotion, en passant, capture, normal.
func Classify(b *Board, m *Move, h *History) MoveKind {
	switch {
	case m.Piece.Type == King && m.From.FileDistance(m.To) == 2:
		return Castling
	case IsPromotion(m):
		return Promotion
	case m.Captured == nil && IsValidEnPassant(b, m, h):
		return EnPassant
	case m.IsCapture():
		return Capture
	default:
		return Normal
	}
}
