package rules

// PatternAllowed reports whether a piece of the given type and color may travel
// from one square to another by its movement pattern alone. Occupancy of the
// intermediate squares is not considered; isCapture selects the pawn's diagonal.
func PatternAllowed(t PieceType, c Color, from, to Square, isCapture bool) bool {
	if from == to {
		return false
	}
	dr := to.Rank - from.Rank
	df := to.File - from.File
	switch t {
	case Pawn:
		return pawnPattern(c, from, dr, df, isCapture)
	case Knight:
		return (abs(dr) == 2 && abs(df) == 1) || (abs(dr) == 1 && abs(df) == 2)
	case Bishop:
		return diagonal(dr, df)
	case Rook:
		return straight(dr, df)
	case Queen:
		return diagonal(dr, df) || straight(dr, df)
	case King:
		return abs(dr) <= 1 && abs(df) <= 1
	default:
		return false
	}
}

func pawnPattern(c Color, from Square, dr, df int, isCapture bool) bool {
	ahead := dr * forward(c)
	if isCapture {
		return ahead == 1 && abs(df) == 1
	}
	if df != 0 {
		return false
	}
	switch ahead {
	case 1:
		return true
	case 2:
		return from.Rank == pawnRank(c)
	default:
		return false
	}
}

func diagonal(dr, df int) bool {
	return dr != 0 && abs(dr) == abs(df)
}

func straight(dr, df int) bool {
	return (dr == 0) != (df == 0)
}
