package rules

// Square is a board coordinate. Rank 0 is White's back rank, file 0 is the a-file.
type Square struct {
	Rank int
	File int
}

func Sq(rank, file int) Square { return Square{Rank: rank, File: file} }

func (s Square) Valid() bool {
	return s.Rank >= 0 && s.Rank < 8 && s.File >= 0 && s.File < 8
}

func (s Square) RankDistance(o Square) int { return abs(s.Rank - o.Rank) }

func (s Square) FileDistance(o Square) int { return abs(s.File - o.File) }

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}

// backRank returns the home rank of c's pieces.
func backRank(c Color) int {
	if c == White {
		return 0
	}
	return 7
}

// pawnRank returns the starting rank of c's pawns.
func pawnRank(c Color) int {
	if c == White {
		return 1
	}
	return 6
}

// forward is the rank direction c's pawns travel in.
func forward(c Color) int {
	if c == White {
		return 1
	}
	return -1
}
