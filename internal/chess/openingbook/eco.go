package openingbook

import (
	"sync"

	chesslib "github.com/corentings/chess/v2"
	"github.com/corentings/chess/v2/opening"
)

// maxECOPlies bounds how much of a game is replayed to name its opening.
const maxECOPlies = 24

var (
	ecoOnce sync.Once
	ecoBook *opening.BookECO
)

func eco() *opening.BookECO {
	ecoOnce.Do(func() { ecoBook = opening.NewBookECO() })
	return ecoBook
}

// Name returns the ECO code and title of the opening played by raw moves
// ("e2e4", "c7c5", ...). Both are empty when nothing matches.
func Name(moves []string) (code, title string) {
	if len(moves) == 0 {
		return "", ""
	}
	if len(moves) > maxECOPlies {
		moves = moves[:maxECOPlies]
	}
	game := chesslib.NewGame()
	for _, mv := range moves {
		if err := game.PushNotationMove(mv, chesslib.UCINotation{}, nil); err != nil {
			break
		}
	}
	book := eco()
	if book == nil {
		return "", ""
	}
	if o := book.Find(game.Moves()); o != nil {
		return o.Code(), o.Title()
	}
	return "", ""
}
