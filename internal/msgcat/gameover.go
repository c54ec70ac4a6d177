package msgcat

import (
	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

var overKeys = map[game.Cause]string{
	game.CauseCheckmate: "game.over.checkmate",
	game.CauseStalemate: "game.over.stalemate",
	game.CauseFiftyMove: "game.over.fifty",
	game.CauseResign:    "game.over.resign",
	game.CauseTime:      "game.over.time",
}

// GameOver renders the end-of-game message for an outcome.
func (c *Catalog) GameOver(o game.Outcome) string {
	key, ok := overKeys[o.Cause]
	if !ok {
		return ""
	}
	data := map[string]string{}
	switch o.Winner {
	case game.WinnerWhite:
		data["Winner"], data["Loser"] = "White", "Black"
	case game.WinnerBlack:
		data["Winner"], data["Loser"] = "Black", "White"
	}
	return c.RenderOr(key, data, string(o.Cause))
}

// TurnStatus renders whose move it is, or that the side to move is in check.
func (c *Catalog) TurnStatus(turn rules.Color, check bool) string {
	color := "White"
	if turn == rules.Black {
		color = "Black"
	}
	key := "game.turn"
	if check {
		key = "game.check"
	}
	return c.RenderOr(key, map[string]string{"Color": color}, "")
}

// Error renders the API message for an error code, or fallback when the
// catalog has no message for it.
func (c *Catalog) Error(code string, data map[string]string, fallback string) string {
	return c.RenderOr("errors."+code, data, fallback)
}
