package msgcat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/chess/rules"
)

func TestGameOverMessages(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cases := []struct {
		o    game.Outcome
		want string
	}{
		{game.Outcome{Winner: game.WinnerWhite, Cause: game.CauseCheckmate}, "Checkmate. White wins."},
		{game.Outcome{Winner: game.WinnerWhite, Cause: game.CauseResign}, "Black resigned. White wins."},
		{game.Outcome{Winner: game.WinnerBlack, Cause: game.CauseTime}, "White time out. Black wins"},
		{game.Outcome{Winner: game.WinnerNone, Cause: game.CauseStalemate}, "Stalemate. Draw."},
		{game.Outcome{Winner: game.WinnerNone, Cause: game.CauseFiftyMove}, "Draw by fifty-move rule"},
	}
	for _, tc := range cases {
		if got := c.GameOver(tc.o); got != tc.want {
			t.Fatalf("GameOver(%+v) = %q, want %q", tc.o, got, tc.want)
		}
	}
}

func TestTurnStatusAndErrors(t *testing.T) {
	c, _ := New("")
	if got := c.TurnStatus(rules.Black, false); got != "Black to move" {
		t.Fatalf("turn = %q", got)
	}
	if got := c.TurnStatus(rules.White, true); got != "White is in check" {
		t.Fatalf("check = %q", got)
	}
	if got := c.Error("not_found", map[string]string{"ID": "g1"}, "x"); got != "Game g1 not found" {
		t.Fatalf("not_found = %q", got)
	}
	if got := c.Error("invalid_request", nil, "bad mode"); got != "bad mode" {
		t.Fatalf("fallback = %q", got)
	}
}

func TestRenderMissing(t *testing.T) {
	c, _ := New("")
	if _, err := c.Render("no.such.key", nil); err == nil {
		t.Fatalf("missing key rendered")
	}
	if _, err := c.Render("errors.illegal_move", map[string]string{}); err == nil {
		t.Fatalf("missing data key rendered")
	}
	if got := c.RenderOr("errors.illegal_move", map[string]string{"Move": "e2e5"}, "x"); got != "Illegal move: e2e5" {
		t.Fatalf("RenderOr = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	write("a.yaml", "game:\n  over:\n    stalemate: \"Pat.\"\n")
	write("notes.txt", "ignored")
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.GameOver(game.Outcome{Winner: game.WinnerNone, Cause: game.CauseStalemate}); got != "Pat." {
		t.Fatalf("override = %q", got)
	}
	if got := c.GameOver(game.Outcome{Winner: game.WinnerWhite, Cause: game.CauseCheckmate}); got != "Checkmate. White wins." {
		t.Fatalf("default lost: %q", got)
	}

	write("b.yml", "game:\n  over:\n    stalemate: \"Patt.\"\n")
	if _, err := New(dir); err == nil {
		t.Fatalf("duplicate override key accepted")
	}
}
