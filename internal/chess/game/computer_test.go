package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/cheese-chess/internal/chess/rules"
)

type fakeEngine struct {
	mu    sync.Mutex
	reply string
	err   error
	block bool
	stops int
	calls []time.Duration
}

func (f *fakeEngine) answer(ctx context.Context) (string, error) {
	f.mu.Lock()
	block, reply, err := f.block, f.reply, f.err
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func (f *fakeEngine) BestMove(ctx context.Context, _ string, movetime time.Duration) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, movetime)
	f.mu.Unlock()
	return f.answer(ctx)
}

func (f *fakeEngine) BestMoveTimed(ctx context.Context, _ string, wtime, _ time.Duration) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, wtime)
	f.mu.Unlock()
	return f.answer(ctx)
}

func (f *fakeEngine) Stop() error {
	f.mu.Lock()
	f.stops++
	f.mu.Unlock()
	return nil
}

func TestComputerReplies(t *testing.T) {
	eng := &fakeEngine{reply: "e7e5"}
	g := NewComputerGame(rules.White, eng, 1500, nil)
	defer g.Close()

	if _, ok := g.ExecuteComputerMove(context.Background()); ok {
		t.Fatalf("engine moved on the human's turn")
	}
	playRaw(t, g, "e2e4")
	if !g.EngineToMove() {
		t.Fatalf("engine should be to move")
	}
	m, ok := g.ExecuteComputerMove(context.Background())
	if !ok || m == nil || m.Piece.Color != rules.Black {
		t.Fatalf("engine move = %+v ok=%v", m, ok)
	}
	if len(eng.calls) != 1 || eng.calls[0] != untimedBudget {
		t.Fatalf("engine budget = %v", eng.calls)
	}
	if got := g.SAN(); len(got) != 2 || got[1] != "e5" {
		t.Fatalf("SAN = %v", got)
	}
}

func TestComputerFixedMoveTime(t *testing.T) {
	eng := &fakeEngine{reply: "d7d5"}
	g := NewComputerGame(rules.White, eng, 1500, []ComputerOption{WithMoveTime(300 * time.Millisecond)})
	defer g.Close()
	playRaw(t, g, "d2d4")
	if _, ok := g.ExecuteComputerMove(context.Background()); !ok {
		t.Fatalf("engine move rejected")
	}
	if len(eng.calls) != 1 || eng.calls[0] != 300*time.Millisecond {
		t.Fatalf("engine movetime = %v", eng.calls)
	}
}

func TestHumanCannotMoveEngineSide(t *testing.T) {
	g := NewComputerGame(rules.Black, &fakeEngine{reply: "e2e4"}, 1500, nil)
	defer g.Close()
	if g.MakeRawMove("e2e4") {
		t.Fatalf("human moved the engine's pieces")
	}
	if _, ok := g.ExecuteComputerMove(context.Background()); !ok {
		t.Fatalf("engine opening move rejected")
	}
	playRaw(t, g, "c7c5")
	if g.Plies() != 2 {
		t.Fatalf("plies = %d", g.Plies())
	}
}

func TestEngineFailureLeavesGame(t *testing.T) {
	g := NewComputerGame(rules.White, &fakeEngine{err: errors.New("engine died")}, 1500, nil)
	defer g.Close()
	playRaw(t, g, "e2e4")
	fen := g.FEN()
	if _, ok := g.ExecuteComputerMove(context.Background()); ok {
		t.Fatalf("failed search applied a move")
	}
	if g.FEN() != fen {
		t.Fatalf("board changed after engine failure")
	}
}

func TestCancelCalculation(t *testing.T) {
	eng := &fakeEngine{block: true}
	g := NewComputerGame(rules.White, eng, 1500, nil)
	defer g.Close()
	playRaw(t, g, "e2e4")
	board := g.Board()

	res := g.StartComputerMove(context.Background())
	time.Sleep(20 * time.Millisecond)
	g.CancelCalculation()

	select {
	case r := <-res:
		if r.OK || r.Move != nil {
			t.Fatalf("cancelled search produced %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatalf("worker did not exit after cancel")
	}
	if !g.Board().Equal(board) || g.Plies() != 1 {
		t.Fatalf("board changed by cancelled search")
	}
	if eng.stops != 1 {
		t.Fatalf("engine stop sent %d times", eng.stops)
	}
}

// stubbornEngine ignores cancellation and answers g8f6, which is legal after
// both 1.e4 and 1.d4.
type stubbornEngine struct {
	mu      sync.Mutex
	fens    []string
	started chan struct{}
	release chan struct{}
}

func (s *stubbornEngine) search(fen string) (string, error) {
	s.mu.Lock()
	s.fens = append(s.fens, fen)
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	return "g8f6", nil
}

func (s *stubbornEngine) BestMove(_ context.Context, fen string, _ time.Duration) (string, error) {
	return s.search(fen)
}

func (s *stubbornEngine) BestMoveTimed(_ context.Context, fen string, _, _ time.Duration) (string, error) {
	return s.search(fen)
}

func (s *stubbornEngine) Stop() error { return nil }

func TestLateEngineMoveAfterUndoIsDropped(t *testing.T) {
	eng := &stubbornEngine{started: make(chan struct{}, 1), release: make(chan struct{})}
	g := NewComputerGame(rules.White, eng, 1500, nil)
	defer g.Close()
	playRaw(t, g, "e2e4")

	res := g.StartComputerMove(context.Background())
	<-eng.started
	if !g.UndoLastMove() {
		t.Fatalf("undo rejected")
	}
	playRaw(t, g, "d2d4")
	want := g.FEN()
	close(eng.release)

	if r := <-res; r.OK || r.Move != nil {
		t.Fatalf("stale search produced %+v", r)
	}
	if g.FEN() != want || g.Plies() != 1 {
		t.Fatalf("board changed by stale search: %s", g.FEN())
	}
}

func TestStaleResultNeverApplied(t *testing.T) {
	const afterD4 = "rnbqkbnr/pppppppp/8/8/3P4/8/PPP1PPPP/RNBQKBNR b KQkq d3 0 1"
	for i := 0; i < 500; i++ {
		eng := &stubbornEngine{}
		g := NewComputerGame(rules.White, eng, 1500, nil)
		playRaw(t, g, "e2e4")
		res := g.StartComputerMove(context.Background())
		if !g.UndoLastMove() {
			t.Fatalf("run %d: undo rejected", i)
		}
		playRaw(t, g, "d2d4")
		r := <-res
		if r.OK {
			eng.mu.Lock()
			fens := append([]string(nil), eng.fens...)
			eng.mu.Unlock()
			if len(fens) == 0 || fens[len(fens)-1] != afterD4 {
				t.Fatalf("run %d: move searched on %v applied after 1.d4", i, fens)
			}
		}
		g.Close()
	}
}

func TestMalformedEngineMoveIsRejected(t *testing.T) {
	for _, reply := range []string{"e7", "a9a1", "(none)"} {
		g := NewComputerGame(rules.White, &fakeEngine{reply: reply}, 1500, nil)
		playRaw(t, g, "e2e4")
		fen := g.FEN()
		if m, ok := g.ExecuteComputerMove(context.Background()); ok || m != nil {
			t.Fatalf("reply %q applied as %+v", reply, m)
		}
		if g.FEN() != fen || !g.EngineToMove() {
			t.Fatalf("reply %q changed the game", reply)
		}
		g.Close()
	}
}

func TestComputerUndoReturnsControl(t *testing.T) {
	eng := &fakeEngine{reply: "e7e5"}
	g := NewComputerGame(rules.White, eng, 1500, nil)
	defer g.Close()
	playRaw(t, g, "e2e4")
	if _, ok := g.ExecuteComputerMove(context.Background()); !ok {
		t.Fatalf("engine move rejected")
	}
	if !g.UndoLastMove() {
		t.Fatalf("undo rejected")
	}
	if g.Plies() != 0 || g.Turn() != rules.White {
		t.Fatalf("plies=%d turn=%v after undo", g.Plies(), g.Turn())
	}

	playRaw(t, g, "d2d4")
	if !g.UndoLastMove() {
		t.Fatalf("undo before engine reply rejected")
	}
	if g.Plies() != 0 {
		t.Fatalf("plies = %d", g.Plies())
	}
	if g.UndoLastMove() {
		t.Fatalf("undo on empty history accepted")
	}
}

func TestComputerResignAndPGN(t *testing.T) {
	g := NewComputerGame(rules.White, &fakeEngine{}, 2000, nil)
	defer g.Close()
	playRaw(t, g, "e2e4")
	if !g.Resign() {
		t.Fatalf("resign rejected")
	}
	o, _ := g.Outcome()
	if o.Winner != WinnerBlack || o.Cause != CauseResign {
		t.Fatalf("outcome = %+v", o)
	}
	want := "[Event \"Chess game\"]\n[Round \"-\"]\n[White \"Player\"]\n[Black \"Computer\"]\n[BlackElo \"2000\"]\n[Result \"0-1\"]\n\n1. e4 0-1"
	if got := g.PGN(); got != want {
		t.Fatalf("PGN\n%s\nwant\n%s", got, want)
	}
}
