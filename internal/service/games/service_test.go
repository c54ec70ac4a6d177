package games

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/cheese-chess/internal/archive"
	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/store"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

// scriptedEngine answers searches from a fixed list of moves.
type scriptedEngine struct {
	mu      sync.Mutex
	replies []string
	block   bool
	elos    []int
}

func (e *scriptedEngine) next(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.block {
		e.mu.Unlock()
		<-ctx.Done()
		return "", ctx.Err()
	}
	defer e.mu.Unlock()
	if len(e.replies) == 0 {
		return "", errors.New("no reply scripted")
	}
	m := e.replies[0]
	e.replies = e.replies[1:]
	return m, nil
}

func (e *scriptedEngine) BestMove(ctx context.Context, _ string, _ time.Duration) (string, error) {
	return e.next(ctx)
}

func (e *scriptedEngine) BestMoveTimed(ctx context.Context, _ string, _, _ time.Duration) (string, error) {
	return e.next(ctx)
}

func (e *scriptedEngine) Stop() error { return nil }

func (e *scriptedEngine) factory(elo int) game.MoveSource {
	e.mu.Lock()
	e.elos = append(e.elos, elo)
	e.mu.Unlock()
	return e
}

type fixture struct {
	svc  *Service
	st   *store.Store
	repo archive.Repository
	eng  *scriptedEngine
}

func newFixture(t *testing.T, replies ...string) *fixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		st:   store.NewStore(rdb, time.Hour),
		repo: archive.NewMemoryRepository(),
		eng:  &scriptedEngine{replies: replies},
	}
	f.svc = f.newService(t)
	return f
}

func (f *fixture) newService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(f.eng.factory, f.st, f.repo, nil, Config{SessionTTL: time.Hour}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func play(t *testing.T, svc *Service, id string, moves ...string) *chessdto.GameState {
	t.Helper()
	var st *chessdto.GameState
	for _, m := range moves {
		var err error
		st, err = svc.Move(context.Background(), id, chessdto.MoveRequest{Move: m})
		if err != nil {
			t.Fatalf("move %s: %v", m, err)
		}
	}
	return st
}

func TestCreateAndMoveTwoPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, err := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Turn != "white" || len(st.LegalMoves) != 20 || st.Result != "*" {
		t.Fatalf("initial state %+v", st)
	}

	st = play(t, f.svc, st.ID, "e2e4", "e7e5")
	if strings.Join(st.SAN, " ") != "e4 e5" || st.Turn != "white" {
		t.Fatalf("state after two moves %+v", st)
	}
	if st.MoveText != "1. e4 e5" {
		t.Fatalf("move text %q", st.MoveText)
	}

	rec, err := f.st.Load(ctx, st.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rec.Moves) != 2 || rec.Status != store.StatusActive {
		t.Fatalf("stored record %+v", rec)
	}
}

func TestMoveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})

	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e7e5"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("black on white's turn: %v", err)
	}
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e5"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal move: %v", err)
	}
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "zz"}); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("garbage move: %v", err)
	}
	if _, err := f.svc.Move(ctx, "missing", chessdto.MoveRequest{Move: "e2e4"}); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("missing game: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cases := []chessdto.CreateGameRequest{
		{Mode: "blitz"},
		{Mode: "computer", HumanColor: "green"},
		{Mode: "computer", Level: "impossible"},
		{Mode: "pvp", TimeMinutes: -1},
	}
	for _, req := range cases {
		if _, err := f.svc.Create(ctx, req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Create(%+v) err = %v", req, err)
		}
	}

	st, err := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "computer", Level: "hard"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.Elo != 2000 || st.HumanColor != "white" {
		t.Fatalf("computer game %+v", st)
	}
	st, _ = f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "computer", Elo: 99999})
	if st.Elo != 1320 {
		t.Fatalf("out of range elo kept: %d", st.Elo)
	}
}

func TestComputerReplyWait(t *testing.T) {
	f := newFixture(t, "e7e5")
	ctx := context.Background()
	st, err := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "computer", Elo: 1500})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	st, err = f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e4", Wait: true})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if strings.Join(st.Moves, " ") != "e2e4 e7e5" || st.Turn != "white" {
		t.Fatalf("state after reply %+v", st)
	}
	if len(f.eng.elos) != 1 || f.eng.elos[0] != 1500 {
		t.Fatalf("engine elos %v", f.eng.elos)
	}

	// 엔진 응답이 없으면 재요청이 실패해야 함.
	st = play(t, f.svc, st.ID, "g1f3")
	if _, err := f.svc.RequestEngineMove(ctx, st.ID); !errors.Is(err, ErrEngineUnavailable) {
		t.Fatalf("RequestEngineMove err = %v", err)
	}
}

func TestComputerTurnGuard(t *testing.T) {
	f := newFixture(t)
	f.eng.block = true
	ctx := context.Background()
	st, err := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "computer", HumanColor: "black"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e7e5"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("human moved on engine turn: %v", err)
	}
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e4"}); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("human moved engine pieces: %v", err)
	}
}

func TestUndo(t *testing.T) {
	f := newFixture(t, "e7e5")
	ctx := context.Background()

	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "computer"})
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e4", Wait: true}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	st, err := f.svc.Undo(ctx, st.ID)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if len(st.Moves) != 0 || st.Turn != "white" {
		t.Fatalf("computer undo left %+v", st)
	}
	if _, err := f.svc.Undo(ctx, st.ID); !errors.Is(err, ErrUndoNotAllowed) {
		t.Fatalf("undo at start: %v", err)
	}

	no := false
	st, _ = f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp", AllowUndo: &no})
	play(t, f.svc, st.ID, "d2d4")
	if _, err := f.svc.Undo(ctx, st.ID); !errors.Is(err, ErrUndoNotAllowed) {
		t.Fatalf("undo disabled: %v", err)
	}
}

func TestCheckmateArchivesAndPublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	events, unsubscribe := f.svc.Hub().Subscribe(st.ID)
	defer unsubscribe()

	st = play(t, f.svc, st.ID, "f2f3", "e7e5", "g2g4", "d8h4")
	if !st.Over || st.Winner != "black" || st.Cause != "checkmate" || st.Result != "0-1" {
		t.Fatalf("final state %+v", st)
	}
	if st.Message != "Checkmate. Black wins." {
		t.Fatalf("message %q", st.Message)
	}
	if _, err := f.svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "a2a3"}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("move after mate: %v", err)
	}

	var types []string
	for len(types) < 5 {
		select {
		case ev := <-events:
			types = append(types, ev.Type)
		case <-time.After(time.Second):
			t.Fatalf("events so far %v", types)
		}
	}
	if strings.Join(types, ",") != "move,move,move,move,end" {
		t.Fatalf("event order %v", types)
	}

	fg, err := f.svc.Archived(ctx, st.ID)
	if err != nil {
		t.Fatalf("Archived: %v", err)
	}
	if fg.Result != "0-1" || len(fg.SAN) != 4 || !strings.Contains(fg.PGN, "Qh4#") {
		t.Fatalf("archived %+v", fg)
	}
	recent, err := f.svc.Recent(ctx, 10)
	if err != nil || len(recent) != 1 {
		t.Fatalf("Recent = %v, %v", recent, err)
	}

	rec, err := f.st.Load(ctx, st.ID)
	if err != nil || rec.Status != store.StatusFinished {
		t.Fatalf("stored %+v, %v", rec, err)
	}
}

func TestResign(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	if _, err := f.svc.Resign(ctx, st.ID, chessdto.ResignRequest{}); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("resign without color: %v", err)
	}
	st, err := f.svc.Resign(ctx, st.ID, chessdto.ResignRequest{Color: "white"})
	if err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if st.Winner != "black" || st.Cause != "resign" {
		t.Fatalf("after resign %+v", st)
	}
	if _, err := f.svc.Resign(ctx, st.ID, chessdto.ResignRequest{Color: "black"}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("second resign: %v", err)
	}

	pgn, err := f.svc.PGN(ctx, st.ID)
	if err != nil {
		t.Fatalf("PGN: %v", err)
	}
	if !strings.HasSuffix(strings.TrimSpace(pgn), "0-1") {
		t.Fatalf("pgn %q", pgn)
	}
}

func TestRestoreFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp", TimeMinutes: 5, IncrementSeconds: 2})
	play(t, f.svc, st.ID, "e2e4", "e7e5")

	other := f.newService(t)
	got, err := other.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if strings.Join(got.SAN, " ") != "e4 e5" || got.Clock == nil {
		t.Fatalf("restored %+v", got)
	}
	if got.Clock.WhiteMS > 5*60*1000+2000 || got.Clock.WhiteMS < 4*60*1000 {
		t.Fatalf("restored white clock %d", got.Clock.WhiteMS)
	}

	got = play(t, other, st.ID, "g1f3")
	if len(got.Moves) != 3 {
		t.Fatalf("move after restore %+v", got)
	}
	rec, err := f.st.Load(ctx, st.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rec.Moves) != 3 {
		t.Fatalf("store not updated after restore: %+v", rec)
	}
}

func TestResumeActiveGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	live, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	play(t, f.svc, live.ID, "d2d4")
	done, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	play(t, f.svc, done.ID, "f2f3", "e7e5", "g2g4", "d8h4")

	other := f.newService(t)
	n, err := other.Resume(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Resume = %d, %v", n, err)
	}
	other.mu.Lock()
	_, ok := other.sessions[live.ID]
	other.mu.Unlock()
	if !ok {
		t.Fatalf("active game not resumed")
	}

	memOnly, err := NewService(f.eng.factory, nil, nil, nil, Config{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer memOnly.Close()
	if n, err := memOnly.Resume(ctx); n != 0 || err != nil {
		t.Fatalf("memory-only Resume = %d, %v", n, err)
	}
}

func TestFinishedGameServedFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	play(t, f.svc, st.ID, "f2f3", "e7e5", "g2g4", "d8h4")

	other := f.newService(t)
	got, err := other.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Over || got.Result != "0-1" || got.Message == "" {
		t.Fatalf("finished record %+v", got)
	}
	if _, err := other.Move(ctx, st.ID, chessdto.MoveRequest{Move: "a2a3"}); !errors.Is(err, ErrGameOver) {
		t.Fatalf("move on finished record: %v", err)
	}
	pgn, err := other.PGN(ctx, st.ID)
	if err != nil || !strings.Contains(pgn, "1. f3 e5 2. g4 Qh4#") {
		t.Fatalf("PGN = %q, %v", pgn, err)
	}
}

func TestSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st, _ := f.svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	_, unsubscribe := f.svc.Hub().Subscribe(st.ID)
	defer unsubscribe()

	if n := f.svc.Sweep(time.Now()); n != 0 {
		t.Fatalf("swept fresh session: %d", n)
	}
	if n := f.svc.Sweep(time.Now().Add(2 * time.Hour)); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if f.svc.Hub().Subscribers(st.ID) != 0 {
		t.Fatalf("subscribers kept after sweep")
	}
	// 저장소에서 다시 복원됨.
	if _, err := f.svc.Get(ctx, st.ID); err != nil {
		t.Fatalf("Get after sweep: %v", err)
	}
}

func TestMemoryOnlyService(t *testing.T) {
	svc, err := NewService((&scriptedEngine{}).factory, nil, nil, nil, Config{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()
	ctx := context.Background()
	st, _ := svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	svc.Sweep(time.Now().Add(2 * defaultSessionTTL))
	if _, err := svc.Get(ctx, st.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("Get after sweep: %v", err)
	}
	if _, err := svc.Archived(ctx, st.ID); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("Archived: %v", err)
	}
	if _, err := NewService(nil, nil, nil, nil, Config{}, nil); err == nil {
		t.Fatalf("nil engine factory accepted")
	}
}
