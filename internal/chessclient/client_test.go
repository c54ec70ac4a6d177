package chessclient

import (
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"

	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/server"
	"github.com/park285/cheese-chess/internal/service/games"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

type replyEngine struct{}

func (replyEngine) BestMove(context.Context, string, time.Duration) (string, error) {
	return "e7e5", nil
}

func (replyEngine) BestMoveTimed(context.Context, string, time.Duration, time.Duration) (string, error) {
	return "e7e5", nil
}

func (replyEngine) Stop() error { return nil }

func newService(t *testing.T) *games.Service {
	t.Helper()
	svc, err := games.NewService(func(int) game.MoveSource { return replyEngine{} }, nil, nil, nil, games.Config{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(svc.Close)
	return svc
}

func newTestClient(t *testing.T, svc *games.Service) *Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	api, err := server.NewAPI(svc, nil, nil)
	if err != nil {
		t.Fatalf("NewAPI: %v", err)
	}
	srv := &fasthttp.Server{Handler: api.Handle}
	go srv.Serve(ln)
	t.Cleanup(func() { ln.Close() })

	return NewClient("http://chessd.test",
		WithDial(func(string) (net.Conn, error) { return ln.Dial() }),
		WithTimeout(5*time.Second),
		WithHeaderProvider(func() map[string]string { return map[string]string{"X-Request-Source": "test"} }),
	)
}

func TestClientPlaysAGame(t *testing.T) {
	c := newTestClient(t, newService(t))
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("Health: %v", err)
	}
	st, err := c.CreateGame(ctx, chessdto.CreateGameRequest{Mode: "computer", Elo: 1600})
	if err != nil {
		t.Fatalf("CreateGame: %v", err)
	}
	st, err = c.Move(ctx, st.ID, chessdto.MoveRequest{Move: "e2e4", Wait: true})
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if strings.Join(st.SAN, " ") != "e4 e5" {
		t.Fatalf("after move %+v", st)
	}
	if st, err = c.Undo(ctx, st.ID); err != nil || len(st.Moves) != 0 {
		t.Fatalf("Undo = %+v, %v", st, err)
	}
	if st, err = c.Resign(ctx, st.ID, chessdto.ResignRequest{}); err != nil || !st.Over {
		t.Fatalf("Resign = %+v, %v", st, err)
	}
	got, err := c.Game(ctx, st.ID)
	if err != nil || got.Cause != "resign" {
		t.Fatalf("Game = %+v, %v", got, err)
	}
	pgn, err := c.PGN(ctx, st.ID)
	if err != nil || !strings.Contains(pgn, "0-1") {
		t.Fatalf("PGN = %q, %v", pgn, err)
	}
	list, err := c.Recent(ctx, 5)
	if err != nil || len(list) != 0 {
		t.Fatalf("Recent = %v, %v", list, err)
	}
}

func TestClientDecodesAPIErrors(t *testing.T) {
	c := newTestClient(t, newService(t))
	ctx := context.Background()

	_, err := c.Game(ctx, "missing")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v", err)
	}
	if apiErr.Status != 404 || apiErr.Code != chessdto.CodeNotFound {
		t.Fatalf("api error %+v", apiErr)
	}

	st, _ := c.CreateGame(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	_, err = c.Move(ctx, st.ID, chessdto.MoveRequest{Move: "a1a8"})
	if !errors.As(err, &apiErr) || apiErr.Code != chessdto.CodeIllegalMove {
		t.Fatalf("illegal move err = %v", err)
	}
	if _, err := c.EngineMove(ctx, st.ID); !errors.As(err, &apiErr) || apiErr.Code != chessdto.CodeNotYourTurn {
		t.Fatalf("engine move err = %v", err)
	}
}

func TestEventStreamFollowsGame(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	st, err := svc.Create(ctx, chessdto.CreateGameRequest{Mode: "pvp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	srv := httptest.NewServer(server.NewEvents(svc, svc.Hub(), nil))
	defer srv.Close()

	events := make(chan chessdto.Event, 8)
	finished := make(chan struct{})
	stream := NewEventStream("ws"+strings.TrimPrefix(srv.URL, "http"), st.ID, 0)
	stream.OnEvent(func(ev *chessdto.Event) { events <- *ev })
	stream.OnStateChange(func(s StreamState) {
		if s == StreamFinished {
			close(finished)
		}
	})
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer stream.Close(context.Background())

	next := func() chessdto.Event {
		select {
		case ev := <-events:
			return ev
		case <-time.After(5 * time.Second):
			t.Fatalf("no event")
		}
		return chessdto.Event{}
	}
	if ev := next(); ev.Type != chessdto.EventState {
		t.Fatalf("first event %+v", ev)
	}
	if _, err := svc.Move(ctx, st.ID, chessdto.MoveRequest{Move: "d2d4"}); err != nil {
		t.Fatalf("Move: %v", err)
	}
	if ev := next(); ev.Type != chessdto.EventMove || ev.Move != "d2d4" {
		t.Fatalf("move event %+v", ev)
	}
	if _, err := svc.Resign(ctx, st.ID, chessdto.ResignRequest{Color: "white"}); err != nil {
		t.Fatalf("Resign: %v", err)
	}
	if ev := next(); ev.Type != chessdto.EventEnd {
		t.Fatalf("end event %+v", ev)
	}
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatalf("stream state %s", stream.State())
	}
}
