package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
)

type goMode int

const (
	answerNow   goMode = iota // bestmove right after go
	answerStop                // bestmove only after stop
	neverAnswer               // ignores stop as well
)

// fakeEngine speaks just enough UCI over a pair of pipes.
type fakeEngine struct {
	mu        sync.Mutex
	mode      goMode
	best      string
	received  []string
	searching bool

	out *io.PipeWriter
}

func (f *fakeEngine) setMode(m goMode) {
	f.mu.Lock()
	f.mode = m
	f.mu.Unlock()
}

func (f *fakeEngine) commands(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var got []string
	for _, c := range f.received {
		if strings.HasPrefix(c, prefix) {
			got = append(got, c)
		}
	}
	return got
}

func (f *fakeEngine) write(lines ...string) {
	for _, l := range lines {
		fmt.Fprintln(f.out, l)
	}
}

func (f *fakeEngine) serve(in io.Reader) {
	defer f.out.Close()
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		cmd := strings.TrimSpace(sc.Text())
		f.mu.Lock()
		f.received = append(f.received, cmd)
		mode, best := f.mode, f.best
		f.mu.Unlock()

		switch {
		case cmd == "uci":
			f.write("id name Fake", "option name Hash type spin default 16 min 1 max 33554432", "uciok")
		case cmd == "isready":
			f.write("readyok")
		case strings.HasPrefix(cmd, "go"):
			switch mode {
			case answerNow:
				f.write("info depth 12 score cp 35 nodes 1000 pv "+best+" e7e5", "bestmove "+best+" ponder e7e5")
			default:
				f.mu.Lock()
				f.searching = true
				f.mu.Unlock()
			}
		case cmd == "stop":
			f.mu.Lock()
			answer := f.searching && mode != neverAnswer
			if answer {
				f.searching = false
			}
			f.mu.Unlock()
			if answer {
				f.write("bestmove " + best)
			}
		case cmd == "quit":
			return
		}
	}
}

func newFakeSession(t *testing.T, opt Options) (*Session, *fakeEngine) {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	f := &fakeEngine{best: "e2e4", out: outW}
	go f.serve(inR)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := NewSession(ctx, outR, inW, opt)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, f
}

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestHandshakeAppliesOptions(t *testing.T) {
	s, f := newFakeSession(t, Options{Threads: 2, HashMB: 64, Elo: 1500})
	if s.State() != Ready {
		t.Fatalf("state = %v", s.State())
	}
	want := []string{
		"setoption name Threads value 2",
		"setoption name Hash value 64",
		"setoption name Ponder value false",
		"setoption name UCI_LimitStrength value true",
		"setoption name UCI_Elo value 1500",
	}
	got := f.commands("setoption")
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("setoption commands\n%v\nwant\n%v", got, want)
	}
}

func TestBestMoveRecordsInfo(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	mv, err := s.BestMove(context.Background(), startFEN, 50*time.Millisecond)
	if err != nil || mv != "e2e4" {
		t.Fatalf("BestMove = %q, %v", mv, err)
	}
	if got := f.commands("go"); len(got) != 1 || got[0] != "go movetime 50" {
		t.Fatalf("go commands = %v", got)
	}
	if pos := f.commands("position"); len(pos) != 1 || pos[0] != "position fen "+startFEN {
		t.Fatalf("position commands = %v", pos)
	}
	info := s.LastInfo()
	if info.Depth != 12 || info.EvalCP != 35 || len(info.PV) != 2 || info.PV[0] != "e2e4" {
		t.Fatalf("info = %+v", info)
	}
	if s.State() != Ready {
		t.Fatalf("state after search = %v", s.State())
	}
}

func TestBestMoveUsesCache(t *testing.T) {
	cache := NewMemoryCache(4)
	s, f := newFakeSession(t, Options{Cache: cache})
	for i := 0; i < 3; i++ {
		if mv, err := s.BestMove(context.Background(), startFEN, 100*time.Millisecond); err != nil || mv != "e2e4" {
			t.Fatalf("BestMove #%d = %q, %v", i, mv, err)
		}
	}
	if n := len(f.commands("go")); n != 1 {
		t.Fatalf("engine searched %d times", n)
	}

	s.SetCacheEnabled(false)
	if _, err := s.BestMove(context.Background(), startFEN, 100*time.Millisecond); err != nil {
		t.Fatalf("BestMove: %v", err)
	}
	if n := len(f.commands("go")); n != 2 {
		t.Fatalf("disabled cache still served: %d searches", n)
	}
}

func TestSearchTimeoutSendsStop(t *testing.T) {
	s, f := newFakeSession(t, Options{SearchSlack: 10 * time.Millisecond})
	f.setMode(answerStop)
	mv, err := s.BestMove(context.Background(), startFEN, 10*time.Millisecond)
	if err != nil || mv != "e2e4" {
		t.Fatalf("BestMove = %q, %v", mv, err)
	}
	if len(f.commands("stop")) != 1 {
		t.Fatalf("stop not sent: %v", f.commands(""))
	}
}

func TestUnansweredSearchIsDrained(t *testing.T) {
	s, f := newFakeSession(t, Options{SearchSlack: 5 * time.Millisecond, StopWait: 20 * time.Millisecond})
	f.setMode(neverAnswer)
	if _, err := s.BestMove(context.Background(), startFEN, 5*time.Millisecond); !errors.Is(err, ErrNoBestMove) {
		t.Fatalf("err = %v, want ErrNoBestMove", err)
	}

	// 늦게 도착한 bestmove는 다음 탐색 결과로 섞이면 안 된다.
	f.setMode(answerNow)
	if _, err := s.BestMove(context.Background(), startFEN, 20*time.Millisecond); err != nil {
		t.Fatalf("BestMove after drain: %v", err)
	}
	if n := len(f.commands("stop")); n != 2 {
		t.Fatalf("stop sent %d times, want timeout stop and drain stop", n)
	}
	f.mu.Lock()
	f.best = "d2d4"
	f.mu.Unlock()
	mv, err := s.BestMove(context.Background(), startFEN, 30*time.Millisecond)
	if err != nil || mv != "d2d4" {
		t.Fatalf("third search = %q, %v", mv, err)
	}
}

func TestCallerCancelDrainsLater(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	f.setMode(answerStop)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := s.BestMove(ctx, startFEN, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	f.setMode(answerNow)
	if err := s.EnsureReady(context.Background()); err != nil {
		t.Fatalf("EnsureReady after cancel: %v", err)
	}
	if s.State() != Ready {
		t.Fatalf("state = %v", s.State())
	}
}

func TestBestMoveTimedBudget(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	blackToMove := "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1"
	if _, err := s.BestMoveTimed(context.Background(), blackToMove, 90*time.Second, 60*time.Second); err != nil {
		t.Fatalf("BestMoveTimed: %v", err)
	}
	if got := f.commands("go"); len(got) != 1 || got[0] != "go wtime 90000 btime 60000" {
		t.Fatalf("go commands = %v", got)
	}
}

func TestStopOnlyWhileSearching(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	f.setMode(answerStop)
	done := make(chan error, 1)
	go func() {
		_, err := s.BestMove(context.Background(), startFEN, time.Minute)
		done <- err
	}()
	deadline := time.Now().Add(time.Second)
	for s.State() != Searching && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stopped search: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("search did not end after stop")
	}
	if n := len(f.commands("stop")); n != 1 {
		t.Fatalf("stop sent %d times", n)
	}
}

func TestSetEloClamps(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	for _, tc := range []struct{ in, want int }{{1500, 1500}, {800, MinElo}, {4000, MinElo}, {MaxElo, MaxElo}} {
		got, err := s.SetElo(context.Background(), tc.in)
		if err != nil || got != tc.want {
			t.Fatalf("SetElo(%d) = %d, %v", tc.in, got, err)
		}
	}
	elo := f.commands("setoption name UCI_Elo")
	if len(elo) != 4 || elo[1] != "setoption name UCI_Elo value 1320" {
		t.Fatalf("UCI_Elo commands = %v", elo)
	}
	if err := s.SetHashSize(context.Background(), 0); err == nil {
		t.Fatalf("zero hash accepted")
	}
	if err := s.SetThreads(context.Background(), 4); err != nil {
		t.Fatalf("SetThreads: %v", err)
	}
}

func TestNewGameAndClose(t *testing.T) {
	s, f := newFakeSession(t, Options{})
	if err := s.NewGame(context.Background()); err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	if len(f.commands("ucinewgame")) != 1 {
		t.Fatalf("ucinewgame not sent")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.State() != Stopped {
		t.Fatalf("state after close = %v", s.State())
	}
	if _, err := s.BestMove(context.Background(), startFEN, time.Millisecond); !errors.Is(err, ErrEngineStopped) {
		t.Fatalf("err after close = %v", err)
	}
}

func TestHandshakeFailsWhenEngineExits(t *testing.T) {
	outR, outW := io.Pipe()
	inR, inW := io.Pipe()
	go func() {
		io.Copy(io.Discard, inR)
	}()
	outW.Close()
	if _, err := NewSession(context.Background(), outR, inW, Options{}); err == nil {
		t.Fatalf("handshake succeeded against a dead engine")
	}
}

func TestParseInfoAndBestMove(t *testing.T) {
	info, ok := parseInfo("info depth 20 seldepth 30 score mate -3 nodes 1 pv d8h4 g2g3 h4g3")
	if !ok || info.Mate != -3 || info.EvalCP != -mateValue || len(info.PV) != 3 {
		t.Fatalf("info = %+v ok=%v", info, ok)
	}
	if _, ok := parseInfo("info string NNUE enabled"); ok {
		t.Fatalf("info without pv accepted")
	}
	for line, want := range map[string]string{
		"bestmove e7e8q ponder a1a2": "e7e8q",
		"bestmove (none)":            "",
		"bestmove 0000":              "",
		"bestmove":                   "",
	} {
		got, ok := parseBestMove(line)
		if got != want || ok != (want != "") {
			t.Fatalf("parseBestMove(%q) = %q, %v", line, got, ok)
		}
	}
}

func TestMemoryCacheEvictsOldest(t *testing.T) {
	c := NewMemoryCache(2)
	ctx := context.Background()
	c.Put(ctx, "a", time.Second, "e2e4")
	c.Put(ctx, "b", time.Second, "d2d4")
	c.Put(ctx, "c", time.Second, "c2c4")
	if _, ok := c.Get(ctx, "a", time.Second); ok {
		t.Fatalf("oldest entry not evicted")
	}
	if mv, ok := c.Get(ctx, "c", time.Second); !ok || mv != "c2c4" {
		t.Fatalf("Get(c) = %q, %v", mv, ok)
	}
	if _, ok := c.Get(ctx, "c", 2*time.Second); ok {
		t.Fatalf("movetime ignored in key")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d", c.Len())
	}
}
