package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	defaultReadyTimeout  = 4 * time.Second
	defaultSearchSlack   = 250 * time.Millisecond
	defaultStopWait      = 500 * time.Millisecond
	maxTimedSearch       = 15 * time.Second
	quitGrace            = time.Second
	newGameRetryAttempts = 3
	newGameRetryDelay    = 150 * time.Millisecond

	MinElo = 1320
	MaxElo = 3190
)

type Options struct {
	Threads int
	HashMB  int
	// Elo limits playing strength when non-zero.
	Elo int

	Cache  Cache
	Logger *zap.Logger

	// SearchSlack is added to movetime before a fixed-time search is abandoned.
	SearchSlack time.Duration
	// StopWait bounds how long a stopped search is polled for its bestmove.
	StopWait time.Duration
}

func (o Options) withDefaults() Options {
	if o.Threads <= 0 {
		o.Threads = 1
	}
	if o.HashMB <= 0 {
		o.HashMB = 16
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.SearchSlack <= 0 {
		o.SearchSlack = defaultSearchSlack
	}
	if o.StopWait <= 0 {
		o.StopWait = defaultStopWait
	}
	return o
}

// Session speaks UCI to one engine. Commands that read engine output are
// serialized; Stop may be called concurrently to end a running search.
type Session struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	lines chan string

	writeMu sync.Mutex
	search  sync.Mutex
	state   atomic.Int32

	// pending is true while a search has been started but its bestmove not
	// yet read. Guarded by search.
	pending bool

	opt          Options
	cacheEnabled atomic.Bool
	log          *zap.Logger

	infoMu   sync.Mutex
	lastInfo Info

	closeOnce sync.Once
}

// Launch starts the engine binary and performs the handshake.
func Launch(ctx context.Context, binaryPath string, opt Options) (*Session, error) {
	if binaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	cmd := exec.Command(binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}
	return newSession(ctx, cmd, stdoutPipe, stdin, opt)
}

// NewSession runs the protocol over an arbitrary stream pair: r carries the
// engine's output and w its input.
func NewSession(ctx context.Context, r io.Reader, w io.WriteCloser, opt Options) (*Session, error) {
	return newSession(ctx, nil, r, w, opt)
}

func newSession(ctx context.Context, cmd *exec.Cmd, r io.Reader, w io.WriteCloser, opt Options) (*Session, error) {
	opt = opt.withDefaults()
	s := &Session{
		cmd:   cmd,
		stdin: w,
		lines: make(chan string, 256),
		opt:   opt,
		log:   opt.Logger,
	}
	s.cacheEnabled.Store(opt.Cache != nil)
	s.state.Store(int32(Handshaking))
	go s.readLoop(r)

	if err := s.initialize(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Session) State() State { return State(s.state.Load()) }

// LastInfo returns the evaluation from the most recent search.
func (s *Session) LastInfo() Info {
	s.infoMu.Lock()
	defer s.infoMu.Unlock()
	info := s.lastInfo
	info.PV = append([]string(nil), info.PV...)
	return info
}

// readLoop is the only reader of the engine's output.
func (s *Session) readLoop(r io.Reader) {
	defer close(s.lines)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			s.lines <- line
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("engine_read_failed", zap.Error(err))
			}
			s.state.Store(int32(Stopped))
			return
		}
	}
}

func (s *Session) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	cmds := []string{
		"setoption name Threads value " + strconv.Itoa(s.opt.Threads),
		"setoption name Hash value " + strconv.Itoa(s.opt.HashMB),
		"setoption name Ponder value false",
	}
	if s.opt.Elo > 0 {
		cmds = append(cmds, eloCommands(ClampElo(s.opt.Elo))...)
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	s.state.CompareAndSwap(int32(Handshaking), int32(Ready))
	return nil
}

// BestMove runs a fixed-time search. Results are cached per (fen, movetime)
// when a cache is configured and enabled.
func (s *Session) BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error) {
	cache := s.cache()
	if cache != nil {
		if mv, ok := cache.Get(ctx, fen, movetime); ok {
			s.log.Debug("engine_cache_hit", zap.String("fen", fen))
			return mv, nil
		}
	}

	s.search.Lock()
	defer s.search.Unlock()

	ms := movetime.Milliseconds()
	if ms <= 0 {
		ms = 1
	}
	mv, err := s.runSearch(ctx, fen, "go movetime "+strconv.FormatInt(ms, 10), time.Duration(ms)*time.Millisecond+s.opt.SearchSlack)
	if err != nil {
		return "", err
	}
	if cache != nil {
		cache.Put(ctx, fen, movetime, mv)
	}
	return mv, nil
}

// BestMoveTimed lets the engine manage its own clock and waits at most a
// tenth of the mover's remaining time, capped at 15s, before forcing a stop.
func (s *Session) BestMoveTimed(ctx context.Context, fen string, wtime, btime time.Duration) (string, error) {
	s.search.Lock()
	defer s.search.Unlock()

	remaining := wtime
	if fields := strings.Fields(fen); len(fields) > 1 && fields[1] == "b" {
		remaining = btime
	}
	budget := remaining / 10
	if budget > maxTimedSearch {
		budget = maxTimedSearch
	}
	if budget <= 0 {
		budget = time.Millisecond
	}
	goCmd := fmt.Sprintf("go wtime %d btime %d", max(wtime.Milliseconds(), 0), max(btime.Milliseconds(), 0))
	return s.runSearch(ctx, fen, goCmd, budget)
}

// runSearch must be called with s.search held.
func (s *Session) runSearch(ctx context.Context, fen, goCmd string, wait time.Duration) (string, error) {
	if err := s.drainLocked(ctx); err != nil {
		return "", err
	}
	if err := s.send("position fen " + fen); err != nil {
		return "", fmt.Errorf("send position: %w", err)
	}
	if err := s.send(goCmd); err != nil {
		return "", fmt.Errorf("send go: %w", err)
	}
	s.pending = true
	s.state.CompareAndSwap(int32(Ready), int32(Searching))

	searchCtx, cancel := context.WithTimeout(ctx, wait)
	mv, err := s.awaitBestMove(searchCtx)
	cancel()
	switch {
	case err == nil:
		return mv, nil
	case ctx.Err() != nil:
		// 호출자 취소: stop만 보내고 bestmove는 다음 명령 전에 drain.
		_ = s.send("stop")
		return "", ctx.Err()
	case !errors.Is(err, context.DeadlineExceeded):
		return "", err
	}

	s.log.Debug("engine_search_timeout", zap.String("go", goCmd), zap.Duration("wait", wait))
	if err := s.send("stop"); err != nil {
		return "", fmt.Errorf("send stop: %w", err)
	}
	stopCtx, stopCancel := context.WithTimeout(ctx, s.opt.StopWait)
	defer stopCancel()
	mv, err = s.awaitBestMove(stopCtx)
	if errors.Is(err, context.DeadlineExceeded) {
		s.log.Warn("engine_search_unanswered", zap.String("go", goCmd))
		return "", ErrNoBestMove
	}
	return mv, err
}

// awaitBestMove reads until a bestmove line, recording info lines on the way.
func (s *Session) awaitBestMove(ctx context.Context) (string, error) {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return "", err
		}
		switch {
		case strings.HasPrefix(line, "info "):
			if info, ok := parseInfo(line); ok {
				s.infoMu.Lock()
				s.lastInfo = info
				s.infoMu.Unlock()
			}
		case strings.HasPrefix(line, "bestmove"):
			s.pending = false
			s.state.CompareAndSwap(int32(Searching), int32(Ready))
			mv, ok := parseBestMove(line)
			if !ok {
				return "", ErrNoBestMove
			}
			return mv, nil
		}
	}
}

// drainLocked consumes the bestmove of an earlier search that was abandoned.
func (s *Session) drainLocked(ctx context.Context) error {
	if s.State() == Stopped {
		return ErrEngineStopped
	}
	if !s.pending {
		return nil
	}
	if err := s.send("stop"); err != nil {
		return fmt.Errorf("send stop: %w", err)
	}
	drainCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()
	_, err := s.awaitBestMove(drainCtx)
	if err != nil && !errors.Is(err, ErrNoBestMove) {
		return fmt.Errorf("drain search: %w", err)
	}
	return nil
}

// Stop asks a running search to finish. The searching call still reads the
// resulting bestmove.
func (s *Session) Stop() error {
	if s.State() != Searching {
		return nil
	}
	return s.send("stop")
}

func (s *Session) EnsureReady(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()
	return s.ensureReadyLocked(ctx)
}

func (s *Session) ensureReadyLocked(ctx context.Context) error {
	if err := s.drainLocked(ctx); err != nil {
		return err
	}
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *Session) NewGame(ctx context.Context) error {
	s.search.Lock()
	defer s.search.Unlock()
	if err := s.drainLocked(ctx); err != nil {
		return err
	}
	if err := s.send("ucinewgame"); err != nil {
		return fmt.Errorf("send ucinewgame: %w", err)
	}

	for attempt := 1; attempt <= newGameRetryAttempts; attempt++ {
		err := s.ensureReadyLocked(ctx)
		if err == nil {
			return nil
		}
		if attempt == newGameRetryAttempts || errors.Is(err, ErrEngineStopped) {
			return err
		}
		s.log.Warn("engine_ready_retry", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(newGameRetryDelay):
		}
	}
	return nil
}

// ClampElo maps out-of-range values to the minimum supported strength.
func ClampElo(elo int) int {
	if elo < MinElo || elo > MaxElo {
		return MinElo
	}
	return elo
}

func eloCommands(elo int) []string {
	return []string{
		"setoption name UCI_LimitStrength value true",
		"setoption name UCI_Elo value " + strconv.Itoa(elo),
	}
}

// SetElo limits the engine's strength and returns the Elo actually applied.
func (s *Session) SetElo(ctx context.Context, elo int) (int, error) {
	elo = ClampElo(elo)
	return elo, s.setOptions(ctx, eloCommands(elo)...)
}

func (s *Session) SetHashSize(ctx context.Context, mb int) error {
	if mb <= 0 {
		return fmt.Errorf("hash size must be > 0: %d", mb)
	}
	return s.setOptions(ctx, "setoption name Hash value "+strconv.Itoa(mb))
}

func (s *Session) SetThreads(ctx context.Context, n int) error {
	if n <= 0 {
		return fmt.Errorf("threads must be > 0: %d", n)
	}
	return s.setOptions(ctx, "setoption name Threads value "+strconv.Itoa(n))
}

func (s *Session) ClearHash(ctx context.Context) error {
	return s.setOptions(ctx, "setoption name Clear Hash")
}

// SetCacheEnabled toggles use of the configured cache.
func (s *Session) SetCacheEnabled(on bool) {
	s.cacheEnabled.Store(on && s.opt.Cache != nil)
}

func (s *Session) cache() Cache {
	if !s.cacheEnabled.Load() {
		return nil
	}
	return s.opt.Cache
}

func (s *Session) setOptions(ctx context.Context, cmds ...string) error {
	s.search.Lock()
	defer s.search.Unlock()
	if err := s.drainLocked(ctx); err != nil {
		return err
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}
	return s.ensureReadyLocked(ctx)
}

// Close sends quit and, for launched engines, kills the process if it has
// not exited within a second.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		_ = s.send("quit")
		s.writeMu.Lock()
		if s.stdin != nil {
			s.stdin.Close()
		}
		s.writeMu.Unlock()
		s.state.Store(int32(Stopped))

		if s.cmd == nil || s.cmd.Process == nil {
			return
		}
		exited := make(chan error, 1)
		go func() { exited <- s.cmd.Wait() }()
		select {
		case err = <-exited:
		case <-time.After(quitGrace):
			_ = s.cmd.Process.Kill()
			err = <-exited
		}
	})
	return err
}

func (s *Session) send(msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.State() == Stopped {
		return ErrEngineStopped
	}
	_, err := io.WriteString(s.stdin, msg+"\n")
	return err
}

func (s *Session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if line == token || strings.HasPrefix(line, token+" ") {
			return nil
		}
	}
}

func (s *Session) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-s.lines:
		if !ok {
			return "", ErrEngineStopped
		}
		return line, nil
	}
}
