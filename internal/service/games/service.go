package games

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/cheese-chess/internal/archive"
	"github.com/park285/cheese-chess/internal/chess/clock"
	"github.com/park285/cheese-chess/internal/chess/game"
	"github.com/park285/cheese-chess/internal/chess/notation"
	"github.com/park285/cheese-chess/internal/chess/rules"
	"github.com/park285/cheese-chess/internal/chess/uci"
	"github.com/park285/cheese-chess/internal/msgcat"
	"github.com/park285/cheese-chess/internal/store"
	"github.com/park285/cheese-chess/pkg/chessdto"
)

var (
	ErrGameNotFound      = errors.New("chess game not found")
	ErrIllegalMove       = errors.New("illegal chess move")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrGameOver          = errors.New("chess game is over")
	ErrUndoNotAllowed    = errors.New("undo not allowed")
	ErrEngineUnavailable = errors.New("chess engine unavailable")
	ErrInvalidRequest    = errors.New("invalid chess request")
)

const (
	defaultSessionTTL    = time.Hour
	defaultEngineTimeout = 30 * time.Second
	persistTimeout       = 2 * time.Second
)

// Levels map difficulty names to engine Elo.
var Levels = map[string]int{
	"easy":              1320,
	"medium":            1600,
	"hard":              2000,
	"grandmaster":       2500,
	"super grandmaster": 2800,
}

// EngineFactory returns a move source playing at the given Elo.
type EngineFactory func(elo int) game.MoveSource

type Config struct {
	SessionTTL    time.Duration
	DefaultElo    int
	MoveTime      time.Duration
	EngineTimeout time.Duration
}

type Service struct {
	engines EngineFactory
	store   *store.Store
	archive archive.Repository
	msgs    *msgcat.Catalog
	hub     *Hub
	cfg     Config
	log     *zap.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	id        string
	mode      store.Mode
	g         *game.Game
	cg        *game.ComputerGame
	allowUndo bool
	increment time.Duration
	createdAt time.Time

	restoring atomic.Bool
	lastSeen  atomic.Int64

	persistMu sync.Mutex
	version   int64
}

func (s *session) touch() { s.lastSeen.Store(time.Now().UnixNano()) }

// NewService wires the game service. st and repo may be nil, in which case
// games live only in memory and finished games are not archived.
func NewService(engines EngineFactory, st *store.Store, repo archive.Repository, msgs *msgcat.Catalog, cfg Config, logger *zap.Logger) (*Service, error) {
	if engines == nil {
		return nil, errors.New("engine factory required")
	}
	if msgs == nil {
		var err error
		if msgs, err = msgcat.New(""); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.EngineTimeout <= 0 {
		cfg.EngineTimeout = defaultEngineTimeout
	}
	if cfg.DefaultElo == 0 {
		cfg.DefaultElo = Levels["medium"]
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		engines:  engines,
		store:    st,
		archive:  repo,
		msgs:     msgs,
		hub:      NewHub(),
		cfg:      cfg,
		log:      logger,
		baseCtx:  ctx,
		stop:     cancel,
		sessions: make(map[string]*session),
	}, nil
}

func (s *Service) Hub() *Hub { return s.hub }

type sessionParams struct {
	mode      store.Mode
	human     rules.Color
	elo       int
	white     time.Duration
	black     time.Duration
	increment time.Duration
	allowUndo bool
	createdAt time.Time
}

func (s *Service) newSession(id string, p sessionParams) *session {
	sess := &session{
		id:        id,
		mode:      p.mode,
		allowUndo: p.allowUndo,
		increment: p.increment,
		createdAt: p.createdAt,
	}
	sess.touch()

	opts := []game.Option{
		game.WithLogger(s.log.With(zap.String("game_id", id))),
		// 승격 기물 미지정 시 퀸.
		game.WithPromotionChooser(func(rules.Color) (rules.PieceType, bool) { return rules.Queen, true }),
		game.WithOnMoveApplied(func(m *rules.Move) { s.changed(sess, chessdto.EventMove, notation.EncodeMove(m)) }),
		game.WithOnUndo(func(m *rules.Move) { s.changed(sess, chessdto.EventUndo, notation.EncodeMove(m)) }),
		game.WithOnGameEnd(func(o game.Outcome) { s.ended(sess, o) }),
	}
	if p.white > 0 || p.black > 0 {
		opts = append(opts, game.WithClocks(clock.New(p.white), clock.New(p.black)), game.WithIncrement(p.increment))
	}

	if p.mode == store.ModeComputer {
		var copts []game.ComputerOption
		if s.cfg.MoveTime > 0 {
			copts = append(copts, game.WithMoveTime(s.cfg.MoveTime))
		}
		sess.cg = game.NewComputerGame(p.human, s.engines(p.elo), p.elo, copts, opts...)
		sess.g = sess.cg.Game
	} else {
		sess.g = game.New(opts...)
	}
	return sess
}

// Create starts a new game. Computer games where the human plays black get
// the engine's first move in the background.
func (s *Service) Create(ctx context.Context, req chessdto.CreateGameRequest) (*chessdto.GameState, error) {
	p, err := s.paramsFrom(req)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	sess := s.newSession(id, p)

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.persist(sess)
	s.log.Info("game_created",
		zap.String("game_id", id),
		zap.String("mode", string(p.mode)),
		zap.Int("elo", p.elo),
		zap.Duration("time", p.white))

	if sess.cg != nil && sess.cg.EngineToMove() {
		s.replyAsync(sess)
	}
	return s.stateOf(sess), nil
}

func (s *Service) paramsFrom(req chessdto.CreateGameRequest) (sessionParams, error) {
	p := sessionParams{allowUndo: true, createdAt: time.Now()}
	if req.AllowUndo != nil {
		p.allowUndo = *req.AllowUndo
	}

	switch strings.ToLower(strings.TrimSpace(req.Mode)) {
	case "", string(store.ModeComputer):
		p.mode = store.ModeComputer
	case string(store.ModeTwoPlayer):
		p.mode = store.ModeTwoPlayer
	default:
		return p, fmt.Errorf("%w: unknown mode %q", ErrInvalidRequest, req.Mode)
	}

	if p.mode == store.ModeComputer {
		human, err := parseHumanColor(req.HumanColor)
		if err != nil {
			return p, err
		}
		p.human = human
		switch {
		case req.Elo != 0:
			p.elo = uci.ClampElo(req.Elo)
		case strings.TrimSpace(req.Level) != "":
			elo, ok := Levels[strings.ToLower(strings.TrimSpace(req.Level))]
			if !ok {
				return p, fmt.Errorf("%w: unknown level %q", ErrInvalidRequest, req.Level)
			}
			p.elo = elo
		default:
			p.elo = uci.ClampElo(s.cfg.DefaultElo)
		}
	}

	if req.TimeMinutes < 0 || req.IncrementSeconds < 0 {
		return p, fmt.Errorf("%w: negative time control", ErrInvalidRequest)
	}
	if req.TimeMinutes > 0 {
		total := time.Duration(req.TimeMinutes * float64(time.Minute))
		p.white, p.black = total, total
		p.increment = time.Duration(req.IncrementSeconds) * time.Second
	}
	return p, nil
}

func parseHumanColor(v string) (rules.Color, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "white", "w":
		return rules.White, nil
	case "black", "b":
		return rules.Black, nil
	case "random":
		if n, err := rand.Int(rand.Reader, big.NewInt(2)); err == nil && n.Int64() == 1 {
			return rules.Black, nil
		}
		return rules.White, nil
	default:
		return rules.White, fmt.Errorf("%w: unknown color %q", ErrInvalidRequest, v)
	}
}

func parseColor(v string) (rules.Color, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "white", "w":
		return rules.White, true
	case "black", "b":
		return rules.Black, true
	}
	return rules.White, false
}

// Get returns the current state of a live or stored game.
func (s *Service) Get(ctx context.Context, id string) (*chessdto.GameState, error) {
	sess, rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return s.stateOfRecord(rec), nil
	}
	return s.stateOf(sess), nil
}

// Move applies a human move given as a raw move ("e2e4", "e7e8q").
func (s *Service) Move(ctx context.Context, id string, req chessdto.MoveRequest) (*chessdto.GameState, error) {
	sess, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	raw := strings.ToLower(strings.TrimSpace(req.Move))
	turn := sess.g.Turn()
	if sess.cg != nil && turn != sess.cg.HumanColor() {
		return nil, ErrNotYourTurn
	}
	m, ok := notation.ParseMove(sess.g.Board(), raw)
	if !ok || m.Piece == nil {
		return nil, fmt.Errorf("%w: %q", ErrIllegalMove, req.Move)
	}
	if m.Piece.Color != turn {
		return nil, ErrNotYourTurn
	}

	if sess.cg != nil {
		ok = sess.cg.MakeRawMove(raw)
	} else {
		ok = sess.g.MakeRawMove(raw)
	}
	if !ok {
		if sess.g.IsOver() {
			return nil, ErrGameOver
		}
		return nil, fmt.Errorf("%w: %q", ErrIllegalMove, req.Move)
	}

	if sess.cg != nil && sess.cg.EngineToMove() {
		if req.Wait {
			if err := s.reply(ctx, sess); err != nil {
				s.log.Warn("engine_reply_failed", zap.String("game_id", id), zap.Error(err))
			}
		} else {
			s.replyAsync(sess)
		}
	}
	return s.stateOf(sess), nil
}

// RequestEngineMove asks the engine to move again, e.g. after a failed search.
func (s *Service) RequestEngineMove(ctx context.Context, id string) (*chessdto.GameState, error) {
	sess, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	if sess.cg == nil || !sess.cg.EngineToMove() {
		return nil, ErrNotYourTurn
	}
	if err := s.reply(ctx, sess); err != nil {
		return nil, err
	}
	return s.stateOf(sess), nil
}

func (s *Service) reply(ctx context.Context, sess *session) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.EngineTimeout)
	defer cancel()
	if _, ok := sess.cg.ExecuteComputerMove(ctx); !ok && sess.cg.EngineToMove() {
		return ErrEngineUnavailable
	}
	return nil
}

func (s *Service) replyAsync(sess *session) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.reply(s.baseCtx, sess); err != nil {
			s.log.Warn("engine_reply_failed", zap.String("game_id", sess.id), zap.Error(err))
		}
	}()
}

// Undo takes back the last move; in computer games, back to the human's turn.
func (s *Service) Undo(ctx context.Context, id string) (*chessdto.GameState, error) {
	sess, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	if !sess.allowUndo {
		return nil, ErrUndoNotAllowed
	}
	var ok bool
	if sess.cg != nil {
		ok = sess.cg.UndoLastMove()
	} else {
		ok = sess.g.UndoLastMove()
	}
	if !ok {
		if sess.g.IsOver() {
			return nil, ErrGameOver
		}
		return nil, fmt.Errorf("%w: no move to take back", ErrUndoNotAllowed)
	}
	return s.stateOf(sess), nil
}

// Resign ends the game. Computer games always resign the human side.
func (s *Service) Resign(ctx context.Context, id string, req chessdto.ResignRequest) (*chessdto.GameState, error) {
	sess, err := s.active(ctx, id)
	if err != nil {
		return nil, err
	}
	var ok bool
	if sess.cg != nil {
		ok = sess.cg.Resign()
	} else {
		c, valid := parseColor(req.Color)
		if !valid {
			return nil, fmt.Errorf("%w: resigning color required", ErrInvalidRequest)
		}
		ok = sess.g.Resign(c)
	}
	if !ok {
		return nil, ErrGameOver
	}
	return s.stateOf(sess), nil
}

func (s *Service) PGN(ctx context.Context, id string) (string, error) {
	sess, rec, err := s.lookup(ctx, id)
	if err != nil {
		return "", err
	}
	if rec != nil {
		return notation.PGN(tagsOf(rec.Mode, rec.HumanColor, rec.Elo), rec.SAN, resultOf(rec.Winner)), nil
	}
	return pgnOf(sess), nil
}

func (s *Service) Archived(ctx context.Context, id string) (*chessdto.ArchivedGame, error) {
	if s.archive == nil {
		return nil, ErrGameNotFound
	}
	g, err := s.archive.GetGame(ctx, id)
	if errors.Is(err, archive.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, err
	}
	return archivedDTO(g), nil
}

func (s *Service) Recent(ctx context.Context, limit int) ([]*chessdto.ArchivedGame, error) {
	if s.archive == nil {
		return []*chessdto.ArchivedGame{}, nil
	}
	list, err := s.archive.RecentGames(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*chessdto.ArchivedGame, 0, len(list))
	for _, g := range list {
		out = append(out, archivedDTO(g))
	}
	return out, nil
}

// Resume restores every active stored game so pending engine turns are
// played after a restart. Games that fail to restore are logged and skipped.
func (s *Service) Resume(ctx context.Context) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	ids, err := s.store.ActiveIDs(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		sess, _, err := s.lookup(ctx, id)
		if err != nil {
			s.log.Warn("game_resume_failed", zap.String("game_id", id), zap.Error(err))
			continue
		}
		if sess != nil {
			n++
		}
	}
	return n, nil
}

// Sweep drops sessions idle for longer than the session TTL. Stored records
// expire on their own.
func (s *Service) Sweep(now time.Time) int {
	cutoff := now.Add(-s.cfg.SessionTTL).UnixNano()
	var stale []*session
	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()
	for _, sess := range stale {
		s.closeSession(sess)
	}
	if len(stale) > 0 {
		s.log.Info("sessions_swept", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// RunJanitor sweeps idle sessions until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			s.Sweep(now)
		}
	}
}

func (s *Service) Close() {
	s.stop()
	s.mu.Lock()
	list := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	s.sessions = make(map[string]*session)
	s.mu.Unlock()
	for _, sess := range list {
		s.closeSession(sess)
	}
	s.wg.Wait()
}

func (s *Service) closeSession(sess *session) {
	if sess.cg != nil {
		sess.cg.CancelCalculation()
	}
	sess.g.Close()
	s.hub.CloseGame(sess.id)
}

// lookup finds a game in memory, then in the store. Active stored games are
// rebuilt into live sessions; finished ones are returned as records.
func (s *Service) lookup(ctx context.Context, id string) (*session, *store.GameRecord, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch()
		return sess, nil, nil
	}
	if s.store == nil {
		return nil, nil, ErrGameNotFound
	}
	rec, err := s.store.Load(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, ErrGameNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != store.StatusActive {
		return nil, rec, nil
	}
	sess, err = s.restore(rec)
	if err != nil {
		return nil, nil, err
	}
	return sess, nil, nil
}

func (s *Service) active(ctx context.Context, id string) (*session, error) {
	sess, rec, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec != nil || sess.g.IsOver() {
		return nil, ErrGameOver
	}
	return sess, nil
}

func (s *Service) restore(rec *store.GameRecord) (*session, error) {
	p := sessionParams{
		mode:      rec.Mode,
		elo:       rec.Elo,
		increment: time.Duration(rec.IncrementMS) * time.Millisecond,
		allowUndo: rec.AllowUndo,
		createdAt: rec.CreatedAt,
	}
	if rec.Mode == store.ModeComputer {
		p.human, _ = parseColor(rec.HumanColor)
	}
	if rec.Timed() {
		// 재생 중 시계가 소진되지 않도록 임시 값으로 시작하고 재생 후 복원.
		p.white, p.black = time.Hour, time.Hour
	}
	sess := s.newSession(rec.ID, p)
	sess.restoring.Store(true)
	if err := sess.g.Replay(rec.Moves); err != nil {
		sess.g.Close()
		return nil, fmt.Errorf("restore game %s: %w", rec.ID, err)
	}
	if rec.Timed() {
		sess.g.WhiteClock().Set(time.Duration(rec.WhiteClockMS) * time.Millisecond)
		sess.g.BlackClock().Set(time.Duration(rec.BlackClockMS) * time.Millisecond)
	}
	sess.version = rec.Version
	sess.restoring.Store(false)

	s.mu.Lock()
	if existing, ok := s.sessions[rec.ID]; ok {
		s.mu.Unlock()
		sess.g.Close()
		return existing, nil
	}
	s.sessions[rec.ID] = sess
	s.mu.Unlock()

	s.log.Info("game_restored", zap.String("game_id", rec.ID), zap.Int("plies", len(rec.Moves)))
	if sess.cg != nil && sess.cg.EngineToMove() {
		s.replyAsync(sess)
	}
	return sess, nil
}

func (s *Service) changed(sess *session, typ, move string) {
	if sess.restoring.Load() {
		return
	}
	sess.touch()
	s.persist(sess)
	s.hub.Publish(sess.id, chessdto.Event{Type: typ, Move: move, State: s.stateOf(sess)})
}

func (s *Service) ended(sess *session, o game.Outcome) {
	if sess.restoring.Load() {
		return
	}
	rec := s.persist(sess)
	s.archiveGame(sess, rec)
	s.hub.Publish(sess.id, chessdto.Event{Type: chessdto.EventEnd, State: s.stateOf(sess)})
	s.log.Info("game_finished",
		zap.String("game_id", sess.id),
		zap.String("result", o.Result()),
		zap.String("cause", string(o.Cause)))
}

// persist saves the session and returns the record written.
func (s *Service) persist(sess *session) *store.GameRecord {
	sess.persistMu.Lock()
	defer sess.persistMu.Unlock()
	sess.version++
	rec := s.recordOf(sess, sess.version)
	if s.store == nil {
		return rec
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, persistTimeout)
	defer cancel()
	if err := s.store.Save(ctx, rec); err != nil {
		if errors.Is(err, store.ErrStale) {
			s.log.Debug("game_save_stale", zap.String("game_id", sess.id), zap.Int64("version", rec.Version))
		} else {
			s.log.Warn("game_save_failed", zap.String("game_id", sess.id), zap.Error(err))
		}
	}
	return rec
}

func (s *Service) archiveGame(sess *session, rec *store.GameRecord) {
	if s.archive == nil {
		return
	}
	pgn := pgnOf(sess)
	fg := &archive.FinishedGame{
		ID:         rec.ID,
		Mode:       string(rec.Mode),
		HumanColor: rec.HumanColor,
		Elo:        rec.Elo,
		Result:     resultOf(rec.Winner),
		Winner:     rec.Winner,
		Cause:      rec.Cause,
		Moves:      rec.Moves,
		SAN:        rec.SAN,
		PGN:        pgn,
		StartedAt:  rec.CreatedAt,
		EndedAt:    rec.UpdatedAt,
	}
	ctx, cancel := context.WithTimeout(s.baseCtx, persistTimeout)
	defer cancel()
	if err := s.archive.SaveGame(ctx, fg); err != nil {
		s.log.Warn("game_archive_failed", zap.String("game_id", sess.id), zap.Error(err))
	}
}

func pgnOf(sess *session) string {
	if sess.cg != nil {
		return sess.cg.PGN()
	}
	return sess.g.PGN(nil)
}
