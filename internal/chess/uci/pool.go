package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"
)

// Launcher starts a ready session for the given options.
type Launcher func(ctx context.Context, opt Options) (*Session, error)

type PoolConfig struct {
	BinaryPath     string
	PerKeyCapacity int
	// Launcher overrides process launching; BinaryPath is then optional.
	Launcher Launcher
}

// Pool keeps idle sessions bucketed by their option set (threads, hash, elo).
type Pool struct {
	launch         Launcher
	perKeyCapacity int

	mu       sync.Mutex
	buckets  map[string]*sessionBucket
	sessions map[*Session]*sessionBucket
}

func NewPool(cfg PoolConfig) (*Pool, error) {
	launch := cfg.Launcher
	if launch == nil {
		if cfg.BinaryPath == "" {
			return nil, fmt.Errorf("binary path required")
		}
		if _, err := os.Stat(cfg.BinaryPath); err != nil {
			return nil, fmt.Errorf("engine binary check: %w", err)
		}
		path := cfg.BinaryPath
		launch = func(ctx context.Context, opt Options) (*Session, error) {
			return Launch(ctx, path, opt)
		}
	}

	capacity := cfg.PerKeyCapacity
	if capacity <= 0 {
		capacity = defaultPerKeyCapacity()
	}

	return &Pool{
		launch:         launch,
		perKeyCapacity: capacity,
		buckets:        make(map[string]*sessionBucket),
		sessions:       make(map[*Session]*sessionBucket),
	}, nil
}

func (p *Pool) Acquire(ctx context.Context, opt Options) (*Session, error) {
	bucket := p.getBucket(opt)

	for {
		select {
		case session := <-bucket.idle:
			if s, ok := p.reuse(ctx, session, bucket); ok {
				return s, nil
			}
			continue
		default:
		}

		session, err := bucket.create(ctx, p.launch)
		if err == nil {
			p.track(session, bucket)
			return session, nil
		}
		if !errors.Is(err, errBucketAtCapacity) {
			return nil, err
		}

		select {
		case session := <-bucket.idle:
			if s, ok := p.reuse(ctx, session, bucket); ok {
				return s, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) reuse(ctx context.Context, session *Session, bucket *sessionBucket) (*Session, bool) {
	if session == nil {
		return nil, false
	}
	if err := session.EnsureReady(ctx); err != nil {
		bucket.discard(session)
		return nil, false
	}
	p.track(session, bucket)
	return session, true
}

// Release returns a session to its bucket. A non-nil err discards it.
func (p *Pool) Release(session *Session, err error) {
	if session == nil {
		return
	}

	p.mu.Lock()
	bucket, ok := p.sessions[session]
	if !ok {
		p.mu.Unlock()
		_ = session.Close()
		return
	}
	delete(p.sessions, session)
	p.mu.Unlock()

	if err != nil || session.State() == Stopped || !bucket.put(session) {
		bucket.discard(session)
	}
}

func (p *Pool) Close() error {
	p.mu.Lock()
	buckets := make([]*sessionBucket, 0, len(p.buckets))
	for _, b := range p.buckets {
		buckets = append(buckets, b)
	}
	p.sessions = make(map[*Session]*sessionBucket)
	p.mu.Unlock()

	var errs []error
	for _, bucket := range buckets {
		for drained := false; !drained; {
			select {
			case session := <-bucket.idle:
				if session == nil {
					continue
				}
				if err := session.Close(); err != nil {
					errs = append(errs, err)
				}
				bucket.decrement()
			default:
				drained = true
			}
		}
	}
	return errors.Join(errs...)
}

// Idle reports how many sessions are parked for opt.
func (p *Pool) Idle(opt Options) int {
	return len(p.getBucket(opt).idle)
}

func (p *Pool) track(session *Session, bucket *sessionBucket) {
	p.mu.Lock()
	p.sessions[session] = bucket
	p.mu.Unlock()
}

func (p *Pool) getBucket(opt Options) *sessionBucket {
	key := optionsKey(opt)
	p.mu.Lock()
	defer p.mu.Unlock()
	bucket, ok := p.buckets[key]
	if !ok {
		bucket = newSessionBucket(opt, p.perKeyCapacity)
		p.buckets[key] = bucket
	}
	return bucket
}

type sessionBucket struct {
	opt      Options
	capacity int

	mu    sync.Mutex
	total int
	idle  chan *Session
}

var errBucketAtCapacity = errors.New("session bucket at capacity")

func newSessionBucket(opt Options, capacity int) *sessionBucket {
	if capacity <= 0 {
		capacity = 1
	}
	return &sessionBucket{
		opt:      opt,
		capacity: capacity,
		idle:     make(chan *Session, capacity),
	}
}

func (b *sessionBucket) create(ctx context.Context, launch Launcher) (*Session, error) {
	b.mu.Lock()
	if b.total >= b.capacity {
		b.mu.Unlock()
		return nil, errBucketAtCapacity
	}
	b.total++
	b.mu.Unlock()

	session, err := launch(ctx, b.opt)
	if err != nil {
		b.decrement()
		return nil, err
	}
	return session, nil
}

func (b *sessionBucket) put(session *Session) bool {
	select {
	case b.idle <- session:
		return true
	default:
		return false
	}
}

func (b *sessionBucket) discard(session *Session) {
	if session != nil {
		_ = session.Close()
	}
	b.decrement()
}

func (b *sessionBucket) decrement() {
	b.mu.Lock()
	if b.total > 0 {
		b.total--
	}
	b.mu.Unlock()
}

func optionsKey(opt Options) string {
	opt = opt.withDefaults()
	return fmt.Sprintf("thr=%d|hash=%d|elo=%d", opt.Threads, opt.HashMB, ClampEloOrFull(opt.Elo))
}

// ClampEloOrFull is ClampElo except that zero means full strength.
func ClampEloOrFull(elo int) int {
	if elo == 0 {
		return 0
	}
	return ClampElo(elo)
}

func defaultPerKeyCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}

// PooledEngine borrows a session from the pool for each search. It satisfies
// the move-source contract used by computer games.
type PooledEngine struct {
	pool *Pool
	opt  Options

	mu     sync.Mutex
	active *Session
}

func (p *Pool) Engine(opt Options) *PooledEngine {
	return &PooledEngine{pool: p, opt: opt}
}

func (e *PooledEngine) BestMove(ctx context.Context, fen string, movetime time.Duration) (string, error) {
	return e.with(ctx, func(s *Session) (string, error) { return s.BestMove(ctx, fen, movetime) })
}

func (e *PooledEngine) BestMoveTimed(ctx context.Context, fen string, wtime, btime time.Duration) (string, error) {
	return e.with(ctx, func(s *Session) (string, error) { return s.BestMoveTimed(ctx, fen, wtime, btime) })
}

// Stop ends the search currently running on this engine's session, if any.
func (e *PooledEngine) Stop() error {
	e.mu.Lock()
	s := e.active
	e.mu.Unlock()
	if s == nil {
		return nil
	}
	return s.Stop()
}

func (e *PooledEngine) with(ctx context.Context, fn func(*Session) (string, error)) (string, error) {
	s, err := e.pool.Acquire(ctx, e.opt)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	e.active = s
	e.mu.Unlock()

	mv, err := fn(s)

	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()

	// 취소/타임아웃은 세션 결함이 아니므로 반납, 엔진 종료만 폐기.
	var releaseErr error
	if errors.Is(err, ErrEngineStopped) {
		releaseErr = err
	}
	e.pool.Release(s, releaseErr)
	return mv, err
}
