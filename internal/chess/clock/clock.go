// Package clock implements a countdown chess clock.
package clock

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the tick granularity of a running clock.
const DefaultInterval = 100 * time.Millisecond

// Clock counts a side's remaining time down while resumed. It is created
// paused; the ticking goroutine starts on the first Resume and exits on Close
// or exhaustion.
type Clock struct {
	remaining atomic.Int64 // nanoseconds
	paused    atomic.Bool
	finished  atomic.Bool

	// mu orders Pause/Resume against ticks; since is when the current
	// running stretch was last charged.
	mu    sync.Mutex
	since time.Time

	interval time.Duration

	startOnce sync.Once
	doneOnce  sync.Once
	closeOnce sync.Once
	done      chan struct{}
	closed    chan struct{}
}

type Option func(*Clock)

// WithInterval overrides the tick granularity.
func WithInterval(d time.Duration) Option {
	return func(c *Clock) {
		if d > 0 {
			c.interval = d
		}
	}
}

func New(d time.Duration, opts ...Option) *Clock {
	c := &Clock{
		interval: DefaultInterval,
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	c.remaining.Store(int64(d))
	c.paused.Store(true)
	if d <= 0 {
		c.finish()
	}
	return c
}

// FromMinutes builds a clock from a possibly fractional number of minutes.
func FromMinutes(minutes float64, opts ...Option) *Clock {
	return New(time.Duration(minutes*float64(time.Minute)), opts...)
}

// Parse builds a clock from "HH:MM:SS".
func Parse(hms string, opts ...Option) (*Clock, error) {
	var h, m, s int
	if _, err := fmt.Sscanf(hms, "%d:%d:%d", &h, &m, &s); err != nil {
		return nil, fmt.Errorf("parse clock %q: %w", hms, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || s < 0 || s > 59 {
		return nil, fmt.Errorf("parse clock %q: out of range", hms)
	}
	d := time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
	return New(d, opts...), nil
}

func (c *Clock) Resume() {
	c.mu.Lock()
	if c.finished.Load() {
		c.mu.Unlock()
		return
	}
	if c.paused.Load() {
		c.since = time.Now()
		c.paused.Store(false)
	}
	c.mu.Unlock()
	c.startOnce.Do(func() { go c.run() })
}

// Pause charges the time used since the last tick and stops the countdown.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.settleLocked(time.Now())
	c.paused.Store(true)
	c.mu.Unlock()
}

func (c *Clock) Paused() bool { return c.paused.Load() }

func (c *Clock) Finished() bool { return c.finished.Load() }

// Done is closed exactly once when the clock runs out.
func (c *Clock) Done() <-chan struct{} { return c.done }

func (c *Clock) Remaining() time.Duration {
	return time.Duration(c.remaining.Load())
}

// AddTime credits d to the clock, e.g. a per-move increment.
func (c *Clock) AddTime(d time.Duration) {
	if c.finished.Load() {
		return
	}
	c.remaining.Add(int64(d))
}

// Set overwrites the remaining time, e.g. when a saved game is restored.
// A finished clock stays finished; d <= 0 finishes it.
func (c *Clock) Set(d time.Duration) {
	if c.finished.Load() {
		return
	}
	c.remaining.Store(int64(d))
	if d <= 0 {
		c.finish()
	}
}

// Close stops the ticking goroutine. The remaining time is kept.
func (c *Clock) Close() {
	c.closeOnce.Do(func() { close(c.closed) })
	c.Pause()
}

func (c *Clock) run() {
	t := time.NewTicker(c.interval)
	defer t.Stop()
	for {
		select {
		case <-c.closed:
			return
		case <-c.done:
			return
		case now := <-t.C:
			c.mu.Lock()
			c.settleLocked(now)
			c.mu.Unlock()
		}
	}
}

// settleLocked charges the time elapsed since the last charge while running.
func (c *Clock) settleLocked(now time.Time) {
	if c.paused.Load() {
		return
	}
	if elapsed := now.Sub(c.since); elapsed > 0 {
		c.since = now
		c.advance(elapsed)
	}
}

// advance consumes d of the remaining time.
func (c *Clock) advance(d time.Duration) {
	if c.remaining.Add(-int64(d)) <= 0 {
		c.finish()
	}
}

func (c *Clock) finish() {
	c.doneOnce.Do(func() {
		c.finished.Store(true)
		c.paused.Store(true)
		close(c.done)
	})
}

// String formats the time left as hh:mm:ss above an hour, 00:ss.t under ten
// seconds and mm:ss otherwise.
func (c *Clock) String() string {
	return FormatRemaining(c.Remaining())
}

func FormatRemaining(d time.Duration) string {
	ms := d.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	secs := ms / 1000
	hours := secs / 3600
	minutes := (secs % 3600) / 60
	seconds := secs % 60
	tenths := (ms % 1000) / 100
	switch {
	case hours > 0:
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	case secs < 10:
		return fmt.Sprintf("00:%02d.%d", seconds, tenths)
	default:
		return fmt.Sprintf("%02d:%02d", minutes, seconds)
	}
}
