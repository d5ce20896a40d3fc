package session

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/rs/zerolog"
)

// PoolOption customizes a Pool.
type PoolOption func(*Pool)

func WithPoolMetrics(m *observability.Metrics) PoolOption {
	return func(p *Pool) { p.metrics = m }
}

func WithPoolLogger(l zerolog.Logger) PoolOption {
	return func(p *Pool) { p.log = l }
}

// Pool keeps at most one idle connection for reuse. A parked connection is
// closed if nobody acquires it within Config.IdleTimeout.
type Pool struct {
	dial    DialFunc
	cfg     Config
	metrics *observability.Metrics
	log     zerolog.Logger

	mu     sync.Mutex
	idle   *Conn
	timer  *time.Timer
	gen    uint64
	closed bool
}

func NewPool(dial DialFunc, cfg Config, opts ...PoolOption) *Pool {
	p := &Pool{
		dial: dial,
		cfg:  cfg.WithDefaults(),
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire hands out the idle connection when it is still alive, otherwise
// dials a new one. The caller owns the result until Release.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrClosed
	}
	conn := p.takeIdleLocked()
	p.mu.Unlock()

	if conn != nil {
		if conn.Alive() {
			p.metrics.RecordPoolEvent("hit")
			p.log.Debug().Str("conn", conn.ID()).Msg("reusing idle connection")
			return conn, nil
		}
		p.metrics.RecordPoolEvent("stale")
		_ = conn.Close()
	} else {
		p.metrics.RecordPoolEvent("miss")
	}
	return p.connect(ctx)
}

// Release parks conn for reuse, or closes it when forceClose is set, the
// connection is dead, or the slot is already taken.
func (p *Pool) Release(conn *Conn, forceClose bool) {
	if conn == nil {
		return
	}
	if !forceClose && conn.Alive() {
		p.mu.Lock()
		if !p.closed && p.idle == nil {
			p.idle = conn
			p.gen++
			gen := p.gen
			p.timer = time.AfterFunc(p.cfg.IdleTimeout, func() { p.evict(conn, gen) })
			p.mu.Unlock()
			p.metrics.RecordPoolEvent("park")
			return
		}
		p.mu.Unlock()
	}
	p.metrics.RecordPoolEvent("discard")
	_ = conn.Close()
}

// Idle returns the parked connection without taking it.
func (p *Pool) Idle() *Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle
}

// DropIdle closes the parked connection, if any, and keeps the pool open.
func (p *Pool) DropIdle() {
	p.mu.Lock()
	conn := p.takeIdleLocked()
	p.mu.Unlock()
	if conn != nil {
		p.metrics.RecordPoolEvent("discard")
		_ = conn.Close()
	}
}

// Close drops the idle connection and refuses further acquires.
func (p *Pool) Close() error {
	p.mu.Lock()
	p.closed = true
	conn := p.takeIdleLocked()
	p.mu.Unlock()
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (p *Pool) takeIdleLocked() *Conn {
	conn := p.idle
	p.idle = nil
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	return conn
}

// evict closes conn if it is still parked under gen. A timer that fires
// after the slot was handed out or refilled does nothing.
func (p *Pool) evict(conn *Conn, gen uint64) {
	p.mu.Lock()
	if p.idle != conn || p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.idle = nil
	p.timer = nil
	p.mu.Unlock()

	p.metrics.RecordPoolEvent("evict")
	p.log.Debug().Str("conn", conn.ID()).Msg("idle connection evicted")
	_ = conn.Close()
}

func (p *Pool) connect(ctx context.Context) (*Conn, error) {
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxConnectAttempts; attempt++ {
		conn, err := p.dial(ctx)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == p.cfg.MaxConnectAttempts || ctx.Err() != nil {
			break
		}
		delay := nextBackoffDelay(p.cfg.Backoff, attempt, rand.Float64)
		p.log.Debug().Int("attempt", attempt).Dur("retry_in", delay).Err(err).Msg("connect retry")
		select {
		case <-ctx.Done():
			return nil, errors.Join(lastErr, ctx.Err())
		case <-time.After(delay):
		}
	}
	return nil, lastErr
}

// nextBackoffDelay returns the retry delay after attempt N (1-based).
// jitter must be safe for concurrent use; nil picks the midpoint.
func nextBackoffDelay(cfg BackoffConfig, attempt int, jitter func() float64) time.Duration {
	if cfg.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return cfg.InitialDelay
	}
	if cfg.Multiplier < 1.0 {
		cfg.Multiplier = 1.0
	}
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxDelay > 0 && delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	if cfg.Jitter {
		f := 0.5
		if jitter != nil {
			f = 0.5 + jitter()
		}
		delay *= f
	}
	return time.Duration(delay)
}
