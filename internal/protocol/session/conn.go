package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/danmuck/clowdctl/internal/protocol/frame"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuthState is the authentication phase of a connection.
type AuthState int32

const (
	Unauthenticated AuthState = iota
	Authenticating
	Authenticated
)

func (s AuthState) String() string {
	switch s {
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// ConnOption customizes a Conn built by NewConn.
type ConnOption func(*Conn)

func WithMetrics(m *observability.Metrics) ConnOption {
	return func(c *Conn) { c.metrics = m }
}

func WithLogger(l zerolog.Logger) ConnOption {
	return func(c *Conn) { c.log = l }
}

// Conn is one live upload connection. A background read loop decodes frames
// into an unbounded queue; the owner consumes them in order with Next or
// Expect. A Conn is owned by a single caller at a time.
type Conn struct {
	id      string
	nc      net.Conn
	reader  *bufio.Reader
	cfg     Config
	queue   *frameQueue
	metrics *observability.Metrics
	log     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	state     atomic.Int32
	busy      atomic.Bool
	closed    atomic.Bool
	closeOnce sync.Once

	mu         sync.Mutex
	fatal      string
	lastError  string
	sessionKey string
}

// NewConn wraps an established stream and starts its read loop.
func NewConn(nc net.Conn, cfg Config, opts ...ConnOption) *Conn {
	cfg = cfg.WithDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     uuid.NewString(),
		nc:     nc,
		reader: bufio.NewReader(nc),
		cfg:    cfg,
		queue:  newFrameQueue(),
		log:    zerolog.Nop(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("conn", c.id).Logger()
	go c.readLoop()
	return c
}

func (c *Conn) ID() string { return c.id }

func (c *Conn) State() AuthState { return AuthState(c.state.Load()) }

func (c *Conn) setState(s AuthState) { c.state.Store(int32(s)) }

// Alive reports whether the socket is open and the read loop still running.
func (c *Conn) Alive() bool {
	if c.closed.Load() {
		return false
	}
	select {
	case <-c.done:
		return false
	default:
		return true
	}
}

// Done is closed when the read loop has exited.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Err returns the payload of a received ERROR frame, if any.
func (c *Conn) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fatal
}

// LastError returns the most recent frame-scoped error header.
func (c *Conn) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastError
}

// SessionKey returns the key this connection authenticated with.
func (c *Conn) SessionKey() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionKey
}

func (c *Conn) setSessionKey(key string) {
	c.mu.Lock()
	c.sessionKey = key
	c.mu.Unlock()
}

// Write encodes f onto the stream. Cancelling ctx aborts a blocked write.
func (c *Conn) Write(ctx context.Context, f frame.Frame) error {
	if !c.Alive() {
		return ErrClosed
	}
	raw, err := frame.Marshal(f)
	if err != nil {
		return err
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.nc.SetWriteDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = c.nc.SetWriteDeadline(time.Unix(1, 0))
	})
	_, err = c.nc.Write(raw)
	stop()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return fmt.Errorf("session: write %s: %w", f.Command, err)
	}
	c.metrics.RecordFrame("out", f.Command)
	c.metrics.RecordBytes(len(f.Payload))
	c.log.Trace().Str("cmd", f.Command).Int("payload", len(f.Payload)).Msg("frame sent")
	return nil
}

// Next returns the next received frame in arrival order. After the read
// loop ends and the queue drains it returns ErrQueueExhausted.
func (c *Conn) Next(ctx context.Context) (frame.Frame, error) {
	return c.queue.Next(ctx)
}

// Expect waits for the next frame and checks it carries command. A zero
// timeout waits until ctx ends. ERROR frames map to ErrServerError.
func (c *Conn) Expect(ctx context.Context, command string, timeout time.Duration) (frame.Frame, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	f, err := c.Next(waitCtx)
	switch {
	case err == nil:
	case errors.Is(err, ErrQueueExhausted):
		if text := c.Err(); text != "" {
			return frame.Frame{}, fmt.Errorf("%w: %w: %s", ErrQueueExhausted, ErrServerError, text)
		}
		return frame.Frame{}, err
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return frame.Frame{}, fmt.Errorf("%w: %s after %s", ErrTimeout, command, timeout)
	default:
		return frame.Frame{}, err
	}

	if f.IsFatal() {
		return f, fmt.Errorf("%w: %s", ErrServerError, f.PayloadString())
	}
	if !f.Is(command) {
		return f, fmt.Errorf("%w: got %s, want %s", ErrUnexpectedFrame, f.Command, command)
	}
	return f, nil
}

// Request writes f and waits for a frame carrying expect. Only one request
// may be outstanding per connection; responses are matched by order.
func (c *Conn) Request(ctx context.Context, f frame.Frame, expect string, timeout time.Duration) (frame.Frame, error) {
	if !c.busy.CompareAndSwap(false, true) {
		return frame.Frame{}, ErrRequestInFlight
	}
	defer c.busy.Store(false)

	if err := c.Write(ctx, f); err != nil {
		return frame.Frame{}, err
	}
	return c.Expect(ctx, expect, timeout)
}

// Close tears down the socket and waits for the read loop to exit.
func (c *Conn) Close() error {
	c.shutdown("closed")
	<-c.done
	return nil
}

func (c *Conn) shutdown(reason string) {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		_ = c.nc.Close()
		c.queue.Close()
		c.log.Debug().Str("reason", reason).Msg("connection closed")
	})
}

func (c *Conn) readLoop() {
	defer close(c.done)

	reason := "stream end"
	defer func() { c.shutdown(reason) }()

	for {
		f, err := frame.Decode(c.reader, c.cfg.Limits)
		if err != nil {
			switch {
			case c.ctx.Err() != nil:
				reason = "closed"
			case errors.Is(err, frame.ErrStreamEnd):
			default:
				reason = err.Error()
				c.log.Warn().Err(err).Msg("read loop terminated")
			}
			return
		}
		c.metrics.RecordFrame("in", f.Command)
		c.log.Trace().Str("cmd", f.Command).Int("payload", len(f.Payload)).Msg("frame received")

		if f.IsFatal() {
			text := f.PayloadString()
			c.mu.Lock()
			c.fatal = text
			c.mu.Unlock()
			c.log.Error().Str("error", text).Msg("server error")
			c.queue.Push(f)
			reason = "server error"
			return
		}
		if text, ok := f.ErrorText(); ok {
			c.mu.Lock()
			c.lastError = text
			c.mu.Unlock()
			c.log.Warn().Str("cmd", f.Command).Str("error", text).Msg("frame carries error")
		}
		c.queue.Push(f)
	}
}
