package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/danmuck/clowdctl/internal/protocol/session"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidRequest  = errors.New("upload: invalid request")
	ErrNoActionLink    = errors.New("upload: server returned no action link")
	ErrInvalidListing  = errors.New("upload: invalid upload listing")
	ErrAddressRequired = errors.New("upload: address required")
	ErrRejected        = errors.New("upload: rejected by server")
)

// Config configures a Client.
type Config struct {
	Address     string `validate:"omitempty,hostname_port"`
	Session     session.Config
	ContentType string
}

// Client uploads payloads over pooled, authenticated connections. Methods
// are safe for concurrent use; concurrent calls simply miss the idle pool
// slot and dial their own connection.
type Client struct {
	cfg      Config
	pool     *session.Pool
	ownsPool bool
	cache    *auth.Cache
	source   auth.Source
	sink     Sink
	metrics  *observability.Metrics
	log      zerolog.Logger
	validate *validator.Validate
}

func New(cfg Config, opts ...Option) (*Client, error) {
	c := &Client{
		cfg:      cfg,
		cache:    auth.NewCache(),
		sink:     NopSink{},
		log:      zerolog.Nop(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cfg.ContentType == "" {
		c.cfg.ContentType = DefaultContentType
	}
	c.cfg.Session = c.cfg.Session.WithDefaults()
	if err := c.validate.Struct(c.cfg); err != nil {
		return nil, fmt.Errorf("upload: config: %w", err)
	}

	if c.pool == nil {
		if strings.TrimSpace(c.cfg.Address) == "" {
			return nil, ErrAddressRequired
		}
		dialer := session.Dialer{
			Addr:    c.cfg.Address,
			Config:  c.cfg.Session,
			Metrics: c.metrics,
			Logger:  c.log.With().Str("component", "session").Logger(),
		}
		c.pool = session.NewPool(dialer.Dial, c.cfg.Session,
			session.WithPoolMetrics(c.metrics),
			session.WithPoolLogger(c.log.With().Str("component", "pool").Logger()),
		)
		c.ownsPool = true
	}
	return c, nil
}

// Login authenticates with creds on a fresh or pooled connection and, on
// success, caches them together with the issued session key.
func (c *Client) Login(ctx context.Context, creds auth.Credentials) error {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	err = conn.Authenticate(ctx, c.cache, &creds)
	c.pool.Release(conn, errors.Is(err, session.ErrNetwork))
	if err != nil {
		return err
	}
	c.log.Info().Str("user", creds.Username).Msg("login stored")
	return nil
}

// Logout forgets the cached login and drops the idle connection, which may
// still be authenticated.
func (c *Client) Logout() {
	c.cache.Clear()
	c.pool.DropIdle()
}

// Authenticated reports whether a login or session key is cached.
func (c *Client) Authenticated() bool {
	return c.cache.HasLogin()
}

// Profile returns the account summary from the last login.
func (c *Client) Profile() auth.Profile {
	return c.cache.Profile()
}

// Close releases the connection pool when the client created it.
func (c *Client) Close() error {
	if c.ownsPool {
		return c.pool.Close()
	}
	return nil
}

// UploadText uploads s as a text payload. An empty name lets the server
// pick one.
func (c *Client) UploadText(ctx context.Context, s, displayName string, opts Options) (Result, error) {
	if strings.TrimSpace(displayName) == "" {
		displayName = "clowd-default.txt"
	}
	return c.Upload(ctx, Request{Data: []byte(s), DisplayName: displayName, Options: opts})
}

// UploadFile reads path fully into memory and uploads it under its base name.
func (c *Client) UploadFile(ctx context.Context, path string, opts Options) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	return c.Upload(ctx, Request{Data: data, DisplayName: filepath.Base(path), Options: opts})
}

// session acquires a connection and, when login is set, authenticates it
// from the cache. A rejected cached login is cleared and the connection is
// returned unauthenticated; a network failure discards the connection.
func (c *Client) session(ctx context.Context, login bool) (*session.Conn, error) {
	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !login || conn.State() == session.Authenticated {
		return conn, nil
	}

	if !c.cache.HasLogin() && c.source != nil {
		creds, err := c.source.Credentials(ctx)
		if err == nil && creds.Valid() {
			c.cache.Store(creds, "", auth.Profile{})
		}
	}
	if !c.cache.HasLogin() {
		return conn, nil
	}

	err = conn.Authenticate(ctx, c.cache, nil)
	switch {
	case err == nil:
		return conn, nil
	case errors.Is(err, session.ErrNetwork):
		c.pool.Release(conn, true)
		return nil, err
	default:
		c.log.Warn().Err(err).Msg("cached login rejected; continuing unauthenticated")
		c.cache.Clear()
		return conn, nil
	}
}
