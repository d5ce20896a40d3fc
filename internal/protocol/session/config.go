package session

import (
	"time"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
)

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// TLSConfig wraps the plain TCP stream in TLS when Enabled.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	ServerName         string
	InsecureSkipVerify bool
}

// Config defines transport and handshake defaults for upload connections.
type Config struct {
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration
	// CompleteTimeout bounds the wait for the final COMPLETE of an upload.
	// Zero disables the bound.
	CompleteTimeout    time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	MaxConnectAttempts int
	Backoff            BackoffConfig
	NoDelay            bool
	// DSCP marks outgoing packets when non-zero.
	DSCP   int
	TLS    TLSConfig
	Limits frame.Limits
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout:     10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		CompleteTimeout:    2 * time.Minute,
		WriteTimeout:       30 * time.Second,
		IdleTimeout:        10 * time.Second,
		MaxConnectAttempts: 1,
		NoDelay:            true,
		Backoff: BackoffConfig{
			InitialDelay: 250 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
		Limits: frame.DefaultLimits(),
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig. CompleteTimeout
// is left alone so zero keeps meaning "unbounded".
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.CompleteTimeout < 0 {
		c.CompleteTimeout = 0
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = def.IdleTimeout
	}
	if c.MaxConnectAttempts <= 0 {
		c.MaxConnectAttempts = def.MaxConnectAttempts
	}
	if c.Backoff.InitialDelay <= 0 {
		c.Backoff = def.Backoff
	}
	if c.Limits.MaxLineBytes <= 0 {
		c.Limits.MaxLineBytes = def.Limits.MaxLineBytes
	}
	if c.Limits.MaxPayloadBytes <= 0 {
		c.Limits.MaxPayloadBytes = def.Limits.MaxPayloadBytes
	}
	return c
}
