package upload

import (
	"strconv"
	"time"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/danmuck/clowdctl/internal/protocol/frame"
	"github.com/danmuck/clowdctl/internal/protocol/session"
	"github.com/rs/zerolog"
)

// DefaultContentType is sent when a request names none.
const DefaultContentType = "file"

// Options are per-upload server hints.
type Options struct {
	// Direct asks for a raw download link instead of a viewer page.
	Direct bool
	// ViewLimit caps views when positive.
	ViewLimit int `validate:"gte=0"`
	// ValidFor expires the upload when positive.
	ValidFor    time.Duration `validate:"gte=0"`
	ContentType string        `validate:"omitempty,max=255"`
}

// Request is one fully materialized payload to upload.
type Request struct {
	Data        []byte `validate:"required,min=1"`
	DisplayName string `validate:"required,max=255"`
	Options     Options
}

// Result describes a finished upload.
type Result struct {
	ActionLink  string
	DisplayName string
	DisplayKey  string
	Bytes       int
}

// ticks renders d in 100ns units, the resolution the server parses.
func ticks(d time.Duration) string {
	return strconv.FormatInt(d.Nanoseconds()/100, 10)
}

// apply adds the option headers to f.
func (o Options) apply(f frame.Frame) frame.Frame {
	if o.Direct {
		f = f.WithHeader(frame.HeaderDirect, "true")
	}
	if o.ViewLimit > 0 {
		f = f.WithHeader(frame.HeaderViewLimit, strconv.Itoa(o.ViewLimit))
	}
	if o.ValidFor > 0 {
		f = f.WithHeader(frame.HeaderValidFor, ticks(o.ValidFor))
	}
	return f
}

// Option customizes a Client.
type Option func(*Client)

func WithSink(s Sink) Option {
	return func(c *Client) {
		if s != nil {
			c.sink = s
		}
	}
}

// WithCredentialSource supplies a login when the cache holds none.
func WithCredentialSource(src auth.Source) Option {
	return func(c *Client) { c.source = src }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithPool shares an existing pool instead of dialing Config.Address.
func WithPool(p *session.Pool) Option {
	return func(c *Client) { c.pool = p }
}

func WithCache(cache *auth.Cache) Option {
	return func(c *Client) {
		if cache != nil {
			c.cache = cache
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}
