package session

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"

	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// DialFunc opens a fresh connection. Pools call it on a miss.
type DialFunc func(ctx context.Context) (*Conn, error)

// Dialer opens upload connections to one address.
type Dialer struct {
	Addr    string
	Config  Config
	Metrics *observability.Metrics
	Logger  zerolog.Logger
}

// Dial connects, applies socket options, and starts the read loop. Any
// failure is reported as ErrConnectFailure; there is no retry here.
func (d Dialer) Dial(ctx context.Context) (*Conn, error) {
	cfg := d.Config.WithDefaults()
	conn, err := d.dial(ctx, cfg)
	d.Metrics.RecordConnect(err)
	if err != nil {
		d.Logger.Warn().Str("addr", d.Addr).Err(err).Msg("connect failed")
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectFailure, d.Addr, err)
	}
	c := NewConn(conn, cfg, WithMetrics(d.Metrics), WithLogger(d.Logger))
	d.Logger.Debug().Str("conn", c.ID()).Str("addr", d.Addr).Msg("connected")
	return c, nil
}

func (d Dialer) dial(ctx context.Context, cfg Config) (net.Conn, error) {
	if strings.TrimSpace(d.Addr) == "" {
		return nil, fmt.Errorf("session: address required")
	}
	if err := cfg.ValidateClientTransport(); err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	if tcp, ok := rawConn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(cfg.NoDelay)
	}
	if cfg.DSCP > 0 {
		if err := setDSCP(rawConn, cfg.DSCP); err != nil {
			d.Logger.Debug().Err(err).Int("dscp", cfg.DSCP).Msg("dscp not applied")
		}
	}
	if !cfg.TLS.Enabled {
		return rawConn, nil
	}

	tlsCfg, err := clientTLSConfig(cfg.TLS, d.Addr)
	if err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	conn := tls.Client(rawConn, tlsCfg)
	handshakeCtx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := conn.HandshakeContext(handshakeCtx); err != nil {
		_ = rawConn.Close()
		return nil, err
	}
	return conn, nil
}

// setDSCP marks the socket's traffic class. DSCP occupies the upper six
// bits of the TOS / traffic class byte.
func setDSCP(conn net.Conn, dscp int) error {
	tos := dscp << 2
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if ok && addr.IP.To4() == nil {
		return ipv6.NewConn(conn).SetTrafficClass(tos)
	}
	return ipv4.NewConn(conn).SetTOS(tos)
}

// Dial opens a connection to addr without metrics or logging.
func Dial(ctx context.Context, addr string, cfg Config) (*Conn, error) {
	return Dialer{Addr: addr, Config: cfg, Logger: zerolog.Nop()}.Dial(ctx)
}
