package session

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

var (
	ErrTLSCAFileMissing = errors.New("session: tls ca file not found")
	ErrInvalidDSCP      = errors.New("session: dscp out of range")
)

// ValidateClientTransport checks transport settings before dialing.
func (c Config) ValidateClientTransport() error {
	if c.DSCP < 0 || c.DSCP > 63 {
		return fmt.Errorf("%w: %d", ErrInvalidDSCP, c.DSCP)
	}
	if !c.TLS.Enabled {
		return nil
	}
	if caPath := strings.TrimSpace(c.TLS.CAFile); caPath != "" {
		if _, err := os.Stat(caPath); err != nil {
			return fmt.Errorf("%w: %s", ErrTLSCAFileMissing, caPath)
		}
	}
	return nil
}

func clientTLSConfig(cfg TLSConfig, addr string) (*tls.Config, error) {
	out := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	serverName := strings.TrimSpace(cfg.ServerName)
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		serverName = host
	}
	out.ServerName = serverName

	if caPath := strings.TrimSpace(cfg.CAFile); caPath != "" {
		caPEM, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if ok := pool.AppendCertsFromPEM(caPEM); !ok {
			return nil, fmt.Errorf("session: parse tls ca bundle: %s", caPath)
		}
		out.RootCAs = pool
	}
	return out, nil
}
