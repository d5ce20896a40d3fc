package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/protocol/session"
	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/go-playground/validator/v10"
)

// DefaultAddress is the public upload service endpoint.
const DefaultAddress = "clowd.xyz:12998"

var ErrInvalidConfig = errors.New("config: invalid")

// Config is the resolved clowdctl runtime configuration.
type Config struct {
	Address  string
	LogLevel string
	Session  session.Config
	Login    LoginConfig
	Upload   upload.Options
}

// LoginConfig holds optional stored credentials. PasswordHash wins over
// Password when both are set.
type LoginConfig struct {
	Username     string
	Password     string
	PasswordHash string
}

// Credentials builds credentials from the stored login. ok is false when
// no username is configured.
func (l LoginConfig) Credentials() (creds auth.Credentials, ok bool, err error) {
	if strings.TrimSpace(l.Username) == "" {
		return auth.Credentials{}, false, nil
	}
	if strings.TrimSpace(l.PasswordHash) != "" {
		creds, err = auth.FromHash(l.Username, l.PasswordHash)
	} else {
		creds, err = auth.NewCredentials(l.Username, l.Password)
	}
	if err != nil {
		return auth.Credentials{}, false, err
	}
	return creds, true, nil
}

func Default() Config {
	return Config{
		Address:  DefaultAddress,
		LogLevel: "info",
		Session:  session.DefaultConfig(),
	}
}

// DefaultPath is where clowdctl looks for a config file when none is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "clowdctl.toml"
	}
	return filepath.Join(dir, "clowdctl", "config.toml")
}

// clowdctl config.toml key mapping. Durations are Go duration strings.
type fileConfig struct {
	Address            string `toml:"address" validate:"omitempty,hostname_port"`
	LogLevel           string `toml:"log_level" validate:"omitempty,oneof=trace debug info warn warning error disabled off"`
	ConnectTimeout     string `toml:"connect_timeout"`
	HandshakeTimeout   string `toml:"handshake_timeout"`
	CompleteTimeout    string `toml:"complete_timeout"`
	WriteTimeout       string `toml:"write_timeout"`
	IdleTimeout        string `toml:"idle_timeout"`
	MaxConnectAttempts int    `toml:"max_connect_attempts" validate:"gte=0,lte=20"`
	DSCP               int    `toml:"dscp" validate:"gte=0,lte=63"`
	NoDelay            bool   `toml:"no_delay"`
	MaxPayloadBytes    int    `toml:"max_payload_bytes" validate:"gte=0"`

	TLS    tlsFileConfig    `toml:"tls"`
	Login  loginFileConfig  `toml:"login"`
	Upload uploadFileConfig `toml:"upload"`
}

type tlsFileConfig struct {
	Enabled            bool   `toml:"enabled"`
	CAFile             string `toml:"ca_file"`
	ServerName         string `toml:"server_name" validate:"omitempty,hostname"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type loginFileConfig struct {
	Username     string `toml:"username"`
	Password     string `toml:"password"`
	PasswordHash string `toml:"password_hash" validate:"omitempty,hexadecimal,len=32"`
}

type uploadFileConfig struct {
	Direct    bool   `toml:"direct"`
	ViewLimit int    `toml:"view_limit" validate:"gte=0"`
	ValidFor  string `toml:"valid_for"`
}

// Load reads path and overlays the keys it defines onto Default.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: %s: unknown key %q", ErrInvalidConfig, path, undecoded[0].String())
	}
	if err := validator.New().Struct(raw); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	cfg, err := apply(Default(), raw, meta)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// LoadOptional loads path when it exists and falls back to Default
// otherwise. An explicitly named file must exist.
func LoadOptional(path string, explicit bool) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load config %s: %w", path, err)
		}
		return Default(), nil
	}
	return Load(path)
}

func apply(cfg Config, raw fileConfig, meta toml.MetaData) (Config, error) {
	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"connect_timeout", raw.ConnectTimeout, &cfg.Session.ConnectTimeout},
		{"handshake_timeout", raw.HandshakeTimeout, &cfg.Session.HandshakeTimeout},
		{"complete_timeout", raw.CompleteTimeout, &cfg.Session.CompleteTimeout},
		{"write_timeout", raw.WriteTimeout, &cfg.Session.WriteTimeout},
		{"idle_timeout", raw.IdleTimeout, &cfg.Session.IdleTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		v, err := parseDuration(d.key, d.raw)
		if err != nil {
			return Config{}, err
		}
		*d.dst = v
	}

	if meta.IsDefined("max_connect_attempts") {
		cfg.Session.MaxConnectAttempts = raw.MaxConnectAttempts
	}
	if meta.IsDefined("dscp") {
		cfg.Session.DSCP = raw.DSCP
	}
	if meta.IsDefined("no_delay") {
		cfg.Session.NoDelay = raw.NoDelay
	}
	if meta.IsDefined("max_payload_bytes") {
		cfg.Session.Limits.MaxPayloadBytes = raw.MaxPayloadBytes
	}

	if meta.IsDefined("tls", "enabled") {
		cfg.Session.TLS.Enabled = raw.TLS.Enabled
	}
	if meta.IsDefined("tls", "ca_file") {
		cfg.Session.TLS.CAFile = strings.TrimSpace(raw.TLS.CAFile)
	}
	if meta.IsDefined("tls", "server_name") {
		cfg.Session.TLS.ServerName = strings.TrimSpace(raw.TLS.ServerName)
	}
	if meta.IsDefined("tls", "insecure_skip_verify") {
		cfg.Session.TLS.InsecureSkipVerify = raw.TLS.InsecureSkipVerify
	}

	cfg.Login = LoginConfig{
		Username:     strings.TrimSpace(raw.Login.Username),
		Password:     raw.Login.Password,
		PasswordHash: strings.ToUpper(strings.TrimSpace(raw.Login.PasswordHash)),
	}
	if cfg.Login.Username == "" && (cfg.Login.Password != "" || cfg.Login.PasswordHash != "") {
		return Config{}, fmt.Errorf("login.username is required when a password is set")
	}

	cfg.Upload.Direct = raw.Upload.Direct
	cfg.Upload.ViewLimit = raw.Upload.ViewLimit
	if meta.IsDefined("upload", "valid_for") {
		v, err := parseDuration("upload.valid_for", raw.Upload.ValidFor)
		if err != nil {
			return Config{}, err
		}
		cfg.Upload.ValidFor = v
	}

	cfg.Session = cfg.Session.WithDefaults()
	if err := cfg.Session.ValidateClientTransport(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "0" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}
