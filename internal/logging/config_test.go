package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":   zerolog.TraceLevel,
		" DEBUG ": zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
	}
	for raw, want := range cases {
		got, ok := ParseLevel(raw)
		assert.True(t, ok, raw)
		assert.Equal(t, want, got, raw)
	}
	_, ok := ParseLevel("loud")
	assert.False(t, ok)
	_, ok = ParseLevel("")
	assert.False(t, ok)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogTimestamp, "false")
	t.Setenv(EnvLogBypass, "1")
	t.Setenv(EnvLogNoColor, "nope")

	cfg := defaultConfig(ProfileRuntime)
	applyEnvOverrides(&cfg)
	assert.Equal(t, zerolog.ErrorLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)
	assert.True(t, cfg.Bypass)
	assert.False(t, cfg.NoColor)
}

func TestNewBypassWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: zerolog.InfoLevel, Bypass: true, Out: &buf})
	logger.Debug().Msg("hidden")
	logger.Info().Str("conn", "c1").Msg("connected")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"conn":"c1"`)
	assert.Contains(t, buf.String(), `"message":"connected"`)
}

func TestResolveAndComponent(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	cfg := Resolve(ProfileTest)
	assert.Equal(t, zerolog.WarnLevel, cfg.Level)
	assert.False(t, cfg.Timestamp)

	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { Install(prev) })
	Install(New(Config{Level: zerolog.InfoLevel, Bypass: true, Out: &buf}))
	l := Component("upload")
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), `"component":"upload"`)
}
