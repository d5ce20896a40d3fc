package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/clowdctl/internal/protocol/frame"
	"github.com/danmuck/clowdctl/internal/protocol/session"
	"github.com/danmuck/clowdctl/internal/testutil/wiretest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, stdin string, args ...string) result {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&out)
	root.SetErr(&errOut)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return result{stdout: out.String(), stderr: errOut.String(), err: err}
}

// writeConfig points a config file at srv with alice's stored login.
func writeConfig(t *testing.T, srv *wiretest.Server) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	body := fmt.Sprintf(`address = %q
log_level = "error"
handshake_timeout = "2s"
complete_timeout = "5s"

[login]
username = "alice"
password = "hunter2"
`, srv.Addr())
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestUploadFilesPrintsSummary(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "first file")
	b := writeFile(t, dir, "b.txt", "second file")
	metrics := filepath.Join(dir, "metrics.prom")

	res := run(t, "", "--config", cfg, "--metrics-file", metrics, "upload", a, b)
	require.NoError(t, res.err, res.stderr)

	assert.Contains(t, res.stdout, "https://clowd.test/u/rs")
	assert.Contains(t, res.stdout, "https://clowd.test/u/rt")
	assert.Contains(t, res.stderr, "uploading a.txt")
	assert.Contains(t, res.stderr, "done b.txt: https://clowd.test/u/rt")

	uploads := svc.Uploads()
	require.Len(t, uploads, 2)
	assert.Equal(t, []byte("first file"), uploads[0].Data)
	assert.Equal(t, []string{frame.CmdLogin, frame.CmdAuth, frame.CmdUpload, frame.CmdUpload}, srv.Commands())
	assert.Equal(t, 1, srv.Accepted())

	raw, err := os.ReadFile(metrics)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "clowdctl_upload_transfers_total")
}

func TestUploadTextFromStdin(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)

	res := run(t, "hello\n", "--config", cfg, "upload", "--text", "--name", "greeting.txt",
		"--view-limit", "3", "--valid-for", "1h", "--direct")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "https://clowd.test/u/rs\n", res.stdout)

	uploads := svc.Uploads()
	require.Len(t, uploads, 1)
	up := uploads[0]
	assert.Equal(t, "greeting.txt", up.DisplayName)
	assert.Equal(t, []byte("hello\n"), up.Data)
	assert.Equal(t, "3", up.Headers.Get(frame.HeaderViewLimit))
	assert.Equal(t, "36000000000", up.Headers.Get(frame.HeaderValidFor))
	assert.Equal(t, "true", up.Headers.Get(frame.HeaderDirect))
}

func TestUploadQuietPrintsOnlyLinks(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)
	path := writeFile(t, t.TempDir(), "a.txt", "data")

	res := run(t, "", "--config", cfg, "upload", "-q", path)
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "https://clowd.test/u/rs\n", res.stdout)
	assert.NotContains(t, res.stderr, "uploading")
}

func TestUploadArguments(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)

	res := run(t, "", "--config", cfg, "upload")
	assert.ErrorContains(t, res.err, "nothing to upload")

	res = run(t, "", "--config", cfg, "upload", "--text", "file.txt")
	assert.ErrorContains(t, res.err, "takes no file arguments")

	assert.Zero(t, srv.Accepted())
}

func TestUploadMissingFileKeepsGoing(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "ok")
	missing := filepath.Join(dir, "missing.txt")

	res := run(t, "", "--config", cfg, "upload", missing, good)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), missing)
	assert.ErrorIs(t, res.err, os.ErrNotExist)
	assert.Len(t, svc.Uploads(), 1)
	assert.Contains(t, res.stdout, "good.txt")
}

func TestLoginPrintsProfile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)

	res := run(t, "", "--address", srv.Addr(), "login", "--user", "alice", "--password", "hunter2")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "alice@clowd.test")
	assert.Contains(t, res.stdout, "Subscription:")

	res = run(t, "", "--address", srv.Addr(), "login", "--user", "alice", "--password", "wrong")
	assert.ErrorIs(t, res.err, session.ErrInvalidUserOrPass)
}

func TestLoginWithoutCredentials(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	res := run(t, "", "--address", "127.0.0.1:1", "login")
	assert.ErrorContains(t, res.err, "no login")
}

func TestListRendersTable(t *testing.T) {
	svc := wiretest.NewService("alice", "hunter2")
	srv := wiretest.Start(t, svc.Handle)
	cfg := writeConfig(t, srv)
	dir := t.TempDir()
	res := run(t, "", "--config", cfg, "upload", "-q",
		writeFile(t, dir, "a.txt", "one"), writeFile(t, dir, "b.txt", "two"))
	require.NoError(t, res.err, res.stderr)

	res = run(t, "", "--config", cfg, "list", "--count", "1")
	require.NoError(t, res.err, res.stderr)
	assert.Contains(t, res.stdout, "b.txt")
	assert.Contains(t, res.stdout, "https://clowd.test/u/rt")
	assert.NotContains(t, res.stdout, "a.txt")

	res = run(t, "", "--config", cfg, "list", "--offset", "5")
	require.NoError(t, res.err, res.stderr)
	assert.Equal(t, "no uploads\n", res.stdout)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	res := run(t, "", "--config", path, "config", "init")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "wrote "+path)

	res = run(t, "", "--config", path, "config", "init")
	assert.ErrorContains(t, res.err, "already exists")

	res = run(t, "", "--config", path, "config", "init", "--force")
	require.NoError(t, res.err)

	res = run(t, "", "--config", path, "config", "validate")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, "is valid")
	assert.Contains(t, res.stdout, "clowd.xyz:12998")

	require.NoError(t, os.WriteFile(path, []byte("dscp = 99\n"), 0o600))
	res = run(t, "", "--config", path, "config", "validate")
	assert.Error(t, res.err)
}

func TestFormatViews(t *testing.T) {
	limit := 5
	assert.Equal(t, "2", formatViews(2, nil))
	assert.Equal(t, "2/5", formatViews(2, &limit))
}
