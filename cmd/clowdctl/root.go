package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/danmuck/clowdctl/internal/auth"
	"github.com/danmuck/clowdctl/internal/config"
	"github.com/danmuck/clowdctl/internal/logging"
	"github.com/danmuck/clowdctl/internal/observability"
	"github.com/danmuck/clowdctl/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries state shared by every subcommand.
type app struct {
	cfgPath     string
	address     string
	logLevel    string
	metricsFile string

	cfg      config.Config
	log      zerolog.Logger
	registry *prometheus.Registry
	metrics  *observability.Metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "clowdctl",
		Short: "Upload files and text to a clowd server",
		Long: `clowdctl talks to a clowd upload server over its framed TCP protocol.

It logs in once, caches the session key, and reuses one connection for
closely spaced uploads.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.flushMetrics()
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgPath, "config", "", "config file (default: "+config.DefaultPath()+")")
	flags.StringVar(&a.address, "address", "", "server host:port, overrides the config file")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: trace|debug|info|warn|error|off")
	flags.StringVar(&a.metricsFile, "metrics-file", "", "write prometheus metrics to this file on exit")

	root.AddCommand(
		newUploadCmd(a),
		newLoginCmd(a),
		newListCmd(a),
		newConfigCmd(a),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	path, explicit := a.cfgPath, a.cfgPath != ""
	if !explicit {
		path = config.DefaultPath()
	}
	// config subcommands manage the file themselves.
	if cmd.Parent() != nil && cmd.Parent().Name() == "config" {
		a.cfgPath = path
		a.cfg = config.Default()
		a.initLogging(cmd)
		return nil
	}

	cfg, err := config.LoadOptional(path, explicit)
	if err != nil {
		return err
	}
	if a.address != "" {
		cfg.Address = strings.TrimSpace(a.address)
	}
	a.cfg = cfg
	a.initLogging(cmd)

	a.registry = prometheus.NewRegistry()
	a.metrics = observability.NewMetrics(a.registry)
	return nil
}

// initLogging applies level precedence: config file, then
// CLOWDCTL_LOG_LEVEL, then --log-level.
func (a *app) initLogging(cmd *cobra.Command) {
	lc := logging.Resolve(logging.ProfileRuntime)
	lc.Out = cmd.ErrOrStderr()
	if _, fromEnv := logging.ParseLevel(os.Getenv(logging.EnvLogLevel)); !fromEnv {
		if lvl, ok := logging.ParseLevel(a.cfg.LogLevel); ok {
			lc.Level = lvl
		}
	}
	if lvl, ok := logging.ParseLevel(a.logLevel); ok {
		lc.Level = lvl
	}
	a.log = logging.New(lc)
	logging.Install(a.log)
}

func (a *app) flushMetrics() error {
	if a.metricsFile == "" || a.registry == nil {
		return nil
	}
	return prometheus.WriteToTextfile(a.metricsFile, a.registry)
}

// client builds an upload client. The configured login, if any, is offered
// as the credential source so the first upload can authenticate.
func (a *app) client(sink upload.Sink) (*upload.Client, error) {
	opts := []upload.Option{
		upload.WithSink(sink),
		upload.WithMetrics(a.metrics),
		upload.WithLogger(logging.Component("upload")),
	}
	creds, ok, err := a.cfg.Login.Credentials()
	if err != nil {
		return nil, fmt.Errorf("login config: %w", err)
	}
	if ok {
		opts = append(opts, upload.WithCredentialSource(auth.StaticSource{Creds: creds}))
	}
	return upload.New(upload.Config{Address: a.cfg.Address, Session: a.cfg.Session}, opts...)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
