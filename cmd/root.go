// Package cmd wires up the CLI flags and starts the MCP server.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"sshmcp/config"
	sserr "sshmcp/internal/errors"
	"sshmcp/internal/mcpserver"
	"sshmcp/internal/metrics"
	"sshmcp/internal/retry"
	"sshmcp/internal/session"
	"sshmcp/internal/transport"
	"sshmcp/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X sshmcp/cmd.version=2.0.0"
var version = "0.1.0" //nolint:gochecknoglobals

// Standard streams, replaced in tests.
var (
	stdin  io.Reader = os.Stdin  //nolint:gochecknoglobals
	stdout io.Writer = os.Stdout //nolint:gochecknoglobals
	stderr io.Writer = os.Stderr //nolint:gochecknoglobals
)

// flagValues holds what the command line said, before it is laid over
// the environment-derived config.
type flagValues struct {
	transport      string
	port           int
	idleTimeout    time.Duration
	commandTimeout time.Duration
	strictHostKey  bool
	knownHosts     string
	useAgent       bool
	envFile        string
	verbose        int
	dryRun         bool
}

// Execute parses args, loads configuration and serves until ctx is done.
func Execute(ctx context.Context, args []string) error {
	var fv flagValues
	fs := flag.NewFlagSet("sshmcp", flag.ContinueOnError)
	fs.SetOutput(stderr)

	// ── server ───────────────────────────────────────────────────
	fs.StringVarP(&fv.transport, "transport", "t", "", "MCP transport: http or stdio (env MCP_TRANSPORT)")
	fs.IntVarP(&fv.port, "port", "p", 0, "HTTP listen port (env PORT)")

	// ── sessions ─────────────────────────────────────────────────
	fs.DurationVar(&fv.idleTimeout, "idle-timeout", 0, "Close sessions idle for this long (env SSH_IDLE_TIMEOUT)")
	fs.DurationVar(&fv.commandTimeout, "command-timeout", 0, "Default ssh_exec timeout (env SSH_COMMAND_TIMEOUT)")

	// ── SSH ──────────────────────────────────────────────────────
	fs.BoolVar(&fv.strictHostKey, "strict-hostkey", false, "Verify SSH host keys (env SSH_STRICT_HOST_KEY)")
	fs.StringVar(&fv.knownHosts, "known-hosts", "", "Custom known_hosts path (env SSH_KNOWN_HOSTS)")
	fs.BoolVar(&fv.useAgent, "ssh-agent", false, "Use SSH agent (env SSH_USE_AGENT)")

	// ── output ───────────────────────────────────────────────────
	fs.StringVar(&fv.envFile, "env-file", "", "Load environment from this file instead of ./.env")
	fs.CountVarP(&fv.verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVar(&fv.dryRun, "dry-run", false, "Validate configuration and exit")

	var showVersion, showHelp bool
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}
	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Fprintf(stdout, "sshmcp %s\n", version)
		return nil
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument %q (use --help for usage)", fs.Arg(0))
	}

	// ── configure ────────────────────────────────────────────────
	cfg, err := config.Load(fv.envFile)
	if err != nil {
		return err
	}
	applyFlags(fs, cfg, fv)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := util.NewLoggerWithOptions(util.LoggerOptions{
		Verbosity:  verbosity(cfg),
		Format:     cfg.LogFormat,
		Output:     stderr,
		Timestamps: true,
	})

	if cfg.DryRun {
		logger.Info("configuration ok: transport=%s port=%d idle=%v command=%v strict-hostkey=%v",
			cfg.Transport, cfg.Port, cfg.IdleTimeout, cfg.CommandTimeout, cfg.StrictHostKey)
		return nil
	}

	return run(ctx, cfg, logger)
}

// run builds every component and serves until ctx is done.
func run(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	collector := metrics.New()

	dialer := transport.NewSSHDialer(transport.SSHConfig{
		Auth: transport.AuthOptions{
			FallbackKey:        cfg.PrivateKey,
			FallbackPassphrase: cfg.PrivateKeyPassphrase,
			UseAgent:           cfg.UseSSHAgent,
		},
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.ConnectTimeout,
		KeepAlive:     cfg.KeepAlive,
	}, logger, collector)

	manager := session.NewManager(dialer, session.NewRegistry(logger, collector), session.Options{
		CommandTimeout: cfg.CommandTimeout,
		Breakers:       newBreakers(cfg, logger),
		Logger:         logger,
		Metrics:        collector,
	})

	reaper := session.NewReaper(manager, cfg.IdleTimeout, logger)
	if err := reaper.Start(); err != nil {
		return err
	}
	defer func() {
		reaper.Stop()
		if n := manager.CloseAll(); n > 0 {
			logger.Info("closed %d session(s) at shutdown", n)
		}
	}()

	srv := mcpserver.New(manager, mcpserver.Options{
		Version:     version,
		Logger:      logger,
		Metrics:     collector,
		GracePeriod: config.DefaultGracePeriod,
		Stderr:      stderr,
	})

	if cfg.Transport == config.TransportStdio {
		return srv.ServeStdio(ctx, stdin, stdout)
	}
	return srv.ListenAndServe(ctx, cfg.ListenAddr())
}

// newBreakers returns per-host breakers that count only connection
// failures.  Bad credentials say nothing about the host's health.
func newBreakers(cfg *config.Config, logger *util.Logger) *retry.Breakers {
	if cfg.BreakerFailures == 0 {
		return nil
	}
	return retry.NewBreakers(&retry.CircuitBreakerConfig{
		MaxFailures:  cfg.BreakerFailures,
		ResetTimeout: cfg.BreakerReset,
		HalfOpenMax:  1,
		ShouldTrip: func(err error) bool {
			return sserr.KindOf(err) == sserr.KindConnection
		},
		OnStateChange: func(from, to retry.State) {
			logger.Warn("host circuit breaker %s -> %s", from, to)
		},
	})
}

// applyFlags lays explicitly set flags over cfg.
func applyFlags(fs *flag.FlagSet, cfg *config.Config, fv flagValues) {
	if fs.Changed("transport") {
		cfg.Transport = fv.transport
	}
	if fs.Changed("port") {
		cfg.Port = fv.port
	}
	if fs.Changed("idle-timeout") {
		cfg.IdleTimeout = fv.idleTimeout
	}
	if fs.Changed("command-timeout") {
		cfg.CommandTimeout = fv.commandTimeout
	}
	if fs.Changed("strict-hostkey") {
		cfg.StrictHostKey = fv.strictHostKey
	}
	if fs.Changed("known-hosts") {
		cfg.KnownHostsPath = config.ExpandHome(fv.knownHosts)
	}
	if fs.Changed("ssh-agent") {
		cfg.UseSSHAgent = fv.useAgent
	}
	cfg.Verbose = fv.verbose
	cfg.DryRun = fv.dryRun
}

// verbosity combines LOG_LEVEL with repeated -v flags.
func verbosity(cfg *config.Config) int {
	v := util.VerbosityFromLevel(cfg.LogLevel)
	return v + cfg.Verbose
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(stderr, `sshmcp v%s

An MCP tool server exposing persistent interactive SSH shells.

Usage:
  sshmcp [options]                        Serve MCP over HTTP on :3000
  sshmcp -t stdio [options]               Serve MCP over stdin/stdout

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(stderr, `
Tools:
  ssh_open    host, port?, username, password?, privateKey?  -> {sessionId}
  ssh_exec    sessionId, command, timeoutMs?                 -> {stdout, exitCode}
  ssh_close   sessionId                                      -> {closed}
  ssh_list                                                   -> {sessions}

Examples:
  sshmcp -p 8080 -v                       HTTP on 8080, verbose logs
  sshmcp -t stdio --idle-timeout 10m      stdio, reap after 10 minutes idle
  SSH_PRIVATE_KEY="$(cat ~/.ssh/id_ed25519)" sshmcp
`)
}
