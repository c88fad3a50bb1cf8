// Package config defines the runtime configuration for sshmcp and the
// rules that keep it consistent.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	sserr "sshmcp/internal/errors"
)

// Transport names accepted by [Config.Transport].
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds every tuneable for one server process.  Fields tagged
// envconfig are filled by [Load]; the rest are set by CLI flags only.
type Config struct {
	// ── SSH ──────────────────────────────────────────────────────────
	PrivateKey           string        `envconfig:"SSH_PRIVATE_KEY"`
	PrivateKeyPassphrase string        `envconfig:"SSH_PRIVATE_KEY_PASSPHRASE"`
	UseSSHAgent          bool          `envconfig:"SSH_USE_AGENT" default:"false"`
	StrictHostKey        bool          `envconfig:"SSH_STRICT_HOST_KEY" default:"false"`
	KnownHostsPath       string        `envconfig:"SSH_KNOWN_HOSTS"`
	ConnectTimeout       time.Duration `envconfig:"SSH_CONNECT_TIMEOUT" default:"30s"`
	KeepAlive            time.Duration `envconfig:"SSH_KEEPALIVE_INTERVAL" default:"30s"`

	// ── Sessions ─────────────────────────────────────────────────────
	CommandTimeout  time.Duration `envconfig:"SSH_COMMAND_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `envconfig:"SSH_IDLE_TIMEOUT" default:"30m"`
	BreakerFailures int           `envconfig:"SSH_BREAKER_FAILURES" default:"5"`
	BreakerReset    time.Duration `envconfig:"SSH_BREAKER_RESET" default:"30s"`

	// ── Server ───────────────────────────────────────────────────────
	Transport string `envconfig:"MCP_TRANSPORT" default:"http"`
	Port      int    `envconfig:"PORT" default:"3000"`

	// ── Output ───────────────────────────────────────────────────────
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"auto"`
	Verbose   int    `ignored:"true"`
	DryRun    bool   `ignored:"true"`
}

// Default returns a Config populated with the built-in defaults and no
// environment applied.
func Default() *Config {
	return &Config{
		KnownHostsPath:  DefaultKnownHostsPath(),
		ConnectTimeout:  DefaultConnectTimeout,
		KeepAlive:       DefaultKeepAlive,
		CommandTimeout:  DefaultCommandTimeout,
		IdleTimeout:     DefaultIdleTimeout,
		BreakerFailures: DefaultBreakerFailures,
		BreakerReset:    DefaultBreakerReset,
		Transport:       TransportHTTP,
		Port:            DefaultHTTPPort,
		LogLevel:        "info",
		LogFormat:       "auto",
	}
}

// ListenAddr is the HTTP bind address.
func (c *Config) ListenAddr() string {
	return ":" + itoa(c.Port)
}

// ── Path helpers ─────────────────────────────────────────────────────

// DefaultKnownHostsPath returns ~/.ssh/known_hosts, or "" when the home
// directory cannot be resolved.
func DefaultKnownHostsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", "known_hosts")
}

// ExpandHome replaces a leading "~/" with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.  The
// returned error is always a *errors.ConfigError.
func (c *Config) Validate() error {
	switch c.Transport {
	case TransportHTTP:
		if c.Port < 1 || c.Port > 65535 {
			return &sserr.ConfigError{
				Field: "port", Value: c.Port,
				Message: "out of range 1-65535",
				Hint:    "set PORT or --port to a valid TCP port",
			}
		}
	case TransportStdio:
	default:
		return &sserr.ConfigError{
			Field: "transport", Value: c.Transport,
			Message: "unknown transport",
			Hint:    "use http or stdio",
		}
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"connect-timeout", c.ConnectTimeout},
		{"command-timeout", c.CommandTimeout},
		{"idle-timeout", c.IdleTimeout},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return &sserr.ConfigError{Field: d.field, Value: d.value, Message: "must be positive"}
		}
	}

	if c.KeepAlive < 0 {
		return &sserr.ConfigError{
			Field: "keepalive", Value: c.KeepAlive,
			Message: "must not be negative",
			Hint:    "use 0 to disable keepalive probes",
		}
	}

	if c.BreakerFailures < 0 {
		return &sserr.ConfigError{
			Field: "breaker-failures", Value: c.BreakerFailures,
			Message: "must not be negative",
			Hint:    "use 0 to disable the per-host circuit breaker",
		}
	}
	if c.BreakerFailures > 0 && c.BreakerReset <= 0 {
		return &sserr.ConfigError{Field: "breaker-reset", Value: c.BreakerReset, Message: "must be positive"}
	}

	if c.StrictHostKey && c.KnownHostsPath == "" {
		return &sserr.ConfigError{
			Field:   "known-hosts",
			Message: "required with --strict-hostkey",
			Hint:    "set SSH_KNOWN_HOSTS or --known-hosts",
		}
	}

	switch c.LogFormat {
	case "auto", "json", "console":
	default:
		return &sserr.ConfigError{
			Field: "log-format", Value: c.LogFormat,
			Message: "unknown log format",
			Hint:    "use auto, json or console",
		}
	}

	return nil
}
