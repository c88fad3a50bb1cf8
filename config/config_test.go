package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "sshmcp/internal/errors"
)

// ── Config.Validate ──────────────────────────────────────────────────

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantField string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"stdio ignores port", func(c *Config) { c.Transport = TransportStdio; c.Port = 0 }, ""},
		{"http bad port", func(c *Config) { c.Port = 70000 }, "port"},
		{"http zero port", func(c *Config) { c.Port = 0 }, "port"},
		{"unknown transport", func(c *Config) { c.Transport = "sse" }, "transport"},
		{"zero connect timeout", func(c *Config) { c.ConnectTimeout = 0 }, "connect-timeout"},
		{"negative command timeout", func(c *Config) { c.CommandTimeout = -time.Second }, "command-timeout"},
		{"zero idle timeout", func(c *Config) { c.IdleTimeout = 0 }, "idle-timeout"},
		{"keepalive disabled", func(c *Config) { c.KeepAlive = 0 }, ""},
		{"negative keepalive", func(c *Config) { c.KeepAlive = -time.Second }, "keepalive"},
		{"negative breaker", func(c *Config) { c.BreakerFailures = -1 }, "breaker-failures"},
		{"breaker disabled ignores reset", func(c *Config) { c.BreakerFailures = 0; c.BreakerReset = 0 }, ""},
		{"breaker without reset", func(c *Config) { c.BreakerReset = 0 }, "breaker-reset"},
		{"strict without known hosts", func(c *Config) { c.StrictHostKey = true; c.KnownHostsPath = "" }, "known-hosts"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "log-format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.KnownHostsPath = "/tmp/known_hosts"
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var ce *sserr.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.wantField, ce.Field)
		})
	}
}

// ── Helpers ──────────────────────────────────────────────────────────

func TestListenAddr(t *testing.T) {
	cfg := Default()
	cfg.Port = 8081
	assert.Equal(t, ":8081", cfg.ListenAddr())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	assert.Equal(t, filepath.Join(home, ".ssh", "known_hosts"), ExpandHome("~/.ssh/known_hosts"))
	assert.Equal(t, "/etc/ssh/known_hosts", ExpandHome("/etc/ssh/known_hosts"))
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, DefaultConnectTimeout, cfg.ConnectTimeout)
	assert.Equal(t, DefaultIdleTimeout, cfg.IdleTimeout)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}
