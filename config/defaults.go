package config

import (
	"strconv"
	"time"
)

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, struct tags, and environment variable loading.

const (
	// DefaultHTTPPort is the MCP HTTP listen port.
	DefaultHTTPPort = 3000

	// DefaultConnectTimeout bounds TCP connect plus SSH handshake.
	DefaultConnectTimeout = 30 * time.Second

	// DefaultKeepAlive is the interval between keepalive probes on idle
	// connections.
	DefaultKeepAlive = 30 * time.Second

	// DefaultCommandTimeout applies when a caller passes no timeout.
	DefaultCommandTimeout = 60 * time.Second

	// DefaultIdleTimeout is how long a session may sit unused before the
	// reaper evicts it.
	DefaultIdleTimeout = 30 * time.Minute

	// DefaultBreakerFailures is the consecutive connection failures to a
	// host before opens to it fail fast.
	DefaultBreakerFailures = 5

	// DefaultBreakerReset is how long a tripped host stays rejected.
	DefaultBreakerReset = 30 * time.Second

	// DefaultGracePeriod is how long shutdown waits for in-flight HTTP
	// requests.
	DefaultGracePeriod = 5 * time.Second
)

func itoa(n int) string { return strconv.Itoa(n) }
