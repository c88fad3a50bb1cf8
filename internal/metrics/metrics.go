// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of the session manager.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sshmcp"

// Collector tracks runtime metrics for the session manager.
// A nil Collector is safe to use; every method is a no-op.
type Collector struct {
	sessionsActive  atomic.Int64
	sessionsOpened  atomic.Int64
	openFailures    atomic.Int64
	sessionsReaped  atomic.Int64
	commandsTotal   atomic.Int64
	commandTimeouts atomic.Int64
	bytesIn         atomic.Int64
	bytesOut        atomic.Int64
	errorsTotal     atomic.Int64

	commandDuration prometheus.Histogram

	mu              sync.RWMutex
	startTime       time.Time
	lastHealthCheck time.Time
	lastError       time.Time
	lastErrorMsg    string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{
		startTime: time.Now(),
		commandDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Duration of command executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ── Session metrics ──────────────────────────────────────────────────

// SessionOpened increments both the active and total counters.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(1)
	c.sessionsOpened.Add(1)
}

// SessionClosed decrements the active session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.sessionsActive.Add(-1)
}

// OpenFailed records a failed open attempt.
func (c *Collector) OpenFailed() {
	if c == nil {
		return
	}
	c.openFailures.Add(1)
}

// SessionReaped records an idle eviction.
func (c *Collector) SessionReaped() {
	if c == nil {
		return
	}
	c.sessionsReaped.Add(1)
}

// ActiveSessions returns the current number of open sessions.
func (c *Collector) ActiveSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsActive.Load()
}

// TotalSessions returns the lifetime session count.
func (c *Collector) TotalSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsOpened.Load()
}

// ReapedSessions returns the number of idle evictions.
func (c *Collector) ReapedSessions() int64 {
	if c == nil {
		return 0
	}
	return c.sessionsReaped.Load()
}

// ── Command metrics ──────────────────────────────────────────────────

// CommandFinished records one execution and how long it took.
func (c *Collector) CommandFinished(d time.Duration, timedOut bool) {
	if c == nil {
		return
	}
	c.commandsTotal.Add(1)
	if timedOut {
		c.commandTimeouts.Add(1)
	}
	c.commandDuration.Observe(d.Seconds())
}

// Commands returns the total number of executions.
func (c *Collector) Commands() int64 {
	if c == nil {
		return 0
	}
	return c.commandsTotal.Load()
}

// CommandTimeouts returns the number of executions that hit their deadline.
func (c *Collector) CommandTimeouts() int64 {
	if c == nil {
		return 0
	}
	return c.commandTimeouts.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from a shell channel.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to a shell channel.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Health ───────────────────────────────────────────────────────────

// RecordHealthCheck updates the last health check timestamp.
func (c *Collector) RecordHealthCheck() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.lastHealthCheck = time.Now()
	c.mu.Unlock()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime           string `json:"uptime"`
	SessionsActive   int64  `json:"sessions_active"`
	SessionsTotal    int64  `json:"sessions_total"`
	OpenFailures     int64  `json:"open_failures"`
	SessionsReaped   int64  `json:"sessions_reaped"`
	CommandsTotal    int64  `json:"commands_total"`
	CommandTimeouts  int64  `json:"command_timeouts"`
	BytesIn          int64  `json:"bytes_in"`
	BytesOut         int64  `json:"bytes_out"`
	ErrorsTotal      int64  `json:"errors_total"`
	LastHealthCheck  string `json:"last_health_check,omitempty"`
	LastError        string `json:"last_error,omitempty"`
	LastErrorMessage string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:          time.Since(c.startTime).Truncate(time.Second).String(),
		SessionsActive:  c.sessionsActive.Load(),
		SessionsTotal:   c.sessionsOpened.Load(),
		OpenFailures:    c.openFailures.Load(),
		SessionsReaped:  c.sessionsReaped.Load(),
		CommandsTotal:   c.commandsTotal.Load(),
		CommandTimeouts: c.commandTimeouts.Load(),
		BytesIn:         c.bytesIn.Load(),
		BytesOut:        c.bytesOut.Load(),
		ErrorsTotal:     c.errorsTotal.Load(),
	}
	if !c.lastHealthCheck.IsZero() {
		s.LastHealthCheck = c.lastHealthCheck.Format(time.RFC3339)
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// ── Prometheus ───────────────────────────────────────────────────────

var (
	descSessionsActive  = newDesc("sessions_active", "Number of live shell sessions")
	descSessionsTotal   = newDesc("sessions_opened_total", "Total number of sessions opened")
	descOpenFailures    = newDesc("open_failures_total", "Total number of failed open attempts")
	descSessionsReaped  = newDesc("sessions_reaped_total", "Total number of idle sessions evicted")
	descCommandsTotal   = newDesc("commands_total", "Total number of command executions")
	descCommandTimeouts = newDesc("command_timeouts_total", "Total number of command executions that timed out")
	descBytesIn         = newDesc("bytes_received_total", "Bytes read from shell channels")
	descBytesOut        = newDesc("bytes_sent_total", "Bytes written to shell channels")
	descErrors          = newDesc("errors_total", "Total number of recorded errors")
)

func newDesc(name, help string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, nil)
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descSessionsActive
	ch <- descSessionsTotal
	ch <- descOpenFailures
	ch <- descSessionsReaped
	ch <- descCommandsTotal
	ch <- descCommandTimeouts
	ch <- descBytesIn
	ch <- descBytesOut
	ch <- descErrors
	if c != nil {
		c.commandDuration.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	gauge := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, float64(v))
	}
	counter := func(d *prometheus.Desc, v int64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(descSessionsActive, c.sessionsActive.Load())
	counter(descSessionsTotal, c.sessionsOpened.Load())
	counter(descOpenFailures, c.openFailures.Load())
	counter(descSessionsReaped, c.sessionsReaped.Load())
	counter(descCommandsTotal, c.commandsTotal.Load())
	counter(descCommandTimeouts, c.commandTimeouts.Load())
	counter(descBytesIn, c.bytesIn.Load())
	counter(descBytesOut, c.bytesOut.Load())
	counter(descErrors, c.errorsTotal.Load())
	c.commandDuration.Collect(ch)
}

// Handler returns an http.Handler serving the Prometheus exposition
// format for c on a private registry.
func (c *Collector) Handler() http.Handler {
	reg := prometheus.NewRegistry()
	if c != nil {
		reg.MustRegister(c)
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
