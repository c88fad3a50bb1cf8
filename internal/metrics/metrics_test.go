package metrics

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Sessions(t *testing.T) {
	c := New()

	c.SessionOpened()
	c.SessionOpened()
	assert.EqualValues(t, 2, c.ActiveSessions())
	assert.EqualValues(t, 2, c.TotalSessions())

	c.SessionClosed()
	assert.EqualValues(t, 1, c.ActiveSessions())
	assert.EqualValues(t, 2, c.TotalSessions(), "total survives a close")

	c.SessionReaped()
	assert.EqualValues(t, 1, c.ReapedSessions())
}

func TestCollector_Commands(t *testing.T) {
	c := New()

	c.CommandFinished(10*time.Millisecond, false)
	c.CommandFinished(2*time.Second, true)

	assert.EqualValues(t, 2, c.Commands())
	assert.EqualValues(t, 1, c.CommandTimeouts())
}

func TestCollector_Bytes(t *testing.T) {
	c := New()

	c.BytesReceived(1024)
	c.BytesSent(512)
	c.BytesReceived(100)

	assert.EqualValues(t, 1124, c.TotalBytesIn())
	assert.EqualValues(t, 512, c.TotalBytesOut())
}

func TestCollector_Errors(t *testing.T) {
	c := New()

	c.RecordError("first error")
	c.RecordError("second error")

	assert.EqualValues(t, 2, c.ErrorCount())
}

func TestCollector_Snapshot(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.OpenFailed()
	c.BytesReceived(100)
	c.BytesSent(50)
	c.RecordError("test")
	c.RecordHealthCheck()

	snap := c.Snapshot()
	assert.EqualValues(t, 1, snap.SessionsActive)
	assert.EqualValues(t, 1, snap.OpenFailures)
	assert.EqualValues(t, 100, snap.BytesIn)
	assert.EqualValues(t, 1, snap.ErrorsTotal)
	assert.Equal(t, "test", snap.LastErrorMessage)
	assert.NotEmpty(t, snap.LastHealthCheck)
}

func TestCollector_JSON(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.BytesSent(42)

	var snap Snapshot
	require.NoError(t, json.Unmarshal([]byte(c.JSON()), &snap))
	assert.EqualValues(t, 1, snap.SessionsActive)
	assert.EqualValues(t, 42, snap.BytesOut)
}

func TestCollector_PrometheusHandler(t *testing.T) {
	c := New()
	c.SessionOpened()
	c.CommandFinished(time.Millisecond, false)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	out := string(body)
	for _, want := range []string{
		"sshmcp_sessions_active 1",
		"sshmcp_commands_total 1",
		"sshmcp_command_duration_seconds_count 1",
	} {
		assert.Contains(t, out, want)
	}
}

func TestNilCollector_NoOps(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.SessionOpened()
		c.SessionClosed()
		c.OpenFailed()
		c.SessionReaped()
		c.CommandFinished(time.Second, true)
		c.BytesReceived(100)
		c.BytesSent(100)
		c.RecordError("test")
		c.RecordHealthCheck()
	})

	assert.Zero(t, c.ActiveSessions())
	assert.Zero(t, c.TotalBytesIn())
	assert.Zero(t, c.ErrorCount())
	assert.Zero(t, c.Snapshot().SessionsActive)
	assert.NotEmpty(t, c.JSON())
}
