package session

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// MarkerPrefix starts every completion marker.
const MarkerPrefix = "__END__"

// Marker delimits one command's output from its exit-status line.  The
// full token is MarkerPrefix + suffix; the suffix embeds a nanosecond
// timestamp and the first eight characters of the session id.
type Marker struct {
	suffix string
}

// NewMarker builds the marker for one execution on sessionID.
func NewMarker(now time.Time, sessionID string) Marker {
	short := sessionID
	if len(short) > 8 {
		short = short[:8]
	}
	return Marker{suffix: fmt.Sprintf("%d_%s", now.UnixNano(), short)}
}

// String returns the full marker token.
func (m Marker) String() string { return MarkerPrefix + m.suffix }

// WrapCommand appends a printf that reports $? after command.
//
// The wire grammar of the reply is:
//
//	<stdout bytes> "\n" MARKER ":" <status> "\n"
//
// The marker is passed to printf as two separate arguments, so a shell
// that echoes its input never prints the complete token; only the
// executed printf does.
func WrapCommand(command string, m Marker) string {
	return fmt.Sprintf("%s\nprintf '\\n%%s%%s:%%s\\n' '%s' '%s' \"$?\"\n",
		command, MarkerPrefix, m.suffix)
}

// Completion is the parsed result of a finished command.
type Completion struct {
	Stdout   string
	ExitCode int
}

// ParseCompletion looks for m followed by ":" in buf.  found is false
// until the marker has arrived.  terminated reports whether the status
// line is complete (ends in a newline); an unterminated status may still
// be growing.  An unparseable status yields ExitCode -1.
func ParseCompletion(buf []byte, m Marker) (c Completion, found, terminated bool) {
	token := []byte(m.String() + ":")
	idx := bytes.Index(buf, token)
	if idx < 0 {
		return Completion{}, false, false
	}

	status := buf[idx+len(token):]
	if nl := bytes.IndexByte(status, '\n'); nl >= 0 {
		status = status[:nl]
		terminated = true
	}

	return Completion{
		Stdout:   string(buf[:idx]),
		ExitCode: parseExitCode(string(status)),
	}, true, terminated
}

func parseExitCode(s string) int {
	code, err := strconv.Atoi(strings.TrimSpace(strings.TrimRight(s, "\r")))
	if err != nil {
		return -1
	}
	return code
}
