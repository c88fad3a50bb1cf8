package session

import (
	"context"
	"fmt"
	"time"

	sserr "sshmcp/internal/errors"
)

// PollInterval is how often an execution rescans the buffer when no new
// data has arrived.
const PollInterval = 50 * time.Millisecond

// DefaultTimeout applies when Execute is given a non-positive timeout.
const DefaultTimeout = 60 * time.Second

// Result is what a finished command produced.  Stdout holds stdout and
// stderr interleaved, as the PTY delivered them.
type Result struct {
	Stdout   string `json:"stdout" jsonschema:"description=Output before the completion marker with stderr merged"`
	ExitCode int    `json:"exitCode" jsonschema:"description=Exit status of the command or -1 if it could not be read"`
}

// Execute runs command in the session's shell and waits up to timeout
// for it to finish.
//
// Only one execution may be in flight per session; a second call fails
// at once with ErrSessionBusy.  On timeout the remote command is left
// running and the session stays usable.  Cancelling ctx abandons the
// wait the same way.
func (s *Session) Execute(ctx context.Context, command string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	select {
	case <-s.done:
		return Result{}, sserr.WrapSession("exec", s.ID(), sserr.ErrSessionClosed)
	default:
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return Result{}, sserr.WrapSession("exec", s.ID(), sserr.ErrSessionBusy)
	}
	start := s.now()
	s.busy = true
	s.lastActive = start
	s.buf.Reset()
	s.mu.Unlock()

	// Drop a wakeup left over from output that arrived before the reset.
	select {
	case <-s.notify:
	default:
	}

	marker := NewMarker(start, s.ID())
	timedOut := false
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.lastActive = s.now()
		s.mu.Unlock()
		s.metrics.CommandFinished(time.Since(start), timedOut)
	}()

	s.logger.Debug("exec: %q (timeout %v)", command, timeout)
	if err := s.write(WrapCommand(command, marker)); err != nil {
		return Result{}, sserr.WrapSession("exec", s.ID(), fmt.Errorf("%w: write: %v", sserr.ErrChannel, err))
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var st scanState
	for {
		select {
		case <-s.notify:
			if c, ok := s.scan(marker, false, &st); ok {
				return Result(c), nil
			}

		case <-ticker.C:
			if c, ok := s.scan(marker, true, &st); ok {
				return Result(c), nil
			}

		case <-s.done:
			// Output may have landed between the last scan and the end
			// of the stream; nothing more will arrive, so take it as is.
			s.mu.Lock()
			c, found, _ := ParseCompletion(s.buf.Bytes(), marker)
			streamErr := s.streamErr
			s.mu.Unlock()
			if found {
				return Result(c), nil
			}
			if streamErr != nil {
				return Result{}, sserr.WrapSession("exec", s.ID(), fmt.Errorf("%w: %v", sserr.ErrChannel, streamErr))
			}
			return Result{}, sserr.WrapSession("exec", s.ID(), sserr.ErrSessionClosed)

		case <-deadline.C:
			timedOut = true
			s.logger.Warn("exec timed out after %v; remote command may still be running", timeout)
			return Result{}, sserr.WrapSession("exec", s.ID(),
				fmt.Errorf("%w after %v", sserr.ErrCommandTimeout, timeout))

		case <-ctx.Done():
			return Result{}, sserr.WrapSession("exec", s.ID(), ctx.Err())
		}
	}
}

// unparsedSettleTicks is how many quiet poll ticks an unterminated status
// that does not parse as a number must sit before it is reported as -1.
// It is longer than one tick so "MARKER:" followed shortly by the digits
// in a later chunk is still read whole.
const unparsedSettleTicks = 5

// scanState tracks buffer growth across the scans of one execution.
type scanState struct {
	lastLen int
	quiet   int // consecutive ticks without growth
	started bool
}

// scan checks the buffer for marker.  A terminated status line completes
// immediately.  An unterminated one completes once the buffer has been
// quiet for a tick if the status parses, or for unparsedSettleTicks ticks
// if it does not; the latter reports exit code -1.
func (s *Session) scan(marker Marker, tick bool, st *scanState) (Completion, bool) {
	s.mu.Lock()
	buf := s.buf.Bytes()
	c, found, terminated := ParseCompletion(buf, marker)
	n := len(buf)
	s.mu.Unlock()

	switch {
	case !st.started || n != st.lastLen:
		st.started, st.lastLen, st.quiet = true, n, 0
	case tick:
		st.quiet++
	}

	if !found {
		return Completion{}, false
	}
	if terminated {
		return c, true
	}
	if c.ExitCode >= 0 {
		return c, st.quiet >= 1
	}
	return c, st.quiet >= unparsedSettleTicks
}
