// Package session manages persistent interactive shells: a registry of
// live sessions, marker-framed command execution over each shell's
// byte stream, and eviction of sessions that sit idle.
package session

import (
	"bytes"
	"io"
	"sync"
	"time"

	"sshmcp/internal/metrics"
	"sshmcp/internal/transport"
	"sshmcp/util"
)

// Info describes a session for listings and logs.
type Info struct {
	ID         string    `json:"id"`
	Host       string    `json:"host"`
	Port       int       `json:"port"`
	User       string    `json:"user"`
	Busy       bool      `json:"busy"`
	CreatedAt  time.Time `json:"createdAt"`
	LastActive time.Time `json:"lastActive"`
}

// Session is one registered shell.  It exclusively owns its channel;
// closing the session ends the shell and its connection together.
type Session struct {
	info    Info
	channel transport.Channel
	logger  *util.Logger
	metrics *metrics.Collector
	now     func() time.Time

	mu         sync.Mutex
	buf        bytes.Buffer // bytes received since the last reset
	busy       bool
	lastActive time.Time
	streamErr  error // non-nil when the stream failed rather than closed

	notify    chan struct{} // data arrived; capacity 1
	done      chan struct{} // stream ended
	closeOnce sync.Once
	closeErr  error
}

func newSession(ch transport.Channel, info Info, logger *util.Logger) *Session {
	return &Session{
		info:    info,
		channel: ch,
		logger:  logger,
		now:     time.Now,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.info.ID }

// Info returns a snapshot of the session's descriptive state.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.Busy = s.busy
	info.LastActive = s.lastActive
	return info
}

// LastActive returns the last activity time.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Busy reports whether a command is in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Done is closed once the shell's output stream has ended.
func (s *Session) Done() <-chan struct{} { return s.done }

// pump copies shell output into the buffer until the stream ends, then
// calls onEnd.  Exactly one pump runs per session.
func (s *Session) pump(onEnd func(*Session)) {
	chunk := util.GetChunk()
	defer util.PutChunk(chunk)

	for {
		n, err := s.channel.Read(*chunk)
		if n > 0 {
			s.mu.Lock()
			s.buf.Write((*chunk)[:n])
			s.mu.Unlock()
			s.metrics.BytesReceived(int64(n))
			s.signal()
		}
		if err != nil {
			s.mu.Lock()
			if !util.IsClosed(err) {
				s.streamErr = err
			}
			s.mu.Unlock()
			if s.streamErr != nil {
				s.logger.Warn("shell stream error: %v", err)
			} else {
				s.logger.Verbose("shell stream closed")
			}
			close(s.done)
			if onEnd != nil {
				onEnd(s)
			}
			return
		}
	}
}

func (s *Session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// write sends raw bytes to the shell.
func (s *Session) write(text string) error {
	n, err := io.WriteString(s.channel, text)
	s.metrics.BytesSent(int64(n))
	return err
}

// Close sends a best-effort "exit", then ends the shell and connection.
// Safe to call more than once; only the first call does anything.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		select {
		case <-s.done:
		default:
			if err := s.write("exit\n"); err != nil {
				s.logger.Warn("failed to send exit: %v", err)
			}
		}
		s.closeErr = s.release()
	})
	return s.closeErr
}

// teardown ends the channel without the exit courtesy.  Used when the
// stream has already ended.
func (s *Session) teardown() error {
	s.closeOnce.Do(func() { s.closeErr = s.release() })
	return s.closeErr
}

// release ends the channel and stamps the close as activity.
func (s *Session) release() error {
	err := s.channel.Close()
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
	return err
}
