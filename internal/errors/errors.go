// Package errors provides domain-specific error types for sshmcp.
//
// These types carry structured context (operation, host, session id) that
// helps callers decide how to handle failures and lets the tool layer
// report a stable error kind to agents instead of a bare string.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is busy")
	ErrCommandTimeout  = errors.New("command timed out")
	ErrSessionClosed   = errors.New("session closed")
	ErrChannel         = errors.New("channel error")
	ErrAuthFailed      = errors.New("authentication failed")
	ErrNoAuthMethod    = errors.New("no authentication method available")
	ErrHostKeyMismatch = errors.New("host key mismatch")
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ── Error kinds ──────────────────────────────────────────────────────

// Kind is the stable, machine-readable class of a failure.
type Kind string

const (
	KindConnection    Kind = "connection"
	KindAuth          Kind = "auth"
	KindNotFound      Kind = "not_found"
	KindBusy          Kind = "busy"
	KindTimeout       Kind = "timeout"
	KindChannel       Kind = "channel"
	KindSessionClosed Kind = "session_closed"
	KindConfig        Kind = "config"
	KindInvalidArgs   Kind = "invalid_argument"
	KindCanceled      Kind = "canceled"
	KindInternal      Kind = "internal"
)

// ── Structured error types ───────────────────────────────────────────

// SSHError represents a failure while opening a session, with host context.
type SSHError struct {
	Op   string // "dial", "handshake", "auth", "shell", "breaker"
	Host string
	Port int
	Err  error
}

func (e *SSHError) Error() string {
	return fmt.Sprintf("ssh %s %s:%d: %v", e.Op, e.Host, e.Port, e.Err)
}

func (e *SSHError) Unwrap() error { return e.Err }

// SessionError represents a failure of an operation on a live session.
type SessionError struct {
	Op        string // "exec", "write", "close"
	SessionID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.SessionID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.SessionID, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // flag name without dashes
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// WrapSSH creates an SSHError.
func WrapSSH(op, host string, port int, err error) *SSHError {
	return &SSHError{Op: op, Host: host, Port: port, Err: err}
}

// WrapSession creates a SessionError.
func WrapSession(op, id string, err error) *SessionError {
	return &SessionError{Op: op, SessionID: id, Err: err}
}

// NotFound returns the error for an unknown session id.
func NotFound(id string) *SessionError {
	return WrapSession("lookup", id, ErrSessionNotFound)
}

// InvalidArgument reports a bad tool argument.
func InvalidArgument(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// ── Classification helpers ───────────────────────────────────────────

// KindOf classifies err into one of the stable kinds.  A nil error has
// no kind and returns "".
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return KindNotFound
	case errors.Is(err, ErrSessionBusy):
		return KindBusy
	case errors.Is(err, ErrCommandTimeout):
		return KindTimeout
	case errors.Is(err, ErrSessionClosed):
		return KindSessionClosed
	case errors.Is(err, ErrChannel):
		return KindChannel
	case errors.Is(err, ErrAuthFailed), errors.Is(err, ErrNoAuthMethod):
		return KindAuth
	case errors.Is(err, ErrInvalidArgument):
		return KindInvalidArgs
	case errors.Is(err, context.Canceled):
		return KindCanceled
	}

	var se *SSHError
	if errors.As(err, &se) {
		if se.Op == "auth" {
			return KindAuth
		}
		return KindConnection
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return KindConfig
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindInternal
}

// IsRetryable reports whether err is worth retrying later by the caller.
// Busy sessions and open breakers clear on their own; temporary network
// failures may too.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionBusy) || errors.Is(err, ErrCircuitOpen) {
		return true
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects standard library error types.
func classifyRetryable(err error) bool {
	if err == nil {
		return false
	}
	// net.OpError with Temporary() hint
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Temporary() //nolint:staticcheck // Temporary is deprecated but still useful
	}
	// DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.Temporary() //nolint:staticcheck
	}
	return false
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use sshmcp/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
