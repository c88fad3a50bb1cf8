package util

import (
	"errors"
	"io"
	"net"
	"strings"
)

// IsClosed reports whether err means the peer or the local side closed the
// stream, as opposed to a genuine transport failure.
func IsClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return true
	}
	// x/crypto/ssh surfaces some channel teardown as plain strings.
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "channel closed")
}
