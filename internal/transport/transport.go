// Package transport provides the shell channel abstraction the session
// layer is written against, and its SSH implementation.  A Channel is
// one interactive remote shell: bytes written to it are typed into the
// shell, bytes read from it are whatever the shell prints.
package transport

import (
	"context"
	"io"

	"sshmcp/util"
)

// Channel is a duplex byte stream bound to one remote interactive shell.
//
// Read returns io.EOF once the remote side has closed the shell.  Close
// ends the shell and the connection underneath it together and is safe
// to call more than once.
type Channel interface {
	io.Reader
	io.Writer
	io.Closer
}

// DefaultPort is used when a Target leaves Port zero.
const DefaultPort = 22

// Target names a remote endpoint and the credentials supplied by the
// caller for one open.
type Target struct {
	Host       string
	Port       int
	User       string
	Password   string // takes precedence over any key when non-empty
	PrivateKey string // PEM key material supplied by the caller
	Passphrase string // for PrivateKey
}

// Addr returns host:port.
func (t Target) Addr() string {
	return util.FormatAddr(t.Host, t.Port)
}

// Dialer establishes an authenticated connection and opens an
// interactive shell over it.  The returned Channel is ready to accept
// commands.  On error nothing is left open.
type Dialer interface {
	Dial(ctx context.Context, target Target) (Channel, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, target Target) (Channel, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, target Target) (Channel, error) {
	return f(ctx, target)
}
