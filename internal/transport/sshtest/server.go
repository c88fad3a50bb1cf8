// Package sshtest runs an in-process SSH server whose "shell" is a real
// /bin/sh fed over the session channel.  It is used by tests that need
// the full dial, PTY request and shell round trip without a remote host.
package sshtest

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"sync"
	"testing"

	gossh "golang.org/x/crypto/ssh"
)

// Credentials accepted by every Server.
const (
	User     = "tester"
	Password = "s3cret"
)

// Server is a running test SSH server.
type Server struct {
	Host string
	Port int

	// ClientKeyPEM is an OpenSSH private key the server accepts.
	ClientKeyPEM string
	// HostKey is the server's public host key.
	HostKey gossh.PublicKey

	listener net.Listener
	shell    func(ch gossh.Channel)

	mu    sync.Mutex
	conns []net.Conn
}

// Option customises a Server.
type Option func(*Server)

// WithShell replaces the /bin/sh shell with fn, which owns ch until it
// returns.
func WithShell(fn func(ch gossh.Channel)) Option {
	return func(s *Server) { s.shell = fn }
}

// Start launches a server on 127.0.0.1 and stops it when the test ends.
func Start(t testing.TB, opts ...Option) *Server {
	t.Helper()

	_, hostPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	hostSigner, err := gossh.NewSignerFromKey(hostPriv)
	if err != nil {
		t.Fatalf("create host signer: %v", err)
	}

	clientPub, clientPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate client key: %v", err)
	}
	clientSSHPub, err := gossh.NewPublicKey(clientPub)
	if err != nil {
		t.Fatalf("convert client pub key: %v", err)
	}
	block, err := gossh.MarshalPrivateKey(clientPriv, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}

	serverCfg := &gossh.ServerConfig{
		PasswordCallback: func(conn gossh.ConnMetadata, pass []byte) (*gossh.Permissions, error) {
			if conn.User() == User && string(pass) == Password {
				return &gossh.Permissions{}, nil
			}
			return nil, fmt.Errorf("password rejected for %q", conn.User())
		},
		PublicKeyCallback: func(conn gossh.ConnMetadata, key gossh.PublicKey) (*gossh.Permissions, error) {
			if conn.User() == User && bytes.Equal(key.Marshal(), clientSSHPub.Marshal()) {
				return &gossh.Permissions{}, nil
			}
			return nil, fmt.Errorf("unknown public key")
		},
	}
	serverCfg.AddHostKey(hostSigner)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().(*net.TCPAddr)

	s := &Server{
		Host:         "127.0.0.1",
		Port:         addr.Port,
		ClientKeyPEM: string(pem.EncodeToMemory(block)),
		HostKey:      hostSigner.PublicKey(),
		listener:     listener,
		shell:        runShell,
	}
	for _, o := range opts {
		o(s)
	}

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.conns = append(s.conns, conn)
			s.mu.Unlock()
			go s.handleConn(conn, serverCfg)
		}
	}()

	t.Cleanup(s.Close)
	return s
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// KnownHostsLine returns a known_hosts entry for this server.
func (s *Server) KnownHostsLine() string {
	return fmt.Sprintf("[%s]:%d %s", s.Host, s.Port, gossh.MarshalAuthorizedKey(s.HostKey))
}

// DropConnections closes every accepted TCP connection, simulating a
// network failure.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
}

// Close stops accepting and drops live connections.
func (s *Server) Close() {
	s.listener.Close()
	s.DropConnections()
}

func (s *Server) handleConn(netConn net.Conn, config *gossh.ServerConfig) {
	defer netConn.Close()
	srvConn, chans, reqs, err := gossh.NewServerConn(netConn, config)
	if err != nil {
		return
	}
	defer srvConn.Close()
	go gossh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "session" {
			newChan.Reject(gossh.UnknownChannelType, "unsupported channel type") //nolint:errcheck
			continue
		}
		ch, requests, err := newChan.Accept()
		if err != nil {
			continue
		}
		go s.handleSession(ch, requests)
	}
}

func (s *Server) handleSession(ch gossh.Channel, reqs <-chan *gossh.Request) {
	defer ch.Close()

	for req := range reqs {
		switch req.Type {
		case "pty-req", "env":
			if req.WantReply {
				req.Reply(true, nil) //nolint:errcheck
			}
		case "shell":
			if req.WantReply {
				req.Reply(true, nil) //nolint:errcheck
			}
			go gossh.DiscardRequests(reqs)
			s.shell(ch)
			return
		default:
			if req.WantReply {
				req.Reply(false, nil) //nolint:errcheck
			}
		}
	}
}

// runShell feeds ch into /bin/sh and reports its exit status.
func runShell(ch gossh.Channel) {
	cmd := exec.Command("/bin/sh")
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return
	}
	cmd.Stdout = ch
	cmd.Stderr = ch
	if err := cmd.Start(); err != nil {
		return
	}
	go func() {
		io.Copy(stdin, ch) //nolint:errcheck
		stdin.Close()
	}()

	status := 0
	if err := cmd.Wait(); err != nil {
		if ee, ok := err.(*exec.ExitError); ok {
			status = ee.ExitCode()
		} else {
			status = 255
		}
	}
	ch.SendRequest("exit-status", false, gossh.Marshal(struct{ Status uint32 }{uint32(status)})) //nolint:errcheck
}
