package transport

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	sserr "sshmcp/internal/errors"
	"sshmcp/internal/metrics"
	"sshmcp/util"
)

// SSHConfig holds the server-side settings for every SSH dial.
type SSHConfig struct {
	Auth          AuthOptions
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration
	KeepAlive     time.Duration // 0 disables keepalive probes

	Term string // PTY terminal type
	Cols int
	Rows int
}

// SSHDialer implements [Dialer] with golang.org/x/crypto/ssh.  Every
// Dial makes a fresh connection; nothing is shared between channels.
type SSHDialer struct {
	config  SSHConfig
	logger  *util.Logger
	metrics *metrics.Collector
}

// NewSSHDialer fills in defaults and returns a ready dialer.
func NewSSHDialer(cfg SSHConfig, logger *util.Logger, m *metrics.Collector) *SSHDialer {
	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	if cfg.Term == "" {
		cfg.Term = "xterm"
	}
	if cfg.Cols <= 0 {
		cfg.Cols = 80
	}
	if cfg.Rows <= 0 {
		cfg.Rows = 24
	}
	return &SSHDialer{config: cfg, logger: logger, metrics: m}
}

// Dial connects to target, authenticates, and starts an interactive
// shell on a PTY with echo disabled.  Errors are *errors.SSHError with
// Op "auth" for credential problems and "dial", "handshake" or "shell"
// otherwise.
func (d *SSHDialer) Dial(ctx context.Context, target Target) (Channel, error) {
	if target.Port == 0 {
		target.Port = DefaultPort
	}

	authMethods, agentConn, err := BuildAuthMethods(target, d.config.Auth)
	if err != nil {
		return nil, sserr.WrapSSH("auth", target.Host, target.Port, err)
	}
	defer agentConn.Close()

	hkCallback, err := HostKeyCallback(d.config.StrictHostKey, d.config.KnownHosts)
	if err != nil {
		return nil, sserr.WrapSSH("handshake", target.Host, target.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            target.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         d.config.ConnTimeout,
	}

	addr := target.Addr()
	d.logger.Debug("SSH: dialing %s as %s", addr, target.User)

	dialCtx, cancel := context.WithTimeout(ctx, d.config.ConnTimeout)
	defer cancel()

	// Use a context-aware TCP dial so callers can cancel.
	var dialer net.Dialer
	tcpConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, sserr.WrapSSH("dial", target.Host, target.Port, err)
	}

	// The handshake is not context-aware: bound it with a deadline and
	// tear the socket down if the caller gives up first.
	_ = tcpConn.SetDeadline(time.Now().Add(d.config.ConnTimeout))
	stop := context.AfterFunc(dialCtx, func() { tcpConn.Close() })

	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	stopped := stop()
	if err != nil {
		tcpConn.Close()
		if !stopped {
			err = fmt.Errorf("%w (%v)", dialCtx.Err(), err)
		}
		return nil, classifyHandshake(target, err)
	}
	_ = tcpConn.SetDeadline(time.Time{})

	client := ssh.NewClient(sshConn, chans, reqs)
	ch, err := d.openShell(client)
	if err != nil {
		client.Close()
		return nil, sserr.WrapSSH("shell", target.Host, target.Port, err)
	}

	if d.config.KeepAlive > 0 {
		go ch.keepaliveLoop(d.config.KeepAlive, d.logger, d.metrics)
	}
	d.logger.Verbose("SSH: shell ready on %s", addr)
	return ch, nil
}

// openShell requests a PTY and starts the login shell.  On failure the
// SSH session is closed; the caller owns the client.
func (d *SSHDialer) openShell(client *ssh.Client) (*sshChannel, error) {
	sess, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("new session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          0,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
	}
	if err := sess.RequestPty(d.config.Term, d.config.Rows, d.config.Cols, modes); err != nil {
		sess.Close()
		return nil, fmt.Errorf("request pty: %w", err)
	}

	stdin, err := sess.StdinPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := sess.StdoutPipe()
	if err != nil {
		sess.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	// A PTY merges stderr into stdout on the remote side; the extended
	// stream is left unset so x/crypto drains it.

	if err := sess.Shell(); err != nil {
		sess.Close()
		return nil, fmt.Errorf("start shell: %w", err)
	}

	return &sshChannel{
		client:  client,
		session: sess,
		stdin:   stdin,
		output:  stdout,
		done:    make(chan struct{}),
	}, nil
}

func classifyHandshake(target Target, err error) error {
	msg := err.Error()
	if strings.Contains(msg, "unable to authenticate") || strings.Contains(msg, "no supported methods remain") {
		return sserr.WrapSSH("auth", target.Host, target.Port, fmt.Errorf("%w: %v", sserr.ErrAuthFailed, err))
	}
	return sserr.WrapSSH("handshake", target.Host, target.Port, err)
}

// ── sshChannel ───────────────────────────────────────────────────────

// sshChannel owns one SSH client and the single shell session on it.
type sshChannel struct {
	client  *ssh.Client
	session *ssh.Session
	stdin   io.WriteCloser
	output  io.Reader

	closeOnce sync.Once
	closeErr  error
	done      chan struct{}
}

func (c *sshChannel) Read(p []byte) (int, error)  { return c.output.Read(p) }
func (c *sshChannel) Write(p []byte) (int, error) { return c.stdin.Write(p) }

// Close ends the shell session and the connection under it.
func (c *sshChannel) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		c.session.Close()
		c.closeErr = c.client.Close()
		if util.IsClosed(c.closeErr) {
			c.closeErr = nil
		}
	})
	return c.closeErr
}

// keepaliveLoop sends periodic SSH keep-alive requests and closes the
// channel if the connection has died, so readers see the stream end.
func (c *sshChannel) keepaliveLoop(interval time.Duration, logger *util.Logger, m *metrics.Collector) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			_, _, err := c.client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				logger.Warn("SSH keepalive failed: %v", err)
				m.RecordError(fmt.Sprintf("keepalive: %v", err))
				c.Close()
				return
			}
			m.RecordHealthCheck()
			logger.Debug("SSH keepalive OK")
		}
	}
}
