package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"

	sserr "sshmcp/internal/errors"
)

// AuthOptions are the server-side credential sources that complement
// what a caller supplies in a [Target].
type AuthOptions struct {
	FallbackKey        string // PEM used when the caller gives no password or key
	FallbackPassphrase string
	UseAgent           bool
}

// BuildAuthMethods assembles an ordered list of SSH authentication
// methods for target.  A password wins outright; otherwise the caller's
// key, or the fallback key, is tried, followed by the agent when
// enabled.  The returned closer releases the agent connection, if any.
func BuildAuthMethods(target Target, opts AuthOptions) ([]ssh.AuthMethod, io.Closer, error) {
	// 1. Password (plus keyboard-interactive for servers that only
	// offer that).
	if target.Password != "" {
		return []ssh.AuthMethod{
			ssh.Password(target.Password),
			keyboardInteractive(target.Password),
		}, nopCloser{}, nil
	}

	var methods []ssh.AuthMethod

	// 2. Caller key, else the configured fallback.
	key, pass := target.PrivateKey, target.Passphrase
	if key == "" {
		key, pass = opts.FallbackKey, opts.FallbackPassphrase
	}
	if key != "" {
		m, err := publicKeyAuth(key, pass)
		if err != nil {
			return nil, nil, err
		}
		methods = append(methods, m)
	}

	// 3. SSH agent (explicit opt-in)
	var closer io.Closer = nopCloser{}
	if opts.UseAgent {
		m, conn, err := agentAuth()
		if err != nil && len(methods) == 0 {
			return nil, nil, fmt.Errorf("ssh-agent: %w", err)
		}
		if err == nil {
			methods = append(methods, m)
			closer = conn
		}
	}

	if len(methods) == 0 {
		return nil, nil, fmt.Errorf("%w: supply a password or privateKey, or set SSH_PRIVATE_KEY",
			sserr.ErrNoAuthMethod)
	}
	return methods, closer, nil
}

// ── individual auth builders ─────────────────────────────────────────

func publicKeyAuth(pemText, passphrase string) (ssh.AuthMethod, error) {
	signer, err := ParsePrivateKey(pemText, passphrase)
	if err != nil {
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// ParsePrivateKey decodes PEM key material, decrypting it with
// passphrase when the key is encrypted.  Literal "\n" sequences are
// accepted in place of newlines so keys survive single-line env vars.
func ParsePrivateKey(pemText, passphrase string) (ssh.Signer, error) {
	data := []byte(normalizePEM(pemText))

	signer, err := ssh.ParsePrivateKey(data)
	if err == nil {
		return signer, nil
	}
	var missing *ssh.PassphraseMissingError
	if !errors.As(err, &missing) {
		return nil, fmt.Errorf("parsing key: %w", err)
	}
	if passphrase == "" {
		return nil, fmt.Errorf("key is encrypted: passphrase required")
	}
	signer, err = ssh.ParsePrivateKeyWithPassphrase(data, []byte(passphrase))
	if err != nil {
		return nil, fmt.Errorf("decrypting key: %w", err)
	}
	return signer, nil
}

func normalizePEM(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, "\n") && strings.Contains(s, `\n`) {
		s = strings.ReplaceAll(s, `\n`, "\n")
	}
	return s + "\n"
}

func agentAuth() (ssh.AuthMethod, net.Conn, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), conn, nil
}

// keyboardInteractive answers every prompt with the password.
func keyboardInteractive(password string) ssh.AuthMethod {
	return ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
		answers := make([]string, len(questions))
		for i := range answers {
			answers[i] = password
		}
		return answers, nil
	})
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// ── host-key verification ────────────────────────────────────────────

// HostKeyCallback returns an insecure callback unless strict is set, in
// which case keys are verified against knownHostsPath.
func HostKeyCallback(strict bool, knownHostsPath string) (ssh.HostKeyCallback, error) {
	if !strict {
		//nolint:gosec // host key checking disabled by configuration
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if knownHostsPath == "" {
		return nil, fmt.Errorf("strict host key checking needs a known_hosts path")
	}
	cb, err := knownhosts.New(knownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", knownHostsPath, err)
	}
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := cb(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if errors.As(err, &keyErr) {
			return fmt.Errorf("%w: %v", sserr.ErrHostKeyMismatch, err)
		}
		return err
	}, nil
}
