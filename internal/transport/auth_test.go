package transport

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	sserr "sshmcp/internal/errors"
)

func TestBuildAuthMethods_PasswordWins(t *testing.T) {
	key := testKeyPEM(t, "")
	methods, closer, err := BuildAuthMethods(
		Target{Password: "pw", PrivateKey: key},
		AuthOptions{FallbackKey: key, UseAgent: true},
	)
	require.NoError(t, err)
	defer closer.Close()
	// password + keyboard-interactive only; no key, no agent
	assert.Len(t, methods, 2)
}

func TestBuildAuthMethods_CallerKey(t *testing.T) {
	methods, closer, err := BuildAuthMethods(Target{PrivateKey: testKeyPEM(t, "")}, AuthOptions{})
	require.NoError(t, err)
	defer closer.Close()
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethods_FallbackKey(t *testing.T) {
	methods, closer, err := BuildAuthMethods(Target{}, AuthOptions{FallbackKey: testKeyPEM(t, "")})
	require.NoError(t, err)
	defer closer.Close()
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethods_EncryptedFallbackKey(t *testing.T) {
	key := testKeyPEM(t, "hunter2")

	_, _, err := BuildAuthMethods(Target{}, AuthOptions{FallbackKey: key})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase")

	methods, closer, err := BuildAuthMethods(Target{}, AuthOptions{FallbackKey: key, FallbackPassphrase: "hunter2"})
	require.NoError(t, err)
	defer closer.Close()
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethods_NoMethods(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	_, _, err := BuildAuthMethods(Target{}, AuthOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sserr.ErrNoAuthMethod)

	_, _, err = BuildAuthMethods(Target{}, AuthOptions{UseAgent: true})
	require.Error(t, err, "agent without socket and no key should fail")
}

func TestBuildAuthMethods_AgentUnavailableWithKey(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	methods, closer, err := BuildAuthMethods(Target{}, AuthOptions{FallbackKey: testKeyPEM(t, ""), UseAgent: true})
	require.NoError(t, err)
	defer closer.Close()
	assert.Len(t, methods, 1)
}

func TestBuildAuthMethods_BadKey(t *testing.T) {
	_, _, err := BuildAuthMethods(Target{PrivateKey: "not a key"}, AuthOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing key")
}

func TestParsePrivateKey_EscapedNewlines(t *testing.T) {
	key := testKeyPEM(t, "")
	oneLine := strings.ReplaceAll(strings.TrimSpace(key), "\n", `\n`)

	signer, err := ParsePrivateKey(oneLine, "")
	require.NoError(t, err)
	assert.Equal(t, "ssh-ed25519", signer.PublicKey().Type())
}

func TestHostKeyCallback_Insecure(t *testing.T) {
	cb, err := HostKeyCallback(false, "")
	require.NoError(t, err)
	require.NotNil(t, cb)
}

func TestHostKeyCallback_StrictMissingFile(t *testing.T) {
	_, err := HostKeyCallback(true, filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)

	_, err = HostKeyCallback(true, "")
	require.Error(t, err)
}

func TestHostKeyCallback_StrictMismatch(t *testing.T) {
	known, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	other, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	knownPub, err := ssh.NewPublicKey(known)
	require.NoError(t, err)
	otherPub, err := ssh.NewPublicKey(other)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "known_hosts")
	line := "[127.0.0.1]:2222 " + string(ssh.MarshalAuthorizedKey(knownPub))
	require.NoError(t, os.WriteFile(path, []byte(line), 0o600))

	cb, err := HostKeyCallback(true, path)
	require.NoError(t, err)

	addr := &fakeAddr{"127.0.0.1:2222"}
	assert.NoError(t, cb("127.0.0.1:2222", addr, knownPub))
	err = cb("127.0.0.1:2222", addr, otherPub)
	assert.ErrorIs(t, err, sserr.ErrHostKeyMismatch)
}

// ── helpers ──────────────────────────────────────────────────────────

// testKeyPEM returns a fresh ed25519 OpenSSH private key, encrypted when
// passphrase is non-empty.
func testKeyPEM(t *testing.T, passphrase string) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test@sshmcp")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test@sshmcp", []byte(passphrase))
	}
	require.NoError(t, err)
	return string(pem.EncodeToMemory(block))
}

type fakeAddr struct{ s string }

func (a *fakeAddr) Network() string { return "tcp" }
func (a *fakeAddr) String() string  { return a.s }
