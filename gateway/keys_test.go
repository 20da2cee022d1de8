package gateway

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func writeKey(t *testing.T, dir, name string) (string, string) {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))

	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return path, ssh.FingerprintSHA256(signer.PublicKey())
}

func TestResolveByFingerprint(t *testing.T) {
	dir := t.TempDir()
	_, noiseFP := writeKey(t, dir, "other.pem")
	wantPath, wantFP := writeKey(t, dir, "ops.pem")
	require.NotEqual(t, noiseFP, wantFP)

	// Non-key clutter must be skipped, not fatal.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "known_hosts"), []byte("not a key"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ops.pub"), []byte("ssh-ed25519 AAAA"), 0o644))

	r := NewKeyResolver([]string{dir}, map[string]string{"ops": wantFP})

	got, err := r.Resolve("ops")
	require.NoError(t, err)
	assert.Equal(t, wantPath, got)
}

func TestResolveUnknownName(t *testing.T) {
	r := NewKeyResolver([]string{t.TempDir()}, map[string]string{})
	_, err := r.Resolve("missing")
	assert.ErrorContains(t, err, "no fingerprint registered")
}

func TestResolveNoLocalMatch(t *testing.T) {
	dir := t.TempDir()
	writeKey(t, dir, "other.pem")

	r := NewKeyResolver([]string{dir}, map[string]string{"ops": "SHA256:doesnotexist"})
	_, err := r.Resolve("ops")
	assert.ErrorContains(t, err, "no local private key matches")
}

func TestSigner(t *testing.T) {
	dir := t.TempDir()
	_, fp := writeKey(t, dir, "ops.pem")

	r := NewKeyResolver([]string{dir}, map[string]string{"ops": fp})
	signer, err := r.Signer("ops")
	require.NoError(t, err)
	assert.Equal(t, fp, ssh.FingerprintSHA256(signer.PublicKey()))
}

func TestResolveSearchesMultipleDirs(t *testing.T) {
	empty := t.TempDir()
	dir := t.TempDir()
	wantPath, fp := writeKey(t, dir, "ops.pem")

	r := NewKeyResolver([]string{empty, dir}, map[string]string{"ops": fp})
	got, err := r.Resolve("ops")
	require.NoError(t, err)
	assert.Equal(t, wantPath, got)
}
