package gateway

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// KeyResolver maps provider key-pair names to local private key files.
// A name resolves by computing the fingerprint of every candidate key
// in the search directories and comparing against the fingerprint
// registered for that name; there is no naming convention linking the
// two.
type KeyResolver struct {
	dirs         []string
	fingerprints map[string]string
}

func NewKeyResolver(dirs []string, fingerprints map[string]string) *KeyResolver {
	return &KeyResolver{dirs: dirs, fingerprints: fingerprints}
}

// Resolve returns the path of the local private key whose public half
// matches the fingerprint registered under name.
func (r *KeyResolver) Resolve(name string) (string, error) {
	want, ok := r.fingerprints[name]
	if !ok {
		return "", errors.Errorf("keys: no fingerprint registered for key pair %q", name)
	}

	for _, dir := range r.dirs {
		entries, err := os.ReadDir(expandHome(dir))
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || strings.HasSuffix(e.Name(), ".pub") {
				continue
			}
			path := filepath.Join(expandHome(dir), e.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			signer, err := ssh.ParsePrivateKey(data)
			if err != nil {
				continue
			}
			if ssh.FingerprintSHA256(signer.PublicKey()) == want {
				return path, nil
			}
		}
	}
	return "", errors.Errorf("keys: no local private key matches %q (fingerprint %s)", name, want)
}

// Signer resolves name and parses the matching key.
func (r *KeyResolver) Signer(name string) (ssh.Signer, error) {
	path, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return loadSigner(path)
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	return path
}
