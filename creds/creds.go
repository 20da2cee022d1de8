// Package creds resolves AWS credentials for use as an aws
// credential_process helper. It checks the environment, the CLI's
// assume-role cache, and the shared credentials file, and prints the
// Version-1 JSON document the AWS CLI expects.
package creds

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// ErrNotFound is returned when no source yields credentials.
var ErrNotFound = errors.New("unable to locate AWS credentials")

// Credentials is the credential_process Version-1 document.
type Credentials struct {
	Version         int    `json:"Version"`
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken,omitempty"`
	Expiration      string `json:"Expiration,omitempty"`
}

// Resolver reads credentials from a home directory and environment.
// The zero value is not usable; construct with NewResolver.
type Resolver struct {
	home string
	env  func(string) string
	now  func() time.Time
}

func NewResolver() (*Resolver, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.Wrap(err, "resolve home directory")
	}
	return &Resolver{home: home, env: os.Getenv, now: time.Now}, nil
}

// Resolve checks sources in order: process environment, the AWS CLI's
// assume-role cache (freshest unexpired entry wins), then the shared
// credentials file's selected profile.
func (r *Resolver) Resolve() (Credentials, error) {
	if c, ok := r.fromEnv(); ok {
		return c, nil
	}
	if c, ok := r.fromCache(); ok {
		return c, nil
	}
	if c, ok, err := r.fromSharedFile(); err != nil {
		return Credentials{}, err
	} else if ok {
		return c, nil
	}
	return Credentials{}, ErrNotFound
}

func (r *Resolver) fromEnv() (Credentials, bool) {
	key := r.env("AWS_ACCESS_KEY_ID")
	secret := r.env("AWS_SECRET_ACCESS_KEY")
	if key == "" || secret == "" {
		return Credentials{}, false
	}
	return Credentials{
		Version:         1,
		AccessKeyID:     key,
		SecretAccessKey: secret,
		SessionToken:    r.env("AWS_SESSION_TOKEN"),
	}, true
}

// cacheEntry matches the JSON the AWS CLI writes under ~/.aws/cli/cache.
type cacheEntry struct {
	Credentials struct {
		AccessKeyID     string `json:"AccessKeyId"`
		SecretAccessKey string `json:"SecretAccessKey"`
		SessionToken    string `json:"SessionToken"`
		Expiration      string `json:"Expiration"`
	} `json:"Credentials"`
}

func (r *Resolver) fromCache() (Credentials, bool) {
	dir := filepath.Join(r.home, ".aws", "cli", "cache")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Credentials{}, false
	}

	type candidate struct {
		creds  Credentials
		expiry time.Time
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var ce cacheEntry
		if err := json.Unmarshal(data, &ce); err != nil || ce.Credentials.AccessKeyID == "" {
			continue
		}
		expiry, err := time.Parse(time.RFC3339, ce.Credentials.Expiration)
		if err != nil || !expiry.After(r.now()) {
			continue
		}
		candidates = append(candidates, candidate{
			creds: Credentials{
				Version:         1,
				AccessKeyID:     ce.Credentials.AccessKeyID,
				SecretAccessKey: ce.Credentials.SecretAccessKey,
				SessionToken:    ce.Credentials.SessionToken,
				Expiration:      expiry.Format(time.RFC3339),
			},
			expiry: expiry,
		})
	}
	if len(candidates) == 0 {
		return Credentials{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].expiry.After(candidates[j].expiry)
	})
	return candidates[0].creds, true
}

func (r *Resolver) fromSharedFile() (Credentials, bool, error) {
	path := r.env("AWS_SHARED_CREDENTIALS_FILE")
	if path == "" {
		path = filepath.Join(r.home, ".aws", "credentials")
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, false, nil
		}
		return Credentials{}, false, errors.Wrapf(err, "read %s", path)
	}
	defer f.Close()

	profile := r.env("AWS_PROFILE")
	if profile == "" {
		profile = "default"
	}

	section, err := scanProfile(f, profile)
	if err != nil {
		return Credentials{}, false, err
	}
	if section == nil {
		return Credentials{}, false, errors.Errorf("profile %q not found in %s", profile, path)
	}

	key := section["aws_access_key_id"]
	secret := section["aws_secret_access_key"]
	if key == "" || secret == "" {
		return Credentials{}, false, nil
	}
	return Credentials{
		Version:         1,
		AccessKeyID:     key,
		SecretAccessKey: secret,
		SessionToken:    section["aws_session_token"],
	}, true, nil
}

// scanProfile reads the INI-style credentials file and returns the
// named section's keys, or nil when the section is absent.
func scanProfile(f *os.File, profile string) (map[string]string, error) {
	var section map[string]string
	inSection := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			name := strings.TrimSpace(line[1 : len(line)-1])
			inSection = name == profile
			if inSection && section == nil {
				section = make(map[string]string)
			}
			continue
		}
		if !inSection {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		section[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan credentials file")
	}
	return section, nil
}
