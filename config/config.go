// Package config loads the deploy.yml that declares the app, its
// environments, their hosts, and how to reach them.
package config

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/vcnkl/enops/git"
	"github.com/vcnkl/enops/models"
)

// EnvConfigPath overrides config discovery when set.
const EnvConfigPath = "ENOPS_CONFIG"

type Config struct {
	App          string                 `koanf:"app"`
	Bastion      BastionConfig          `koanf:"bastion"`
	KeyDirs      []string               `koanf:"key_dirs"`
	Keys         map[string]string      `koanf:"keys"`
	Environments map[string]Environment `koanf:"environments"`
}

// BastionConfig names the jump host every fan-out session tunnels
// through.
type BastionConfig struct {
	Addr string `koanf:"addr"`
	User string `koanf:"user"`
	Key  string `koanf:"key"`
}

type Environment struct {
	HerokuApp string       `koanf:"heroku_app"`
	Hosts     []HostConfig `koanf:"hosts"`
}

type HostConfig struct {
	ID   string `koanf:"id"`
	Addr string `koanf:"addr"`
	User string `koanf:"user"`
	Key  string `koanf:"key"`
}

// Locate returns the config path: the ENOPS_CONFIG override when set,
// otherwise deploy.yml at the git repository root, falling back to the
// current directory outside a repository.
func Locate() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	root, err := git.RepoRoot()
	if err != nil {
		root, _ = os.Getwd()
	}
	return filepath.Join(root, "deploy.yml")
}

func (c *Config) setDefaults() {
	for name, env := range c.Environments {
		for i, h := range env.Hosts {
			if h.User == "" {
				env.Hosts[i].User = c.Bastion.User
			}
			if h.Key == "" {
				env.Hosts[i].Key = c.Bastion.Key
			}
		}
		c.Environments[name] = env
	}
}

func (c *Config) validate() error {
	if c.App == "" {
		return errors.New("config: app name is required")
	}
	if len(c.Environments) == 0 {
		return errors.New("config: at least one environment is required")
	}
	seen := make(map[string]string)
	for name, env := range c.Environments {
		for _, h := range env.Hosts {
			if h.ID == "" || h.Addr == "" {
				return errors.Errorf("config: environment %q has a host missing id or addr", name)
			}
			if prev, ok := seen[h.ID]; ok {
				return errors.Errorf("config: host id %q declared in both %q and %q", h.ID, prev, name)
			}
			seen[h.ID] = name
			if c.Bastion.Addr == "" {
				return errors.Errorf("config: environment %q declares hosts but no bastion is configured", name)
			}
		}
	}
	return nil
}

// Environment returns the named environment or an error listing the
// known names.
func (c *Config) Environment(name string) (Environment, error) {
	env, ok := c.Environments[name]
	if !ok {
		return Environment{}, errors.Errorf("unknown environment %q (have: %v)", name, c.EnvironmentNames())
	}
	return env, nil
}

func (c *Config) EnvironmentNames() []string {
	names := make([]string, 0, len(c.Environments))
	for name := range c.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Hosts flattens every environment's hosts into runtime host records.
func (c *Config) Hosts() []models.Host {
	var hosts []models.Host
	for _, name := range c.EnvironmentNames() {
		for _, h := range c.Environments[name].Hosts {
			hosts = append(hosts, models.Host{
				ID:          h.ID,
				Addr:        h.Addr,
				User:        h.User,
				KeyName:     h.Key,
				Environment: name,
			})
		}
	}
	return hosts
}
