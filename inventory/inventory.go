// Package inventory resolves host references against the hosts the
// config declares. Lookups either match exactly or fail loudly so a
// typo never silently narrows a fan-out.
package inventory

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/vcnkl/enops/models"
)

// Source answers host lookups. ByID must resolve to exactly one host.
type Source interface {
	ByID(id string) (models.Host, error)
	ByEnvironment(env string) ([]models.Host, error)
}

// Static serves lookups from a fixed host list.
type Static struct {
	hosts []models.Host
}

func NewStatic(hosts []models.Host) *Static {
	return &Static{hosts: hosts}
}

// ByID accepts a bare host id or an environment-qualified "env/id"
// reference. Anything other than exactly one match is an error.
func (s *Static) ByID(id string) (models.Host, error) {
	env := ""
	if i := strings.IndexByte(id, '/'); i >= 0 {
		env, id = id[:i], id[i+1:]
	}

	var matches []models.Host
	for _, h := range s.hosts {
		if h.ID != id {
			continue
		}
		if env != "" && h.Environment != env {
			continue
		}
		matches = append(matches, h)
	}

	switch len(matches) {
	case 0:
		return models.Host{}, errors.Errorf("unknown host %q", id)
	case 1:
		return matches[0], nil
	default:
		labels := make([]string, len(matches))
		for i, h := range matches {
			labels[i] = h.Label()
		}
		return models.Host{}, errors.Errorf("host %q is ambiguous: %s", id, strings.Join(labels, ", "))
	}
}

func (s *Static) ByEnvironment(env string) ([]models.Host, error) {
	var hosts []models.Host
	for _, h := range s.hosts {
		if h.Environment == env {
			hosts = append(hosts, h)
		}
	}
	if len(hosts) == 0 {
		return nil, errors.Errorf("environment %q has no hosts", env)
	}
	return hosts, nil
}

// ResolveAll maps every reference to a host before anything runs. One
// unresolvable reference fails the whole set; the error names each one.
func ResolveAll(src Source, ids []string) ([]models.Host, error) {
	hosts := make([]models.Host, 0, len(ids))
	var bad []string
	for _, id := range ids {
		host, err := src.ByID(id)
		if err != nil {
			bad = append(bad, id)
			continue
		}
		hosts = append(hosts, host)
	}
	if len(bad) > 0 {
		return nil, errors.Errorf("unresolved host reference(s): %s", strings.Join(bad, ", "))
	}
	return hosts, nil
}
