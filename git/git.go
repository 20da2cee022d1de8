// Package git locates the enclosing repository so config files can be
// found from any working directory inside it.
package git

import (
	"os/exec"
	"strings"

	"github.com/pkg/errors"
)

// RepoRoot returns the top-level directory of the git repository
// containing the current working directory.
func RepoRoot() (string, error) {
	out, err := exec.Command("git", "rev-parse", "--show-toplevel").Output()
	if err != nil {
		return "", errors.Wrap(err, "not inside a git repository")
	}
	return strings.TrimSpace(string(out)), nil
}
