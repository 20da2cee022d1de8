package runner

import (
	"os/exec"

	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/models"
)

// Platform describes how to turn the rendered bootstrap invocation into
// the process the Runner actually spawns: directly for local runs, or
// wrapped in a provider-specific remote-execution command.
type Platform interface {
	Command(script bootstrap.Script) *exec.Cmd
}

// Local spawns the bootstrap script as-is on this machine.
type Local struct{}

func (Local) Command(s bootstrap.Script) *exec.Cmd {
	argv := s.Render()
	return exec.Command(argv[0], argv[1:]...)
}

// Heroku runs the script inside a one-off dyno via the heroku CLI.
// --exit-code makes the CLI mirror the dyno's exit status.
type Heroku struct {
	App string
}

func (h Heroku) Command(s bootstrap.Script) *exec.Cmd {
	args := []string{"run", "--app", h.App, "--exit-code", "--"}
	args = append(args, s.Render()...)
	return exec.Command("heroku", args...)
}

// SSH runs the script on a remote host, hopping through the bastion
// gateway with ProxyJump. -t forces a tty allocation so the sentinel
// protocol has its pty stream.
type SSH struct {
	Host        models.Host
	BastionAddr string
	BastionUser string
	KeyPath     string
}

func (p SSH) Command(s bootstrap.Script) *exec.Cmd {
	args := []string{"-t", "-o", "LogLevel=ERROR"}
	if p.BastionAddr != "" {
		jump := p.BastionAddr
		if p.BastionUser != "" {
			jump = p.BastionUser + "@" + jump
		}
		args = append(args, "-J", jump)
	}
	if p.KeyPath != "" {
		args = append(args, "-i", p.KeyPath)
	}
	target := p.Host.Addr
	if p.Host.User != "" {
		target = p.Host.User + "@" + target
	}
	args = append(args, target, s.RenderCommand())
	return exec.Command("ssh", args...)
}
