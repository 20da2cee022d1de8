// Package bootstrap generates the single shell command that delivers an
// embedded archive to a remote host and execs a target command there.
// The only remote capability assumed is `bash -c "<script>"`.
package bootstrap

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Sentinel tokens delimiting the protocol phases on the pty stream. The
// script never contains them literally (they are emitted through hex
// escapes), so seeing one on the wire means the script printed it
// deliberately rather than it scrolling past in ordinary output.
const (
	UploadSentinel = "<enops:upload>"
	ExecSentinel   = "<enops:exec>"
)

// Script describes one bootstrap invocation.
type Script struct {
	// Payload is the compressed archive to deliver; empty means no
	// upload phase (sentinels are still emitted so the runner's phase
	// tracking stays uniform).
	Payload []byte
	// ExtractDir is where the archive unpacks; empty means the remote
	// shell's current directory.
	ExtractDir string
	// WorkDir is where the command runs; a leading ~ keeps shell tilde
	// expansion.
	WorkDir string
	// Command is the command line handed to exec.
	Command string
}

// PayloadSize is the exact number of bytes the remote side will read
// from its input stream: the base64-encoded length of the payload,
// computed client-side because the remote has no other way to know when
// the upload ends.
func (s Script) PayloadSize() int {
	return base64.StdEncoding.EncodedLen(len(s.Payload))
}

// EncodedPayload is the byte stream the runner writes to the remote
// input once the upload sentinel arrives.
func (s Script) EncodedPayload() []byte {
	return []byte(base64.StdEncoding.EncodeToString(s.Payload))
}

// Render produces the full bash -c invocation as an argv. It is a pure
// function of the Script fields.
func (s Script) Render() []string {
	return []string{"bash", "-c", s.renderBody()}
}

// RenderCommand produces the same invocation as a single shell string,
// for platforms that wrap a command line rather than an argv.
func (s Script) RenderCommand() string {
	return "bash -c " + Quote(s.renderBody())
}

func (s Script) renderBody() string {
	// raw -echo: echo off so the base64 blob does not spam the
	// terminal, canonical mode off so dd sees bytes immediately
	// instead of waiting for a newline.
	steps := []string{
		"stty raw -echo",
		"echo -n " + hexQuoted(UploadSentinel),
	}

	if len(s.Payload) > 0 {
		extract := "tar xz"
		if s.ExtractDir != "" {
			extract += " -C " + Quote(s.ExtractDir)
		}
		steps = append(steps, fmt.Sprintf(
			"dd bs=1 count=%d 2>/dev/null | base64 -d | %s",
			s.PayloadSize(), extract,
		))
	}

	steps = append(steps,
		"stty sane",
		"echo -n "+hexQuoted(ExecSentinel),
	)

	if s.WorkDir != "" {
		steps = append(steps, "cd "+QuoteTilde(s.WorkDir))
	}

	steps = append(steps, "exec "+s.Command)
	return strings.Join(steps, "; ")
}

// hexQuoted renders token as $'\xNN...' so the literal token bytes never
// appear inside the script argument itself.
func hexQuoted(token string) string {
	var b strings.Builder
	b.WriteString("$'")
	for i := 0; i < len(token); i++ {
		fmt.Fprintf(&b, "\\x%02x", token[i])
	}
	b.WriteString("'")
	return b.String()
}

// Quote single-quotes s for use as one shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// QuoteTilde quotes a path while leaving a leading ~ bare so the shell
// still performs home-relative expansion.
func QuoteTilde(path string) string {
	if path == "~" {
		return "~"
	}
	if strings.HasPrefix(path, "~/") {
		return "~/" + Quote(path[2:])
	}
	return Quote(path)
}
