package integration

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vcnkl/enops/archive"
	"github.com/vcnkl/enops/bootstrap"
)

func startShellContainer(t *testing.T, ctx context.Context, payloadFile string) testcontainers.Container {
	t.Helper()

	ctr, err := testcontainers.Run(ctx, "golang:1.24-alpine",
		testcontainers.WithFiles(
			testcontainers.ContainerFile{
				HostFilePath:      payloadFile,
				ContainerFilePath: "/tmp/payload",
				FileMode:          0o644,
			},
		),
		testcontainers.WithCmd("tail", "-f", "/dev/null"),
		testcontainers.WithWaitStrategy(
			wait.ForExec([]string{"sh", "-c", "apk update && apk add --no-cache bash"}).
				WithStartupTimeout(180*time.Second).
				WithPollInterval(2*time.Second),
		),
	)
	require.NoError(t, err, "failed to start container")
	return ctr
}

// Runs the generated bootstrap script inside a real shell. The payload
// normally arrives on the pty after the upload sentinel; here stdin is
// redirected from a file holding the same encoded bytes, which is what
// dd's byte count makes possible in the first place.
func TestBootstrapScriptInContainer(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("skipping integration test via SKIP_INTEGRATION env var")
	}

	b := archive.New()
	require.NoError(t, b.Add("app.sh", 0o755, []byte("#!/bin/sh\necho deployed-marker\n")))
	require.NoError(t, b.Add("conf/settings.yml", 0o644, []byte("mode: test\n")))
	payload, err := b.Bytes()
	require.NoError(t, err)

	script := bootstrap.Script{
		Payload:    payload,
		ExtractDir: "/work",
		WorkDir:    "/work",
		Command:    "./app.sh",
	}

	payloadFile := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(payloadFile, script.EncodedPayload(), 0o644))

	ctx := context.Background()
	ctr := startShellContainer(t, ctx, payloadFile)
	defer testcontainers.CleanupContainer(t, ctr)

	code, _, err := ctr.Exec(ctx, []string{"mkdir", "-p", "/work"})
	require.NoError(t, err)
	require.Zero(t, code)

	// stty fails without a tty; the script's steps are joined with ';'
	// so the upload pipeline still runs.
	exitCode, reader, err := ctr.Exec(ctx,
		[]string{"bash", "-c", script.RenderCommand() + " < /tmp/payload"})
	require.NoError(t, err)

	var out bytes.Buffer
	_, _ = out.ReadFrom(reader)
	t.Logf("bootstrap output (exit %d): %s", exitCode, out.String())

	assert.Zero(t, exitCode, "bootstrap script should exit with the command's status")
	assert.Contains(t, out.String(), bootstrap.UploadSentinel)
	assert.Contains(t, out.String(), bootstrap.ExecSentinel)
	assert.Contains(t, out.String(), "deployed-marker")

	// Extraction preserved content and mode.
	exitCode, reader, err = ctr.Exec(ctx, []string{"sh", "-c", "cat /work/conf/settings.yml && stat -c %a /work/app.sh"})
	require.NoError(t, err)
	out.Reset()
	_, _ = out.ReadFrom(reader)
	require.Zero(t, exitCode, out.String())
	assert.Contains(t, out.String(), "mode: test")
	assert.Contains(t, out.String(), "755")
}

func TestBootstrapScriptNonZeroExitPropagates(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("skipping integration test via SKIP_INTEGRATION env var")
	}

	b := archive.New()
	require.NoError(t, b.Add("fail.sh", 0o755, []byte("#!/bin/sh\nexit 7\n")))
	payload, err := b.Bytes()
	require.NoError(t, err)

	script := bootstrap.Script{
		Payload:    payload,
		ExtractDir: "/work",
		WorkDir:    "/work",
		Command:    "./fail.sh",
	}

	payloadFile := filepath.Join(t.TempDir(), "payload")
	require.NoError(t, os.WriteFile(payloadFile, script.EncodedPayload(), 0o644))

	ctx := context.Background()
	ctr := startShellContainer(t, ctx, payloadFile)
	defer testcontainers.CleanupContainer(t, ctr)

	code, _, err := ctr.Exec(ctx, []string{"mkdir", "-p", "/work"})
	require.NoError(t, err)
	require.Zero(t, code)

	exitCode, reader, err := ctr.Exec(ctx,
		[]string{"bash", "-c", script.RenderCommand() + " < /tmp/payload"})
	require.NoError(t, err)

	var out bytes.Buffer
	_, _ = out.ReadFrom(reader)
	assert.Equal(t, 7, exitCode, out.String())
}
