package runner

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vcnkl/enops/archive"
	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/logger"
)

// captureLog records every line Runner's logged mode emits.
type captureLog struct {
	mu    sync.Mutex
	lines []string
}

func (c *captureLog) Debug(string, ...logger.Field) {}
func (c *captureLog) Info(string, ...logger.Field)  {}
func (c *captureLog) Warn(string, ...logger.Field)  {}
func (c *captureLog) Error(string, ...logger.Field) {}
func (c *captureLog) WithHost(string) logger.Logger { return c }

func (c *captureLog) Lines() io.Writer { return (*captureSink)(c) }

func (c *captureLog) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

type captureSink captureLog

func (s *captureSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	s.lines = append(s.lines, strings.TrimSuffix(string(p), "\n"))
	s.mu.Unlock()
	return len(p), nil
}

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestRunLoggedBootstrapRoundTrip(t *testing.T) {
	requireBash(t)

	dir := t.TempDir()
	b := archive.New()
	require.NoError(t, b.Add("app.sh", 0o700, []byte("#!/bin/sh\necho hi\n")))
	blob, err := b.Bytes()
	require.NoError(t, err)

	target := filepath.Join(dir, "app.sh")
	log := &captureLog{}
	r := New(Options{
		Script: bootstrap.Script{
			Payload:    blob,
			ExtractDir: dir,
			Command:    bootstrap.Quote(target),
		},
		Policy: FailReturn,
		Log:    log,
	})

	require.NoError(t, r.Run(context.Background()))

	info, err := os.Stat(target)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())

	content, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\necho hi\n", string(content))

	assert.Contains(t, log.all(), "hi")
}

func TestRunUploadPhaseHiddenFromLog(t *testing.T) {
	requireBash(t)

	dir := t.TempDir()
	b := archive.New()
	require.NoError(t, b.Add("data.txt", 0o644, []byte("secret payload contents")))
	blob, err := b.Bytes()
	require.NoError(t, err)

	log := &captureLog{}
	r := New(Options{
		Script: bootstrap.Script{
			Payload:    blob,
			ExtractDir: dir,
			Command:    "echo done",
		},
		Policy: FailReturn,
		Log:    log,
	})

	require.NoError(t, r.Run(context.Background()))

	joined := strings.Join(log.all(), "\n")
	assert.Contains(t, joined, "done")
	assert.NotContains(t, joined, "secret payload contents")
	assert.NotContains(t, joined, bootstrap.UploadSentinel)
	assert.NotContains(t, joined, bootstrap.ExecSentinel)
}

func TestRunFailReturnSurfacesExitError(t *testing.T) {
	requireBash(t)

	log := &captureLog{}
	r := New(Options{
		Script: bootstrap.Script{Command: "sh -c 'exit 7'"},
		Policy: FailReturn,
		Log:    log,
	})

	err := r.Run(context.Background())
	var ee *ExitError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, 7, ee.Code)
	assert.NotEmpty(t, ee.Command)
}

func TestRunZeroExitIsNil(t *testing.T) {
	requireBash(t)

	log := &captureLog{}
	r := New(Options{
		Script: bootstrap.Script{Command: "true"},
		Policy: FailReturn,
		Log:    log,
	})
	assert.NoError(t, r.Run(context.Background()))
}

func TestInputGate(t *testing.T) {
	var dst strings.Builder
	g := &inputGate{dst: &dst}

	// Closed by default: bytes are dropped, not an error.
	n, err := g.Write([]byte("dropped"))
	require.NoError(t, err)
	assert.Equal(t, len("dropped"), n)
	assert.Empty(t, dst.String())

	g.openGate()
	_, err = g.Write([]byte("kept"))
	require.NoError(t, err)
	assert.Equal(t, "kept", dst.String())

	g.closeGate()
	_, err = g.Write([]byte("gone"))
	require.NoError(t, err)
	assert.Equal(t, "kept", dst.String())

	g.detach()
	_, err = g.Write([]byte("fails"))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestExitErrorMessage(t *testing.T) {
	err := &ExitError{Command: "bash -c true", Code: 3}
	assert.Contains(t, err.Error(), "bash -c true")
	assert.Contains(t, err.Error(), "3")
}
