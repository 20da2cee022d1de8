// Package runner drives one interactive or logged bootstrap session
// against a local or remote shell behind a pseudo-terminal, tracking the
// upload/exec protocol phases and propagating the remote exit status.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/creack/pty"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/term"

	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/logger"
)

// FailPolicy selects what happens when the spawned command exits
// non-zero. Library-style callers want a catchable error; one-shot CLI
// commands want the process to mirror the remote status.
type FailPolicy int

const (
	// FailReturn surfaces a non-zero exit as an *ExitError.
	FailReturn FailPolicy = iota
	// FailExit terminates this process with the child's exit status.
	FailExit
)

// ExitError reports a command that exited non-zero.
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", e.Command, e.Code)
}

// Options configures one Runner session.
type Options struct {
	Platform Platform
	Script   bootstrap.Script
	Policy   FailPolicy
	// Log, when set, selects logged mode: no terminal manipulation, and
	// output is flushed by completed lines (CR overwrites collapsed)
	// instead of streamed raw. Nil selects interactive mode.
	Log logger.Logger
	// Stdin/Stdout default to the process's terminal; tests override.
	Stdin  io.Reader
	Stdout io.Writer
}

// Runner executes one session. Construct per invocation.
type Runner struct {
	opts Options
	id   string
}

func New(opts Options) *Runner {
	if opts.Platform == nil {
		opts.Platform = Local{}
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return &Runner{opts: opts, id: uuid.NewString()}
}

// Run spawns the platform-wrapped bootstrap script on a fresh pty and
// multiplexes it against the local terminal (interactive) or the log
// sink (logged) until the child exits. The archive payload is delivered
// when the upload sentinel arrives on the stream.
func (r *Runner) Run(ctx context.Context) error {
	cmd := r.opts.Platform.Command(r.opts.Script)
	commandLine := strings.Join(cmd.Args, " ")

	if r.opts.Log != nil {
		r.opts.Log.Debug("spawning session",
			logger.String("session", r.id),
			logger.String("command", commandLine))
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		return errors.Wrapf(err, "runner: spawn %q", commandLine)
	}

	gate := &inputGate{dst: ptmx}
	stop := r.superviseChild(ctx, cmd)

	runErr := r.pump(ptmx, gate)

	// Closing the pty detaches the stdin copier (its next write fails)
	// and unblocks the child if it is still draining.
	gate.detach()
	_ = ptmx.Close()
	stop()

	code := waitExitCode(cmd)
	if runErr != nil {
		return runErr
	}
	if code == 0 {
		return nil
	}
	if r.opts.Policy == FailExit {
		os.Exit(code)
	}
	return &ExitError{Command: commandLine, Code: code}
}

// superviseChild kills the child when ctx is cancelled. Returns a stop
// function releasing the watcher.
func (r *Runner) superviseChild(ctx context.Context, cmd *exec.Cmd) func() {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
		case <-done:
		}
	}()
	return func() { close(done) }
}

func (r *Runner) pump(ptmx *os.File, gate *inputGate) error {
	if r.opts.Log != nil {
		return r.pumpLogged(ptmx)
	}
	return r.pumpInteractive(ptmx, gate)
}

func (r *Runner) pumpInteractive(ptmx *os.File, gate *inputGate) error {
	// Propagate local terminal dimensions on every resize, plus once up
	// front.
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	go func() {
		for range winch {
			if f, ok := r.opts.Stdin.(*os.File); ok {
				_ = pty.InheritSize(f, ptmx)
			}
		}
	}()
	winch <- syscall.SIGWINCH
	defer func() {
		signal.Stop(winch)
		close(winch)
	}()

	// Raw mode for the session; cooked mode restored on every exit path.
	if f, ok := r.opts.Stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return errors.Wrap(err, "runner: raw mode")
		}
		defer func() { _ = term.Restore(int(f.Fd()), oldState) }()
	}

	gate.openGate()
	go func() {
		_, _ = io.Copy(gate, r.opts.Stdin)
	}()

	return r.readLoop(ptmx, gate, r.opts.Stdout, nil)
}

func (r *Runner) pumpLogged(ptmx *os.File) error {
	lines := newLineLog(r.opts.Log.Lines())
	defer func() { _ = lines.Close() }()
	return r.readLoop(ptmx, nil, lines, lines)
}

// readLoop feeds every remote byte through the framer, forwards
// non-quiet bytes to display, and starts the payload write on the
// upload transition. display receives raw bytes (interactive) or is the
// line sink (logged); closer is flushed before exec output begins so
// upload-phase remnants never mix into command output.
func (r *Runner) readLoop(ptmx *os.File, gate *inputGate, display io.Writer, closer *lineLog) error {
	framer := NewFramer()
	buf := make([]byte, 4096)
	var payloadWG sync.WaitGroup
	var payloadErr error

	for {
		n, err := ptmx.Read(buf)
		for i := 0; i < n; i++ {
			b := buf[i]
			switch framer.Feed(b) {
			case StartUpload:
				if gate != nil {
					// Local keystrokes would corrupt the byte-counted
					// upload; drop them until the exec sentinel.
					gate.closeGate()
				}
				// The sentinel's leading bytes were already echoed:
				// erase the line on screen, or drop the partial line
				// from the log.
				if closer != nil {
					closer.discard()
				} else {
					_, _ = display.Write([]byte("\r\x1b[K"))
				}
				payloadWG.Add(1)
				go func() {
					defer payloadWG.Done()
					if _, werr := ptmx.Write(r.opts.Script.EncodedPayload()); werr != nil {
						payloadErr = errors.Wrap(werr, "runner: payload write")
					}
				}()
			case StartExec:
				payloadWG.Wait()
				if closer != nil {
					_ = closer.Close()
				}
				if gate != nil {
					gate.openGate()
				}
			case None:
				if !framer.Quiet() {
					_, _ = display.Write(buf[i : i+1])
				}
			}
		}
		if err != nil {
			payloadWG.Wait()
			if isExpectedPtyClose(err) {
				return payloadErr
			}
			if payloadErr != nil {
				return payloadErr
			}
			return errors.Wrap(err, "runner: read pty")
		}
	}
}

// isExpectedPtyClose reports whether err is the normal end of a pty
// stream. Linux surfaces EIO once the child side closes.
func isExpectedPtyClose(err error) bool {
	if errors.Is(err, io.EOF) {
		return true
	}
	return errors.Is(err, syscall.EIO)
}

func waitExitCode(cmd *exec.Cmd) int {
	err := cmd.Wait()
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if ws, ok := ee.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
		return ee.ExitCode()
	}
	return 1
}

// inputGate sits between local stdin and the remote pty. While closed,
// forwarded bytes are dropped; once detached, writes fail so the copier
// goroutine can never reach a finished session.
type inputGate struct {
	mu       sync.Mutex
	dst      io.Writer
	open     bool
	detached bool
}

func (g *inputGate) Write(p []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.detached {
		return 0, io.ErrClosedPipe
	}
	if !g.open {
		return len(p), nil
	}
	return g.dst.Write(p)
}

func (g *inputGate) openGate() {
	g.mu.Lock()
	g.open = true
	g.mu.Unlock()
}

func (g *inputGate) closeGate() {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
}

func (g *inputGate) detach() {
	g.mu.Lock()
	g.detached = true
	g.mu.Unlock()
}
