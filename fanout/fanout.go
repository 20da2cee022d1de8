// Package fanout executes one command on many hosts concurrently
// through a shared bastion gateway, with host-attributed output and
// all-or-nothing success semantics.
package fanout

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vcnkl/enops/gateway"
	"github.com/vcnkl/enops/logger"
	"github.com/vcnkl/enops/models"
)

// Options configures output routing. Zero value writes prefixed lines
// to this process's stdout and stderr.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Log    logger.Logger
}

// AggregateError reports every host that failed during one fan-out.
// It is raised only after all hosts have finished.
type AggregateError struct {
	Failures []models.FailedHost
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			parts = append(parts, fmt.Sprintf("%s (%v)", f.ID, f.Err))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s (exit %d)", f.ID, f.ExitCode))
	}
	return fmt.Sprintf("%d host(s) failed: %s", len(e.Failures), strings.Join(parts, ", "))
}

// Run executes command on every host concurrently. Each host's stdout
// and stderr are line-buffered independently and emitted prefixed with
// the host's label; ordering holds within one host's channel only.
// Every opened session is torn down before Run returns, all hosts run
// to completion regardless of sibling failures, and a single aggregate
// error reports every failing host.
func Run(ctx context.Context, dialer gateway.Dialer, hosts []models.Host, command string, opts Options) ([]models.ExecResult, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	tracker := &sessionTracker{}
	defer tracker.closeAll()

	var emitMu sync.Mutex
	results := make([]models.ExecResult, len(hosts))
	errs := make([]error, len(hosts))

	var wg sync.WaitGroup
	for i := range hosts {
		wg.Add(1)
		go func(i int, host models.Host) {
			defer wg.Done()
			results[i], errs[i] = runHost(ctx, dialer, tracker, host, command, opts, &emitMu)
		}(i, hosts[i])
	}
	wg.Wait()

	var failures []models.FailedHost
	for i, host := range hosts {
		if errs[i] != nil {
			failures = append(failures, models.FailedHost{ID: host.ID, ExitCode: -1, Err: errs[i]})
			continue
		}
		if results[i].Failed() {
			failures = append(failures, models.FailedHost{ID: host.ID, ExitCode: results[i].ExitCode})
			if opts.Log != nil {
				opts.Log.Error("host command failed",
					logger.String("host", host.ID),
					logger.Int("exit_code", results[i].ExitCode))
			}
		}
	}
	if len(failures) > 0 {
		return results, &AggregateError{Failures: failures}
	}
	return results, nil
}

func runHost(ctx context.Context, dialer gateway.Dialer, tracker *sessionTracker, host models.Host, command string, opts Options, emitMu *sync.Mutex) (models.ExecResult, error) {
	start := time.Now()
	result := models.ExecResult{HostID: host.ID, ExitCode: -1}

	sess, err := dialer.Open(ctx, host)
	if err != nil {
		return result, err
	}
	tracker.add(sess)

	stdout, stderr, err := sess.Start(command)
	if err != nil {
		return result, err
	}

	if opts.Log != nil {
		opts.Log.Debug("session started",
			logger.String("host", host.ID),
			logger.String("command", command))
	}

	// Failed hosts report their accumulated output; successful output
	// has already been streamed and is discarded.
	var captured bytes.Buffer
	var capMu sync.Mutex

	prefix := host.Label() + " | "
	emit := func(sink io.Writer) func([]byte) {
		return func(line []byte) {
			capMu.Lock()
			captured.Write(line)
			capMu.Unlock()

			emitMu.Lock()
			_, _ = sink.Write([]byte(prefix))
			_, _ = sink.Write(line)
			if line[len(line)-1] != '\n' {
				_, _ = sink.Write([]byte("\n"))
			}
			emitMu.Unlock()
		}
	}

	var streams sync.WaitGroup
	streams.Add(2)
	go drain(&streams, stdout, newLineBuffer(emit(opts.Stdout)))
	go drain(&streams, stderr, newLineBuffer(emit(opts.Stderr)))
	streams.Wait()

	code, waitErr := sess.Wait()
	result.Duration = time.Since(start)
	if waitErr != nil {
		return result, waitErr
	}
	result.ExitCode = code
	if code != 0 {
		capMu.Lock()
		result.Output = captured.String()
		capMu.Unlock()
	}
	return result, nil
}

func drain(wg *sync.WaitGroup, src io.Reader, lb *lineBuffer) {
	defer wg.Done()
	_, _ = io.Copy(lb, src)
	lb.Flush()
}

// sessionTracker records every opened session so cleanup holds even
// when a failure lands before all sessions finished opening. Appended
// to by multiple host goroutines.
type sessionTracker struct {
	mu       sync.Mutex
	sessions []gateway.Session
}

func (t *sessionTracker) add(s gateway.Session) {
	t.mu.Lock()
	t.sessions = append(t.sessions, s)
	t.mu.Unlock()
}

func (t *sessionTracker) closeAll() {
	t.mu.Lock()
	sessions := t.sessions
	t.sessions = nil
	t.mu.Unlock()
	for _, s := range sessions {
		_ = s.Close()
	}
}
