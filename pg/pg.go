// Package pg wraps the postgres client tools used during database
// restores. It shells out to pg_restore and psql rather than speaking
// the wire protocol; the target is whatever DATABASE_URL points at.
package pg

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bitfield/script"
	"github.com/pkg/errors"

	"github.com/vcnkl/enops/bootstrap"
	"github.com/vcnkl/enops/logger"
)

type Options struct {
	Stdout  io.Writer
	Stderr  io.Writer
	Log     logger.Logger
	Timeout time.Duration
}

// Restore loads a custom-format dump into dbURL. Existing objects are
// dropped first and ownership is not carried over, matching a restore
// into a managed database where the dump's roles do not exist.
func Restore(ctx context.Context, dbURL, dumpPath string, opts Options) error {
	if _, err := os.Stat(dumpPath); err != nil {
		return errors.Wrapf(err, "dump file %s", dumpPath)
	}

	cmd := fmt.Sprintf("pg_restore --clean --if-exists --no-acl --no-owner -d %s %s",
		bootstrap.Quote(dbURL), bootstrap.Quote(dumpPath))

	if opts.Log != nil {
		opts.Log.Info("restoring database", logger.String("dump", dumpPath))
	}
	return run(ctx, cmd, opts)
}

// DropConnections terminates every other session on the database so a
// restore's drop phase cannot deadlock behind them.
func DropConnections(ctx context.Context, dbURL string, opts Options) error {
	const stmt = "SELECT pg_terminate_backend(pid) FROM pg_stat_activity " +
		"WHERE pid <> pg_backend_pid() AND datname = current_database()"
	cmd := fmt.Sprintf("psql %s -c %s", bootstrap.Quote(dbURL), bootstrap.Quote(stmt))
	return run(ctx, cmd, opts)
}

func run(ctx context.Context, cmd string, opts Options) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		pipe := script.Exec(cmd).WithStdout(opts.Stdout).WithStderr(opts.Stderr)
		_, err := pipe.Stdout()
		if status := pipe.ExitStatus(); err == nil && status != 0 {
			err = errors.Errorf("command exited with status %d", status)
		}
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}
