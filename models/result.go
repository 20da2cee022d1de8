package models

import "time"

// ExecResult is the outcome of one remote command on one host. Output is
// only retained when the command failed; successful output has already
// been streamed.
type ExecResult struct {
	HostID   string
	ExitCode int
	Output   string
	Duration time.Duration
}

func (r ExecResult) Failed() bool {
	return r.ExitCode != 0
}

type FailedHost struct {
	ID       string
	ExitCode int
	Err      error
}
