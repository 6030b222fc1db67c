package compiler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// DefaultStderrLimit caps captured stderr; only the tail is kept.
const DefaultStderrLimit = 256 * 1024

// Output is what a finished subprocess produced
type Output struct {
	Stdout []byte
	Stderr []byte
}

// ExitError reports a subprocess that ran but exited non-zero.
type ExitError struct {
	Command *ShellCommand
	Code    int
	Stderr  []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command.Path, e.Code)
}

// Runner executes toolchain commands
type Runner interface {
	Run(ctx context.Context, c *ShellCommand) (*Output, error)
}

// ExecRunner runs commands as subprocesses
type ExecRunner struct {
	StderrLimit int

	execCommand func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// NewExecRunner creates a runner backed by os/exec
func NewExecRunner() *ExecRunner {
	return &ExecRunner{
		StderrLimit: DefaultStderrLimit,
		execCommand: exec.CommandContext,
	}
}

// Run executes c and captures its output. A non-zero exit is returned as
// *ExitError along with whatever output was captured.
func (r *ExecRunner) Run(ctx context.Context, c *ShellCommand) (*Output, error) {
	var stdout bytes.Buffer
	stderr := newTail(r.StderrLimit)

	cmd := r.execCommand(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.Env...)
	}
	cmd.Stdout = &stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	out := &Output{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &ExitError{Command: c, Code: exitErr.ExitCode(), Stderr: out.Stderr}
		}

		return out, fmt.Errorf("failed to run %s: %w", c.Path, err)
	}

	return out, nil
}

// tail keeps the last max bytes written to it
type tail struct {
	buf []byte
	max int
}

func newTail(limit int) *tail {
	if limit <= 0 {
		limit = DefaultStderrLimit
	}

	return &tail{max: limit}
}

func (t *tail) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}

	return len(p), nil
}

func (t *tail) Bytes() []byte {
	return t.buf
}
