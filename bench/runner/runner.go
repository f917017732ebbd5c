// Package runner executes external commands on behalf of the sweep. Each
// call runs one process, optionally under sudo and a timeout, and reports
// whether it succeeded, timed out, exited non-zero, or could not start.
// Retry policy belongs to the caller.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Outcome classifies how a command invocation ended.
type Outcome int

const (
	// Succeeded means the process exited with status 0.
	Succeeded Outcome = iota
	// TimedOut means the process was killed after exceeding its timeout.
	TimedOut
	// NonZeroExit means the process completed with a failure status.
	NonZeroExit
	// LaunchFailure means the process could not be started.
	LaunchFailure
	// Canceled means the caller's context ended the process.
	Canceled
)

var outcomeNames = map[Outcome]string{
	Succeeded:     "succeeded",
	TimedOut:      "timed_out",
	NonZeroExit:   "non_zero_exit",
	LaunchFailure: "launch_failure",
	Canceled:      "canceled",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ErrTimedOut is returned when a command exceeds its timeout.
var ErrTimedOut = errors.New("command timed out")

// ExitError reports a process that ran to completion with a failure status.
type ExitError struct {
	Code   int
	Stderr string
}

func (e *ExitError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return fmt.Sprintf("exit status %d: %s", e.Code, msg)
}

// LaunchError reports a command that could not be started.
type LaunchError struct {
	Name string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s: %v", e.Name, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Command describes one process invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string        // working directory; empty means the current one
	Env     []string      // extra KEY=VALUE pairs appended to the environment
	Sudo    bool          // run under the elevated-privilege wrapper
	Timeout time.Duration // 0 means unbounded
}

// Shell returns a command that runs script with `sh -c`.
func Shell(script string) Command {
	return Command{Name: "sh", Args: []string{"-c", script}}
}

// String renders the command line as it would be typed.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+2)
	if c.Sudo {
		parts = append(parts, "sudo")
	}
	parts = append(parts, c.Name)
	for _, a := range c.Args {
		if strings.ContainsAny(a, " \t'\"|;&$") {
			a = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}

// WithTimeout returns a copy of c with the given timeout.
func (c Command) WithTimeout(d time.Duration) Command {
	c.Timeout = d
	return c
}

// Result carries everything observed about one invocation. It is returned
// for every outcome, including failures, so output stays available for
// diagnostics.
type Result struct {
	Command  Command
	Outcome  Outcome
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Exec runs commands as local processes.
type Exec struct {
	// SudoPassword is written to sudo's stdin when set.
	SudoPassword string
	// Echo logs each command line at info level before running it.
	Echo bool
}

// NewExec returns an Exec runner that takes its sudo password from
// HEIMDALL_SUDO_PASSWORD, falling back to USER_PASSWORD.
func NewExec() *Exec {
	pw := os.Getenv("HEIMDALL_SUDO_PASSWORD")
	if pw == "" {
		pw = os.Getenv("USER_PASSWORD")
	}
	return &Exec{SudoPassword: pw}
}

// Run starts cmd and waits for it. The process group is killed when the
// timeout elapses or ctx is done.
func (e *Exec) Run(ctx context.Context, c Command) (*Result, error) {
	res := &Result{Command: c, ExitCode: -1}
	if err := ctx.Err(); err != nil {
		res.Outcome = Canceled
		return res, err
	}

	name, args := c.Name, c.Args
	var stdin string
	if c.Sudo && os.Geteuid() != 0 {
		args = append([]string{"-S", "-p", "", name}, args...)
		name = "sudo"
		if e.SudoPassword != "" {
			stdin = e.SudoPassword + "\n"
		}
	}

	cmd := exec.Command(name, args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	// output pipes held open by orphaned grandchildren must not block Wait
	cmd.WaitDelay = time.Second
	setProcessGroup(cmd)

	if e.Echo {
		logrus.Info(c.String())
	} else {
		logrus.Debug(c.String())
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		res.Outcome = LaunchFailure
		res.Duration = time.Since(start)
		return res, &LaunchError{Name: c.Name, Err: err}
	}

	var timedOut atomic.Bool
	if c.Timeout > 0 {
		timer := time.AfterFunc(c.Timeout, func() {
			timedOut.Store(true)
			killProcessGroup(cmd)
		})
		defer timer.Stop()
	}
	stop := context.AfterFunc(ctx, func() { killProcessGroup(cmd) })
	defer stop()

	waitErr := cmd.Wait()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	switch {
	case timedOut.Load():
		res.Outcome = TimedOut
		return res, fmt.Errorf("%w after %s", ErrTimedOut, c.Timeout)
	case ctx.Err() != nil:
		res.Outcome = Canceled
		return res, ctx.Err()
	case waitErr == nil:
		res.Outcome = Succeeded
		return res, nil
	default:
		res.Outcome = NonZeroExit
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return res, &ExitError{Code: res.ExitCode, Stderr: res.Stderr}
		}
		return res, fmt.Errorf("wait %s: %w", c.Name, waitErr)
	}
}
