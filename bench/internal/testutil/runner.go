// Package testutil provides shared test infrastructure for the heimdall
// packages: scripted command runners and float assertions.
package testutil

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/heimdall-bench/heimdall/bench/runner"
)

// Step is one scripted invocation result.
type Step struct {
	Outcome  runner.Outcome
	ExitCode int
	Stdout   string
	Stderr   string
}

// Ok is a successful invocation printing stdout.
func Ok(stdout string) Step {
	return Step{Outcome: runner.Succeeded, Stdout: stdout}
}

// Timeout is an invocation killed by its timeout.
func Timeout() Step {
	return Step{Outcome: runner.TimedOut, ExitCode: -1}
}

// Fail is an invocation that exits with code and prints stderr.
func Fail(code int, stderr string) Step {
	return Step{Outcome: runner.NonZeroExit, ExitCode: code, Stderr: stderr}
}

// NoLaunch is an invocation whose binary cannot be started.
func NoLaunch() Step {
	return Step{Outcome: runner.LaunchFailure, ExitCode: -1}
}

// ScriptedRunner replays Steps in order, repeating the last one once the
// script is exhausted. An empty script succeeds with no output. Every
// command it receives is recorded.
type ScriptedRunner struct {
	mu       sync.Mutex
	steps    []Step
	commands []runner.Command
}

// NewScriptedRunner returns a runner that replays steps.
func NewScriptedRunner(steps ...Step) *ScriptedRunner {
	return &ScriptedRunner{steps: steps}
}

// Run implements runner.Runner.
func (r *ScriptedRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	r.mu.Lock()
	n := len(r.commands)
	r.commands = append(r.commands, cmd)
	step := Ok("")
	if len(r.steps) > 0 {
		step = r.steps[min(n, len(r.steps)-1)]
	}
	r.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &runner.Result{Command: cmd, Outcome: runner.Canceled, ExitCode: -1}, err
	}
	return StepResult(cmd, step)
}

// Calls is the number of commands run so far.
func (r *ScriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.commands)
}

// Commands returns the commands run so far, in order.
func (r *ScriptedRunner) Commands() []runner.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]runner.Command(nil), r.commands...)
}

// FuncRunner adapts a function to runner.Runner.
type FuncRunner func(ctx context.Context, cmd runner.Command) (*runner.Result, error)

// Run implements runner.Runner.
func (f FuncRunner) Run(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
	return f(ctx, cmd)
}

// StepResult turns a step into the result and error the real runner would
// return for the same outcome.
func StepResult(cmd runner.Command, step Step) (*runner.Result, error) {
	res := &runner.Result{
		Command:  cmd,
		Outcome:  step.Outcome,
		ExitCode: step.ExitCode,
		Stdout:   step.Stdout,
		Stderr:   step.Stderr,
	}
	switch step.Outcome {
	case runner.Succeeded:
		return res, nil
	case runner.TimedOut:
		return res, fmt.Errorf("%w after %s", runner.ErrTimedOut, cmd.Timeout)
	case runner.LaunchFailure:
		return res, &runner.LaunchError{Name: cmd.Name, Err: fmt.Errorf("executable file not found")}
	case runner.Canceled:
		return res, context.Canceled
	default:
		return res, &runner.ExitError{Code: step.ExitCode, Stderr: step.Stderr}
	}
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
