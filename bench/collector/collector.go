// Package collector turns repeated benchmark invocations into samples for
// one parameter tuple. Successful runs contribute their "<n> ns" lines,
// timeouts are retried up to a limit, and other failures count toward the
// target so a persistently broken binary cannot stall the sweep.
package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/trace"
)

// AttemptRecorder observes every invocation.
type AttemptRecorder interface {
	RecordAttempt(trace.AttemptRecord)
}

// Collection is the outcome of collecting one tuple.
type Collection struct {
	Samples     []float64
	Invocations int
	Progress    int
	Retries     int // timeouts observed
	Failures    int // invocations that failed without timing out
	Aborted     bool
	AbortReason string
}

// Aggregate is the mean of all collected samples, or NoData.
func (c *Collection) Aggregate() bench.Aggregate {
	return bench.Mean(c.Samples)
}

// Collector runs the retry loop.
type Collector struct {
	runner    runner.Runner
	policy    Policy
	recorders []AttemptRecorder
}

// New returns a collector running commands through r.
func New(r runner.Runner, policy Policy, recorders ...AttemptRecorder) *Collector {
	return &Collector{runner: r, policy: policy, recorders: recorders}
}

// Policy returns the collector's policy.
func (c *Collector) Policy() Policy {
	return c.policy
}

// Collect invokes cmd until TargetSamples progress is made or more than
// MaxRetries timeouts occurred. The timeout comes from the policy's tier for
// sizeMB. The only error returned is the context's; benchmark failures are
// reported in the Collection.
func (c *Collector) Collect(ctx context.Context, tuple []string, cmd runner.Command, sizeMB int) (*Collection, error) {
	cmd.Timeout = c.policy.Timeouts.For(sizeMB)
	col := &Collection{}

	for col.Progress < c.policy.TargetSamples && col.Retries <= c.policy.MaxRetries {
		if err := ctx.Err(); err != nil {
			return col, err
		}

		res, err := c.runner.Run(ctx, cmd)
		if res == nil {
			res = &runner.Result{Command: cmd, ExitCode: -1}
		}
		col.Invocations++
		rec := trace.AttemptRecord{
			Tuple:    tuple,
			Attempt:  col.Invocations,
			Target:   c.policy.TargetSamples,
			Command:  cmd.String(),
			Outcome:  res.Outcome.String(),
			Stdout:   res.Stdout,
			Stderr:   res.Stderr,
			Duration: res.Duration,
		}
		if err != nil {
			rec.Err = err.Error()
		}

		timedOut := false
		switch {
		case err == nil:
			samples := ExtractSamples(res.Stdout)
			col.Samples = append(col.Samples, samples...)
			rec.Samples = samples
			col.Progress += max(1, len(samples))
		case errors.Is(err, runner.ErrTimedOut):
			timedOut = true
			col.Retries++
			logrus.Warnf("%v: attempt %d timed out (%d/%d retries)", tuple, col.Invocations, col.Retries, c.policy.MaxRetries)
			if col.Retries > c.policy.MaxRetries {
				col.Aborted = true
				col.AbortReason = fmt.Sprintf("gave up after %d timeouts", col.Retries)
				logrus.Errorf("%v: %s", tuple, col.AbortReason)
			}
		case ctx.Err() != nil:
			rec.Progress, rec.Retries = col.Progress, col.Retries
			c.record(rec)
			return col, ctx.Err()
		default:
			col.Failures++
			col.Progress++
			logrus.Warnf("%v: attempt %d failed: %v", tuple, col.Invocations, err)
		}

		rec.Progress, rec.Retries = col.Progress, col.Retries
		c.record(rec)
		logrus.Debugf("%v: progress %d/%d", tuple, col.Progress, c.policy.TargetSamples)

		if timedOut && !col.Aborted && c.policy.RetryDelay > 0 {
			if err := sleep(ctx, c.policy.RetryDelay); err != nil {
				return col, err
			}
		}
	}
	return col, nil
}

func (c *Collector) record(rec trace.AttemptRecord) {
	for _, r := range c.recorders {
		r.RecordAttempt(rec)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
