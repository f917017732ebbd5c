// Package sweep drives a benchmark sweep through its lifecycle: prepare
// the host, collect every valid parameter tuple one at a time, checkpoint
// the result file after each tuple, and restore the host at the end.
//
// A tuple that yields no samples is recorded as no data and the sweep moves
// on; only cancellation, host preparation and result-file failures stop it.
package sweep

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/collector"
	"github.com/heimdall-bench/heimdall/bench/grid"
	"github.com/heimdall-bench/heimdall/bench/journal"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/metrics"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/store"
	"github.com/heimdall-bench/heimdall/bench/trace"
)

// Options configures a Driver.
type Options struct {
	Machine   string
	Timestamp string
	Profile   machine.Profile
	Runner    runner.Runner
	Policy    collector.Policy
	Store     *store.Store

	// Preparer applies Profile.Preparation; nil skips preparation.
	Preparer  Preparer
	Journal   *journal.Journal
	Metrics   *metrics.SweepMetrics
	Telemetry *machine.Telemetry
}

// Report is what a finished (or interrupted) sweep hands back.
type Report struct {
	RunID      string
	State      State
	Summary    *trace.TraceSummary
	ResultFile string
	Elapsed    time.Duration
}

// Driver runs one sweep. It is not reusable.
type Driver struct {
	opts      Options
	collector *collector.Collector
	trace     *trace.SweepTrace
	runID     string

	mu       sync.Mutex
	state    State
	prepared bool
	started  time.Time
}

// New validates opts and returns a driver in the NotStarted state.
func New(opts Options) (*Driver, error) {
	switch {
	case opts.Machine == "":
		return nil, fmt.Errorf("sweep: machine name is required")
	case opts.Timestamp == "":
		return nil, fmt.Errorf("sweep: timestamp is required")
	case opts.Runner == nil:
		return nil, fmt.Errorf("sweep: runner is required")
	case opts.Store == nil:
		return nil, fmt.Errorf("sweep: result store is required")
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}

	st := trace.NewSweepTrace()
	recorders := []collector.AttemptRecorder{st}
	if opts.Journal != nil {
		recorders = append(recorders, opts.Journal)
	}
	if opts.Metrics != nil {
		recorders = append(recorders, opts.Metrics)
	}
	return &Driver{
		opts:      opts,
		collector: collector.New(opts.Runner, opts.Policy, recorders...),
		trace:     st,
		runID:     uuid.NewString(),
	}, nil
}

// RunID identifies this sweep in the metadata file.
func (d *Driver) RunID() string {
	return d.runID
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Trace returns the attempt and tuple records collected so far.
func (d *Driver) Trace() *trace.SweepTrace {
	return d.trace
}

func (d *Driver) transition(to State) {
	d.mu.Lock()
	from := d.state
	d.state = to
	d.mu.Unlock()
	logrus.Debugf("sweep %s: %s -> %s", d.runID, from, to)
	d.opts.Journal.Event("sweep %s: %s -> %s", d.runID, from, to)
}

// Run executes plan. It returns the context's error if the sweep was
// interrupted; the result file then holds every tuple finished so far.
func (d *Driver) Run(ctx context.Context, plan *Plan) (*Report, error) {
	if err := plan.validate(); err != nil {
		return nil, fmt.Errorf("sweep: %w", err)
	}
	d.mu.Lock()
	if d.state != NotStarted {
		d.mu.Unlock()
		return nil, fmt.Errorf("sweep: driver already ran (state %s)", d.state)
	}
	d.started = time.Now()
	d.mu.Unlock()

	d.transition(Preparing)
	if err := d.prepare(ctx); err != nil {
		d.transition(Done)
		return d.report(), err
	}
	if err := d.writeMeta(nil); err != nil {
		logrus.Warnf("sweep: %v", err)
	}

	d.transition(Sweeping)
	sweepErr := d.sweep(ctx, plan)

	d.transition(Finalizing)
	var result *multierror.Error
	if sweepErr != nil {
		result = multierror.Append(result, sweepErr)
	}
	// cleanup must still run after cancellation
	if err := d.finalize(context.WithoutCancel(ctx)); err != nil {
		result = multierror.Append(result, err)
	}
	d.transition(Done)
	if err := d.writeMeta(d.report().Summary); err != nil {
		logrus.Warnf("sweep: %v", err)
	}

	rep := d.report()
	if result == nil {
		return rep, nil
	}
	if sweepErr != nil && len(result.Errors) == 1 {
		return rep, sweepErr
	}
	return rep, result
}

func (d *Driver) prepare(ctx context.Context) error {
	prep := d.opts.Profile.Preparation
	switch {
	case d.opts.Preparer == nil || prep.IsZero():
		return nil
	case d.opts.Profile.Constrained:
		logrus.Infof("profile %s is constrained, skipping host preparation", d.opts.Profile.Name)
		return nil
	}
	logrus.Infof("preparing host: %+v", prep)
	if err := d.opts.Preparer.Apply(ctx, prep); err != nil {
		var result *multierror.Error
		result = multierror.Append(result, fmt.Errorf("prepare host: %w", err))
		if rerr := d.opts.Preparer.Revert(context.WithoutCancel(ctx)); rerr != nil {
			result = multierror.Append(result, fmt.Errorf("revert partial preparation: %w", rerr))
		}
		return result.ErrorOrNil()
	}
	d.mu.Lock()
	d.prepared = true
	d.mu.Unlock()
	return nil
}

func (d *Driver) sweep(ctx context.Context, plan *Plan) error {
	for t := range plan.Grid.Tuples() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.runTuple(ctx, plan, t); err != nil {
			return err
		}
		if err := d.Checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

// runTuple collects and records one tuple. Benchmark failures are recorded
// as no data; the returned error stops the sweep.
func (d *Driver) runTuple(ctx context.Context, plan *Plan, t grid.Tuple) error {
	path := plan.path(t)
	rec := trace.TupleRecord{Path: path.String()}
	agg := bench.NoData

	cmd, err := plan.Command(t)
	if err != nil {
		rec.Reason = fmt.Sprintf("build command: %v", err)
		logrus.Errorf("%s: %s", path, rec.Reason)
	} else {
		col, err := d.collector.Collect(ctx, t.Labels(), cmd, plan.sizeMB(t))
		if err != nil {
			// interrupted tuples are not recorded
			return err
		}
		agg = col.Aggregate()
		rec.Invocations = col.Invocations
		rec.Samples = len(col.Samples)
		rec.Aborted = col.Aborted
		switch {
		case col.Aborted:
			rec.Reason = col.AbortReason
		case !agg.Defined():
			rec.Reason = fmt.Sprintf("no samples in %d invocations (%d failed)", col.Invocations, col.Failures)
		}
	}

	if err := d.opts.Store.Record(path, agg); err != nil {
		return err
	}
	rec.Mean, rec.Defined = agg.Mean()
	if rec.Defined {
		logrus.Infof("%s: %s ns", path, agg)
	} else {
		logrus.Warnf("%s: no data: %s", path, rec.Reason)
	}
	d.trace.RecordTuple(rec)
	d.opts.Journal.RecordTuple(rec)
	d.opts.Metrics.RecordTuple(rec)
	return nil
}

// Checkpoint persists the results collected so far, and the metrics when
// they are enabled.
func (d *Driver) Checkpoint() error {
	if err := d.opts.Store.Flush(d.opts.Machine, d.opts.Timestamp); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if d.opts.Metrics != nil {
		path := filepath.Join(d.opts.Store.Dir(), MetricsFileName(d.opts.Machine, d.opts.Timestamp))
		if err := d.opts.Metrics.WriteTextfile(path); err != nil {
			return fmt.Errorf("checkpoint metrics: %w", err)
		}
	}
	return nil
}

func (d *Driver) finalize(ctx context.Context) error {
	var result *multierror.Error
	if err := d.Checkpoint(); err != nil {
		result = multierror.Append(result, err)
	}
	d.mu.Lock()
	prepared := d.prepared
	d.mu.Unlock()
	if prepared {
		logrus.Info("restoring host settings")
		if err := d.opts.Preparer.Revert(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("revert host preparation: %w", err))
		} else {
			d.mu.Lock()
			d.prepared = false
			d.mu.Unlock()
		}
	}
	return result.ErrorOrNil()
}

func (d *Driver) report() *Report {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &Report{
		RunID:      d.runID,
		State:      d.state,
		Summary:    trace.Summarize(d.trace),
		ResultFile: d.opts.Store.FilePath(d.opts.Machine, d.opts.Timestamp),
		Elapsed:    time.Since(d.started),
	}
}

func (d *Driver) writeMeta(summary *trace.TraceSummary) error {
	d.mu.Lock()
	m := &Meta{
		RunID:     d.runID,
		Machine:   d.opts.Machine,
		Timestamp: d.opts.Timestamp,
		State:     d.state.String(),
		Started:   d.started,
		Profile:   d.opts.Profile,
		Policy:    d.opts.Policy,
		Telemetry: d.opts.Telemetry,
	}
	d.mu.Unlock()
	if summary != nil {
		now := time.Now()
		m.Finished = &now
		m.Summary = newMetaSummary(summary)
	}
	return writeMeta(d.opts.Store.Dir(), m)
}
