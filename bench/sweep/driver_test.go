package sweep

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/collector"
	"github.com/heimdall-bench/heimdall/bench/grid"
	"github.com/heimdall-bench/heimdall/bench/internal/testutil"
	"github.com/heimdall-bench/heimdall/bench/journal"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/metrics"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/store"
)

type fakePreparer struct {
	mu       sync.Mutex
	applied  []machine.Preparation
	reverts  int
	applyErr error
}

func (f *fakePreparer) Apply(_ context.Context, p machine.Preparation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, p)
	return f.applyErr
}

func (f *fakePreparer) Revert(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reverts++
	return nil
}

var tunedProfile = machine.Profile{
	Name:        "basic",
	LoopRounds:  1,
	Preparation: machine.Preparation{DisableNUMABalancing: true, Governor: "performance"},
	Placements:  []machine.Placement{{Name: "same_local_DIMM"}},
}

// sizePlan sweeps {size: sizes} with a command carrying the size as its
// only argument.
func sizePlan(t *testing.T, sizes ...int) *Plan {
	t.Helper()
	g, err := grid.New(grid.Ints("size", sizes...))
	require.NoError(t, err)
	return &Plan{
		Grid: g,
		Command: func(tp grid.Tuple) (runner.Command, error) {
			return runner.Command{Name: "./bench", Args: []string{tp.String("size")}}, nil
		},
		SizeMB: func(tp grid.Tuple) int {
			n, _ := tp.Int("size")
			return n
		},
	}
}

func newDriver(t *testing.T, r runner.Runner, target int, mutate ...func(*Options)) (*Driver, *store.Store) {
	t.Helper()
	s := store.New(t.TempDir())
	opts := Options{
		Machine:   "basic",
		Timestamp: "2025-01-01_00-00-00",
		Profile:   tunedProfile,
		Runner:    r,
		Policy:    collector.Policy{TargetSamples: target, MaxRetries: 2, Timeouts: collector.DefaultTimeouts},
		Store:     s,
	}
	for _, m := range mutate {
		m(&opts)
	}
	d, err := New(opts)
	require.NoError(t, err)
	return d, s
}

func TestRun_TwoSizes_EachAggregateIsMeanAfterOneInvocation(t *testing.T) {
	// GIVEN a stub that prints two samples per call and a target of two
	r := testutil.NewScriptedRunner(testutil.Ok("100 ns\n200 ns\n"))
	d, s := newDriver(t, r, 2)

	// WHEN sizes 8 and 16 are swept
	rep, err := d.Run(context.Background(), sizePlan(t, 8, 16))

	// THEN each size averages 150 after exactly one invocation
	require.NoError(t, err)
	assert.Equal(t, 2, r.Calls())
	for _, size := range []string{"8", "16"} {
		agg, ok := s.Get(bench.Path{size})
		require.True(t, ok, size)
		mean, defined := agg.Mean()
		assert.True(t, defined)
		assert.Equal(t, 150.0, mean)
	}
	assert.Equal(t, Done, rep.State)
	assert.Equal(t, Done, d.State())
	assert.Equal(t, 2, rep.Summary.MeasuredTuples)

	// AND the result file on disk holds the same values
	loaded, err := store.Load(s.Dir(), "basic", "2025-01-01_00-00-00")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.Equal(t, filepath.Join(s.Dir(), "res_basic_2025-01-01_00-00-00.yaml"), rep.ResultFile)
}

func TestRun_AlwaysFailingTuple_NoDataAndSweepCompletes(t *testing.T) {
	// GIVEN a stub failing every call for size 16 only
	r := testutil.FuncRunner(func(_ context.Context, cmd runner.Command) (*runner.Result, error) {
		if cmd.Args[0] == "16" {
			return testutil.StepResult(cmd, testutil.Fail(134, "std::bad_alloc"))
		}
		return testutil.StepResult(cmd, testutil.Ok("10 ns\n"))
	})
	d, s := newDriver(t, r, 3)

	// WHEN sizes 8, 16 and 32 are swept
	rep, err := d.Run(context.Background(), sizePlan(t, 8, 16, 32))

	// THEN 16 is no data (not zero) and the neighbours are measured
	require.NoError(t, err)
	agg, ok := s.Get(bench.Path{"16"})
	require.True(t, ok)
	assert.False(t, agg.Defined())
	for _, size := range []string{"8", "32"} {
		agg, ok := s.Get(bench.Path{size})
		require.True(t, ok)
		mean, defined := agg.Mean()
		assert.True(t, defined)
		assert.Equal(t, 10.0, mean)
	}
	assert.Equal(t, []string{"16"}, rep.Summary.Missing)

	data, err := os.ReadFile(rep.ResultFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "16: null")
}

func TestRun_PredicateRejectedTuple_NeverRuns(t *testing.T) {
	r := testutil.NewScriptedRunner(testutil.Ok("1 ns\n"))
	d, s := newDriver(t, r, 1)
	plan := sizePlan(t, 8, 16, 32)
	plan.Grid = plan.Grid.Where(func(tp grid.Tuple) bool { return tp.String("size") != "16" })

	_, err := d.Run(context.Background(), plan)

	require.NoError(t, err)
	for _, c := range r.Commands() {
		assert.NotEqual(t, "16", c.Args[0])
	}
	assert.Equal(t, 2, r.Calls())
	_, ok := s.Get(bench.Path{"16"})
	assert.False(t, ok)
}

func TestRun_AllTimeouts_RecordsAbortedNoData(t *testing.T) {
	r := testutil.NewScriptedRunner(testutil.Timeout())
	d, s := newDriver(t, r, 10)

	rep, err := d.Run(context.Background(), sizePlan(t, 512))

	require.NoError(t, err)
	assert.Equal(t, 3, r.Calls(), "max retries 2 means three attempts")
	agg, ok := s.Get(bench.Path{"512"})
	require.True(t, ok)
	assert.False(t, agg.Defined())
	assert.Equal(t, 1, rep.Summary.AbortedTuples)
	assert.Equal(t, time.Duration(0), r.Commands()[0].Timeout, "sizes above the last tier run unbounded")
}

func TestRun_CommandBuildError_RecordsNoData(t *testing.T) {
	r := testutil.NewScriptedRunner()
	d, s := newDriver(t, r, 1)
	plan := sizePlan(t, 8)
	plan.Command = func(grid.Tuple) (runner.Command, error) { return runner.Command{}, errors.New("no placement") }

	rep, err := d.Run(context.Background(), plan)

	require.NoError(t, err)
	assert.Equal(t, 0, r.Calls())
	agg, ok := s.Get(bench.Path{"8"})
	require.True(t, ok)
	assert.False(t, agg.Defined())
	require.Len(t, d.Trace().Tuples(), 1)
	assert.Contains(t, d.Trace().Tuples()[0].Reason, "no placement")
	assert.Equal(t, 1, rep.Summary.MissingTuples)
}

func TestRun_Preparation_AppliedThenReverted(t *testing.T) {
	prep := &fakePreparer{}
	r := testutil.NewScriptedRunner(testutil.Ok("1 ns\n"))
	d, _ := newDriver(t, r, 1, func(o *Options) { o.Preparer = prep })

	_, err := d.Run(context.Background(), sizePlan(t, 8))

	require.NoError(t, err)
	assert.Equal(t, []machine.Preparation{tunedProfile.Preparation}, prep.applied)
	assert.Equal(t, 1, prep.reverts)
}

func TestRun_ConstrainedProfile_SkipsPreparation(t *testing.T) {
	prep := &fakePreparer{}
	r := testutil.NewScriptedRunner(testutil.Ok("1 ns\n"))
	d, _ := newDriver(t, r, 1, func(o *Options) {
		o.Preparer = prep
		o.Profile.Constrained = true
	})

	_, err := d.Run(context.Background(), sizePlan(t, 8))

	require.NoError(t, err)
	assert.Empty(t, prep.applied)
	assert.Equal(t, 0, prep.reverts)
}

func TestRun_PreparationFails_AbortsBeforeSweeping(t *testing.T) {
	prep := &fakePreparer{applyErr: errors.New("sudo: a password is required")}
	r := testutil.NewScriptedRunner(testutil.Ok("1 ns\n"))
	d, _ := newDriver(t, r, 1, func(o *Options) { o.Preparer = prep })

	rep, err := d.Run(context.Background(), sizePlan(t, 8))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "password is required")
	assert.Equal(t, 0, r.Calls())
	assert.Equal(t, 1, prep.reverts, "partial preparation is undone")
	assert.Equal(t, Done, rep.State)
}

func TestRun_Canceled_FlushesFinishedTuplesAndReverts(t *testing.T) {
	// GIVEN a runner that cancels the sweep while the second tuple runs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := testutil.FuncRunner(func(ctx context.Context, cmd runner.Command) (*runner.Result, error) {
		if cmd.Args[0] == "16" {
			cancel()
			return &runner.Result{Command: cmd, Outcome: runner.Canceled}, ctx.Err()
		}
		return testutil.StepResult(cmd, testutil.Ok("5 ns\n"))
	})
	prep := &fakePreparer{}
	d, s := newDriver(t, r, 1, func(o *Options) { o.Preparer = prep })

	// WHEN the sweep runs
	rep, err := d.Run(ctx, sizePlan(t, 8, 16, 32))

	// THEN the context error is returned, the finished tuple is on disk and the host is restored
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Done, rep.State)
	assert.Equal(t, 1, prep.reverts)
	loaded, err := store.Load(s.Dir(), "basic", "2025-01-01_00-00-00")
	require.NoError(t, err)
	assert.Equal(t, []store.Entry{{Path: bench.Path{"8"}, Aggregate: bench.Value(5)}}, loaded.Entries())
}

func TestRun_WritesJournalMetricsAndMeta(t *testing.T) {
	dir := t.TempDir()
	j, err := journal.Open(dir, "basic", "ts")
	require.NoError(t, err)
	defer j.Close()
	m := metrics.New()
	r := testutil.NewScriptedRunner(testutil.Ok("100 ns\n200 ns\n"))
	d, err := New(Options{
		Machine:   "basic",
		Timestamp: "ts",
		Profile:   tunedProfile,
		Runner:    r,
		Policy:    collector.Policy{TargetSamples: 2, MaxRetries: 1},
		Store:     store.New(dir),
		Journal:   j,
		Metrics:   m,
		Telemetry: &machine.Telemetry{Hostname: "basic-host", LogicalCPUs: 8},
	})
	require.NoError(t, err)

	_, err = d.Run(context.Background(), sizePlan(t, 8))
	require.NoError(t, err)

	logData, err := os.ReadFile(filepath.Join(dir, "log_basic_ts.log"))
	require.NoError(t, err)
	assert.Contains(t, string(logData), `output="100 ns\n200 ns\n"`)
	assert.Contains(t, string(logData), "sweeping -> finalizing")

	promData, err := os.ReadFile(filepath.Join(dir, "metrics_basic_ts.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(promData), `heimdall_sweep_tuples_total{status="measured"} 1`)

	meta, err := LoadMeta(dir, "basic", "ts")
	require.NoError(t, err)
	assert.Equal(t, d.RunID(), meta.RunID)
	assert.Equal(t, "done", meta.State)
	assert.NotNil(t, meta.Finished)
	require.NotNil(t, meta.Summary)
	assert.Equal(t, 2, meta.Summary.Samples)
	assert.Equal(t, "basic-host", meta.Telemetry.Hostname)
	assert.Equal(t, 2, meta.Policy.TargetSamples)
}

func TestRun_Twice_ReturnsError(t *testing.T) {
	d, _ := newDriver(t, testutil.NewScriptedRunner(testutil.Ok("1 ns\n")), 1)
	_, err := d.Run(context.Background(), sizePlan(t, 8))
	require.NoError(t, err)

	_, err = d.Run(context.Background(), sizePlan(t, 8))

	assert.Error(t, err)
}

func TestNew_InvalidOptions_ReturnError(t *testing.T) {
	base := Options{
		Machine:   "m",
		Timestamp: "ts",
		Runner:    testutil.NewScriptedRunner(),
		Policy:    collector.DefaultPolicy(),
		Store:     store.New(t.TempDir()),
	}
	cases := map[string]func(*Options){
		"no machine":   func(o *Options) { o.Machine = "" },
		"no timestamp": func(o *Options) { o.Timestamp = "" },
		"no runner":    func(o *Options) { o.Runner = nil },
		"no store":     func(o *Options) { o.Store = nil },
		"bad policy":   func(o *Options) { o.Policy.TargetSamples = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			o := base
			mutate(&o)
			_, err := New(o)
			assert.Error(t, err)
		})
	}
}

func TestState_String(t *testing.T) {
	names := make([]string, 0, 5)
	for s := NotStarted; s <= Done; s++ {
		names = append(names, s.String())
	}
	assert.Equal(t, "not_started preparing sweeping finalizing done", strings.Join(names, " "))
	assert.Equal(t, "state("+strconv.Itoa(9)+")", State(9).String())
}
