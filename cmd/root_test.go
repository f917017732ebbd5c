package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/lockfree"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/store"
	"github.com/heimdall-bench/heimdall/bench/sweep"
)

// benchRunner answers every command with one latency sample.
type benchRunner struct {
	calls atomic.Int64
}

func (b *benchRunner) Run(_ context.Context, c runner.Command) (*runner.Result, error) {
	b.calls.Add(1)
	return &runner.Result{Command: c, Outcome: runner.Succeeded, Stdout: "100 ns\n"}, nil
}

// withFlags points the package-level flags at a temporary workspace and
// restores them afterwards.
func withFlags(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	saved := []interface{}{workDir, resultsDir, sysfsRoot, profilesFile, targetSamples, maxRetries, retryDelay}
	t.Cleanup(func() {
		workDir = saved[0].(string)
		resultsDir = saved[1].(string)
		sysfsRoot = saved[2].(string)
		profilesFile = saved[3].(string)
		targetSamples = saved[4].(int)
		maxRetries = saved[5].(int)
		retryDelay = saved[6].(time.Duration)
	})
	workDir = dir
	resultsDir = ""
	sysfsRoot = filepath.Join(dir, "sys")
	profilesFile = ""
	return dir
}

func TestRootCmd_RegistersSubcommands(t *testing.T) {
	var names []string
	for _, c := range rootCmd.Commands() {
		names = append(names, c.Name())
	}

	for _, want := range []string{"install", "build", "run", "plot", "all", "profiles", "parse"} {
		assert.Contains(t, names, want)
	}
}

func TestListProfiles_ListsBuiltinMachines(t *testing.T) {
	cat, err := machine.DefaultCatalog()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, listProfiles(&buf, cat))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "NAME"))
	for _, name := range []string{"basic", "github-workflow", "agamotto", "titan"} {
		assert.Contains(t, out, name)
	}
	assert.Regexp(t, `github-workflow\s+true\s+2\s+same_local_DIMM`, out)
}

func TestLookupProfile_UnknownName_ReturnsErrUnknownProfile(t *testing.T) {
	withFlags(t)

	_, err := lookupProfile("no-such-machine")

	assert.ErrorIs(t, err, machine.ErrUnknownProfile)
}

func TestLookupProfile_ProfilesFlagOverridesCatalog(t *testing.T) {
	dir := withFlags(t)
	profilesFile = filepath.Join(dir, "profiles.yaml")
	require.NoError(t, os.WriteFile(profilesFile, []byte(`profiles:
  - name: lab
    constrained: true
    loop_rounds: 5
    placements:
      - {name: local, setter_core: 0, getter_core: 0, setter_node: 0, getter_node: 0, ds_node: 0}
`), 0o644))

	p, err := lookupProfile("lab")

	require.NoError(t, err)
	assert.Equal(t, 5, p.LoopRounds)
	_, err = lookupProfile("basic")
	assert.ErrorIs(t, err, machine.ErrUnknownProfile)
}

func TestRunSweep_ConstrainedProfile_MeasuresEveryTuple(t *testing.T) {
	// GIVEN the CI profile and a bench binary that always reports 100 ns
	dir := withFlags(t)
	targetSamples, maxRetries, retryDelay = 1, 0, 0
	profile, err := lookupProfile("github-workflow")
	require.NoError(t, err)
	plan, err := lockfree.DefaultSuite(dir).Plan(profile)
	require.NoError(t, err)
	tuples := len(plan.Grid.All())
	r := &benchRunner{}

	// WHEN the sweep runs
	rep, err := runSweep(context.Background(), profile, r, nil, "2025-01-01_00-00-00")

	// THEN every tuple is measured once and the run files exist
	require.NoError(t, err)
	assert.Equal(t, sweep.Done, rep.State)
	assert.Equal(t, tuples, rep.Summary.MeasuredTuples)
	assert.Equal(t, int64(tuples), r.calls.Load())
	for _, name := range []string{
		"res_github-workflow_2025-01-01_00-00-00.yaml",
		"log_github-workflow_2025-01-01_00-00-00.log",
		"meta_github-workflow_2025-01-01_00-00-00.yaml",
		"metrics_github-workflow_2025-01-01_00-00-00.prom",
	} {
		assert.FileExists(t, filepath.Join(dir, "results", name))
	}
}

func TestRunSweep_TopologyMismatch_ReturnsErrorBeforeRunning(t *testing.T) {
	// GIVEN a tuned profile and a host without NUMA information
	withFlags(t)
	profile, err := lookupProfile("agamotto")
	require.NoError(t, err)
	r := &benchRunner{}

	// WHEN the sweep starts
	_, err = runSweep(context.Background(), profile, r, nil, "ts")

	// THEN it fails without invoking anything
	assert.Error(t, err)
	assert.Zero(t, r.calls.Load())
}

func TestPlot_LatestRun_WritesFiguresAndTable(t *testing.T) {
	// GIVEN two runs on disk
	dir := t.TempDir()
	for ts, mean := range map[string]float64{"2025-01-01_00-00-00": 1e6, "2025-02-01_00-00-00": 2e6} {
		s := store.New(dir)
		require.NoError(t, s.Record(bench.Path{"queue", "boost_spsc_queue", "same_local_DIMM", "8"}, bench.Value(mean)))
		require.NoError(t, s.Flush("basic", ts))
	}

	// WHEN plotting without a timestamp
	var buf bytes.Buffer
	figDir, err := plot(&buf, dir, "basic", "")

	// THEN the latest run is rendered
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "fig_basic_2025-02-01_00-00-00"), figDir)
	data, err := os.ReadFile(filepath.Join(figDir, "queue_boost_spsc_queue.csv"))
	require.NoError(t, err)
	assert.Equal(t, "size_mb,same_local_DIMM\n8,2\n", string(data))
	assert.Contains(t, buf.String(), "2.000")
}

func TestLatestTimestamp_NoResults_ReturnsNotExist(t *testing.T) {
	_, err := latestTimestamp(t.TempDir(), "basic")

	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLatestTimestamp_MachineNamePrefix_IgnoresOtherMachines(t *testing.T) {
	// GIVEN runs of "titan" and of "titan_b", whose file names share a prefix
	dir := t.TempDir()
	for _, name := range []string{
		"res_titan_2025-01-01_00-00-00.yaml",
		"res_titan_2024-06-01_00-00-00.yaml",
		"res_titan_b_2026-01-01_00-00-00.yaml",
		"res_titan_custom.yaml",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644))
	}

	// WHEN the latest titan run is looked up
	ts, err := latestTimestamp(dir, "titan")

	// THEN only titan's own timestamps are considered
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01_00-00-00", ts)

	ts, err = latestTimestamp(dir, "titan_b")
	require.NoError(t, err)
	assert.Equal(t, "2026-01-01_00-00-00", ts)
}

func TestResults_DefaultsUnderWorkdir(t *testing.T) {
	dir := withFlags(t)

	assert.Equal(t, filepath.Join(dir, "results"), results())
	resultsDir = "/tmp/elsewhere"
	assert.Equal(t, "/tmp/elsewhere", results())
}

func TestParseCmd_CacheFlag_WritesCacheTable(t *testing.T) {
	// GIVEN a cache-test log
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "run"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run", "result.log"), []byte(
		"==========Test No.==========\nNumber of block: 8\nStride Size: 64\n"+
			"Average store time: 100 cycles, 30.5 ns\nAverage load time: 200 cycles, 60.2 ns\n"), 0o644))
	parseCache = true
	t.Cleanup(func() { parseCache = false })

	// WHEN parse runs in cache mode
	var buf bytes.Buffer
	parseCmd.SetOut(&buf)
	t.Cleanup(func() { parseCmd.SetOut(nil) })
	require.NoError(t, parseCmd.RunE(parseCmd, []string{dir}))

	// THEN the cache table is written
	assert.Contains(t, buf.String(), "1 results written")
	assert.FileExists(t, filepath.Join(dir, "parsed_cache_logs.csv"))
}
