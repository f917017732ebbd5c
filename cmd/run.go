package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/collector"
	"github.com/heimdall-bench/heimdall/bench/journal"
	"github.com/heimdall-bench/heimdall/bench/lockfree"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/metrics"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/store"
	"github.com/heimdall-bench/heimdall/bench/sweep"
)

var (
	runTimestamp  string        // Run timestamp; empty means now
	targetSamples int           // Samples to collect per tuple
	maxRetries    int           // Timeouts tolerated per tuple
	retryDelay    time.Duration // Pause after a timed-out invocation
	echoCommands  bool          // Log every command line at info level
)

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Sweep the lock-free benchmark over the profile's placements and sizes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := lookupProfile(args[0])
		if err != nil {
			return err
		}
		r := runner.NewExec()
		r.Echo = echoCommands
		ts := runTimestamp
		if ts == "" {
			ts = newTimestamp()
		}
		_, err = runSweep(cmd.Context(), profile, r, machine.NewHostPreparer(r), ts)
		return err
	},
}

// sweepPolicy applies the run flags to the default policy.
func sweepPolicy() collector.Policy {
	p := collector.DefaultPolicy()
	p.TargetSamples = targetSamples
	p.MaxRetries = maxRetries
	p.RetryDelay = retryDelay
	return p
}

// runSweep checks the host against profile and runs the full lock-free
// sweep, leaving res_, log_, meta_ and metrics_ files in the results
// directory.
func runSweep(ctx context.Context, profile machine.Profile, r runner.Runner, prep sweep.Preparer, ts string) (*sweep.Report, error) {
	if !profile.Constrained {
		topo, err := machine.ReadTopology(sysfsRoot)
		if err != nil {
			return nil, err
		}
		if err := topo.Check(profile); err != nil {
			return nil, fmt.Errorf("profile %s does not match this host: %w", profile.Name, err)
		}
	}

	dir := results()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create results directory: %w", err)
	}
	plan, err := lockfree.DefaultSuite(workDir).Plan(profile)
	if err != nil {
		return nil, err
	}

	j, err := journal.Open(dir, profile.Name, ts)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	telemetry, err := machine.CaptureTelemetry(ctx, sysfsRoot)
	if err != nil {
		logrus.Warnf("Telemetry unavailable: %v", err)
	} else {
		logrus.Infof("Host: %s", telemetry)
	}

	d, err := sweep.New(sweep.Options{
		Machine:   profile.Name,
		Timestamp: ts,
		Profile:   profile,
		Runner:    r,
		Policy:    sweepPolicy(),
		Store:     store.New(dir),
		Preparer:  prep,
		Journal:   j,
		Metrics:   metrics.New(),
		Telemetry: telemetry,
	})
	if err != nil {
		return nil, err
	}
	logrus.Infof("Run %s on %s, %d tuples", d.RunID(), profile.Name, plan.Grid.Size())

	rep, err := d.Run(ctx, plan)
	if rep != nil && rep.Summary != nil {
		logrus.Infof("Sweep %s after %s: %d measured, %d without data (%d aborted), %d attempts",
			rep.State, rep.Elapsed.Round(time.Second), rep.Summary.MeasuredTuples,
			rep.Summary.MissingTuples, rep.Summary.AbortedTuples, rep.Summary.TotalAttempts)
		logrus.Infof("Results: %s", rep.ResultFile)
	}
	return rep, err
}

func addRunFlags(cmd *cobra.Command) {
	def := collector.DefaultPolicy()
	cmd.Flags().StringVar(&runTimestamp, "timestamp", "", "Run timestamp used in file names (default now, "+timestampLayout+")")
	cmd.Flags().IntVar(&targetSamples, "samples", def.TargetSamples, "Samples to collect per configuration")
	cmd.Flags().IntVar(&maxRetries, "max-retries", def.MaxRetries, "Timeouts tolerated per configuration before giving up")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", def.RetryDelay, "Pause after a timed-out invocation")
	cmd.Flags().BoolVar(&echoCommands, "echo", false, "Log every command line")
}

func init() {
	addRunFlags(runCmd)
}
