package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/machine"
)

// timestampLayout names result, log and figure files of one run.
const timestampLayout = "2006-01-02_15-04-05"

var (
	logLevel     string // Log verbosity level
	profilesFile string // Machine profile catalog overriding the built-in one
	workDir      string // Checkout of the lock-free benchmark
	resultsDir   string // Where result, log, meta and figure files go
	sysfsRoot    string // sysfs mount used for topology and telemetry
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "heimdall",
	Short:         "Benchmark sweeps for lock-free data structures across NUMA and CXL memory placements",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level: %s", logLevel)
		}
		logrus.SetLevel(level)
		return nil
	},
}

// Execute runs the root command and exits non-zero on failure. An
// interrupt cancels the command's context so a running sweep can flush and
// restore the machine before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// loadCatalog returns the --profiles catalog, or the built-in one.
func loadCatalog() (*machine.Catalog, error) {
	if profilesFile != "" {
		return machine.LoadCatalogFile(profilesFile)
	}
	return machine.DefaultCatalog()
}

// lookupProfile resolves a config argument ("auto" means this host) to a
// validated profile.
func lookupProfile(name string) (machine.Profile, error) {
	cat, err := loadCatalog()
	if err != nil {
		return machine.Profile{}, err
	}
	return cat.Lookup(name)
}

// results returns the results directory, defaulting to <workdir>/results.
func results() string {
	if resultsDir != "" {
		return resultsDir
	}
	return filepath.Join(workDir, "results")
}

func newTimestamp() string {
	return time.Now().Format(timestampLayout)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "info", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&profilesFile, "profiles", "", "Machine profile catalog (YAML); defaults to the built-in profiles")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "benchmark/lockfree_bench", "Lock-free benchmark checkout")
	rootCmd.PersistentFlags().StringVar(&resultsDir, "results-dir", "", "Results directory (default <workdir>/results)")
	rootCmd.PersistentFlags().StringVar(&sysfsRoot, "sysfs", "/sys", "sysfs mount point")

	rootCmd.AddCommand(installCmd, buildCmd, runCmd, plotCmd, allCmd, profilesCmd, parseCmd)
}
