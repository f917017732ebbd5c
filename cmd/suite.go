package cmd

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/lockfree"
	"github.com/heimdall-bench/heimdall/bench/runner"
)

var installCmd = &cobra.Command{
	Use:   "install <config>",
	Short: "Fetch and build the benchmark's third-party libraries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := lookupProfile(args[0]); err != nil {
			return err
		}
		return install(cmd.Context(), runner.NewExec())
	},
}

var buildCmd = &cobra.Command{
	Use:   "build <config>",
	Short: "Compile the benchmark binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := lookupProfile(args[0]); err != nil {
			return err
		}
		return build(cmd.Context(), runner.NewExec())
	},
}

func install(ctx context.Context, r runner.Runner) error {
	suite := lockfree.DefaultSuite(workDir)
	logrus.Infof("Installing lock-free benchmark dependencies in %s", workDir)
	if err := lockfree.RunSteps(ctx, r, suite.Dir, suite.InstallSteps()); err != nil {
		return err
	}
	logrus.Info("Install finished")
	return nil
}

func build(ctx context.Context, r runner.Runner) error {
	suite := lockfree.DefaultSuite(workDir)
	logrus.Infof("Building lock-free benchmark in %s", workDir)
	if err := lockfree.RunSteps(ctx, r, suite.Dir, suite.BuildSteps()); err != nil {
		return err
	}
	logrus.Info("Build finished")
	return nil
}
