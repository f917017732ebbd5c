package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/runner"
)

var allCmd = &cobra.Command{
	Use:   "all <config>",
	Short: "Install, build, run and plot in one go",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := lookupProfile(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		r := runner.NewExec()
		r.Echo = echoCommands
		if err := install(ctx, r); err != nil {
			return err
		}
		if err := build(ctx, r); err != nil {
			return err
		}
		ts := runTimestamp
		if ts == "" {
			ts = newTimestamp()
		}
		if _, err := runSweep(ctx, profile, r, machine.NewHostPreparer(r), ts); err != nil {
			return err
		}
		if _, err := plot(cmd.OutOrStdout(), results(), profile.Name, ts); err != nil {
			return err
		}
		logrus.Infof("All steps finished for %s", profile.Name)
		return nil
	},
}

func init() {
	addRunFlags(allCmd)
}
