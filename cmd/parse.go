package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/logparse"
)

var parseCache bool // Parse cache-test logs instead of bandwidth/latency logs

var parseCmd = &cobra.Command{
	Use:   "parse <dir>",
	Short: "Tabulate result.log files below dir as CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		parse := logparse.ParseDir
		if parseCache {
			parse = logparse.ParseCacheDir
		}
		out, n, err := parse(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d results written to %s\n", n, out)
		return nil
	},
}

func init() {
	parseCmd.Flags().BoolVar(&parseCache, "cache", false, "Parse pointer-chasing cache test logs")
}
