package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/machine"
)

var profilesCmd = &cobra.Command{
	Use:   "profiles",
	Short: "List the known machine profiles",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		return listProfiles(cmd.OutOrStdout(), cat)
	},
}

func listProfiles(w io.Writer, cat *machine.Catalog) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tCONSTRAINED\tLOOP ROUNDS\tPLACEMENTS")
	for _, name := range cat.Names() {
		p, err := cat.Lookup(name)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%t\t%d\t%s\n", p.Name, p.Constrained, p.LoopRounds, strings.Join(p.PlacementNames(), ","))
	}
	return tw.Flush()
}
