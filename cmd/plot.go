package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/heimdall-bench/heimdall/bench/report"
	"github.com/heimdall-bench/heimdall/bench/store"
)

var plotTimestamp string // Run to plot; empty means the latest

var plotCmd = &cobra.Command{
	Use:   "plot <config>",
	Short: "Write per-structure CSV series and print a summary table for a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		profile, err := lookupProfile(args[0])
		if err != nil {
			return err
		}
		_, err = plot(cmd.OutOrStdout(), results(), profile.Name, plotTimestamp)
		return err
	},
}

// plot renders the run of machine at ts (latest when empty) and returns the
// figure directory.
func plot(out io.Writer, dir, machine, ts string) (string, error) {
	if ts == "" {
		latest, err := latestTimestamp(dir, machine)
		if err != nil {
			return "", err
		}
		ts = latest
	}
	st, err := store.Load(dir, machine, ts)
	if err != nil {
		return "", err
	}
	series, err := report.Build(st)
	if err != nil {
		return "", err
	}
	figDir := report.FigureDir(dir, machine, ts)
	paths, err := report.WriteFigures(series, figDir)
	if err != nil {
		return "", err
	}
	logrus.Infof("Wrote %d series to %s", len(paths), figDir)
	if err := report.WriteTable(out, series); err != nil {
		return "", err
	}
	return figDir, nil
}

// latestTimestamp finds the newest res_<machine>_<ts>.yaml in dir. Only
// timestamps in the run layout count, which keeps machines whose names
// extend this one (titan, titan_b) apart.
func latestTimestamp(dir, machine string) (string, error) {
	prefix := strings.TrimSuffix(store.FileName(machine, ""), ".yaml")
	matches, err := filepath.Glob(filepath.Join(dir, prefix+"*.yaml"))
	if err != nil {
		return "", err
	}
	var latest string
	var latestAt time.Time
	for _, m := range matches {
		ts := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(m), prefix), ".yaml")
		at, err := time.Parse(timestampLayout, ts)
		if err != nil {
			continue
		}
		if latest == "" || at.After(latestAt) {
			latest, latestAt = ts, at
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no results for %s in %s: %w", machine, dir, os.ErrNotExist)
	}
	return latest, nil
}

func init() {
	plotCmd.Flags().StringVar(&plotTimestamp, "timestamp", "", "Run timestamp to plot (default latest)")
}
