// Package report turns a stored result mapping into plot data: one CSV
// series per (kind, variant) with sizes as rows and placements as columns,
// in milliseconds, plus a terminal table.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"text/tabwriter"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/lockfree"
	"github.com/heimdall-bench/heimdall/bench/store"
)

const nsPerMs = 1e6

// FigureDir is the directory plot data for a run is written to.
func FigureDir(resultsDir, machine, timestamp string) string {
	return filepath.Join(resultsDir, fmt.Sprintf("fig_%s_%s", machine, timestamp))
}

// Series holds the results of one data-structure implementation.
type Series struct {
	Kind       string
	Variant    string
	Placements []string // column order
	Sizes      []string // row order
	values     map[string]map[string]bench.Aggregate
}

// Value returns the aggregate for a placement and size.
func (s *Series) Value(placement, size string) (bench.Aggregate, bool) {
	agg, ok := s.values[placement][size]
	return agg, ok
}

// Name is "<kind>_<variant>".
func (s *Series) Name() string {
	return s.Kind + "_" + s.Variant
}

// Build groups a kind → variant → placement → size store into series.
// Sizes are sorted numerically when they are all integers.
func Build(st *store.Store) ([]*Series, error) {
	var out []*Series
	index := make(map[string]*Series)
	err := st.Walk(func(p bench.Path, agg bench.Aggregate) error {
		if len(p) != 4 {
			return fmt.Errorf("result %s: want kind/variant/placement/size, got %d levels", p, len(p))
		}
		key := p[0] + "\x00" + p[1]
		s, ok := index[key]
		if !ok {
			s = &Series{Kind: p[0], Variant: p[1], values: make(map[string]map[string]bench.Aggregate)}
			index[key] = s
			out = append(out, s)
		}
		placement, size := p[2], p[3]
		if _, ok := s.values[placement]; !ok {
			s.values[placement] = make(map[string]bench.Aggregate)
			s.Placements = append(s.Placements, placement)
		}
		if !contains(s.Sizes, size) {
			s.Sizes = append(s.Sizes, size)
		}
		s.values[placement][size] = agg
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, s := range out {
		sortNumeric(s.Sizes)
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func sortNumeric(sizes []string) {
	nums := make(map[string]int, len(sizes))
	for _, s := range sizes {
		n, err := strconv.Atoi(s)
		if err != nil {
			return
		}
		nums[s] = n
	}
	sort.SliceStable(sizes, func(i, j int) bool { return nums[sizes[i]] < nums[sizes[j]] })
}

// milliseconds formats an aggregate in ms, empty when undefined.
func milliseconds(agg bench.Aggregate, ok bool) string {
	mean, defined := agg.Mean()
	if !ok || !defined {
		return ""
	}
	return strconv.FormatFloat(mean/nsPerMs, 'f', -1, 64)
}

// WriteCSV writes the series with a size_mb column followed by one column
// per placement.
func (s *Series) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"size_mb"}, s.Placements...)); err != nil {
		return err
	}
	for _, size := range s.Sizes {
		row := []string{size}
		for _, p := range s.Placements {
			row = append(row, milliseconds(s.Value(p, size)))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFigures writes one <kind>_<variant>.csv per series into dir and
// returns the written paths.
func WriteFigures(series []*Series, dir string) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create figure directory: %w", err)
	}
	var paths []string
	for _, s := range series {
		path := filepath.Join(dir, s.Name()+".csv")
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create %s: %w", path, err)
		}
		if err := s.WriteCSV(f); err != nil {
			f.Close()
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return paths, fmt.Errorf("close %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// WriteTable prints every series as an aligned table in milliseconds,
// with "-" for tuples without data.
func WriteTable(w io.Writer, series []*Series) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, s := range series {
		if i > 0 {
			fmt.Fprintln(tw)
		}
		fmt.Fprintf(tw, "%s / %s (ms)", s.Kind, s.Variant)
		for _, size := range s.Sizes {
			fmt.Fprintf(tw, "\t%s", sizeLabel(size))
		}
		fmt.Fprintln(tw)
		for _, p := range s.Placements {
			fmt.Fprint(tw, p)
			for _, size := range s.Sizes {
				cell := milliseconds(s.Value(p, size))
				if cell == "" {
					cell = "-"
				} else {
					v, _ := strconv.ParseFloat(cell, 64)
					cell = strconv.FormatFloat(v, 'f', 3, 64)
				}
				fmt.Fprintf(tw, "\t%s", cell)
			}
			fmt.Fprintln(tw)
		}
	}
	return tw.Flush()
}

func sizeLabel(size string) string {
	mb, err := strconv.Atoi(size)
	if err != nil || mb < 0 {
		return size
	}
	return lockfree.SizeLabel(mb)
}
