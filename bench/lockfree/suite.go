// Package lockfree plugs the lock-free data-structure benchmark into the
// sweep driver: which structures and sizes to sweep, how to invoke the
// bench binary for one tuple, and how to install and build it.
package lockfree

import (
	"fmt"
	"strconv"

	"github.com/dustin/go-humanize"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/grid"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/runner"
	"github.com/heimdall-bench/heimdall/bench/sweep"
)

// Grid dimension names, outermost first.
const (
	DimKind      = "kind"
	DimVariant   = "variant"
	DimPlacement = "placement"
	DimSize      = "size_mb"
)

// Structure is one kind of data structure and the implementations
// benchmarked for it.
type Structure struct {
	Kind     string
	Variants []string
}

// DefaultStructures are the implementations the bench binary supports
// reliably.
var DefaultStructures = []Structure{
	{Kind: "queue", Variants: []string{"boost_spsc_queue", "boost_mpmc_queue"}},
	{Kind: "map", Variants: []string{
		"folly_atomichashmap_map",
		"junction_linearmap_map",
		"junction_leapfrogmap_map",
		"libcds_michaelhashmap_map",
	}},
}

// DefaultSizesMB are the structure sizes swept, in MB.
var DefaultSizesMB = []int{8, 16, 32, 64, 128, 256, 512, 1024, 2048, 4096, 8192}

// Suite is the lock-free benchmark checked out in Dir.
type Suite struct {
	Dir        string
	Binary     string
	Structures []Structure
	SizesMB    []int
}

// DefaultSuite returns the full suite rooted at dir.
func DefaultSuite(dir string) Suite {
	return Suite{
		Dir:        dir,
		Binary:     "./bench",
		Structures: DefaultStructures,
		SizesMB:    DefaultSizesMB,
	}
}

// Grid returns kind × variant × placement × size for profile, keeping only
// variants that belong to their kind.
func (s Suite) Grid(profile machine.Profile) (*grid.Grid, error) {
	var kinds, variants []string
	owner := make(map[string]string)
	for _, st := range s.Structures {
		kinds = append(kinds, st.Kind)
		for _, v := range st.Variants {
			if k, dup := owner[v]; dup {
				return nil, fmt.Errorf("variant %q listed under both %q and %q", v, k, st.Kind)
			}
			owner[v] = st.Kind
			variants = append(variants, v)
		}
	}
	g, err := grid.New(
		grid.Strings(DimKind, kinds...),
		grid.Strings(DimVariant, variants...),
		grid.Strings(DimPlacement, profile.PlacementNames()...),
		grid.Ints(DimSize, s.SizesMB...),
	)
	if err != nil {
		return nil, err
	}
	return g.Where(func(t grid.Tuple) bool {
		return owner[t.String(DimVariant)] == t.String(DimKind)
	}), nil
}

// Command builds the bench invocation for one tuple.
func (s Suite) Command(profile machine.Profile, t grid.Tuple) (runner.Command, error) {
	name := t.String(DimPlacement)
	p, ok := profile.Placement(name)
	if !ok {
		return runner.Command{}, fmt.Errorf("profile %q has no placement %q", profile.Name, name)
	}
	size, err := t.Int(DimSize)
	if err != nil {
		return runner.Command{}, err
	}
	return runner.Command{
		Name: s.Binary,
		Dir:  s.Dir,
		Args: []string{
			"--ds_type", t.String(DimVariant),
			"--ds_size_mb", strconv.Itoa(size),
			"--loop_rounds", strconv.Itoa(profile.LoopRounds),
			"--setter_core", strconv.Itoa(p.SetterCore),
			"--getter_core", strconv.Itoa(p.GetterCore),
			"--setter_numa_node", strconv.Itoa(p.SetterNode),
			"--getter_numa_node", strconv.Itoa(p.GetterNode),
			"--ds_numa_node", strconv.Itoa(p.StructureNode),
		},
	}, nil
}

// Plan returns the sweep plan for profile.
func (s Suite) Plan(profile machine.Profile) (*sweep.Plan, error) {
	g, err := s.Grid(profile)
	if err != nil {
		return nil, err
	}
	return &sweep.Plan{
		Grid: g,
		Command: func(t grid.Tuple) (runner.Command, error) {
			return s.Command(profile, t)
		},
		Path: func(t grid.Tuple) bench.Path {
			return bench.Path{t.String(DimKind), t.String(DimVariant), t.String(DimPlacement), t.String(DimSize)}
		},
		SizeMB: func(t grid.Tuple) int {
			n, _ := t.Int(DimSize)
			return n
		},
	}, nil
}

// SizeLabel renders a size in MB for humans, e.g. "8.0 MiB" or "8.0 GiB".
func SizeLabel(mb int) string {
	return humanize.IBytes(uint64(mb) << 20)
}
