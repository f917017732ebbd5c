package sweep

import (
	"context"
	"fmt"

	"github.com/heimdall-bench/heimdall/bench"
	"github.com/heimdall-bench/heimdall/bench/grid"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/runner"
)

// Plan says what to sweep and how to run one tuple.
type Plan struct {
	Grid *grid.Grid
	// Command builds the invocation for a tuple. An error records the
	// tuple as no data.
	Command func(grid.Tuple) (runner.Command, error)
	// Path is where the tuple's aggregate is stored. Nil uses the tuple's
	// labels.
	Path func(grid.Tuple) bench.Path
	// SizeMB selects the timeout tier. Nil means 0, the smallest tier.
	SizeMB func(grid.Tuple) int
}

func (p *Plan) validate() error {
	switch {
	case p == nil:
		return fmt.Errorf("no plan")
	case p.Grid == nil:
		return fmt.Errorf("plan has no grid")
	case p.Command == nil:
		return fmt.Errorf("plan has no command builder")
	}
	return nil
}

func (p *Plan) path(t grid.Tuple) bench.Path {
	if p.Path == nil {
		return bench.Path(t.Labels())
	}
	return p.Path(t)
}

func (p *Plan) sizeMB(t grid.Tuple) int {
	if p.SizeMB == nil {
		return 0
	}
	return p.SizeMB(t)
}

// Preparer applies host tuning before the sweep and undoes it afterwards.
type Preparer interface {
	Apply(ctx context.Context, p machine.Preparation) error
	Revert(ctx context.Context) error
}
