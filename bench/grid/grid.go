// Package grid generates the parameter tuples of a benchmark sweep: the
// Cartesian product of named dimensions, rightmost dimension fastest,
// optionally filtered by validity predicates.
package grid

import (
	"fmt"
	"iter"
	"strconv"
)

// Dimension is a named sweep axis. The order of Values is the iteration
// order and the downstream plot axis order.
type Dimension struct {
	Name   string
	Values []interface{}
}

// Strings builds a dimension of string values.
func Strings(name string, values ...string) Dimension {
	d := Dimension{Name: name, Values: make([]interface{}, len(values))}
	for i, v := range values {
		d.Values[i] = v
	}
	return d
}

// Ints builds a dimension of integer values.
func Ints(name string, values ...int) Dimension {
	d := Dimension{Name: name, Values: make([]interface{}, len(values))}
	for i, v := range values {
		d.Values[i] = v
	}
	return d
}

// Predicate reports whether a tuple is a valid combination. Tuples for
// which a predicate returns false are skipped.
type Predicate func(Tuple) bool

// Grid is an immutable description of a sweep's parameter space.
type Grid struct {
	dims       []Dimension
	names      map[string]int
	predicates []Predicate
}

// New validates dims and returns a grid over them. At least one dimension
// is required, names must be unique, and every dimension needs at least one
// value with no duplicates.
func New(dims ...Dimension) (*Grid, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("grid: at least one dimension is required")
	}
	names := make(map[string]int, len(dims))
	for i, d := range dims {
		if d.Name == "" {
			return nil, fmt.Errorf("grid: dimension %d has no name", i)
		}
		if _, dup := names[d.Name]; dup {
			return nil, fmt.Errorf("grid: duplicate dimension %q", d.Name)
		}
		if len(d.Values) == 0 {
			return nil, fmt.Errorf("grid: dimension %q has no values", d.Name)
		}
		seen := make(map[interface{}]bool, len(d.Values))
		for _, v := range d.Values {
			if !isComparable(v) {
				return nil, fmt.Errorf("grid: dimension %q has unsupported value type %T", d.Name, v)
			}
			if seen[v] {
				return nil, fmt.Errorf("grid: dimension %q has duplicate value %v", d.Name, v)
			}
			seen[v] = true
		}
		names[d.Name] = i
	}
	copied := make([]Dimension, len(dims))
	copy(copied, dims)
	return &Grid{dims: copied, names: names}, nil
}

func isComparable(v interface{}) bool {
	switch v.(type) {
	case string, int, int64, uint, uint64, float64, bool:
		return true
	}
	return false
}

// Where returns a copy of the grid that additionally skips tuples rejected
// by pred.
func (g *Grid) Where(pred Predicate) *Grid {
	preds := make([]Predicate, 0, len(g.predicates)+1)
	preds = append(preds, g.predicates...)
	preds = append(preds, pred)
	return &Grid{dims: g.dims, names: g.names, predicates: preds}
}

// Dimensions returns the dimension names in iteration order.
func (g *Grid) Dimensions() []string {
	names := make([]string, len(g.dims))
	for i, d := range g.dims {
		names[i] = d.Name
	}
	return names
}

// Size is the number of tuples in the unfiltered product.
func (g *Grid) Size() int {
	n := 1
	for _, d := range g.dims {
		n *= len(d.Values)
	}
	return n
}

// Tuples yields every valid tuple, rightmost dimension fastest. The
// sequence is deterministic and may be iterated any number of times.
func (g *Grid) Tuples() iter.Seq[Tuple] {
	return func(yield func(Tuple) bool) {
		idx := make([]int, len(g.dims))
		for {
			t := g.tuple(idx)
			if g.accepts(t) && !yield(t) {
				return
			}
			// odometer increment, last dimension first
			i := len(idx) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(g.dims[i].Values) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// All materialises Tuples.
func (g *Grid) All() []Tuple {
	var out []Tuple
	for t := range g.Tuples() {
		out = append(out, t)
	}
	return out
}

func (g *Grid) tuple(idx []int) Tuple {
	values := make([]interface{}, len(idx))
	for i, j := range idx {
		values[i] = g.dims[i].Values[j]
	}
	return Tuple{grid: g, values: values}
}

func (g *Grid) accepts(t Tuple) bool {
	for _, p := range g.predicates {
		if !p(t) {
			return false
		}
	}
	return true
}

// Tuple is one concrete assignment of a value to every dimension.
type Tuple struct {
	grid   *Grid
	values []interface{}
}

// Value returns the value of the named dimension, or nil if the grid has
// no such dimension.
func (t Tuple) Value(name string) interface{} {
	i, ok := t.grid.names[name]
	if !ok {
		return nil
	}
	return t.values[i]
}

// String returns the named dimension's value as a string. Non-string
// values are formatted with %v.
func (t Tuple) String(name string) string {
	v := t.Value(name)
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Int returns the named dimension's value as an int.
func (t Tuple) Int(name string) (int, error) {
	switch v := t.Value(name).(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("grid: dimension %q value %q is not an integer", name, v)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("grid: no dimension %q", name)
	default:
		return 0, fmt.Errorf("grid: dimension %q value %v is not an integer", name, v)
	}
}

// Values returns the tuple's values in dimension order.
func (t Tuple) Values() []interface{} {
	out := make([]interface{}, len(t.values))
	copy(out, t.values)
	return out
}

// Labels renders the values as strings, in dimension order.
func (t Tuple) Labels() []string {
	out := make([]string, len(t.values))
	for i, v := range t.values {
		out[i] = fmt.Sprint(v)
	}
	return out
}
