package bench

import (
	"strconv"
	"strings"
)

// Path addresses one aggregate in the result store, outermost dimension
// first (kind, variant, placement, size).
type Path []string

// String joins the path segments with '/'.
func (p Path) String() string {
	return strings.Join(p, "/")
}

// Aggregate is the mean of the samples collected for one parameter tuple.
// The zero value is NoData: a tuple for which no sample was ever obtained.
// NoData is never equal to a real zero-latency measurement.
type Aggregate struct {
	mean    float64
	samples int
	valid   bool
}

// NoData is the aggregate of a tuple without samples.
var NoData = Aggregate{}

// Value returns an aggregate holding mean.
func Value(mean float64) Aggregate {
	return Aggregate{mean: mean, valid: true}
}

// Mean computes the arithmetic mean of samples. An empty slice yields NoData.
func Mean(samples []float64) Aggregate {
	if len(samples) == 0 {
		return NoData
	}
	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	return Aggregate{mean: sum / float64(len(samples)), samples: len(samples), valid: true}
}

// Mean returns the aggregated value and whether it is defined.
func (a Aggregate) Mean() (float64, bool) {
	return a.mean, a.valid
}

// Defined reports whether the aggregate carries a measurement.
func (a Aggregate) Defined() bool {
	return a.valid
}

// Samples is the number of samples folded into the aggregate, 0 when the
// aggregate was built with Value or loaded from a result file.
func (a Aggregate) Samples() int {
	return a.samples
}

// String renders the mean with full precision, or "n/a".
func (a Aggregate) String() string {
	if !a.valid {
		return "n/a"
	}
	return strconv.FormatFloat(a.mean, 'f', -1, 64)
}
