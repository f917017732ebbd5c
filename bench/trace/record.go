// Package trace records what happened during a sweep: every benchmark
// invocation and the final outcome of every parameter tuple.
// It stores plain data and depends on no other heimdall package.
package trace

import "time"

// AttemptRecord captures a single benchmark invocation.
type AttemptRecord struct {
	Tuple    []string // tuple labels in dimension order
	Attempt  int      // 1-based invocation number within the tuple
	Progress int      // progress after this attempt
	Target   int
	Retries  int // timeout retries so far
	Command  string
	Outcome  string
	Samples  []float64
	Stdout   string
	Stderr   string
	Err      string
	Duration time.Duration
}

// TupleRecord captures the final outcome of one parameter tuple.
type TupleRecord struct {
	Path        string
	Mean        float64
	Defined     bool
	Samples     int
	Invocations int
	Aborted     bool
	Reason      string // why the tuple has no data, if it has none
}
