// Package bench provides the shared value types of the heimdall benchmark
// sweep engine.
//
// # Reading Guide
//
// Start with these packages to understand a sweep end to end:
//   - grid/: Cartesian-product parameter tuples with validity predicates
//   - runner/: one external command per call, with timeout and sudo support
//   - collector/: retry loop that turns invocations into samples
//   - store/: nested result mapping, flushed as YAML after every tuple
//   - sweep/: the driver state machine tying the above together
//
// # Collaborators
//
// The remaining packages plug concrete machines and benchmarks into the
// driver:
//   - machine/: machine profiles, NUMA topology, tuning, telemetry
//   - lockfree/: the lock-free data-structure benchmark suite
//   - journal/: append-only attempt log file
//   - metrics/: Prometheus counters exported as a textfile
//   - report/: plot data (CSV) and terminal tables from stored results
//   - logparse/: parser for bandwidth/latency result logs
//   - trace/: in-memory attempt records and their summary
package bench
