package trace

// Outcome names as reported by the runner.
const (
	outcomeSucceeded = "succeeded"
	outcomeTimedOut  = "timed_out"
)

// TraceSummary aggregates statistics from a SweepTrace.
type TraceSummary struct {
	TotalAttempts       int
	Succeeded           int
	TimedOut            int
	Failed              int // neither succeeded nor timed out
	TotalSamples        int
	TotalTuples         int
	MeasuredTuples      int
	MissingTuples       int // tuples recorded as no data
	AbortedTuples       int // subset of MissingTuples that exhausted their retries
	OutcomeDistribution map[string]int
	Missing             []string // paths of tuples without data, in order
}

// Summarize computes aggregate statistics from a SweepTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SweepTrace) *TraceSummary {
	summary := &TraceSummary{
		OutcomeDistribution: make(map[string]int),
	}
	if st == nil {
		return summary
	}

	attempts := st.Attempts()
	summary.TotalAttempts = len(attempts)
	for _, a := range attempts {
		summary.OutcomeDistribution[a.Outcome]++
		summary.TotalSamples += len(a.Samples)
		switch a.Outcome {
		case outcomeSucceeded:
			summary.Succeeded++
		case outcomeTimedOut:
			summary.TimedOut++
		default:
			summary.Failed++
		}
	}

	tuples := st.Tuples()
	summary.TotalTuples = len(tuples)
	for _, t := range tuples {
		if t.Defined {
			summary.MeasuredTuples++
			continue
		}
		summary.MissingTuples++
		summary.Missing = append(summary.Missing, t.Path)
		if t.Aborted {
			summary.AbortedTuples++
		}
	}
	return summary
}
