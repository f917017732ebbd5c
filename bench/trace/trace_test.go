package trace

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepTrace_RecordAttempt_AppendsRecord(t *testing.T) {
	// GIVEN an empty trace
	st := NewSweepTrace()

	// WHEN an attempt is recorded
	st.RecordAttempt(AttemptRecord{
		Tuple:    []string{"queue", "boost_spsc_queue", "same_local_DIMM", "8"},
		Attempt:  1,
		Progress: 2,
		Target:   10,
		Outcome:  "succeeded",
		Samples:  []float64{100, 200},
	})

	// THEN the trace contains one attempt with the recorded data
	attempts := st.Attempts()
	require.Len(t, attempts, 1)
	assert.Equal(t, "boost_spsc_queue", attempts[0].Tuple[1])
	assert.Equal(t, 2, attempts[0].Progress)
}

func TestSweepTrace_MultipleRecords_PreservesOrder(t *testing.T) {
	st := NewSweepTrace()

	st.RecordTuple(TupleRecord{Path: "queue/a/p/8", Defined: true, Mean: 1})
	st.RecordTuple(TupleRecord{Path: "queue/a/p/16"})
	st.RecordAttempt(AttemptRecord{Attempt: 1})
	st.RecordAttempt(AttemptRecord{Attempt: 2})

	tuples := st.Tuples()
	require.Len(t, tuples, 2)
	assert.Equal(t, "queue/a/p/8", tuples[0].Path)
	assert.Equal(t, "queue/a/p/16", tuples[1].Path)
	attempts := st.Attempts()
	require.Len(t, attempts, 2)
	assert.Equal(t, 2, attempts[1].Attempt)
}

func TestSweepTrace_Attempts_ReturnsCopy(t *testing.T) {
	st := NewSweepTrace()
	st.RecordAttempt(AttemptRecord{Command: "./bench"})

	got := st.Attempts()
	got[0].Command = "mutated"

	assert.Equal(t, "./bench", st.Attempts()[0].Command)
}

func TestSweepTrace_ConcurrentRecording_NoLostRecords(t *testing.T) {
	st := NewSweepTrace()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.RecordAttempt(AttemptRecord{Attempt: j})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, st.Attempts(), 800)
}

func TestSummarize_CountsOutcomesAndTuples(t *testing.T) {
	// GIVEN a trace with mixed attempt outcomes and one aborted tuple
	st := NewSweepTrace()
	st.RecordAttempt(AttemptRecord{Outcome: "succeeded", Samples: []float64{1, 2, 3}})
	st.RecordAttempt(AttemptRecord{Outcome: "timed_out"})
	st.RecordAttempt(AttemptRecord{Outcome: "timed_out"})
	st.RecordAttempt(AttemptRecord{Outcome: "non_zero_exit"})
	st.RecordTuple(TupleRecord{Path: "a/8", Defined: true, Mean: 2})
	st.RecordTuple(TupleRecord{Path: "a/16", Aborted: true, Reason: "timeouts"})
	st.RecordTuple(TupleRecord{Path: "a/32"})

	// WHEN summarized
	s := Summarize(st)

	// THEN every counter reflects the records
	assert.Equal(t, 4, s.TotalAttempts)
	assert.Equal(t, 1, s.Succeeded)
	assert.Equal(t, 2, s.TimedOut)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 3, s.TotalSamples)
	assert.Equal(t, 3, s.TotalTuples)
	assert.Equal(t, 1, s.MeasuredTuples)
	assert.Equal(t, 2, s.MissingTuples)
	assert.Equal(t, 1, s.AbortedTuples)
	assert.Equal(t, []string{"a/16", "a/32"}, s.Missing)
	assert.Equal(t, 2, s.OutcomeDistribution["timed_out"])
}

func TestSummarize_NilTrace_ReturnsZeroSummary(t *testing.T) {
	s := Summarize(nil)

	assert.Equal(t, 0, s.TotalAttempts)
	assert.NotNil(t, s.OutcomeDistribution)
}
