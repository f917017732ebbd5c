package trace

import "sync"

// SweepTrace collects attempt and tuple records during a sweep. It is safe
// for concurrent use.
type SweepTrace struct {
	mu       sync.Mutex
	attempts []AttemptRecord
	tuples   []TupleRecord
}

// NewSweepTrace creates a SweepTrace ready for recording.
func NewSweepTrace() *SweepTrace {
	return &SweepTrace{
		attempts: make([]AttemptRecord, 0),
		tuples:   make([]TupleRecord, 0),
	}
}

// RecordAttempt appends an attempt record.
func (st *SweepTrace) RecordAttempt(record AttemptRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.attempts = append(st.attempts, record)
}

// RecordTuple appends a tuple record.
func (st *SweepTrace) RecordTuple(record TupleRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.tuples = append(st.tuples, record)
}

// Attempts returns a copy of the attempt records in recording order.
func (st *SweepTrace) Attempts() []AttemptRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]AttemptRecord(nil), st.attempts...)
}

// Tuples returns a copy of the tuple records in recording order.
func (st *SweepTrace) Tuples() []TupleRecord {
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]TupleRecord(nil), st.tuples...)
}
