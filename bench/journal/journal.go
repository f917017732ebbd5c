// Package journal appends one entry per benchmark invocation to the run's
// log file, with the tuple, running progress, exact command and raw output.
package journal

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/heimdall-bench/heimdall/bench/trace"
)

// FileName is the base name of the log file for a run.
func FileName(machine, timestamp string) string {
	return fmt.Sprintf("log_%s_%s.log", machine, timestamp)
}

// Journal writes attempt entries through a dedicated logger.
type Journal struct {
	log    *logrus.Logger
	closer io.Closer
	path   string
}

// New returns a journal writing to w.
func New(w io.Writer) *Journal {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		DisableColors:    true,
		FullTimestamp:    true,
		DisableSorting:   false,
		QuoteEmptyFields: true,
	})
	return &Journal{log: l}
}

// Open appends to log_<machine>_<timestamp>.log in dir, creating it if
// needed.
func Open(dir, machine, timestamp string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, FileName(machine, timestamp))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	j := New(f)
	j.closer = f
	j.path = path
	return j, nil
}

// Path is the file the journal appends to, empty for writer-backed journals.
func (j *Journal) Path() string {
	return j.path
}

// RecordAttempt writes one invocation.
func (j *Journal) RecordAttempt(rec trace.AttemptRecord) {
	if j == nil {
		return
	}
	fields := logrus.Fields{
		"config":   strings.Join(rec.Tuple, " "),
		"attempt":  rec.Attempt,
		"progress": fmt.Sprintf("%d/%d", rec.Progress, rec.Target),
		"retries":  rec.Retries,
		"outcome":  rec.Outcome,
		"command":  rec.Command,
		"duration": rec.Duration,
		"output":   rec.Stdout,
	}
	if rec.Stderr != "" {
		fields["stderr"] = rec.Stderr
	}
	entry := j.log.WithFields(fields)
	if rec.Err != "" {
		entry.WithField("error", rec.Err).Warn("attempt failed")
		return
	}
	entry.Info("attempt")
}

// RecordTuple writes the final result of a tuple.
func (j *Journal) RecordTuple(rec trace.TupleRecord) {
	if j == nil {
		return
	}
	entry := j.log.WithFields(logrus.Fields{
		"path":        rec.Path,
		"invocations": rec.Invocations,
		"samples":     rec.Samples,
	})
	switch {
	case rec.Defined:
		entry.WithField("mean_ns", rec.Mean).Info("tuple measured")
	case rec.Aborted:
		entry.WithField("reason", rec.Reason).Warn("tuple aborted")
	default:
		entry.WithField("reason", rec.Reason).Warn("tuple has no data")
	}
}

// Event writes a free-form run event such as a state change.
func (j *Journal) Event(format string, args ...interface{}) {
	if j == nil {
		return
	}
	j.log.Infof(format, args...)
}

// Close closes the underlying file, if any.
func (j *Journal) Close() error {
	if j == nil || j.closer == nil {
		return nil
	}
	return j.closer.Close()
}
