package sweep

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/heimdall-bench/heimdall/bench/collector"
	"github.com/heimdall-bench/heimdall/bench/machine"
	"github.com/heimdall-bench/heimdall/bench/trace"
)

// MetaFileName is the base name of the run metadata file.
func MetaFileName(machineName, timestamp string) string {
	return fmt.Sprintf("meta_%s_%s.yaml", machineName, timestamp)
}

// MetricsFileName is the base name of the Prometheus textfile.
func MetricsFileName(machineName, timestamp string) string {
	return fmt.Sprintf("metrics_%s_%s.prom", machineName, timestamp)
}

// Meta describes one run. It is written when the sweep starts and
// rewritten when it ends.
type Meta struct {
	RunID     string             `yaml:"run_id"`
	Machine   string             `yaml:"machine"`
	Timestamp string             `yaml:"timestamp"`
	State     string             `yaml:"state"`
	Started   time.Time          `yaml:"started"`
	Finished  *time.Time         `yaml:"finished,omitempty"`
	Profile   machine.Profile    `yaml:"profile"`
	Policy    collector.Policy   `yaml:"policy"`
	Telemetry *machine.Telemetry `yaml:"telemetry,omitempty"`
	Summary   *MetaSummary       `yaml:"summary,omitempty"`
}

// MetaSummary is the part of a trace summary kept in the metadata file.
type MetaSummary struct {
	Attempts       int      `yaml:"attempts"`
	Timeouts       int      `yaml:"timeouts"`
	Failures       int      `yaml:"failures"`
	Samples        int      `yaml:"samples"`
	Tuples         int      `yaml:"tuples"`
	MeasuredTuples int      `yaml:"measured_tuples"`
	AbortedTuples  int      `yaml:"aborted_tuples"`
	Missing        []string `yaml:"missing,omitempty"`
}

func newMetaSummary(s *trace.TraceSummary) *MetaSummary {
	return &MetaSummary{
		Attempts:       s.TotalAttempts,
		Timeouts:       s.TimedOut,
		Failures:       s.Failed,
		Samples:        s.TotalSamples,
		Tuples:         s.TotalTuples,
		MeasuredTuples: s.MeasuredTuples,
		AbortedTuples:  s.AbortedTuples,
		Missing:        s.Missing,
	}
}

// LoadMeta reads a metadata file.
func LoadMeta(dir, machineName, timestamp string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, MetaFileName(machineName, timestamp)))
	if err != nil {
		return nil, fmt.Errorf("read run metadata: %w", err)
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse run metadata: %w", err)
	}
	return &m, nil
}

func writeMeta(dir string, m *Meta) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode run metadata: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create result directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MetaFileName(m.Machine, m.Timestamp)), data, 0o644); err != nil {
		return fmt.Errorf("write run metadata: %w", err)
	}
	return nil
}
