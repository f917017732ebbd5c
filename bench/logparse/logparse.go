// Package logparse extracts measurements from the result.log files written
// by the basic-performance memory benchmark (bandwidth/latency runs and
// pointer-chasing cache tests) and tabulates them as CSV.
package logparse

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogName is the file name ScanDir looks for.
const LogName = "result.log"

// OutputName is the CSV file name ParseDir writes into the scanned directory.
const OutputName = "parsed_result_logs.csv"

var (
	testInfoRe = regexp.MustCompile(`Test Information:\n` +
		`Buffer Size: (\d+MiB)\n` +
		`Number of Threads: (\d+)\n` +
		`Job Id: (\d+)\n` +
		`Access Type: (\w+)\n` +
		`LoadStore Type: (\w+)\n` +
		`Block Size: (\d+) bytes\n` +
		`Mem alloc Type: (\w+)\n` +
		`Latency Pattern: (\w+)\n` +
		`Bandwidth Pattern: (\w+)\n`)
	bandwidthRe = regexp.MustCompile(`Total Bandwidth : ([\d.]+) MiB/s`)
	latencyRe   = regexp.MustCompile(`Measured Latency : (\d+) ns`)
)

// Result is one parsed benchmark log.
type Result struct {
	Source           string // path of the log file
	DeviceType       string // first directory below the scanned root
	BufferSize       string
	Threads          int
	JobID            int
	AccessType       string
	LoadStoreType    string
	BlockSizeBytes   int
	MemAllocType     string
	LatencyPattern   string
	BandwidthPattern string
	BandwidthMiBs    float64
	LatencyNs        int64
}

// ErrIncomplete is returned by Parse when a log lacks the test information
// block or either measurement.
var ErrIncomplete = errors.New("log is missing test information or measurements")

// Parse extracts one result from log content.
func Parse(content string) (Result, error) {
	info := testInfoRe.FindStringSubmatch(content)
	bw := bandwidthRe.FindStringSubmatch(content)
	lat := latencyRe.FindStringSubmatch(content)
	if info == nil || bw == nil || lat == nil {
		return Result{}, ErrIncomplete
	}
	var r Result
	var err error
	r.BufferSize = info[1]
	if r.Threads, err = strconv.Atoi(info[2]); err != nil {
		return Result{}, fmt.Errorf("threads: %w", err)
	}
	if r.JobID, err = strconv.Atoi(info[3]); err != nil {
		return Result{}, fmt.Errorf("job id: %w", err)
	}
	r.AccessType = info[4]
	r.LoadStoreType = info[5]
	if r.BlockSizeBytes, err = strconv.Atoi(info[6]); err != nil {
		return Result{}, fmt.Errorf("block size: %w", err)
	}
	r.MemAllocType = info[7]
	r.LatencyPattern = info[8]
	r.BandwidthPattern = info[9]
	if r.BandwidthMiBs, err = strconv.ParseFloat(bw[1], 64); err != nil {
		return Result{}, fmt.Errorf("bandwidth: %w", err)
	}
	if r.LatencyNs, err = strconv.ParseInt(lat[1], 10, 64); err != nil {
		return Result{}, fmt.Errorf("latency: %w", err)
	}
	return r, nil
}

// ScanDir walks root for result.log files and parses each. Incomplete logs
// are skipped with an error log entry. Results are grouped by access type,
// then latency pattern, then bandwidth pattern, each in discovery order, and
// sorted by thread count within each group.
func ScanDir(root string) ([]Result, error) {
	var found []Result
	err := walkLogs(root, func(path, content string) {
		r, err := Parse(content)
		if err != nil {
			logrus.Errorf("Skipping log file due to missing data: %s", path)
			return
		}
		r.Source = path
		r.DeviceType = deviceType(root, path)
		found = append(found, r)
	})
	if err != nil {
		return nil, err
	}
	return group(found), nil
}

// walkLogs calls fn with the content of every result.log below root, in
// lexical path order.
func walkLogs(root string, fn func(path, content string)) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || d.Name() != LogName {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fn(path, string(data))
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	return nil
}

func deviceType(root, path string) string {
	rel, err := filepath.Rel(root, filepath.Dir(path))
	if err != nil || rel == "." {
		return ""
	}
	return strings.Split(filepath.ToSlash(rel), "/")[0]
}

func group(results []Result) []Result {
	// access type first, then latency pattern, then bandwidth pattern, each
	// in discovery order within its parent
	access := make(map[string]int)
	latency := make(map[string]int)
	bandwidth := make(map[string]int)
	rank := func(m map[string]int, key string) {
		if _, ok := m[key]; !ok {
			m[key] = len(m)
		}
	}
	latKey := func(r Result) string { return r.AccessType + "\x00" + r.LatencyPattern }
	bwKey := func(r Result) string { return latKey(r) + "\x00" + r.BandwidthPattern }
	for _, r := range results {
		rank(access, r.AccessType)
		rank(latency, latKey(r))
		rank(bandwidth, bwKey(r))
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if access[a.AccessType] != access[b.AccessType] {
			return access[a.AccessType] < access[b.AccessType]
		}
		if latency[latKey(a)] != latency[latKey(b)] {
			return latency[latKey(a)] < latency[latKey(b)]
		}
		if bandwidth[bwKey(a)] != bandwidth[bwKey(b)] {
			return bandwidth[bwKey(a)] < bandwidth[bwKey(b)]
		}
		return a.Threads < b.Threads
	})
	return results
}

var header = []string{
	"Device Type",
	"Access Type",
	"LoadStore Type",
	"Threads",
	"Block Size (bytes)",
	"Total Bandwidth (MiB/s)",
	"Measured Latency (ns)",
	"Latency Pattern",
	"Bandwidth Pattern",
}

// WriteCSV writes results as a CSV table with a header row.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.DeviceType,
			r.AccessType,
			r.LoadStoreType,
			strconv.Itoa(r.Threads),
			strconv.Itoa(r.BlockSizeBytes),
			strconv.FormatFloat(r.BandwidthMiBs, 'f', -1, 64),
			strconv.FormatInt(r.LatencyNs, 10),
			r.LatencyPattern,
			r.BandwidthPattern,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseDir scans root and writes parsed_result_logs.csv into it, returning
// the output path and the number of rows written.
func ParseDir(root string) (string, int, error) {
	results, err := ScanDir(root)
	if err != nil {
		return "", 0, err
	}
	out := filepath.Join(root, OutputName)
	if err := writeFile(out, func(w io.Writer) error { return WriteCSV(w, results) }); err != nil {
		return "", 0, err
	}
	return out, len(results), nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	logrus.Infof("The result is saved in %s", path)
	return nil
}
