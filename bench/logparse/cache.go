package logparse

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/sirupsen/logrus"
)

// CacheOutputName is the CSV file name ParseCacheDir writes into the
// scanned directory.
const CacheOutputName = "parsed_cache_logs.csv"

var cacheTestRe = regexp.MustCompile(`==========Test No.==========\n` +
	`Number of block: (\d+)\n` +
	`Stride Size: (\d+)\n` +
	`Average store time:\s+(\d+)\s+cycles,\s+([\d.]+)\s+ns\n` +
	`Average load time:\s+(\d+)\s+cycles,\s+([\d.]+)\s+ns`)

// ErrNoCacheTest is returned by ParseCache when a log has no completed
// pointer-chasing test.
var ErrNoCacheTest = errors.New("log has no cache test result")

// CacheResult is one pointer-chasing cache test: the average store and load
// latency for a block count and stride.
type CacheResult struct {
	Source      string
	Index       int // position among the parsed logs
	BlockNum    int
	StrideSize  int
	StoreCycles int64
	StoreNs     float64
	LoadCycles  int64
	LoadNs      float64
}

// ParseCache extracts the cache test result from log content.
func ParseCache(content string) (CacheResult, error) {
	m := cacheTestRe.FindStringSubmatch(content)
	if m == nil {
		return CacheResult{}, ErrNoCacheTest
	}
	var r CacheResult
	var err error
	if r.BlockNum, err = strconv.Atoi(m[1]); err != nil {
		return CacheResult{}, err
	}
	if r.StrideSize, err = strconv.Atoi(m[2]); err != nil {
		return CacheResult{}, err
	}
	if r.StoreCycles, err = strconv.ParseInt(m[3], 10, 64); err != nil {
		return CacheResult{}, err
	}
	if r.StoreNs, err = strconv.ParseFloat(m[4], 64); err != nil {
		return CacheResult{}, err
	}
	if r.LoadCycles, err = strconv.ParseInt(m[5], 10, 64); err != nil {
		return CacheResult{}, err
	}
	if r.LoadNs, err = strconv.ParseFloat(m[6], 64); err != nil {
		return CacheResult{}, err
	}
	return r, nil
}

// ScanCacheDir parses every result.log below root holding a cache test, in
// path order. Logs without one are skipped.
func ScanCacheDir(root string) ([]CacheResult, error) {
	var found []CacheResult
	err := walkLogs(root, func(path, content string) {
		r, err := ParseCache(content)
		if err != nil {
			logrus.Debugf("Skipping %s: %v", path, err)
			return
		}
		r.Source = path
		r.Index = len(found)
		found = append(found, r)
		logrus.Infof("Block Num: %d, Stride Size: %d, Store Latency: %d cycles %g ns, Load Latency: %d cycles %g ns",
			r.BlockNum, r.StrideSize, r.StoreCycles, r.StoreNs, r.LoadCycles, r.LoadNs)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

var cacheHeader = []string{
	"test_index",
	"block_num",
	"stride_size",
	"store_latency_cycle",
	"load_latency_cycle",
	"store_latency_ns",
	"load_latency_ns",
}

// WriteCacheCSV writes cache results with latencies in whole nanoseconds.
func WriteCacheCSV(w io.Writer, results []CacheResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(cacheHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			strconv.Itoa(r.Index),
			strconv.Itoa(r.BlockNum),
			strconv.Itoa(r.StrideSize),
			strconv.FormatInt(r.StoreCycles, 10),
			strconv.FormatInt(r.LoadCycles, 10),
			strconv.FormatInt(int64(r.StoreNs), 10),
			strconv.FormatInt(int64(r.LoadNs), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ParseCacheDir scans root and writes parsed_cache_logs.csv into it,
// returning the output path and the number of rows written.
func ParseCacheDir(root string) (string, int, error) {
	results, err := ScanCacheDir(root)
	if err != nil {
		return "", 0, err
	}
	out := filepath.Join(root, CacheOutputName)
	if err := writeFile(out, func(w io.Writer) error { return WriteCacheCSV(w, results) }); err != nil {
		return "", 0, err
	}
	return out, len(results), nil
}
