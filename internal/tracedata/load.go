package tracedata

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// LoadDirectory reads invocations.csv, durations.csv and memory.csv from
// dir, joins them by name, and — if present — augments each descriptor
// with iterations.csv/batch.csv/deadline.csv for scheduler mode. Returns
// descriptors sorted by name for deterministic iteration order.
func LoadDirectory(dir string) ([]*FunctionDescriptor, error) {
	invocations, warmup, err := loadInvocations(filepath.Join(dir, "invocations.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading invocations: %w", err)
	}
	durations, err := loadDurations(filepath.Join(dir, "durations.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading durations: %w", err)
	}
	memory, err := loadMemory(filepath.Join(dir, "memory.csv"))
	if err != nil {
		return nil, fmt.Errorf("loading memory: %w", err)
	}

	names := make(map[string]bool)
	for name := range invocations {
		names[name] = true
	}
	descs := make(map[string]*FunctionDescriptor, len(names))
	for name := range names {
		d := &FunctionDescriptor{Name: name}
		d.IPM = invocations[name]
		d.WarmupIPM = warmup[name]
		if ds, ok := durations[name]; ok {
			d.Duration = ds
		}
		if ms, ok := memory[name]; ok {
			d.Memory = ms
		}
		descs[name] = d
	}

	if err := loadSchedulerSeries(dir, descs); err != nil {
		return nil, fmt.Errorf("loading scheduler series: %w", err)
	}

	out := make([]*FunctionDescriptor, 0, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("trace error: %w", err)
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// nameColumn resolves the join-key column: HashFunction, or FunctionName
// when the trace uses labeled headers (§6).
func nameColumn(header []string) (int, error) {
	for i, h := range header {
		if h == "HashFunction" || h == "FunctionName" {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no HashFunction or FunctionName column in header %v", header)
}

func readCSV(path string) (header []string, rows [][]string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%s: empty file", path)
	}
	return records[0], records[1:], nil
}

// loadInvocations parses invocations.csv, splitting minute columns into
// the steady-state series (non-negative labels, in ascending order) and
// the warm-up ramp series (negative labels, oldest i.e. most negative
// first).
func loadInvocations(path string) (steady map[string][]int, warmup map[string][]int, err error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, nil, err
	}
	nameIdx, err := nameColumn(header)
	if err != nil {
		return nil, nil, err
	}

	type minuteCol struct {
		idx   int
		label int
	}
	var steadyCols, warmupCols []minuteCol
	for i, h := range header {
		label, convErr := strconv.Atoi(strings.TrimSpace(h))
		if convErr != nil {
			continue // not a minute column (HashOwner, HashApp, Trigger, ...)
		}
		if label < 0 {
			warmupCols = append(warmupCols, minuteCol{idx: i, label: label})
		} else {
			steadyCols = append(steadyCols, minuteCol{idx: i, label: label})
		}
	}
	sort.Slice(steadyCols, func(i, j int) bool { return steadyCols[i].label < steadyCols[j].label })
	sort.Slice(warmupCols, func(i, j int) bool { return warmupCols[i].label < warmupCols[j].label })

	steady = make(map[string][]int)
	warmup = make(map[string][]int)
	for rowNum, row := range rows {
		name := row[nameIdx]
		ipm := make([]int, len(steadyCols))
		for i, c := range steadyCols {
			v, convErr := strconv.Atoi(strings.TrimSpace(row[c.idx]))
			if convErr != nil {
				return nil, nil, fmt.Errorf("row %d: invalid invocation count %q", rowNum+2, row[c.idx])
			}
			ipm[i] = v
		}
		ramp := make([]int, len(warmupCols))
		for i, c := range warmupCols {
			v, convErr := strconv.Atoi(strings.TrimSpace(row[c.idx]))
			if convErr != nil {
				return nil, nil, fmt.Errorf("row %d: invalid warm-up count %q", rowNum+2, row[c.idx])
			}
			ramp[i] = v
		}
		steady[name] = ipm
		warmup[name] = ramp
	}
	return steady, warmup, nil
}

func loadDurations(path string) (map[string]DurationStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	nameIdx, err := nameColumn(header)
	if err != nil {
		return nil, err
	}
	colIdx := indexHeader(header)

	pctCols := make(map[int]int) // percentile -> column index
	for i, h := range header {
		if pct, ok := parsePercentileSuffix(h, "percentile_Average_"); ok {
			pctCols[pct] = i
		}
	}

	out := make(map[string]DurationStats, len(rows))
	for rowNum, row := range rows {
		name := row[nameIdx]
		ds := DurationStats{Percentiles: make(map[int]float64, len(pctCols))}
		if i, ok := colIdx["Average"]; ok {
			ds.AverageMs, err = parseFloatCell(row, i)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
			}
		}
		if i, ok := colIdx["Count"]; ok {
			n, convErr := strconv.Atoi(strings.TrimSpace(row[i]))
			if convErr == nil {
				ds.Count = n
			}
		}
		if i, ok := colIdx["Minimum"]; ok {
			ds.MinimumMs, _ = parseFloatCell(row, i)
		}
		if i, ok := colIdx["Maximum"]; ok {
			ds.MaximumMs, _ = parseFloatCell(row, i)
		}
		for pct, i := range pctCols {
			v, convErr := parseFloatCell(row, i)
			if convErr == nil {
				ds.Percentiles[pct] = v
			}
		}
		out[name] = ds
	}
	return out, nil
}

func loadMemory(path string) (map[string]MemoryStats, error) {
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	nameIdx, err := nameColumn(header)
	if err != nil {
		return nil, err
	}
	colIdx := indexHeader(header)

	pctCols := make(map[int]int)
	for i, h := range header {
		if pct, ok := parsePercentileSuffix(h, "AverageAllocatedMb_pct"); ok {
			pctCols[pct] = i
		}
	}

	out := make(map[string]MemoryStats, len(rows))
	for rowNum, row := range rows {
		name := row[nameIdx]
		ms := MemoryStats{Percentiles: make(map[int]float64, len(pctCols))}
		if i, ok := colIdx["SampleCount"]; ok {
			n, convErr := strconv.Atoi(strings.TrimSpace(row[i]))
			if convErr == nil {
				ms.SampleCount = n
			}
		}
		if i, ok := colIdx["AverageAllocatedMb"]; ok {
			ms.AverageMib, err = parseFloatCell(row, i)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", rowNum+2, err)
			}
		}
		for pct, i := range pctCols {
			v, convErr := parseFloatCell(row, i)
			if convErr == nil {
				ms.Percentiles[pct] = v
			}
		}
		out[name] = ms
	}
	return out, nil
}

// loadSchedulerSeries augments descs in-place with iterations.csv,
// batch.csv and deadline.csv, if those files exist in dir. Their absence
// is not an error — scheduler mode is optional.
func loadSchedulerSeries(dir string, descs map[string]*FunctionDescriptor) error {
	iterations, err := loadIntSeries(filepath.Join(dir, "iterations.csv"), "Iterations")
	if err != nil {
		return err
	}
	batch, err := loadIntSeries(filepath.Join(dir, "batch.csv"), "Batchsize")
	if err != nil {
		return err
	}
	deadline, err := loadIntSeries(filepath.Join(dir, "deadline.csv"), "DeadlineMs")
	if err != nil {
		return err
	}
	if iterations == nil && batch == nil && deadline == nil {
		return nil
	}
	for name, d := range descs {
		if v, ok := iterations[name]; ok {
			d.Iterations = v
			d.HasScheduler = true
		}
		if v, ok := batch[name]; ok {
			d.Batchsize = v
			d.HasScheduler = true
		}
		if v, ok := deadline[name]; ok {
			d.DeadlineMs = int64(v)
			d.HasScheduler = true
		}
	}
	return nil
}

// loadIntSeries reads a same-row-schema CSV (HashOwner, HashApp,
// HashFunction, <valueColumn>) and returns name -> value. Returns a nil
// map (not an error) if the file does not exist.
func loadIntSeries(path, valueColumn string) (map[string]int, error) {
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		return nil, nil
	}
	header, rows, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	nameIdx, err := nameColumn(header)
	if err != nil {
		return nil, err
	}
	colIdx := indexHeader(header)
	vi, ok := colIdx[valueColumn]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", path, valueColumn)
	}
	out := make(map[string]int, len(rows))
	for rowNum, row := range rows {
		v, convErr := strconv.Atoi(strings.TrimSpace(row[vi]))
		if convErr != nil {
			return nil, fmt.Errorf("%s row %d: invalid %s %q", path, rowNum+2, valueColumn, row[vi])
		}
		out[row[nameIdx]] = v
	}
	return out, nil
}

func indexHeader(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[h] = i
	}
	return idx
}

func parseFloatCell(row []string, i int) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(row[i]), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q", row[i])
	}
	return v, nil
}

// parsePercentileSuffix extracts the integer percentile from a header like
// "percentile_Average_99" or "AverageAllocatedMb_pct99" given its prefix.
func parsePercentileSuffix(header, prefix string) (int, bool) {
	if !strings.HasPrefix(header, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(header, prefix))
	if err != nil {
		return 0, false
	}
	return n, true
}
