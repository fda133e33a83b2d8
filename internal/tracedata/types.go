// Package tracedata loads and joins the CSV trace directory (invocations,
// durations, memory, and the optional scheduler series) into per-function
// descriptors keyed by name. It owns no simulation/driving behavior —
// read once, index by name, read-only thereafter (Design Notes §9).
package tracedata

import "fmt"

// DurationStats holds the empirical runtime distribution for a function,
// in milliseconds. Percentiles are keyed by the percentile_Average_N
// column suffix (0, 1, 25, 50, 75, 99, 100).
type DurationStats struct {
	AverageMs   float64
	Count       int
	MinimumMs   float64
	MaximumMs   float64
	Percentiles map[int]float64
}

// MemoryStats holds the empirical memory footprint distribution for a
// function, in MiB. Percentiles are keyed by the AverageAllocatedMb_pctN
// column suffix (1, 5, 25, 50, 75, 95, 99, 100).
type MemoryStats struct {
	SampleCount int
	AverageMib  float64
	Percentiles map[int]float64
}

// FunctionDescriptor is the immutable, per-run join of every trace series
// for one function. Name is the sole join key.
type FunctionDescriptor struct {
	Name string

	// IPM holds the steady-state per-minute invocation counts, index 0..N-1.
	IPM []int
	// WarmupIPM holds the negative-minute ramp columns in the order they
	// appear before minute 0 (e.g. the "-2", "-1" columns, oldest first).
	WarmupIPM []int

	Duration DurationStats
	Memory   MemoryStats

	// Scheduler-mode series; zero value (nil/0) when absent.
	Iterations   int
	Batchsize    int
	DeadlineMs   int64
	HasScheduler bool
}

// Validate checks the per-invariant constraints from §3: ipm[m] >= 0 for
// every minute, and (when present) scheduler fields must be non-negative.
func (f *FunctionDescriptor) Validate() error {
	if f.Name == "" {
		return fmt.Errorf("function descriptor has empty name")
	}
	for m, v := range f.IPM {
		if v < 0 {
			return fmt.Errorf("function %q: ipm[%d] = %d is negative", f.Name, m, v)
		}
	}
	for i, v := range f.WarmupIPM {
		if v < 0 {
			return fmt.Errorf("function %q: warmup ipm[%d] = %d is negative", f.Name, i, v)
		}
	}
	if f.HasScheduler {
		if f.Iterations < 0 {
			return fmt.Errorf("function %q: iterations %d is negative", f.Name, f.Iterations)
		}
		if f.Batchsize < 0 {
			return fmt.Errorf("function %q: batchsize %d is negative", f.Name, f.Batchsize)
		}
		if f.DeadlineMs < 0 {
			return fmt.Errorf("function %q: deadline %d is negative", f.Name, f.DeadlineMs)
		}
	}
	return nil
}

// AtMinute returns the steady-state ipm for minute m, or 0 if out of range.
func (f *FunctionDescriptor) AtMinute(m int) int {
	if m < 0 || m >= len(f.IPM) {
		return 0
	}
	return f.IPM[m]
}
