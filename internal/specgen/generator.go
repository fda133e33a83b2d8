// Package specgen generates the per-minute sequence of invocation specs
// for a function (C2 in the design): it reads the minute's invocation
// count, applies the synthetic-mode multiplier and warm-up ramp, draws
// inter-arrival times from the configured distribution (C1), and samples
// runtime/memory for each arrival from the function's empirical
// percentile sets.
package specgen

import (
	"fmt"
	"math/rand"

	"github.com/vhive-serverless/loadgen/internal/iat"
	"github.com/vhive-serverless/loadgen/internal/tracedata"
)

// Mode selects whether the trace's raw invocation counts are replayed
// verbatim ("trace") or scaled by a multiplier ("synthetic").
type Mode string

const (
	ModeTrace     Mode = "trace"
	ModeSynthetic Mode = "synthetic"
)

// MinuteRef identifies a minute to generate specs for: either a steady-state
// minute (Warmup=false, Index is the 0-based minute number) or a warm-up
// ramp minute (Warmup=true, Index is the 1-based ramp minute).
type MinuteRef struct {
	Warmup bool
	Index  int
}

// Params configures one run's spec generation.
type Params struct {
	Mode          Mode
	Multiplier    int // FunctionMultiplier; <= 0 treated as 1
	WarmupMinutes int // W, total warm-up minutes in this run
	Distribution  iat.Distribution
}

// InvocationSpec is one planned call, created once and consumed once by
// the invocation driver (§3).
type InvocationSpec struct {
	FunctionName string
	OffsetNs     int64 // t_offset within the minute, strictly non-decreasing per function
	RuntimeMs    float64
	MemoryMib    float64

	// Scheduler-mode fields, valid only when HasScheduler is true.
	HasScheduler bool
	Batchsize    int
	Iterations   int
	DeadlineMs   int64
}

// ResolveCount returns the number of invocations to generate for ref,
// applying the synthetic multiplier (steady minutes) or the warm-up ramp
// formula (ramp minutes): the k-th ramp minute (1-indexed) count equals
// floor(v*k/W) where v is the function's first steady-state minute value
// (§8 testable property). When the trace directly supplies warm-up column
// data for this ramp minute, that value is used instead (trace mode).
func ResolveCount(desc *tracedata.FunctionDescriptor, ref MinuteRef, p Params) int {
	if ref.Warmup {
		if p.Mode == ModeTrace && ref.Index-1 >= 0 && ref.Index-1 < len(desc.WarmupIPM) {
			return desc.WarmupIPM[ref.Index-1]
		}
		if p.WarmupMinutes <= 0 {
			return 0
		}
		v := desc.AtMinute(0)
		return (v * ref.Index) / p.WarmupMinutes
	}

	base := desc.AtMinute(ref.Index)
	if p.Mode == ModeSynthetic {
		mult := p.Multiplier
		if mult <= 0 {
			mult = 1
		}
		return base * mult
	}
	return base
}

// Generate produces the ordered sequence of invocation specs for one
// function/minute. The sequence is stable and reproducible for a fixed
// rng state: t_offset is the running sum of the C1 inter-arrival times,
// and runtime/memory are drawn from two independent percentile samplers
// seeded from the same rng stream as the IATs (§4.2 step 4/5).
func Generate(desc *tracedata.FunctionDescriptor, ref MinuteRef, p Params, rng *rand.Rand) ([]InvocationSpec, error) {
	n := ResolveCount(desc, ref, p)
	if n <= 0 {
		return nil, nil
	}

	iats, err := iat.Generate(p.Distribution, n, rng)
	if err != nil {
		return nil, fmt.Errorf("function %q: %w", desc.Name, err)
	}

	durationSampler := NewPercentileSampler(desc.Duration.Percentiles)
	memorySampler := NewPercentileSampler(desc.Memory.Percentiles)

	specs := make([]InvocationSpec, n)
	var offset int64
	for i := 0; i < n; i++ {
		offset += iats[i]

		runtimeMs := desc.Duration.AverageMs
		if desc.Duration.Count > 0 {
			runtimeMs = durationSampler.Sample(rng)
		}
		memoryMib := desc.Memory.AverageMib
		if desc.Memory.SampleCount > 0 {
			memoryMib = memorySampler.Sample(rng)
		}

		specs[i] = InvocationSpec{
			FunctionName: desc.Name,
			OffsetNs:     offset,
			RuntimeMs:    runtimeMs,
			MemoryMib:    memoryMib,
			HasScheduler: desc.HasScheduler,
			Batchsize:    desc.Batchsize,
			Iterations:   desc.Iterations,
			DeadlineMs:   desc.DeadlineMs,
		}
	}
	return specs, nil
}
