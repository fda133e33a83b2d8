// Package iat draws inter-arrival-time sequences for a function's
// per-minute invocation count (C1 in the design). Every sequence is
// rescaled so its elements sum to exactly one minute, in nanoseconds,
// which keeps the spec generator's running-offset arithmetic exact.
package iat

import (
	"fmt"
	"math/rand"
)

// Distribution names the inter-arrival-time process.
type Distribution string

const (
	Exponential Distribution = "exponential"
	Uniform     Distribution = "uniform"
	Equidistant Distribution = "equidistant"
)

// Valid reports whether name is one of the three supported distributions.
func Valid(name Distribution) bool {
	switch name {
	case Exponential, Uniform, Equidistant:
		return true
	}
	return false
}

const minuteNs = int64(60_000_000_000)

// Generate returns n = rate inter-arrival times in nanoseconds whose sum is
// exactly one minute (60e9 ns), drawn from dist and seeded by rng. rate <=
// 0 returns an empty, non-nil slice — callers generate zero specs for a
// zero-invocation minute.
func Generate(dist Distribution, rate int, rng *rand.Rand) ([]int64, error) {
	if rate <= 0 {
		return []int64{}, nil
	}
	if !Valid(dist) {
		return nil, fmt.Errorf("unknown IAT distribution %q", dist)
	}

	raw := make([]float64, rate)
	switch dist {
	case Equidistant:
		each := float64(minuteNs) / float64(rate)
		for i := range raw {
			raw[i] = each
		}
	case Exponential:
		// Mean IAT = 60s/rate, i.e. rate parameter lambda = rate/60s.
		mean := float64(minuteNs) / float64(rate)
		for i := range raw {
			raw[i] = rng.ExpFloat64() * mean
		}
	case Uniform:
		// U(0, 2*60s/rate) has mean 60s/rate, matching the other processes.
		upper := 2.0 * float64(minuteNs) / float64(rate)
		for i := range raw {
			raw[i] = rng.Float64() * upper
		}
	}

	return normalizeToMinute(raw), nil
}

// normalizeToMinute rescales raw multiplicatively so its elements sum to
// exactly minuteNs, then floors each to an integer nanosecond count. Any
// drift introduced by flooring is swept entirely into the final element so
// the returned sequence's total is exact.
func normalizeToMinute(raw []float64) []int64 {
	var sum float64
	for _, v := range raw {
		sum += v
	}
	out := make([]int64, len(raw))
	if sum <= 0 {
		// Degenerate (e.g. all-zero draws): fall back to equidistant spacing.
		each := minuteNs / int64(len(raw))
		for i := range out {
			out[i] = each
		}
		out[len(out)-1] += minuteNs - each*int64(len(raw))
		return out
	}
	scale := float64(minuteNs) / sum
	var floored int64
	for i, v := range raw {
		scaledNs := int64(v * scale) // floor via truncation toward zero (values are >=0)
		if scaledNs < 0 {
			scaledNs = 0
		}
		out[i] = scaledNs
		floored += scaledNs
	}
	out[len(out)-1] += minuteNs - floored
	return out
}
