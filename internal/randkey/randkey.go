// Package randkey derives deterministic, independent RNG streams for the
// components that need randomness (per-function IAT and percentile
// sampling) from a single run seed.
package randkey

import (
	"hash/fnv"
	"math/rand"
)

// PartitionedRNG hands out one *rand.Rand per named subsystem, each seeded
// deterministically from a master seed so that two runs with the same seed
// produce identical streams regardless of which subsystems are touched
// first (order-independent derivation).
type PartitionedRNG struct {
	masterSeed int64
	streams    map[string]*rand.Rand
}

// New creates a PartitionedRNG rooted at masterSeed.
func New(masterSeed int64) *PartitionedRNG {
	return &PartitionedRNG{
		masterSeed: masterSeed,
		streams:    make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns the RNG for name, creating it on first use. Repeated
// calls with the same name return the same instance.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.streams[name]; ok {
		return rng
	}
	rng := rand.New(rand.NewSource(p.deriveSeed(name)))
	p.streams[name] = rng
	return rng
}

// ForFunction returns the RNG for a given function name, isolating each
// function's arrival/percentile sampling from the others under parallel
// drivers.
func (p *PartitionedRNG) ForFunction(name string) *rand.Rand {
	return p.ForSubsystem("function_" + name)
}

// deriveSeed combines the master seed with a hash of the subsystem name so
// derivation does not depend on call order.
func (p *PartitionedRNG) deriveSeed(name string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(name))
	return p.masterSeed ^ int64(h.Sum64())
}

// Subsystem name constants for the fixed (non-per-function) streams.
const (
	SubsystemScheduler = "scheduler"
	SubsystemTelemetry = "telemetry"
)
