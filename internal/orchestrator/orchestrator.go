// Package orchestrator implements the run orchestrator (C4): it owns the
// run clock, advances it in one-minute ticks across the warm-up and
// steady-state phases, hands each minute's generated specs to the
// per-function invocation drivers, spawns the telemetry collector, and
// tears the run down on completion or cancellation.
//
// The run-once guard and panic-on-reentry idiom on Run is kept from the
// teacher's ClusterSimulator.Run, which forbids running the same
// simulator twice.
package orchestrator

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/vhive-serverless/loadgen/internal/config"
	"github.com/vhive-serverless/loadgen/internal/driver"
	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/iat"
	"github.com/vhive-serverless/loadgen/internal/output"
	"github.com/vhive-serverless/loadgen/internal/plannerclient"
	"github.com/vhive-serverless/loadgen/internal/randkey"
	"github.com/vhive-serverless/loadgen/internal/specgen"
	"github.com/vhive-serverless/loadgen/internal/telemetry"
	"github.com/vhive-serverless/loadgen/internal/tracedata"
)

// terminationGrace is the fixed grace window (§5) the orchestrator waits
// for in-flight RPCs to drain once the run's minutes are exhausted or a
// cancellation signal arrives.
const terminationGrace = 30 * time.Second

// functionRuntime pairs a function descriptor with its dedicated driver
// and the independent RNG stream it draws specs from.
type functionRuntime struct {
	desc   *tracedata.FunctionDescriptor
	driver *driver.Driver
	rng    *rand.Rand

	// iterationsRemaining mirrors the planner client's job-descriptor
	// lifecycle (§3): it starts at desc.Iterations and is decremented by
	// the number of specs generated each minute, reaching 0 once the function's work is
	// exhausted and its descriptor is dropped from the active scheduling set.
	iterationsRemaining int64
}

// overloadFlag is the process-wide signal any driver can raise and only
// the orchestrator reads (§5: "Overload flag: atomic boolean set by any
// driver, read by C4").
type overloadFlag struct {
	mu  sync.Mutex
	set bool
}

func (f *overloadFlag) Set()      { f.mu.Lock(); f.set = true; f.mu.Unlock() }
func (f *overloadFlag) Get() bool { f.mu.Lock(); defer f.mu.Unlock(); return f.set }

// Orchestrator owns one run end to end.
type Orchestrator struct {
	cfg       config.RunConfig
	functions []*functionRuntime
	records   chan driver.InvocationRecord
	snapshots chan telemetry.ClusterSnapshot
	planner   *plannerclient.Client
	collector *telemetry.Collector

	overload overloadFlag

	mu     sync.Mutex
	hasRun bool
}

// New bootstraps an Orchestrator: it resolves one driver per function
// descriptor against the given RPC client factory (§4.4 step 1). planner
// and collector may be nil when the run disables the scheduler variant
// or metrics scraping respectively.
func New(cfg config.RunConfig, descriptors []*tracedata.FunctionDescriptor, clientFor func(name string) faaspb.FunctionExecutorClient, planner *plannerclient.Client, collector *telemetry.Collector) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg,
		records:   make(chan driver.InvocationRecord, 1024),
		snapshots: make(chan telemetry.ClusterSnapshot, 1),
		planner:   planner,
		collector: collector,
	}

	rngs := randkey.New(cfg.Seed)
	for _, desc := range descriptors {
		client := clientFor(desc.Name)
		fr := &functionRuntime{
			desc: desc,
			rng:  rngs.ForFunction(desc.Name),
		}
		if desc.HasScheduler {
			fr.iterationsRemaining = int64(desc.Iterations)
		}
		fr.driver = driver.New(driver.Config{
			FunctionName:     desc.Name,
			Client:           client,
			Records:          o.records,
			SingleSlot:       cfg.SingleSlot,
			FailureThreshold: 5,
			OnOverload: func(name string) {
				logrus.WithField("function", name).Warn("driver reported overload")
				o.overload.Set()
			},
		})
		o.functions = append(o.functions, fr)
	}

	return o
}

// Run executes the full lifecycle: warm-up, steady-state minutes,
// termination. Panics if called more than once, matching the teacher's
// single-run guard.
func (o *Orchestrator) Run(ctx context.Context, paths output.Paths) error {
	o.mu.Lock()
	if o.hasRun {
		o.mu.Unlock()
		panic("Orchestrator.Run called more than once")
	}
	o.hasRun = true
	o.mu.Unlock()

	expWriter, err := output.NewExperimentWriter(paths.Experiment())
	if err != nil {
		return err
	}
	defer expWriter.Close()

	var clusterWriter *output.ClusterUsageWriter
	if o.cfg.EnableMetricsScrapping && o.collector != nil {
		clusterWriter, err = output.NewClusterUsageWriter(paths.ClusterUsage())
		if err != nil {
			return err
		}
		defer clusterWriter.Close()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var consumers sync.WaitGroup
	consumers.Add(1)
	go func() {
		defer consumers.Done()
		for r := range o.records {
			if err := expWriter.Write(r); err != nil {
				logrus.WithError(err).Warn("failed to write invocation record")
			}
		}
	}()

	if clusterWriter != nil {
		period := time.Duration(o.cfg.MetricScrapingPeriodSeconds) * time.Second
		go o.collector.Run(runCtx, period, o.snapshots)
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for s := range o.snapshots {
				if err := clusterWriter.Write(s); err != nil {
					logrus.WithError(err).Warn("failed to write cluster snapshot")
				}
			}
		}()
	}

	runStart := time.Now()
	var round int

	for k := 1; k <= o.cfg.WarmupDuration; k++ {
		minuteStart := runStart.Add(time.Duration(k-1) * time.Minute)
		o.dispatchMinute(runCtx, specgen.MinuteRef{Warmup: true, Index: k}, minuteStart, &round)
		if waitUntilNextMinute(runCtx, minuteStart) {
			break
		}
	}

	steadyStart := runStart.Add(time.Duration(o.cfg.WarmupDuration) * time.Minute)
	for m := 0; m < o.cfg.Duration; m++ {
		if runCtx.Err() != nil {
			break
		}
		minuteStart := steadyStart.Add(time.Duration(m) * time.Minute)
		o.dispatchMinute(runCtx, specgen.MinuteRef{Index: m}, minuteStart, &round)
		if waitUntilNextMinute(runCtx, minuteStart) {
			break
		}
	}

	drainCtx, drainCancel := context.WithTimeout(context.Background(), terminationGrace)
	for _, fr := range o.functions {
		waitForDriver(drainCtx, fr.driver)
	}
	drainCancel()

	cancel()
	close(o.records)
	consumers.Wait()

	if o.overload.Get() {
		if err := output.WriteOverloadFlag(paths); err != nil {
			logrus.WithError(err).Warn("failed to write overload sentinel")
		}
	}

	return nil
}

// waitUntilNextMinute blocks until runCtx is cancelled or the minute
// following minuteStart begins, whichever comes first. It returns true if
// the run was cancelled.
func waitUntilNextMinute(runCtx context.Context, minuteStart time.Time) bool {
	wait := time.Until(minuteStart.Add(time.Minute))
	if wait <= 0 {
		return runCtx.Err() != nil
	}
	select {
	case <-time.After(wait):
		return false
	case <-runCtx.Done():
		return true
	}
}

// waitForDriver blocks on a driver's Wait() bounded by ctx's deadline.
func waitForDriver(ctx context.Context, d *driver.Driver) {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// dispatchMinute runs an optional scheduling round (scheduler variant),
// then generates and hands each function's minute specs to its driver.
// Each driver's arrival loop for the minute runs on its own goroutine
// (one per function per minute), so functions advance concurrently and
// independently within the minute; dispatchMinute returns once every
// function's arrival loop for the minute has finished.
func (o *Orchestrator) dispatchMinute(ctx context.Context, ref specgen.MinuteRef, minuteStart time.Time, round *int) {
	grace := time.Duration(0)
	if o.planner != nil && o.cfg.SchedAlg != config.SchedAlgNone {
		*round++
		if _, err := o.planner.RunRound(ctx, *round); err != nil {
			logrus.WithError(err).Warn("scheduling round failed")
		}
		grace = plannerclient.GraceWindow
	}

	dist := iat.Distribution(o.cfg.IATDistribution)
	mode := specgen.Mode(o.cfg.Mode)

	var eg errgroup.Group
	for _, fr := range o.functions {
		p := specgen.Params{
			Mode:          mode,
			Multiplier:    o.cfg.FunctionMultiplier,
			WarmupMinutes: o.cfg.WarmupDuration,
			Distribution:  dist,
		}
		specs, err := specgen.Generate(fr.desc, ref, p, fr.rng)
		if err != nil {
			logrus.WithError(err).WithField("function", fr.desc.Name).Warn("spec generation failed for minute")
			continue
		}

		// Refresh this function's job descriptor with the progress made
		// this minute so the *next* round's ExecuteStream call (at the top
		// of the following dispatchMinute) sees an up-to-date
		// iterations_remaining (§3 lifecycle, §4.7 step 1).
		if o.planner != nil && fr.desc.HasScheduler {
			fr.iterationsRemaining -= int64(len(specs))
			if fr.iterationsRemaining < 0 {
				fr.iterationsRemaining = 0
			}
			o.planner.Track(plannerclient.JobDescriptor{
				Name:                fr.desc.Name,
				Batchsize:           int64(fr.desc.Batchsize),
				DeadlineMs:          fr.desc.DeadlineMs,
				IterationsRemaining: fr.iterationsRemaining,
				RuntimeMs:           int64(fr.desc.Duration.AverageMs),
			})
		}

		if len(specs) == 0 {
			continue
		}

		fr, specs := fr, specs
		eg.Go(func() error {
			fr.driver.RunMinute(ctx, specs, minuteStart, grace)
			return nil
		})
	}
	_ = eg.Wait()
}
