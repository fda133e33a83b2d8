// Package driver implements the per-function invocation driver (C3): the
// arrival loop that sleeps to each spec's absolute planned start, fires the
// Function RPC without blocking later arrivals (unless single-slot mode is
// set), and appends one invocation record per attempt.
package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vhive-serverless/loadgen/internal/eventqueue"
	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/specgen"
)

// Status is the terminal outcome of one attempted invocation.
type Status string

const (
	StatusOK      Status = "ok"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
	StatusSkipped Status = "skipped"
)

// lateThreshold is the dispatch-lateness flag boundary from §4.3.
const lateThreshold = 10 * time.Millisecond

// minTimeout is the floor applied to the RPC timeout regardless of the
// requested duration (§4.3: max(2*requested_duration, 2s)).
const minTimeout = 2 * time.Second

// InvocationRecord is one attempted-call outcome (§3).
type InvocationRecord struct {
	FunctionName        string
	PlannedStartNs      int64
	ActualStartNs       int64
	EndNs               int64
	RequestedDurationMs float64
	ObservedDurationUs  int64
	ResponseTimeUs      int64
	Status              Status
}

// Driver is the per-function invocation driver. A Driver instance is owned
// by exactly one goroutine (the orchestrator's minute-tick caller); the RPC
// tasks it spawns are the only other concurrent users of its fields, and
// those only touch the atomic busy/failure counters.
type Driver struct {
	FunctionName string

	client     faaspb.FunctionExecutorClient
	records    chan<- InvocationRecord
	singleSlot bool

	// failureThreshold is F_threshold from §4.3: the overload signal is
	// raised once when the consecutive RPC failure count reaches it.
	failureThreshold int
	onOverload       func(functionName string)

	busy                atomic.Bool
	consecutiveFailures atomic.Int64

	wg sync.WaitGroup
}

// Config bundles the fixed parameters of a Driver.
type Config struct {
	FunctionName     string
	Client           faaspb.FunctionExecutorClient
	Records          chan<- InvocationRecord
	SingleSlot       bool
	FailureThreshold int
	OnOverload       func(functionName string)
}

// New builds a Driver in the ready state.
func New(cfg Config) *Driver {
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = 5
	}
	return &Driver{
		FunctionName:     cfg.FunctionName,
		client:           cfg.Client,
		records:          cfg.Records,
		singleSlot:       cfg.SingleSlot,
		failureThreshold: threshold,
		onOverload:       cfg.OnOverload,
	}
}

// RunMinute executes the arrival loop over one minute's ordered specs.
// runStart anchors t_offset to an absolute wall-clock deadline; graceWindow
// is the T_grace tolerance (§4.7) during which RPC failures are recorded
// but never counted toward the overload threshold, covering the race
// between a planner-client resize and the first arrivals of the minute.
//
// RunMinute returns once every spec has been dispatched (not necessarily
// completed); in-flight RPCs continue under ctx and report to d.records
// asynchronously. Call Wait to block for their completion.
func (d *Driver) RunMinute(ctx context.Context, specs []specgen.InvocationSpec, runStart time.Time, graceWindow time.Duration) {
	// Specs arrive already offset-sorted from C2, but dispatch is driven
	// through the priority queue rather than the slice directly: it is the
	// mechanism that actually guarantees the strictly non-decreasing
	// planned-start invariant (§3) instead of merely assuming the caller
	// preserved it.
	queue := eventqueue.New()
	for _, s := range specs {
		queue.Schedule(s.OffsetNs, s)
	}

	for {
		item, ok := queue.Next()
		if !ok {
			break
		}
		s := item.Value.(specgen.InvocationSpec)
		deadline := runStart.Add(time.Duration(s.OffsetNs))
		if wait := time.Until(deadline); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}

		actualStart := time.Now()
		if lateBy := actualStart.Sub(deadline); lateBy > lateThreshold {
			logrus.WithFields(logrus.Fields{
				"function": d.FunctionName,
				"late_by":  lateBy,
			}).Warn("invocation dispatched late")
		}

		if d.singleSlot && d.busy.Load() {
			d.emit(InvocationRecord{
				FunctionName:        d.FunctionName,
				PlannedStartNs:      s.OffsetNs,
				ActualStartNs:       actualStart.UnixNano(),
				Status:              StatusSkipped,
				RequestedDurationMs: s.RuntimeMs,
			})
			continue
		}

		d.busy.Store(true)
		inGrace := graceWindow > 0 && time.Since(runStart) < graceWindow

		d.wg.Add(1)
		go d.fire(ctx, s, actualStart, inGrace)
	}
}

// Wait blocks until every RPC task spawned by prior RunMinute calls has
// completed, bounded by the caller's context (the orchestrator's grace
// window on cancellation).
func (d *Driver) Wait() {
	d.wg.Wait()
}

func (d *Driver) fire(ctx context.Context, s specgen.InvocationSpec, actualStart time.Time, inGrace bool) {
	defer d.wg.Done()
	defer d.busy.Store(false)

	timeout := time.Duration(2*s.RuntimeMs) * time.Millisecond
	if timeout < minTimeout {
		timeout = minTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req := &faaspb.ExecuteRequest{
		RuntimeInMilliSec: int64(s.RuntimeMs),
		MemoryInMebiBytes: int64(s.MemoryMib),
	}
	if s.HasScheduler {
		req.Batchsize = int64(s.Batchsize)
	}

	reply, err := d.client.Execute(callCtx, req)
	end := time.Now()

	record := InvocationRecord{
		FunctionName:        d.FunctionName,
		PlannedStartNs:      s.OffsetNs,
		ActualStartNs:       actualStart.UnixNano(),
		EndNs:               end.UnixNano(),
		RequestedDurationMs: s.RuntimeMs,
		ResponseTimeUs:      end.Sub(actualStart).Microseconds(),
	}

	switch {
	case err == nil:
		record.Status = StatusOK
		record.ObservedDurationUs = reply.DurationInMicroSec
		d.consecutiveFailures.Store(0)
	case callCtx.Err() == context.DeadlineExceeded:
		record.Status = StatusTimeout
		d.noteFailure(inGrace)
	default:
		record.Status = StatusFailed
		d.noteFailure(inGrace)
	}

	d.emit(record)
}

// noteFailure advances the consecutive-failure counter and raises the
// overload signal once it reaches failureThreshold, unless the failure
// fell inside the planner-client's resize grace window (§4.7).
func (d *Driver) noteFailure(inGrace bool) {
	if inGrace {
		return
	}
	n := d.consecutiveFailures.Add(1)
	if n == int64(d.failureThreshold) && d.onOverload != nil {
		d.onOverload(d.FunctionName)
	}
}

func (d *Driver) emit(r InvocationRecord) {
	if d.records == nil {
		return
	}
	d.records <- r
}
