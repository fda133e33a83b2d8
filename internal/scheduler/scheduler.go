// Package scheduler implements the elastic replica scheduler (C6): a gRPC
// service that accepts a streamed batch of job descriptors and a trailing
// GPU budget, and returns a single replica plan under an EDF-like policy
// with switching-cost hysteresis.
//
// The allocation algorithm below is a direct port of the original
// implementation's ExecuteStream handler (cmd/sched_func.py): same
// deadline-ascending sort, the same restricted allocation set {1,2} ∪
// {4k}, the same integer-division remaining-time estimate, and the same
// two-pass fallback fill for jobs that could not be scheduled under any
// candidate replica count.
package scheduler

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vhive-serverless/loadgen/internal/schedpb"
)

// batchSizeUnit is the fixed per-replica work unit (§4.6: batchsize/32)
// the original implementation divides by when estimating remaining time
// and desired replica count.
const batchSizeUnit = 32

// switchingCostMs is the hysteresis penalty added when a candidate
// replica count differs from a job's previous assignment (§4.6: Δ).
const switchingCostMs = 1000

// elasticAlgorithms triggers the allocation policy; any other value
// (including "none") yields an all-zero plan, e.g. when the scheduler
// variant is disabled for a run.
var elasticAlgorithms = map[string]bool{
	"elastic_flow": true,
	"infless":      true,
	"elastic":      true,
}

// job is the scheduler's internal view of one streamed request, retaining
// input order for stable tie-breaking within equal deadlines.
type job struct {
	order       int
	name        string
	batchsize   int64
	deadline    int64
	iterations  int64
	prevReplica int64
}

// Server implements schedpb.ExecutorServer. TotalGPU bounds the
// allocation set's {4k} tier (k ranges 1..TotalGPU/4); it is the cluster's
// fixed GPU capacity, not a per-round budget (the per-round budget arrives
// on the wire as availableGPU).
type Server struct {
	TotalGPU int
}

// NewServer builds a Server with the cluster's fixed GPU capacity.
func NewServer(totalGPU int) *Server {
	return &Server{TotalGPU: totalGPU}
}

// Execute services a single-job scheduling request outside a stream,
// matching the original implementation's trivial Execute stub: it always
// grants one replica and reports a fixed overhead of 1. Callers needing the
// real allocation policy use ExecuteStream.
func (s *Server) Execute(ctx context.Context, req *schedpb.JobRequest) (*schedpb.SchedReply, error) {
	return &schedpb.SchedReply{
		InvocationName: []string{req.InvocationName},
		Replica:        []int64{1},
		SchedOverhead:  1,
	}, nil
}

// ExecuteStream receives one round's job descriptors, computes the
// replica plan, and sends a single terminal reply once the client closes
// its send side.
func (s *Server) ExecuteStream(stream schedpb.Executor_ExecuteStreamServer) error {
	start := time.Now()

	var jobs []job
	var availableGPU int64
	var schedAlg string
	var runtimeMs int64

	for i := 0; ; i++ {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if req.Batchsize < 0 || req.Deadline < 0 || req.Iterations < 0 {
			logrus.WithField("invocation", req.InvocationName).Warn("malformed scheduling request, treating as zero-allocation")
			jobs = append(jobs, job{order: i, name: req.InvocationName})
			continue
		}
		jobs = append(jobs, job{
			order:       i,
			name:        req.InvocationName,
			batchsize:   req.Batchsize,
			deadline:    req.Deadline,
			iterations:  req.Iterations,
			prevReplica: req.PrevReplica,
		})
		availableGPU = req.AvailableGPU
		schedAlg = req.SchedAlg
		runtimeMs = req.RuntimeInMilliSec
	}

	logrus.WithFields(logrus.Fields{"sched_alg": schedAlg, "available_gpu": availableGPU}).Info("scheduling round received")

	plan := allocate(jobs, availableGPU, schedAlg, runtimeMs, s.allocationSet())

	names := make([]string, len(jobs))
	replicas := make([]int64, len(jobs))
	for i, j := range jobs {
		names[i] = j.name
		replicas[i] = plan[j.name]
	}

	overheadSeconds := int64(time.Since(start).Seconds())
	return stream.SendAndClose(&schedpb.SchedReply{
		InvocationName: names,
		Replica:        replicas,
		SchedOverhead:  overheadSeconds,
	})
}

// allocationSet builds A = {1, 2} ∪ {4k : 1 <= k <= TotalGPU/4}, matching
// the original implementation's "allocation_set = [1, 2] + [i*4 for i in
// range(1, TotalGPU//4+1)]" enumeration order exactly.
func (s *Server) allocationSet() []int64 {
	set := []int64{1, 2}
	for k := int64(1); k <= int64(s.TotalGPU)/4; k++ {
		set = append(set, k*4)
	}
	return set
}

// allocate runs the deadline-ordered, switching-cost-aware allocation
// pass followed by the second-pass fallback fill, returning a replica
// count per job name.
func allocate(jobs []job, availableGPU int64, schedAlg string, runtimeMs int64, allocationSet []int64) map[string]int64 {
	plan := make(map[string]int64, len(jobs))
	for _, j := range jobs {
		plan[j.name] = 0
	}
	if !elasticAlgorithms[schedAlg] {
		return plan
	}

	desired := make(map[string]int64, len(jobs))
	for _, j := range jobs {
		desired[j.name] = j.batchsize / batchSizeUnit
	}

	pending := make([]job, len(jobs))
	copy(pending, jobs)
	sort.SliceStable(pending, func(i, k int) bool { return pending[i].deadline < pending[k].deadline })

	remaining := availableGPU
	for len(pending) > 0 && remaining > 0 {
		j := pending[0]
		pending = pending[1:]

		var allocated int64
		for _, a := range allocationSet {
			if a == 0 {
				continue
			}
			remainingTime := j.batchsize * runtimeMs / batchSizeUnit * j.iterations / a
			delta := int64(0)
			if a != j.prevReplica {
				delta = switchingCostMs
			}
			if remainingTime+delta < j.deadline {
				allocated = a
				break
			}
		}

		plan[j.name] = allocated
		remaining -= allocated
	}

	for _, j := range jobs {
		if plan[j.name] == 0 && remaining > 0 {
			grant := desired[j.name]
			if grant > remaining {
				grant = remaining
			}
			plan[j.name] = grant
			remaining -= grant
		}
	}

	return plan
}
