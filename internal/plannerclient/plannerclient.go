// Package plannerclient implements the planner client (C7): once per
// minute tick in scheduler mode, it gathers the active job descriptors,
// calls the elastic scheduler (C6) over its streaming RPC, resizes each
// function's runtime to match the returned plan, and persists a per-job
// audit row before handing that minute's specs to the invocation driver.
package plannerclient

import (
	"context"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/output"
	"github.com/vhive-serverless/loadgen/internal/schedpb"
)

// streamTimeout is the fixed Scheduler RPC deadline (§5: "Scheduler RPCs
// have a fixed deadline of 10 s").
const streamTimeout = 10 * time.Second

// GraceWindow is T_grace (§4.7): the window after a resize during which
// the invocation driver tolerates endpoint errors without raising
// overload, since the runtime may still be converging on the new replica
// count.
const GraceWindow = 2 * time.Second

// JobDescriptor is one function's scheduling state, owned by the planner
// client and refreshed each round (§3).
type JobDescriptor struct {
	Name                string
	Batchsize           int64
	DeadlineMs          int64
	IterationsRemaining int64
	PrevReplica         int64
	RuntimeMs           int64
}

// Client drives one scheduling round per minute tick.
type Client struct {
	scheduler schedpb.ExecutorClient
	functions faaspb.FunctionExecutorClient
	jobLog    *output.JobLogWriter

	availableGPU int64
	schedAlg     string

	jobs map[string]*JobDescriptor
}

// Config bundles a Client's fixed collaborators.
type Config struct {
	Scheduler    schedpb.ExecutorClient
	Functions    faaspb.FunctionExecutorClient
	JobLog       *output.JobLogWriter
	AvailableGPU int64
	SchedAlg     string
}

// New builds a planner Client with no active jobs.
func New(cfg Config) *Client {
	return &Client{
		scheduler:    cfg.Scheduler,
		functions:    cfg.Functions,
		jobLog:       cfg.JobLog,
		availableGPU: cfg.AvailableGPU,
		schedAlg:     cfg.SchedAlg,
		jobs:         make(map[string]*JobDescriptor),
	}
}

// Track registers or refreshes a function's job descriptor ahead of a
// round. Functions with IterationsRemaining <= 0 are dropped from the
// active set (§3 lifecycle: "deleted when iterations_remaining reaches 0").
func (c *Client) Track(desc JobDescriptor) {
	if desc.IterationsRemaining <= 0 {
		delete(c.jobs, desc.Name)
		return
	}
	if existing, ok := c.jobs[desc.Name]; ok {
		desc.PrevReplica = existing.PrevReplica
	}
	c.jobs[desc.Name] = &desc
}

// RunRound executes one scheduling round (§4.7 steps 1-4): stream the
// active job descriptors to C6, apply the returned plan via resize
// requests, and persist the audit log. It returns the new replica count
// per function name.
func (c *Client) RunRound(ctx context.Context, round int) (map[string]int64, error) {
	if len(c.jobs) == 0 {
		return map[string]int64{}, nil
	}

	streamCtx, cancel := context.WithTimeout(ctx, streamTimeout)
	defer cancel()

	stream, err := c.scheduler.ExecuteStream(streamCtx)
	if err != nil {
		return nil, err
	}

	// Sorted, not map iteration order: the stream's send order is the
	// scheduler's deadline-tie-break input, and that must be deterministic
	// across runs/processes for a fixed seed (§8).
	order := make([]string, 0, len(c.jobs))
	for name := range c.jobs {
		order = append(order, name)
	}
	sort.Strings(order)
	for _, name := range order {
		job := c.jobs[name]
		req := &schedpb.JobRequest{
			InvocationName:    job.Name,
			Batchsize:         job.Batchsize,
			Deadline:          job.DeadlineMs,
			Iterations:        job.IterationsRemaining,
			PrevReplica:       job.PrevReplica,
			RuntimeInMilliSec: job.RuntimeMs,
			AvailableGPU:      c.availableGPU,
			SchedAlg:          c.schedAlg,
		}
		if err := stream.Send(req); err != nil {
			return nil, err
		}
	}

	reply, err := stream.CloseAndRecv()
	if err != nil {
		return nil, err
	}

	plan := make(map[string]int64, len(reply.InvocationName))
	for i, name := range reply.InvocationName {
		plan[name] = reply.Replica[i]
	}

	for _, name := range order {
		job := c.jobs[name]
		newReplica := plan[name]

		if c.functions != nil {
			resizeCtx, resizeCancel := context.WithTimeout(ctx, GraceWindow)
			_, err := c.functions.Resize(resizeCtx, &faaspb.ResizeRequest{FunctionName: name, Replicas: newReplica})
			resizeCancel()
			if err != nil {
				logrus.WithError(err).WithField("function", name).Warn("resize request failed")
			}
		}

		if c.jobLog != nil {
			if err := c.jobLog.Write(output.JobLogRow{
				Round:               round,
				Name:                name,
				PrevReplica:         job.PrevReplica,
				NewReplica:          newReplica,
				DeadlineMs:          job.DeadlineMs,
				IterationsRemaining: job.IterationsRemaining,
			}); err != nil {
				logrus.WithError(err).Warn("failed to write job log row")
			}
		}

		job.PrevReplica = newReplica
	}

	return plan, nil
}
