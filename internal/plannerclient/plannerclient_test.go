package plannerclient

import (
	"context"
	"testing"

	"google.golang.org/grpc"

	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/schedpb"
)

// fakeSchedulerClient records every streamed request; its stream reply
// grants two replicas per job (the unary Execute grants one).
type fakeSchedulerClient struct {
	sent []*schedpb.JobRequest
}

func (f *fakeSchedulerClient) Execute(ctx context.Context, in *schedpb.JobRequest, opts ...grpc.CallOption) (*schedpb.SchedReply, error) {
	return &schedpb.SchedReply{InvocationName: []string{in.InvocationName}, Replica: []int64{1}}, nil
}

func (f *fakeSchedulerClient) ExecuteStream(ctx context.Context, opts ...grpc.CallOption) (schedpb.Executor_ExecuteStreamClient, error) {
	return &fakeStreamClient{parent: f}, nil
}

type fakeStreamClient struct {
	grpc.ClientStream
	parent *fakeSchedulerClient
}

func (s *fakeStreamClient) Send(req *schedpb.JobRequest) error {
	s.parent.sent = append(s.parent.sent, req)
	return nil
}

func (s *fakeStreamClient) CloseAndRecv() (*schedpb.SchedReply, error) {
	names := make([]string, len(s.parent.sent))
	replicas := make([]int64, len(s.parent.sent))
	for i, req := range s.parent.sent {
		names[i] = req.InvocationName
		replicas[i] = 2
	}
	return &schedpb.SchedReply{InvocationName: names, Replica: replicas, SchedOverhead: 1}, nil
}

// fakeFunctionClient records resize calls.
type fakeFunctionClient struct {
	resized map[string]int64
}

func (f *fakeFunctionClient) Execute(ctx context.Context, in *faaspb.ExecuteRequest, opts ...grpc.CallOption) (*faaspb.ExecuteReply, error) {
	return &faaspb.ExecuteReply{}, nil
}

func (f *fakeFunctionClient) Resize(ctx context.Context, in *faaspb.ResizeRequest, opts ...grpc.CallOption) (*faaspb.ResizeReply, error) {
	if f.resized == nil {
		f.resized = make(map[string]int64)
	}
	f.resized[in.FunctionName] = in.Replicas
	return &faaspb.ResizeReply{Applied: true}, nil
}

func TestRunRound_NoActiveJobs_ReturnsEmptyPlan(t *testing.T) {
	sched := &fakeSchedulerClient{}
	c := New(Config{Scheduler: sched})
	plan, err := c.RunRound(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(plan) != 0 {
		t.Errorf("want empty plan, got %v", plan)
	}
	if len(sched.sent) != 0 {
		t.Error("no RPC should be issued with no active jobs")
	}
}

func TestRunRound_AppliesPlanAndResizes(t *testing.T) {
	sched := &fakeSchedulerClient{}
	fns := &fakeFunctionClient{}
	c := New(Config{Scheduler: sched, Functions: fns, AvailableGPU: 10, SchedAlg: "elastic"})

	c.Track(JobDescriptor{Name: "fn-a", Batchsize: 64, DeadlineMs: 5000, IterationsRemaining: 3, RuntimeMs: 10})
	c.Track(JobDescriptor{Name: "fn-b", Batchsize: 32, DeadlineMs: 3000, IterationsRemaining: 2, RuntimeMs: 5})

	plan, err := c.RunRound(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if plan["fn-a"] != 2 || plan["fn-b"] != 2 {
		t.Fatalf("want both functions granted 2 replicas, got %v", plan)
	}
	if fns.resized["fn-a"] != 2 || fns.resized["fn-b"] != 2 {
		t.Fatalf("want both functions resized to 2, got %v", fns.resized)
	}
	if c.jobs["fn-a"].PrevReplica != 2 {
		t.Errorf("prev replica not updated for next round: %+v", c.jobs["fn-a"])
	}
}

func TestRunRound_SendsDescriptorsInSortedOrder(t *testing.T) {
	sched := &fakeSchedulerClient{}
	c := New(Config{Scheduler: sched, AvailableGPU: 10, SchedAlg: "elastic"})

	c.Track(JobDescriptor{Name: "fn-z", Batchsize: 32, DeadlineMs: 5000, IterationsRemaining: 1, RuntimeMs: 10})
	c.Track(JobDescriptor{Name: "fn-a", Batchsize: 32, DeadlineMs: 5000, IterationsRemaining: 1, RuntimeMs: 10})
	c.Track(JobDescriptor{Name: "fn-m", Batchsize: 32, DeadlineMs: 5000, IterationsRemaining: 1, RuntimeMs: 10})

	if _, err := c.RunRound(context.Background(), 1); err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, req := range sched.sent {
		got = append(got, req.InvocationName)
	}
	want := []string{"fn-a", "fn-m", "fn-z"}
	for i, name := range want {
		if got[i] != name {
			t.Fatalf("send order = %v, want %v (sorted by name)", got, want)
		}
	}
}

func TestTrack_DropsJobWhenIterationsExhausted(t *testing.T) {
	c := New(Config{})
	c.Track(JobDescriptor{Name: "fn-a", IterationsRemaining: 5})
	if _, ok := c.jobs["fn-a"]; !ok {
		t.Fatal("expected fn-a to be tracked")
	}
	c.Track(JobDescriptor{Name: "fn-a", IterationsRemaining: 0})
	if _, ok := c.jobs["fn-a"]; ok {
		t.Fatal("expected fn-a to be dropped once iterations_remaining hits 0")
	}
}

func TestTrack_PreservesPrevReplicaAcrossRounds(t *testing.T) {
	c := New(Config{})
	c.Track(JobDescriptor{Name: "fn-a", IterationsRemaining: 5, PrevReplica: 0})
	c.jobs["fn-a"].PrevReplica = 4
	c.Track(JobDescriptor{Name: "fn-a", IterationsRemaining: 3, PrevReplica: 0})
	if c.jobs["fn-a"].PrevReplica != 4 {
		t.Errorf("PrevReplica = %d, want preserved 4", c.jobs["fn-a"].PrevReplica)
	}
}
