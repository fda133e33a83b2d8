package scheduler

import (
	"context"
	"io"
	"testing"

	"google.golang.org/grpc"

	"github.com/vhive-serverless/loadgen/internal/schedpb"
)

// fakeStream is an in-process schedpb.Executor_ExecuteStreamServer driven
// by a fixed slice of requests, recording the single terminal reply.
type fakeStream struct {
	grpc.ServerStream
	reqs  []*schedpb.JobRequest
	index int
	reply *schedpb.SchedReply
}

func (f *fakeStream) Recv() (*schedpb.JobRequest, error) {
	if f.index >= len(f.reqs) {
		return nil, io.EOF
	}
	req := f.reqs[f.index]
	f.index++
	return req, nil
}

func (f *fakeStream) SendAndClose(reply *schedpb.SchedReply) error {
	f.reply = reply
	return nil
}

func (f *fakeStream) Context() context.Context { return context.Background() }

func runStream(t *testing.T, s *Server, reqs []*schedpb.JobRequest) *schedpb.SchedReply {
	t.Helper()
	stream := &fakeStream{reqs: reqs}
	if err := s.ExecuteStream(stream); err != nil {
		t.Fatalf("ExecuteStream: %v", err)
	}
	return stream.reply
}

func TestExecuteStream_NoneAlgorithm_AllZero(t *testing.T) {
	s := NewServer(40)
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "a", Batchsize: 64, Deadline: 5000, Iterations: 1, AvailableGPU: 10, SchedAlg: "none"},
	})
	if reply.Replica[0] != 0 {
		t.Errorf("want 0 replicas under sched_alg=none, got %d", reply.Replica[0])
	}
}

func TestExecuteStream_SingleJob_FitsWithinDeadline(t *testing.T) {
	s := NewServer(40)
	// batchsize/32=2 desired, runtime 10ms, iterations 100:
	// a=1: remainingTime = 2*10*100/1 = 2000, +1000 switch = 3000 < 5000 -> allocate 1.
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "a", Batchsize: 64, Deadline: 5000, Iterations: 100, RuntimeInMilliSec: 10, AvailableGPU: 10, SchedAlg: "elastic"},
	})
	if len(reply.Replica) != 1 || reply.Replica[0] != 1 {
		t.Fatalf("want [1], got %v", reply.Replica)
	}
	if reply.InvocationName[0] != "a" {
		t.Errorf("invocation name mismatch: %v", reply.InvocationName)
	}
}

func TestExecuteStream_TightDeadline_PicksLargerReplica(t *testing.T) {
	s := NewServer(40)
	// a=1: remainingTime = 2*10*100/1=2000 +1000=3000, not < 1500.
	// a=2: remainingTime = 2*10*100/2=1000 +1000=2000, not < 1500.
	// a=4: remainingTime = 2*10*100/4=500 +1000=1500, not < 1500 (strict <).
	// a=8: remainingTime = 2*10*100/8=250 +1000=1250 < 1500 -> allocate 8.
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "a", Batchsize: 64, Deadline: 1500, Iterations: 100, RuntimeInMilliSec: 10, AvailableGPU: 10, SchedAlg: "elastic"},
	})
	if reply.Replica[0] != 8 {
		t.Fatalf("want replica 8, got %d", reply.Replica[0])
	}
}

func TestExecuteStream_DeadlineOrdering_EarlierDeadlineFirst(t *testing.T) {
	s := NewServer(8)
	// Two jobs competing for a single GPU; the earlier deadline job is
	// considered first, but no candidate meets its deadline, so it takes
	// nothing and the later-deadline job gets the GPU.
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "late", Batchsize: 32, Deadline: 9000, Iterations: 1, RuntimeInMilliSec: 10, AvailableGPU: 1, SchedAlg: "elastic"},
		{InvocationName: "early", Batchsize: 32, Deadline: 1, Iterations: 1, RuntimeInMilliSec: 10, AvailableGPU: 1, SchedAlg: "elastic"},
	})
	got := map[string]int64{}
	for i, name := range reply.InvocationName {
		got[name] = reply.Replica[i]
	}
	if got["early"] != 0 {
		t.Errorf("early job with an impossible deadline should get 0, got %d", got["early"])
	}
	if got["late"] != 1 {
		t.Errorf("late job should take the single available GPU, got %d", got["late"])
	}
}

func TestExecuteStream_SecondPassFallback_GrantsDesiredReplicas(t *testing.T) {
	s := NewServer(40)
	// Deadline of 1 cannot be met by any candidate, so the first pass
	// leaves this job at 0; the second pass should grant min(desired, remaining).
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "a", Batchsize: 64, Deadline: 1, Iterations: 100, RuntimeInMilliSec: 10, AvailableGPU: 10, SchedAlg: "elastic"},
	})
	if reply.Replica[0] != 2 {
		t.Fatalf("want fallback grant of desired=batchsize/32=2, got %d", reply.Replica[0])
	}
}

func TestExecuteStream_NonMultipleOfThirtyTwoBatchsize_MultipliesBeforeDividing(t *testing.T) {
	s := NewServer(40)
	// batchsize=50 is not a multiple of 32, so the order of operations
	// matters: (batchsize*runtime/32)*iterations/a = (1500/32)*2/a =
	// 46*2/a = 92/a. The wrong order, (batchsize/32)*runtime*iterations/a,
	// would give 1*30*2/a = 60/a and pick a different replica count:
	// a=2: 30+1000=1030 < 1040 -> allocate 2.
	// Correct order: a=1: 92+1000=1092, a=2: 46+1000=1046, a=4: 23+1000=1023 < 1040 -> allocate 4.
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "a", Batchsize: 50, Deadline: 1040, Iterations: 2, RuntimeInMilliSec: 30, AvailableGPU: 10, SchedAlg: "elastic"},
	})
	if reply.Replica[0] != 4 {
		t.Fatalf("want replica 4 under the batchsize*runtime/32 evaluation order, got %d", reply.Replica[0])
	}
}

func TestExecuteStream_MalformedRequest_ZeroAllocationNoAbort(t *testing.T) {
	s := NewServer(40)
	reply := runStream(t, s, []*schedpb.JobRequest{
		{InvocationName: "bad", Batchsize: -1, Deadline: 5000, Iterations: 1, AvailableGPU: 10, SchedAlg: "elastic"},
		{InvocationName: "good", Batchsize: 32, Deadline: 5000, Iterations: 1, RuntimeInMilliSec: 1, AvailableGPU: 10, SchedAlg: "elastic"},
	})
	got := map[string]int64{}
	for i, name := range reply.InvocationName {
		got[name] = reply.Replica[i]
	}
	if got["bad"] != 0 {
		t.Errorf("malformed request should yield 0 allocation, got %d", got["bad"])
	}
}
