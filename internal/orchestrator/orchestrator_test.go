package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/vhive-serverless/loadgen/internal/config"
	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/output"
	"github.com/vhive-serverless/loadgen/internal/tracedata"
)

// fakeClient is a faaspb.FunctionExecutorClient that always succeeds
// instantly; it is never expected to be called in these tests since
// every run below uses a zero-minute duration (real invocation timing is
// tied to wall-clock minute boundaries by design, so exercising it end to
// end belongs in a longer-running integration test, not this unit suite).
type fakeClient struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeClient) Execute(ctx context.Context, in *faaspb.ExecuteRequest, opts ...grpc.CallOption) (*faaspb.ExecuteReply, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return &faaspb.ExecuteReply{DurationInMicroSec: 500, MemoryUsageInKb: 1024}, nil
}

func (f *fakeClient) Resize(ctx context.Context, in *faaspb.ResizeRequest, opts ...grpc.CallOption) (*faaspb.ResizeReply, error) {
	return &faaspb.ResizeReply{Applied: true}, nil
}

func (f *fakeClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testDescriptors() []*tracedata.FunctionDescriptor {
	return []*tracedata.FunctionDescriptor{
		{
			Name: "fn-a",
			IPM:  []int{3},
			Duration: tracedata.DurationStats{
				AverageMs: 5, Count: 1, Percentiles: map[int]float64{50: 5},
			},
			Memory: tracedata.MemoryStats{
				AverageMib: 32, SampleCount: 1, Percentiles: map[int]float64{50: 32},
			},
		},
	}
}

func TestRun_ZeroDuration_WritesExperimentHeaderAndReturns(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{}

	cfg := config.Default()
	cfg.TracePath = dir
	cfg.Duration = 0
	cfg.WarmupDuration = 0
	cfg.OutputPathPrefix = dir

	o := New(cfg, testDescriptors(), func(name string) faaspb.FunctionExecutorClient { return client }, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	paths := output.Paths{PathPrefix: dir, Tag: "t", Scenario: "s"}
	if err := o.Run(ctx, paths); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if client.callCount() != 0 {
		t.Errorf("want no RPCs with zero minutes scheduled, got %d", client.callCount())
	}

	if _, err := os.Stat(filepath.Join(dir, "experiment_t_s.csv")); err != nil {
		t.Errorf("expected experiment csv to exist: %v", err)
	}
}

func TestRun_PanicsOnSecondInvocation(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{}
	cfg := config.Default()
	cfg.TracePath = dir
	cfg.Duration = 0
	cfg.WarmupDuration = 0
	cfg.OutputPathPrefix = dir

	o := New(cfg, testDescriptors(), func(name string) faaspb.FunctionExecutorClient { return client }, nil, nil)
	paths := output.Paths{PathPrefix: dir, Tag: "t", Scenario: "s"}

	if err := o.Run(context.Background(), paths); err != nil {
		t.Fatal(err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("want panic on second Run call")
		}
	}()
	o.Run(context.Background(), paths)
}
