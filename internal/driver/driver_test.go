package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"

	"github.com/vhive-serverless/loadgen/internal/faaspb"
	"github.com/vhive-serverless/loadgen/internal/specgen"
)

// fakeExecutor is an in-process faaspb.FunctionExecutorClient stand-in.
type fakeExecutor struct {
	mu       sync.Mutex
	calls    int
	fail     bool
	hang     time.Duration
	lastReqs []*faaspb.ExecuteRequest
}

func (f *fakeExecutor) Execute(ctx context.Context, in *faaspb.ExecuteRequest, opts ...grpc.CallOption) (*faaspb.ExecuteReply, error) {
	f.mu.Lock()
	f.calls++
	f.lastReqs = append(f.lastReqs, in)
	fail := f.fail
	hang := f.hang
	f.mu.Unlock()

	if hang > 0 {
		select {
		case <-time.After(hang):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, context.Canceled
	}
	return &faaspb.ExecuteReply{DurationInMicroSec: 1000, MemoryUsageInKb: 2048}, nil
}

func (f *fakeExecutor) Resize(ctx context.Context, in *faaspb.ResizeRequest, opts ...grpc.CallOption) (*faaspb.ResizeReply, error) {
	return &faaspb.ResizeReply{Applied: true}, nil
}

func (f *fakeExecutor) calledTimes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestRunMinute_AllSpecsRecorded(t *testing.T) {
	client := &fakeExecutor{}
	records := make(chan InvocationRecord, 10)
	d := New(Config{FunctionName: "fn-a", Client: client, Records: records})

	specs := []specgen.InvocationSpec{
		{FunctionName: "fn-a", OffsetNs: 0, RuntimeMs: 10, MemoryMib: 64},
		{FunctionName: "fn-a", OffsetNs: int64(time.Millisecond), RuntimeMs: 10, MemoryMib: 64},
	}
	d.RunMinute(context.Background(), specs, time.Now(), 0)
	d.Wait()
	close(records)

	var got []InvocationRecord
	for r := range records {
		got = append(got, r)
	}
	if len(got) != len(specs) {
		t.Fatalf("got %d records, want %d", len(got), len(specs))
	}
	for _, r := range got {
		if r.Status != StatusOK {
			t.Errorf("status = %v, want ok", r.Status)
		}
	}
}

func TestRunMinute_SingleSlot_SkipsWhileBusy(t *testing.T) {
	client := &fakeExecutor{hang: 50 * time.Millisecond}
	records := make(chan InvocationRecord, 10)
	d := New(Config{FunctionName: "fn-a", Client: client, Records: records, SingleSlot: true})

	specs := []specgen.InvocationSpec{
		{FunctionName: "fn-a", OffsetNs: 0, RuntimeMs: 100, MemoryMib: 64},
		{FunctionName: "fn-a", OffsetNs: int64(time.Millisecond), RuntimeMs: 100, MemoryMib: 64},
	}
	d.RunMinute(context.Background(), specs, time.Now(), 0)
	d.Wait()
	close(records)

	var statuses []Status
	for r := range records {
		statuses = append(statuses, r.Status)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d records, want 2", len(statuses))
	}
	var skipped int
	for _, s := range statuses {
		if s == StatusSkipped {
			skipped++
		}
	}
	if skipped != 1 {
		t.Fatalf("want exactly 1 skipped record, got %d (%v)", skipped, statuses)
	}
}

func TestFire_TimeoutClassifiedAsTimeout(t *testing.T) {
	client := &fakeExecutor{hang: time.Second}
	records := make(chan InvocationRecord, 1)
	d := New(Config{FunctionName: "fn-a", Client: client, Records: records})

	// minTimeout floors at 2s, but runtime is tiny, so use ctx with its own
	// short deadline to force DeadlineExceeded without waiting 2s in the test.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	spec := specgen.InvocationSpec{FunctionName: "fn-a", RuntimeMs: 1, MemoryMib: 1}
	d.wg.Add(1)
	d.fire(ctx, spec, time.Now(), false)

	rec := <-records
	if rec.Status != StatusTimeout {
		t.Fatalf("status = %v, want timeout", rec.Status)
	}
}

func TestNoteFailure_RaisesOverloadAtThreshold(t *testing.T) {
	var raised []string
	var mu sync.Mutex
	d := New(Config{
		FunctionName:     "fn-a",
		FailureThreshold: 3,
		OnOverload: func(name string) {
			mu.Lock()
			raised = append(raised, name)
			mu.Unlock()
		},
	})

	d.noteFailure(false)
	d.noteFailure(false)
	d.noteFailure(false)

	mu.Lock()
	defer mu.Unlock()
	if len(raised) != 1 || raised[0] != "fn-a" {
		t.Fatalf("want overload raised once for fn-a, got %v", raised)
	}
}

func TestNoteFailure_GraceWindowSuppressesOverload(t *testing.T) {
	called := false
	d := New(Config{
		FunctionName:     "fn-a",
		FailureThreshold: 1,
		OnOverload:       func(name string) { called = true },
	})

	d.noteFailure(true)
	if called {
		t.Fatal("overload must not fire for failures inside the grace window")
	}
}

func TestRunMinute_CancelledContext_StopsDispatch(t *testing.T) {
	client := &fakeExecutor{}
	records := make(chan InvocationRecord, 10)
	d := New(Config{FunctionName: "fn-a", Client: client, Records: records})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	specs := []specgen.InvocationSpec{
		{FunctionName: "fn-a", OffsetNs: int64(time.Hour), RuntimeMs: 10, MemoryMib: 64},
	}
	d.RunMinute(ctx, specs, time.Now(), 0)
	d.Wait()

	if client.calledTimes() != 0 {
		t.Fatalf("want no RPCs dispatched after cancellation, got %d", client.calledTimes())
	}
}
