// Package schedpb holds the Scheduler RPC contract (§6): the elastic
// scheduler (C6) streams job descriptors in over ExecuteStream and returns
// one terminal reply once the stream closes, matching the shape of the
// original implementation's Executor.ExecuteStream (request_iterator in,
// single SchedReply out) rather than a true bidirectional stream of
// replies.
//
// As with faaspb, this is a hand-written stand-in for protoc-gen-go-grpc
// output: the message types and service descriptors follow its generated
// shape, but wire encoding goes through rpctransport's JSON codec instead
// of protobuf.
package schedpb

import (
	"context"

	"google.golang.org/grpc"
)

// JobRequest is one streamed scheduling request: `invocationName,
// batchsize, deadline, iterations, prevReplica, runtimeInMilliSec,
// availableGPU, schedAlg`.
type JobRequest struct {
	InvocationName    string `json:"invocationName"`
	Batchsize         int64  `json:"batchsize"`
	Deadline          int64  `json:"deadline"`
	Iterations        int64  `json:"iterations"`
	PrevReplica       int64  `json:"prevReplica"`
	RuntimeInMilliSec int64  `json:"runtimeInMilliSec"`
	AvailableGPU      int64  `json:"availableGPU"`
	SchedAlg          string `json:"schedAlg"`
}

// SchedReply is the single terminal reply sent once the client closes its
// request stream: `invocationName, replica, schedOverhead`, with
// len(InvocationName) == len(Replica) in the input's order.
type SchedReply struct {
	InvocationName []string `json:"invocationName"`
	Replica        []int64  `json:"replica"`
	SchedOverhead  int64    `json:"schedOverhead"`
}

const (
	Executor_Execute_FullMethodName       = "/schedpb.Executor/Execute"
	Executor_ExecuteStream_FullMethodName = "/schedpb.Executor/ExecuteStream"
)

// ExecutorClient is the client API for the Scheduler RPC contract.
type ExecutorClient interface {
	Execute(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*SchedReply, error)
	ExecuteStream(ctx context.Context, opts ...grpc.CallOption) (Executor_ExecuteStreamClient, error)
}

type executorClient struct {
	cc grpc.ClientConnInterface
}

// NewExecutorClient wraps cc as an ExecutorClient.
func NewExecutorClient(cc grpc.ClientConnInterface) ExecutorClient {
	return &executorClient{cc: cc}
}

func (c *executorClient) Execute(ctx context.Context, in *JobRequest, opts ...grpc.CallOption) (*SchedReply, error) {
	out := new(SchedReply)
	if err := c.cc.Invoke(ctx, Executor_Execute_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *executorClient) ExecuteStream(ctx context.Context, opts ...grpc.CallOption) (Executor_ExecuteStreamClient, error) {
	stream, err := c.cc.NewStream(ctx, &Executor_ServiceDesc.Streams[0], Executor_ExecuteStream_FullMethodName, opts...)
	if err != nil {
		return nil, err
	}
	return &executorExecuteStreamClient{stream}, nil
}

// Executor_ExecuteStreamClient is the planner client's (C7) handle on an
// in-flight scheduling round: Send each job descriptor, then CloseAndRecv
// once to block for the terminal SchedReply.
type Executor_ExecuteStreamClient interface {
	Send(*JobRequest) error
	CloseAndRecv() (*SchedReply, error)
	grpc.ClientStream
}

type executorExecuteStreamClient struct {
	grpc.ClientStream
}

func (s *executorExecuteStreamClient) Send(req *JobRequest) error {
	return s.ClientStream.SendMsg(req)
}

func (s *executorExecuteStreamClient) CloseAndRecv() (*SchedReply, error) {
	if err := s.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	reply := new(SchedReply)
	if err := s.ClientStream.RecvMsg(reply); err != nil {
		return nil, err
	}
	return reply, nil
}

// ExecutorServer is the server API for the Scheduler RPC contract. The
// elastic scheduler (internal/scheduler, C6) implements this interface.
type ExecutorServer interface {
	Execute(context.Context, *JobRequest) (*SchedReply, error)
	ExecuteStream(Executor_ExecuteStreamServer) error
}

// Executor_ExecuteStreamServer is the server-side handle on an in-flight
// scheduling round: Recv until io.EOF, then SendAndClose exactly once.
type Executor_ExecuteStreamServer interface {
	Recv() (*JobRequest, error)
	SendAndClose(*SchedReply) error
	grpc.ServerStream
}

type executorExecuteStreamServer struct {
	grpc.ServerStream
}

func (s *executorExecuteStreamServer) Recv() (*JobRequest, error) {
	in := new(JobRequest)
	if err := s.ServerStream.RecvMsg(in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *executorExecuteStreamServer) SendAndClose(reply *SchedReply) error {
	return s.ServerStream.SendMsg(reply)
}

// RegisterExecutorServer registers srv against s.
func RegisterExecutorServer(s grpc.ServiceRegistrar, srv ExecutorServer) {
	s.RegisterService(&Executor_ServiceDesc, srv)
}

func _Executor_Execute_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(JobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ExecutorServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: Executor_Execute_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ExecutorServer).Execute(ctx, req.(*JobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Executor_ExecuteStream_Handler(srv any, stream grpc.ServerStream) error {
	return srv.(ExecutorServer).ExecuteStream(&executorExecuteStreamServer{stream})
}

// Executor_ServiceDesc is the grpc.ServiceDesc for Executor.
var Executor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "schedpb.Executor",
	HandlerType: (*ExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: _Executor_Execute_Handler},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ExecuteStream",
			Handler:       _Executor_ExecuteStream_Handler,
			ClientStreams: true,
		},
	},
	Metadata: "schedpb/sched.proto",
}
