// Package faaspb holds the Function RPC contract (§6): the call shape an
// invocation driver issues against a function's deployed endpoint, and the
// opaque reply it gets back. The collaborator behind this RPC is outside
// this repository's scope, so the stub only needs to match the wire
// contract, not reimplement the function runtime.
//
// In a repository that runs protoc this package would be generated from a
// .proto file; here the request/reply messages and the client/server glue
// are hand-written in the same shape protoc-gen-go-grpc produces, using the
// JSON grpc codec in rpctransport in place of protobuf wire encoding (see
// that package's doc comment).
package faaspb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ExecuteRequest is the Function RPC request: `message?, runtimeInMilliSec,
// memoryInMebiBytes, batchsize?, gpuMemoryInMebiBytes?, promptTensor?`.
type ExecuteRequest struct {
	Message              string  `json:"message,omitempty"`
	RuntimeInMilliSec    int64   `json:"runtimeInMilliSec"`
	MemoryInMebiBytes    int64   `json:"memoryInMebiBytes"`
	Batchsize            int64   `json:"batchsize,omitempty"`
	GpuMemoryInMebiBytes int64   `json:"gpuMemoryInMebiBytes,omitempty"`
	PromptTensor         []int64 `json:"promptTensor,omitempty"`
}

// ExecuteReply is the Function RPC reply.
type ExecuteReply struct {
	Message            string `json:"message"`
	DurationInMicroSec int64  `json:"durationInMicroSec"`
	MemoryUsageInKb    int64  `json:"memoryUsageInKb"`
}

// ResizeRequest asks the function's endpoint to converge on a replica
// count decided by the scheduler (C7's planner client, §4.7). The contract
// treats this endpoint as opaque; the fields are the minimum the planner
// client needs to issue the call.
type ResizeRequest struct {
	FunctionName string `json:"functionName"`
	Replicas     int64  `json:"replicas"`
}

// ResizeReply acknowledges a resize request.
type ResizeReply struct {
	Applied bool `json:"applied"`
}

// FunctionExecutorClient is the client API for the Function RPC contract.
type FunctionExecutorClient interface {
	Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteReply, error)
	Resize(ctx context.Context, in *ResizeRequest, opts ...grpc.CallOption) (*ResizeReply, error)
}

type functionExecutorClient struct {
	cc grpc.ClientConnInterface
}

// NewFunctionExecutorClient wraps cc as a FunctionExecutorClient.
func NewFunctionExecutorClient(cc grpc.ClientConnInterface) FunctionExecutorClient {
	return &functionExecutorClient{cc: cc}
}

func (c *functionExecutorClient) Execute(ctx context.Context, in *ExecuteRequest, opts ...grpc.CallOption) (*ExecuteReply, error) {
	out := new(ExecuteReply)
	if err := c.cc.Invoke(ctx, FunctionExecutor_Execute_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *functionExecutorClient) Resize(ctx context.Context, in *ResizeRequest, opts ...grpc.CallOption) (*ResizeReply, error) {
	out := new(ResizeReply)
	if err := c.cc.Invoke(ctx, FunctionExecutor_Resize_FullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// FunctionExecutorServer is the server API for the Function RPC contract.
// A real function endpoint implements this interface; this repository only
// consumes it (see internal/driver and internal/plannerclient), but the
// server-side glue is kept alongside the client so wimpy/trace test servers
// can be built against the same stub.
type FunctionExecutorServer interface {
	Execute(context.Context, *ExecuteRequest) (*ExecuteReply, error)
	Resize(context.Context, *ResizeRequest) (*ResizeReply, error)
}

// UnimplementedFunctionExecutorServer can be embedded by servers that only
// implement a subset of the contract during development.
type UnimplementedFunctionExecutorServer struct{}

func (UnimplementedFunctionExecutorServer) Execute(context.Context, *ExecuteRequest) (*ExecuteReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Execute not implemented")
}

func (UnimplementedFunctionExecutorServer) Resize(context.Context, *ResizeRequest) (*ResizeReply, error) {
	return nil, status.Error(codes.Unimplemented, "method Resize not implemented")
}

// RegisterFunctionExecutorServer registers srv against s.
func RegisterFunctionExecutorServer(s grpc.ServiceRegistrar, srv FunctionExecutorServer) {
	s.RegisterService(&FunctionExecutor_ServiceDesc, srv)
}

func _FunctionExecutor_Execute_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ExecuteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FunctionExecutorServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FunctionExecutor_Execute_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FunctionExecutorServer).Execute(ctx, req.(*ExecuteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _FunctionExecutor_Resize_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ResizeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(FunctionExecutorServer).Resize(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FunctionExecutor_Resize_FullMethodName}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(FunctionExecutorServer).Resize(ctx, req.(*ResizeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

const (
	FunctionExecutor_Execute_FullMethodName = "/faaspb.FunctionExecutor/Execute"
	FunctionExecutor_Resize_FullMethodName  = "/faaspb.FunctionExecutor/Resize"
)

// FunctionExecutor_ServiceDesc is the grpc.ServiceDesc for FunctionExecutor.
var FunctionExecutor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: "faaspb.FunctionExecutor",
	HandlerType: (*FunctionExecutorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: _FunctionExecutor_Execute_Handler},
		{MethodName: "Resize", Handler: _FunctionExecutor_Resize_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "faaspb/faas.proto",
}
