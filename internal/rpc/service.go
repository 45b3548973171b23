// Package rpc exposes schedule generation and scoring over gRPC. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "fika.v1.Scheduler"

const (
	generateMethod = "/" + ServiceName + "/GenerateSchedule"
	evaluateMethod = "/" + ServiceName + "/EvaluateSchedule"
)

// SchedulerServer is the server API of fika.v1.Scheduler.
type SchedulerServer interface {
	GenerateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	EvaluateSchedule(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes fika.v1.Scheduler for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SchedulerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateSchedule", Handler: generateHandler},
		{MethodName: "EvaluateSchedule", Handler: evaluateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fika/v1/scheduler.proto",
}

// RegisterSchedulerServer registers srv on s.
func RegisterSchedulerServer(s grpc.ServiceRegistrar, srv SchedulerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func generateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).GenerateSchedule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).GenerateSchedule(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SchedulerServer).EvaluateSchedule(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: evaluateMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SchedulerServer).EvaluateSchedule(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
