package job

import (
	"context"

	"google.golang.org/grpc"
)

// JobServer is the service interface transport/job dispatches to.
type JobServer interface {
	Launch(context.Context, *LaunchRequest) (*LaunchResponse, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
	Cancel(context.Context, *CancelRequest) (*CancelResponse, error)
}

const serviceName = "brane.job.Job"

// ServiceDesc is the hand-written equivalent of a protoc-generated
// _Job_serviceDesc: every RPC here is unary (spec.md §6 elides launch's
// long-poll shape to "unbounded but with heartbeat", served here as a
// synchronous call plus a separate Status poll rather than a second
// streaming RPC).
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*JobServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Launch", Handler: launchHandler},
		{MethodName: "Status", Handler: statusHandler},
		{MethodName: "Cancel", Handler: cancelHandler},
	},
	Metadata: "transport/job/service.go",
}

func launchHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(LaunchRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JobServer).Launch(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Launch"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JobServer).Launch(ctx, req.(*LaunchRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JobServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Status"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JobServer).Status(ctx, req.(*StatusRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CancelRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JobServer).Cancel(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Cancel"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(JobServer).Cancel(ctx, req.(*CancelRequest))
	}
	return interceptor(ctx, in, info, handler)
}
