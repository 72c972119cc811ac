package drv

import (
	"context"

	"google.golang.org/grpc"
)

// DriverServer is the service interface transport/drv dispatches to. A
// *Server implements this; tests may supply a fake.
type DriverServer interface {
	CreateSession(context.Context, *CreateSessionRequest) (*CreateSessionResponse, error)
	Check(context.Context, *CheckRequest) (*CheckResponse, error)
	Execute(*ExecuteRequest, ExecuteServer) error
}

// ExecuteServer is the server-streaming handle a DriverServer.Execute
// implementation sends chunks through. grpc.ServerStream satisfies it by
// construction; executeServerStream below wraps one so Send can also
// recover the stream's context for cancellation propagation.
type ExecuteServer interface {
	Send(*ExecuteChunk) error
	Context() context.Context
}

type executeServerStream struct {
	grpc.ServerStream
}

func (s *executeServerStream) Send(chunk *ExecuteChunk) error {
	return s.ServerStream.SendMsg(chunk)
}

const serviceName = "brane.drv.Driver"

// ServiceDesc is the hand-written equivalent of a protoc-generated
// _Driver_serviceDesc: one MethodDesc per unary RPC, one StreamDesc for
// Execute's server-streaming RPC.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*DriverServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateSession", Handler: createSessionHandler},
		{MethodName: "Check", Handler: checkHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Execute", Handler: executeHandler, ServerStreams: true},
	},
	Metadata: "transport/drv/service.go",
}

func createSessionHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CreateSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).CreateSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CreateSession"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).CreateSession(ctx, req.(*CreateSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func checkHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(CheckRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DriverServer).Check(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Check"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(DriverServer).Check(ctx, req.(*CheckRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func executeHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(ExecuteRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(DriverServer).Execute(in, &executeServerStream{ServerStream: stream})
}
