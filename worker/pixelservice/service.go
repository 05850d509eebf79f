package pixelservice

import (
	"golang.org/x/net/context"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "evalpix.PixelService"

const (
	evaluateMethod = "/" + ServiceName + "/Evaluate"
	scriptsMethod  = "/" + ServiceName + "/Scripts"
)

// PixelServer evaluates tiles for remote callers. Requests and responses
// are google.protobuf.Struct messages laid out by the codec in this
// package.
type PixelServer interface {
	Evaluate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Scripts(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterPixelServer(s *grpc.Server, srv PixelServer) {
	s.RegisterService(&serviceDesc, srv)
}

func evaluateHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PixelServer).Evaluate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: evaluateMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PixelServer).Evaluate(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func scriptsHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PixelServer).Scripts(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: scriptsMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PixelServer).Scripts(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PixelServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Evaluate",
			Handler:    evaluateHandler,
		},
		{
			MethodName: "Scripts",
			Handler:    scriptsHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "pixelservice",
}

// PixelClient is the raw client side of PixelServer.
type PixelClient interface {
	Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	Scripts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type pixelClient struct {
	cc *grpc.ClientConn
}

func NewPixelClient(cc *grpc.ClientConn) PixelClient {
	return &pixelClient{cc}
}

func (c *pixelClient) Evaluate(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, evaluateMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *pixelClient) Scripts(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	err := c.cc.Invoke(ctx, scriptsMethod, in, out, opts...)
	if err != nil {
		return nil, err
	}
	return out, nil
}
