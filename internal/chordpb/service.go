package chordpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// unaryMethod builds a grpc.MethodDesc which decodes a *Req and passes it to
// call.
func unaryMethod[Req any](service, method string, call func(srv interface{}, ctx context.Context, req *Req) (interface{}, error)) grpc.MethodDesc {
	fullMethod := "/" + service + "/" + method

	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv, ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: fullMethod,
			}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv, ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// invoke performs a unary call using the msgpack codec. Errors are converted
// with FromStatus; target names the remote end in transport errors.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, target, method string, in interface{}, opts ...grpc.CallOption) (*Resp, error) {
	var (
		out     = new(Resp)
		trailer metadata.MD
	)

	callOpts := make([]grpc.CallOption, 0, len(opts)+2)
	callOpts = append(callOpts, grpc.CallContentSubtype(CodecName), grpc.Trailer(&trailer))
	callOpts = append(callOpts, opts...)

	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, FromStatus(err, trailer, target)
	}
	return out, nil
}
