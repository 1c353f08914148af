package chordpb

import (
	"context"

	"google.golang.org/grpc"
)

// CoordinatorService is the full name of the coordinator gRPC service.
const CoordinatorService = "chordkit.Coordinator"

// CoordinatorServer is the server API for the coordinator service.
type CoordinatorServer interface {
	Initiate(context.Context, *InitiateRequest) (*PeerResponse, error)
	Successor(context.Context, *IDRequest) (*IDResponse, error)
	Predecessor(context.Context, *IDRequest) (*IDResponse, error)
	NewFingerTable(context.Context, *IDRequest) (*FingerTableResponse, error)
	GetPeerInfo(context.Context, *IDRequest) (*PeerResponse, error)
	RandomPeerInfo(context.Context, *Empty) (*PeerResponse, error)
	NotifyJoined(context.Context, *IDRequest) (*NotifyJoinedResponse, error)
}

// RegisterCoordinatorServer registers srv with s.
func RegisterCoordinatorServer(s grpc.ServiceRegistrar, srv CoordinatorServer) {
	s.RegisterService(&coordinatorServiceDesc, srv)
}

func coordinatorMethod[Req any](method string, call func(CoordinatorServer, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return unaryMethod(CoordinatorService, method, func(srv interface{}, ctx context.Context, req *Req) (interface{}, error) {
		return call(srv.(CoordinatorServer), ctx, req)
	})
}

var coordinatorServiceDesc = grpc.ServiceDesc{
	ServiceName: CoordinatorService,
	HandlerType: (*CoordinatorServer)(nil),
	Methods: []grpc.MethodDesc{
		coordinatorMethod("Initiate", func(s CoordinatorServer, ctx context.Context, req *InitiateRequest) (interface{}, error) {
			return s.Initiate(ctx, req)
		}),
		coordinatorMethod("Successor", func(s CoordinatorServer, ctx context.Context, req *IDRequest) (interface{}, error) {
			return s.Successor(ctx, req)
		}),
		coordinatorMethod("Predecessor", func(s CoordinatorServer, ctx context.Context, req *IDRequest) (interface{}, error) {
			return s.Predecessor(ctx, req)
		}),
		coordinatorMethod("NewFingerTable", func(s CoordinatorServer, ctx context.Context, req *IDRequest) (interface{}, error) {
			return s.NewFingerTable(ctx, req)
		}),
		coordinatorMethod("GetPeerInfo", func(s CoordinatorServer, ctx context.Context, req *IDRequest) (interface{}, error) {
			return s.GetPeerInfo(ctx, req)
		}),
		coordinatorMethod("RandomPeerInfo", func(s CoordinatorServer, ctx context.Context, req *Empty) (interface{}, error) {
			return s.RandomPeerInfo(ctx, req)
		}),
		coordinatorMethod("NotifyJoined", func(s CoordinatorServer, ctx context.Context, req *IDRequest) (interface{}, error) {
			return s.NotifyJoined(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chordkit/coordinator",
}

// CoordinatorClient is the client API for the coordinator service.
type CoordinatorClient struct {
	cc     grpc.ClientConnInterface
	target string
}

// NewCoordinatorClient returns a client using cc. target is the address of
// the coordinator and is only used in errors.
func NewCoordinatorClient(cc grpc.ClientConnInterface, target string) *CoordinatorClient {
	return &CoordinatorClient{cc: cc, target: target}
}

func (c *CoordinatorClient) method(name string) string {
	return "/" + CoordinatorService + "/" + name
}

// Initiate calls Coordinator.Initiate.
func (c *CoordinatorClient) Initiate(ctx context.Context, in *InitiateRequest, opts ...grpc.CallOption) (*PeerResponse, error) {
	return invoke[PeerResponse](ctx, c.cc, c.target, c.method("Initiate"), in, opts...)
}

// Successor calls Coordinator.Successor.
func (c *CoordinatorClient) Successor(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, c.target, c.method("Successor"), in, opts...)
}

// Predecessor calls Coordinator.Predecessor.
func (c *CoordinatorClient) Predecessor(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*IDResponse, error) {
	return invoke[IDResponse](ctx, c.cc, c.target, c.method("Predecessor"), in, opts...)
}

// NewFingerTable calls Coordinator.NewFingerTable.
func (c *CoordinatorClient) NewFingerTable(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*FingerTableResponse, error) {
	return invoke[FingerTableResponse](ctx, c.cc, c.target, c.method("NewFingerTable"), in, opts...)
}

// GetPeerInfo calls Coordinator.GetPeerInfo.
func (c *CoordinatorClient) GetPeerInfo(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*PeerResponse, error) {
	return invoke[PeerResponse](ctx, c.cc, c.target, c.method("GetPeerInfo"), in, opts...)
}

// RandomPeerInfo calls Coordinator.RandomPeerInfo.
func (c *CoordinatorClient) RandomPeerInfo(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PeerResponse, error) {
	return invoke[PeerResponse](ctx, c.cc, c.target, c.method("RandomPeerInfo"), in, opts...)
}

// NotifyJoined calls Coordinator.NotifyJoined.
func (c *CoordinatorClient) NotifyJoined(ctx context.Context, in *IDRequest, opts ...grpc.CallOption) (*NotifyJoinedResponse, error) {
	return invoke[NotifyJoinedResponse](ctx, c.cc, c.target, c.method("NotifyJoined"), in, opts...)
}
