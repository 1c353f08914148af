package chordpb

import (
	"context"

	"google.golang.org/grpc"
)

// NodeService is the full name of the peer gRPC service.
const NodeService = "chordkit.Node"

// NodeServer is the server API for the peer service.
type NodeServer interface {
	Resolve(context.Context, *ResolveRequest) (*ResolveResponse, error)
	AddEntry(context.Context, *EntryRequest) (*AddEntryResponse, error)
	StoreLocal(context.Context, *EntryRequest) (*Empty, error)
	Lookup(context.Context, *LookupRequest) (*LookupResponse, error)
	LookupLocal(context.Context, *LookupRequest) (*LookupResponse, error)
	Update(context.Context, *UpdateRequest) (*Empty, error)
	Info(context.Context, *Empty) (*PeerResponse, error)
	Fingers(context.Context, *Empty) (*FingerTableResponse, error)
	Shard(context.Context, *Empty) (*ShardResponse, error)
	Ping(context.Context, *Empty) (*Empty, error)
}

// RegisterNodeServer registers srv with s.
func RegisterNodeServer(s grpc.ServiceRegistrar, srv NodeServer) {
	s.RegisterService(&nodeServiceDesc, srv)
}

func nodeMethod[Req any](method string, call func(NodeServer, context.Context, *Req) (interface{}, error)) grpc.MethodDesc {
	return unaryMethod(NodeService, method, func(srv interface{}, ctx context.Context, req *Req) (interface{}, error) {
		return call(srv.(NodeServer), ctx, req)
	})
}

var nodeServiceDesc = grpc.ServiceDesc{
	ServiceName: NodeService,
	HandlerType: (*NodeServer)(nil),
	Methods: []grpc.MethodDesc{
		nodeMethod("Resolve", func(s NodeServer, ctx context.Context, req *ResolveRequest) (interface{}, error) {
			return s.Resolve(ctx, req)
		}),
		nodeMethod("AddEntry", func(s NodeServer, ctx context.Context, req *EntryRequest) (interface{}, error) {
			return s.AddEntry(ctx, req)
		}),
		nodeMethod("StoreLocal", func(s NodeServer, ctx context.Context, req *EntryRequest) (interface{}, error) {
			return s.StoreLocal(ctx, req)
		}),
		nodeMethod("Lookup", func(s NodeServer, ctx context.Context, req *LookupRequest) (interface{}, error) {
			return s.Lookup(ctx, req)
		}),
		nodeMethod("LookupLocal", func(s NodeServer, ctx context.Context, req *LookupRequest) (interface{}, error) {
			return s.LookupLocal(ctx, req)
		}),
		nodeMethod("Update", func(s NodeServer, ctx context.Context, req *UpdateRequest) (interface{}, error) {
			return s.Update(ctx, req)
		}),
		nodeMethod("Info", func(s NodeServer, ctx context.Context, req *Empty) (interface{}, error) {
			return s.Info(ctx, req)
		}),
		nodeMethod("Fingers", func(s NodeServer, ctx context.Context, req *Empty) (interface{}, error) {
			return s.Fingers(ctx, req)
		}),
		nodeMethod("Shard", func(s NodeServer, ctx context.Context, req *Empty) (interface{}, error) {
			return s.Shard(ctx, req)
		}),
		nodeMethod("Ping", func(s NodeServer, ctx context.Context, req *Empty) (interface{}, error) {
			return s.Ping(ctx, req)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "chordkit/node",
}

// NodeClient is the client API for the peer service.
type NodeClient struct {
	cc     grpc.ClientConnInterface
	target string
}

// NewNodeClient returns a client using cc. target is the address of the peer
// and is only used in errors.
func NewNodeClient(cc grpc.ClientConnInterface, target string) *NodeClient {
	return &NodeClient{cc: cc, target: target}
}

func (c *NodeClient) method(name string) string {
	return "/" + NodeService + "/" + name
}

// Resolve calls Node.Resolve.
func (c *NodeClient) Resolve(ctx context.Context, in *ResolveRequest, opts ...grpc.CallOption) (*ResolveResponse, error) {
	return invoke[ResolveResponse](ctx, c.cc, c.target, c.method("Resolve"), in, opts...)
}

// AddEntry calls Node.AddEntry.
func (c *NodeClient) AddEntry(ctx context.Context, in *EntryRequest, opts ...grpc.CallOption) (*AddEntryResponse, error) {
	return invoke[AddEntryResponse](ctx, c.cc, c.target, c.method("AddEntry"), in, opts...)
}

// StoreLocal calls Node.StoreLocal.
func (c *NodeClient) StoreLocal(ctx context.Context, in *EntryRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, c.target, c.method("StoreLocal"), in, opts...)
}

// Lookup calls Node.Lookup.
func (c *NodeClient) Lookup(ctx context.Context, in *LookupRequest, opts ...grpc.CallOption) (*LookupResponse, error) {
	return invoke[LookupResponse](ctx, c.cc, c.target, c.method("Lookup"), in, opts...)
}

// LookupLocal calls Node.LookupLocal.
func (c *NodeClient) LookupLocal(ctx context.Context, in *LookupRequest, opts ...grpc.CallOption) (*LookupResponse, error) {
	return invoke[LookupResponse](ctx, c.cc, c.target, c.method("LookupLocal"), in, opts...)
}

// Update calls Node.Update.
func (c *NodeClient) Update(ctx context.Context, in *UpdateRequest, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, c.target, c.method("Update"), in, opts...)
}

// Info calls Node.Info.
func (c *NodeClient) Info(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*PeerResponse, error) {
	return invoke[PeerResponse](ctx, c.cc, c.target, c.method("Info"), in, opts...)
}

// Fingers calls Node.Fingers.
func (c *NodeClient) Fingers(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*FingerTableResponse, error) {
	return invoke[FingerTableResponse](ctx, c.cc, c.target, c.method("Fingers"), in, opts...)
}

// Shard calls Node.Shard.
func (c *NodeClient) Shard(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ShardResponse, error) {
	return invoke[ShardResponse](ctx, c.cc, c.target, c.method("Shard"), in, opts...)
}

// Ping calls Node.Ping.
func (c *NodeClient) Ping(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Empty, error) {
	return invoke[Empty](ctx, c.cc, c.target, c.method("Ping"), in, opts...)
}
