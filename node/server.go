package node

import (
	"context"

	"github.com/rfratto/chordkit/internal/chordpb"
	"google.golang.org/grpc"
)

// Register registers the Node's gRPC service with s.
func (n *Node) Register(s grpc.ServiceRegistrar) {
	chordpb.RegisterNodeServer(s, &nodeServer{n: n})
}

type nodeServer struct {
	n *Node
}

var _ chordpb.NodeServer = (*nodeServer)(nil)

func (s *nodeServer) Resolve(ctx context.Context, req *chordpb.ResolveRequest) (*chordpb.ResolveResponse, error) {
	path, err := s.n.Route(WithTrace(ctx, req.Trace), req.Key, req.Hops)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.ResolveResponse{Path: path}, nil
}

func (s *nodeServer) AddEntry(ctx context.Context, req *chordpb.EntryRequest) (*chordpb.AddEntryResponse, error) {
	path, err := s.n.AddEntry(WithTrace(ctx, req.Trace), req.Entry)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.AddEntryResponse{Success: true, Path: path}, nil
}

func (s *nodeServer) StoreLocal(ctx context.Context, req *chordpb.EntryRequest) (*chordpb.Empty, error) {
	if err := s.n.StoreLocal(req.Entry); err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.Empty{}, nil
}

func (s *nodeServer) Lookup(ctx context.Context, req *chordpb.LookupRequest) (*chordpb.LookupResponse, error) {
	res, err := s.n.Lookup(WithTrace(ctx, req.Trace), req.Word)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.LookupResponse{Entry: res.Entry, Found: res.Found, Path: res.Path}, nil
}

func (s *nodeServer) LookupLocal(ctx context.Context, req *chordpb.LookupRequest) (*chordpb.LookupResponse, error) {
	e, found, err := s.n.LookupLocal(req.Word)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.LookupResponse{Entry: e, Found: found}, nil
}

func (s *nodeServer) Update(ctx context.Context, req *chordpb.UpdateRequest) (*chordpb.Empty, error) {
	// Migration is not bound to the deadline of the coordinator's call.
	if err := s.n.Update(context.Background(), req.Table, req.Predecessor); err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.Empty{}, nil
}

func (s *nodeServer) Info(ctx context.Context, _ *chordpb.Empty) (*chordpb.PeerResponse, error) {
	return &chordpb.PeerResponse{Peer: s.n.Info()}, nil
}

func (s *nodeServer) Fingers(ctx context.Context, _ *chordpb.Empty) (*chordpb.FingerTableResponse, error) {
	return &chordpb.FingerTableResponse{Table: s.n.Fingers()}, nil
}

func (s *nodeServer) Shard(ctx context.Context, _ *chordpb.Empty) (*chordpb.ShardResponse, error) {
	return &chordpb.ShardResponse{Entries: s.n.Shard()}, nil
}

func (s *nodeServer) Ping(ctx context.Context, _ *chordpb.Empty) (*chordpb.Empty, error) {
	return &chordpb.Empty{}, nil
}
