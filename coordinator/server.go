package coordinator

import (
	"context"

	"github.com/rfratto/chordkit/internal/chordpb"
	"google.golang.org/grpc"
)

// Register registers the Coordinator's gRPC service with s.
func (c *Coordinator) Register(s grpc.ServiceRegistrar) {
	chordpb.RegisterCoordinatorServer(s, &coordinatorServer{c: c})
}

type coordinatorServer struct {
	c *Coordinator
}

var _ chordpb.CoordinatorServer = (*coordinatorServer)(nil)

func (s *coordinatorServer) Initiate(ctx context.Context, req *chordpb.InitiateRequest) (*chordpb.PeerResponse, error) {
	p, err := s.c.Initiate(ctx, req.Addr)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.PeerResponse{Peer: p}, nil
}

func (s *coordinatorServer) Successor(ctx context.Context, req *chordpb.IDRequest) (*chordpb.IDResponse, error) {
	id, err := s.c.Successor(req.ID)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.IDResponse{ID: id}, nil
}

func (s *coordinatorServer) Predecessor(ctx context.Context, req *chordpb.IDRequest) (*chordpb.IDResponse, error) {
	id, err := s.c.Predecessor(req.ID)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.IDResponse{ID: id}, nil
}

func (s *coordinatorServer) NewFingerTable(ctx context.Context, req *chordpb.IDRequest) (*chordpb.FingerTableResponse, error) {
	return &chordpb.FingerTableResponse{Table: s.c.NewFingerTable(req.ID)}, nil
}

func (s *coordinatorServer) GetPeerInfo(ctx context.Context, req *chordpb.IDRequest) (*chordpb.PeerResponse, error) {
	p, err := s.c.GetPeerInfo(req.ID)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.PeerResponse{Peer: p}, nil
}

func (s *coordinatorServer) RandomPeerInfo(ctx context.Context, _ *chordpb.Empty) (*chordpb.PeerResponse, error) {
	p, err := s.c.RandomPeerInfo()
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}
	return &chordpb.PeerResponse{Peer: p}, nil
}

func (s *coordinatorServer) NotifyJoined(ctx context.Context, req *chordpb.IDRequest) (*chordpb.NotifyJoinedResponse, error) {
	// The broadcast outlives the caller: a joining peer which gives up waiting
	// must not leave the ring half updated.
	report, err := s.c.NotifyJoined(context.Background(), req.ID)
	if err != nil {
		return nil, chordpb.Status(ctx, err)
	}

	resp := &chordpb.NotifyJoinedResponse{
		Success:  true,
		Epoch:    report.Epoch,
		Notified: report.Notified,
	}
	for _, f := range report.Failed {
		resp.Failures = append(resp.Failures, chordpb.Failure{Peer: f.Peer, Error: f.Err.Error()})
	}
	return resp, nil
}
