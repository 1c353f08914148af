// Package client implements chordkit's coordinator and peer APIs over gRPC.
//
// Coordinator and Peers are used by running peers and the coordinator to
// reach each other. Remote is a handle to a single peer used by command
// line clients.
package client

import (
	"context"
	"errors"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/clientpool"
	"github.com/rfratto/chordkit/coordinator"
	"github.com/rfratto/chordkit/internal/chordpb"
	"github.com/rfratto/chordkit/node"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
)

// Coordinator is a client for a remote coordinator.
type Coordinator struct {
	pool *clientpool.Pool
	addr string
}

var _ node.Coordinator = (*Coordinator)(nil)

// NewCoordinator returns a client for the coordinator at addr.
func NewCoordinator(pool *clientpool.Pool, addr string) *Coordinator {
	return &Coordinator{pool: pool, addr: addr}
}

func (c *Coordinator) client(ctx context.Context) (*chordpb.CoordinatorClient, error) {
	cli, err := c.pool.Coordinator(ctx, c.addr)
	if err != nil {
		return nil, chordkit.ErrPeerUnreachable{Addr: c.addr, Err: err}
	}
	return cli, nil
}

// Initiate registers a peer reachable at addr.
func (c *Coordinator) Initiate(ctx context.Context, addr string) (peer.Info, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return peer.Info{}, err
	}
	resp, err := cli.Initiate(ctx, &chordpb.InitiateRequest{Addr: addr})
	if err != nil {
		return peer.Info{}, err
	}
	return resp.Peer, nil
}

// Successor returns the identifier of the first peer at or after id.
func (c *Coordinator) Successor(ctx context.Context, id ring.ID) (ring.ID, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := cli.Successor(ctx, &chordpb.IDRequest{ID: id})
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// Predecessor returns the identifier of the last peer at or before id.
func (c *Coordinator) Predecessor(ctx context.Context, id ring.ID) (ring.ID, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return 0, err
	}
	resp, err := cli.Predecessor(ctx, &chordpb.IDRequest{ID: id})
	if err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// NewFingerTable computes the finger table of the peer with id.
func (c *Coordinator) NewFingerTable(ctx context.Context, id ring.ID) (peer.FingerTable, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return peer.FingerTable{}, err
	}
	resp, err := cli.NewFingerTable(ctx, &chordpb.IDRequest{ID: id})
	if err != nil {
		return peer.FingerTable{}, err
	}
	return resp.Table, nil
}

// GetPeerInfo returns the peer registered with id.
func (c *Coordinator) GetPeerInfo(ctx context.Context, id ring.ID) (peer.Info, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return peer.Info{}, err
	}
	resp, err := cli.GetPeerInfo(ctx, &chordpb.IDRequest{ID: id})
	if err != nil {
		return peer.Info{}, err
	}
	return resp.Peer, nil
}

// RandomPeerInfo returns a random registered peer.
func (c *Coordinator) RandomPeerInfo(ctx context.Context) (peer.Info, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return peer.Info{}, err
	}
	resp, err := cli.RandomPeerInfo(ctx, &chordpb.Empty{})
	if err != nil {
		return peer.Info{}, err
	}
	return resp.Peer, nil
}

// NotifyJoined announces that the peer with id completed its join. Errors
// of individual peer updates are returned as part of the report.
func (c *Coordinator) NotifyJoined(ctx context.Context, id ring.ID) (coordinator.Report, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return coordinator.Report{}, err
	}
	resp, err := cli.NotifyJoined(ctx, &chordpb.IDRequest{ID: id})
	if err != nil {
		return coordinator.Report{}, err
	}

	report := coordinator.Report{
		Epoch:    resp.Epoch,
		Notified: resp.Notified,
	}
	for _, f := range resp.Failures {
		report.Failed = append(report.Failed, coordinator.Failure{
			Peer: f.Peer,
			Err:  errors.New(f.Error),
		})
	}
	return report, nil
}
