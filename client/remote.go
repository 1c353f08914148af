package client

import (
	"context"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/clientpool"
	"github.com/rfratto/chordkit/internal/chordpb"
	"github.com/rfratto/chordkit/node"
	"github.com/rfratto/chordkit/peer"
)

// Remote is a handle to a single running peer.
type Remote struct {
	pool *clientpool.Pool
	addr string
}

// NewRemote returns a handle to the peer at addr.
func NewRemote(pool *clientpool.Pool, addr string) *Remote {
	return &Remote{pool: pool, addr: addr}
}

// Addr returns the address of the peer.
func (r *Remote) Addr() string { return r.addr }

func (r *Remote) client(ctx context.Context) (*chordpb.NodeClient, error) {
	cli, err := r.pool.Node(ctx, r.addr)
	if err != nil {
		return nil, chordkit.ErrPeerUnreachable{Addr: r.addr, Err: err}
	}
	return cli, nil
}

// AddEntry stores e in the ring starting from the peer. It returns the
// resolution path, owner first.
func (r *Remote) AddEntry(ctx context.Context, e peer.Entry) ([]peer.Info, error) {
	cli, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := cli.AddEntry(ctx, &chordpb.EntryRequest{Entry: e, Trace: node.TraceFrom(ctx)})
	if err != nil {
		return nil, err
	}
	return resp.Path, nil
}

// Lookup retrieves the entry for word starting from the peer.
func (r *Remote) Lookup(ctx context.Context, word string) (node.Result, error) {
	cli, err := r.client(ctx)
	if err != nil {
		return node.Result{}, err
	}
	resp, err := cli.Lookup(ctx, &chordpb.LookupRequest{Word: word, Trace: node.TraceFrom(ctx)})
	if err != nil {
		return node.Result{}, err
	}
	return node.Result{Entry: resp.Entry, Found: resp.Found, Path: resp.Path}, nil
}

// Info returns the identity of the peer.
func (r *Remote) Info(ctx context.Context) (peer.Info, error) {
	cli, err := r.client(ctx)
	if err != nil {
		return peer.Info{}, err
	}
	resp, err := cli.Info(ctx, &chordpb.Empty{})
	if err != nil {
		return peer.Info{}, err
	}
	return resp.Peer, nil
}

// Fingers returns the finger table of the peer.
func (r *Remote) Fingers(ctx context.Context) (peer.FingerTable, error) {
	cli, err := r.client(ctx)
	if err != nil {
		return peer.FingerTable{}, err
	}
	resp, err := cli.Fingers(ctx, &chordpb.Empty{})
	if err != nil {
		return peer.FingerTable{}, err
	}
	return resp.Table, nil
}

// Shard returns a copy of the entries stored by the peer.
func (r *Remote) Shard(ctx context.Context) ([]peer.Entry, error) {
	cli, err := r.client(ctx)
	if err != nil {
		return nil, err
	}
	resp, err := cli.Shard(ctx, &chordpb.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Entries, nil
}

// Ping checks that the peer is serving requests.
func (r *Remote) Ping(ctx context.Context) error {
	cli, err := r.client(ctx)
	if err != nil {
		return err
	}
	_, err = cli.Ping(ctx, &chordpb.Empty{})
	return err
}
