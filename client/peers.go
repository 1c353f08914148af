package client

import (
	"context"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/clientpool"
	"github.com/rfratto/chordkit/coordinator"
	"github.com/rfratto/chordkit/internal/chordpb"
	"github.com/rfratto/chordkit/node"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
)

// Peers sends requests to peers by their advertised address. Peers is used
// by peers to forward requests and by the coordinator to push updates.
type Peers struct {
	pool *clientpool.Pool
}

var (
	_ node.Transport      = (*Peers)(nil)
	_ coordinator.Updater = (*Peers)(nil)
)

// NewPeers returns a new Peers using connections from pool.
func NewPeers(pool *clientpool.Pool) *Peers {
	return &Peers{pool: pool}
}

func (p *Peers) client(ctx context.Context, target peer.Info) (*chordpb.NodeClient, error) {
	cli, err := p.pool.Node(ctx, target.Addr)
	if err != nil {
		return nil, chordkit.ErrPeerUnreachable{Addr: target.Addr, Err: err}
	}
	return cli, nil
}

// Resolve asks target to resolve key. The trace id of ctx is sent along.
func (p *Peers) Resolve(ctx context.Context, target peer.Info, key ring.ID, hops int) ([]peer.Info, error) {
	cli, err := p.client(ctx, target)
	if err != nil {
		return nil, err
	}
	resp, err := cli.Resolve(ctx, &chordpb.ResolveRequest{
		Key:   key,
		Hops:  hops,
		Trace: node.TraceFrom(ctx),
	})
	if err != nil {
		return nil, err
	}
	return resp.Path, nil
}

// StoreLocal stores e in the shard of target.
func (p *Peers) StoreLocal(ctx context.Context, target peer.Info, e peer.Entry) error {
	cli, err := p.client(ctx, target)
	if err != nil {
		return err
	}
	_, err = cli.StoreLocal(ctx, &chordpb.EntryRequest{Entry: e, Trace: node.TraceFrom(ctx)})
	return err
}

// LookupLocal retrieves the entry for word from the shard of target.
func (p *Peers) LookupLocal(ctx context.Context, target peer.Info, word string) (peer.Entry, bool, error) {
	cli, err := p.client(ctx, target)
	if err != nil {
		return peer.Entry{}, false, err
	}
	resp, err := cli.LookupLocal(ctx, &chordpb.LookupRequest{Word: word, Trace: node.TraceFrom(ctx)})
	if err != nil {
		return peer.Entry{}, false, err
	}
	return resp.Entry, resp.Found, nil
}

// Update replaces the finger table and predecessor of target.
func (p *Peers) Update(ctx context.Context, target peer.Info, ft peer.FingerTable, pred peer.Info) error {
	cli, err := p.client(ctx, target)
	if err != nil {
		return err
	}
	_, err = cli.Update(ctx, &chordpb.UpdateRequest{Table: ft, Predecessor: pred})
	return err
}
