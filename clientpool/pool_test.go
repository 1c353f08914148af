package clientpool

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/rfratto/chordkit/internal/chordpb"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestClientPool(t *testing.T) {
	server := newTestServer(t)

	t.Run("Connection reuse", func(t *testing.T) {
		p := newTestPool(t, DefaultOptions)
		cc, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		cc2, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		require.True(t, cc == cc2, "connpool didn't return existing cached client")
	})

	t.Run("LastUsed updates", func(t *testing.T) {
		p := newTestPool(t, DefaultOptions)
		cli, err := p.Node(context.Background(), server)
		require.NoError(t, err)

		cc, err := p.Get(context.Background(), server)
		require.NoError(t, err)
		ent, ok := p.reverseLookup[cc]
		require.True(t, ok)
		firstUsed := ent.lastUsed()

		// Make sure the clock moves between the two observations.
		time.Sleep(time.Millisecond)

		_, err = cli.Ping(context.Background(), &chordpb.Empty{})
		require.NoError(t, err)

		require.True(t, ent.lastUsed().After(firstUsed), "LastUsed did not update")
	})

	t.Run("Recent clients stay", func(t *testing.T) {
		p := newTestPool(t, DefaultOptions)
		_, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		p.removeStaleClients()
		require.Len(t, p.clients, 1)
	})

	t.Run("Stale clients get removed", func(t *testing.T) {
		p := newTestPool(t, DefaultOptions)
		cc, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		ent, ok := p.reverseLookup[cc]
		require.True(t, ok)
		ent.LastUsed = time.Now().Add(-24 * time.Hour)

		p.removeStaleClients()
		require.Len(t, p.clients, 0)
	})

	t.Run("LRU client is evicted at the limit", func(t *testing.T) {
		opts := DefaultOptions
		opts.MaxClients = 1

		other := newTestServer(t)

		p := newTestPool(t, opts)
		first, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		_, err = p.Get(context.Background(), other)
		require.NoError(t, err)

		require.Len(t, p.clients, 1)
		require.NotContains(t, p.reverseLookup, first)
		require.Contains(t, p.clients, other)
	})

	t.Run("Limit without LRU cleanup fails", func(t *testing.T) {
		opts := DefaultOptions
		opts.MaxClients = 1
		opts.CleanupLRU = false

		other := newTestServer(t)

		p := newTestPool(t, opts)
		_, err := p.Get(context.Background(), server)
		require.NoError(t, err)

		_, err = p.Get(context.Background(), other)
		require.Error(t, err)
	})

	t.Run("Closed pool refuses connections", func(t *testing.T) {
		p, err := New(DefaultOptions)
		require.NoError(t, err)
		require.NoError(t, p.Close())

		_, err = p.Get(context.Background(), server)
		require.Error(t, err)
	})
}

func TestNew_InvalidOptions(t *testing.T) {
	opts := DefaultOptions
	opts.StaleTime = 0
	_, err := New(opts)
	require.Error(t, err)

	opts = DefaultOptions
	opts.MaxClients = -1
	_, err = New(opts)
	require.Error(t, err)
}

// pingServer answers Ping and nothing else.
type pingServer struct {
	chordpb.NodeServer
}

func (pingServer) Ping(context.Context, *chordpb.Empty) (*chordpb.Empty, error) {
	return &chordpb.Empty{}, nil
}

func newTestServer(t *testing.T) (serverAddr string) {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcSrv := grpc.NewServer()
	chordpb.RegisterNodeServer(grpcSrv, pingServer{})
	go func() {
		_ = grpcSrv.Serve(lis)
	}()
	t.Cleanup(grpcSrv.GracefulStop)

	return lis.Addr().String()
}

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()

	p, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, p.Close())
	})
	return p
}
