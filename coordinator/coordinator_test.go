package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/internal/testlogger"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

type updateCall struct {
	Table       peer.FingerTable
	Predecessor peer.Info
}

// fakeUpdater records updates instead of sending them.
type fakeUpdater struct {
	mut   sync.Mutex
	calls map[ring.ID]updateCall
	fail  map[ring.ID]error
}

func (u *fakeUpdater) reset() {
	u.mut.Lock()
	defer u.mut.Unlock()
	u.calls = nil
}

func (u *fakeUpdater) Update(_ context.Context, target peer.Info, ft peer.FingerTable, pred peer.Info) error {
	u.mut.Lock()
	defer u.mut.Unlock()

	if err := u.fail[target.ID]; err != nil {
		return err
	}
	if u.calls == nil {
		u.calls = make(map[ring.ID]updateCall)
	}
	u.calls[target.ID] = updateCall{Table: ft, Predecessor: pred}
	return nil
}

// fixedIDs assigns identifiers by host. Later attempts use the next
// identifier.
func fixedIDs(ids map[string]ring.ID) IDFunc {
	return func(host, _ string, attempt int) ring.ID {
		return ids[host] + ring.ID(attempt)
	}
}

func newTestCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()

	if !cfg.Space.Valid() {
		cfg.Space = ring.MustSpace(5)
	}
	if cfg.Updater == nil {
		cfg.Updater = &fakeUpdater{}
	}
	cfg.Log = testlogger.New(t)

	c, err := New(cfg)
	require.NoError(t, err)
	return c
}

// join registers a peer and completes its join.
func join(t *testing.T, c *Coordinator, addr string) peer.Info {
	t.Helper()

	p, err := c.Initiate(context.Background(), addr)
	require.NoError(t, err)
	_, err = c.NotifyJoined(context.Background(), p.ID)
	require.NoError(t, err)
	return p
}

// newTestRing joins peers 5, 10 and 20 on a ring of size 32.
func newTestRing(t *testing.T, u Updater) *Coordinator {
	t.Helper()

	c := newTestCoordinator(t, Config{
		Updater: u,
		IDFunc:  fixedIDs(map[string]ring.ID{"peer-5": 5, "peer-10": 10, "peer-20": 20}),
	})
	for _, host := range []string{"peer-5", "peer-10", "peer-20"} {
		join(t, c, host)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Updater: &fakeUpdater{}})
	require.Error(t, err, "missing space should be rejected")

	_, err = New(Config{Space: ring.MustSpace(5)})
	require.Error(t, err, "missing updater should be rejected")

	c, err := New(Config{Space: ring.MustSpace(5), Updater: &fakeUpdater{}})
	require.NoError(t, err)
	require.Equal(t, 5, c.FingerSize())
}

func TestCoordinator_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns ports to bare hosts", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		a := join(t, c, "10.0.0.1")
		require.Equal(t, "10.0.0.1:50000", a.Addr)

		b := join(t, c, "10.0.0.1")
		require.Equal(t, "10.0.0.1:50001", b.Addr)

		require.NotEqual(t, a.ID, b.ID)
	})

	t.Run("keeps explicit ports", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		p, err := c.Initiate(ctx, "10.0.0.2:7000")
		require.NoError(t, err)
		require.Equal(t, "10.0.0.2:7000", p.Addr)
		require.Equal(t, c.Space().Hash("10.0.0.2"+"7000"), p.ID)
	})

	t.Run("skips ports in use", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		join(t, c, "10.0.0.3:50001")

		p, err := c.Initiate(ctx, "10.0.0.3")
		require.NoError(t, err)
		require.Equal(t, "10.0.0.3:50002", p.Addr)
	})

	t.Run("rejects duplicate addresses", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		join(t, c, "10.0.0.4:7000")

		_, err := c.Initiate(ctx, "10.0.0.4:7000")
		require.ErrorAs(t, err, &chordkit.ErrRegistration{})
		require.Equal(t, 1, c.Registry().View().Len())
	})

	t.Run("replaces registrations which did not complete", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		first, err := c.Initiate(ctx, "10.0.0.5:7000")
		require.NoError(t, err)

		second, err := c.Initiate(ctx, "10.0.0.5:7000")
		require.NoError(t, err)
		require.Equal(t, first, second)
		require.Equal(t, []peer.Info{second}, c.Registry().View().Members())

		_, err = c.NotifyJoined(ctx, second.ID)
		require.NoError(t, err)

		// The slot was freed by the replacement and the completed join.
		join(t, c, "10.0.0.6:7000")
	})

	t.Run("rejects empty addresses", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		_, err := c.Initiate(ctx, "")
		require.ErrorAs(t, err, &chordkit.ErrRegistration{})
	})

	t.Run("retries colliding identifiers", func(t *testing.T) {
		c := newTestCoordinator(t, Config{
			IDFunc: fixedIDs(map[string]ring.ID{"a": 7, "b": 7}),
		})

		a := join(t, c, "a")
		require.Equal(t, ring.ID(7), a.ID)

		b, err := c.Initiate(ctx, "b")
		require.NoError(t, err)
		require.Equal(t, ring.ID(8), b.ID)
	})

	t.Run("fails after the attempt limit", func(t *testing.T) {
		c := newTestCoordinator(t, Config{
			MaxAttempts: 1,
			IDFunc:      fixedIDs(map[string]ring.ID{"a": 7, "b": 7}),
		})

		join(t, c, "a")

		_, err := c.Initiate(ctx, "b")

		var regErr chordkit.ErrRegistration
		require.ErrorAs(t, err, &regErr)
		require.Equal(t, uint64(7), regErr.ID)
	})

	t.Run("fails when the ring is full", func(t *testing.T) {
		c := newTestCoordinator(t, Config{
			Space:  ring.MustSpace(1),
			IDFunc: fixedIDs(map[string]ring.ID{"a": 0, "b": 1, "c": 0}),
		})

		for _, host := range []string{"a", "b"} {
			join(t, c, host)
		}

		_, err := c.Initiate(ctx, "c")

		var regErr chordkit.ErrRegistration
		require.ErrorAs(t, err, &regErr)
		require.Equal(t, "ring is full", regErr.Reason)
	})
}

func TestCoordinator_Initiate_Concurrent(t *testing.T) {
	c := newTestCoordinator(t, Config{Space: ring.MustSpace(16)})

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := c.Initiate(context.Background(), fmt.Sprintf("10.1.0.%d", i))
			if err != nil {
				return
			}
			if _, err := c.NotifyJoined(context.Background(), p.ID); err == nil {
				succeeded.Inc()
			}
		}(i)
	}
	wg.Wait()

	members := c.Registry().View().Members()
	require.Len(t, members, int(succeeded.Load()))

	seen := make(map[ring.ID]struct{}, len(members))
	for _, p := range members {
		require.NotContains(t, seen, p.ID, "duplicate identifier")
		seen[p.ID] = struct{}{}
	}

	// Every successor query lands on a registered peer.
	for _, p := range members {
		id, err := c.Successor(p.ID)
		require.NoError(t, err)
		require.Equal(t, p.ID, id)
	}
}

func TestCoordinator_RingQueries(t *testing.T) {
	c := newTestRing(t, nil)

	id, err := c.Successor(25)
	require.NoError(t, err)
	require.Equal(t, ring.ID(5), id)

	id, err = c.Predecessor(2)
	require.NoError(t, err)
	require.Equal(t, ring.ID(20), id)

	p, err := c.GetPeerInfo(10)
	require.NoError(t, err)
	require.Equal(t, "peer-10:50001", p.Addr)

	_, err = c.GetPeerInfo(11)
	require.ErrorIs(t, err, chordkit.ErrNotFound)

	p, err = c.RandomPeerInfo()
	require.NoError(t, err)
	_, err = c.GetPeerInfo(p.ID)
	require.NoError(t, err, "random peer must be registered")
}

func TestCoordinator_EmptyRing(t *testing.T) {
	c := newTestCoordinator(t, Config{})

	_, err := c.Successor(3)
	require.ErrorIs(t, err, chordkit.ErrEmptyRing)

	_, err = c.Predecessor(3)
	require.ErrorIs(t, err, chordkit.ErrEmptyRing)

	_, err = c.RandomPeerInfo()
	require.ErrorIs(t, err, chordkit.ErrEmptyRing)

	require.Equal(t, []ring.ID{9, 9, 9, 9, 9}, c.NewFingerTable(9).IDs())
}

func TestCoordinator_NotifyJoined(t *testing.T) {
	t.Run("updates every other peer", func(t *testing.T) {
		u := &fakeUpdater{}
		c := newTestRing(t, u)
		u.reset()

		report, err := c.NotifyJoined(context.Background(), 10)
		require.NoError(t, err)
		require.NoError(t, report.Err())
		require.Equal(t, uint64(3), report.Epoch)
		require.Len(t, report.Notified, 2)

		require.NotContains(t, u.calls, ring.ID(10))

		require.Equal(t, ring.ID(20), u.calls[5].Predecessor.ID)
		require.Equal(t, []ring.ID{10, 10, 10, 20, 5}, u.calls[5].Table.IDs())

		require.Equal(t, ring.ID(10), u.calls[20].Predecessor.ID)
		require.Equal(t, "peer-10:50001", u.calls[20].Predecessor.Addr)
		require.Equal(t, []ring.ID{5, 5, 5, 5, 5}, u.calls[20].Table.IDs())
	})

	t.Run("failures do not abort the broadcast", func(t *testing.T) {
		u := &fakeUpdater{
			fail: map[ring.ID]error{20: errors.New("connection refused")},
		}
		c := newTestRing(t, u)

		report, err := c.NotifyJoined(context.Background(), 10)
		require.NoError(t, err)

		require.Equal(t, []peer.Info{{ID: 5, Addr: "peer-5:50000"}}, report.Notified)
		require.Len(t, report.Failed, 1)
		require.Equal(t, ring.ID(20), report.Failed[0].Peer.ID)
		require.Error(t, report.Err())
		require.Contains(t, u.calls, ring.ID(5))
	})

	t.Run("unknown peer", func(t *testing.T) {
		c := newTestRing(t, nil)

		_, err := c.NotifyJoined(context.Background(), 11)
		require.ErrorIs(t, err, chordkit.ErrNotFound)
	})
}

// TestCoordinator_Partition checks that after a series of joins every key
// is owned by exactly one peer and every finger table has the configured
// size and only points at registered peers.
func TestCoordinator_Partition(t *testing.T) {
	c := newTestCoordinator(t, Config{FingerSize: 4})

	for i := 0; i < 8; i++ {
		p, err := c.Initiate(context.Background(), fmt.Sprintf("10.2.0.%d", i))
		if err != nil {
			require.ErrorAs(t, err, &chordkit.ErrRegistration{})
		} else {
			_, err = c.NotifyJoined(context.Background(), p.ID)
			require.NoError(t, err)
		}

		view := c.Registry().View()
		members := view.Members()

		for k := uint64(0); k < c.Space().Size(); k++ {
			owners := 0
			for _, p := range members {
				pred, err := view.PredecessorOf(p.ID)
				require.NoError(t, err)
				if ring.InRange(ring.ID(k), pred.ID, p.ID) {
					owners++
				}
			}
			require.Equal(t, 1, owners, "key %d with %d members", k, len(members))
		}

		for _, p := range members {
			ft := c.NewFingerTable(p.ID)
			require.Equal(t, 4, ft.Len())
			for _, f := range ft.Fingers {
				_, ok := view.Get(f.ID)
				require.True(t, ok, "finger %d of peer %d is not registered", f.ID, p.ID)
			}
		}
	}
}

func TestCoordinator_JoinsAreSerialized(t *testing.T) {
	t.Run("initiate waits for the join in progress", func(t *testing.T) {
		c := newTestCoordinator(t, Config{})

		a, err := c.Initiate(context.Background(), "10.3.0.1:7000")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = c.Initiate(ctx, "10.3.0.2:7000")
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Equal(t, 1, c.Registry().View().Len())

		_, err = c.NotifyJoined(context.Background(), a.ID)
		require.NoError(t, err)

		join(t, c, "10.3.0.2:7000")
		require.Equal(t, 2, c.Registry().View().Len())
	})

	t.Run("broadcasts wait for the join in progress", func(t *testing.T) {
		c := newTestRing(t, nil)

		_, err := c.Initiate(context.Background(), "peer-30")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = c.NotifyJoined(ctx, 10)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("expired joins are removed", func(t *testing.T) {
		c := newTestCoordinator(t, Config{JoinTimeout: 50 * time.Millisecond})

		a, err := c.Initiate(context.Background(), "10.3.0.3:7000")
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			return c.Registry().View().Len() == 0
		}, 5*time.Second, 10*time.Millisecond)

		_, err = c.NotifyJoined(context.Background(), a.ID)
		require.ErrorIs(t, err, chordkit.ErrNotFound)

		join(t, c, "10.3.0.4:7000")
	})

	t.Run("random peers have completed their join", func(t *testing.T) {
		c := newTestCoordinator(t, Config{
			IDFunc: fixedIDs(map[string]ring.ID{"a": 3, "b": 9}),
			Rand:   rand.New(rand.NewSource(1)),
		})

		p, err := c.Initiate(context.Background(), "a")
		require.NoError(t, err)
		_, err = c.RandomPeerInfo()
		require.ErrorIs(t, err, chordkit.ErrEmptyRing)

		_, err = c.NotifyJoined(context.Background(), p.ID)
		require.NoError(t, err)
		_, err = c.Initiate(context.Background(), "b")
		require.NoError(t, err)

		for i := 0; i < 20; i++ {
			random, err := c.RandomPeerInfo()
			require.NoError(t, err)
			require.Equal(t, p, random)
		}
	})
}
