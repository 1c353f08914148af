// Package node implements a chordkit peer. A peer owns the keys between its
// predecessor's identifier (exclusive) and its own (inclusive), stores the
// entries for those keys in a local shard, and routes requests for other
// keys through its finger table.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/coordinator"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
	"github.com/rfratto/chordkit/shard"
	"go.uber.org/atomic"
)

// Coordinator is the coordinator API used by a peer to join the ring.
type Coordinator interface {
	Initiate(ctx context.Context, addr string) (peer.Info, error)
	Predecessor(ctx context.Context, id ring.ID) (ring.ID, error)
	NewFingerTable(ctx context.Context, id ring.ID) (peer.FingerTable, error)
	GetPeerInfo(ctx context.Context, id ring.ID) (peer.Info, error)
	NotifyJoined(ctx context.Context, id ring.ID) (coordinator.Report, error)
}

// Transport sends requests to other peers.
type Transport interface {
	// Resolve asks target to resolve key. hops is the number of peers the
	// request went through before target.
	Resolve(ctx context.Context, target peer.Info, key ring.ID, hops int) ([]peer.Info, error)

	// StoreLocal stores e in the shard of target.
	StoreLocal(ctx context.Context, target peer.Info, e peer.Entry) error

	// LookupLocal retrieves the entry for word from the shard of target.
	LookupLocal(ctx context.Context, target peer.Info, word string) (e peer.Entry, found bool, err error)
}

// Config configures a Node.
type Config struct {
	// Address registered with the coordinator. Either a bare host, in which
	// case the coordinator assigns a port, or a host:port pair. Required.
	AdvertiseAddr string

	// Identifier space of the ring. Must match the coordinator. Required.
	Space ring.Space

	// Coordinator used to join the ring. Required.
	Coordinator Coordinator

	// Transport used to reach other peers. Required.
	Transport Transport

	// Timeout for each request sent to another peer. Defaults to 3s.
	HopTimeout time.Duration

	// Maximum number of times a resolution may be forwarded. Defaults to the
	// number of bits in Space.
	MaxHops int

	// Optional hook invoked with the identity assigned by the coordinator,
	// before the rest of the ring is told about the new peer. Peers which
	// registered without a port must start serving on the assigned address
	// here. Returning an error aborts the join.
	OnAssigned func(self peer.Info) error

	// Optional logger.
	Log log.Logger
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("missing config")
	}

	switch {
	case c.AdvertiseAddr == "":
		return fmt.Errorf("advertise address is required")
	case !c.Space.Valid():
		return fmt.Errorf("Space must be set")
	case c.Coordinator == nil:
		return fmt.Errorf("Coordinator must be set")
	case c.Transport == nil:
		return fmt.Errorf("Transport must be set")
	}

	if c.HopTimeout == 0 {
		c.HopTimeout = 3 * time.Second
	}
	if c.MaxHops < 0 {
		return fmt.Errorf("MaxHops must not be negative")
	} else if c.MaxHops == 0 {
		c.MaxHops = int(c.Space.Bits())
	}
	if c.Log == nil {
		c.Log = log.NewNopLogger()
	}

	return nil
}

// Node is a peer in a chordkit ring.
type Node struct {
	cfg     Config
	log     log.Logger
	metrics *metrics
	shard   *shard.Store

	state atomic.Uint32

	// updateMut serializes Update so that migrations for one topology change
	// finish before the next begins.
	updateMut sync.Mutex

	// mut guards the routing state below. It is never held while talking to
	// another process.
	mut      sync.RWMutex
	self     peer.Info
	fingers  peer.FingerTable
	pred     peer.Info
	hasTable bool
}

// New creates a new unjoined Node. Call Join to add it to the ring.
func New(cfg Config) (*Node, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	n := &Node{
		cfg:     cfg,
		metrics: newMetrics(),
		shard:   shard.New(),
	}
	// The identifier is only known after Join. n.mut must not be held while
	// logging.
	n.log = log.With(cfg.Log, "id", log.Valuer(func() interface{} { return n.Info().ID }))
	n.metrics.Add(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chordkit_node_shard_entries",
			Help: "Number of entries stored in the local shard.",
		}, func() float64 { return float64(n.shard.Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chordkit_node_state",
			Help: "Current lifecycle state of the peer: 0 unjoined, 1 joining, 2 active.",
		}, func() float64 { return float64(n.state.Load()) }),
	)
	return n, nil
}

// Metrics returns a prometheus.Collector that can be used to collect metrics
// about the Node.
func (n *Node) Metrics() prometheus.Collector { return n.metrics }

// State returns the current lifecycle state of n.
func (n *Node) State() peer.State { return peer.State(n.state.Load()) }

func (n *Node) changeState(from, to peer.State) error {
	if !peer.ValidTransition(from, to) || !n.state.CAS(uint32(from), uint32(to)) {
		return peer.ErrStateTransition{From: n.State(), To: to}
	}
	level.Debug(n.log).Log("msg", "changed state", "from", from, "to", to)
	return nil
}

// Info returns the identity of n. The identity is empty until n was assigned
// one by the coordinator.
func (n *Node) Info() peer.Info {
	n.mut.RLock()
	defer n.mut.RUnlock()
	return n.self
}

// Fingers returns the current finger table of n.
func (n *Node) Fingers() peer.FingerTable {
	n.mut.RLock()
	defer n.mut.RUnlock()
	return n.fingers
}

// Predecessor returns the current predecessor of n.
func (n *Node) Predecessor() peer.Info {
	n.mut.RLock()
	defer n.mut.RUnlock()
	return n.pred
}

// Shard returns a copy of every entry stored by n, sorted by word.
func (n *Node) Shard() []peer.Entry { return n.shard.Snapshot() }

// Join registers n with the coordinator, retrieves its initial finger table
// and predecessor, and announces the join to the rest of the ring. n becomes
// active once the announcement completes. Peers which could not be told
// about n are logged; they do not cause Join to fail.
//
// If Join fails, n returns to the unjoined state and Join may be called
// again.
func (n *Node) Join(ctx context.Context) (err error) {
	if err := n.changeState(peer.StateUnjoined, peer.StateJoining); err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		level.Error(n.log).Log("msg", "failed to join ring", "err", err)
		_ = n.changeState(peer.StateJoining, peer.StateUnjoined)
	}()

	coord := n.cfg.Coordinator

	// A failed join leaves its registration pending at the coordinator until
	// it expires. Registering again from the assigned address replaces it.
	addr := n.cfg.AdvertiseAddr
	if prev := n.Info(); prev.Addr != "" {
		addr = prev.Addr
	}

	self, err := coord.Initiate(ctx, addr)
	if err != nil {
		return fmt.Errorf("registering with coordinator: %w", err)
	}
	n.mut.Lock()
	n.self = self
	n.mut.Unlock()

	level.Info(n.log).Log("msg", "assigned identity", "addr", self.Addr)

	if n.cfg.OnAssigned != nil {
		if err := n.cfg.OnAssigned(self); err != nil {
			return fmt.Errorf("handling assigned identity: %w", err)
		}
	}

	ft, err := coord.NewFingerTable(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("retrieving finger table: %w", err)
	}
	predID, err := coord.Predecessor(ctx, n.cfg.Space.Wrap(uint64(self.ID)-1))
	if err != nil {
		return fmt.Errorf("retrieving predecessor: %w", err)
	}
	pred, err := coord.GetPeerInfo(ctx, predID)
	if err != nil {
		return fmt.Errorf("retrieving predecessor %d: %w", predID, err)
	}
	n.apply(ft, pred)

	report, err := coord.NotifyJoined(ctx, self.ID)
	if err != nil {
		return fmt.Errorf("announcing join: %w", err)
	}
	if err := report.Err(); err != nil {
		level.Warn(n.log).Log("msg", "some peers were not told about the join", "err", err)
	}

	if err := n.changeState(peer.StateJoining, peer.StateActive); err != nil {
		return err
	}
	level.Info(n.log).Log("msg", "joined ring", "predecessor", n.Predecessor().ID, "notified", len(report.Notified))
	return nil
}

// apply replaces the routing state of n unless ft is older than the table
// n already holds. apply reports whether the state was replaced.
func (n *Node) apply(ft peer.FingerTable, pred peer.Info) bool {
	n.mut.Lock()
	defer n.mut.Unlock()

	if n.hasTable && ft.Epoch < n.fingers.Epoch {
		n.metrics.updatesTotal.WithLabelValues("stale").Inc()
		return false
	}
	n.fingers = ft
	n.pred = pred
	n.hasTable = true
	n.metrics.updatesTotal.WithLabelValues("applied").Inc()
	return true
}

// Update replaces the finger table and predecessor of n, then moves every
// entry n no longer owns to the new predecessor. Updates computed from an
// older ring than the one n knows about are ignored.
//
// Entries which cannot be moved stay in the local shard. Migration failures
// are logged and do not cause Update to fail.
func (n *Node) Update(ctx context.Context, ft peer.FingerTable, pred peer.Info) error {
	if n.State() == peer.StateUnjoined {
		return chordkit.ErrNotJoined
	}

	n.updateMut.Lock()
	defer n.updateMut.Unlock()

	if !n.apply(ft, pred) {
		level.Debug(n.log).Log("msg", "ignoring stale update", "epoch", ft.Epoch, "current", n.Fingers().Epoch)
		return nil
	}
	level.Debug(n.log).Log("msg", "updated routing state", "epoch", ft.Epoch, "predecessor", pred.ID, "fingers", fmt.Sprint(ft.IDs()))

	n.migrate(ctx, pred)
	return nil
}

// migrate pushes entries outside of (pred, self] to pred.
func (n *Node) migrate(ctx context.Context, pred peer.Info) {
	self := n.Info()
	if pred.ID == self.ID {
		return
	}

	foreign := n.shard.Collect(func(e peer.Entry) bool {
		return !ring.InRange(n.cfg.Space.Hash(e.Key), pred.ID, self.ID)
	})
	if len(foreign) == 0 {
		return
	}

	var moved int
	for i, e := range foreign {
		pushCtx, cancel := context.WithTimeout(ctx, n.cfg.HopTimeout)
		err := n.cfg.Transport.StoreLocal(pushCtx, pred, e)
		cancel()

		if err != nil {
			retained := len(foreign) - i
			n.metrics.migratedTotal.WithLabelValues("retained").Add(float64(retained))
			level.Warn(n.log).Log("msg", "failed to migrate entries to predecessor, keeping them", "predecessor", pred, "retained", retained, "err", err)
			break
		}

		n.shard.CompareAndDelete(e)
		n.metrics.migratedTotal.WithLabelValues("moved").Inc()
		moved++
	}

	if moved > 0 {
		level.Info(n.log).Log("msg", "migrated entries to predecessor", "predecessor", pred, "moved", moved)
	}
}

// routingState returns a consistent copy of the routing state. It fails with
// chordkit.ErrNotJoined if n has no finger table yet.
func (n *Node) routingState() (self peer.Info, ft peer.FingerTable, pred peer.Info, err error) {
	n.mut.RLock()
	defer n.mut.RUnlock()

	if !n.hasTable || n.State() == peer.StateUnjoined {
		return self, ft, pred, chordkit.ErrNotJoined
	}
	return n.self, n.fingers, n.pred, nil
}

// Owns reports whether n is responsible for key.
func (n *Node) Owns(key ring.ID) (bool, error) {
	self, _, pred, err := n.routingState()
	if err != nil {
		return false, err
	}
	return ring.InRange(key, pred.ID, self.ID), nil
}

// StoreLocal stores e in the local shard, replacing any entry for the same
// word. StoreLocal is accepted as soon as n started joining.
func (n *Node) StoreLocal(e peer.Entry) error {
	if n.State() == peer.StateUnjoined {
		n.metrics.requestsTotal.WithLabelValues("store_local", "error").Inc()
		return chordkit.ErrNotJoined
	}
	n.shard.Put(e)
	n.metrics.requestsTotal.WithLabelValues("store_local", "success").Inc()
	return nil
}

// LookupLocal returns the entry for word from the local shard.
func (n *Node) LookupLocal(word string) (e peer.Entry, found bool, err error) {
	if n.State() == peer.StateUnjoined {
		n.metrics.requestsTotal.WithLabelValues("lookup_local", "error").Inc()
		return e, false, chordkit.ErrNotJoined
	}
	e, found = n.shard.Get(word)
	n.metrics.requestsTotal.WithLabelValues("lookup_local", resultLabel(found)).Inc()
	return e, found, nil
}

// AddEntry stores e on the peer that owns the hash of its word and returns
// the resolution path, owner first. It fails with chordkit.ErrResolution if
// no owner could be found.
func (n *Node) AddEntry(ctx context.Context, e peer.Entry) (path []peer.Info, err error) {
	defer func() { n.metrics.requestsTotal.WithLabelValues("add_entry", errorLabel(err)).Inc() }()

	if e.Key == "" {
		return nil, fmt.Errorf("entry has no word")
	}
	ctx = ensureTrace(ctx)

	path, err = n.Resolve(ctx, n.cfg.Space.Hash(e.Key))
	if err != nil {
		return nil, chordkit.ErrResolution{Word: e.Key, Err: err}
	}

	owner := path[0]
	if owner.ID == n.Info().ID {
		return path, n.StoreLocal(e)
	}

	storeCtx, cancel := context.WithTimeout(ctx, n.cfg.HopTimeout)
	defer cancel()
	if err := n.cfg.Transport.StoreLocal(storeCtx, owner, e); err != nil {
		return nil, fmt.Errorf("storing %q on %s: %w", e.Key, owner, err)
	}
	return path, nil
}

// Result is the outcome of a Lookup.
type Result struct {
	Entry peer.Entry
	Found bool

	// Path is the resolution path, owner first.
	Path []peer.Info
}

// Lookup retrieves the entry for word from the peer that owns its hash. A
// missing entry is reported through Result.Found rather than an error.
func (n *Node) Lookup(ctx context.Context, word string) (res Result, err error) {
	defer func() { n.metrics.requestsTotal.WithLabelValues("lookup", errorLabel(err)).Inc() }()

	ctx = ensureTrace(ctx)

	path, err := n.Resolve(ctx, n.cfg.Space.Hash(word))
	if err != nil {
		return res, chordkit.ErrResolution{Word: word, Err: err}
	}
	res.Path = path

	owner := path[0]
	if owner.ID == n.Info().ID {
		res.Entry, res.Found, err = n.LookupLocal(word)
		return res, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, n.cfg.HopTimeout)
	defer cancel()
	res.Entry, res.Found, err = n.cfg.Transport.LookupLocal(lookupCtx, owner, word)
	if err != nil {
		return res, fmt.Errorf("looking up %q on %s: %w", word, owner, err)
	}
	return res, nil
}

// Resolve finds the peer which owns key. The returned path starts with the
// owner and ends with n.
func (n *Node) Resolve(ctx context.Context, key ring.ID) ([]peer.Info, error) {
	return n.Route(ctx, key, 0)
}

// Route resolves key on behalf of another peer. hops is the number of peers
// the request went through before reaching n.
//
// When n does not own key, the request is forwarded to the closest finger
// preceding key, or to the successor of n if no finger precedes key. The
// request fails with chordkit.ErrResolutionTimeout once it was forwarded
// more than MaxHops times or a hop exceeded its deadline.
func (n *Node) Route(ctx context.Context, key ring.ID, hops int) ([]peer.Info, error) {
	self, ft, pred, err := n.routingState()
	if err != nil {
		return nil, err
	}
	key = n.cfg.Space.Wrap(uint64(key))
	ctx = ensureTrace(ctx)
	l := log.With(n.log, "trace", TraceFrom(ctx), "key", key, "hops", hops)

	if ring.InRange(key, pred.ID, self.ID) {
		level.Debug(l).Log("msg", "resolved key locally")
		n.metrics.resolveHops.Observe(float64(hops))
		return []peer.Info{self}, nil
	}

	next := nextHop(self, ft, key)
	if next.ID == self.ID {
		level.Debug(l).Log("msg", "no peer to forward to, owning key")
		n.metrics.resolveHops.Observe(float64(hops))
		return []peer.Info{self}, nil
	}

	if hops+1 > n.cfg.MaxHops {
		level.Warn(l).Log("msg", "hop budget exhausted", "max_hops", n.cfg.MaxHops)
		return nil, chordkit.ErrResolutionTimeout{Key: uint64(key), Hops: hops}
	}

	level.Debug(l).Log("msg", "forwarding resolution", "next", next)

	hopCtx, cancel := context.WithTimeout(ctx, n.cfg.HopTimeout)
	defer cancel()

	path, err := n.cfg.Transport.Resolve(hopCtx, next, key, hops+1)
	if err != nil {
		var timeoutErr chordkit.ErrResolutionTimeout
		if !errors.As(err, &timeoutErr) && errors.Is(err, context.DeadlineExceeded) {
			err = chordkit.ErrResolutionTimeout{Key: uint64(key), Hops: hops + 1, Err: err}
		}
		level.Warn(l).Log("msg", "failed to forward resolution", "next", next, "err", err)
		return nil, err
	}
	return append(path, self), nil
}

// nextHop picks the peer a resolution for key is forwarded to. It returns
// self when the table holds no other peer.
func nextHop(self peer.Info, ft peer.FingerTable, key ring.ID) peer.Info {
	if f, ok := ft.ClosestPreceding(self.ID, key); ok {
		return f
	}
	if succ, ok := ft.Successor(); ok && succ.ID != self.ID {
		return succ
	}
	return self
}

func resultLabel(found bool) string {
	if found {
		return "found"
	}
	return "not_found"
}

func errorLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
