// Package coordinator implements the bootstrap and directory service of a
// chordkit ring. The coordinator assigns identifiers to joining peers,
// answers ring position queries from its registry, and drives the broadcast
// which hands every peer a new finger table and predecessor once a join
// completes.
//
// The coordinator is not involved in routing: lookups and inserts flow
// between peers only.
package coordinator

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
	"golang.org/x/exp/slices"
)

// Updater pushes topology changes to a peer.
type Updater interface {
	// Update replaces the finger table and predecessor of target.
	Update(ctx context.Context, target peer.Info, ft peer.FingerTable, pred peer.Info) error
}

// IDFunc derives a peer identifier from the peer's host and port. attempt
// starts at 0 and increases each time the previous identifier collided with
// a registered peer.
type IDFunc func(host, port string, attempt int) ring.ID

// HashID returns the default IDFunc for space. Attempt 0 hashes the host
// followed by the port; later attempts add a "#attempt" suffix.
func HashID(space ring.Space) IDFunc {
	return func(host, port string, attempt int) ring.ID {
		if attempt == 0 {
			return space.Hash(host + port)
		}
		return space.Hash(host + port + "#" + strconv.Itoa(attempt))
	}
}

// Config configures a Coordinator.
type Config struct {
	// Identifier space of the ring. Required.
	Space ring.Space

	// Number of entries in each finger table. Defaults to the number of bits
	// in Space.
	FingerSize int

	// First port handed out to peers which register without one. Defaults to
	// 50000.
	PortBase int

	// Number of identifiers tried for a peer before its registration is
	// rejected. Defaults to 8.
	MaxAttempts int

	// Used to push finger tables to peers during NotifyJoined. Required.
	Updater Updater

	// Timeout for each peer update during NotifyJoined. Defaults to 5s.
	UpdateTimeout time.Duration

	// Time a registered peer has to call NotifyJoined. Peers which do not
	// are removed from the registry so that other peers can join. Defaults
	// to 30s.
	JoinTimeout time.Duration

	// Optional function to derive identifiers. Defaults to HashID(Space).
	IDFunc IDFunc

	// Optional source of randomness for RandomPeerInfo.
	Rand *rand.Rand

	// Optional logger.
	Log log.Logger
}

func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("missing config")
	}

	if !c.Space.Valid() {
		return fmt.Errorf("Space must be set")
	}
	if c.Updater == nil {
		return fmt.Errorf("Updater must be set")
	}

	if c.FingerSize < 0 {
		return fmt.Errorf("FingerSize must not be negative")
	} else if c.FingerSize == 0 {
		c.FingerSize = int(c.Space.Bits())
	}

	if c.PortBase < 0 || c.PortBase > 65535 {
		return fmt.Errorf("PortBase %d is not a valid port", c.PortBase)
	} else if c.PortBase == 0 {
		c.PortBase = 50000
	}

	if c.MaxAttempts == 0 {
		c.MaxAttempts = 8
	}
	if c.UpdateTimeout == 0 {
		c.UpdateTimeout = 5 * time.Second
	}
	if c.JoinTimeout == 0 {
		c.JoinTimeout = 30 * time.Second
	}
	if c.IDFunc == nil {
		c.IDFunc = HashID(c.Space)
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Log == nil {
		c.Log = log.NewNopLogger()
	}

	return nil
}

// Coordinator hosts the registry of a ring.
type Coordinator struct {
	cfg     Config
	log     log.Logger
	reg     *Registry
	metrics *metrics

	// joinSlot holds a token while a join is in progress. A join starts in
	// Initiate and ends when its NotifyJoined broadcast returns, so a peer
	// always computes its routing state from the ring it is added to and
	// every broadcast starts from a fully updated ring.
	joinSlot chan struct{}

	pendingMut sync.Mutex
	pending    *pendingJoin // Registered peer which has not called NotifyJoined.

	randMut sync.Mutex
}

// pendingJoin is a peer between Initiate and NotifyJoined. It owns the join
// slot.
type pendingJoin struct {
	info  peer.Info
	timer *time.Timer
}

// New creates a new Coordinator with an empty registry.
func New(cfg Config) (*Coordinator, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	c := &Coordinator{
		cfg:     cfg,
		log:     cfg.Log,
		reg:     NewRegistry(cfg.Space),
		metrics: newMetrics(),

		joinSlot: make(chan struct{}, 1),
	}
	c.metrics.Add(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chordkit_coordinator_ring_members",
			Help: "Number of peers registered in the ring.",
		}, func() float64 { return float64(c.reg.View().Len()) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "chordkit_coordinator_ring_epoch",
			Help: "Current epoch of the registry.",
		}, func() float64 { return float64(c.reg.View().Epoch()) }),
	)
	return c, nil
}

// Metrics returns a prometheus.Collector that can be used to collect metrics
// about the Coordinator.
func (c *Coordinator) Metrics() prometheus.Collector { return c.metrics }

// Registry returns the registry of the Coordinator.
func (c *Coordinator) Registry() *Registry { return c.reg }

// Space returns the identifier space of the ring.
func (c *Coordinator) Space() ring.Space { return c.cfg.Space }

// FingerSize returns the number of entries in each finger table.
func (c *Coordinator) FingerSize() int { return c.cfg.FingerSize }

// Initiate registers a new peer reachable at addr and returns its identity.
//
// addr may be a bare host, in which case the peer is assigned the first
// free port at or above the configured port base, or a host:port pair which
// is used as is. The identifier is the hash of the host and port; when it
// collides with a registered peer, further identifiers are derived until
// one is free or the attempt limit is reached. Initiate fails with
// chordkit.ErrRegistration if no identifier could be assigned or addr is
// already registered.
//
// Only one peer joins at a time: Initiate waits until the previous join
// completed with NotifyJoined or expired. A peer which registers again from
// the address of the pending join replaces it, so a peer whose join failed
// can retry.
func (c *Coordinator) Initiate(ctx context.Context, addr string) (peer.Info, error) {
	c.dropPending("replaced", func(p peer.Info) bool { return p.Addr == addr })

	if err := c.acquire(ctx); err != nil {
		c.metrics.registrationsTotal.WithLabelValues("error").Inc()
		return peer.Info{}, fmt.Errorf("waiting for join in progress: %w", err)
	}

	info, err := c.assign(addr)
	if err == nil {
		_, err = c.reg.Add(info)
	}
	if err != nil {
		c.release()
		c.metrics.registrationsTotal.WithLabelValues("error").Inc()
		level.Warn(c.log).Log("msg", "rejected registration", "addr", addr, "err", err)
		return peer.Info{}, err
	}

	c.setPending(info)
	c.metrics.registrationsTotal.WithLabelValues("success").Inc()
	level.Info(c.log).Log("msg", "registered peer", "id", info.ID, "addr", info.Addr)
	return info, nil
}

func (c *Coordinator) acquire(ctx context.Context) error {
	select {
	case c.joinSlot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) release() { <-c.joinSlot }

// setPending records info as the join in progress. The join slot must be
// held.
func (c *Coordinator) setPending(info peer.Info) {
	c.pendingMut.Lock()
	defer c.pendingMut.Unlock()

	p := &pendingJoin{info: info}
	p.timer = time.AfterFunc(c.cfg.JoinTimeout, func() {
		c.dropPending("expired", func(pi peer.Info) bool { return pi == info })
	})
	c.pending = p
}

// claimPending ends the pending join if it belongs to id. The caller takes
// over the join slot.
func (c *Coordinator) claimPending(id ring.ID) bool {
	c.pendingMut.Lock()
	defer c.pendingMut.Unlock()

	if c.pending == nil || c.pending.info.ID != id {
		return false
	}
	c.pending.timer.Stop()
	c.pending = nil
	return true
}

// dropPending unregisters the pending join if match accepts it and frees
// the join slot.
func (c *Coordinator) dropPending(reason string, match func(peer.Info) bool) {
	c.pendingMut.Lock()
	defer c.pendingMut.Unlock()

	p := c.pending
	if p == nil || !match(p.info) {
		return
	}
	p.timer.Stop()
	c.pending = nil
	c.reg.Remove(p.info.ID)
	c.release()

	c.metrics.abandonedJoinsTotal.WithLabelValues(reason).Inc()
	level.Warn(c.log).Log("msg", "removed peer which did not complete its join", "id", p.info.ID, "addr", p.info.Addr, "reason", reason)
}

// pendingID returns the identifier of the join in progress.
func (c *Coordinator) pendingID() (ring.ID, bool) {
	c.pendingMut.Lock()
	defer c.pendingMut.Unlock()

	if c.pending == nil {
		return 0, false
	}
	return c.pending.info.ID, true
}

func (c *Coordinator) assign(addr string) (peer.Info, error) {
	if addr == "" {
		return peer.Info{}, chordkit.ErrRegistration{Reason: "empty address"}
	}

	view := c.reg.View()
	if uint64(view.Len()) >= c.cfg.Space.Size() {
		return peer.Info{}, chordkit.ErrRegistration{Addr: addr, Reason: "ring is full"}
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		port = c.nextPort(view, host)
	}
	hostport := net.JoinHostPort(host, port)

	var id ring.ID
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		id = c.cfg.Space.Wrap(uint64(c.cfg.IDFunc(host, port, attempt)))
		if !view.has(id) {
			return peer.Info{ID: id, Addr: hostport}, nil
		}
		level.Debug(c.log).Log("msg", "identifier collision", "addr", hostport, "id", id, "attempt", attempt)
	}

	return peer.Info{}, chordkit.ErrRegistration{
		Addr:   hostport,
		ID:     uint64(id),
		Reason: fmt.Sprintf("no free identifier after %d attempts", c.cfg.MaxAttempts),
	}
}

// nextPort returns the first port for host which is not registered yet,
// starting from the port base offset by the ring size.
func (c *Coordinator) nextPort(view *View, host string) string {
	for n := view.Len(); ; n++ {
		port := strconv.Itoa(c.cfg.PortBase + n)
		if !view.hasAddr(net.JoinHostPort(host, port)) {
			return port
		}
	}
}

// Successor returns the identifier of the first peer at or after id.
func (c *Coordinator) Successor(id ring.ID) (ring.ID, error) {
	p, err := c.reg.View().Successor(c.cfg.Space.Wrap(uint64(id)))
	return p.ID, err
}

// Predecessor returns the identifier of the last peer at or before id.
func (c *Coordinator) Predecessor(id ring.ID) (ring.ID, error) {
	p, err := c.reg.View().Predecessor(c.cfg.Space.Wrap(uint64(id)))
	return p.ID, err
}

// NewFingerTable computes the finger table for the peer with the given id.
func (c *Coordinator) NewFingerTable(id ring.ID) peer.FingerTable {
	return c.reg.View().FingerTable(c.cfg.Space.Wrap(uint64(id)), c.cfg.FingerSize)
}

// GetPeerInfo returns the peer registered with id. chordkit.ErrNotFound is
// returned if there is no such peer.
func (c *Coordinator) GetPeerInfo(id ring.ID) (peer.Info, error) {
	p, ok := c.reg.View().Get(id)
	if !ok {
		return peer.Info{}, fmt.Errorf("peer %d: %w", id, chordkit.ErrNotFound)
	}
	return p, nil
}

// RandomPeerInfo returns a uniformly chosen peer which completed its join.
func (c *Coordinator) RandomPeerInfo() (peer.Info, error) {
	peers := c.reg.View().peers
	if id, ok := c.pendingID(); ok {
		peers = slices.DeleteFunc(slices.Clone(peers), func(p peer.Info) bool { return p.ID == id })
	}
	if len(peers) == 0 {
		return peer.Info{}, chordkit.ErrEmptyRing
	}

	c.randMut.Lock()
	defer c.randMut.Unlock()
	return peers[c.cfg.Rand.Intn(len(peers))], nil
}

// Report is the outcome of a NotifyJoined broadcast.
type Report struct {
	// Epoch of the registry the broadcast was computed from.
	Epoch uint64

	// Peers that applied their update.
	Notified []peer.Info

	// Peers that could not be updated.
	Failed []Failure
}

// Failure is a peer that could not be updated.
type Failure struct {
	Peer peer.Info
	Err  error
}

// Err returns the combined error of every failed update, or nil if every
// peer was updated.
func (r Report) Err() error {
	var result error
	for _, f := range r.Failed {
		result = multierror.Append(result, fmt.Errorf("updating %s: %w", f.Peer, f.Err))
	}
	return result
}

// NotifyJoined announces that the peer with id completed its join. Every
// other registered peer receives a new finger table and predecessor.
//
// Updates are sent concurrently and independently: peers that cannot be
// updated are logged and recorded in the returned Report, but they do not
// cause NotifyJoined to fail. An error is only returned if id is not
// registered.
//
// NotifyJoined completes the join started by Initiate for id. Broadcasts
// for any other peer wait until no join is in progress.
func (c *Coordinator) NotifyJoined(ctx context.Context, id ring.ID) (Report, error) {
	if !c.claimPending(id) {
		if err := c.acquire(ctx); err != nil {
			return Report{}, fmt.Errorf("waiting for join in progress: %w", err)
		}
	}
	defer c.release()

	start := time.Now()
	defer func() {
		c.metrics.broadcastSeconds.Observe(time.Since(start).Seconds())
	}()

	view := c.reg.View()
	if !view.has(id) {
		return Report{}, fmt.Errorf("peer %d: %w", id, chordkit.ErrNotFound)
	}
	level.Info(c.log).Log("msg", "peer joined, updating ring", "id", id, "epoch", view.Epoch(), "members", view.Len())

	var (
		report = Report{Epoch: view.Epoch()}

		mut sync.Mutex
		wg  sync.WaitGroup
	)

	for _, target := range view.peers {
		if target.ID == id {
			continue
		}

		ft := view.FingerTable(target.ID, c.cfg.FingerSize)
		pred, err := view.PredecessorOf(target.ID)
		if err != nil {
			// Unreachable: the ring holds at least target.
			return Report{}, err
		}

		wg.Add(1)
		go func(target peer.Info) {
			defer wg.Done()

			updateCtx, cancel := context.WithTimeout(ctx, c.cfg.UpdateTimeout)
			defer cancel()

			err := c.cfg.Updater.Update(updateCtx, target, ft, pred)

			mut.Lock()
			defer mut.Unlock()

			if err != nil {
				c.metrics.updatesTotal.WithLabelValues("error").Inc()
				level.Warn(c.log).Log("msg", "failed to update peer", "peer", target, "err", err)
				report.Failed = append(report.Failed, Failure{Peer: target, Err: err})
				return
			}
			c.metrics.updatesTotal.WithLabelValues("success").Inc()
			level.Debug(c.log).Log("msg", "updated peer", "peer", target, "predecessor", pred.ID)
			report.Notified = append(report.Notified, target)
		}(target)
	}

	wg.Wait()

	slices.SortFunc(report.Notified, func(a, b peer.Info) int { return compareID(a, b.ID) })
	slices.SortFunc(report.Failed, func(a, b Failure) int { return compareID(a.Peer, b.Peer.ID) })

	if len(report.Failed) > 0 {
		level.Warn(c.log).Log("msg", "ring update incomplete", "id", id, "failed", len(report.Failed), "notified", len(report.Notified))
	}
	return report, nil
}
