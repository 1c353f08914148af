// Package clientpool keeps gRPC connections to chordkit peers and the
// coordinator, keyed by address. Connections which have not been used for a
// while are closed in the background.
//
// A process should use one Pool for all of its outgoing calls so that every
// hop to the same peer shares a connection.
package clientpool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rfratto/chordkit/internal/chordpb"
	"golang.org/x/exp/slices"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Options configures the client pool.
type Options struct {
	// Optional logging interface.
	Log log.Logger

	// Time a connection must be unused for before it's considered stale.
	StaleTime time.Duration

	// Frequency at which stale connections are removed.
	StaleCleanupFrequency time.Duration

	// Maximum number of connections that may be open at once. 0 means
	// unlimited.
	MaxClients int

	// CleanupLRU forcibly closes the least recently used connection when
	// MaxClients is reached. If false, no new connections can be opened past
	// MaxClients.
	CleanupLRU bool
}

// DefaultOptions holds default options for creating client pools.
var DefaultOptions = Options{
	StaleTime:             30 * time.Second,
	StaleCleanupFrequency: 1 * time.Minute,
	MaxClients:            100,
	CleanupLRU:            true,
}

// Pool manages a set of connections.
type Pool struct {
	log      log.Logger
	dialOpts []grpc.DialOption
	opts     Options
	m        *metrics

	clientsMut    sync.RWMutex
	clients       map[string]*client
	reverseLookup map[*grpc.ClientConn]*client
	closed        bool

	exited    chan struct{}
	cancelRun context.CancelFunc
}

type client struct {
	Addr string
	Conn *grpc.ClientConn

	Mutex    sync.Mutex
	LastUsed time.Time
}

func (c *client) updateLastUsed() {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	c.LastUsed = time.Now()
}

func (c *client) lastUsed() time.Time {
	c.Mutex.Lock()
	defer c.Mutex.Unlock()
	return c.LastUsed
}

// New creates a new Pool. An error will be returned if the options are
// invalid.
//
// Connections are opened without transport security and default to the
// msgpack codec. defaultDialOpts are applied after those defaults and may
// override them.
//
// Call Close to close the pool.
func New(opts Options, defaultDialOpts ...grpc.DialOption) (*Pool, error) {
	switch {
	case opts.StaleTime <= 0:
		return nil, fmt.Errorf("StaleTime must be greater than 0")
	case opts.StaleCleanupFrequency < 0:
		return nil, fmt.Errorf("StaleCleanupFrequency must not be negative")
	case opts.MaxClients < 0:
		return nil, fmt.Errorf("MaxClients must be greater or equal to 0")
	}

	ctx, cancel := context.WithCancel(context.Background())

	l := opts.Log
	if l == nil {
		l = log.NewNopLogger()
	}

	p := &Pool{
		log:  log.With(l, "component", "clientpool"),
		opts: opts,
		m:    newMetrics(opts),

		clients:       make(map[string]*client, opts.MaxClients),
		reverseLookup: make(map[*grpc.ClientConn]*client),

		exited:    make(chan struct{}),
		cancelRun: cancel,
	}

	fullDialOptions := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(chordpb.CodecName)),
		grpc.WithUnaryInterceptor(unaryInterceptor(p)),
	}
	fullDialOptions = append(fullDialOptions, defaultDialOpts...)
	p.dialOpts = fullDialOptions

	go p.run(ctx)
	return p, nil
}

// Metrics returns metrics for the Pool.
func (p *Pool) Metrics() prometheus.Collector { return p.m }

func (p *Pool) run(ctx context.Context) {
	defer close(p.exited)

	var cleanupTick <-chan time.Time
	if p.opts.StaleCleanupFrequency == 0 {
		// Never fires; stale connections are kept until Close.
		cleanupTick = make(<-chan time.Time)
	} else {
		t := time.NewTicker(p.opts.StaleCleanupFrequency)
		defer t.Stop()
		cleanupTick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTick:
			p.removeStaleClients()
		}
	}
}

// removeStaleClients removes all clients which are stale or shut down.
func (p *Pool) removeStaleClients() {
	p.clientsMut.Lock()
	defer p.clientsMut.Unlock()

	p.m.gcActive.Set(1)
	defer p.m.gcActive.Set(0)

	timer := prometheus.NewTimer(p.m.gcTotal)
	defer timer.ObserveDuration()

	for addr, client := range p.clients {
		stale := time.Since(client.lastUsed()) > p.opts.StaleTime
		if !stale && client.Conn.GetState() != connectivity.Shutdown {
			continue
		}
		level.Debug(p.log).Log("msg", "closing stale connection", "addr", addr)
		if err := p.closeConn(addr, client); err != nil {
			level.Error(p.log).Log("msg", "failed to close stale client", "addr", addr, "err", err)
		}
	}
}

// closeConn closes a connection. clientsMut must be held.
func (p *Pool) closeConn(addr string, client *client) error {
	err := client.Conn.Close()

	// Clean up the pool regardless of whether the connection closed
	// successfully.
	delete(p.clients, addr)
	delete(p.reverseLookup, client.Conn)
	p.m.eventsTotal.WithLabelValues("closed").Inc()
	p.m.currentConns.Set(float64(len(p.clients)))

	return err
}

// Get retrieves a new or existing *grpc.ClientConn for addr. ctx is only used
// for creating the new connection and does not close the returned client.
//
// A new connection is created if there is no existing connection or the
// existing connection was shut down. extraDialOpts are appended to the
// pool's dial options for new connections and ignored otherwise.
//
// Callers should not close the returned connection; the pool closes stale
// connections instead.
func (p *Pool) Get(ctx context.Context, addr string, extraDialOpts ...grpc.DialOption) (*grpc.ClientConn, error) {
	p.clientsMut.Lock()
	defer p.clientsMut.Unlock()

	defer func() {
		p.m.currentConns.Set(float64(len(p.clients)))
	}()

	if p.closed {
		p.m.lookupsTotal.WithLabelValues("error_other").Inc()
		return nil, fmt.Errorf("clientpool has closed")
	}

	entry, ok := p.clients[addr]
	if ok && entry.Conn.GetState() != connectivity.Shutdown {
		entry.updateLastUsed()

		p.m.lookupsTotal.WithLabelValues("success").Inc()
		return entry.Conn, nil
	}
	if entry != nil {
		delete(p.clients, addr)
		delete(p.reverseLookup, entry.Conn)
	}

	if p.opts.MaxClients > 0 && len(p.clients)+1 > p.opts.MaxClients {
		if !p.opts.CleanupLRU {
			p.m.lookupsTotal.WithLabelValues("error_max_conns").Inc()
			return nil, fmt.Errorf("maximum number of clients reached")
		}
		if err := p.removeLRU(); err != nil {
			p.m.lookupsTotal.WithLabelValues("error_other").Inc()
			return nil, err
		}
	}

	dialOpts := make([]grpc.DialOption, 0, len(p.dialOpts)+len(extraDialOpts))
	dialOpts = append(dialOpts, p.dialOpts...)
	dialOpts = append(dialOpts, extraDialOpts...)

	cc, err := grpc.DialContext(ctx, addr, dialOpts...)
	if err != nil {
		p.m.lookupsTotal.WithLabelValues("error_dial").Inc()
		return nil, err
	}
	entry = &client{
		Addr:     addr,
		Conn:     cc,
		LastUsed: time.Now(),
	}
	p.clients[addr] = entry
	p.reverseLookup[cc] = entry

	p.m.lookupsTotal.WithLabelValues("success").Inc()
	p.m.eventsTotal.WithLabelValues("opened").Inc()
	return cc, nil
}

// Node returns a client for the peer service at addr.
func (p *Pool) Node(ctx context.Context, addr string) (*chordpb.NodeClient, error) {
	cc, err := p.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return chordpb.NewNodeClient(cc, addr), nil
}

// Coordinator returns a client for the coordinator service at addr.
func (p *Pool) Coordinator(ctx context.Context, addr string) (*chordpb.CoordinatorClient, error) {
	cc, err := p.Get(ctx, addr)
	if err != nil {
		return nil, err
	}
	return chordpb.NewCoordinatorClient(cc, addr), nil
}

// removeLRU removes the least recently used client. clientsMut must be held.
func (p *Pool) removeLRU() error {
	clients := make([]*client, 0, len(p.clients))
	for _, c := range p.clients {
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return fmt.Errorf("no clients to remove")
	}

	slices.SortFunc(clients, func(a, b *client) int {
		return a.lastUsed().Compare(b.lastUsed())
	})
	return p.closeConn(clients[0].Addr, clients[0])
}

// Close closes the client pool. Once the pool is closed, all existing
// connections are shut down and no new connections may be opened.
func (p *Pool) Close() error {
	p.clientsMut.Lock()
	defer p.clientsMut.Unlock()

	p.cancelRun()
	<-p.exited

	for addr, client := range p.clients {
		err := p.closeConn(addr, client)
		if err != nil {
			level.Warn(p.log).Log("msg", "failed to close client on shutdown", "addr", addr, "err", err)
		}
	}

	p.closed = true
	return nil
}

// unaryInterceptor marks the connection as used and records the call
// duration.
func unaryInterceptor(p *Pool) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		p.clientsMut.RLock()
		cli, ok := p.reverseLookup[cc]
		p.clientsMut.RUnlock()
		if ok {
			cli.updateLastUsed()
		}

		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		p.m.callDuration.
			WithLabelValues(method, status.Code(err).String()).
			Observe(time.Since(start).Seconds())
		return err
	}
}
