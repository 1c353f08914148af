package coordinator

import (
	"fmt"
	"sync"

	"github.com/rfratto/chordkit"
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
	"golang.org/x/exp/slices"
)

// Registry is the set of registered peers. Registries are safe for
// concurrent use.
//
// Every change to the registry produces a new immutable View and increments
// the registry epoch. Queries that need several answers to agree with each
// other, such as computing a finger table and a predecessor for the same
// peer, should use a single View.
type Registry struct {
	space ring.Space

	mut  sync.RWMutex
	view *View
}

// NewRegistry returns an empty Registry for identifiers in space.
func NewRegistry(space ring.Space) *Registry {
	return &Registry{
		space: space,
		view:  &View{space: space},
	}
}

// View returns the current state of the registry.
func (r *Registry) View() *View {
	r.mut.RLock()
	defer r.mut.RUnlock()
	return r.view
}

// Add registers p. Add fails with chordkit.ErrRegistration if p's identifier
// or address is already registered or p's identifier lies outside of the
// ring. Existing registrations are never replaced.
func (r *Registry) Add(p peer.Info) (*View, error) {
	r.mut.Lock()
	defer r.mut.Unlock()

	regErr := func(reason string) error {
		return chordkit.ErrRegistration{Addr: p.Addr, ID: uint64(p.ID), Reason: reason}
	}

	switch {
	case !r.space.Contains(p.ID):
		return nil, regErr(fmt.Sprintf("identifier outside of ring of size %d", r.space.Size()))
	case r.view.has(p.ID):
		return nil, regErr("identifier already registered")
	case r.view.hasAddr(p.Addr):
		return nil, regErr("address already registered")
	}

	peers := make([]peer.Info, len(r.view.peers), len(r.view.peers)+1)
	copy(peers, r.view.peers)

	idx, _ := slices.BinarySearchFunc(peers, p.ID, compareID)
	peers = slices.Insert(peers, idx, p)

	r.view = &View{
		space: r.space,
		epoch: r.view.epoch + 1,
		peers: peers,
	}
	return r.view, nil
}

// Remove unregisters the peer with id. Remove reports whether the peer was
// registered.
func (r *Registry) Remove(id ring.ID) bool {
	r.mut.Lock()
	defer r.mut.Unlock()

	idx, found := slices.BinarySearchFunc(r.view.peers, id, compareID)
	if !found {
		return false
	}

	r.view = &View{
		space: r.space,
		epoch: r.view.epoch + 1,
		peers: slices.Delete(slices.Clone(r.view.peers), idx, idx+1),
	}
	return true
}

func compareID(p peer.Info, id ring.ID) int {
	switch {
	case p.ID < id:
		return -1
	case p.ID > id:
		return 1
	default:
		return 0
	}
}

// View is an immutable snapshot of a Registry.
type View struct {
	space ring.Space
	epoch uint64
	peers []peer.Info // Sorted by ID.
}

// Epoch returns the number of registry changes which led to v.
func (v *View) Epoch() uint64 { return v.epoch }

// Len returns the number of registered peers.
func (v *View) Len() int { return len(v.peers) }

// Members returns every registered peer sorted by identifier.
func (v *View) Members() []peer.Info {
	return slices.Clone(v.peers)
}

// Get returns the peer registered with id.
func (v *View) Get(id ring.ID) (peer.Info, bool) {
	idx, found := slices.BinarySearchFunc(v.peers, id, compareID)
	if !found {
		return peer.Info{}, false
	}
	return v.peers[idx], true
}

func (v *View) has(id ring.ID) bool {
	_, found := v.Get(id)
	return found
}

func (v *View) hasAddr(addr string) bool {
	return slices.IndexFunc(v.peers, func(p peer.Info) bool { return p.Addr == addr }) != -1
}

// Successor returns the peer with the smallest identifier greater than or
// equal to id, wrapping around to the smallest identifier of the ring.
func (v *View) Successor(id ring.ID) (peer.Info, error) {
	if len(v.peers) == 0 {
		return peer.Info{}, chordkit.ErrEmptyRing
	}
	idx, _ := slices.BinarySearchFunc(v.peers, id, compareID)
	if idx == len(v.peers) {
		return v.peers[0], nil
	}
	return v.peers[idx], nil
}

// Predecessor returns the peer with the largest identifier less than or
// equal to id, wrapping around to the largest identifier of the ring.
func (v *View) Predecessor(id ring.ID) (peer.Info, error) {
	if len(v.peers) == 0 {
		return peer.Info{}, chordkit.ErrEmptyRing
	}
	idx, found := slices.BinarySearchFunc(v.peers, id, compareID)
	switch {
	case found:
		return v.peers[idx], nil
	case idx == 0:
		return v.peers[len(v.peers)-1], nil
	default:
		return v.peers[idx-1], nil
	}
}

// PredecessorOf returns the peer immediately preceding id on the ring. For
// a registered peer this is the peer whose ownership range ends where id's
// begins; a sole member is its own predecessor.
func (v *View) PredecessorOf(id ring.ID) (peer.Info, error) {
	return v.Predecessor(v.space.Wrap(uint64(id) - 1))
}

// FingerTable computes the k-entry finger table of id. Finger i is the
// successor of (id + 2^(i-1)) mod 2^M. When the ring is empty every finger
// points at id itself.
func (v *View) FingerTable(id ring.ID, k int) peer.FingerTable {
	ft := peer.FingerTable{
		Epoch:   v.epoch,
		Fingers: make([]peer.Info, k),
	}
	for i := 1; i <= k; i++ {
		succ, err := v.Successor(v.space.FingerStart(id, i))
		if err != nil {
			succ = peer.Info{ID: id}
		}
		ft.Fingers[i-1] = succ
	}
	return ft
}
