package chordpb

import (
	"github.com/rfratto/chordkit/peer"
	"github.com/rfratto/chordkit/ring"
)

// Empty is used for requests and responses without a payload.
type Empty struct{}

// InitiateRequest asks the coordinator to register a peer reachable at Addr.
// Addr may omit the port, in which case the coordinator assigns one.
type InitiateRequest struct {
	Addr string `codec:"addr"`
}

// IDRequest carries a single ring identifier.
type IDRequest struct {
	ID ring.ID `codec:"id"`
}

// IDResponse carries a single ring identifier.
type IDResponse struct {
	ID ring.ID `codec:"id"`
}

// PeerResponse carries the identity of one peer.
type PeerResponse struct {
	Peer peer.Info `codec:"peer"`
}

// FingerTableResponse carries a freshly computed finger table.
type FingerTableResponse struct {
	Table peer.FingerTable `codec:"table"`
}

// NotifyJoinedResponse reports the outcome of a join broadcast. Success is
// true even when some peers could not be updated; those are listed in
// Failures.
type NotifyJoinedResponse struct {
	Success  bool        `codec:"success"`
	Epoch    uint64      `codec:"epoch"`
	Notified []peer.Info `codec:"notified"`
	Failures []Failure   `codec:"failures"`
}

// Failure describes a peer that could not be updated during a broadcast.
type Failure struct {
	Peer  peer.Info `codec:"peer"`
	Error string    `codec:"error"`
}

// ResolveRequest asks a peer to find the owner of Key. Hops counts the peers
// the request already went through. Trace is a request identifier carried
// across hops for logging.
type ResolveRequest struct {
	Key   ring.ID `codec:"key"`
	Hops  int     `codec:"hops"`
	Trace string  `codec:"trace"`
}

// ResolveResponse holds the resolution path: the owner first and the peer
// that received the original request last.
type ResolveResponse struct {
	Path []peer.Info `codec:"path"`
}

// EntryRequest carries an entry to add or store.
type EntryRequest struct {
	Entry peer.Entry `codec:"entry"`
	Trace string     `codec:"trace"`
}

// AddEntryResponse reports where an entry was stored.
type AddEntryResponse struct {
	Success bool        `codec:"success"`
	Path    []peer.Info `codec:"path"`
}

// LookupRequest asks for the entry of Word.
type LookupRequest struct {
	Word  string `codec:"word"`
	Trace string `codec:"trace"`
}

// LookupResponse holds the result of a lookup. Path is empty for local
// lookups.
type LookupResponse struct {
	Entry peer.Entry  `codec:"entry"`
	Found bool        `codec:"found"`
	Path  []peer.Info `codec:"path"`
}

// UpdateRequest replaces a peer's finger table and predecessor.
type UpdateRequest struct {
	Table       peer.FingerTable `codec:"table"`
	Predecessor peer.Info        `codec:"predecessor"`
}

// ShardResponse holds a copy of a peer's shard.
type ShardResponse struct {
	Entries []peer.Entry `codec:"entries"`
}
