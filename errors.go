package chordkit

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyRing is returned by operations that need at least one
	// registered peer.
	ErrEmptyRing = errors.New("ring has no members")

	// ErrNotFound is returned when an identifier or key is not known.
	ErrNotFound = errors.New("not found")

	// ErrNotJoined is returned by a peer asked to route or store data before
	// it has joined the ring.
	ErrNotJoined = errors.New("node has not joined the ring")
)

// ErrPeerUnreachable is returned when a remote call to a specific peer
// failed at the transport level.
type ErrPeerUnreachable struct {
	Addr string
	Err  error
}

// Error implements error.
func (e ErrPeerUnreachable) Error() string {
	return fmt.Sprintf("peer %s unreachable: %s", e.Addr, e.Err)
}

// Unwrap returns the underlying transport error.
func (e ErrPeerUnreachable) Unwrap() error { return e.Err }

// ErrResolutionTimeout is returned when resolving a key exceeded the hop
// budget or a per-hop deadline.
type ErrResolutionTimeout struct {
	Key  uint64
	Hops int
	Err  error
}

// Error implements error.
func (e ErrResolutionTimeout) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("resolving key %d timed out after %d hops: %s", e.Key, e.Hops, e.Err)
	}
	return fmt.Sprintf("resolving key %d timed out after %d hops", e.Key, e.Hops)
}

// Unwrap returns the underlying error, if any.
func (e ErrResolutionTimeout) Unwrap() error { return e.Err }

// ErrRegistration is returned when the coordinator refuses to register a
// peer.
type ErrRegistration struct {
	Addr   string
	ID     uint64
	Reason string
}

// Error implements error.
func (e ErrRegistration) Error() string {
	return fmt.Sprintf("cannot register %s (id %d): %s", e.Addr, e.ID, e.Reason)
}

// ErrResolution is returned by AddEntry and Lookup when no owner could be
// found for a word.
type ErrResolution struct {
	Word string
	Err  error
}

// Error implements error.
func (e ErrResolution) Error() string {
	return fmt.Sprintf("no owner found for %q: %s", e.Word, e.Err)
}

// Unwrap returns the reason resolution failed.
func (e ErrResolution) Unwrap() error { return e.Err }
