// Package chordkit is a toolkit for running a Chord-style distributed hash
// table. There are two kinds of processes:
//
// 1. A single coordinator assigns identifiers to joining peers, answers
// questions about ring membership, and tells every existing peer to rebuild
// its finger table when the ring changes.
//
// 2. Peers own a contiguous range of the identifier ring. They route keys to
// their owner by hopping through finger tables and hand entries over to
// their predecessor when a join shrinks their range.
//
// Lookups and inserts flow peer to peer and never touch the coordinator.
package chordkit
