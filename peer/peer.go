// Package peer describes the data shared between chordkit peers and the
// coordinator.
package peer

import (
	"fmt"
	"strings"

	"github.com/rfratto/chordkit/ring"
)

// Info identifies a peer on the ring. Info values are created by the
// coordinator when a peer joins and never change afterwards.
type Info struct {
	ID   ring.ID `json:"id" codec:"id"`     // Position of the peer on the ring.
	Addr string  `json:"addr" codec:"addr"` // host:port address of the peer.
}

// String returns a short representation of i, such as 12@127.0.0.1:50001.
func (i Info) String() string { return fmt.Sprintf("%d@%s", i.ID, i.Addr) }

// Entry is a single word and its definition.
type Entry struct {
	Key   string `json:"key" codec:"key"`
	Value string `json:"value" codec:"value"`
}

// NewEntry returns an Entry with surrounding whitespace removed from both the
// key and the value.
func NewEntry(key, value string) Entry {
	return Entry{Key: strings.TrimSpace(key), Value: strings.TrimSpace(value)}
}

// String returns a representation of e, such as [cat] : [feline].
func (e Entry) String() string { return fmt.Sprintf("[%s] : [%s]", e.Key, e.Value) }
