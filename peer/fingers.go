package peer

import (
	"fmt"
	"strings"

	"github.com/rfratto/chordkit/ring"
)

// FingerTable is a peer's set of routing shortcuts. Finger i (1-indexed)
// points at the successor of (self + 2^(i-1)) mod 2^M. Fingers carry the
// peer address as well as the identifier so that a hop never needs a second
// lookup against the coordinator.
//
// Tables are always replaced wholesale. Epoch is the registry epoch the
// table was computed from; peers ignore tables older than the one they hold.
type FingerTable struct {
	Epoch   uint64 `json:"epoch" codec:"epoch"`
	Fingers []Info `json:"fingers" codec:"fingers"`
}

// Len returns the number of fingers in ft.
func (ft FingerTable) Len() int { return len(ft.Fingers) }

// IDs returns the identifiers of every finger in order.
func (ft FingerTable) IDs() []ring.ID {
	ids := make([]ring.ID, len(ft.Fingers))
	for i, f := range ft.Fingers {
		ids[i] = f.ID
	}
	return ids
}

// Successor returns the first finger, which is the immediate successor of
// the table's owner. ok is false for an empty table.
func (ft FingerTable) Successor() (p Info, ok bool) {
	if len(ft.Fingers) == 0 {
		return Info{}, false
	}
	return ft.Fingers[0], true
}

// ClosestPreceding scans ft from the highest finger to the lowest and
// returns the first finger that lies strictly between self and key.
func (ft FingerTable) ClosestPreceding(self, key ring.ID) (p Info, ok bool) {
	for i := len(ft.Fingers) - 1; i >= 0; i-- {
		if ring.Between(ft.Fingers[i].ID, self, key) {
			return ft.Fingers[i], true
		}
	}
	return Info{}, false
}

// String returns a table with one finger per line.
func (ft FingerTable) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "finger table (epoch %d):\n", ft.Epoch)
	for i, f := range ft.Fingers {
		fmt.Fprintf(&sb, "[%d | %d]\n", i+1, f.ID)
	}
	return sb.String()
}
