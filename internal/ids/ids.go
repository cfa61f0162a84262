// Package ids defines the opaque identifier types shared across the
// signaling core: RoomId (global), MemberId (per room), PeerId (global
// monotonic), TrackId (per Peer) and EndpointId (per member).
package ids

import (
	"crypto/rand"
	"encoding/hex"
	"sync/atomic"
)

type RoomId string
type MemberId string
type EndpointId string
type TrackId string

// PeerId is a global monotonic counter, per spec §3. It is comparable so
// glare resolution ("numerically lower PeerId offers") is a plain integer
// comparison.
type PeerId uint64

// PeerIdAllocator hands out PeerIds from a process-wide monotonic counter.
// Grounded on the prefixed-random-id generator pattern in the teacher's
// db/ids.go, simplified to a pure counter because the data model requires
// PeerId to be numerically ordered, not merely unique.
type PeerIdAllocator struct {
	next atomic.Uint64
}

func NewPeerIdAllocator() *PeerIdAllocator {
	a := &PeerIdAllocator{}
	a.next.Store(1)
	return a
}

func (a *PeerIdAllocator) Next() PeerId {
	return PeerId(a.next.Add(1) - 1)
}

// GenerateOpaqueID produces a random prefixed identifier for entities that
// do not need ordering. Nothing in this module calls it.
func GenerateOpaqueID(prefix string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return prefix + "_" + hex.EncodeToString(b), nil
}
