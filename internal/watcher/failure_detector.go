// Package watcher implements the Peer traffic watcher of spec.md §4.3: ICE
// connection-state tracking, Coturn allocation fusion and the R-factor
// quality meter, feeding ConnectionQualityUpdated/PeerConnectionFailed back
// to the Room. Grounded on original_source/src/signalling/peers/metrics'
// ConnectionFailureDetector and coturn_metrics.rs, expressed with the
// teacher's channel/CAS idioms (internal/ws/hub.go, internal/sfu/peer.go).
package watcher

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
)

// FailureDetector tracks the last reported PeerConnectionState of every
// registered Peer and detects the specific transition spec.md §4.3 and
// SPEC_FULL.md §4.3b call a PeerConnectionFailed: a Peer's state becomes
// Failed coming from Connecting, Connected or Disconnected, while its
// partner's currently tracked state is also Failed.
//
// Not safe for concurrent use by itself in the register/unregister path —
// callers (the Room actor) already serialize all access to Peer state, so
// the mutex here only guards against the rare case of a watcher being
// shared across goroutines in tests.
type FailureDetector struct {
	mu      sync.Mutex
	peers   map[ids.PeerId]ids.PeerId // peerID -> partnerID
	states  map[ids.PeerId]webrtc.PeerConnectionState
}

func NewFailureDetector() *FailureDetector {
	return &FailureDetector{
		peers:  make(map[ids.PeerId]ids.PeerId),
		states: make(map[ids.PeerId]webrtc.PeerConnectionState),
	}
}

// RegisterPair registers both sides of a Peer pair if not already known.
func (d *FailureDetector) RegisterPair(a, b ids.PeerId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[a]; !ok {
		d.peers[a] = b
		d.states[a] = webrtc.PeerConnectionStateNew
	}
	if _, ok := d.peers[b]; !ok {
		d.peers[b] = a
		d.states[b] = webrtc.PeerConnectionStateNew
	}
}

// Unregister removes the given Peers and their partner linkage.
func (d *FailureDetector) Unregister(peerIDs ...ids.PeerId) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, id := range peerIDs {
		if partner, ok := d.peers[id]; ok {
			delete(d.peers, id)
			delete(d.peers, partner)
			delete(d.states, id)
			delete(d.states, partner)
		}
	}
}

// UpdateState records newState for peerID and reports whether this update
// constitutes a PeerConnectionFailed event (SPEC_FULL.md §4.3b).
func (d *FailureDetector) UpdateState(peerID ids.PeerId, newState webrtc.PeerConnectionState) (failed bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	partnerID, known := d.peers[peerID]
	if !known {
		return false
	}

	if newState == webrtc.PeerConnectionStateFailed {
		switch d.states[peerID] {
		case webrtc.PeerConnectionStateConnecting,
			webrtc.PeerConnectionStateConnected,
			webrtc.PeerConnectionStateDisconnected:
			if d.states[partnerID] == webrtc.PeerConnectionStateFailed {
				failed = true
			}
		}
	}

	d.states[peerID] = newState
	return failed
}
