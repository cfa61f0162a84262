// Package peer implements the Peer entity of spec.md §3/§4.2: the server's
// local view of one end of a RTCPeerConnection, its track table and its
// renegotiation phase. Grounded on the teacher's internal/sfu/peer.go
// (atomic-state CAS pattern) generalized from a 4-state lifecycle to the
// 5-state negotiation machine, with the real pion PeerConnection removed —
// this server never opens one, it only carries the SDP/ICE vocabulary.
package peer

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

// Track is one entry of a Peer's track table (spec §3 "Track record").
type Track struct {
	ID                ids.TrackId
	Direction         string // "send" | "recv"
	Kind              protocol.MediaKind
	Source            protocol.SourceKind
	Mid               string // assigned once, immutable thereafter
	EnabledIndividual bool
	Muted             bool

	// partner is the complementary TrackId in the paired Peer's table
	// (send<->recv), set once both sides exist.
	partner ids.TrackId
}

// EnabledGeneral is the AND of both ends' individual media-exchange state.
// It requires the partner's current individual flag, supplied by the Room
// actor which holds both Peers of the pair.
func EnabledGeneral(mine, partner *Track) bool {
	if mine == nil || partner == nil {
		return false
	}
	return mine.EnabledIndividual && partner.EnabledIndividual
}

// Peer is the server's local view of one end of a peer-to-peer pair.
type Peer struct {
	phaseMachine

	ID         ids.PeerId
	MemberID   ids.MemberId
	PartnerID  ids.PeerId
	ForceRelay bool
	IceServers []protocol.ICEServerInfo

	mu              sync.Mutex
	tracks          map[ids.TrackId]*Track
	pendingLog      []protocol.PeerUpdate
	isKnownToRemote bool

	// connState is the last PeerConnectionState reported via
	// AddPeerConnectionMetrics; consumed by the traffic watcher (§4.3).
	connState webrtc.PeerConnectionState
}

func New(id ids.PeerId, memberID ids.MemberId, partnerID ids.PeerId, forceRelay bool, iceServers []protocol.ICEServerInfo) *Peer {
	p := &Peer{
		ID:         id,
		MemberID:   memberID,
		PartnerID:  partnerID,
		ForceRelay: forceRelay,
		IceServers: iceServers,
		tracks:     make(map[ids.TrackId]*Track),
		connState:  webrtc.PeerConnectionStateNew,
	}
	p.init(PhaseStable)
	return p
}

func (p *Peer) Phase() Phase { return p.current() }

// TransitionTo attempts the given phase edge; it is the single entry point
// the Room actor uses to drive this side of a pair, so both sides of a pair
// always go through the same validity table.
func (p *Peer) TransitionTo(newPhase Phase) bool { return p.transitionTo(newPhase) }

// ForceStable resets the Peer to Stable outside the normal edge table.
// Nothing in this module calls it: the ICE-restart grace-window expiry
// removes the pair instead of resetting it.
func (p *Peer) ForceStable() { p.forceTo(PhaseStable) }

// AddTrack inserts a new track into the table; called by the Room during
// reconciliation, before the owning side has necessarily sent an offer.
func (p *Peer) AddTrack(t *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks[t.ID] = t
}

func (p *Peer) Track(id ids.TrackId) (*Track, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[id]
	return t, ok
}

func (p *Peer) RemoveTrack(id ids.TrackId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.tracks, id)
}

func (p *Peer) Tracks() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Track, 0, len(p.tracks))
	for _, t := range p.tracks {
		out = append(out, t)
	}
	return out
}

// AssignMid sets a track's mid the first time it is seen in a local offer.
// A mid once assigned is immutable for the life of the Peer (spec §3); an
// attempt to change it is rejected.
func (p *Peer) AssignMid(trackID ids.TrackId, mid string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	t, ok := p.tracks[trackID]
	if !ok {
		return ErrTrackNotFound
	}
	if t.Mid != "" && t.Mid != mid {
		return ErrMidAlreadyAssigned
	}
	t.Mid = mid
	return nil
}

// ApplyTransceiverStatus mirrors a single reported individual
// media-exchange flag into the track table, per the "mirrors media-exchange
// state from transceivers_statuses" rule of spec §4.2.
func (p *Peer) ApplyTransceiverStatus(trackID ids.TrackId, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.tracks[trackID]; ok {
		t.EnabledIndividual = enabled
	}
}

// EnqueueChange appends to the pending-change log (spec §3's "pending-change
// log", drained to Stable per §4.2's "reaching Stable clears the log").
func (p *Peer) EnqueueChange(u protocol.PeerUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pendingLog = append(p.pendingLog, u)
}

// DrainLog returns and clears the pending-change log.
func (p *Peer) DrainLog() []protocol.PeerUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.pendingLog
	p.pendingLog = nil
	return out
}

// HasIceRestartPending reports whether the pending log already carries an
// IceRestart entry — used to coalesce two consecutive restart requests
// issued before the first completes into a single log entry (spec §8).
func (p *Peer) HasIceRestartPending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.pendingLog {
		if u.Kind == protocol.PeerUpdateIceRestart {
			return true
		}
	}
	return false
}

func (p *Peer) SetKnownToRemote(v bool) {
	p.mu.Lock()
	p.isKnownToRemote = v
	p.mu.Unlock()
}

func (p *Peer) KnownToRemote() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.isKnownToRemote
}

// SetConnectionState records the latest reported PeerConnectionState and
// returns the previous one, for the traffic watcher's transition check
// (spec §4.3, SPEC_FULL.md §4.3b).
func (p *Peer) SetConnectionState(s webrtc.PeerConnectionState) webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.connState
	p.connState = s
	return prev
}

func (p *Peer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connState
}
