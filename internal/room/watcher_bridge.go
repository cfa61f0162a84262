package room

import (
	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/quality"
)

// HandleConnectionFailure is the Room-side reaction to the traffic
// watcher's PeerConnectionFailed (spec.md §4.3): it drives one ICE-restart
// attempt over the affected pair. RequestIceRestart itself schedules the
// grace-window check (when Scheduler is set), which removes the pair if it
// is not back in Stable by then.
func (r *Room) HandleConnectionFailure(peerID ids.PeerId) error {
	p, ok := r.peers[peerID]
	if !ok {
		return newError(ErrKindNotFound, "HandleConnectionFailure", ErrPeerNotFound)
	}
	return r.RequestIceRestart(p.ID, p.PartnerID)
}

// HandlePeerRemoval force-removes a Peer pair that failed to recover within
// the watcher's repair grace window, notifying both Members with
// PeersRemoved (spec.md §4.3's "Peer pair removed + PeersRemoved emitted to
// both Members").
func (r *Room) HandlePeerRemoval(peerID ids.PeerId) {
	r.RemovePeerPair(peerID)
}

func scoreToProtocol(s quality.Score) protocol.QualityScore {
	switch s {
	case quality.AllDissatisfied:
		return protocol.QualityAllDissatisfied
	case quality.ManyDissatisfied:
		return protocol.QualityManyDissatisfied
	case quality.SomeDissatisfied:
		return protocol.QualitySomeDissatisfied
	default:
		return protocol.QualitySatisfied
	}
}

// HandleQualityChanged forwards a changed R-factor bucket to both Members
// of the pair (spec.md §4.3's ConnectionQualityUpdated), each seeing the
// other's MemberId as the partner.
func (r *Room) HandleQualityChanged(peerID ids.PeerId, score quality.Score) {
	p, ok := r.peers[peerID]
	if !ok {
		return
	}
	partner, ok := r.peers[p.PartnerID]
	if !ok {
		return
	}
	qs := scoreToProtocol(score)
	r.dispatcher.SendEvent(p.MemberID, protocol.EventConnectionQualityUpdated, protocol.ConnectionQualityUpdated{
		PartnerMemberID: string(partner.MemberID),
		Score:           qs,
	})
	r.dispatcher.SendEvent(partner.MemberID, protocol.EventConnectionQualityUpdated, protocol.ConnectionQualityUpdated{
		PartnerMemberID: string(p.MemberID),
		Score:           qs,
	})
}
