package room

import (
	"time"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/peer"
	"rtcsignal/internal/protocol"
)

// HandleMakeSdpOffer implements the WaitLocalOffer -> WaitRemoteAnswer edge
// of spec.md §4.2: rejects with ErrKindOutOfOrderCommand (no state change)
// if the Peer isn't in WaitLocalOffer, otherwise assigns mids, mirrors
// transceiver statuses, and forwards PeerCreated/PeerUpdated to the partner
// depending on whether the partner is already known to the remote side.
func (r *Room) HandleMakeSdpOffer(memberID ids.MemberId, cmd protocol.MakeSdpOfferCommand) error {
	p, partner, err := r.pairFor(memberID, cmd.PeerID)
	if err != nil {
		return err
	}
	if !p.TransitionTo(peer.PhaseWaitRemoteAnswer) {
		return newError(ErrKindOutOfOrderCommand, "MakeSdpOffer", nil)
	}

	for trackID, mid := range cmd.Mids {
		_ = p.AssignMid(ids.TrackId(trackID), mid)
	}
	for trackID, enabled := range cmd.TransceiverStatuses {
		p.ApplyTransceiverStatus(ids.TrackId(trackID), enabled)
	}

	r.dispatcher.SendEvent(memberID, protocol.EventLocalDescriptionApplied, protocol.LocalDescriptionApplied{
		PeerID: p.ID,
		SDP:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: cmd.SdpOffer},
	})

	partner.TransitionTo(peer.PhaseWaitLocalHaveRemote)

	if !partner.KnownToRemote() {
		partner.SetKnownToRemote(true)
		r.dispatcher.SendEvent(partner.MemberID, protocol.EventPeerCreated, protocol.PeerCreated{
			PeerID:          partner.ID,
			NegotiationRole: protocol.Answerer(cmd.SdpOffer),
			Tracks:          trackSpecsOf(partner),
			IceServers:      partner.IceServers,
			ForceRelay:      partner.ForceRelay,
		})
		return nil
	}

	role := protocol.Answerer(cmd.SdpOffer)
	r.dispatcher.SendEvent(partner.MemberID, protocol.EventPeerUpdated, protocol.PeerUpdated{
		PeerID:          partner.ID,
		Updates:         partner.DrainLog(),
		NegotiationRole: &role,
	})
	return nil
}

// HandleMakeSdpAnswer implements the WaitLocalHaveRemote -> Stable edge:
// moves the answering Peer to Stable, forwards SdpAnswerMade to the
// offering side and lets its WaitRemoteAnswer -> Stable edge complete the
// pair, clearing both pending-change logs (spec.md §4.2's "reaching Stable
// clears the log").
func (r *Room) HandleMakeSdpAnswer(memberID ids.MemberId, cmd protocol.MakeSdpAnswerCommand) error {
	p, partner, err := r.pairFor(memberID, cmd.PeerID)
	if err != nil {
		return err
	}
	if !p.TransitionTo(peer.PhaseStable) {
		return newError(ErrKindOutOfOrderCommand, "MakeSdpAnswer", nil)
	}
	for trackID, enabled := range cmd.TransceiverStatuses {
		p.ApplyTransceiverStatus(ids.TrackId(trackID), enabled)
	}
	p.DrainLog()

	r.dispatcher.SendEvent(memberID, protocol.EventLocalDescriptionApplied, protocol.LocalDescriptionApplied{
		PeerID: p.ID,
		SDP:    webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: cmd.SdpAnswer},
	})

	partner.TransitionTo(peer.PhaseStable)
	partner.DrainLog()

	r.dispatcher.SendEvent(partner.MemberID, protocol.EventSdpAnswerMade, protocol.SdpAnswerMade{
		PeerID:    partner.ID,
		SdpAnswer: cmd.SdpAnswer,
	})
	return nil
}

// HandleSetIceCandidate forwards an ICE candidate to the partner; accepted
// in any Peer phase, empty candidate strings are silently dropped (spec.md
// §4.2).
func (r *Room) HandleSetIceCandidate(memberID ids.MemberId, cmd protocol.SetIceCandidateCommand) error {
	_, partner, err := r.pairFor(memberID, cmd.PeerID)
	if err != nil {
		return err
	}
	if cmd.Candidate.Candidate == "" {
		return nil
	}
	r.dispatcher.SendEvent(partner.MemberID, protocol.EventIceCandidateDiscovered, protocol.IceCandidateDiscovered{
		PeerID:    partner.ID,
		Candidate: cmd.Candidate,
	})
	return nil
}

// HandleAddPeerConnectionMetrics is accepted in any Peer phase and never
// drives an SDP-state transition; it only records connection state for the
// traffic watcher and forwards to MetricsHook if wired (spec.md §4.3).
func (r *Room) HandleAddPeerConnectionMetrics(memberID ids.MemberId, cmd protocol.AddPeerConnectionMetricsCommand) error {
	p, ok := r.peers[cmd.PeerID]
	if !ok || p.MemberID != memberID {
		return newError(ErrKindNotFound, "AddPeerConnectionMetrics", ErrPeerNotFound)
	}
	if cmd.Kind == protocol.MetricsPeerConnectionState {
		p.SetConnectionState(cmd.PeerConnectionState)
	}
	if r.MetricsHook != nil {
		r.MetricsHook(cmd.PeerID, cmd)
	}
	return nil
}

// HandleUpdateTracks applies an ordered list of track patches (spec.md
// §4.2): a mute-only patch never renegotiates; an individual-state patch
// only renegotiates when it changes the computed enabled_general, and both
// sides of the pair always receive PeerUpdated regardless.
func (r *Room) HandleUpdateTracks(memberID ids.MemberId, cmd protocol.UpdateTracksCommand) error {
	p, partner, err := r.pairFor(memberID, cmd.PeerID)
	if err != nil {
		return err
	}

	renegotiate := false
	for _, patch := range cmd.TracksPatches {
		t, ok := p.Track(patch.ID)
		if !ok {
			continue
		}
		partnerTrack, _ := partner.Track(patch.ID)
		before := peer.EnabledGeneral(t, partnerTrack)

		evt := protocol.TrackPatchEvent{ID: patch.ID}
		if patch.Muted != nil {
			t.Muted = *patch.Muted
			evt.Muted = patch.Muted
		}
		if patch.Enabled != nil {
			t.EnabledIndividual = *patch.Enabled
			after := peer.EnabledGeneral(t, partnerTrack)
			evt.EnabledIndividual = &t.EnabledIndividual
			evt.EnabledGeneral = &after
			if after != before {
				renegotiate = true
			}
		}

		p.EnqueueChange(protocol.PeerUpdate{Kind: protocol.PeerUpdateUpdated, Updated: &evt})

		// The partner only ever learns the computed enabled_general; the
		// offerer's own enabled_individual is local state that never crosses
		// to the other side (spec.md §4.2).
		partnerEvt := evt
		partnerEvt.EnabledIndividual = nil
		partner.EnqueueChange(protocol.PeerUpdate{Kind: protocol.PeerUpdateUpdated, Updated: &partnerEvt})
	}

	if !renegotiate {
		r.flushPendingNoRole(p)
		r.flushPendingNoRole(partner)
		return nil
	}

	if !p.TransitionTo(peer.PhaseWaitLocalOffer) || !partner.TransitionTo(peer.PhaseWaitRemoteOffer) {
		// Already mid-renegotiation: leave the entries queued for the
		// in-flight cycle's next PeerUpdated rather than erroring out.
		return nil
	}

	role := protocol.Offerer()
	r.dispatcher.SendEvent(p.MemberID, protocol.EventPeerUpdated, protocol.PeerUpdated{
		PeerID:          p.ID,
		Updates:         p.DrainLog(),
		NegotiationRole: &role,
	})
	r.dispatcher.SendEvent(partner.MemberID, protocol.EventPeerUpdated, protocol.PeerUpdated{
		PeerID:  partner.ID,
		Updates: partner.DrainLog(),
	})
	return nil
}

func (r *Room) flushPendingNoRole(p *peer.Peer) {
	log := p.DrainLog()
	if len(log) == 0 {
		return
	}
	r.dispatcher.SendEvent(p.MemberID, protocol.EventPeerUpdated, protocol.PeerUpdated{
		PeerID:  p.ID,
		Updates: log,
	})
}

// RequestIceRestart drives the repair path of spec.md §4.3/§8: the glare
// tie-break rule picks the numerically lower PeerId as the offerer for the
// restart. A second request before the first completes coalesces into the
// same pending-log entry rather than appending a duplicate.
func (r *Room) RequestIceRestart(a, b ids.PeerId) error {
	pa, ok := r.peers[a]
	if !ok {
		return newError(ErrKindNotFound, "RequestIceRestart", ErrPeerNotFound)
	}
	pb, ok := r.peers[b]
	if !ok {
		return newError(ErrKindNotFound, "RequestIceRestart", ErrPeerNotFound)
	}

	offerer, answerer := pa, pb
	if answerer.ID < offerer.ID {
		offerer, answerer = answerer, offerer
	}

	if !offerer.HasIceRestartPending() {
		offerer.EnqueueChange(protocol.PeerUpdate{Kind: protocol.PeerUpdateIceRestart})
	}

	if offerer.Phase() == peer.PhaseStable {
		offerer.TransitionTo(peer.PhaseWaitLocalOffer)
		answerer.TransitionTo(peer.PhaseWaitRemoteOffer)
	}

	role := protocol.Offerer()
	r.dispatcher.SendEvent(offerer.MemberID, protocol.EventPeerUpdated, protocol.PeerUpdated{
		PeerID:          offerer.ID,
		Updates:         offerer.DrainLog(),
		NegotiationRole: &role,
	})

	// If the restarted pair hasn't reached Stable again within the grace
	// window, it's failed beyond repair: remove it and notify both Members
	// (spec.md §4.3's "Failure semantics").
	if r.Scheduler != nil {
		offererID := offerer.ID
		r.Scheduler(iceRestartGraceWindow, func() { r.checkIceRestartGrace(offererID) })
	}
	return nil
}

// iceRestartGraceWindow is how long a restarted Peer pair has to reach
// Stable again before it's declared failed beyond repair (spec.md §4.3).
const iceRestartGraceWindow = 15 * time.Second

// checkIceRestartGrace fires iceRestartGraceWindow after a RequestIceRestart;
// if the offerer Peer is still around and hasn't settled back to Stable, the
// pair is removed and PeersRemoved is emitted to both Members.
func (r *Room) checkIceRestartGrace(offererID ids.PeerId) {
	p, ok := r.peers[offererID]
	if !ok {
		return
	}
	if p.Phase() == peer.PhaseStable {
		return
	}
	r.RemovePeerPair(offererID)
}

// HandleLeaveRoom processes an explicit client-initiated LeaveRoom command,
// distinct from a transport-level session close: it emits RoomLeft with
// reason Finished. The actual session teardown (closing the channel) is the
// caller's (rpcsession) responsibility.
func (r *Room) HandleLeaveRoom(memberID ids.MemberId) error {
	if _, ok := r.members[memberID]; !ok {
		return newError(ErrKindNotFound, "LeaveRoom", ErrMemberNotFound)
	}
	r.dispatcher.SendEvent(memberID, protocol.EventRoomLeft, protocol.RoomLeft{CloseReason: protocol.CloseFinished})
	return nil
}

// pairFor resolves a client-addressed PeerId to the Peer owned by memberID
// and its partner, rejecting with NotFound if the Member doesn't own it.
func (r *Room) pairFor(memberID ids.MemberId, peerID ids.PeerId) (*peer.Peer, *peer.Peer, error) {
	p, ok := r.peers[peerID]
	if !ok || p.MemberID != memberID {
		return nil, nil, newError(ErrKindNotFound, "pairFor", ErrPeerNotFound)
	}
	partner, ok := r.peers[p.PartnerID]
	if !ok {
		return nil, nil, newError(ErrKindNotFound, "pairFor", ErrPeerNotFound)
	}
	return p, partner, nil
}
