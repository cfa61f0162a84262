package room

import (
	"fmt"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/peer"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/turn"
)

// reconcile diffs declared vs. actual Peer pairs (spec.md §4.5 step 4):
// creates missing pairs in WaitLocalOffer/WaitRemoteOffer and removes
// orphaned pairs with PeersRemoved. Must run on the Room's serialized
// execution context.
func (r *Room) reconcile() {
	required := r.spec.requiredPairs()
	wanted := make(map[pairKey]struct{}, len(required))
	for _, k := range required {
		wanted[k] = struct{}{}
		if _, exists := r.pairs[k]; !exists {
			r.createPair(k)
		}
	}
	for k := range r.pairs {
		if _, stillWanted := wanted[k]; !stillWanted {
			r.removePair(k)
		}
	}
}

// peerIDs is the process-wide PeerId counter shared by every Room, so a
// PeerId is unique across Rooms and is never zero.
var peerIDs = ids.NewPeerIdAllocator()

// createPair materializes a new Peer pair for a (publish, play) endpoint
// match. The publish-side Peer always gets the numerically lower PeerId,
// making it the offerer per the glare tie-break rule of spec.md §4.2.
func (r *Room) createPair(k pairKey) {
	pubSpec := r.spec.Members[k.publishMember].Endpoints[k.publishEP]

	aID := peerIDs.Next()
	bID := peerIDs.Next()

	forceRelay := r.spec.forceRelayFor(k)

	a := peer.New(aID, k.publishMember, bID, forceRelay, r.iceServersFor(k.publishMember))
	b := peer.New(bID, k.playMember, aID, forceRelay, r.iceServersFor(k.playMember))

	for i, kind := range pubSpec.MediaKinds {
		trackID := ids.TrackId(fmt.Sprintf("%s-%d", k.publishEP, i))
		a.AddTrack(&peer.Track{
			ID: trackID, Direction: "send", Kind: kind, Source: pubSpec.Source,
			EnabledIndividual: true,
		})
		b.AddTrack(&peer.Track{
			ID: trackID, Direction: "recv", Kind: kind, Source: pubSpec.Source,
			EnabledIndividual: true,
		})
	}

	r.peers[aID] = a
	r.peers[bID] = b
	r.pairs[k] = peerPair{a: aID, b: bID}

	a.TransitionTo(peer.PhaseWaitLocalOffer)
	b.TransitionTo(peer.PhaseWaitRemoteOffer)
	a.SetKnownToRemote(true)

	r.dispatcher.SendEvent(k.publishMember, protocol.EventPeerCreated, protocol.PeerCreated{
		PeerID:          aID,
		NegotiationRole: protocol.Offerer(),
		Tracks:          trackSpecsOf(a),
		IceServers:      a.IceServers,
		ForceRelay:      forceRelay,
	})
	// The play-side Peer exists but receives nothing yet (spec.md §4.2
	// transition 1: "the partner receives nothing yet") — it is delivered
	// PeerCreated{role:Answerer(...)} once the offerer's MakeSdpOffer lands.

	if r.PairCreated != nil {
		r.PairCreated(aID, bID)
	}
}

func (r *Room) removePair(k pairKey) {
	pair, ok := r.pairs[k]
	if !ok {
		return
	}
	delete(r.pairs, k)
	aOwner, bOwner := k.publishMember, k.playMember
	delete(r.peers, pair.a)
	delete(r.peers, pair.b)

	r.dispatcher.SendEvent(aOwner, protocol.EventPeersRemoved, protocol.PeersRemoved{PeerIDs: []ids.PeerId{pair.a}})
	r.dispatcher.SendEvent(bOwner, protocol.EventPeersRemoved, protocol.PeersRemoved{PeerIDs: []ids.PeerId{pair.b}})

	if r.PairRemoved != nil {
		r.PairRemoved(pair.a, pair.b)
	}
}

// RemovePeerPair force-removes whichever pair contains peerID — used by the
// traffic watcher's failed-beyond-repair path (spec.md §4.3's "the Peer
// pair is removed") and by InternalError recovery (spec.md §7).
func (r *Room) RemovePeerPair(peerID ids.PeerId) {
	for k, pair := range r.pairs {
		if pair.a == peerID || pair.b == peerID {
			r.removePair(k)
			return
		}
	}
}

func (r *Room) iceServersFor(memberID ids.MemberId) []protocol.ICEServerInfo {
	if r.turnSvc == nil {
		return nil
	}
	servers, err := r.turnSvc.ICEServers(r.ID, memberID, turn.PolicyGenerateWithoutBackend)
	if err != nil {
		return nil
	}
	return servers
}

func trackSpecsOf(p *peer.Peer) []protocol.TrackSpec {
	tracks := p.Tracks()
	out := make([]protocol.TrackSpec, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, protocol.TrackSpec{
			ID: t.ID, Direction: t.Direction, Kind: t.Kind, Source: t.Source, Mid: t.Mid,
		})
	}
	return out
}
