package room

import (
	"testing"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

type recordedEvent struct {
	member ids.MemberId
	name   string
	data   any
}

type fakeDispatcher struct {
	events []recordedEvent
}

func (d *fakeDispatcher) SendEvent(memberID ids.MemberId, name string, data any) {
	d.events = append(d.events, recordedEvent{member: memberID, name: name, data: data})
}

func (d *fakeDispatcher) eventsFor(memberID ids.MemberId) []recordedEvent {
	var out []recordedEvent
	for _, e := range d.events {
		if e.member == memberID {
			out = append(out, e)
		}
	}
	return out
}

func (d *fakeDispatcher) countFor(memberID ids.MemberId, name string) int {
	n := 0
	for _, e := range d.eventsFor(memberID) {
		if e.name == name {
			n++
		}
	}
	return n
}

func publishSubscribeSpec() *Spec {
	return &Spec{
		ID: "room1",
		Members: map[ids.MemberId]*MemberSpec{
			"A": {
				ID:         "A",
				Credential: "credA",
				Endpoints: map[ids.EndpointId]*EndpointSpec{
					"pub": {
						ID:         "pub",
						Kind:       EndpointPublish,
						MediaKinds: []protocol.MediaKind{protocol.MediaKindAudio, protocol.MediaKindVideo},
						Source:     protocol.SourceKindDevice,
					},
				},
			},
			"B": {
				ID:         "B",
				Credential: "credB",
				Endpoints: map[ids.EndpointId]*EndpointSpec{
					"play": {
						ID:            "play",
						Kind:          EndpointPlay,
						PlaysMember:   "A",
						PlaysEndpoint: "pub",
					},
				},
			},
		},
	}
}

// Scenario 1 (spec.md §8): two-member publish-subscribe ends with both
// Peers Stable, exactly one PeerCreated per Member, no PeerUpdated.
func TestScenarioPublishSubscribe(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(publishSubscribeSpec(), d, nil, nil)

	if err := r.AuthenticateAndJoin("A", "credA"); err != nil {
		t.Fatalf("A join: %v", err)
	}
	if err := r.AuthenticateAndJoin("B", "credB"); err != nil {
		t.Fatalf("B join: %v", err)
	}

	if got := d.countFor("A", protocol.EventPeerCreated); got != 1 {
		t.Fatalf("A PeerCreated count = %d, want 1", got)
	}
	if got := d.countFor("A", protocol.EventPeerUpdated); got != 0 {
		t.Fatalf("A PeerUpdated count = %d, want 0", got)
	}

	var aPeerID ids.PeerId
	for _, e := range d.eventsFor("A") {
		if pc, ok := e.data.(protocol.PeerCreated); ok {
			aPeerID = pc.PeerID
		}
	}

	if err := r.HandleMakeSdpOffer("A", protocol.MakeSdpOfferCommand{
		PeerID:   aPeerID,
		SdpOffer: "offer-sdp",
		Mids:     map[string]string{"pub-0": "0", "pub-1": "1"},
	}); err != nil {
		t.Fatalf("MakeSdpOffer: %v", err)
	}

	if got := d.countFor("B", protocol.EventPeerCreated); got != 1 {
		t.Fatalf("B PeerCreated count = %d, want 1", got)
	}

	var bPeerID ids.PeerId
	for _, e := range d.eventsFor("B") {
		if pc, ok := e.data.(protocol.PeerCreated); ok {
			bPeerID = pc.PeerID
		}
	}

	if err := r.HandleMakeSdpAnswer("B", protocol.MakeSdpAnswerCommand{
		PeerID:    bPeerID,
		SdpAnswer: "answer-sdp",
	}); err != nil {
		t.Fatalf("MakeSdpAnswer: %v", err)
	}

	pa, _ := r.Peer(aPeerID)
	pb, _ := r.Peer(bPeerID)
	if pa.Phase().String() != "Stable" || pb.Phase().String() != "Stable" {
		t.Fatalf("expected both Peers Stable, got A=%s B=%s", pa.Phase(), pb.Phase())
	}
	if got := d.countFor("A", protocol.EventSdpAnswerMade); got != 1 {
		t.Fatalf("A SdpAnswerMade count = %d, want 1", got)
	}
	if got := d.countFor("A", protocol.EventPeerUpdated); got != 0 {
		t.Fatalf("no PeerUpdated should have been sent to A, got %d", got)
	}
	if got := d.countFor("B", protocol.EventPeerUpdated); got != 0 {
		t.Fatalf("no PeerUpdated should have been sent to B, got %d", got)
	}
}

func establishedPair(t *testing.T) (*Room, *fakeDispatcher, ids.PeerId, ids.PeerId) {
	t.Helper()
	d := &fakeDispatcher{}
	r := New(publishSubscribeSpec(), d, nil, nil)
	r.AuthenticateAndJoin("A", "credA")
	r.AuthenticateAndJoin("B", "credB")

	var aPeerID ids.PeerId
	for _, e := range d.eventsFor("A") {
		if pc, ok := e.data.(protocol.PeerCreated); ok {
			aPeerID = pc.PeerID
		}
	}
	r.HandleMakeSdpOffer("A", protocol.MakeSdpOfferCommand{PeerID: aPeerID, SdpOffer: "offer"})

	var bPeerID ids.PeerId
	for _, e := range d.eventsFor("B") {
		if pc, ok := e.data.(protocol.PeerCreated); ok {
			bPeerID = pc.PeerID
		}
	}
	r.HandleMakeSdpAnswer("B", protocol.MakeSdpAnswerCommand{PeerID: bPeerID, SdpAnswer: "answer"})

	d.events = nil // only scenario-specific events matter from here
	return r, d, aPeerID, bPeerID
}

func trackIDOf(r *Room, peerID ids.PeerId) ids.TrackId {
	p, _ := r.Peer(peerID)
	for _, tr := range p.Tracks() {
		return tr.ID
	}
	return ""
}

// Scenario 2 (spec.md §8): a mute-only patch never renegotiates; both sides
// get PeerUpdated with negotiation_role omitted.
func TestScenarioMuteOnlyPatchDoesNotRenegotiate(t *testing.T) {
	r, d, aPeerID, bPeerID := establishedPair(t)
	trackID := trackIDOf(r, aPeerID)
	muted := true

	if err := r.HandleUpdateTracks("A", protocol.UpdateTracksCommand{
		PeerID:        aPeerID,
		TracksPatches: []protocol.TrackPatchCommand{{ID: trackID, Muted: &muted}},
	}); err != nil {
		t.Fatalf("UpdateTracks: %v", err)
	}

	pa, _ := r.Peer(aPeerID)
	pb, _ := r.Peer(bPeerID)
	if pa.Phase().String() != "Stable" || pb.Phase().String() != "Stable" {
		t.Fatalf("mute-only patch must not leave Stable, got A=%s B=%s", pa.Phase(), pb.Phase())
	}

	for _, memberID := range []ids.MemberId{"A", "B"} {
		evs := d.eventsFor(memberID)
		if len(evs) != 1 || evs[0].name != protocol.EventPeerUpdated {
			t.Fatalf("%s expected exactly one PeerUpdated, got %v", memberID, evs)
		}
		pu := evs[0].data.(protocol.PeerUpdated)
		if pu.NegotiationRole != nil {
			t.Fatalf("%s: mute-only patch must carry no negotiation_role", memberID)
		}
		if len(pu.Updates) != 1 || pu.Updates[0].Updated.EnabledGeneral != nil || pu.Updates[0].Updated.EnabledIndividual != nil {
			t.Fatalf("%s: mute-only patch must report only muted, got %+v", memberID, pu.Updates)
		}
	}
}

// Scenario 3 (spec.md §8): disabling a track changes enabled_general and
// triggers renegotiation; the disabling side becomes the offerer.
func TestScenarioDisableTriggersRenegotiation(t *testing.T) {
	r, d, aPeerID, bPeerID := establishedPair(t)
	trackID := trackIDOf(r, aPeerID)
	disabled := false

	if err := r.HandleUpdateTracks("A", protocol.UpdateTracksCommand{
		PeerID:        aPeerID,
		TracksPatches: []protocol.TrackPatchCommand{{ID: trackID, Enabled: &disabled}},
	}); err != nil {
		t.Fatalf("UpdateTracks: %v", err)
	}

	pa, _ := r.Peer(aPeerID)
	pb, _ := r.Peer(bPeerID)
	if pa.Phase().String() != "WaitLocalOffer" {
		t.Fatalf("A phase = %s, want WaitLocalOffer", pa.Phase())
	}
	if pb.Phase().String() != "WaitRemoteOffer" {
		t.Fatalf("B phase = %s, want WaitRemoteOffer", pb.Phase())
	}

	aEvs := d.eventsFor("A")
	if len(aEvs) != 1 {
		t.Fatalf("A expected exactly one event, got %d", len(aEvs))
	}
	aUpdate := aEvs[0].data.(protocol.PeerUpdated)
	if aUpdate.NegotiationRole == nil || aUpdate.NegotiationRole.Kind != protocol.RoleOfferer {
		t.Fatal("A must be told to offer")
	}

	bEvs := d.eventsFor("B")
	if len(bEvs) != 1 {
		t.Fatalf("B expected exactly one event, got %d", len(bEvs))
	}
	bUpdate := bEvs[0].data.(protocol.PeerUpdated)
	if bUpdate.NegotiationRole != nil {
		t.Fatal("B must not yet be told any negotiation role")
	}
	if len(bUpdate.Updates) != 1 || bUpdate.Updates[0].Updated.EnabledGeneral == nil || *bUpdate.Updates[0].Updated.EnabledGeneral {
		t.Fatalf("B expected enabled_general=false, got %+v", bUpdate.Updates)
	}
	if bUpdate.Updates[0].Updated.EnabledIndividual != nil {
		t.Fatalf("B must not learn A's enabled_individual, got %+v", bUpdate.Updates[0].Updated)
	}

	if err := r.HandleMakeSdpOffer("A", protocol.MakeSdpOfferCommand{PeerID: aPeerID, SdpOffer: "re-offer"}); err != nil {
		t.Fatalf("re-offer: %v", err)
	}
	if err := r.HandleMakeSdpAnswer("B", protocol.MakeSdpAnswerCommand{PeerID: bPeerID, SdpAnswer: "re-answer"}); err != nil {
		t.Fatalf("re-answer: %v", err)
	}
	if pa.Phase().String() != "Stable" || pb.Phase().String() != "Stable" {
		t.Fatalf("expected both Stable after renegotiation, got A=%s B=%s", pa.Phase(), pb.Phase())
	}
}

// Scenario 4 (spec.md §8): a confirmed connection failure drives exactly
// one ICE-restart cycle, ending both Peers Stable again.
func TestScenarioIceRestartOnConnectionFailure(t *testing.T) {
	r, d, aPeerID, bPeerID := establishedPair(t)

	if err := r.HandleConnectionFailure(aPeerID); err != nil {
		t.Fatalf("HandleConnectionFailure: %v", err)
	}

	pa, _ := r.Peer(aPeerID)
	pb, _ := r.Peer(bPeerID)
	offererPeer, answererPeer := pa, pb
	offererMember, answererMember := ids.MemberId("A"), ids.MemberId("B")
	if bPeerID < aPeerID {
		offererPeer, answererPeer = pb, pa
		offererMember, answererMember = "B", "A"
	}
	if offererPeer.Phase().String() != "WaitLocalOffer" {
		t.Fatalf("offerer phase = %s, want WaitLocalOffer", offererPeer.Phase())
	}
	if answererPeer.Phase().String() != "WaitRemoteOffer" {
		t.Fatalf("answerer phase = %s, want WaitRemoteOffer", answererPeer.Phase())
	}

	evs := d.eventsFor(offererMember)
	if len(evs) != 1 || evs[0].name != protocol.EventPeerUpdated {
		t.Fatalf("offerer expected one PeerUpdated, got %v", evs)
	}
	pu := evs[0].data.(protocol.PeerUpdated)
	if pu.NegotiationRole == nil || pu.NegotiationRole.Kind != protocol.RoleOfferer {
		t.Fatal("offerer must be told to re-offer")
	}
	foundRestart := false
	for _, u := range pu.Updates {
		if u.Kind == protocol.PeerUpdateIceRestart {
			foundRestart = true
		}
	}
	if !foundRestart {
		t.Fatal("expected an IceRestart entry in the pending log")
	}

	if err := r.HandleMakeSdpOffer(offererMember, protocol.MakeSdpOfferCommand{PeerID: offererPeer.ID, SdpOffer: "restart-offer"}); err != nil {
		t.Fatalf("restart offer: %v", err)
	}
	if err := r.HandleMakeSdpAnswer(answererMember, protocol.MakeSdpAnswerCommand{PeerID: answererPeer.ID, SdpAnswer: "restart-answer"}); err != nil {
		t.Fatalf("restart answer: %v", err)
	}
	if pa.Phase().String() != "Stable" || pb.Phase().String() != "Stable" {
		t.Fatalf("expected both Stable after restart, got A=%s B=%s", pa.Phase(), pb.Phase())
	}
}

// Scenario 5 (spec.md §8): session eviction — the new join still gets
// RoomJoined and no duplicate PeerCreated is produced for an already
// reconciled topology.
func TestScenarioJoinIsIdempotentAcrossReconnect(t *testing.T) {
	d := &fakeDispatcher{}
	r := New(publishSubscribeSpec(), d, nil, nil)

	var evicted []ids.MemberId
	r.Evictor = func(id ids.MemberId) { evicted = append(evicted, id) }

	if err := r.AuthenticateAndJoin("A", "credA"); err != nil {
		t.Fatalf("first join: %v", err)
	}
	firstPeerCreated := d.countFor("A", protocol.EventPeerCreated)

	d.events = nil
	if err := r.AuthenticateAndJoin("A", "credA"); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if len(evicted) != 1 || evicted[0] != "A" {
		t.Fatalf("expected Evictor called once for A, got %v", evicted)
	}
	if got := d.countFor("A", protocol.EventRoomJoined); got != 1 {
		t.Fatalf("RoomJoined count = %d, want 1", got)
	}
	if got := d.countFor("A", protocol.EventPeerCreated); got != 0 {
		t.Fatalf("reconnect must not re-create an already-reconciled Peer, got %d new PeerCreated (first join had %d)", got, firstPeerCreated)
	}
}

// Scenario 6 (spec.md §8): idle expiry fires on_leave via SessionClosed once
// the caller (rpcsession) has already determined the reconnect window
// lapsed, and does not disturb Peer state.
func TestScenarioIdleExpiryFiresOnLeave(t *testing.T) {
	d := &fakeDispatcher{}
	spec := publishSubscribeSpec()
	spec.Members["A"].OnLeaveURL = "http://callbacks.example/leave"

	var notifiedMember ids.MemberId
	var notifiedReason protocol.CloseReason
	cb := &recordingCallbacks{
		onLeave: func(url string, memberID ids.MemberId, reason protocol.CloseReason) {
			notifiedMember, notifiedReason = memberID, reason
		},
	}
	r := New(spec, d, nil, cb)
	r.AuthenticateAndJoin("A", "credA")
	r.AuthenticateAndJoin("B", "credB")

	r.SessionClosed("A", protocol.CloseIdle)

	if notifiedMember != "A" || notifiedReason != protocol.CloseIdle {
		t.Fatalf("expected on_leave(A, Idle), got (%s, %s)", notifiedMember, notifiedReason)
	}
}

type recordingCallbacks struct {
	onJoin  func(url string, memberID ids.MemberId)
	onLeave func(url string, memberID ids.MemberId, reason protocol.CloseReason)
}

func (c *recordingCallbacks) NotifyJoin(url string, memberID ids.MemberId) {
	if c.onJoin != nil {
		c.onJoin(url, memberID)
	}
}

func (c *recordingCallbacks) NotifyLeave(url string, memberID ids.MemberId, reason protocol.CloseReason) {
	if c.onLeave != nil {
		c.onLeave(url, memberID, reason)
	}
}
