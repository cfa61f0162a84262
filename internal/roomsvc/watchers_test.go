package roomsvc

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
)

func pubPlaySpec(id ids.RoomId) *room.Spec {
	return &room.Spec{
		ID: id,
		Members: map[ids.MemberId]*room.MemberSpec{
			"A": {
				ID:         "A",
				Credential: "credA",
				Endpoints: map[ids.EndpointId]*room.EndpointSpec{
					"pub": {
						ID:         "pub",
						Kind:       room.EndpointPublish,
						MediaKinds: []protocol.MediaKind{protocol.MediaKindAudio},
						Source:     protocol.SourceKindDevice,
					},
				},
			},
			"B": {
				ID:         "B",
				Credential: "credB",
				Endpoints: map[ids.EndpointId]*room.EndpointSpec{
					"play": {
						ID:            "play",
						Kind:          room.EndpointPlay,
						PlaysMember:   "A",
						PlaysEndpoint: "pub",
					},
				},
			},
		},
	}
}

// wireWatchers must attach hooks that survive a full pair lifecycle without
// panicking, since createPair/removePair call them unconditionally once set.
func TestWireWatchersSurvivesPairLifecycle(t *testing.T) {
	r := room.New(pubPlaySpec("wr1"), noopDispatcher{}, nil, nil)
	wireWatchers(r)

	if err := r.AuthenticateAndJoin("A", "credA"); err != nil {
		t.Fatalf("join A: %v", err)
	}
	if err := r.AuthenticateAndJoin("B", "credB"); err != nil {
		t.Fatalf("join B: %v", err)
	}

	var aPeer ids.PeerId
	for _, p := range r.PeersOfMember("A") {
		aPeer = p.ID
	}
	if aPeer == 0 {
		t.Fatal("expected a Peer for member A after reconcile")
	}

	// Exercise MetricsHook's PeerConnectionState branch.
	r.HandleAddPeerConnectionMetrics("A", protocol.AddPeerConnectionMetricsCommand{
		PeerID:              aPeer,
		Kind:                protocol.MetricsPeerConnectionState,
		PeerConnectionState: webrtc.PeerConnectionStateConnected,
	})

	// Exercise MetricsHook's RtcStats branch (feeds the quality tracker).
	rtt := 20.0
	jitter := 1.5
	var lost, total uint64 = 1, 100
	r.HandleAddPeerConnectionMetrics("A", protocol.AddPeerConnectionMetricsCommand{
		PeerID: aPeer,
		Kind:   protocol.MetricsRtcStats,
		RtcStats: []protocol.RtcStatsSample{
			{TrackID: "pub-0", RoundTripMs: &rtt, JitterMs: &jitter, PacketsLost: &lost, PacketsTotal: &total},
		},
	})

	// A failure reported by one side only must be accepted without error;
	// the FailureDetector fires only once both sides of the pair are Failed,
	// and B has reported no state here.
	if err := r.HandleAddPeerConnectionMetrics("A", protocol.AddPeerConnectionMetricsCommand{
		PeerID:              aPeer,
		Kind:                protocol.MetricsPeerConnectionState,
		PeerConnectionState: webrtc.PeerConnectionStateFailed,
	}); err != nil {
		t.Fatalf("metrics with failed state: %v", err)
	}

	// Leaving only emits RoomLeft; removing the pair afterwards must
	// exercise PairRemoved without panic.
	if err := r.HandleLeaveRoom("A"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	r.HandlePeerRemoval(aPeer)
	if len(r.PeersOfMember("A")) != 0 {
		t.Fatal("expected A's Peer to be gone after pair removal")
	}
}
