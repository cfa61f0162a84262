package watcher

import (
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestFailureDetectorFiresOnlyWhenBothSidesFailed(t *testing.T) {
	d := NewFailureDetector()
	d.RegisterPair(1, 2)

	if failed := d.UpdateState(1, webrtc.PeerConnectionStateConnecting); failed {
		t.Fatal("Connecting should never report failed")
	}
	if failed := d.UpdateState(1, webrtc.PeerConnectionStateConnected); failed {
		t.Fatal("Connected should never report failed")
	}
	if failed := d.UpdateState(2, webrtc.PeerConnectionStateConnected); failed {
		t.Fatal("Connected should never report failed")
	}
	// Peer 1 fails while peer 2 hasn't failed yet: no event.
	if failed := d.UpdateState(1, webrtc.PeerConnectionStateFailed); failed {
		t.Fatal("should not fire before partner also fails")
	}
	// Now peer 2 fails too: peer 2's own transition should fire (partner 1
	// is already Failed).
	if failed := d.UpdateState(2, webrtc.PeerConnectionStateFailed); !failed {
		t.Fatal("expected PeerConnectionFailed once both sides are Failed")
	}
}

func TestFailureDetectorIgnoresUnknownPeer(t *testing.T) {
	d := NewFailureDetector()
	if failed := d.UpdateState(99, webrtc.PeerConnectionStateFailed); failed {
		t.Fatal("unknown peer must never fire")
	}
}

func TestFailureDetectorUnregisterDropsPair(t *testing.T) {
	d := NewFailureDetector()
	d.RegisterPair(1, 2)
	d.Unregister(1)
	if failed := d.UpdateState(2, webrtc.PeerConnectionStateFailed); failed {
		t.Fatal("unregistered pair should no longer be tracked")
	}
}

func TestFailureDetectorRegisterIsIdempotent(t *testing.T) {
	d := NewFailureDetector()
	d.RegisterPair(1, 2)
	d.UpdateState(2, webrtc.PeerConnectionStateFailed)
	d.RegisterPair(1, 2) // re-registering an existing pair must not reset state
	if failed := d.UpdateState(1, webrtc.PeerConnectionStateConnected); failed {
		t.Fatal("Connected transition should never fire")
	}
	if failed := d.UpdateState(1, webrtc.PeerConnectionStateFailed); !failed {
		t.Fatal("partner's Failed state should have survived re-registration")
	}
}
