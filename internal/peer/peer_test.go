package peer

import (
	"testing"

	"rtcsignal/internal/protocol"
)

func TestPhaseTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseStable, PhaseWaitLocalOffer, true},
		{PhaseStable, PhaseWaitRemoteOffer, true},
		{PhaseStable, PhaseWaitLocalHaveRemote, false},
		{PhaseWaitLocalOffer, PhaseWaitRemoteAnswer, true},
		{PhaseWaitRemoteOffer, PhaseWaitLocalHaveRemote, true},
		{PhaseWaitLocalHaveRemote, PhaseStable, true},
		{PhaseWaitRemoteAnswer, PhaseStable, true},
		{PhaseWaitLocalHaveRemote, PhaseWaitRemoteAnswer, false},
		{PhaseStable, PhaseStable, false},
	}
	for _, c := range cases {
		got := isValidPhaseTransition(c.from, c.to)
		if got != c.want {
			t.Errorf("isValidPhaseTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestTransitionToRejectsInvalidEdge(t *testing.T) {
	p := New(1, "memberA", 2, false, nil)
	if !p.TransitionTo(PhaseWaitLocalOffer) {
		t.Fatal("Stable -> WaitLocalOffer should be allowed")
	}
	if p.TransitionTo(PhaseWaitLocalHaveRemote) {
		t.Fatal("WaitLocalOffer -> WaitLocalHaveRemote should be rejected")
	}
	if p.Phase() != PhaseWaitLocalOffer {
		t.Fatalf("phase = %s after rejected transition, want unchanged", p.Phase())
	}
}

func TestAssignMidImmutable(t *testing.T) {
	p := New(1, "memberA", 2, false, nil)
	p.AddTrack(&Track{ID: "t0"})

	if err := p.AssignMid("t0", "0"); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if err := p.AssignMid("t0", "0"); err != nil {
		t.Fatalf("idempotent re-assign of same mid: %v", err)
	}
	if err := p.AssignMid("t0", "1"); err == nil {
		t.Fatal("expected error changing an already-assigned mid")
	}
}

func TestEnabledGeneralIsConjunction(t *testing.T) {
	send := &Track{EnabledIndividual: true}
	recv := &Track{EnabledIndividual: false}
	if EnabledGeneral(send, recv) {
		t.Fatal("general state must be false when either side is disabled")
	}
	recv.EnabledIndividual = true
	if !EnabledGeneral(send, recv) {
		t.Fatal("general state must be true when both sides are enabled")
	}
}

func TestPendingLogDrainAndCoalesceIceRestart(t *testing.T) {
	p := New(1, "memberA", 2, false, nil)
	if p.HasIceRestartPending() {
		t.Fatal("new peer should have no pending ICE restart")
	}
	restart := protocol.PeerUpdate{Kind: protocol.PeerUpdateIceRestart}
	p.EnqueueChange(restart)
	if !p.HasIceRestartPending() {
		t.Fatal("expected pending ICE restart after enqueue")
	}
	// A second restart request before the first completes must not add a
	// second entry (spec §8 idempotence law); callers check
	// HasIceRestartPending before enqueuing another one.
	if !p.HasIceRestartPending() {
		p.EnqueueChange(restart)
	}
	log := p.DrainLog()
	count := 0
	for _, u := range log {
		if u.Kind == protocol.PeerUpdateIceRestart {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one IceRestart entry, got %d", count)
	}
	if len(p.DrainLog()) != 0 {
		t.Fatal("log should be empty after drain")
	}
}
