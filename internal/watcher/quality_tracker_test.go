package watcher

import (
	"testing"
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/quality"
)

func TestQualityTrackerFiresOnlyOnScoreChange(t *testing.T) {
	tr := NewQualityTracker()
	var changes []quality.Score
	tr.OnChanged = func(_ ids.PeerId, s quality.Score) { changes = append(changes, s) }
	now := time.Now()

	tr.AddRTT(1, now, 20)
	tr.AddJitter(1, now, "s0", 1)
	tr.AddPacketLoss(1, now, "s0", 0, 1000)
	tr.Recalculate(1, now)
	tr.Recalculate(1, now) // identical inputs: no new change

	if len(changes) != 1 {
		t.Fatalf("expected exactly 1 change, got %d", len(changes))
	}
	if changes[0] != quality.Satisfied {
		t.Fatalf("expected Satisfied, got %s", changes[0])
	}

	tr.AddPacketLoss(1, now, "s0", 40, 1100)
	tr.Recalculate(1, now)
	if len(changes) != 2 {
		t.Fatalf("expected a second change after packet loss spike, got %d", len(changes))
	}
}
