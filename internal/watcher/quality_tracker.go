package watcher

import (
	"sync"
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/quality"
)

// QualityTracker owns one quality.Meter per tracked Peer and emits
// OnChanged only when a recalculation yields a different Score than last
// reported — spec.md §4.3's "emits ConnectionQualityUpdated only when the
// bucket changes" rule, including across a later recovery (SPEC_FULL.md §9
// Open Question (b): no special-cased emission is needed, the plain
// score-change check already covers it).
type QualityTracker struct {
	mu      sync.Mutex
	meters  map[ids.PeerId]*quality.Meter
	last    map[ids.PeerId]quality.Score
	hadLast map[ids.PeerId]bool

	OnChanged func(ids.PeerId, quality.Score)
}

func NewQualityTracker() *QualityTracker {
	return &QualityTracker{
		meters:  make(map[ids.PeerId]*quality.Meter),
		last:    make(map[ids.PeerId]quality.Score),
		hadLast: make(map[ids.PeerId]bool),
	}
}

func (t *QualityTracker) meterFor(peerID ids.PeerId) *quality.Meter {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.meters[peerID]
	if !ok {
		m = quality.NewMeter()
		t.meters[peerID] = m
	}
	return m
}

func (t *QualityTracker) Untrack(peerID ids.PeerId) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.meters, peerID)
	delete(t.last, peerID)
	delete(t.hadLast, peerID)
}

func (t *QualityTracker) AddRTT(peerID ids.PeerId, at time.Time, rttMs float64) {
	t.meterFor(peerID).AddRTT(at, rttMs)
}

func (t *QualityTracker) AddJitter(peerID ids.PeerId, at time.Time, statID string, jitterMs float64) {
	t.meterFor(peerID).AddJitter(at, statID, jitterMs)
}

func (t *QualityTracker) AddPacketLoss(peerID ids.PeerId, at time.Time, statID string, lost, total uint64) {
	t.meterFor(peerID).AddPacketLoss(at, statID, lost, total)
}

// Recalculate computes the current Score for peerID and fires OnChanged iff
// it differs from the last reported Score (or none has been reported yet).
func (t *QualityTracker) Recalculate(peerID ids.PeerId, now time.Time) {
	m := t.meterFor(peerID)
	score, ok := m.Calculate(now)
	if !ok {
		return
	}

	t.mu.Lock()
	changed := !t.hadLast[peerID] || t.last[peerID] != score
	t.last[peerID] = score
	t.hadLast[peerID] = true
	t.mu.Unlock()

	if changed && t.OnChanged != nil {
		t.OnChanged(peerID, score)
	}
}
