package watcher

import (
	"sync"
	"time"

	"rtcsignal/internal/ids"
)

// FlowSource identifies which probe reported traffic for a Peer. A Peer is
// only considered actually connected once enough independent sources agree,
// per original_source's MetricsService (signalling/metrics_service.rs) and
// SPEC_FULL.md §4.3c.
type FlowSource int

const (
	SourcePeer FlowSource = iota
	SourcePartnerPeer
	SourceCoturn
)

// StopReason records why a Peer's traffic was declared stopped.
type StopReason int

const (
	StopReasonPeerReported StopReason = iota
	StopReasonCoturn
	StopReasonTimeout
	StopReasonPeerRemoved
)

const (
	staleTimeout     = 10 * time.Second
	validationWindow = 15 * time.Second
	quorumSources    = 3
)

type peerTrafficState struct {
	started    bool
	sources    map[FlowSource]struct{}
	lastUpdate time.Time
}

// TrafficWatcher fuses traffic-flow reports from the Peer's own stats, its
// partner's stats, and Coturn allocation events into Started/Stopped
// notifications for one Room. OnStarted fires on the first flow report from
// any source; HasQuorum reports whether all quorumSources distinct sources
// have reported, and nothing here waits for that quorum.
//
// OnStarted/OnStopped are invoked synchronously from whichever goroutine
// calls ReportFlow/ReportStopped/Tick; callers needing Room-actor affinity
// should post the callback back onto their own mailbox.
type TrafficWatcher struct {
	mu        sync.Mutex
	peers     map[ids.PeerId]*peerTrafficState
	OnStarted func(ids.PeerId)
	OnStopped func(ids.PeerId, StopReason)
}

func NewTrafficWatcher() *TrafficWatcher {
	return &TrafficWatcher{peers: make(map[ids.PeerId]*peerTrafficState)}
}

// Track registers a Peer as present, initially Stopped, ready to receive
// flow reports. Mirrors AddPeer of signalling/metrics_service.rs.
func (w *TrafficWatcher) Track(peerID ids.PeerId) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.peers[peerID] = &peerTrafficState{lastUpdate: time.Now()}
}

// Untrack drops a Peer unconditionally, used on PeerRemoved.
func (w *TrafficWatcher) Untrack(peerID ids.PeerId) {
	w.mu.Lock()
	_, existed := w.peers[peerID]
	delete(w.peers, peerID)
	w.mu.Unlock()
	if existed && w.OnStopped != nil {
		w.OnStopped(peerID, StopReasonPeerRemoved)
	}
}

// ReportFlow records that source observed traffic for peerID at now. The
// first report after a Stopped/unknown state transitions the Peer to
// Started and fires OnStarted; later reports just add to the source set and
// bump last_update, matching TrafficFlows's handler.
func (w *TrafficWatcher) ReportFlow(peerID ids.PeerId, source FlowSource, now time.Time) {
	w.mu.Lock()
	st, ok := w.peers[peerID]
	if !ok {
		w.mu.Unlock()
		return
	}
	st.lastUpdate = now
	wasStopped := !st.started
	if wasStopped {
		st.started = true
		st.sources = map[FlowSource]struct{}{source: {}}
	} else {
		st.sources[source] = struct{}{}
	}
	w.mu.Unlock()

	if wasStopped && w.OnStarted != nil {
		w.OnStarted(peerID)
	}
}

// ReportStopped marks a Peer Stopped immediately, bypassing the timeout
// check — used when Coturn reports the allocation's counter reaching zero
// or the Peer itself reports stop.
func (w *TrafficWatcher) ReportStopped(peerID ids.PeerId, reason StopReason) {
	w.mu.Lock()
	st, ok := w.peers[peerID]
	if ok {
		st.started = false
		st.sources = nil
	}
	w.mu.Unlock()
	if ok && w.OnStopped != nil {
		w.OnStopped(peerID, reason)
	}
}

// CheckStale scans every Started Peer and fires OnStopped(Timeout) for any
// whose last_update predates now by more than staleTimeout — the server-side
// analogue of run_interval(10s) in metrics_service.rs.
func (w *TrafficWatcher) CheckStale(now time.Time) {
	var stale []ids.PeerId
	w.mu.Lock()
	for id, st := range w.peers {
		if st.started && st.lastUpdate.Before(now.Add(-staleTimeout)) {
			st.started = false
			st.sources = nil
			stale = append(stale, id)
		}
	}
	w.mu.Unlock()

	for _, id := range stale {
		if w.OnStopped != nil {
			w.OnStopped(id, StopReasonTimeout)
		}
	}
}

// HasQuorum reports whether peerID's Started state currently carries reports
// from at least quorumSources distinct sources, the check original_source
// schedules 15s after a Peer starts (validation is advisory there — a log
// line, not a forced stop — so this is exposed for callers/tests rather than
// driving a timer internally).
func (w *TrafficWatcher) HasQuorum(peerID ids.PeerId) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	st, ok := w.peers[peerID]
	if !ok || !st.started {
		return false
	}
	return len(st.sources) >= quorumSources
}
