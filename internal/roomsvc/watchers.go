package roomsvc

import (
	"log/slog"
	"time"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/quality"
	"rtcsignal/internal/room"
	"rtcsignal/internal/watcher"
)

// watcherBundle is the per-Room traffic-watcher instance set of spec.md
// §4.3: a FailureDetector, a TrafficWatcher and a QualityTracker, wired to
// the Room through its PairCreated/PairRemoved/MetricsHook/HandleQuality*
// hooks so the Room package itself never imports pion/webrtc's state enums
// directly for anything beyond the Peer's own bookkeeping.
type watcherBundle struct {
	fd *watcher.FailureDetector
	tw *watcher.TrafficWatcher
	qt *watcher.QualityTracker
}

// wireWatchers builds a fresh watcher bundle for r and attaches it via the
// Room's hook fields. Called once per Room, from CreateRoom.
func wireWatchers(r *room.Room) *watcherBundle {
	b := &watcherBundle{
		fd: watcher.NewFailureDetector(),
		tw: watcher.NewTrafficWatcher(),
		qt: watcher.NewQualityTracker(),
	}

	b.tw.OnStopped = func(peerID ids.PeerId, reason watcher.StopReason) {
		// A bare Stopped is recovered by the next flow event and doesn't by
		// itself terminate anything (spec.md §4.3's "Failure semantics");
		// only an unrecovered PeerConnectionFailed does that, handled below.
		slog.Debug("peer traffic stopped", "component", "watcher", "peer", peerID, "reason", reason)
	}

	b.qt.OnChanged = func(peerID ids.PeerId, score quality.Score) {
		r.HandleQualityChanged(peerID, score)
	}

	r.PairCreated = func(a, bID ids.PeerId) {
		b.fd.RegisterPair(a, bID)
		b.tw.Track(a)
		b.tw.Track(bID)
	}
	r.PairRemoved = func(a, bID ids.PeerId) {
		b.fd.Unregister(a, bID)
		b.tw.Untrack(a)
		b.tw.Untrack(bID)
		b.qt.Untrack(a)
		b.qt.Untrack(bID)
	}

	r.MetricsHook = func(peerID ids.PeerId, cmd protocol.AddPeerConnectionMetricsCommand) {
		now := time.Now()
		switch cmd.Kind {
		case protocol.MetricsPeerConnectionState:
			if b.fd.UpdateState(peerID, cmd.PeerConnectionState) {
				if err := r.HandleConnectionFailure(peerID); err != nil {
					slog.Warn("connection failure repair rejected", "component", "watcher", "peer", peerID, "error", err)
				}
			}
			switch cmd.PeerConnectionState {
			case webrtc.PeerConnectionStateConnected:
				b.tw.ReportFlow(peerID, watcher.SourcePeer, now)
			case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
				b.tw.ReportStopped(peerID, watcher.StopReasonPeerReported)
			}
		case protocol.MetricsRtcStats:
			for _, sample := range cmd.RtcStats {
				if sample.RoundTripMs != nil {
					b.qt.AddRTT(peerID, now, *sample.RoundTripMs)
				}
				if sample.JitterMs != nil {
					b.qt.AddJitter(peerID, now, string(sample.TrackID), *sample.JitterMs)
				}
				if sample.PacketsLost != nil && sample.PacketsTotal != nil {
					b.qt.AddPacketLoss(peerID, now, string(sample.TrackID), *sample.PacketsLost, *sample.PacketsTotal)
				}
			}
			b.qt.Recalculate(peerID, now)
		}
	}

	return b
}
