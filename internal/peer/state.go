package peer

import "sync/atomic"

// Phase is one state of the Peer renegotiation state machine (spec §4.2).
// Partner Peers are always in complementary phases, maintained by the Room
// actor driving both sides of a pair through matching transitions.
type Phase int32

const (
	PhaseStable Phase = iota
	PhaseWaitLocalOffer
	PhaseWaitLocalHaveRemote
	PhaseWaitRemoteOffer
	PhaseWaitRemoteAnswer
)

func (p Phase) String() string {
	switch p {
	case PhaseStable:
		return "Stable"
	case PhaseWaitLocalOffer:
		return "WaitLocalOffer"
	case PhaseWaitLocalHaveRemote:
		return "WaitLocalHaveRemote"
	case PhaseWaitRemoteOffer:
		return "WaitRemoteOffer"
	case PhaseWaitRemoteAnswer:
		return "WaitRemoteAnswer"
	default:
		return "Unknown"
	}
}

// isValidPhaseTransition encodes the allowed trigger -> resulting state
// edges of spec §4.2, generalizing the Connecting/Active/Closing/Closed
// CAS table of the teacher's internal/sfu/peer.go to five states.
func isValidPhaseTransition(from, to Phase) bool {
	switch from {
	case PhaseStable:
		return to == PhaseWaitLocalOffer || to == PhaseWaitRemoteOffer
	case PhaseWaitLocalOffer:
		// Either the offer is made (-> WaitRemoteAnswer), or an ICE
		// restart request supersedes the outstanding offer cycle and
		// keeps this side as the offerer.
		return to == PhaseWaitRemoteAnswer || to == PhaseWaitLocalOffer
	case PhaseWaitLocalHaveRemote:
		return to == PhaseStable || to == PhaseWaitLocalOffer
	case PhaseWaitRemoteOffer:
		return to == PhaseWaitLocalHaveRemote || to == PhaseWaitRemoteOffer
	case PhaseWaitRemoteAnswer:
		return to == PhaseStable || to == PhaseWaitLocalOffer
	}
	return false
}

// phaseMachine is embedded by Peer; split out so its CAS loop can be unit
// tested in isolation from track-table bookkeeping.
type phaseMachine struct {
	phase atomic.Int32
}

func (m *phaseMachine) init(p Phase) {
	m.phase.Store(int32(p))
}

func (m *phaseMachine) current() Phase {
	return Phase(m.phase.Load())
}

// transitionTo atomically moves to newPhase if the edge is valid, in the
// same compare-and-swap-loop idiom as the teacher's transitionTo.
func (m *phaseMachine) transitionTo(newPhase Phase) bool {
	for {
		cur := Phase(m.phase.Load())
		if !isValidPhaseTransition(cur, newPhase) {
			return false
		}
		if m.phase.CompareAndSwap(int32(cur), int32(newPhase)) {
			return true
		}
	}
}

// forceTo unconditionally sets the phase, used only when the Room actor is
// tearing down or force-resetting a Peer (e.g. InternalError repair).
func (m *phaseMachine) forceTo(newPhase Phase) {
	m.phase.Store(int32(newPhase))
}
