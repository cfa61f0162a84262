package room

import (
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/peer"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/turn"
)

// Dispatcher delivers one event to a Member's current RPC session. The Room
// never touches a transport directly — SendEvent is expected to enqueue on
// the session (rpcsession.Session.SendEvent), buffering while the Member has
// no attached channel, per spec.md §3's Member pending-event buffer.
type Dispatcher interface {
	SendEvent(memberID ids.MemberId, name string, data any)
}

// CallbackNotifier delivers the Control API on_join/on_leave element
// callbacks declared in a MemberSpec (spec.md §4.5). The Room only knows
// the URL and payload; HTTP delivery is someone else's concern.
type CallbackNotifier interface {
	NotifyJoin(url string, memberID ids.MemberId)
	NotifyLeave(url string, memberID ids.MemberId, reason protocol.CloseReason)
}

type memberState struct {
	spec               *MemberSpec
	sessionEstablished bool
	pendingReconnect    bool
}

type peerPair struct {
	a, b ids.PeerId
}

// Room owns the authoritative state of one room: its declared Spec,
// Members, Peer pairs and the pending-change/track bookkeeping that drives
// the negotiation state machine of spec.md §4.2. All exported methods
// assume the caller has already serialized access (e.g. via Mailbox) the
// way the teacher's Hub.Run() goroutine serializes access to hub state.
type Room struct {
	ID   ids.RoomId
	spec *Spec

	members map[ids.MemberId]*memberState
	peers   map[ids.PeerId]*peer.Peer

	// pairs tracks which PeerId belongs to which pairKey, so reconcile can
	// diff declared vs. actual without scanning every Peer.
	pairs map[pairKey]peerPair

	peerAlloc  ids.PeerIdAllocator
	dispatcher Dispatcher
	turnSvc    *turn.Service
	callbacks  CallbackNotifier

	closeReason *protocol.CloseReason

	// Evictor, if set, is invoked before a join is accepted so the session
	// registry above the Room can close any pre-existing session for the
	// same MemberId with reason Evicted (spec.md §4.4) before the new one
	// takes its place. The Room itself holds no session/channel handles.
	Evictor func(ids.MemberId)

	// MetricsHook, if set, receives every AddPeerConnectionMetrics command
	// after the Room has updated its own Peer bookkeeping, so the traffic
	// watcher (spec.md §4.3) can fold it into flow/quality tracking.
	MetricsHook func(ids.PeerId, protocol.AddPeerConnectionMetricsCommand)

	// Scheduler, if set, runs fn on this Room's own mailbox goroutine after
	// delay — used to check the ICE-restart grace window without the Room
	// blocking its own goroutine on a timer (spec.md §4.3's "Failure
	// semantics": restart repair times out after a grace window).
	Scheduler func(delay time.Duration, fn func())

	// PairCreated/PairRemoved, if set, notify the per-Room traffic watcher
	// bundle so it can register/unregister the pair's liveness tracking
	// (spec.md §4.3). The Room itself holds no watcher state.
	PairCreated func(a, b ids.PeerId)
	PairRemoved func(a, b ids.PeerId)
}

func New(spec *Spec, dispatcher Dispatcher, turnSvc *turn.Service, callbacks CallbackNotifier) *Room {
	r := &Room{
		ID:         spec.ID,
		spec:       spec,
		members:    make(map[ids.MemberId]*memberState),
		peers:      make(map[ids.PeerId]*peer.Peer),
		pairs:      make(map[pairKey]peerPair),
		dispatcher: dispatcher,
		turnSvc:    turnSvc,
		callbacks:  callbacks,
	}
	for id, m := range spec.Members {
		r.members[id] = &memberState{spec: m}
	}
	return r
}

// AuthenticateAndJoin validates credential against the declared Member and,
// on success, marks the session Established, running reconcile and firing
// on_join. It is the Room-side half of JoinRoom (spec.md §4.4/§4.5).
func (r *Room) AuthenticateAndJoin(memberID ids.MemberId, credential string) error {
	m, ok := r.members[memberID]
	if !ok {
		return newError(ErrKindAuth, "JoinRoom", ErrMemberNotFound)
	}
	if m.spec.Credential != credential {
		return newError(ErrKindAuth, "JoinRoom", ErrAuthFailed)
	}

	if r.Evictor != nil {
		r.Evictor(memberID)
	}

	firstJoin := !m.sessionEstablished
	m.sessionEstablished = true
	m.pendingReconnect = false

	r.reconcile()
	r.dispatcher.SendEvent(memberID, protocol.EventRoomJoined, protocol.RoomJoined{MemberID: string(memberID)})

	if firstJoin && m.spec.OnJoinURL != "" && r.callbacks != nil {
		r.callbacks.NotifyJoin(m.spec.OnJoinURL, memberID)
	}
	return nil
}

// SessionClosed records that memberID's session reached FINISHED; if no
// reconnect arrives it is the caller's (rpcsession) job to eventually call
// this once the reconnect window has elapsed, per spec.md §4.5's on_leave
// rule ("no reconnect arrives within the window").
func (r *Room) SessionClosed(memberID ids.MemberId, reason protocol.CloseReason) {
	m, ok := r.members[memberID]
	if !ok {
		return
	}
	m.sessionEstablished = false

	if m.spec.OnLeaveURL != "" && r.callbacks != nil {
		r.callbacks.NotifyLeave(m.spec.OnLeaveURL, memberID, reason)
	}
}

// Peer returns the Peer by id, used by command handlers and tests.
func (r *Room) Peer(id ids.PeerId) (*peer.Peer, bool) {
	p, ok := r.peers[id]
	return p, ok
}

// Shutdown tears down every Peer pair and forgets every Member's TURN
// credentials, returning the MemberIds whose sessions the caller (the Room
// service) must now close with reason Finished (spec.md §4.6's "actor
// drains pending events with reason Finished then exits").
func (r *Room) Shutdown() []ids.MemberId {
	for k := range r.pairs {
		r.removePair(k)
	}
	memberIDs := make([]ids.MemberId, 0, len(r.members))
	for id := range r.members {
		memberIDs = append(memberIDs, id)
		if r.turnSvc != nil {
			r.turnSvc.Delete(r.ID, id)
		}
	}
	return memberIDs
}

// PeersOfMember lists every Peer currently owned by memberID.
func (r *Room) PeersOfMember(memberID ids.MemberId) []*peer.Peer {
	var out []*peer.Peer
	for _, p := range r.peers {
		if p.MemberID == memberID {
			out = append(out, p)
		}
	}
	return out
}
