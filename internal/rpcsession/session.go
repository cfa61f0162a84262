// Package rpcsession implements the RPC session layer of spec.md §4.1: a
// Member's logical session across possibly several WebSocket channel
// reconnects, with the reconnect-grace-window timer and event buffering
// needed to survive a brief disconnect. The websocket-layer ping/idle
// watchdog lives in the transport package instead. Grounded on the teacher's
// internal/ws/client.go (ReadPump/WritePump, atomic CAS lifecycle) and on
// original_source/src/api/client/room.rs's RpcConnectionEstablished /
// RpcConnectionClosed(reason) shape.
package rpcsession

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

// State is the lifecycle of one RPC session.
type State int32

const (
	StateNew         State = iota // created, no channel attached yet
	StateEstablished              // channel attached and exchanging traffic
	StateDisconnected             // channel dropped, within the reconnect grace window
	StateFinished                 // permanently closed, eligible for cleanup
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StateEstablished:
		return "Established"
	case StateDisconnected:
		return "Disconnected"
	case StateFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

func isValidTransition(from, to State) bool {
	switch from {
	case StateNew:
		return to == StateEstablished || to == StateFinished
	case StateEstablished:
		return to == StateDisconnected || to == StateFinished
	case StateDisconnected:
		return to == StateEstablished || to == StateFinished
	}
	return false
}

// Channel is whatever transport attaches a session to a live connection
// (the transport package's websocket wrapper in production, a fake in
// tests). Session never imports gorilla/websocket directly so it can be
// tested without a real socket.
type Channel interface {
	// SendEvent pushes one server->client event frame. Implementations must
	// not block indefinitely; a slow/dead channel should return an error.
	SendEvent(event string, data any) error
	Close()
}

// Session is one Member's RPC session, spanning zero or more attached
// Channels over its lifetime (one at a time; reconnect swaps the attached
// Channel rather than creating a new Session, within reconnectTimeout).
type Session struct {
	RoomID   ids.RoomId
	MemberID ids.MemberId

	// ID distinguishes one logical session from the next for the same
	// Member across a Finish/re-JoinRoom cycle, for log correlation — it
	// does not change across a reconnect (Detach/Attach keep the same ID).
	ID string

	state atomic.Int32

	mu          sync.Mutex
	channel     Channel
	buffer      []bufferedEvent
	idleTimer   *time.Timer
	idleVersion uint64

	// reconnectTimeout is the grace window a Disconnected session gets to
	// re-Attach before it's Finished with CloseLost (spec.md §4.4's
	// rpc.reconnect_timeout); it is unrelated to the websocket-layer
	// rpc.idle_timeout, which the transport package's Conn enforces directly
	// against the wire's read deadline.
	reconnectTimeout time.Duration

	OnFinished func(reason protocol.CloseReason)
}

type bufferedEvent struct {
	name string
	data any
}

func New(roomID ids.RoomId, memberID ids.MemberId, reconnectTimeout time.Duration) *Session {
	s := &Session{RoomID: roomID, MemberID: memberID, reconnectTimeout: reconnectTimeout, ID: uuid.New().String()}
	s.state.Store(int32(StateNew))
	return s
}

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) transitionTo(to State) bool {
	for {
		cur := State(s.state.Load())
		if !isValidTransition(cur, to) {
			return false
		}
		if s.state.CompareAndSwap(int32(cur), int32(to)) {
			return true
		}
	}
}

// Attach binds a live Channel to the session — the first attach on a fresh
// Session, or a reconnect after Disconnected. Any buffered events accrued
// while disconnected are flushed immediately in order.
func (s *Session) Attach(ch Channel) bool {
	cur := s.State()
	if cur != StateNew && cur != StateDisconnected {
		return false
	}
	if !s.transitionTo(StateEstablished) {
		return false
	}

	s.mu.Lock()
	s.channel = ch
	s.stopIdleTimerLocked()
	buffered := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	for _, ev := range buffered {
		_ = ch.SendEvent(ev.name, ev.data)
	}
	return true
}

// Detach marks the session Disconnected and starts the reconnect grace
// window; if the window elapses without a re-Attach, the session is
// Finished with CloseLost (spec.md §4.1's reconnect-window rule).
func (s *Session) Detach() {
	if !s.transitionTo(StateDisconnected) {
		return
	}
	s.mu.Lock()
	s.channel = nil
	s.mu.Unlock()
	s.startIdleTimer()
}

// SendEvent delivers an event now if a Channel is attached, otherwise
// buffers it for replay on the next Attach.
func (s *Session) SendEvent(name string, data any) {
	s.mu.Lock()
	ch := s.channel
	if ch == nil {
		s.buffer = append(s.buffer, bufferedEvent{name: name, data: data})
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	if err := ch.SendEvent(name, data); err != nil {
		s.Detach()
	}
}

func (s *Session) startIdleTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idleVersion++
	version := s.idleVersion
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.reconnectTimeout, func() { s.handleReconnectTimeout(version) })
}

func (s *Session) stopIdleTimerLocked() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}
}

func (s *Session) handleReconnectTimeout(version uint64) {
	s.mu.Lock()
	if version != s.idleVersion {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.Finish(protocol.CloseLost)
}

// Finish transitions the session to Finished, closing any attached channel
// and invoking OnFinished exactly once.
func (s *Session) Finish(reason protocol.CloseReason) {
	if !s.transitionTo(StateFinished) {
		return
	}
	s.mu.Lock()
	ch := s.channel
	s.channel = nil
	s.stopIdleTimerLocked()
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	if s.OnFinished != nil {
		s.OnFinished(reason)
	}
}
