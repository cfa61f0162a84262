package transport

import (
	"testing"
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
	"rtcsignal/internal/roomsvc"
	"rtcsignal/internal/rpcsession"
)

type fakeChannel struct {
	sent   []string
	closed bool
}

func (c *fakeChannel) SendEvent(name string, data any) error {
	c.sent = append(c.sent, name)
	return nil
}
func (c *fakeChannel) Close() { c.closed = true }

func newTestServer() *Server {
	return NewServer(roomsvc.NewService(nil), time.Minute, time.Minute, 10*time.Second)
}

// roomDispatcher.SendEvent must forward to whichever session currently owns
// the Member, and drop silently when none is registered.
func TestRoomDispatcherSendEventForwardsToRegisteredSession(t *testing.T) {
	s := newTestServer()
	sess := rpcsession.New("room1", "A", time.Minute)
	ch := &fakeChannel{}
	sess.Attach(ch)
	s.registerSession("room1", "A", sess)

	d := s.DispatcherFor("room1")
	d.SendEvent("A", protocol.EventRoomJoined, protocol.RoomJoined{MemberID: "A"})

	if len(ch.sent) != 1 || ch.sent[0] != protocol.EventRoomJoined {
		t.Fatalf("expected one RoomJoined event forwarded, got %v", ch.sent)
	}

	// No session registered for B: must not panic, nothing delivered.
	d.SendEvent("B", protocol.EventRoomJoined, protocol.RoomJoined{MemberID: "B"})
}

func TestCloseMemberSessionFinishesRegisteredSession(t *testing.T) {
	s := newTestServer()
	sess := rpcsession.New("room1", "A", time.Minute)
	var finishedWith protocol.CloseReason
	sess.OnFinished = func(reason protocol.CloseReason) { finishedWith = reason }
	sess.Attach(&fakeChannel{})
	s.registerSession("room1", "A", sess)

	s.CloseMemberSession("room1", "A", protocol.CloseEvicted)

	if finishedWith != protocol.CloseEvicted {
		t.Fatalf("expected session finished with CloseEvicted, got %v", finishedWith)
	}
	if sess.State() != rpcsession.StateFinished {
		t.Fatalf("expected session state Finished, got %v", sess.State())
	}
}

// CloseMemberSession on a Member with no registered session must be a no-op,
// not a panic - the Control API's Delete verb calls this unconditionally.
func TestCloseMemberSessionNoSessionIsNoop(t *testing.T) {
	s := newTestServer()
	s.CloseMemberSession("room1", "ghost", protocol.CloseFinished)
}

// mailboxFor must return the same Mailbox for the same RoomId on repeated
// calls, and must wire Evictor/Scheduler onto the Room exactly once.
func TestMailboxForReusesMailboxAndWiresHooks(t *testing.T) {
	s := newTestServer()
	spec := &room.Spec{
		ID: "room1",
		Members: map[ids.MemberId]*room.MemberSpec{
			"A": {ID: "A", Credential: "x", Endpoints: map[ids.EndpointId]*room.EndpointSpec{}},
		},
	}
	r := room.New(spec, s.DispatcherFor("room1"), nil, nil)

	mb1 := s.mailboxFor("room1", r)
	mb2 := s.mailboxFor("room1", r)
	if mb1 != mb2 {
		t.Fatal("expected the same Mailbox across repeated calls for the same room")
	}
	if r.Evictor == nil {
		t.Fatal("expected Evictor to be wired")
	}
	if r.Scheduler == nil {
		t.Fatal("expected Scheduler to be wired")
	}

	// Evictor should route through CloseMemberSession -> CloseEvicted.
	sess := rpcsession.New("room1", "A", time.Minute)
	var finishedWith protocol.CloseReason
	sess.OnFinished = func(reason protocol.CloseReason) { finishedWith = reason }
	sess.Attach(&fakeChannel{})
	s.registerSession("room1", "A", sess)
	r.Evictor("A")
	if finishedWith != protocol.CloseEvicted {
		t.Fatalf("expected Evictor to finish session with CloseEvicted, got %v", finishedWith)
	}
}

func TestDispatchCommandUnknownNameIsIgnored(t *testing.T) {
	spec := &room.Spec{
		ID: "room1",
		Members: map[ids.MemberId]*room.MemberSpec{
			"A": {ID: "A", Credential: "x", Endpoints: map[ids.EndpointId]*room.EndpointSpec{}},
		},
	}
	noop := noopDispatcher{}
	r := room.New(spec, noop, nil, nil)
	dispatchCommand(r, "A", "not-a-real-command", nil)
}

func TestDispatchCommandLeaveRoom(t *testing.T) {
	spec := &room.Spec{
		ID: "room1",
		Members: map[ids.MemberId]*room.MemberSpec{
			"A": {ID: "A", Credential: "x", Endpoints: map[ids.EndpointId]*room.EndpointSpec{}},
		},
	}
	noop := noopDispatcher{}
	r := room.New(spec, noop, nil, nil)
	if err := r.AuthenticateAndJoin("A", "x"); err != nil {
		t.Fatalf("join: %v", err)
	}
	dispatchCommand(r, "A", protocol.CmdLeaveRoom, nil)
}

type noopDispatcher struct{}

func (noopDispatcher) SendEvent(ids.MemberId, string, any) {}
