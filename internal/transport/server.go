package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
	"rtcsignal/internal/roomsvc"
	"rtcsignal/internal/rpcsession"
)

// Server is the client-facing WebSocket endpoint of spec.md §6: it
// authenticates `/{room_id}/{member_id}?token=` connections against the
// declared Member list, attaches an rpcsession.Session, and runs each
// Room's Mailbox so every command/event against that Room is serialized.
type Server struct {
	rooms *roomsvc.Service

	// reconnectTimeout is the RPC session's post-disconnect reconnect grace
	// window (spec.md §4.4's rpc.reconnect_timeout). idleTimeout/
	// pingInterval are the websocket-layer rpc.idle_timeout/rpc.ping_interval
	// (spec.md §4.1) driving Conn's read deadline and Ping ticker, and the
	// values advertised to the client via RpcSettingsUpdated on Attach.
	reconnectTimeout time.Duration
	idleTimeout      time.Duration
	pingInterval     time.Duration

	mu        sync.Mutex
	mailboxes map[ids.RoomId]*room.Mailbox
	sessions  map[sessionKey]*rpcsession.Session

	upgrader websocket.Upgrader
}

type sessionKey struct {
	room   ids.RoomId
	member ids.MemberId
}

func NewServer(rooms *roomsvc.Service, reconnectTimeout, idleTimeout, pingInterval time.Duration) *Server {
	return &Server{
		rooms:            rooms,
		reconnectTimeout: reconnectTimeout,
		idleTimeout:      idleTimeout,
		pingInterval:     pingInterval,
		mailboxes:        make(map[ids.RoomId]*room.Mailbox),
		sessions:         make(map[sessionKey]*rpcsession.Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Router mounts the single upgrade route this server exposes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/{room_id}/{member_id}", s.handleUpgrade)
	return r
}

// roomDispatcher implements room.Dispatcher for one Room, forwarding every
// SendEvent to whichever Session currently owns that Member — buffering
// across a reconnect is the Session's job (spec.md §4.4), not this one's.
type roomDispatcher struct {
	server *Server
	roomID ids.RoomId
}

func (d roomDispatcher) SendEvent(memberID ids.MemberId, name string, data any) {
	d.server.mu.Lock()
	sess, ok := d.server.sessions[sessionKey{d.roomID, memberID}]
	d.server.mu.Unlock()
	if !ok {
		slog.Debug("dropping event for member with no session", "component", "room", "member", memberID, "event", name)
		return
	}
	sess.SendEvent(name, data)
}

// DispatcherFor returns the room.Dispatcher a Control API room-creation
// handler should pass to roomsvc.Service.CreateRoom.
func (s *Server) DispatcherFor(roomID ids.RoomId) room.Dispatcher {
	return roomDispatcher{server: s, roomID: roomID}
}

func (s *Server) mailboxFor(roomID ids.RoomId, r *room.Room) *room.Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mb, ok := s.mailboxes[roomID]; ok {
		return mb
	}
	mb := room.NewMailbox()
	r.Evictor = func(memberID ids.MemberId) { s.evict(roomID, memberID) }
	r.Scheduler = func(delay time.Duration, fn func()) {
		time.AfterFunc(delay, func() { mb.Submit(fn) })
	}
	s.mailboxes[roomID] = mb
	return mb
}

func (s *Server) evict(roomID ids.RoomId, memberID ids.MemberId) {
	s.CloseMemberSession(roomID, memberID, protocol.CloseEvicted)
}

// CloseMemberSession finishes memberID's live session, if any, with the
// given reason. Used both by Room.Evictor (reason Evicted) and by the
// Control API's Delete verb (reason Finished) after a Room/Member/Endpoint
// is torn down.
func (s *Server) CloseMemberSession(roomID ids.RoomId, memberID ids.MemberId, reason protocol.CloseReason) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionKey{roomID, memberID}]
	s.mu.Unlock()
	if ok {
		sess.Finish(reason)
	}
}

func (s *Server) registerSession(roomID ids.RoomId, memberID ids.MemberId, sess *rpcsession.Session) {
	s.mu.Lock()
	s.sessions[sessionKey{roomID, memberID}] = sess
	s.mu.Unlock()
}

func (s *Server) forgetSession(roomID ids.RoomId, memberID ids.MemberId, sess *rpcsession.Session) {
	s.mu.Lock()
	if cur, ok := s.sessions[sessionKey{roomID, memberID}]; ok && cur == sess {
		delete(s.sessions, sessionKey{roomID, memberID})
	}
	s.mu.Unlock()
}

// handleUpgrade authenticates against the declared Member list before
// accepting any frame beyond the first Ping (spec.md §6), then upgrades.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	roomID := ids.RoomId(chi.URLParam(r, "room_id"))
	memberID := ids.MemberId(chi.URLParam(r, "member_id"))
	token := r.URL.Query().Get("token")

	rm, ok := s.rooms.Get(roomID)
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	mb := s.mailboxFor(roomID, rm)

	var authErr error
	mb.Submit(func() { authErr = rm.AuthenticateAndJoin(memberID, token) })
	if authErr != nil {
		http.Error(w, "rejected", http.StatusUnauthorized)
		return
	}

	wsConn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "component", "transport", "error", err)
		return
	}

	conn := NewConn(wsConn, s.idleTimeout, s.pingInterval)
	sess := rpcsession.New(roomID, memberID, s.reconnectTimeout)
	sess.OnFinished = func(reason protocol.CloseReason) {
		s.forgetSession(roomID, memberID, sess)
		mb.Submit(func() { rm.SessionClosed(memberID, reason) })
	}
	sess.Attach(conn)
	s.registerSession(roomID, memberID, sess)

	// Tells the client the negotiated ping/idle timers (spec.md §4.1), the
	// way medea's RpcSettingsUpdated informs the client on establishment.
	sess.SendEvent(protocol.EventRpcSettingsUpdated, protocol.RpcSettingsUpdated{
		IdleTimeoutMs:  s.idleTimeout.Milliseconds(),
		PingIntervalMs: s.pingInterval.Milliseconds(),
	})

	go conn.WritePump()
	conn.ReadPump(
		// A pong frame is plain wire liveness; Conn.ReadPump already reset
		// the read deadline for it before this fires, so the session layer
		// has nothing further to record.
		func(int64) {},
		func(name string, data json.RawMessage) {
			mb.Submit(func() { dispatchCommand(rm, memberID, name, data) })
		},
		func() { sess.Finish(protocol.CloseIdle) },
	)

	// ReadPump returned: the wire is gone. Detach starts the reconnect
	// grace window instead of finishing immediately, per spec.md §4.4.
	sess.Detach()
}

func dispatchCommand(rm *room.Room, memberID ids.MemberId, name string, raw json.RawMessage) {
	var err error
	switch name {
	case protocol.CmdMakeSdpOffer:
		var cmd protocol.MakeSdpOfferCommand
		if jsonErr := json.Unmarshal(raw, &cmd); jsonErr == nil {
			err = rm.HandleMakeSdpOffer(memberID, cmd)
		}
	case protocol.CmdMakeSdpAnswer:
		var cmd protocol.MakeSdpAnswerCommand
		if jsonErr := json.Unmarshal(raw, &cmd); jsonErr == nil {
			err = rm.HandleMakeSdpAnswer(memberID, cmd)
		}
	case protocol.CmdSetIceCandidate:
		var cmd protocol.SetIceCandidateCommand
		if jsonErr := json.Unmarshal(raw, &cmd); jsonErr == nil {
			err = rm.HandleSetIceCandidate(memberID, cmd)
		}
	case protocol.CmdUpdateTracks:
		var cmd protocol.UpdateTracksCommand
		if jsonErr := json.Unmarshal(raw, &cmd); jsonErr == nil {
			err = rm.HandleUpdateTracks(memberID, cmd)
		}
	case protocol.CmdAddPeerConnectionMetrics:
		var cmd protocol.AddPeerConnectionMetricsCommand
		if jsonErr := json.Unmarshal(raw, &cmd); jsonErr == nil {
			err = rm.HandleAddPeerConnectionMetrics(memberID, cmd)
		}
	case protocol.CmdLeaveRoom:
		err = rm.HandleLeaveRoom(memberID)
	default:
		return
	}
	if err != nil {
		// OutOfOrderCommand/NotFound are logged and dropped, the session
		// stays open (spec.md §7); nothing else escapes the Mailbox.
		slog.Warn("command rejected", "component", "room", "command", name, "member", memberID, "error", err)
	}
}
