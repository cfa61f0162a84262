package control

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
	"rtcsignal/internal/roomsvc"
)

// sessionCloser is the slice of transport.Server the Control API needs: the
// ability to evict a Member's live session once its topology is torn down.
type sessionCloser interface {
	CloseMemberSession(roomID ids.RoomId, memberID ids.MemberId, reason protocol.CloseReason)
	DispatcherFor(roomID ids.RoomId) room.Dispatcher
}

// Handler serves the four Control API verbs over an FID-addressed Element
// tree (spec.md §6). Grounded on the teacher's api/handlers.go REST resource
// handlers, generalized from fixed routes to the dotted-FID dispatch the
// domain's topology tree demands.
type Handler struct {
	rooms     *roomsvc.Service
	transport sessionCloser
	callbacks room.CallbackNotifier
}

func NewHandler(rooms *roomsvc.Service, transport sessionCloser, callbacks room.CallbackNotifier) *Handler {
	return &Handler{rooms: rooms, transport: transport, callbacks: callbacks}
}

// Create handles POST /control/{fid}: declares a new Room, Member or
// Endpoint under the Element addressed by fid: the root (empty fid) for a
// Room, a Room fid for a Member, a Room/Member fid for an Endpoint.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(chi.URLParam(r, "*"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	var el Element
	if err := decodeAndValidate(r.Body, &el); err != nil {
		badRequest(w, err.Error())
		return
	}

	switch {
	case fid.Room == "" && el.Kind == "Room" && el.Room != nil:
		h.createRoom(w, el.Room)
	case fid.Member == "" && el.Kind == "Member" && el.Member != nil:
		h.createMember(w, fid.Room, el.Member)
	case fid.Endpoint == "" && el.Kind == "WebRtcPublishEndpoint" && el.WebRtcPublishEndpoint != nil:
		h.createEndpoint(w, fid.Room, fid.Member, el.WebRtcPublishEndpoint.ID, func(id string) (*room.EndpointSpec, error) {
			return el.WebRtcPublishEndpoint.toEndpointSpec(id)
		})
	case fid.Endpoint == "" && el.Kind == "WebRtcPlayEndpoint" && el.WebRtcPlayEndpoint != nil:
		h.createEndpoint(w, fid.Room, fid.Member, el.WebRtcPlayEndpoint.ID, func(id string) (*room.EndpointSpec, error) {
			return el.WebRtcPlayEndpoint.toEndpointSpec(id)
		})
	default:
		badRequest(w, "element kind does not match fid depth")
	}
}

func (h *Handler) createRoom(w http.ResponseWriter, el *RoomElement) {
	spec, err := el.toRoomSpec()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	r, err := h.rooms.CreateRoom(spec, h.transport.DispatcherFor(spec.ID), h.callbacks)
	if err != nil {
		if room.IsKind(err, room.ErrKindTopologyViolation) {
			badRequest(w, err.Error())
			return
		}
		conflict(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, roomToElement(r))
}

func (h *Handler) createMember(w http.ResponseWriter, roomID ids.RoomId, el *MemberElement) {
	r, ok := h.rooms.Get(roomID)
	if !ok {
		notFound(w, "room not found")
		return
	}
	spec, err := el.toMemberSpec()
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := r.AddMember(spec); err != nil {
		if room.IsKind(err, room.ErrKindTopologyViolation) {
			conflict(w, err.Error())
			return
		}
		badRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, el)
}

func (h *Handler) createEndpoint(w http.ResponseWriter, roomID ids.RoomId, memberID ids.MemberId, endpointID string, toSpec func(string) (*room.EndpointSpec, error)) {
	r, ok := h.rooms.Get(roomID)
	if !ok {
		notFound(w, "room not found")
		return
	}
	spec, err := toSpec(endpointID)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if err := r.AddEndpoint(memberID, spec); err != nil {
		if room.IsKind(err, room.ErrKindTopologyViolation) {
			conflict(w, err.Error())
			return
		}
		badRequest(w, err.Error())
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Apply handles PUT /control/{fid}: replaces the Element at fid in place,
// implemented as remove-then-recreate since the Room's topology mutation
// methods are additive (spec.md §4.6's Apply is defined as idempotent
// replacement, which a delete+add pair satisfies for this domain).
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(chi.URLParam(r, "*"))
	if err != nil || fid.Room == "" {
		badRequest(w, "apply requires a room-scoped fid")
		return
	}

	var el Element
	if err := decodeAndValidate(r.Body, &el); err != nil {
		badRequest(w, err.Error())
		return
	}

	rm, ok := h.rooms.Get(fid.Room)
	if !ok {
		notFound(w, "room not found")
		return
	}

	switch {
	case fid.Member != "" && fid.Endpoint == "" && el.Member != nil:
		rm.RemoveMember(fid.Member)
		h.createMember(w, fid.Room, el.Member)
	case fid.Endpoint != "" && el.WebRtcPublishEndpoint != nil:
		rm.RemoveEndpoint(fid.Member, fid.Endpoint)
		h.createEndpoint(w, fid.Room, fid.Member, string(fid.Endpoint), func(id string) (*room.EndpointSpec, error) {
			return el.WebRtcPublishEndpoint.toEndpointSpec(id)
		})
	case fid.Endpoint != "" && el.WebRtcPlayEndpoint != nil:
		rm.RemoveEndpoint(fid.Member, fid.Endpoint)
		h.createEndpoint(w, fid.Room, fid.Member, string(fid.Endpoint), func(id string) (*room.EndpointSpec, error) {
			return el.WebRtcPlayEndpoint.toEndpointSpec(id)
		})
	default:
		badRequest(w, "element kind does not match fid depth")
	}
}

// Delete handles DELETE /control/{fid}, tearing down the addressed Room,
// Member or Endpoint and closing any live sessions it displaces.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(chi.URLParam(r, "*"))
	if err != nil || fid.Room == "" {
		badRequest(w, "delete requires at least a room fid")
		return
	}

	switch {
	case fid.Member == "":
		memberIDs, err := h.rooms.DeleteRoom(fid.Room)
		if err != nil {
			notFound(w, err.Error())
			return
		}
		for _, m := range memberIDs {
			h.transport.CloseMemberSession(fid.Room, m, protocol.CloseFinished)
		}
	case fid.Endpoint == "":
		rm, ok := h.rooms.Get(fid.Room)
		if !ok {
			notFound(w, "room not found")
			return
		}
		rm.RemoveMember(fid.Member)
		h.transport.CloseMemberSession(fid.Room, fid.Member, protocol.CloseFinished)
	default:
		rm, ok := h.rooms.Get(fid.Room)
		if !ok {
			notFound(w, "room not found")
			return
		}
		rm.RemoveEndpoint(fid.Member, fid.Endpoint)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Get handles GET /control/{fid}, returning the declared topology at or
// below the addressed Element. An empty fid lists every live Room.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	fid, err := parseFID(chi.URLParam(r, "*"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	if fid.Room == "" {
		writeJSON(w, http.StatusOK, h.rooms.List())
		return
	}
	rm, ok := h.rooms.Get(fid.Room)
	if !ok {
		notFound(w, "room not found")
		return
	}
	if fid.Member == "" {
		writeJSON(w, http.StatusOK, roomToElement(rm))
		return
	}
	m, ok := rm.Spec().Members[fid.Member]
	if !ok {
		notFound(w, "member not found")
		return
	}
	if fid.Endpoint == "" {
		writeJSON(w, http.StatusOK, memberToElement(m))
		return
	}
	ep, ok := m.Endpoints[fid.Endpoint]
	if !ok {
		notFound(w, "endpoint not found")
		return
	}
	writeJSON(w, http.StatusOK, endpointToElement(ep))
}
