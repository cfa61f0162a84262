// Package roomsvc implements the Room service of spec.md §4.6: a
// process-wide registry mapping RoomId to a live Room actor. Grounded on the
// teacher's internal/ws/hub.go registry pattern (a single process-wide map
// guarded by an RWMutex, read-mostly under normal traffic), generalized
// from one Hub per process to many Rooms.
package roomsvc

import (
	"sync"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/room"
	"rtcsignal/internal/turn"
)

// Service is the process-wide Room registry. No cross-Room state is ever
// shared: every operation either targets exactly one Room or the registry
// map itself (spec.md §5's "no cross-Room state sharing").
type Service struct {
	mu    sync.RWMutex
	rooms map[ids.RoomId]*room.Room

	turnSvc *turn.Service
}

func NewService(turnSvc *turn.Service) *Service {
	return &Service{rooms: make(map[ids.RoomId]*room.Room), turnSvc: turnSvc}
}

// CreateRoom validates spec and spawns a new Room actor, or returns
// ErrAlreadyExists / the validation error without creating anything
// (spec.md §4.6: "failure returns typed error, no actor created").
func (s *Service) CreateRoom(spec *room.Spec, dispatcher room.Dispatcher, callbacks room.CallbackNotifier) (*room.Room, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[spec.ID]; exists {
		return nil, room.ErrAlreadyExists
	}

	r := room.New(spec, dispatcher, s.turnSvc, callbacks)
	wireWatchers(r)
	s.rooms[spec.ID] = r
	return r, nil
}

// Get returns the live Room handle for id, if any.
func (s *Service) Get(id ids.RoomId) (*room.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	return r, ok
}

// DeleteRoom shuts the Room down (draining every Peer pair and TURN
// credential) and forgets it, returning the MemberIds whose sessions the
// caller must now close with reason Finished.
func (s *Service) DeleteRoom(id ids.RoomId) ([]ids.MemberId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	delete(s.rooms, id)
	return r.Shutdown(), nil
}

// List returns every currently registered RoomId, used by the Control API's
// Get on the process root FID.
func (s *Service) List() []ids.RoomId {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ids.RoomId, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}
