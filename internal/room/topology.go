package room

import (
	"fmt"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

// EndpointKind selects which half of §3's Endpoint variant a given
// EndpointSpec declares.
type EndpointKind int

const (
	EndpointPublish EndpointKind = iota
	EndpointPlay
)

// EndpointSpec is the declarative topology unit materialized into Peers by
// reconcile (spec.md §3 "Endpoint", §4.5 "Peer creation rule").
type EndpointSpec struct {
	ID         ids.EndpointId
	Kind       EndpointKind
	MediaKinds []protocol.MediaKind // Publish only
	Source     protocol.SourceKind  // Publish only
	ForceRelay bool

	// Play only: reference to a Publish endpoint, possibly on another
	// Member, identified by (memberId, endpointId) within this Room.
	PlaysMember ids.MemberId
	PlaysEndpoint ids.EndpointId
}

// MemberSpec is one Member's declared topology (spec.md §3 "Member").
type MemberSpec struct {
	ID          ids.MemberId
	Credential  string
	Endpoints   map[ids.EndpointId]*EndpointSpec
	OnJoinURL   string
	OnLeaveURL  string
	IdleTimeout     int64 // seconds, 0 = use Room default
	PingInterval    int64
	ReconnectWindow int64
}

// Spec is the declared topology of a Room, the input to the Room service's
// create_room and to Control API Apply (spec.md §4.6).
type Spec struct {
	ID         ids.RoomId
	Members    map[ids.MemberId]*MemberSpec
	ForceRelay bool
}

// Validate checks the structural invariants the Room service enforces
// before spawning an actor (spec.md §4.6): every Play endpoint resolves to
// an existing Publish endpoint in the same Room, no duplicate endpoint ids
// within a Member (guaranteed by the map itself), no self-referential
// forwarding cycle (a Play cannot reference a Play).
func (s *Spec) Validate() error {
	for memberID, m := range s.Members {
		for endpointID, ep := range m.Endpoints {
			if ep.Kind != EndpointPlay {
				continue
			}
			target, ok := s.Members[ep.PlaysMember]
			if !ok {
				return newError(ErrKindTopologyViolation, "validate",
					fmt.Errorf("member %s endpoint %s plays unknown member %s", memberID, endpointID, ep.PlaysMember))
			}
			pub, ok := target.Endpoints[ep.PlaysEndpoint]
			if !ok {
				return newError(ErrKindTopologyViolation, "validate",
					fmt.Errorf("member %s endpoint %s plays unknown endpoint %s/%s", memberID, endpointID, ep.PlaysMember, ep.PlaysEndpoint))
			}
			if pub.Kind != EndpointPublish {
				return newError(ErrKindTopologyViolation, "validate",
					fmt.Errorf("member %s endpoint %s plays a non-publish endpoint", memberID, endpointID))
			}
		}
	}
	return nil
}

// pairKey identifies one required Peer pair by its two endpoints.
type pairKey struct {
	publishMember ids.MemberId
	publishEP     ids.EndpointId
	playMember    ids.MemberId
	playEP        ids.EndpointId
}

// requiredPairs returns every (publish, play) pair the current spec
// demands, per spec.md §4.5's Peer creation rule.
func (s *Spec) requiredPairs() []pairKey {
	var out []pairKey
	for memberID, m := range s.Members {
		for endpointID, ep := range m.Endpoints {
			if ep.Kind != EndpointPlay {
				continue
			}
			out = append(out, pairKey{
				publishMember: ep.PlaysMember,
				publishEP:     ep.PlaysEndpoint,
				playMember:    memberID,
				playEP:        endpointID,
			})
		}
	}
	return out
}

// forceRelayFor computes the OR of the publish endpoint's, the play
// endpoint's, and the Room's default force-relay flags (spec.md §4.5).
func (s *Spec) forceRelayFor(k pairKey) bool {
	if s.ForceRelay {
		return true
	}
	if pub, ok := s.Members[k.publishMember]; ok {
		if ep, ok := pub.Endpoints[k.publishEP]; ok && ep.ForceRelay {
			return true
		}
	}
	if play, ok := s.Members[k.playMember]; ok {
		if ep, ok := play.Endpoints[k.playEP]; ok && ep.ForceRelay {
			return true
		}
	}
	return false
}
