package control

import (
	"fmt"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
)

// Element is the tagged union the Control API Create/Apply/Get verbs
// exchange over the wire (spec.md §6): a Room, Member, WebRtcPublishEndpoint
// or WebRtcPlayEndpoint, discriminated by Kind the way the teacher's
// api/models.go discriminates its request payloads by a "type" field.
type Element struct {
	Kind string `json:"kind" validate:"required,oneof=Room Member WebRtcPublishEndpoint WebRtcPlayEndpoint"`

	Room   *RoomElement   `json:"room,omitempty"`
	Member *MemberElement `json:"member,omitempty"`
	WebRtcPublishEndpoint *WebRtcPublishEndpointElement `json:"webrtc_publish_endpoint,omitempty"`
	WebRtcPlayEndpoint    *WebRtcPlayEndpointElement    `json:"webrtc_play_endpoint,omitempty"`
}

type RoomElement struct {
	ID         string                    `json:"id" validate:"required"`
	Pipeline   map[string]*MemberElement `json:"pipeline,omitempty"`
	ForceRelay bool                      `json:"force_relay,omitempty"`
}

type MemberElement struct {
	ID         string                      `json:"id" validate:"required"`
	Credential string                      `json:"credential,omitempty"`
	Pipeline   map[string]*EndpointElement `json:"pipeline,omitempty"`
	OnJoin     string                      `json:"on_join,omitempty" validate:"omitempty,url"`
	OnLeave    string                      `json:"on_leave,omitempty" validate:"omitempty,url"`
	IdleTimeoutSecs     int64 `json:"idle_timeout_secs,omitempty"`
	PingIntervalSecs    int64 `json:"ping_interval_secs,omitempty"`
	ReconnectWindowSecs int64 `json:"reconnect_window_secs,omitempty"`
}

// EndpointElement is the union of the two Endpoint variants, distinguished
// by Kind; only the fields for that Kind are meaningful. It exists so a
// Member's Pipeline map can hold either variant without a second map.
type EndpointElement struct {
	Kind       string   `json:"kind" validate:"required,oneof=WebRtcPublishEndpoint WebRtcPlayEndpoint"`
	MediaKinds []string `json:"media_kinds,omitempty"`
	Source     string   `json:"source,omitempty"`
	ForceRelay bool     `json:"force_relay,omitempty"`
	Src        string   `json:"src,omitempty"` // Play only: "member_id/endpoint_id"
}

type WebRtcPublishEndpointElement struct {
	ID         string   `json:"id" validate:"required"`
	MediaKinds []string `json:"media_kinds,omitempty"`
	Source     string   `json:"source,omitempty"`
	ForceRelay bool     `json:"force_relay,omitempty"`
}

type WebRtcPlayEndpointElement struct {
	ID         string `json:"id" validate:"required"`
	Src        string `json:"src" validate:"required"`
	ForceRelay bool   `json:"force_relay,omitempty"`
}

// toMemberSpec converts the wire Element into the Room package's internal
// MemberSpec, resolving each Pipeline endpoint's Kind-specific fields.
func (e *MemberElement) toMemberSpec() (*room.MemberSpec, error) {
	m := &room.MemberSpec{
		ID:              ids.MemberId(e.ID),
		Credential:      e.Credential,
		Endpoints:       make(map[ids.EndpointId]*room.EndpointSpec),
		OnJoinURL:       e.OnJoin,
		OnLeaveURL:      e.OnLeave,
		IdleTimeout:     e.IdleTimeoutSecs,
		PingInterval:    e.PingIntervalSecs,
		ReconnectWindow: e.ReconnectWindowSecs,
	}
	for epID, ep := range e.Pipeline {
		spec, err := ep.toEndpointSpec(epID)
		if err != nil {
			return nil, err
		}
		m.Endpoints[ids.EndpointId(epID)] = spec
	}
	return m, nil
}

func (e *EndpointElement) toEndpointSpec(id string) (*room.EndpointSpec, error) {
	switch e.Kind {
	case "WebRtcPublishEndpoint":
		kinds, err := parseMediaKinds(e.MediaKinds)
		if err != nil {
			return nil, err
		}
		return &room.EndpointSpec{
			ID:         ids.EndpointId(id),
			Kind:       room.EndpointPublish,
			MediaKinds: kinds,
			Source:     parseSourceKind(e.Source),
			ForceRelay: e.ForceRelay,
		}, nil
	case "WebRtcPlayEndpoint":
		memberID, endpointID, err := parseSrc(e.Src)
		if err != nil {
			return nil, err
		}
		return &room.EndpointSpec{
			ID:            ids.EndpointId(id),
			Kind:          room.EndpointPlay,
			ForceRelay:    e.ForceRelay,
			PlaysMember:   memberID,
			PlaysEndpoint: endpointID,
		}, nil
	default:
		return nil, fmt.Errorf("unknown endpoint kind %q", e.Kind)
	}
}

func (e *WebRtcPublishEndpointElement) toEndpointSpec(id string) (*room.EndpointSpec, error) {
	kinds, err := parseMediaKinds(e.MediaKinds)
	if err != nil {
		return nil, err
	}
	return &room.EndpointSpec{
		ID:         ids.EndpointId(id),
		Kind:       room.EndpointPublish,
		MediaKinds: kinds,
		Source:     parseSourceKind(e.Source),
		ForceRelay: e.ForceRelay,
	}, nil
}

func (e *WebRtcPlayEndpointElement) toEndpointSpec(id string) (*room.EndpointSpec, error) {
	memberID, endpointID, err := parseSrc(e.Src)
	if err != nil {
		return nil, err
	}
	return &room.EndpointSpec{
		ID:            ids.EndpointId(id),
		Kind:          room.EndpointPlay,
		ForceRelay:    e.ForceRelay,
		PlaysMember:   memberID,
		PlaysEndpoint: endpointID,
	}, nil
}

// toRoomSpec converts a full RoomElement (as submitted on Create with an
// empty/root FID) into a room.Spec ready for roomsvc.Service.CreateRoom.
func (e *RoomElement) toRoomSpec() (*room.Spec, error) {
	spec := &room.Spec{
		ID:         ids.RoomId(e.ID),
		Members:    make(map[ids.MemberId]*room.MemberSpec),
		ForceRelay: e.ForceRelay,
	}
	for memberID, m := range e.Pipeline {
		if m.ID == "" {
			m.ID = memberID
		}
		memberSpec, err := m.toMemberSpec()
		if err != nil {
			return nil, err
		}
		spec.Members[ids.MemberId(memberID)] = memberSpec
	}
	return spec, nil
}

func parseMediaKinds(raw []string) ([]protocol.MediaKind, error) {
	out := make([]protocol.MediaKind, 0, len(raw))
	for _, k := range raw {
		switch k {
		case "audio":
			out = append(out, protocol.MediaKindAudio)
		case "video":
			out = append(out, protocol.MediaKindVideo)
		default:
			return nil, fmt.Errorf("unknown media kind %q", k)
		}
	}
	return out, nil
}

func parseSourceKind(s string) protocol.SourceKind {
	if s == "display" {
		return protocol.SourceKindDisplay
	}
	return protocol.SourceKindDevice
}

// parseSrc splits a Play endpoint's "src" reference of the form
// "member_id/endpoint_id" (spec.md §3's Play endpoint source reference).
func parseSrc(src string) (ids.MemberId, ids.EndpointId, error) {
	for i := 0; i < len(src); i++ {
		if src[i] == '/' {
			return ids.MemberId(src[:i]), ids.EndpointId(src[i+1:]), nil
		}
	}
	return "", "", fmt.Errorf("invalid src reference %q, want member_id/endpoint_id", src)
}

// roomToElement, memberToElement and endpointToElement render the Room
// package's internal Spec types back into wire Elements for Control API Get.
func roomToElement(r *room.Room) *RoomElement {
	spec := r.Spec()
	el := &RoomElement{
		ID:         string(spec.ID),
		ForceRelay: spec.ForceRelay,
		Pipeline:   make(map[string]*MemberElement, len(spec.Members)),
	}
	for id, m := range spec.Members {
		el.Pipeline[string(id)] = memberToElement(m)
	}
	return el
}

func memberToElement(m *room.MemberSpec) *MemberElement {
	el := &MemberElement{
		ID:                  string(m.ID),
		Credential:           m.Credential,
		OnJoin:               m.OnJoinURL,
		OnLeave:              m.OnLeaveURL,
		IdleTimeoutSecs:      m.IdleTimeout,
		PingIntervalSecs:     m.PingInterval,
		ReconnectWindowSecs:  m.ReconnectWindow,
		Pipeline:             make(map[string]*EndpointElement, len(m.Endpoints)),
	}
	for id, ep := range m.Endpoints {
		el.Pipeline[string(id)] = endpointToElement(ep)
	}
	return el
}

func endpointToElement(ep *room.EndpointSpec) *EndpointElement {
	el := &EndpointElement{ForceRelay: ep.ForceRelay}
	switch ep.Kind {
	case room.EndpointPublish:
		el.Kind = "WebRtcPublishEndpoint"
		for _, k := range ep.MediaKinds {
			el.MediaKinds = append(el.MediaKinds, string(k))
		}
		el.Source = string(ep.Source)
	case room.EndpointPlay:
		el.Kind = "WebRtcPlayEndpoint"
		el.Src = fmt.Sprintf("%s/%s", ep.PlaysMember, ep.PlaysEndpoint)
	}
	return el
}
