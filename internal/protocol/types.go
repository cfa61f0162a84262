// Package protocol defines the wire vocabulary of the signaling channel:
// the self-describing frame envelope, the enumerated server→client events
// and client→server commands, and the small tagged unions they carry
// (negotiation role, peer updates, close reasons). Generalizes the
// {op,t,data}-shaped envelope and Event*/Cmd* constants of the teacher's
// internal/ws/types.go to the shape spec.md §6 describes: a frame is
// either a ping/pong, a command/data pair, or an event/data pair.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"

	"rtcsignal/internal/ids"
)

// Frame is one message on the client↔server channel.
type Frame struct {
	Ping    *int64          `json:"ping,omitempty"`
	Pong    *int64          `json:"pong,omitempty"`
	Command string          `json:"command,omitempty"`
	Event   string          `json:"event,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func PingFrame(seq int64) Frame { return Frame{Ping: &seq} }
func PongFrame(seq int64) Frame { return Frame{Pong: &seq} }

func EventFrame(event string, data any) (Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Frame{}, fmt.Errorf("marshaling event %s: %w", event, err)
	}
	return Frame{Event: event, Data: raw}, nil
}

// Event names, server→client.
const (
	EventPeerCreated              = "PeerCreated"
	EventPeerUpdated              = "PeerUpdated"
	EventSdpAnswerMade            = "SdpAnswerMade"
	EventLocalDescriptionApplied  = "LocalDescriptionApplied"
	EventIceCandidateDiscovered   = "IceCandidateDiscovered"
	EventPeersRemoved             = "PeersRemoved"
	EventConnectionQualityUpdated = "ConnectionQualityUpdated"
	EventTracksApplied            = "TracksApplied" // compatibility alias for PeerUpdated
	EventRpcSettingsUpdated       = "RpcSettingsUpdated"
	EventRoomJoined               = "RoomJoined"
	EventRoomLeft                 = "RoomLeft"
)

// Command names, client→server.
const (
	CmdMakeSdpOffer             = "MakeSdpOffer"
	CmdMakeSdpAnswer            = "MakeSdpAnswer"
	CmdSetIceCandidate          = "SetIceCandidate"
	CmdUpdateTracks             = "UpdateTracks"
	CmdAddPeerConnectionMetrics = "AddPeerConnectionMetrics"
	CmdJoinRoom                 = "JoinRoom"
	CmdLeaveRoom                = "LeaveRoom"
)

// RoleKind is which side of a Peer pair must act next.
type RoleKind string

const (
	RoleOfferer  RoleKind = "Offerer"
	RoleAnswerer RoleKind = "Answerer"
)

// NegotiationRole is exactly one of {Offerer, Answerer(remote_sdp)}.
type NegotiationRole struct {
	Kind      RoleKind `json:"role"`
	RemoteSDP string   `json:"sdp_offer,omitempty"`
}

func Offerer() NegotiationRole { return NegotiationRole{Kind: RoleOfferer} }
func Answerer(remoteSDP string) NegotiationRole {
	return NegotiationRole{Kind: RoleAnswerer, RemoteSDP: remoteSDP}
}

// MediaKind mirrors webrtc.RTPCodecType's audio/video split without pulling
// in a real codec capability — the server never negotiates codecs itself.
type MediaKind string

const (
	MediaKindAudio MediaKind = "audio"
	MediaKindVideo MediaKind = "video"
)

type SourceKind string

const (
	SourceKindDevice  SourceKind = "device"
	SourceKindDisplay SourceKind = "display"
)

// TrackSpec describes a newly added track (server→client, inside
// PeerUpdate.Added and inside PeerCreated.Tracks).
type TrackSpec struct {
	ID        ids.TrackId `json:"id"`
	Direction string      `json:"direction"` // "send" | "recv"
	Kind      MediaKind   `json:"media_kind"`
	Source    SourceKind  `json:"source_kind,omitempty"`
	Mid       string      `json:"mid,omitempty"`
}

// TrackPatchCommand is what a client sends in UpdateTracks.
type TrackPatchCommand struct {
	ID      ids.TrackId `json:"id"`
	Enabled *bool       `json:"enabled,omitempty"`
	Muted   *bool       `json:"muted,omitempty"`
}

// TrackPatchEvent is what both sides receive in a PeerUpdated.Updated entry.
type TrackPatchEvent struct {
	ID               ids.TrackId `json:"id"`
	EnabledIndividual *bool      `json:"enabled_individual,omitempty"`
	EnabledGeneral    *bool      `json:"enabled_general,omitempty"`
	Muted             *bool      `json:"muted,omitempty"`
}

// PeerUpdateKind tags a PeerUpdate entry.
type PeerUpdateKind string

const (
	PeerUpdateAdded     PeerUpdateKind = "Added"
	PeerUpdateUpdated   PeerUpdateKind = "Updated"
	PeerUpdateRemoved   PeerUpdateKind = "Removed"
	PeerUpdateIceRestart PeerUpdateKind = "IceRestart"
)

// PeerUpdate is one entry of the pending-change log carried by PeerUpdated.
type PeerUpdate struct {
	Kind    PeerUpdateKind   `json:"kind"`
	Added   *TrackSpec       `json:"added,omitempty"`
	Updated *TrackPatchEvent `json:"updated,omitempty"`
	Removed ids.TrackId      `json:"removed,omitempty"`
}

// PeerCreated is emitted when a new Peer pair is materialized for a Member.
type PeerCreated struct {
	PeerID          ids.PeerId          `json:"peer_id"`
	NegotiationRole NegotiationRole     `json:"negotiation_role"`
	Tracks          []TrackSpec         `json:"tracks"`
	IceServers      []ICEServerInfo     `json:"ice_servers"`
	ForceRelay      bool                `json:"force_relay"`
}

// PeerUpdated carries an ordered pending-change log plus the role for the
// next negotiation step, or no role at all for a mute/non-renegotiating
// change (negotiation_role is then omitted/nil on the wire).
type PeerUpdated struct {
	PeerID          ids.PeerId       `json:"peer_id"`
	Updates         []PeerUpdate     `json:"updates"`
	NegotiationRole *NegotiationRole `json:"negotiation_role,omitempty"`
}

type SdpAnswerMade struct {
	PeerID    ids.PeerId `json:"peer_id"`
	SdpAnswer string     `json:"sdp_answer"`
}

type LocalDescriptionApplied struct {
	PeerID ids.PeerId                    `json:"peer_id"`
	SDP    webrtc.SessionDescription `json:"sdp"`
}

type IceCandidateDiscovered struct {
	PeerID    ids.PeerId                 `json:"peer_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type PeersRemoved struct {
	PeerIDs []ids.PeerId `json:"peer_ids"`
}

// QualityScore is the four-level connection-quality bucket.
type QualityScore string

const (
	QualityAllDissatisfied  QualityScore = "AllDissatisfied"
	QualityManyDissatisfied QualityScore = "ManyDissatisfied"
	QualitySomeDissatisfied QualityScore = "SomeDissatisfied"
	QualitySatisfied        QualityScore = "Satisfied"
)

type ConnectionQualityUpdated struct {
	PartnerMemberID string       `json:"partner_member_id"`
	Score           QualityScore `json:"score"`
}

type RpcSettingsUpdated struct {
	IdleTimeoutMs  int64 `json:"idle_timeout"`
	PingIntervalMs int64 `json:"ping_interval"`
}

type RoomJoined struct {
	MemberID string `json:"member_id"`
}

// CloseReason is the typed reason an RPC session ended; exactly one is set
// per close.
type CloseReason string

const (
	CloseFinished     CloseReason = "Finished"
	CloseLost         CloseReason = "Lost"
	CloseIdle         CloseReason = "Idle"
	CloseRejected     CloseReason = "Rejected"
	CloseEvicted      CloseReason = "Evicted"
	CloseInternalError CloseReason = "InternalError"
)

type RoomLeft struct {
	CloseReason CloseReason `json:"close_reason"`
}

// ICEServerInfo is one entry of the ICE servers list handed to a client
// inside PeerCreated, generalizing the teacher's sfu.ICEServerInfo.
type ICEServerInfo struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// Commands, client→server.

type MakeSdpOfferCommand struct {
	PeerID               ids.PeerId        `json:"peer_id"`
	SdpOffer             string            `json:"sdp_offer"`
	Mids                 map[string]string `json:"mids"`
	TransceiverStatuses  map[string]bool   `json:"transceivers_statuses"`
}

type MakeSdpAnswerCommand struct {
	PeerID              ids.PeerId      `json:"peer_id"`
	SdpAnswer           string          `json:"sdp_answer"`
	TransceiverStatuses map[string]bool `json:"transceivers_statuses"`
}

type SetIceCandidateCommand struct {
	PeerID    ids.PeerId                 `json:"peer_id"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

type UpdateTracksCommand struct {
	PeerID       ids.PeerId          `json:"peer_id"`
	TracksPatches []TrackPatchCommand `json:"tracks_patches"`
}

// MetricsKind tags the oneof inside AddPeerConnectionMetrics.
type MetricsKind string

const (
	MetricsPeerConnectionState MetricsKind = "PeerConnectionState"
	MetricsIceConnectionState  MetricsKind = "IceConnectionState"
	MetricsRtcStats            MetricsKind = "RtcStats"
)

type RtcStatsSample struct {
	TrackID       ids.TrackId `json:"track_id"`
	RoundTripMs   *float64    `json:"round_trip_time_ms,omitempty"`
	JitterMs      *float64    `json:"jitter_ms,omitempty"`
	PacketsLost   *uint64     `json:"packets_lost,omitempty"`
	PacketsTotal  *uint64     `json:"packets_total,omitempty"`
}

type AddPeerConnectionMetricsCommand struct {
	PeerID              ids.PeerId                    `json:"peer_id"`
	Kind                MetricsKind                   `json:"kind"`
	PeerConnectionState webrtc.PeerConnectionState `json:"peer_connection_state,omitempty"`
	IceConnectionState  webrtc.ICEConnectionState  `json:"ice_connection_state,omitempty"`
	RtcStats            []RtcStatsSample              `json:"rtc_stats,omitempty"`
}

type JoinRoomCommand struct {
	MemberID   string `json:"member_id"`
	Credential string `json:"credential"`
}

type LeaveRoomCommand struct {
	MemberID string `json:"member_id"`
}
