package control

import (
	"testing"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
	"rtcsignal/internal/room"
)

func TestParseMediaKinds(t *testing.T) {
	kinds, err := parseMediaKinds([]string{"audio", "video"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(kinds) != 2 || kinds[0] != protocol.MediaKindAudio || kinds[1] != protocol.MediaKindVideo {
		t.Fatalf("unexpected kinds: %v", kinds)
	}
	if _, err := parseMediaKinds([]string{"smell"}); err == nil {
		t.Fatal("expected an error for an unknown media kind")
	}
}

func TestParseSourceKind(t *testing.T) {
	if parseSourceKind("display") != protocol.SourceKindDisplay {
		t.Fatal("expected display to map to SourceKindDisplay")
	}
	if parseSourceKind("device") != protocol.SourceKindDevice {
		t.Fatal("expected device to map to SourceKindDevice")
	}
	if parseSourceKind("") != protocol.SourceKindDevice {
		t.Fatal("expected an empty source to default to SourceKindDevice")
	}
}

func TestParseSrc(t *testing.T) {
	memberID, epID, err := parseSrc("memberA/pub")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if memberID != "memberA" || epID != "pub" {
		t.Fatalf("unexpected parse: %q %q", memberID, epID)
	}
	if _, _, err := parseSrc("no-slash-here"); err == nil {
		t.Fatal("expected an error for a src with no slash")
	}
}

func TestWebRtcPublishEndpointElementToEndpointSpec(t *testing.T) {
	el := &WebRtcPublishEndpointElement{MediaKinds: []string{"audio"}, Source: "display", ForceRelay: true}
	spec, err := el.toEndpointSpec("pub1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ID != "pub1" || spec.Kind != room.EndpointPublish || !spec.ForceRelay || spec.Source != protocol.SourceKindDisplay {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestWebRtcPlayEndpointElementToEndpointSpec(t *testing.T) {
	el := &WebRtcPlayEndpointElement{Src: "memberA/pub1"}
	spec, err := el.toEndpointSpec("play1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.ID != "play1" || spec.Kind != room.EndpointPlay || spec.PlaysMember != "memberA" || spec.PlaysEndpoint != "pub1" {
		t.Fatalf("unexpected spec: %+v", spec)
	}
}

func TestRoomElementRoundTripsThroughToRoomSpecAndBack(t *testing.T) {
	el := &RoomElement{
		ID: "r1",
		Pipeline: map[string]*MemberElement{
			"A": {
				ID:         "A",
				Credential: "secret",
				Pipeline: map[string]*EndpointElement{
					"pub": {Kind: "WebRtcPublishEndpoint", MediaKinds: []string{"audio"}, Source: "device"},
				},
			},
		},
	}

	spec, err := el.toRoomSpec()
	if err != nil {
		t.Fatalf("toRoomSpec: %v", err)
	}
	if spec.ID != "r1" || len(spec.Members) != 1 {
		t.Fatalf("unexpected spec: %+v", spec)
	}
	member := spec.Members["A"]
	if member == nil || member.Credential != "secret" || len(member.Endpoints) != 1 {
		t.Fatalf("unexpected member spec: %+v", member)
	}
	pubSpec := member.Endpoints["pub"]
	if pubSpec.Kind != room.EndpointPublish || len(pubSpec.MediaKinds) != 1 {
		t.Fatalf("unexpected endpoint spec: %+v", pubSpec)
	}

	// roomToElement/memberToElement/endpointToElement must render the Spec
	// back into the same wire shape Create/Apply accepted.
	roomTree := room.New(spec, noopDispatcherForControlTest{}, nil, nil)
	back := roomToElement(roomTree)
	if back.ID != "r1" || len(back.Pipeline) != 1 {
		t.Fatalf("unexpected round-tripped RoomElement: %+v", back)
	}
	backMember := back.Pipeline["A"]
	if backMember == nil || backMember.Credential != "secret" {
		t.Fatalf("unexpected round-tripped MemberElement: %+v", backMember)
	}
	backEP := backMember.Pipeline["pub"]
	if backEP == nil || backEP.Kind != "WebRtcPublishEndpoint" || len(backEP.MediaKinds) != 1 {
		t.Fatalf("unexpected round-tripped EndpointElement: %+v", backEP)
	}
}

func TestEndpointElementUnknownKind(t *testing.T) {
	el := &EndpointElement{Kind: "NotAKind"}
	if _, err := el.toEndpointSpec("x"); err == nil {
		t.Fatal("expected an error for an unknown endpoint element kind")
	}
}

type noopDispatcherForControlTest struct{}

func (noopDispatcherForControlTest) SendEvent(ids.MemberId, string, any) {}
