package control

import (
	"fmt"
	"strings"

	"rtcsignal/internal/ids"
)

// FID addresses one Element in the topology tree by a slash-separated path
// of up to three segments: "room", "room/member" or "room/member/endpoint"
// (spec.md §6). An empty FID addresses the process root (Room list).
type FID struct {
	Room     ids.RoomId
	Member   ids.MemberId
	Endpoint ids.EndpointId
}

func (f FID) String() string {
	switch {
	case f.Endpoint != "":
		return fmt.Sprintf("%s/%s/%s", f.Room, f.Member, f.Endpoint)
	case f.Member != "":
		return fmt.Sprintf("%s/%s", f.Room, f.Member)
	case f.Room != "":
		return string(f.Room)
	default:
		return ""
	}
}

// parseFID splits a Control API path parameter into its constituent parts.
// Up to three non-empty segments are accepted; more is a malformed FID.
func parseFID(raw string) (FID, error) {
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return FID{}, nil
	}
	parts := strings.Split(raw, "/")
	if len(parts) > 3 {
		return FID{}, fmt.Errorf("malformed fid %q", raw)
	}
	for _, p := range parts {
		if p == "" {
			return FID{}, fmt.Errorf("malformed fid %q", raw)
		}
	}
	var f FID
	f.Room = ids.RoomId(parts[0])
	if len(parts) > 1 {
		f.Member = ids.MemberId(parts[1])
	}
	if len(parts) > 2 {
		f.Endpoint = ids.EndpointId(parts[2])
	}
	return f, nil
}
