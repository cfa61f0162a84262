// Package turn implements the TURN credential service of spec.md §4.4: it
// mints ephemeral ICE server credentials for a (Room, Member) pair using the
// TURN REST API (HMAC-SHA1, coturn's use-auth-secret scheme), generalized
// from the teacher's internal/sfu/turn.go which did this per-userID for a
// single always-on TURN host.
package turn

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"rtcsignal/internal/ids"
	"rtcsignal/internal/protocol"
)

// Policy controls what Insert does when no TURN backend is configured
// (config.Turn.Host == ""), mirroring the two modes a Control API deployer
// can request for an Endpoint lacking relay infrastructure.
type Policy int

const (
	// PolicyReturnErr fails the insert outright: the spec asked for relay
	// credentials this deployment cannot provide.
	PolicyReturnErr Policy = iota
	// PolicyGenerateWithoutBackend mints credentials anyway (useful for
	// local development against a TURN server started out-of-band) without
	// verifying that anything is listening on Host/Port.
	PolicyGenerateWithoutBackend
)

var ErrNoBackendConfigured = fmt.Errorf("turn: no backend configured and policy forbids generating credentials")

// Credentials is the generated ephemeral ICE identity for one session.
type Credentials struct {
	Username string
	Password string
	TTL      time.Duration
}

// Config is the subset of internal/config.Config the Service needs.
type Config struct {
	Host string
	Port int
	Pass string // shared secret used to HMAC credentials
	TTL  time.Duration
}

// Service mints and tracks ephemeral TURN credentials per (RoomId,
// MemberId). Credentials are not actually pushed to a coturn instance here —
// this server only implements the REST-API credential half; an operator
// wires a coturn deployment configured with the same shared secret.
type Service struct {
	cfg Config

	mu      sync.Mutex
	issued  map[sessionKey]Credentials
}

type sessionKey struct {
	room   ids.RoomId
	member ids.MemberId
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg, issued: make(map[sessionKey]Credentials)}
}

// Insert mints (or re-mints) credentials for the (roomID, memberID) pair
// according to policy, and records them for later Delete/lookup.
func (s *Service) Insert(roomID ids.RoomId, memberID ids.MemberId, policy Policy) (Credentials, error) {
	if s.cfg.Host == "" && policy == PolicyReturnErr {
		return Credentials{}, ErrNoBackendConfigured
	}

	ttl := s.cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	username, password := generateCredentials(s.cfg.Pass, string(roomID)+":"+string(memberID), ttl)
	creds := Credentials{Username: username, Password: password, TTL: ttl}

	s.mu.Lock()
	s.issued[sessionKey{room: roomID, member: memberID}] = creds
	s.mu.Unlock()

	return creds, nil
}

// Delete forgets any credentials issued for (roomID, memberID). Coturn
// itself expires the allocation naturally once the TTL-embedded username
// lapses; this only drops our bookkeeping.
func (s *Service) Delete(roomID ids.RoomId, memberID ids.MemberId) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.issued, sessionKey{room: roomID, member: memberID})
}

// ICEServers builds the client-facing server list. With a TURN host
// configured it is a STUN entry plus a TURN entry carrying freshly minted
// credentials; with none it is empty, or ErrNoBackendConfigured under
// PolicyReturnErr.
func (s *Service) ICEServers(roomID ids.RoomId, memberID ids.MemberId, policy Policy) ([]protocol.ICEServerInfo, error) {
	if s.cfg.Host == "" {
		if policy == PolicyReturnErr {
			return nil, ErrNoBackendConfigured
		}
		return nil, nil
	}

	creds, err := s.Insert(roomID, memberID, policy)
	if err != nil {
		return nil, err
	}

	stunURL := fmt.Sprintf("stun:%s:%d", s.cfg.Host, s.cfg.Port)
	turnURL := fmt.Sprintf("turn:%s:%d", s.cfg.Host, s.cfg.Port)

	return []protocol.ICEServerInfo{
		{URLs: []string{stunURL}},
		{URLs: []string{turnURL}, Username: creds.Username, Credential: creds.Password},
	}, nil
}

// generateCredentials implements the TURN REST API (HMAC-SHA1) scheme
// compatible with coturn's use-auth-secret, exactly as the teacher's
// GenerateTURNCredentials does, but keyed by "roomId:memberId" instead of a
// bare userID, so the username names the Room and Member it was issued for.
func generateCredentials(secret, subject string, ttl time.Duration) (username, credential string) {
	expiry := time.Now().Add(ttl).Unix()
	username = fmt.Sprintf("%d:%s", expiry, subject)

	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(username))
	credential = base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return
}
