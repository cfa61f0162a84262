// Package auth implements operator authentication for the Control API
// (spec.md §6): a single shared-secret JWT scheme, adapted from the
// teacher's internal/auth/jwt.go user-session token pair down to the one
// claim the Control API actually needs — which operator issued the call.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OperatorService mints and validates bearer tokens for Control API callers.
// There is no per-user store here: an operator token authenticates the
// caller as allowed to mutate Room topology, nothing more granular than
// that (spec.md's Control API has no further authorization model).
type OperatorService struct {
	secret []byte
	ttl    time.Duration
}

// OperatorClaims identifies which operator issued a Control API call, for
// audit logging; it carries no Room/Member-scoped permissions.
type OperatorClaims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

func NewOperatorService(secret string, ttl time.Duration) *OperatorService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &OperatorService{secret: []byte(secret), ttl: ttl}
}

// IssueToken mints a bearer token for the given operator name. Nothing in
// this module calls it; the server itself only validates operator tokens.
func (s *OperatorService) IssueToken(operator string) (string, error) {
	claims := OperatorClaims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   operator,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and verifies a bearer token, returning the operator claim.
func (s *OperatorService) Validate(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// BearerFromRequest extracts the "Bearer <token>" value of an Authorization
// header, the transport this server's Control API uses exclusively.
func BearerFromRequest(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(h, prefix) {
		return "", false
	}
	return strings.TrimPrefix(h, prefix), true
}

// GenerateMemberToken mints the short opaque credential embedded in a
// Member's auth URL (spec.md §6's `?token=`), independent of the operator
// JWT scheme above — Members authenticate with a bare shared secret, not a
// signed token, matching spec.md §3's Member.credential attribute.
func GenerateMemberToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
