// ABOUTME: Local identity extraction from the session JWT issued by the identity provider
// ABOUTME: Claims are read unverified; signature verification is the provider's responsibility

package identity

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the support-staff role tag used by ticket attribution
const RoleAdmin = "admin"

// Identity is the local actor as seen by the attribution predicates
type Identity struct {
	UserID string
	Name   string
	Role   string // "student", "tutor", "admin"; defaults to "user"
}

// Admin reports whether the local actor is support staff
func (id Identity) Admin() bool {
	return id.Role == RoleAdmin
}

// FromToken extracts the local identity from a session token. The token
// is parsed without verification: this client only needs the claims, and
// the API rejects a forged token on first use anyway.
func FromToken(token string) (Identity, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return Identity{}, fmt.Errorf("parsing session token: %w", err)
	}

	id := Identity{
		UserID: claimString(claims, "sub", "userId", "id"),
		Name:   claimString(claims, "name", "fullName"),
		Role:   claimString(claims, "role"),
	}
	if id.UserID == "" {
		return Identity{}, fmt.Errorf("session token has no subject claim")
	}
	if id.Role == "" {
		id.Role = "user"
	}

	return id, nil
}

// claimString returns the first non-empty string claim among the given keys
func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if v, ok := claims[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}
