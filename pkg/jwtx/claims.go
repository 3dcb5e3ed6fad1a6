package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is the lifetime a TPP should give its access tokens.
// The verifier does not enforce it; exp does.
const DefaultTokenTTL = 5 * time.Minute

// Claims are the access-token claims a TPP presents to the consent
// service. The subject is the TPP authorisation number.
type Claims struct {
	jwt.RegisteredClaims

	// Permission scopes, e.g. "ais" or "aspsp:write".
	Scopes []string `json:"scopes,omitempty"`

	// TppName is the registered name of the TPP, used only for logging.
	TppName string `json:"tpp_name,omitempty"`

	// Roles are the PSD2 roles from the TPP's eIDAS certificate
	// ("PSP_AI", "PSP_PI", ...).
	Roles []string `json:"roles,omitempty"`
}

// NewTppClaims builds minimally-correct claims for a TPP token.
func NewTppClaims(
	tppID, tppName string,
	scopes, roles []string,
	ttl time.Duration,
	issuer string,
	audience []string,
	now time.Time,
) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   tppID,
			Audience:  jwt.ClaimStrings(audience),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        NewJTI(),
		},
		Scopes:  scopes,
		TppName: tppName,
		Roles:   roles,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasScope reports whether the token carries scope s.
func (c *Claims) HasScope(s string) bool {
	return slices.Contains(c.Scopes, s)
}

// HasRole reports whether the TPP holds PSD2 role r.
func (c *Claims) HasRole(r string) bool {
	return slices.Contains(c.Roles, r)
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAudience checks if at least one expected audience is present.
func (c *Claims) ValidateAudience(expected []string) error {
	if len(expected) == 0 {
		return nil
	}
	for _, want := range expected {
		if slices.Contains(c.Audience, want) {
			return nil
		}
	}
	return ErrAudience
}

// ValidateExpiryAt checks exp and nbf against now, allowing leeway for
// clock skew in both directions.
func (c *Claims) ValidateExpiryAt(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
