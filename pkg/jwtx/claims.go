package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
)

// Actor identifies the user acting on behalf of the subject in an
// impersonated token (RFC 8693 "act").
type Actor struct {
	Subject string `json:"sub"`
}

// Claims are the access token claims issued by tollgate.
type Claims struct {
	jwt.RegisteredClaims

	ClientID string `json:"client_id"`

	// Org is the organization id the session was authorized under.
	Org string `json:"org,omitempty"`

	Scopes []string `json:"scope,omitempty"`

	// AMR lists the authentication methods used: "pwd", "saml", "otp",
	// "hwk" (passkey), "rec" (recovery code), "mfa".
	AMR []string `json:"amr,omitempty"`

	// SID is the flow session or refresh family the token belongs to.
	SID string `json:"sid,omitempty"`

	Act *Actor `json:"act,omitempty"`
}

// AccessParams describes the token being minted.
type AccessParams struct {
	Subject  string
	ClientID string
	Org      string
	Scopes   []string
	AMR      []string
	SID      string
	Actor    string
	TTL      time.Duration
	Issuer   string
	Audience []string
	Now      time.Time
}

// NewAccessClaims builds claims from p with a fresh jti.
func NewAccessClaims(p AccessParams) Claims {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	aud := p.Audience
	if len(aud) == 0 {
		aud = []string{p.ClientID}
	}

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(aud),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(ttl)),
			ID:        NewJTI(),
		},
		ClientID: p.ClientID,
		Org:      p.Org,
		Scopes:   p.Scopes,
		AMR:      p.AMR,
		SID:      p.SID,
	}
	if p.Actor != "" {
		c.Act = &Actor{Subject: p.Actor}
	}
	return c
}

// NewJTI returns a random URL-safe token id.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// HasScope reports whether the claims carry scope.
func (c *Claims) HasScope(scope string) bool {
	return slices.Contains(c.Scopes, scope)
}

func (c *Claims) validateIssuer(expected string) error {
	if expected != "" && c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

func (c *Claims) validateAudience(expected []string) error {
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

func (c *Claims) validateTimes(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}
	return nil
}
