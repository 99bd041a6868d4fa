package domain

import "time"

// RefreshToken is one member of a rotation family. Rotation supersedes the
// presented member and inserts its child; rows are never deleted while
// the family is live.
type RefreshToken struct {
	ID        string
	FamilyID  string
	ParentID  string
	TokenHash string

	UserID    string
	ClientID  string
	OrgID     string
	Scopes    []string
	AMR       []string
	SessionID string
	ActorID   string

	ExpiresAt    time.Time
	CreatedAt    time.Time
	RevokedAt    *time.Time
	SupersededAt *time.Time
	ReplacedBy   string
}

func (t RefreshToken) IsRevoked() bool    { return t.RevokedAt != nil }
func (t RefreshToken) IsSuperseded() bool { return t.SupersededAt != nil }
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// RevokeMode selects how much of a family a revocation affects.
type RevokeMode int

const (
	RevokeSingle RevokeMode = iota
	RevokeFamily
)
