package domain

import (
	"slices"
	"time"
)

// User is an end user account. PasswordHash is empty for accounts that
// only sign in through SAML.
type User struct {
	ID            string
	Username      string
	Email         string
	EmailVerified bool
	PasswordHash  string
	Locale        string

	OrgIDs   []string
	GroupIDs []string
	RoleIDs  []string

	// LinkedUserID points at the other side of an account link. Exactly one
	// side of a link has Canonical set.
	LinkedUserID string
	Canonical    bool

	DeletedAt *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanonicalID is the subject tokens are issued for.
func (u User) CanonicalID() string {
	if u.LinkedUserID != "" && !u.Canonical {
		return u.LinkedUserID
	}
	return u.ID
}

func (u User) IsLinked() bool { return u.LinkedUserID != "" }
func (u User) IsActive() bool { return u.DeletedAt == nil }

func (u User) MemberOf(orgID string) bool {
	return slices.Contains(u.OrgIDs, orgID)
}

// Authentication method references carried in the amr claim.
const (
	AMRPassword = "pwd"
	AMRSAML     = "saml"
	AMROTP      = "otp"
	AMRPasskey  = "hwk"
	AMRRecovery = "rec"
	AMRMFA      = "mfa"
)
