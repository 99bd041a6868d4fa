package domain

import "slices"

// Well known scopes.
const (
	ScopeOpenID        = "openid"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeOfflineAccess = "offline_access"
	ScopeMFAManage     = "mfa:manage"
	ScopeAccountLink   = "account:link"
	ScopeImpersonate   = "users:impersonate"
)

// Scope is a registered scope. Restricted scopes additionally need a grant
// through one of the user's roles.
type Scope struct {
	Name       string
	Type       ClientType
	Restricted bool
}

// Role grants restricted scopes. Impersonator roles may mint impersonation
// grants.
type Role struct {
	ID           string
	Name         string
	Scopes       []string
	Impersonator bool
}

func (r *Role) Grants(scope string) bool { return slices.Contains(r.Scopes, scope) }

type Org struct {
	ID                      string
	Slug                    string
	Name                    string
	AllowPublicRegistration bool
	RequireMFA              bool
	DefaultRoleID           string
}

type OrgGroup struct {
	ID    string
	OrgID string
	Name  string
}
