package policy

import (
	"errors"
	"slices"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

var (
	ErrNotImpersonator      = errors.New("policy: acting user holds no impersonator role")
	ErrTargetPrivileged     = errors.New("policy: target holds an impersonator role")
	ErrSelfImpersonation    = errors.New("policy: cannot impersonate self")
	ErrNoImpersonationScope = errors.New("policy: client has no impersonation-safe scope")
)

// ImpersonationSafeScopes is the only set an impersonation grant may carry.
var ImpersonationSafeScopes = []string{domain.ScopeOpenID, domain.ScopeProfile, domain.ScopeEmail}

func hasImpersonator(roles []domain.Role) bool {
	return slices.ContainsFunc(roles, func(r domain.Role) bool { return r.Impersonator })
}

// CheckImpersonation decides whether actor may impersonate target.
func CheckImpersonation(actorID string, actorRoles []domain.Role, targetID string, targetRoles []domain.Role) error {
	if actorID == targetID {
		return ErrSelfImpersonation
	}
	if !hasImpersonator(actorRoles) {
		return ErrNotImpersonator
	}
	if hasImpersonator(targetRoles) {
		return ErrTargetPrivileged
	}
	return nil
}

// ImpersonationScopes intersects the client's scopes with the safe set.
func ImpersonationScopes(clientScopes []string) ([]string, error) {
	var out []string
	for _, s := range ImpersonationSafeScopes {
		if slices.Contains(clientScopes, s) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoImpersonationScope
	}
	return out, nil
}
