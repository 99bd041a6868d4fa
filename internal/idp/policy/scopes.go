package policy

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

var (
	ErrScopeNotAllowed      = errors.New("policy: scope not allowed for client")
	ErrScopeUnknown         = errors.New("policy: unknown scope")
	ErrScopeType            = errors.New("policy: scope type not allowed for client")
	ErrScopeRestricted      = errors.New("policy: scope not granted by any role")
	ErrEmptyApproval        = errors.New("policy: no scopes approved")
	ErrApprovalNotRequested = errors.New("policy: approved scope was not requested")
	ErrScopeWidening        = errors.New("policy: scope widening")
)

// CheckClientScopes validates requested against the client's allow-list
// and the scope catalog. Interactive clients may not request scopes typed
// confidential.
func CheckClientScopes(client domain.Client, requested []string, catalog map[string]domain.Scope) error {
	for _, name := range requested {
		if !slices.Contains(client.Scopes, name) {
			return fmt.Errorf("%w: %s", ErrScopeNotAllowed, name)
		}
		sc, ok := catalog[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrScopeUnknown, name)
		}
		if sc.Type == domain.ClientConfidential && !client.IsConfidential() {
			return fmt.Errorf("%w: %s", ErrScopeType, name)
		}
	}
	return nil
}

// CheckRoleScopes verifies every restricted scope in requested is granted
// by at least one of roles.
func CheckRoleScopes(requested []string, catalog map[string]domain.Scope, roles []domain.Role) error {
	for _, name := range requested {
		if !catalog[name].Restricted {
			continue
		}
		granted := slices.ContainsFunc(roles, func(r domain.Role) bool { return r.Grants(name) })
		if !granted {
			return fmt.Errorf("%w: %s", ErrScopeRestricted, name)
		}
	}
	return nil
}

// ConsentRequired reports whether requested goes beyond what was approved
// before. Narrowing never prompts.
func ConsentRequired(existing *domain.Consent, requested []string) bool {
	return !existing.Covers(requested)
}

// CheckApproval requires a non-empty approval that is a subset of requested.
func CheckApproval(requested, approved []string) error {
	if len(approved) == 0 {
		return ErrEmptyApproval
	}
	for _, s := range approved {
		if !slices.Contains(requested, s) {
			return fmt.Errorf("%w: %s", ErrApprovalNotRequested, s)
		}
	}
	return nil
}

// Narrow returns the scopes for a rotated token. An empty request keeps
// granted; anything outside granted is widening.
func Narrow(granted, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return slices.Clone(granted), nil
	}
	for _, s := range requested {
		if !slices.Contains(granted, s) {
			return nil, fmt.Errorf("%w: %s", ErrScopeWidening, s)
		}
	}
	return Dedupe(requested), nil
}

// Dedupe drops repeated entries keeping first occurrence order.
func Dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
