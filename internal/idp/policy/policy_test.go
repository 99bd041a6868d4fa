package policy_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type ev struct {
	at      time.Duration
	outcome domain.SignInOutcome
}

// history builds newest-first attempts from oldest-first offsets.
func history(entries ...ev) []domain.SignInAttempt {
	out := make([]domain.SignInAttempt, len(entries))
	for i, e := range entries {
		out[len(entries)-1-i] = domain.SignInAttempt{Outcome: e.outcome, CreatedAt: t0.Add(e.at)}
	}
	return out
}

func fail(at time.Duration) ev { return ev{at, domain.OutcomeFailure} }
func ok(at time.Duration) ev   { return ev{at, domain.OutcomeSuccess} }

func TestEvaluateLockout(t *testing.T) {
	t.Parallel()
	p := policy.LockoutPolicy{Threshold: 3, Window: 10 * time.Minute, Cooldown: 15 * time.Minute}

	t.Run("below threshold", func(t *testing.T) {
		d := policy.EvaluateLockout(p, history(fail(0), fail(time.Minute)), t0.Add(2*time.Minute))
		require.False(t, d.Locked)
		require.Equal(t, 2, d.Failures)
	})

	t.Run("threshold inside window locks", func(t *testing.T) {
		d := policy.EvaluateLockout(p, history(fail(0), fail(time.Minute), fail(2*time.Minute)), t0.Add(3*time.Minute))
		require.True(t, d.Locked)
		require.Equal(t, t0.Add(17*time.Minute), d.Until)
	})

	t.Run("cooldown elapses", func(t *testing.T) {
		d := policy.EvaluateLockout(p, history(fail(0), fail(time.Minute), fail(2*time.Minute)), t0.Add(18*time.Minute))
		require.False(t, d.Locked)
		require.Zero(t, d.Failures)
	})

	t.Run("success resets the counter", func(t *testing.T) {
		d := policy.EvaluateLockout(p, history(fail(0), fail(time.Minute), ok(2*time.Minute), fail(3*time.Minute)), t0.Add(4*time.Minute))
		require.False(t, d.Locked)
		require.Equal(t, 1, d.Failures)
	})

	t.Run("window restarts after it lapses", func(t *testing.T) {
		d := policy.EvaluateLockout(p, history(fail(0), fail(time.Minute), fail(11*time.Minute)), t0.Add(12*time.Minute))
		require.False(t, d.Locked)
		require.Equal(t, 1, d.Failures)
	})

	t.Run("attempts during cooldown are not counted", func(t *testing.T) {
		d := policy.EvaluateLockout(p,
			history(fail(0), fail(time.Minute), fail(2*time.Minute), fail(5*time.Minute), fail(6*time.Minute)),
			t0.Add(20*time.Minute))
		require.False(t, d.Locked)
		require.Zero(t, d.Failures)
	})
}

func TestDecideMFA(t *testing.T) {
	t.Parallel()
	totp := domain.Factor{Kind: domain.FactorTOTP, Verified: true}
	passkey := domain.Factor{Kind: domain.FactorPasskey, Verified: true}
	recovery := domain.Factor{Kind: domain.FactorRecovery, Verified: true}
	pending := domain.Factor{Kind: domain.FactorTOTP}

	d := policy.DecideMFA(policy.MFAInput{})
	require.False(t, d.Required)
	require.True(t, d.Satisfiable())

	d = policy.DecideMFA(policy.MFAInput{Factors: []domain.Factor{pending}})
	require.False(t, d.Required)

	d = policy.DecideMFA(policy.MFAInput{Factors: []domain.Factor{totp, recovery, passkey}, RecoveryRemaining: 5})
	require.True(t, d.Required)
	require.Equal(t, []domain.FactorKind{domain.FactorPasskey, domain.FactorTOTP, domain.FactorRecovery}, d.Factors)

	d = policy.DecideMFA(policy.MFAInput{Factors: []domain.Factor{totp, recovery}})
	require.Equal(t, []domain.FactorKind{domain.FactorTOTP}, d.Factors)

	d = policy.DecideMFA(policy.MFAInput{OrgRequiresMFA: true, EmailVerified: true})
	require.Equal(t, []domain.FactorKind{domain.FactorEmailOTP}, d.Factors)

	d = policy.DecideMFA(policy.MFAInput{ClientRequiresMFA: true})
	require.True(t, d.Required)
	require.False(t, d.Satisfiable())

	require.True(t, policy.ShouldReissueRecovery(2))
	require.False(t, policy.ShouldReissueRecovery(3))
}

func TestScopeChecks(t *testing.T) {
	t.Parallel()
	catalog := map[string]domain.Scope{
		"openid":            {Name: "openid", Type: domain.ClientInteractive},
		"offline_access":    {Name: "offline_access", Type: domain.ClientInteractive},
		"billing:sync":      {Name: "billing:sync", Type: domain.ClientConfidential},
		"users:impersonate": {Name: "users:impersonate", Type: domain.ClientInteractive, Restricted: true},
	}
	spa := domain.Client{Type: domain.ClientInteractive, Scopes: []string{"openid", "offline_access", "billing:sync", "users:impersonate", "ghost"}}
	backend := domain.Client{Type: domain.ClientConfidential, Scopes: []string{"billing:sync"}}

	require.NoError(t, policy.CheckClientScopes(spa, []string{"openid", "offline_access"}, catalog))
	require.ErrorIs(t, policy.CheckClientScopes(spa, []string{"email"}, catalog), policy.ErrScopeNotAllowed)
	require.ErrorIs(t, policy.CheckClientScopes(spa, []string{"ghost"}, catalog), policy.ErrScopeUnknown)
	require.ErrorIs(t, policy.CheckClientScopes(spa, []string{"billing:sync"}, catalog), policy.ErrScopeType)
	require.NoError(t, policy.CheckClientScopes(backend, []string{"billing:sync"}, catalog))

	admin := domain.Role{Name: "admin", Scopes: []string{"users:impersonate"}}
	require.ErrorIs(t, policy.CheckRoleScopes([]string{"openid", "users:impersonate"}, catalog, nil), policy.ErrScopeRestricted)
	require.NoError(t, policy.CheckRoleScopes([]string{"openid", "users:impersonate"}, catalog, []domain.Role{{Name: "viewer"}, admin}))
}

func TestConsentAndApproval(t *testing.T) {
	t.Parallel()
	prior := &domain.Consent{Scopes: []string{"openid", "email"}}

	require.True(t, policy.ConsentRequired(nil, []string{"openid"}))
	require.False(t, policy.ConsentRequired(prior, []string{"openid"}))
	require.True(t, policy.ConsentRequired(prior, []string{"openid", "offline_access"}))

	require.ErrorIs(t, policy.CheckApproval([]string{"openid"}, nil), policy.ErrEmptyApproval)
	require.ErrorIs(t, policy.CheckApproval([]string{"openid"}, []string{"openid", "email"}), policy.ErrApprovalNotRequested)
	require.NoError(t, policy.CheckApproval([]string{"openid", "email"}, []string{"email"}))
}

func TestNarrow(t *testing.T) {
	t.Parallel()
	granted := []string{"openid", "offline_access", "email"}

	got, err := policy.Narrow(granted, nil)
	require.NoError(t, err)
	require.Equal(t, granted, got)

	got, err = policy.Narrow(granted, []string{"openid", "openid", "offline_access"})
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "offline_access"}, got)

	_, err = policy.Narrow(granted, []string{"openid", "profile"})
	require.ErrorIs(t, err, policy.ErrScopeWidening)
}

func TestImpersonation(t *testing.T) {
	t.Parallel()
	support := []domain.Role{{Name: "support", Impersonator: true}}
	member := []domain.Role{{Name: "member"}}

	require.NoError(t, policy.CheckImpersonation("a", support, "b", member))
	require.ErrorIs(t, policy.CheckImpersonation("a", member, "b", member), policy.ErrNotImpersonator)
	require.ErrorIs(t, policy.CheckImpersonation("a", support, "b", support), policy.ErrTargetPrivileged)
	require.ErrorIs(t, policy.CheckImpersonation("a", support, "a", member), policy.ErrSelfImpersonation)

	scopes, err := policy.ImpersonationScopes([]string{"offline_access", "email", "openid", "users:impersonate"})
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "email"}, scopes)

	_, err = policy.ImpersonationScopes([]string{"offline_access"})
	require.ErrorIs(t, err, policy.ErrNoImpersonationScope)
}
