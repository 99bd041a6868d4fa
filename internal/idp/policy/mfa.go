package policy

import "github.com/aussiebroadwan/tollgate/internal/idp/domain"

// MFAInput gathers the configuration that decides whether a sign-in needs
// a second factor.
type MFAInput struct {
	ClientRequiresMFA bool
	OrgRequiresMFA    bool
	EmailVerified     bool
	Factors           []domain.Factor
	RecoveryRemaining int
}

type MFADecision struct {
	Required bool
	// Factors lists what the user may present, strongest first. Empty with
	// Required set means the user cannot satisfy the policy.
	Factors []domain.FactorKind
}

// Satisfiable reports whether a required step can be completed.
func (d MFADecision) Satisfiable() bool { return !d.Required || len(d.Factors) > 0 }

var factorOrder = []domain.FactorKind{
	domain.FactorPasskey,
	domain.FactorTOTP,
	domain.FactorEmailOTP,
}

// DecideMFA requires a factor when the client or org demands it or when the
// user enrolled one. A required step with nothing enrolled falls back to
// email OTP for verified addresses. Recovery codes are offered last and
// only next to another factor.
func DecideMFA(in MFAInput) MFADecision {
	enrolled := make(map[domain.FactorKind]bool)
	for _, f := range in.Factors {
		if f.Usable() {
			enrolled[f.Kind] = true
		}
	}

	var d MFADecision
	for _, k := range factorOrder {
		if enrolled[k] {
			d.Factors = append(d.Factors, k)
		}
	}
	d.Required = in.ClientRequiresMFA || in.OrgRequiresMFA || len(d.Factors) > 0
	if !d.Required {
		return d
	}

	if len(d.Factors) == 0 && in.EmailVerified {
		d.Factors = append(d.Factors, domain.FactorEmailOTP)
	}
	if len(d.Factors) > 0 && enrolled[domain.FactorRecovery] && in.RecoveryRemaining > 0 {
		d.Factors = append(d.Factors, domain.FactorRecovery)
	}
	return d
}

// RecoveryReissueThreshold is the remaining-code count below which a
// successful recovery sign-in asks for a new set.
const RecoveryReissueThreshold = 3

func ShouldReissueRecovery(remaining int) bool { return remaining < RecoveryReissueThreshold }
