package policy

import (
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

// LockoutPolicy locks a subject/IP pair for Cooldown once Threshold
// failures land inside one Window. The window opens with the first failure.
type LockoutPolicy struct {
	Threshold int
	Window    time.Duration
	Cooldown  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 5, Window: 15 * time.Minute, Cooldown: 15 * time.Minute}
}

// Trips reports whether failures reaches the threshold.
func (p LockoutPolicy) Trips(failures int64) bool {
	return p.Threshold > 0 && failures >= int64(p.Threshold)
}

type LockoutDecision struct {
	Locked   bool
	Until    time.Time
	Failures int
}

// EvaluateLockout replays history (newest first) through the same counter
// the ephemeral store keeps, so the result matches what Redis would have
// decided. A success resets the counter; attempts rejected while locked
// are not counted.
func EvaluateLockout(p LockoutPolicy, history []domain.SignInAttempt, now time.Time) LockoutDecision {
	var (
		failures    int
		windowStart time.Time
		lockedUntil time.Time
	)

	for i := len(history) - 1; i >= 0; i-- {
		a := history[i]
		switch a.Outcome {
		case domain.OutcomeSuccess:
			failures = 0
		case domain.OutcomeFailure:
			if a.CreatedAt.Before(lockedUntil) {
				continue
			}
			if failures == 0 || a.CreatedAt.Sub(windowStart) >= p.Window {
				failures = 0
				windowStart = a.CreatedAt
			}
			failures++
			if p.Trips(int64(failures)) {
				lockedUntil = a.CreatedAt.Add(p.Cooldown)
				failures = 0
			}
		}
	}

	if failures > 0 && now.Sub(windowStart) >= p.Window {
		failures = 0
	}
	if now.Before(lockedUntil) {
		return LockoutDecision{Locked: true, Until: lockedUntil, Failures: failures}
	}
	return LockoutDecision{Failures: failures}
}
