package service

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// isLocked reports whether subject at ip is cooling down. Redis is
// authoritative; while it is unreachable the decision is replayed from the
// sign-in history.
func (s *FlowService) isLocked(ctx context.Context, subject, ip string) (bool, error) {
	remaining, err := s.Ephemeral.LockedFor(ctx, subject, ip)
	if err == nil {
		return remaining > 0, nil
	}
	if !errors.Is(err, store.ErrTransient) {
		return false, err
	}

	slogx.FromContext(ctx).Warn("lockout counter unavailable, using sign-in history", "error", err)
	d, err := s.historyDecision(ctx, subject, ip)
	if err != nil {
		return false, err
	}
	return d.Locked, nil
}

func (s *FlowService) historyDecision(ctx context.Context, subject, ip string) (policy.LockoutDecision, error) {
	p := s.lockout()
	now := s.now()
	history, err := store.RetryRead(ctx, func(ctx context.Context) ([]domain.SignInAttempt, error) {
		return s.Store.SignIns().ListSince(ctx, subject, ip, now.Add(-(p.Window + p.Cooldown)))
	})
	if err != nil {
		return policy.LockoutDecision{}, err
	}
	return policy.EvaluateLockout(p, history, now), nil
}

// fail records a failed attempt and returns cause, or a locked redirect
// when this failure reached the threshold.
func (s *FlowService) fail(ctx context.Context, f domain.FlowSession, subject, userID, ip string, method domain.SignInMethod, cause error) error {
	s.record(ctx, domain.SignInAttempt{Subject: subject, UserID: userID, IP: ip, Method: method, Outcome: domain.OutcomeFailure})
	s.emit(ctx, audit.Event{
		Type:     audit.SignInFailed,
		UserID:   userID,
		ClientID: f.ClientID,
		IP:       ip,
		Fields:   map[string]any{"method": string(method)},
	})

	p := s.lockout()
	var trips bool
	n, err := s.Ephemeral.RecordFailure(ctx, subject, ip, p.Window)
	switch {
	case err == nil:
		trips = p.Trips(n)
	case errors.Is(err, store.ErrTransient):
		d, herr := s.historyDecision(ctx, subject, ip)
		if herr != nil {
			slogx.FromContext(ctx).Error("evaluate lockout", "error", herr)
			return cause
		}
		trips = d.Locked
	default:
		return err
	}
	if !trips {
		return cause
	}

	if err := s.Ephemeral.Lock(ctx, subject, ip, p.Cooldown); err != nil {
		slogx.FromContext(ctx).Warn("store lockout", "error", err)
	}
	s.emit(ctx, audit.Event{
		Type:     audit.AccountLocked,
		UserID:   userID,
		ClientID: f.ClientID,
		IP:       ip,
		Fields:   map[string]any{"subject": subject, "failures": n},
	})
	return s.terminate(ctx, f, domain.FlowLocked, ErrAccountLocked)
}

// lockFlow refuses an attempt made during a cooldown. Every refusal is
// audited.
func (s *FlowService) lockFlow(ctx context.Context, f domain.FlowSession, subject, userID, ip string, method domain.SignInMethod) error {
	s.record(ctx, domain.SignInAttempt{Subject: subject, UserID: userID, IP: ip, Method: method, Outcome: domain.OutcomeLocked})
	s.emit(ctx, audit.Event{
		Type:     audit.AccountLocked,
		UserID:   userID,
		ClientID: f.ClientID,
		IP:       ip,
		Fields:   map[string]any{"subject": subject, "repeat": true},
	})
	return s.terminate(ctx, f, domain.FlowLocked, ErrAccountLocked)
}

func (s *FlowService) succeed(ctx context.Context, subject, userID, ip string, method domain.SignInMethod) {
	if err := s.Ephemeral.ResetFailures(ctx, subject, ip); err != nil {
		slogx.FromContext(ctx).Warn("reset lockout counter", "error", err)
	}
	s.record(ctx, domain.SignInAttempt{Subject: subject, UserID: userID, IP: ip, Method: method, Outcome: domain.OutcomeSuccess})
}

// record appends to the sign-in history. The history only backs the
// fallback, so a failed write is logged and the sign-in goes on.
func (s *FlowService) record(ctx context.Context, a domain.SignInAttempt) {
	a.ID = idx.New().String()
	a.CreatedAt = s.now()
	if err := s.Store.SignIns().Record(ctx, a); err != nil {
		slogx.FromContext(ctx).Warn("record sign-in attempt", "subject", a.Subject, "error", err)
	}
}
