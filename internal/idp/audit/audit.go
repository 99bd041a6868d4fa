// Package audit carries security events from state transitions to sinks.
// Services emit; they never depend on where events end up.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

type EventType string

const (
	TokenIssued        EventType = "token_issued"
	TokenRotated       EventType = "token_rotated"
	TokenRevoked       EventType = "token_revoked"
	FamilyRevoked      EventType = "family_revoked"
	TokenReuseDetected EventType = "token_reuse_detected"
	CodeReplayed       EventType = "code_replayed"

	SignInSucceeded EventType = "signin_succeeded"
	SignInFailed    EventType = "signin_failed"
	AccountLocked   EventType = "account_locked"
	MFAFailed       EventType = "mfa_failed"
	PasskeyReplay   EventType = "passkey_replay"

	MFAEnrolled EventType = "mfa_enrolled"
	MFARemoved  EventType = "mfa_removed"

	ConsentGranted EventType = "consent_granted"
	ConsentDenied  EventType = "consent_denied"

	AccountsLinked       EventType = "accounts_linked"
	AccountUnlinked      EventType = "account_unlinked"
	ImpersonationGranted EventType = "impersonation_granted"

	SAMLLogin       EventType = "saml_login"
	UserProvisioned EventType = "user_provisioned"
)

// Security reports whether the event must stand out in logs.
func (t EventType) Security() bool {
	switch t {
	case TokenReuseDetected, CodeReplayed, AccountLocked, PasskeyReplay:
		return true
	}
	return false
}

type Event struct {
	Type     EventType
	UserID   string
	ClientID string
	IP       string
	Fields   map[string]any
	At       time.Time
}

// Sink consumes events. Emit must not fail the caller.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// Discard drops every event.
type Discard struct{}

func (Discard) Emit(context.Context, Event) {}

// Slog writes events through the request logger.
type Slog struct{}

func (Slog) Emit(ctx context.Context, e Event) {
	level := slog.LevelInfo
	if e.Type.Security() {
		level = slog.LevelWarn
	}
	attrs := []any{
		slog.String("event", string(e.Type)),
		slog.String("user_id", e.UserID),
		slog.String("client_id", e.ClientID),
		slog.String("ip", e.IP),
	}
	if len(e.Fields) > 0 {
		attrs = append(attrs, slog.Any("fields", e.Fields))
	}
	slogx.FromContext(ctx).Log(ctx, level, "audit", attrs...)
}

// Store persists events to the audit_logs table.
type Store struct {
	Store store.Store
}

func (s Store) Emit(ctx context.Context, e Event) {
	detail := "{}"
	if len(e.Fields) > 0 {
		if b, err := json.Marshal(e.Fields); err == nil {
			detail = string(b)
		}
	}
	// Audit rows must land even when the request was cancelled.
	ctx = context.WithoutCancel(ctx)
	err := s.Store.Audit().Append(ctx, store.AuditRecord{
		ID:        idx.New().String(),
		Type:      string(e.Type),
		UserID:    e.UserID,
		ClientID:  e.ClientID,
		IP:        e.IP,
		Detail:    detail,
		CreatedAt: e.At,
	})
	if err != nil {
		slogx.FromContext(ctx).Error("audit: persist event", "event", string(e.Type), "error", err)
	}
}

// Metrics counts events by type.
type Metrics struct {
	Metrics *metrics.Metrics
}

func (m Metrics) Emit(_ context.Context, e Event) {
	m.Metrics.AuditEvents.WithLabelValues(string(e.Type)).Inc()
	if e.Type == AccountLocked {
		m.Metrics.Lockouts.Inc()
	}
}

// Recorder keeps events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Has reports whether an event of type t was recorded.
func (r *Recorder) Has(t EventType) bool {
	return slices.ContainsFunc(r.Events(), func(e Event) bool { return e.Type == t })
}
