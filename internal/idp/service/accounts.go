package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

const DefaultImpersonationTTL = 5 * time.Minute

// AccountService links accounts and hands out impersonation grants.
type AccountService struct {
	Store     store.Store
	Ephemeral *ephemeral.Store
	Audit     audit.Sink

	GrantTTL time.Duration
	Now      func() time.Time
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AccountService) emit(ctx context.Context, ev audit.Event) {
	if s.Audit != nil {
		ev.At = s.now()
		s.Audit.Emit(ctx, ev)
	}
}

func (s *AccountService) user(ctx context.Context, id string) (domain.User, error) {
	u, err := store.RetryRead(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().Get(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrNotFound
	}
	return u, err
}

// LinkAccounts joins secondary to primary. Both must be unlinked. From
// then on tokens for either account carry the primary's id, so refresh
// tokens already issued to the secondary are revoked.
func (s *AccountService) LinkAccounts(ctx context.Context, primaryID, secondaryID string) error {
	if primaryID == secondaryID {
		return invalidField("secondary", "cannot link an account to itself")
	}
	primary, err := s.user(ctx, primaryID)
	if err != nil {
		return err
	}
	secondary, err := s.user(ctx, secondaryID)
	if err != nil {
		return err
	}
	if primary.IsLinked() || secondary.IsLinked() {
		return ErrAlreadyLinked
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().Link(ctx, primary.ID, secondary.ID, now)
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return ErrAlreadyLinked
		}
		return fmt.Errorf("link accounts: %w", err)
	}

	n, err := s.Store.RefreshTokens().RevokeByUser(ctx, secondary.ID, now)
	if err != nil {
		slogx.FromContext(ctx).Error("revoke secondary tokens", "user_id", secondary.ID, "error", err)
	}
	s.emit(ctx, audit.Event{
		Type:   audit.AccountsLinked,
		UserID: primary.ID,
		Fields: map[string]any{"secondary_id": secondary.ID, "revoked_tokens": n},
	})
	return nil
}

// UnlinkAccount dissolves the link userID is part of. Unlinking a
// standalone account succeeds without doing anything.
func (s *AccountService) UnlinkAccount(ctx context.Context, userID string) error {
	u, err := s.user(ctx, userID)
	if err != nil {
		return err
	}
	if !u.IsLinked() {
		return nil
	}
	if err := s.Store.Users().Unlink(ctx, u.ID, s.now()); err != nil {
		return fmt.Errorf("unlink account: %w", err)
	}
	s.emit(ctx, audit.Event{
		Type:   audit.AccountUnlinked,
		UserID: u.ID,
		Fields: map[string]any{"partner_id": u.LinkedUserID},
	})
	return nil
}

// CreateImpersonationGrant lets actorID obtain tokens for targetID through
// clientID. It returns the grant and the single-use secret to redeem it
// with; only the secret's fingerprint is stored.
func (s *AccountService) CreateImpersonationGrant(ctx context.Context, actorID, targetID, clientID string) (domain.ImpersonationGrant, string, error) {
	actor, err := s.user(ctx, actorID)
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}
	target, err := s.user(ctx, targetID)
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}

	actorRoles, err := s.roles(ctx, actor)
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}
	targetRoles, err := s.roles(ctx, target)
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}
	if err := policy.CheckImpersonation(actor.CanonicalID(), actorRoles, target.CanonicalID(), targetRoles); err != nil {
		return domain.ImpersonationGrant{}, "", fmt.Errorf("%w: %w", ErrAccessDenied, err)
	}

	client, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Client, error) {
		return s.Store.Clients().Get(ctx, clientID)
	})
	if errors.Is(err, store.ErrNotFound) || (err == nil && !client.Enabled) {
		return domain.ImpersonationGrant{}, "", ErrInvalidClient
	}
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}
	scopes, err := policy.ImpersonationScopes(client.Scopes)
	if err != nil {
		return domain.ImpersonationGrant{}, "", fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.ImpersonationGrant{}, "", err
	}
	ttl := s.GrantTTL
	if ttl <= 0 {
		ttl = DefaultImpersonationTTL
	}
	g := domain.ImpersonationGrant{
		ID:        cryptox.FingerprintToken(secret),
		ActorID:   actor.CanonicalID(),
		TargetID:  target.ID,
		ClientID:  client.ID,
		Scopes:    scopes,
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.Ephemeral.PutGrant(ctx, g); err != nil {
		return domain.ImpersonationGrant{}, "", fmt.Errorf("store impersonation grant: %w", err)
	}

	s.emit(ctx, audit.Event{
		Type:     audit.ImpersonationGranted,
		UserID:   g.ActorID,
		ClientID: client.ID,
		Fields:   map[string]any{"target_id": target.ID, "scopes": scopes},
	})
	return g, secret, nil
}

// roles returns the roles of u's canonical account.
func (s *AccountService) roles(ctx context.Context, u domain.User) ([]domain.Role, error) {
	if u.CanonicalID() != u.ID {
		canonical, err := s.user(ctx, u.CanonicalID())
		if err != nil {
			return nil, err
		}
		u = canonical
	}
	return store.RetryRead(ctx, func(ctx context.Context) ([]domain.Role, error) {
		return s.Store.Roles().ListByIDs(ctx, u.RoleIDs)
	})
}
