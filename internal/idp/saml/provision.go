package saml

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// resolveUser maps an asserted subject to a user: an existing mapping
// first, then a user with the asserted email when the IdP links by email,
// then a new user when both the IdP and its org allow provisioning.
func (b *Bridge) resolveUser(ctx context.Context, idp domain.SAMLIdP, subject string, attrs map[string]string) (string, bool, error) {
	ident, err := store.RetryRead(ctx, func(ctx context.Context) (domain.SAMLIdentity, error) {
		return b.Store.SAML().GetIdentity(ctx, idp.ID, subject)
	})
	switch {
	case err == nil:
		if _, err := b.Store.Users().Get(ctx, ident.UserID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", false, ErrNoLocalUser
			}
			return "", false, err
		}
		return ident.UserID, false, nil
	case !errors.Is(err, store.ErrNotFound):
		return "", false, err
	}

	email := mapped(attrs, idp.Mapping.Email, "")
	if email == "" && strings.Contains(subject, "@") {
		email = subject
	}

	if idp.LinkByEmail && email != "" {
		u, err := b.Store.Users().GetByEmail(ctx, email)
		switch {
		case err == nil:
			if err := b.bind(ctx, idp.ID, subject, u.ID); err != nil {
				return "", false, err
			}
			return u.ID, false, nil
		case !errors.Is(err, store.ErrNotFound):
			return "", false, err
		}
	}

	if !idp.AutoProvision {
		return "", false, ErrNoLocalUser
	}
	org, err := b.Store.Orgs().Get(ctx, idp.OrgID)
	if err != nil {
		return "", false, fmt.Errorf("saml: load org %s: %w", idp.OrgID, err)
	}
	if !org.AllowPublicRegistration {
		return "", false, ErrNoLocalUser
	}

	now := b.now()
	u := domain.User{
		ID:            idx.New().String(),
		Username:      mapped(attrs, idp.Mapping.Username, subject),
		Email:         email,
		EmailVerified: email != "",
		Locale:        mapped(attrs, idp.Mapping.Locale, ""),
		OrgIDs:        []string{idp.OrgID},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if role := cmp.Or(idp.DefaultRoleID, org.DefaultRoleID); role != "" {
		u.RoleIDs = []string{role}
	}

	err = b.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, u); err != nil {
			return err
		}
		return tx.SAML().CreateIdentity(ctx, domain.SAMLIdentity{IdPID: idp.ID, Subject: subject, UserID: u.ID, CreatedAt: now})
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		// Username or email taken by an account the IdP may not claim.
		slogx.FromContext(ctx).Warn("saml: provisioning conflict", "idp", idp.Name, "subject", subject)
		return "", false, ErrNoLocalUser
	}
	if err != nil {
		return "", false, err
	}

	b.emit(ctx, audit.Event{
		Type:   audit.UserProvisioned,
		UserID: u.ID,
		Fields: map[string]any{"idp": idp.Name, "org_id": idp.OrgID},
	})
	return u.ID, true, nil
}

// bind records the subject mapping. A concurrent bind of the same subject
// is fine as long as it points at the same user.
func (b *Bridge) bind(ctx context.Context, idpID, subject, userID string) error {
	err := b.Store.SAML().CreateIdentity(ctx, domain.SAMLIdentity{IdPID: idpID, Subject: subject, UserID: userID, CreatedAt: b.now()})
	if !errors.Is(err, store.ErrAlreadyExists) {
		return err
	}
	existing, err := b.Store.SAML().GetIdentity(ctx, idpID, subject)
	if err != nil {
		return err
	}
	if existing.UserID != userID {
		return ErrNoLocalUser
	}
	return nil
}

func mapped(attrs map[string]string, name, fallback string) string {
	if name != "" {
		if v := attrs[name]; v != "" {
			return v
		}
	}
	return fallback
}
