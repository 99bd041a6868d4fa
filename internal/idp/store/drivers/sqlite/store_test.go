package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/internal/idp/store/drivers/sqlite"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.NewStore(sqlite.DSN(filepath.Join(t.TempDir(), "tollgate.db")))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s store.Store, username, email string) domain.User {
	t.Helper()
	u := domain.User{ID: idx.New().String(), Username: username, Email: email, EmailVerified: true, PasswordHash: "hash"}
	require.NoError(t, s.Users().Create(context.Background(), u))
	return u
}

func seedClient(t *testing.T, s store.Store, id string) domain.Client {
	t.Helper()
	c := domain.Client{
		ID:           id,
		Name:         id,
		Type:         domain.ClientInteractive,
		RedirectURIs: []string{"https://app.test/cb"},
		Scopes:       []string{"openid", "offline_access"},
		Enabled:      true,
	}
	require.NoError(t, s.Clients().Create(context.Background(), c))
	return c
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.ApplyMigrations())
}

func TestUsersLookup(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	org := domain.Org{ID: idx.New().String(), Slug: "acme", Name: "Acme"}
	require.NoError(t, s.Orgs().Create(ctx, org))
	role := domain.Role{ID: idx.New().String(), Name: "admin", Scopes: []string{"users:impersonate"}, Impersonator: true}
	require.NoError(t, s.Roles().Create(ctx, role))

	u := domain.User{
		ID: idx.New().String(), Username: "Alice", Email: "alice@example.com",
		OrgIDs: []string{org.ID}, RoleIDs: []string{role.ID},
	}
	require.NoError(t, s.Users().Create(ctx, u))

	got, err := s.Users().GetByLogin(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.MemberOf(org.ID))
	require.Equal(t, []string{role.ID}, got.RoleIDs)
	require.Empty(t, got.PasswordHash)

	got, err = s.Users().GetByLogin(ctx, "ALICE@example.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = s.Users().GetByLogin(ctx, "bob")
	require.ErrorIs(t, err, store.ErrNotFound)

	err = s.Users().Create(ctx, domain.User{ID: idx.New().String(), Username: "alice"})
	require.ErrorIs(t, err, store.ErrAlreadyExists)

	require.NoError(t, s.Users().SoftDelete(ctx, u.ID, time.Now()))
	_, err = s.Users().Get(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestUsersLink(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := seedUser(t, s, "a", "a@example.com")
	b := seedUser(t, s, "b", "b@example.com")
	c := seedUser(t, s, "c", "c@example.com")

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().Link(ctx, a.ID, b.ID, time.Now())
	}))

	gotA, err := s.Users().Get(ctx, a.ID)
	require.NoError(t, err)
	gotB, err := s.Users().Get(ctx, b.ID)
	require.NoError(t, err)
	require.True(t, gotA.Canonical)
	require.False(t, gotB.Canonical)
	require.Equal(t, a.ID, gotB.CanonicalID())

	// c is free but b is taken: nothing may change.
	err = s.WithTx(ctx, func(tx store.Tx) error {
		return tx.Users().Link(ctx, c.ID, b.ID, time.Now())
	})
	require.ErrorIs(t, err, store.ErrConflict)
	gotC, err := s.Users().Get(ctx, c.ID)
	require.NoError(t, err)
	require.False(t, gotC.IsLinked())

	require.NoError(t, s.Users().Unlink(ctx, b.ID, time.Now()))
	require.NoError(t, s.Users().Unlink(ctx, b.ID, time.Now()))
	gotA, err = s.Users().Get(ctx, a.ID)
	require.NoError(t, err)
	require.False(t, gotA.IsLinked())
}

func newRefresh(user, client, family string) domain.RefreshToken {
	id := idx.New().String()
	return domain.RefreshToken{
		ID: id, FamilyID: family, TokenHash: "hash-" + id, UserID: user, ClientID: client,
		Scopes: []string{"openid", "offline_access"}, AMR: []string{"pwd"}, SessionID: family,
		ExpiresAt: time.Now().Add(time.Hour), CreatedAt: time.Now(),
	}
}

func TestRefreshSupersedeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := seedUser(t, s, "u", "")
	seedClient(t, s, "app1")

	tok := newRefresh(u.ID, "app1", "fam")
	require.NoError(t, s.RefreshTokens().Create(ctx, tok))

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RefreshTokens().Supersede(ctx, tok.ID, "child-"+string(rune('a'+i)), time.Now())
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrConflict):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, 7, conflicts.Load())

	got, err := s.RefreshTokens().GetByHash(ctx, tok.TokenHash)
	require.NoError(t, err)
	require.True(t, got.IsSuperseded())
	require.NotEmpty(t, got.ReplacedBy)
}

func TestRefreshRevokeFamily(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := seedUser(t, s, "u", "")
	seedClient(t, s, "app1")

	a := newRefresh(u.ID, "app1", "fam")
	b := newRefresh(u.ID, "app1", "fam")
	b.ParentID = a.ID
	other := newRefresh(u.ID, "app1", "other")
	for _, tok := range []domain.RefreshToken{a, b, other} {
		require.NoError(t, s.RefreshTokens().Create(ctx, tok))
	}

	n, err := s.RefreshTokens().RevokeFamily(ctx, "fam", time.Now())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	n, err = s.RefreshTokens().RevokeFamily(ctx, "fam", time.Now())
	require.NoError(t, err)
	require.Zero(t, n)

	got, err := s.RefreshTokens().GetByHash(ctx, b.TokenHash)
	require.NoError(t, err)
	require.True(t, got.IsRevoked())
	require.Equal(t, a.ID, got.ParentID)

	// Revoked members can no longer be superseded.
	require.ErrorIs(t, s.RefreshTokens().Supersede(ctx, b.ID, "x", time.Now()), store.ErrConflict)

	got, err = s.RefreshTokens().GetByHash(ctx, other.TokenHash)
	require.NoError(t, err)
	require.False(t, got.IsRevoked())
}

func TestPasskeyCounterStrictlyIncreases(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := seedUser(t, s, "u", "")

	f := domain.Factor{
		ID: idx.New().String(), UserID: u.ID, Kind: domain.FactorPasskey,
		CredentialID: "cred-1", PublicKey: []byte{1, 2, 3}, SignCount: 5, Verified: true, CreatedAt: time.Now(),
	}
	require.NoError(t, s.Factors().Create(ctx, f))

	require.ErrorIs(t, s.Factors().AdvanceSignCount(ctx, f.ID, 5, time.Now()), store.ErrConflict)
	require.ErrorIs(t, s.Factors().AdvanceSignCount(ctx, f.ID, 4, time.Now()), store.ErrConflict)
	require.NoError(t, s.Factors().AdvanceSignCount(ctx, f.ID, 6, time.Now()))

	got, err := s.Factors().GetPasskey(ctx, u.ID, "cred-1")
	require.NoError(t, err)
	require.EqualValues(t, 6, got.SignCount)
	require.Equal(t, []byte{1, 2, 3}, got.PublicKey)

	require.NoError(t, s.Factors().Disable(ctx, f.ID))
	require.ErrorIs(t, s.Factors().AdvanceSignCount(ctx, f.ID, 7, time.Now()), store.ErrConflict)
}

func TestFactorPendingEnrollmentIsReplaced(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := seedUser(t, s, "u", "")

	first := domain.Factor{ID: idx.New().String(), UserID: u.ID, Kind: domain.FactorTOTP, Secret: "A", CreatedAt: time.Now()}
	require.NoError(t, s.Factors().Create(ctx, first))
	second := domain.Factor{ID: idx.New().String(), UserID: u.ID, Kind: domain.FactorTOTP, Secret: "B", CreatedAt: time.Now()}
	require.NoError(t, s.Factors().Create(ctx, second))
	require.NoError(t, s.Factors().MarkVerified(ctx, second.ID, time.Now()))

	third := domain.Factor{ID: idx.New().String(), UserID: u.ID, Kind: domain.FactorTOTP, Secret: "C", CreatedAt: time.Now()}
	require.ErrorIs(t, s.Factors().Create(ctx, third), store.ErrAlreadyExists)

	got, err := s.Factors().GetByKind(ctx, u.ID, domain.FactorTOTP)
	require.NoError(t, err)
	require.Equal(t, "B", got.Secret)
	require.True(t, got.Usable())

	n, err := s.Factors().DeleteKind(ctx, u.ID, domain.FactorTOTP)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRecoveryCodeSingleUse(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	u := seedUser(t, s, "u", "")

	require.NoError(t, s.RecoveryCodes().Replace(ctx, u.ID, []string{"h1", "h2", "h3"}, time.Now()))
	require.NoError(t, s.RecoveryCodes().Use(ctx, u.ID, "h2", time.Now()))
	require.ErrorIs(t, s.RecoveryCodes().Use(ctx, u.ID, "h2", time.Now()), store.ErrNotFound)

	n, err := s.RecoveryCodes().Remaining(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestSignInHistory(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	now := time.Now()

	for i, ip := range []string{"1.1.1.1", "1.1.1.1", "2.2.2.2"} {
		require.NoError(t, s.SignIns().Record(ctx, domain.SignInAttempt{
			ID: idx.New().String(), Subject: "alice", IP: ip, Method: domain.SignInPassword,
			Outcome: domain.OutcomeFailure, CreatedAt: now.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.SignIns().ListSince(ctx, "alice", "1.1.1.1", now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.True(t, got[0].CreatedAt.After(got[1].CreatedAt))

	n, err := s.SignIns().DeleteBefore(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 3, n)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().Create(ctx, domain.User{ID: idx.New().String(), Username: "ghost"}); err != nil {
			return err
		}
		require.ErrorIs(t, tx.WithTx(ctx, func(store.Tx) error { return nil }), sqlite.ErrSQLTxDone)
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Users().GetByLogin(ctx, "ghost")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSAMLAndConsent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	org := domain.Org{ID: idx.New().String(), Slug: "acme", Name: "Acme"}
	require.NoError(t, s.Orgs().Create(ctx, org))

	idp := domain.SAMLIdP{
		ID: idx.New().String(), OrgID: org.ID, Name: "okta", EntityID: "https://okta.test",
		SSOURL: "https://okta.test/sso", Certificate: "pem", Active: true,
		Mapping: domain.AttributeMapping{Email: "mail"},
	}
	require.NoError(t, s.SAML().CreateIdP(ctx, idp))

	got, err := s.SAML().GetIdPByEntityID(ctx, "https://okta.test")
	require.NoError(t, err)
	require.Equal(t, "mail", got.Mapping.Email)
	require.NoError(t, s.SAML().SetIdPActive(ctx, idp.ID, false))
	got, err = s.SAML().GetIdPByName(ctx, "okta")
	require.NoError(t, err)
	require.False(t, got.Active)

	u := seedUser(t, s, "u", "u@example.com")
	seedClient(t, s, "app1")
	require.NoError(t, s.Consents().Upsert(ctx, domain.Consent{UserID: u.ID, ClientID: "app1", Scopes: []string{"openid"}, UpdatedAt: time.Now()}))
	require.NoError(t, s.Consents().Upsert(ctx, domain.Consent{UserID: u.ID, ClientID: "app1", Scopes: []string{"openid", "email"}, UpdatedAt: time.Now()}))
	c, err := s.Consents().Get(ctx, u.ID, "app1")
	require.NoError(t, err)
	require.Equal(t, []string{"openid", "email"}, c.Scopes)
}
