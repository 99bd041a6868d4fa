package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// TokenService mints access tokens and manages refresh token families.
type TokenService struct {
	Store     store.Store
	Ephemeral *ephemeral.Store
	Keys      *jwtx.KeyManager
	Hasher    *cryptox.Hasher
	Audit     audit.Sink
	Metrics   *metrics.Metrics

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	Now func() time.Time
}

// TokenPair is the result of a token request.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresIn    int
	Scopes       []string
}

// Grant is what a token is issued for. UserID is the canonical subject.
type Grant struct {
	UserID    string
	ClientID  string
	OrgID     string
	Scopes    []string
	AMR       []string
	SessionID string
	ActorID   string
	FamilyID  string
	GrantType string
}

// CodeRedemption is an authorization_code token request.
type CodeRedemption struct {
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
}

// RefreshRequest is a refresh_token token request. Scopes may narrow the
// access token; empty keeps the granted scopes.
type RefreshRequest struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	Scopes       []string
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *TokenService) emit(ctx context.Context, ev audit.Event) {
	if s.Audit != nil {
		ev.At = s.now()
		s.Audit.Emit(ctx, ev)
	}
}

func (s *TokenService) accessTTL() time.Duration {
	if s.AccessTTL > 0 {
		return s.AccessTTL
	}
	return jwtx.DefaultAccessTokenTTL
}

func (s *TokenService) refreshTTL() time.Duration {
	if s.RefreshTTL > 0 {
		return s.RefreshTTL
	}
	return jwtx.DefaultRefreshTokenTTL
}

// AuthenticateClient loads an enabled client. Confidential clients must
// present their secret; interactive clients must not send one.
func (s *TokenService) AuthenticateClient(ctx context.Context, clientID, secret string) (domain.Client, error) {
	if clientID == "" {
		return domain.Client{}, ErrInvalidClient
	}
	client, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Client, error) {
		return s.Store.Clients().Get(ctx, clientID)
	})
	if errors.Is(err, store.ErrNotFound) {
		// Burn the same time as a real secret check.
		_ = s.Hasher.VerifyOrDummy(secret, "")
		return domain.Client{}, ErrInvalidClient
	}
	if err != nil {
		return domain.Client{}, err
	}
	if !client.Enabled {
		return domain.Client{}, ErrInvalidClient
	}

	if !client.IsConfidential() {
		if secret != "" {
			return domain.Client{}, ErrInvalidClient
		}
		return client, nil
	}
	if secret == "" || s.Hasher.Verify(secret, client.SecretHash) != nil {
		return domain.Client{}, ErrInvalidClient
	}
	return client, nil
}

// IssueTokens signs an access token for g and, when offline_access was
// granted, starts or extends g.FamilyID with a new refresh token.
func (s *TokenService) IssueTokens(ctx context.Context, g Grant) (TokenPair, error) {
	if g.FamilyID == "" {
		g.FamilyID = idx.New().String()
	}
	pair, err := s.sign(g, g.Scopes)
	if err != nil {
		return TokenPair{}, err
	}

	if slices.Contains(g.Scopes, domain.ScopeOfflineAccess) {
		raw, rt, err := s.newRefreshToken(g, "")
		if err != nil {
			return TokenPair{}, err
		}
		if err := s.Store.RefreshTokens().Create(ctx, rt); err != nil {
			return TokenPair{}, fmt.Errorf("store refresh token: %w", err)
		}
		s.setHead(ctx, rt)
		pair.RefreshToken = raw
	}

	s.issued(ctx, g, audit.TokenIssued)
	return pair, nil
}

func (s *TokenService) sign(g Grant, scopes []string) (TokenPair, error) {
	claims := jwtx.NewAccessClaims(jwtx.AccessParams{
		Subject:  g.UserID,
		ClientID: g.ClientID,
		Org:      g.OrgID,
		Scopes:   scopes,
		AMR:      g.AMR,
		SID:      g.FamilyID,
		Actor:    g.ActorID,
		TTL:      s.accessTTL(),
		Issuer:   s.Issuer,
		Now:      s.now(),
	})
	access, err := s.Keys.Sign(claims)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	return TokenPair{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.accessTTL().Seconds()),
		Scopes:      scopes,
	}, nil
}

func (s *TokenService) newRefreshToken(g Grant, parentID string) (string, domain.RefreshToken, error) {
	raw, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", domain.RefreshToken{}, err
	}
	now := s.now()
	return raw, domain.RefreshToken{
		ID:        idx.New().String(),
		FamilyID:  g.FamilyID,
		ParentID:  parentID,
		TokenHash: cryptox.FingerprintToken(raw),
		UserID:    g.UserID,
		ClientID:  g.ClientID,
		OrgID:     g.OrgID,
		Scopes:    g.Scopes,
		AMR:       g.AMR,
		SessionID: g.SessionID,
		ActorID:   g.ActorID,
		ExpiresAt: now.Add(s.refreshTTL()),
		CreatedAt: now,
	}, nil
}

func (s *TokenService) setHead(ctx context.Context, rt domain.RefreshToken) {
	if err := s.Ephemeral.SetFamilyHead(ctx, rt.FamilyID, rt.ID, s.refreshTTL()); err != nil {
		slogx.FromContext(ctx).Warn("set family head", "family_id", rt.FamilyID, "error", err)
	}
}

// headAdvanced reports whether the family head already points past tok,
// meaning a concurrent rotation of tok has committed. Token ids sort by
// creation, so a head left behind by a failed write never rejects a live
// token; the conditional update stays authoritative.
func (s *TokenService) headAdvanced(ctx context.Context, tok domain.RefreshToken) bool {
	head, err := s.Ephemeral.FamilyHead(ctx, tok.FamilyID)
	if errors.Is(err, ephemeral.ErrNotFound) {
		return false
	}
	if err != nil {
		slogx.FromContext(ctx).Warn("read family head", "family_id", tok.FamilyID, "error", err)
		return false
	}
	return head > tok.ID
}

func (s *TokenService) issued(ctx context.Context, g Grant, ev audit.EventType) {
	if s.Metrics != nil {
		s.Metrics.TokensIssued.WithLabelValues(g.GrantType).Inc()
	}
	fields := map[string]any{"grant_type": g.GrantType, "family_id": g.FamilyID, "scopes": g.Scopes}
	if g.ActorID != "" {
		fields["actor_id"] = g.ActorID
	}
	s.emit(ctx, audit.Event{Type: ev, UserID: g.UserID, ClientID: g.ClientID, Fields: fields})
}

// RedeemCode exchanges an authorization code for tokens.
//
// The code is consumed atomically before anything else is checked, so a
// code presented with the wrong verifier is gone too. When two requests
// race for the same code, the loser gets ErrInvalidGrant and revokes the
// family issued to the winner; whichever side finishes second does the
// revocation.
func (s *TokenService) RedeemCode(ctx context.Context, r CodeRedemption) (TokenPair, error) {
	client, err := s.AuthenticateClient(ctx, r.ClientID, r.ClientSecret)
	if err != nil {
		return TokenPair{}, err
	}
	if r.Code == "" {
		return TokenPair{}, invalidField("code", "required")
	}

	hash := cryptox.FingerprintToken(r.Code)
	code, err := s.Ephemeral.ConsumeCode(ctx, hash)
	switch {
	case err == nil:
	case errors.Is(err, ephemeral.ErrNotFound):
		return TokenPair{}, ErrInvalidGrant
	case errors.Is(err, ephemeral.ErrReplayed):
		s.codeReplayed(ctx, hash, code)
		return TokenPair{}, ErrInvalidGrant
	default:
		return TokenPair{}, err
	}

	if code.ClientID != client.ID || code.RedirectURI != r.RedirectURI || code.Expired(s.now()) {
		return TokenPair{}, ErrInvalidGrant
	}
	if code.CodeChallenge != "" {
		if !authsdk.VerifyPKCE(code.CodeChallenge, code.CodeChallengeMethod, r.CodeVerifier) {
			return TokenPair{}, ErrInvalidGrant
		}
	} else if !client.IsConfidential() {
		return TokenPair{}, ErrInvalidGrant
	}

	g := Grant{
		UserID:    code.UserID,
		ClientID:  code.ClientID,
		OrgID:     code.OrgID,
		Scopes:    code.Scopes,
		AMR:       code.AMR,
		SessionID: code.SessionID,
		FamilyID:  idx.New().String(),
		GrantType: authsdk.GrantTypeAuthorizationCode,
	}
	pair, err := s.IssueTokens(ctx, g)
	if err != nil {
		return TokenPair{}, err
	}

	if err := s.Ephemeral.BindFamily(ctx, code, g.FamilyID); err != nil {
		s.revokeFamily(ctx, g.FamilyID, g.UserID, g.ClientID, "bind_failed")
		return TokenPair{}, err
	}
	replayed, err := s.Ephemeral.IsReplayed(ctx, hash)
	if err != nil || replayed {
		s.revokeFamily(ctx, g.FamilyID, g.UserID, g.ClientID, "code_replayed")
		if err != nil {
			return TokenPair{}, err
		}
		return TokenPair{}, ErrInvalidGrant
	}

	_, err = s.Ephemeral.UpdateFlow(ctx, code.SessionID, func(f *domain.FlowSession) error {
		return f.Transition(domain.FlowRedeemed)
	})
	switch {
	case err == nil:
		if err := s.Ephemeral.DeleteFlow(ctx, code.SessionID); err != nil {
			slogx.FromContext(ctx).Warn("drop redeemed flow", "error", err)
		}
	case !errors.Is(err, ephemeral.ErrNotFound):
		slogx.FromContext(ctx).Warn("mark flow redeemed", "error", err)
	}
	return pair, nil
}

// codeReplayed handles the losing side of a code race or a later replay.
func (s *TokenService) codeReplayed(ctx context.Context, hash string, code domain.AuthorizationCode) {
	if err := s.Ephemeral.MarkReplayed(ctx, code); err != nil {
		slogx.FromContext(ctx).Error("mark code replayed", "error", err)
	}
	s.emit(ctx, audit.Event{Type: audit.CodeReplayed, UserID: code.UserID, ClientID: code.ClientID})

	family, err := s.Ephemeral.DerivedFamily(ctx, hash)
	if errors.Is(err, ephemeral.ErrNotFound) {
		// The winner has not bound its family yet and will see the marker.
		return
	}
	if err != nil {
		slogx.FromContext(ctx).Error("lookup derived family", "error", err)
		return
	}
	s.revokeFamily(ctx, family, code.UserID, code.ClientID, "code_replayed")
}

// Rotate exchanges a refresh token for a new pair.
//
// Presenting a member that was already rotated is treated as theft: the
// whole family is revoked and ErrTokenReuseDetected returned. Rotation
// itself is a conditional update, so of two concurrent rotations of the
// same token exactly one succeeds; the other gets ErrInvalidGrant.
func (s *TokenService) Rotate(ctx context.Context, r RefreshRequest) (TokenPair, error) {
	client, err := s.AuthenticateClient(ctx, r.ClientID, r.ClientSecret)
	if err != nil {
		return TokenPair{}, err
	}
	if r.RefreshToken == "" {
		return TokenPair{}, invalidField("refresh_token", "required")
	}

	tok, err := store.RetryRead(ctx, func(ctx context.Context) (domain.RefreshToken, error) {
		return s.Store.RefreshTokens().GetByHash(ctx, cryptox.FingerprintToken(r.RefreshToken))
	})
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidGrant
	}
	if err != nil {
		return TokenPair{}, err
	}
	if tok.ClientID != client.ID || tok.IsRevoked() {
		return TokenPair{}, ErrInvalidGrant
	}
	if revoked, err := s.Ephemeral.FamilyRevoked(ctx, tok.FamilyID); err != nil {
		slogx.FromContext(ctx).Warn("check family marker", "family_id", tok.FamilyID, "error", err)
	} else if revoked {
		return TokenPair{}, ErrInvalidGrant
	}

	if tok.IsSuperseded() {
		s.emit(ctx, audit.Event{
			Type:     audit.TokenReuseDetected,
			UserID:   tok.UserID,
			ClientID: tok.ClientID,
			Fields:   map[string]any{"family_id": tok.FamilyID, "token_id": tok.ID},
		})
		s.revokeFamily(ctx, tok.FamilyID, tok.UserID, tok.ClientID, "reuse_detected")
		return TokenPair{}, ErrTokenReuseDetected
	}

	now := s.now()
	if tok.Expired(now) {
		return TokenPair{}, ErrInvalidGrant
	}
	scopes, err := policy.Narrow(tok.Scopes, policy.Dedupe(r.Scopes))
	if err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}

	g := Grant{
		UserID:    tok.UserID,
		ClientID:  tok.ClientID,
		OrgID:     tok.OrgID,
		Scopes:    tok.Scopes,
		AMR:       tok.AMR,
		SessionID: tok.SessionID,
		ActorID:   tok.ActorID,
		FamilyID:  tok.FamilyID,
		GrantType: authsdk.GrantTypeRefreshToken,
	}
	if s.headAdvanced(ctx, tok) {
		return TokenPair{}, ErrInvalidGrant
	}
	raw, child, err := s.newRefreshToken(g, tok.ID)
	if err != nil {
		return TokenPair{}, err
	}
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RefreshTokens().Supersede(ctx, tok.ID, child.ID, now); err != nil {
			return err
		}
		return tx.RefreshTokens().Create(ctx, child)
	})
	if errors.Is(err, store.ErrConflict) {
		return TokenPair{}, ErrInvalidGrant
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	s.setHead(ctx, child)

	pair, err := s.sign(g, scopes)
	if err != nil {
		return TokenPair{}, err
	}
	pair.RefreshToken = raw
	s.issued(ctx, g, audit.TokenRotated)
	return pair, nil
}

// Revoke revokes a refresh token or its whole family. Unknown tokens and
// tokens of other clients are ignored so callers learn nothing.
func (s *TokenService) Revoke(ctx context.Context, clientID, secret, token string, mode domain.RevokeMode) error {
	client, err := s.AuthenticateClient(ctx, clientID, secret)
	if err != nil {
		return err
	}
	tok, err := store.RetryRead(ctx, func(ctx context.Context) (domain.RefreshToken, error) {
		return s.Store.RefreshTokens().GetByHash(ctx, cryptox.FingerprintToken(token))
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if tok.ClientID != client.ID {
		return nil
	}

	if mode == domain.RevokeFamily {
		s.revokeFamily(ctx, tok.FamilyID, tok.UserID, tok.ClientID, "client_request")
		return nil
	}
	if err := s.Store.RefreshTokens().Revoke(ctx, tok.ID, s.now()); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	s.emit(ctx, audit.Event{
		Type:     audit.TokenRevoked,
		UserID:   tok.UserID,
		ClientID: tok.ClientID,
		Fields:   map[string]any{"token_id": tok.ID},
	})
	return nil
}

func (s *TokenService) revokeFamily(ctx context.Context, familyID, userID, clientID, reason string) {
	ctx = context.WithoutCancel(ctx)
	n, err := s.Store.RefreshTokens().RevokeFamily(ctx, familyID, s.now())
	if err != nil {
		slogx.FromContext(ctx).Error("revoke family", "family_id", familyID, "error", err)
	}
	if err := s.Ephemeral.MarkFamilyRevoked(ctx, familyID, s.refreshTTL()); err != nil {
		slogx.FromContext(ctx).Warn("mark family revoked", "family_id", familyID, "error", err)
	}
	s.emit(ctx, audit.Event{
		Type:     audit.FamilyRevoked,
		UserID:   userID,
		ClientID: clientID,
		Fields:   map[string]any{"family_id": familyID, "reason": reason, "revoked": n},
	})
}

// ClientCredentials issues an access token to a confidential client acting
// for itself. No refresh token is issued.
func (s *TokenService) ClientCredentials(ctx context.Context, clientID, secret string, scopes []string) (TokenPair, error) {
	client, err := s.AuthenticateClient(ctx, clientID, secret)
	if err != nil {
		return TokenPair{}, err
	}
	if !client.IsConfidential() {
		return TokenPair{}, ErrUnauthorizedClient
	}

	scopes = policy.Dedupe(scopes)
	if len(scopes) == 0 {
		scopes = slices.Clone(client.Scopes)
	}
	scopes = slices.DeleteFunc(scopes, func(s string) bool { return s == domain.ScopeOfflineAccess })
	catalog, err := store.RetryRead(ctx, func(ctx context.Context) (map[string]domain.Scope, error) {
		return s.Store.Scopes().GetMany(ctx, scopes)
	})
	if err != nil {
		return TokenPair{}, err
	}
	if err := policy.CheckClientScopes(client, scopes, catalog); err != nil {
		return TokenPair{}, fmt.Errorf("%w: %w", ErrInvalidScope, err)
	}

	return s.IssueTokens(ctx, Grant{
		UserID:    client.ID,
		ClientID:  client.ID,
		OrgID:     client.OrgID,
		Scopes:    scopes,
		GrantType: authsdk.GrantTypeClientCredentials,
	})
}

// RedeemImpersonation exchanges a single-use impersonation grant for an
// access token whose act claim names the acting user.
func (s *TokenService) RedeemImpersonation(ctx context.Context, clientID, secret, grant string) (TokenPair, error) {
	client, err := s.AuthenticateClient(ctx, clientID, secret)
	if err != nil {
		return TokenPair{}, err
	}
	if grant == "" {
		return TokenPair{}, invalidField("grant", "required")
	}

	g, err := s.Ephemeral.TakeGrant(ctx, cryptox.FingerprintToken(grant))
	if errors.Is(err, ephemeral.ErrNotFound) {
		return TokenPair{}, ErrInvalidGrant
	}
	if err != nil {
		return TokenPair{}, err
	}
	if g.ClientID != client.ID || !s.now().Before(g.ExpiresAt) {
		return TokenPair{}, ErrInvalidGrant
	}

	target, err := store.RetryRead(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().Get(ctx, g.TargetID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return TokenPair{}, ErrInvalidGrant
	}
	if err != nil {
		return TokenPair{}, err
	}

	return s.IssueTokens(ctx, Grant{
		UserID:    target.CanonicalID(),
		ClientID:  client.ID,
		OrgID:     client.OrgID,
		Scopes:    g.Scopes,
		ActorID:   g.ActorID,
		GrantType: authsdk.GrantTypeImpersonation,
	})
}

// Logout revokes the family of refreshToken, if it belongs to the client,
// and returns the post-logout redirect to follow. An empty redirect means
// the caller shows its own page.
func (s *TokenService) Logout(ctx context.Context, clientID, refreshToken, postLogoutRedirectURI string) (string, error) {
	client, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Client, error) {
		return s.Store.Clients().Get(ctx, clientID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidClient
	}
	if err != nil {
		return "", err
	}
	if postLogoutRedirectURI != "" && !client.AllowsPostLogoutRedirect(postLogoutRedirectURI) {
		return "", invalidField("post_logout_redirect_uri", "not registered for client")
	}

	if refreshToken = strings.TrimSpace(refreshToken); refreshToken != "" {
		tok, err := s.Store.RefreshTokens().GetByHash(ctx, cryptox.FingerprintToken(refreshToken))
		switch {
		case err == nil && tok.ClientID == client.ID:
			s.revokeFamily(ctx, tok.FamilyID, tok.UserID, tok.ClientID, "logout")
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return "", err
		}
	}
	return postLogoutRedirectURI, nil
}
