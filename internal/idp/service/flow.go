package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/audit"
	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/ephemeral"
	"github.com/aussiebroadwan/tollgate/internal/idp/metrics"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/policy"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/cryptox"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

const (
	DefaultFlowTTL = 15 * time.Minute
	DefaultCodeTTL = 5 * time.Minute

	pkceChallengeLen = 43
)

// FlowService drives /authorize sessions from the first request to the
// issued authorization code.
type FlowService struct {
	Store     store.Store
	Ephemeral *ephemeral.Store
	MFA       *mfa.Engine
	SAML      *saml.Bridge
	Hasher    *cryptox.Hasher
	Audit     audit.Sink
	Metrics   *metrics.Metrics

	Lockout policy.LockoutPolicy
	FlowTTL time.Duration
	CodeTTL time.Duration

	Now func() time.Time
}

// AuthorizeRequest is the query of GET /authorize.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string
	Org                 string
	Locale              string
	Nonce               string
}

// Step tells the rendering layer what to show next. RedirectTo is set once
// the flow has a result for the client.
type Step struct {
	Session          string
	Status           domain.FlowStatus
	ClientName       string
	Locale           string
	Factors          []domain.FactorKind
	Factor           domain.FactorKind
	PasskeyChallenge string
	CodeSent         bool
	Scopes           []string
	ReissueRecovery  bool
	RedirectTo       string
}

func (s *FlowService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *FlowService) emit(ctx context.Context, ev audit.Event) {
	if s.Audit != nil {
		ev.At = s.now()
		s.Audit.Emit(ctx, ev)
	}
}

func (s *FlowService) flowTTL() time.Duration {
	if s.FlowTTL > 0 {
		return s.FlowTTL
	}
	return DefaultFlowTTL
}

func (s *FlowService) codeTTL() time.Duration {
	if s.CodeTTL > 0 {
		return s.CodeTTL
	}
	return DefaultCodeTTL
}

func (s *FlowService) lockout() policy.LockoutPolicy {
	if s.Lockout.Threshold > 0 {
		return s.Lockout
	}
	return policy.DefaultLockoutPolicy()
}

// StartAuthorize validates an authorization request and opens a flow
// session waiting for credentials.
//
// Until the client and redirect URI are known to be valid, failures are
// returned as plain errors and must be shown to the user. Everything after
// that is a *RedirectError so the client learns about it.
func (s *FlowService) StartAuthorize(ctx context.Context, req AuthorizeRequest) (Step, error) {
	if req.ClientID == "" {
		return Step{}, invalidField("client_id", "required")
	}
	if req.RedirectURI == "" {
		return Step{}, invalidField("redirect_uri", "required")
	}

	client, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Client, error) {
		return s.Store.Clients().Get(ctx, req.ClientID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return Step{}, ErrInvalidClient
	}
	if err != nil {
		return Step{}, err
	}
	if !client.Enabled {
		return Step{}, ErrInvalidClient
	}
	if !client.AllowsRedirect(req.RedirectURI) {
		return Step{}, invalidField("redirect_uri", "not registered for client")
	}

	redirect := func(err error) error {
		return &RedirectError{Err: err, RedirectURI: req.RedirectURI, State: req.State}
	}

	if req.ResponseType != "code" {
		return Step{}, redirect(ErrUnsupportedResponseType)
	}
	challenge, method, err := checkPKCE(client, req.CodeChallenge, req.CodeChallengeMethod)
	if err != nil {
		return Step{}, redirect(err)
	}

	scopes := policy.Dedupe(strings.Fields(req.Scope))
	if len(scopes) == 0 {
		scopes = slices.Clone(client.Scopes)
	}
	catalog, err := store.RetryRead(ctx, func(ctx context.Context) (map[string]domain.Scope, error) {
		return s.Store.Scopes().GetMany(ctx, scopes)
	})
	if err != nil {
		return Step{}, err
	}
	if err := policy.CheckClientScopes(client, scopes, catalog); err != nil {
		return Step{}, redirect(fmt.Errorf("%w: %w", ErrInvalidScope, err))
	}

	orgID := client.OrgID
	if req.Org != "" {
		org, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Org, error) {
			return s.Store.Orgs().GetBySlug(ctx, req.Org)
		})
		if errors.Is(err, store.ErrNotFound) {
			return Step{}, redirect(invalidField("org", "unknown organization"))
		}
		if err != nil {
			return Step{}, err
		}
		orgID = org.ID
	}

	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return Step{}, err
	}
	now := s.now()
	f := domain.FlowSession{
		ID:                  id,
		Status:              domain.FlowInitiated,
		ClientID:            client.ID,
		RedirectURI:         req.RedirectURI,
		State:               req.State,
		RequestedScopes:     scopes,
		CodeChallenge:       challenge,
		CodeChallengeMethod: method,
		Locale:              req.Locale,
		OrgID:               orgID,
		Nonce:               req.Nonce,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.flowTTL()),
	}
	if err := f.Transition(domain.FlowCredentialCheck); err != nil {
		return Step{}, err
	}
	if err := s.Ephemeral.CreateFlow(ctx, f); err != nil {
		return Step{}, fmt.Errorf("create flow: %w", err)
	}

	slogx.FromContext(ctx).Debug("authorize flow started", "client_id", client.ID, "org_id", orgID)
	return Step{Session: f.ID, Status: f.Status, ClientName: client.Name, Locale: f.Locale, Scopes: scopes}, nil
}

// checkPKCE requires an S256 challenge from interactive clients.
// Confidential clients may omit it and authenticate with their secret.
func checkPKCE(client domain.Client, challenge, method string) (string, string, error) {
	if challenge == "" {
		if client.IsConfidential() && method == "" {
			return "", "", nil
		}
		return "", "", invalidField("code_challenge", "required")
	}
	if method == "" {
		method = authsdk.PKCEMethodS256
	}
	if method != authsdk.PKCEMethodS256 {
		return "", "", invalidField("code_challenge_method", "only S256 is supported")
	}
	if len(challenge) != pkceChallengeLen {
		return "", "", invalidField("code_challenge", "malformed")
	}
	return challenge, method, nil
}

// SubmitCredentials checks identifier and password for a flow waiting for
// credentials. Unknown users, wrong passwords and non-members of the
// flow's org all fail with ErrInvalidCredentials and count towards the
// lockout at ip. Known users are locked by id whichever login names them;
// unknown identifiers are locked by their normalised form.
func (s *FlowService) SubmitCredentials(ctx context.Context, sessionID, identifier, password, ip string) (Step, error) {
	f, err := s.load(ctx, sessionID, domain.FlowCredentialCheck)
	if err != nil {
		return Step{}, err
	}
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return Step{}, &RequestError{Fields: map[string]string{"identifier": "required", "password": "required"}}
	}

	user, err := store.RetryRead(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().GetByLogin(ctx, identifier)
	})
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Step{}, err
	}

	subject := lockoutSubject(identifier)
	if found {
		subject = user.ID
	}
	locked, err := s.isLocked(ctx, subject, ip)
	if err != nil {
		return Step{}, err
	}
	if locked {
		return Step{}, s.lockFlow(ctx, f, subject, user.ID, ip, domain.SignInPassword)
	}

	verr := s.Hasher.VerifyOrDummy(password, user.PasswordHash)
	if verr != nil || !found || !user.IsActive() || (f.OrgID != "" && !user.MemberOf(f.OrgID)) {
		return Step{}, s.fail(ctx, f, subject, user.ID, ip, domain.SignInPassword, ErrInvalidCredentials)
	}

	s.succeed(ctx, subject, user.ID, ip, domain.SignInPassword)
	return s.afterPrimary(ctx, f, user, []string{domain.AMRPassword}, subject, ip)
}

// CompleteMfa verifies a factor proof for a flow waiting for MFA. Every
// factor failure is reported as ErrMFAFailed and shares the credential
// lockout counter.
func (s *FlowService) CompleteMfa(ctx context.Context, sessionID string, proof mfa.Proof, ip string) (Step, error) {
	f, err := s.load(ctx, sessionID, domain.FlowMFARequired)
	if err != nil {
		return Step{}, err
	}

	locked, err := s.isLocked(ctx, f.LockoutSubject, ip)
	if err != nil {
		return Step{}, err
	}
	if locked {
		return Step{}, s.lockFlow(ctx, f, f.LockoutSubject, f.UserID, ip, domain.SignInMFA)
	}

	user, err := s.user(ctx, f.UserID)
	if err != nil {
		return Step{}, err
	}

	kind := proof.Kind()
	var res mfa.Result
	verr := mfa.ErrUnsupportedProof
	if slices.Contains(f.Factors, kind) {
		res, verr = s.MFA.Verify(ctx, mfa.Subject{UserID: user.ID, Email: verifiedEmail(user), Challenge: f.PasskeyChallenge}, proof)
	}
	if verr != nil {
		if errors.Is(verr, store.ErrTransient) {
			return Step{}, verr
		}
		s.countMFA(kind, "failure")
		s.emit(ctx, audit.Event{
			Type:     audit.MFAFailed,
			UserID:   user.ID,
			ClientID: f.ClientID,
			IP:       ip,
			Fields:   map[string]any{"factor": string(kind), "reason": verr.Error()},
		})
		return Step{}, s.fail(ctx, f, f.LockoutSubject, user.ID, ip, domain.SignInMFA, ErrMFAFailed)
	}

	s.countMFA(kind, "success")
	s.succeed(ctx, f.LockoutSubject, user.ID, ip, domain.SignInMFA)

	f.AMR = policy.Dedupe(append(f.AMR, res.AMR, domain.AMRMFA))
	f.PasskeyChallenge = ""
	step, err := s.proceed(ctx, f, user)
	if err != nil {
		return Step{}, err
	}
	step.ReissueRecovery = res.ReissueRecovery
	return step, nil
}

// SelectFactor switches the active factor of a flow waiting for MFA. Email
// OTP sends a fresh code, passkeys get a fresh challenge. Selecting email
// OTP again is how a lost code is resent.
func (s *FlowService) SelectFactor(ctx context.Context, sessionID string, kind domain.FactorKind) (Step, error) {
	f, err := s.load(ctx, sessionID, domain.FlowMFARequired)
	if err != nil {
		return Step{}, err
	}
	if !slices.Contains(f.Factors, kind) {
		return Step{}, invalidField("factor", "not offered for this sign-in")
	}

	f.Factor = kind
	if kind == domain.FactorPasskey {
		if f.PasskeyChallenge, err = mfa.NewPasskeyChallenge(); err != nil {
			return Step{}, err
		}
	}
	if f, err = s.save(ctx, f, domain.FlowMFARequired); err != nil {
		return Step{}, err
	}

	sent := false
	if kind == domain.FactorEmailOTP {
		user, err := s.user(ctx, f.UserID)
		if err != nil {
			return Step{}, err
		}
		sent = s.sendCode(ctx, user)
	}
	return mfaStep(f, sent), nil
}

// GrantConsent records the approved scopes and issues the authorization
// code. approved must be a non-empty subset of what the client requested;
// the stored consent grows to the union of old and new approvals.
func (s *FlowService) GrantConsent(ctx context.Context, sessionID string, approved []string) (Step, error) {
	f, err := s.load(ctx, sessionID, domain.FlowConsentRequired)
	if err != nil {
		return Step{}, err
	}
	approved = policy.Dedupe(approved)
	if err := policy.CheckApproval(f.RequestedScopes, approved); err != nil {
		return Step{}, invalidField("scopes", err.Error())
	}

	user, err := s.user(ctx, f.UserID)
	if err != nil {
		return Step{}, err
	}
	subject := user.CanonicalID()

	existing, err := s.consent(ctx, subject, f.ClientID)
	if err != nil {
		return Step{}, err
	}
	merged := approved
	if existing != nil {
		merged = policy.Dedupe(append(slices.Clone(existing.Scopes), approved...))
	}
	now := s.now()
	if err := s.Store.Consents().Upsert(ctx, domain.Consent{UserID: subject, ClientID: f.ClientID, Scopes: merged, UpdatedAt: now}); err != nil {
		return Step{}, fmt.Errorf("store consent: %w", err)
	}
	s.emit(ctx, audit.Event{
		Type:     audit.ConsentGranted,
		UserID:   subject,
		ClientID: f.ClientID,
		Fields:   map[string]any{"scopes": approved},
	})

	return s.issueCode(ctx, f, subject, approved)
}

// DenyConsent ends the flow and reports access_denied to the client.
func (s *FlowService) DenyConsent(ctx context.Context, sessionID string) error {
	f, err := s.load(ctx, sessionID, domain.FlowConsentRequired)
	if err != nil {
		return err
	}
	s.emit(ctx, audit.Event{Type: audit.ConsentDenied, UserID: f.UserID, ClientID: f.ClientID})
	return s.terminate(ctx, f, domain.FlowDenied, ErrAccessDenied)
}

// StartSAML hands a flow waiting for credentials to an external IdP and
// returns the URL to send the browser to.
func (s *FlowService) StartSAML(ctx context.Context, sessionID, idpName string) (string, error) {
	f, err := s.load(ctx, sessionID, domain.FlowCredentialCheck)
	if err != nil {
		return "", err
	}
	target, err := s.SAML.InitiateSPLogin(ctx, idpName, f.ID)
	if err != nil {
		return "", err
	}
	f.ExternalIdP = idpName
	if _, err := s.save(ctx, f, domain.FlowCredentialCheck); err != nil {
		return "", err
	}
	return target, nil
}

// CompleteSAML consumes a posted SAML response and resumes its flow at the
// point a password sign-in would have reached. MFA and consent still
// apply.
func (s *FlowService) CompleteSAML(ctx context.Context, samlResponse, relayState, ip string) (Step, error) {
	login, err := s.SAML.ConsumeAssertion(ctx, samlResponse, relayState)
	if err != nil {
		return Step{}, err
	}
	f, err := s.load(ctx, login.FlowID, domain.FlowCredentialCheck)
	if err != nil {
		return Step{}, err
	}
	user, err := s.user(ctx, login.UserID)
	if err != nil {
		return Step{}, err
	}
	if f.OrgID != "" && (login.IdP.OrgID != f.OrgID || !user.MemberOf(f.OrgID)) {
		slogx.FromContext(ctx).Warn("saml login outside flow org", "idp", login.IdP.Name, "org_id", f.OrgID)
		return Step{}, s.terminate(ctx, f, domain.FlowDenied, ErrAccessDenied)
	}

	s.succeed(ctx, user.ID, user.ID, ip, domain.SignInSAML)
	f.ExternalIdP = login.IdP.Name
	return s.afterPrimary(ctx, f, user, []string{domain.AMRSAML}, user.ID, ip)
}

// afterPrimary decides whether the user must present a second factor. f
// is still in credential_check.
func (s *FlowService) afterPrimary(ctx context.Context, f domain.FlowSession, user domain.User, amr []string, subject, ip string) (Step, error) {
	f.UserID = user.ID
	f.AMR = amr
	f.LockoutSubject = subject
	f.IP = ip

	decision, err := s.decideMFA(ctx, f, user)
	if err != nil {
		return Step{}, err
	}
	if !decision.Satisfiable() {
		slogx.FromContext(ctx).Warn("mfa required but no factor available", "user_id", user.ID, "client_id", f.ClientID)
		return Step{}, s.terminate(ctx, f, domain.FlowDenied, ErrAccessDenied)
	}
	if !decision.Required {
		return s.proceed(ctx, f, user)
	}

	from := f.Status
	f.Factors = decision.Factors
	f.Factor = decision.Factors[0]
	if slices.Contains(f.Factors, domain.FactorPasskey) {
		if f.PasskeyChallenge, err = mfa.NewPasskeyChallenge(); err != nil {
			return Step{}, err
		}
	}
	if err := f.Transition(domain.FlowMFARequired); err != nil {
		return Step{}, err
	}
	if f, err = s.save(ctx, f, from); err != nil {
		return Step{}, err
	}

	sent := false
	if f.Factor == domain.FactorEmailOTP {
		sent = s.sendCode(ctx, user)
	}
	return mfaStep(f, sent), nil
}

func (s *FlowService) decideMFA(ctx context.Context, f domain.FlowSession, user domain.User) (policy.MFADecision, error) {
	client, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Client, error) {
		return s.Store.Clients().Get(ctx, f.ClientID)
	})
	if err != nil {
		return policy.MFADecision{}, err
	}
	in := policy.MFAInput{ClientRequiresMFA: client.RequireMFA, EmailVerified: user.EmailVerified}

	if f.OrgID != "" {
		org, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Org, error) {
			return s.Store.Orgs().Get(ctx, f.OrgID)
		})
		if err != nil {
			return policy.MFADecision{}, err
		}
		in.OrgRequiresMFA = org.RequireMFA
	}

	if in.Factors, err = store.RetryRead(ctx, func(ctx context.Context) ([]domain.Factor, error) {
		return s.Store.Factors().ListByUser(ctx, user.ID)
	}); err != nil {
		return policy.MFADecision{}, err
	}
	if in.RecoveryRemaining, err = store.RetryRead(ctx, func(ctx context.Context) (int, error) {
		return s.Store.RecoveryCodes().Remaining(ctx, user.ID)
	}); err != nil {
		return policy.MFADecision{}, err
	}
	return policy.DecideMFA(in), nil
}

// proceed runs the steps after authentication: role checks on restricted
// scopes, then consent, then the code. f is in credential_check or
// mfa_required with the user fields set.
func (s *FlowService) proceed(ctx context.Context, f domain.FlowSession, user domain.User) (Step, error) {
	canonical, err := s.canonicalUser(ctx, user)
	if err != nil {
		return Step{}, err
	}

	roles, err := store.RetryRead(ctx, func(ctx context.Context) ([]domain.Role, error) {
		return s.Store.Roles().ListByIDs(ctx, canonical.RoleIDs)
	})
	if err != nil {
		return Step{}, err
	}
	catalog, err := store.RetryRead(ctx, func(ctx context.Context) (map[string]domain.Scope, error) {
		return s.Store.Scopes().GetMany(ctx, f.RequestedScopes)
	})
	if err != nil {
		return Step{}, err
	}
	if err := policy.CheckRoleScopes(f.RequestedScopes, catalog, roles); err != nil {
		slogx.FromContext(ctx).Info("restricted scope refused", "user_id", canonical.ID, "error", err)
		return Step{}, s.terminate(ctx, f, domain.FlowDenied, ErrInvalidScope)
	}

	existing, err := s.consent(ctx, canonical.ID, f.ClientID)
	if err != nil {
		return Step{}, err
	}
	if !policy.ConsentRequired(existing, f.RequestedScopes) {
		return s.issueCode(ctx, f, canonical.ID, f.RequestedScopes)
	}

	from := f.Status
	if err := f.Transition(domain.FlowConsentRequired); err != nil {
		return Step{}, err
	}
	if f, err = s.save(ctx, f, from); err != nil {
		return Step{}, err
	}
	return Step{Session: f.ID, Status: f.Status, Locale: f.Locale, Scopes: f.RequestedScopes}, nil
}

// issueCode moves f to code_issued and stores the single-use code. The
// status change happens first so two racing requests cannot both get a
// code.
func (s *FlowService) issueCode(ctx context.Context, f domain.FlowSession, subject string, scopes []string) (Step, error) {
	code, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return Step{}, err
	}

	from := f.Status
	f.GrantedScopes = scopes
	if err := f.Transition(domain.FlowCodeIssued); err != nil {
		return Step{}, err
	}
	if f, err = s.save(ctx, f, from); err != nil {
		return Step{}, err
	}

	err = s.Ephemeral.PutCode(ctx, domain.AuthorizationCode{
		Hash:                cryptox.FingerprintToken(code),
		ClientID:            f.ClientID,
		UserID:              subject,
		RedirectURI:         f.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       f.CodeChallenge,
		CodeChallengeMethod: f.CodeChallengeMethod,
		AMR:                 f.AMR,
		OrgID:               f.OrgID,
		SessionID:           f.ID,
		ExpiresAt:           s.now().Add(s.codeTTL()),
	})
	if err != nil {
		return Step{}, fmt.Errorf("store authorization code: %w", err)
	}

	s.emit(ctx, audit.Event{
		Type:     audit.SignInSucceeded,
		UserID:   subject,
		ClientID: f.ClientID,
		IP:       f.IP,
		Fields:   map[string]any{"amr": f.AMR, "scopes": scopes},
	})
	return Step{
		Session:    f.ID,
		Status:     f.Status,
		Locale:     f.Locale,
		Scopes:     scopes,
		RedirectTo: withQuery(f.RedirectURI, url.Values{"code": {code}, "state": {f.State}}),
	}, nil
}

func mfaStep(f domain.FlowSession, codeSent bool) Step {
	return Step{
		Session:          f.ID,
		Status:           f.Status,
		Locale:           f.Locale,
		Factors:          f.Factors,
		Factor:           f.Factor,
		PasskeyChallenge: f.PasskeyChallenge,
		CodeSent:         codeSent,
	}
}

func (s *FlowService) sendCode(ctx context.Context, user domain.User) bool {
	if err := s.MFA.SendEmailOTP(ctx, user.ID, verifiedEmail(user), mfa.PurposeLogin); err != nil {
		slogx.FromContext(ctx).Warn("send login code", "user_id", user.ID, "error", err)
		return false
	}
	return true
}

// load returns the flow if it is live and in status want. Unknown,
// expired, finished and out of order sessions look the same to callers.
func (s *FlowService) load(ctx context.Context, id string, want domain.FlowStatus) (domain.FlowSession, error) {
	if id == "" {
		return domain.FlowSession{}, ErrInvalidSession
	}
	f, err := store.RetryRead(ctx, func(ctx context.Context) (domain.FlowSession, error) {
		return s.Ephemeral.GetFlow(ctx, id)
	})
	if errors.Is(err, ephemeral.ErrNotFound) {
		return domain.FlowSession{}, ErrInvalidSession
	}
	if err != nil {
		return domain.FlowSession{}, err
	}
	if f.Expired(s.now()) {
		_, _ = s.Ephemeral.UpdateFlow(ctx, id, func(f *domain.FlowSession) error {
			return f.Transition(domain.FlowExpired)
		})
		return domain.FlowSession{}, ErrInvalidSession
	}
	if f.Status != want {
		return domain.FlowSession{}, ErrInvalidSession
	}
	return f, nil
}

// save replaces the stored session with f if it is still in status from.
func (s *FlowService) save(ctx context.Context, f domain.FlowSession, from domain.FlowStatus) (domain.FlowSession, error) {
	out, err := s.Ephemeral.UpdateFlow(ctx, f.ID, func(cur *domain.FlowSession) error {
		if cur.Status != from {
			return ErrInvalidSession
		}
		*cur = f
		return nil
	})
	switch {
	case err == nil:
		return out, nil
	case errors.Is(err, ephemeral.ErrNotFound):
		return domain.FlowSession{}, ErrInvalidSession
	case errors.Is(err, ephemeral.ErrConflict):
		return domain.FlowSession{}, fmt.Errorf("%w: flow %s contended", ErrTransient, f.ID)
	default:
		return domain.FlowSession{}, err
	}
}

// terminate moves f into a terminal status and returns cause as a
// redirect to the client.
func (s *FlowService) terminate(ctx context.Context, f domain.FlowSession, status domain.FlowStatus, cause error) error {
	_, err := s.Ephemeral.UpdateFlow(ctx, f.ID, func(cur *domain.FlowSession) error {
		return cur.Transition(status)
	})
	if err != nil {
		slogx.FromContext(ctx).Warn("terminate flow", "status", string(status), "error", err)
	}
	return &RedirectError{Err: cause, RedirectURI: f.RedirectURI, State: f.State}
}

func (s *FlowService) user(ctx context.Context, id string) (domain.User, error) {
	u, err := store.RetryRead(ctx, func(ctx context.Context) (domain.User, error) {
		return s.Store.Users().Get(ctx, id)
	})
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrInvalidSession
	}
	return u, err
}

// canonicalUser returns the account tokens are issued for: the primary of
// a link, or user itself.
func (s *FlowService) canonicalUser(ctx context.Context, user domain.User) (domain.User, error) {
	if user.CanonicalID() == user.ID {
		return user, nil
	}
	return s.user(ctx, user.CanonicalID())
}

func (s *FlowService) consent(ctx context.Context, userID, clientID string) (*domain.Consent, error) {
	c, err := store.RetryRead(ctx, func(ctx context.Context) (domain.Consent, error) {
		return s.Store.Consents().Get(ctx, userID, clientID)
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *FlowService) countMFA(kind domain.FactorKind, result string) {
	if s.Metrics != nil {
		s.Metrics.MFAResults.WithLabelValues(string(kind), result).Inc()
	}
}

func verifiedEmail(u domain.User) string {
	if u.EmailVerified {
		return u.Email
	}
	return ""
}

// lockoutSubject keys an identifier that matched no user. The prefix keeps
// it apart from user ids.
func lockoutSubject(identifier string) string {
	return "login:" + strings.ToLower(strings.TrimSpace(identifier))
}

func withQuery(base string, q url.Values) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	merged := u.Query()
	for k, vs := range q {
		if len(vs) == 1 && vs[0] == "" {
			continue
		}
		merged[k] = vs
	}
	u.RawQuery = merged.Encode()
	return u.String()
}
