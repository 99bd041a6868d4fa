package http

import (
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// AuthorizeHandler serves the /authorize endpoints. The rendering layer
// posts each step back as JSON and shows whatever step comes next.
type AuthorizeHandler struct {
	Flows      *service.FlowService
	TrustProxy bool
}

// stepNames maps flow states to the step shown to the user.
var stepNames = map[domain.FlowStatus]string{
	domain.FlowCredentialCheck: authsdk.StepCredentials,
	domain.FlowMFARequired:     authsdk.StepMFA,
	domain.FlowConsentRequired: authsdk.StepConsent,
	domain.FlowCodeIssued:      authsdk.StepRedirect,
}

func stepResponse(s service.Step) authsdk.StepResponse {
	resp := authsdk.StepResponse{
		Session:          s.Session,
		Step:             stepNames[s.Status],
		ClientName:       s.ClientName,
		Locale:           s.Locale,
		Factor:           string(s.Factor),
		PasskeyChallenge: s.PasskeyChallenge,
		CodeSent:         s.CodeSent,
		Scopes:           s.Scopes,
		ReissueRecovery:  s.ReissueRecovery,
		RedirectTo:       s.RedirectTo,
	}
	for _, f := range s.Factors {
		resp.Factors = append(resp.Factors, string(f))
	}
	return resp
}

func writeStep(w http.ResponseWriter, s service.Step) {
	httpx.WriteJSON(w, http.StatusOK, stepResponse(s))
}

// HandleGet godoc
//
//	@Summary		Start authorization
//	@Description	Validates an authorization code request and opens a sign-in session.
//	@Description	Failures after the redirect URI is validated are sent back to the client with a 302.
//	@Tags			Authorize
//	@Produce		json
//	@Param			response_type			query		string					true	"Must be code"
//	@Param			client_id				query		string					true	"Client identifier"
//	@Param			redirect_uri			query		string					true	"Registered redirect URI"
//	@Param			scope					query		string					false	"Space-delimited scopes"
//	@Param			state					query		string					false	"Opaque client state"
//	@Param			code_challenge			query		string					false	"PKCE challenge (required for interactive clients)"
//	@Param			code_challenge_method	query		string					false	"S256"
//	@Param			org						query		string					false	"Organisation slug to sign in to"
//	@Param			ui_locales				query		string					false	"Preferred locale"
//	@Success		200						{object}	authsdk.StepResponse	"credentials step"
//	@Failure		302						{string}	string					"redirect with error to the client"
//	@Failure		400						{object}	authsdk.OAuth2Error		"error, error_description"
//	@Router			/authorize [get].
func (h *AuthorizeHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	step, err := h.Flows.StartAuthorize(r.Context(), service.AuthorizeRequest{
		ResponseType:        q.Get("response_type"),
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		Scope:               q.Get("scope"),
		State:               q.Get("state"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
		Org:                 q.Get("org"),
		Locale:              q.Get("ui_locales"),
		Nonce:               q.Get("nonce"),
	})
	if err != nil {
		redirectOrError(w, r, "authorize", err)
		return
	}
	writeStep(w, step)
}

// HandleCredentials godoc
//
//	@Summary		Submit credentials
//	@Description	Checks a username or email and password for the session.
//	@Tags			Authorize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.CredentialsRequest	true	"Session and credentials"
//	@Success		200		{object}	authsdk.StepResponse		"next step"
//	@Failure		400		{object}	authsdk.OAuth2Error			"error, error_description"
//	@Failure		401		{object}	authsdk.OAuth2Error			"invalid_credentials"
//	@Failure		429		{object}	authsdk.OAuth2Error			"account_locked"
//	@Router			/authorize/credentials [post].
func (h *AuthorizeHandler) HandleCredentials(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CredentialsRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	step, err := h.Flows.SubmitCredentials(r.Context(), req.Session, req.Identifier, req.Password, httpx.ClientIP(r, h.TrustProxy))
	if err != nil {
		writeError(w, r, "submit credentials", err)
		return
	}
	writeStep(w, step)
}

// HandleMFA godoc
//
//	@Summary		Complete the second factor
//	@Description	Verifies an email code, TOTP code, passkey assertion or recovery code.
//	@Tags			Authorize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.MFARequest		true	"Session and proof"
//	@Success		200		{object}	authsdk.StepResponse	"next step"
//	@Failure		400		{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401		{object}	authsdk.OAuth2Error		"mfa_failed"
//	@Failure		429		{object}	authsdk.OAuth2Error		"account_locked"
//	@Router			/authorize/mfa [post].
func (h *AuthorizeHandler) HandleMFA(w http.ResponseWriter, r *http.Request) {
	var req authsdk.MFARequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	proof, err := proofFrom(req)
	if err != nil {
		writeError(w, r, "complete mfa", err)
		return
	}
	step, err := h.Flows.CompleteMfa(r.Context(), req.Session, proof, httpx.ClientIP(r, h.TrustProxy))
	if err != nil {
		writeError(w, r, "complete mfa", err)
		return
	}
	writeStep(w, step)
}

// HandleSelectFactor godoc
//
//	@Summary		Select a second factor
//	@Description	Switches the MFA step to another offered factor. Selecting email_otp again resends the code.
//	@Tags			Authorize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.SelectFactorRequest	true	"Session and factor"
//	@Success		200		{object}	authsdk.StepResponse		"mfa step"
//	@Failure		400		{object}	authsdk.OAuth2Error			"error, error_description"
//	@Router			/authorize/mfa/select [post].
func (h *AuthorizeHandler) HandleSelectFactor(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SelectFactorRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	step, err := h.Flows.SelectFactor(r.Context(), req.Session, domain.FactorKind(req.Factor))
	if err != nil {
		writeError(w, r, "select factor", err)
		return
	}
	writeStep(w, step)
}

// HandleConsent godoc
//
//	@Summary		Approve or deny consent
//	@Description	Approves a subset of the requested scopes, or denies the request and returns access_denied to the client.
//	@Tags			Authorize
//	@Accept			json
//	@Produce		json
//	@Param			body	body		authsdk.ConsentRequest	true	"Session and decision"
//	@Success		200		{object}	authsdk.StepResponse	"redirect step"
//	@Failure		400		{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		403		{object}	authsdk.OAuth2Error		"access_denied with redirect_to"
//	@Router			/authorize/consent [post].
func (h *AuthorizeHandler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ConsentRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	switch req.Decision {
	case "approve":
		step, err := h.Flows.GrantConsent(r.Context(), req.Session, req.Scopes)
		if err != nil {
			writeError(w, r, "grant consent", err)
			return
		}
		writeStep(w, step)
	case "deny":
		writeError(w, r, "deny consent", h.Flows.DenyConsent(r.Context(), req.Session))
	default:
		authsdk.ErrInvalidRequest.WithFields(map[string]string{"decision": "must be approve or deny"}).WriteError(w)
	}
}

// proofFrom decodes the proof for req.Factor.
func proofFrom(req authsdk.MFARequest) (mfa.Proof, error) {
	switch domain.FactorKind(req.Factor) {
	case domain.FactorEmailOTP:
		return mfa.EmailOTPProof{Code: req.Code}, nil
	case domain.FactorTOTP:
		return mfa.TOTPProof{Code: req.Code}, nil
	case domain.FactorRecovery:
		return mfa.RecoveryCodeProof{Code: req.Code}, nil
	case domain.FactorPasskey:
		fields := map[string]string{}
		decode := func(name, v string) []byte {
			b, err := mfa.DecodeBase64URL(v)
			if err != nil || len(b) == 0 {
				fields[name] = "must be non-empty base64url"
			}
			return b
		}
		p := mfa.PasskeyProof{
			CredentialID:      req.CredentialID,
			AuthenticatorData: decode("authenticator_data", req.AuthenticatorData),
			ClientDataJSON:    decode("client_data_json", req.ClientDataJSON),
			Signature:         decode("signature", req.Signature),
		}
		if req.CredentialID == "" {
			fields["credential_id"] = "required"
		}
		if len(fields) > 0 {
			return nil, &service.RequestError{Fields: fields}
		}
		return p, nil
	default:
		return nil, &service.RequestError{Fields: map[string]string{"factor": "unknown factor"}}
	}
}
