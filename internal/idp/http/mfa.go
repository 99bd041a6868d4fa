package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// MFAHandler lets a signed-in user manage their own factors.
type MFAHandler struct {
	Factors *mfa.Manager
	Store   store.Store
}

// caller loads the user the bearer token was issued to. Impersonated
// tokens cannot manage factors.
func (h *MFAHandler) caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	claims, _ := httpx.ClaimsFrom(r.Context())
	if claims.Act != nil {
		authsdk.ErrAccessDenied.WithDescription("impersonated sessions cannot manage factors").WriteError(w)
		return domain.User{}, false
	}
	u, err := h.Store.Users().Get(r.Context(), claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		authsdk.ErrAccessDenied.WriteError(w)
		return domain.User{}, false
	}
	if err != nil {
		writeError(w, r, "load user", err)
		return domain.User{}, false
	}
	return u, true
}

func enrollResponse(e mfa.Enrollment) authsdk.MFAEnrollResponse {
	return authsdk.MFAEnrollResponse{
		Factor:        string(e.Kind),
		Secret:        e.Secret,
		OTPAuthURI:    e.URI,
		Challenge:     e.Challenge,
		CodeSent:      e.CodeSent,
		RecoveryCodes: e.RecoveryCodes,
	}
}

// HandleStatus godoc
//
//	@Summary		List enrolled factors
//	@Tags			MFA
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.MFAStatusResponse	"enrolled factors"
//	@Failure		401	{object}	authsdk.OAuth2Error			"invalid_token"
//	@Failure		403	{object}	authsdk.OAuth2Error			"insufficient_scope"
//	@Router			/v1/mfa [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	st, err := h.Factors.Status(r.Context(), u.ID)
	if err != nil {
		writeError(w, r, "mfa status", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAStatusResponse{
		EmailOTP:          st.EmailOTP,
		TOTP:              st.TOTP,
		Passkey:           st.Passkey,
		Recovery:          st.Recovery,
		RecoveryRemaining: st.RecoveryRemaining,
	})
}

// HandleEnroll godoc
//
//	@Summary		Start enrolling a factor
//	@Description	TOTP returns the secret and otpauth URI, email_otp mails a code, passkey returns a challenge to sign.
//	@Description	Enrolling recovery issues a fresh set of codes at once.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			kind	path		string						true	"Factor"	Enums(email_otp, totp, passkey, recovery)
//	@Param			body	body		authsdk.MFAEnrollRequest	false	"Passkey credential"
//	@Success		200		{object}	authsdk.MFAEnrollResponse	"what is needed to confirm"
//	@Failure		400		{object}	authsdk.OAuth2Error			"error, error_description"
//	@Failure		409		{object}	authsdk.OAuth2Error			"already_enrolled"
//	@Router			/v1/mfa/{kind}/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	kind := domain.FactorKind(r.PathValue("kind"))
	if !kind.Valid() {
		authsdk.ErrNotFound.WriteError(w)
		return
	}

	var req authsdk.MFAEnrollRequest
	if kind == domain.FactorPasskey {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			authsdk.ErrInvalidRequest.WriteError(w)
			return
		}
	}
	pub, err := mfa.DecodeBase64URL(req.PublicKey)
	if err != nil {
		authsdk.ErrInvalidRequest.WithFields(map[string]string{"public_key": "must be base64url"}).WriteError(w)
		return
	}

	e, err := h.Factors.Enroll(r.Context(), u, kind, mfa.EnrollRequest{CredentialID: req.CredentialID, PublicKey: pub})
	if err != nil {
		writeError(w, r, "mfa enroll", err)
		return
	}
	slogx.FromContext(r.Context()).Info("mfa enrollment started", "user_id", u.ID, "factor", kind)
	httpx.WriteJSON(w, http.StatusOK, enrollResponse(e))
}

// HandleVerify godoc
//
//	@Summary		Confirm a pending factor
//	@Description	Activates the factor once the user proves possession. The first active factor also issues recovery codes.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			kind	path		string						true	"Factor"	Enums(email_otp, totp, passkey)
//	@Param			body	body		authsdk.MFARequest			true	"Proof"
//	@Success		200		{object}	authsdk.MFAEnrollResponse	"recovery codes, if issued"
//	@Failure		400		{object}	authsdk.OAuth2Error			"error, error_description"
//	@Failure		401		{object}	authsdk.OAuth2Error			"mfa_failed"
//	@Router			/v1/mfa/{kind}/verify [post].
func (h *MFAHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	var req authsdk.MFARequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	req.Factor = r.PathValue("kind")
	proof, err := proofFrom(req)
	if err != nil {
		writeError(w, r, "mfa verify", err)
		return
	}
	e, err := h.Factors.Confirm(r.Context(), u, proof)
	if err != nil {
		writeError(w, r, "mfa verify", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, enrollResponse(e))
}

// HandleRemove godoc
//
//	@Summary		Remove a factor
//	@Tags			MFA
//	@Security		BearerAuth
//	@Param			kind	path	string	true	"Factor"	Enums(email_otp, totp, passkey, recovery)
//	@Success		204
//	@Failure		404	{object}	authsdk.OAuth2Error	"not_found"
//	@Router			/v1/mfa/{kind} [delete].
func (h *MFAHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	u, ok := h.caller(w, r)
	if !ok {
		return
	}
	kind := domain.FactorKind(r.PathValue("kind"))
	if !kind.Valid() {
		authsdk.ErrNotFound.WriteError(w)
		return
	}
	if err := h.Factors.Remove(r.Context(), u.ID, kind); err != nil {
		writeError(w, r, "mfa remove", err)
		return
	}
	slogx.FromContext(r.Context()).Info("mfa factor removed", "user_id", u.ID, "factor", kind)
	w.WriteHeader(http.StatusNoContent)
}
