package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
	"github.com/aussiebroadwan/tollgate/pkg/jwtx"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

// AccountHandler serves account linking and impersonation grants.
type AccountHandler struct {
	Accounts *service.AccountService
	Store    store.Store
	Verifier jwtx.Verifier
}

// HandleLink godoc
//
//	@Summary		Link two accounts
//	@Description	Links the caller (primary) with the account the secondary token belongs to. Both tokens need account:link.
//	@Description	The secondary's refresh tokens are revoked and later sign-ins resolve to the primary.
//	@Tags			Accounts
//	@Accept			json
//	@Security		BearerAuth
//	@Param			body	body	authsdk.LinkRequest	true	"Secondary access token"
//	@Success		204
//	@Failure		400	{object}	authsdk.OAuth2Error	"error, error_description"
//	@Failure		403	{object}	authsdk.OAuth2Error	"access_denied"
//	@Failure		409	{object}	authsdk.OAuth2Error	"already_linked"
//	@Router			/v1/accounts/link [post].
func (h *AccountHandler) HandleLink(w http.ResponseWriter, r *http.Request) {
	primary, _ := httpx.ClaimsFrom(r.Context())
	if primary.Act != nil {
		authsdk.ErrAccessDenied.WithDescription("impersonated sessions cannot link accounts").WriteError(w)
		return
	}
	var req authsdk.LinkRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.SecondaryToken == "" {
		authsdk.ErrInvalidRequest.WithFields(map[string]string{"secondary_token": "required"}).WriteError(w)
		return
	}
	secondary, err := h.Verifier.Verify(req.SecondaryToken)
	if err != nil {
		slogx.FromContext(r.Context()).Warn("secondary token rejected", "err", err)
		authsdk.ErrInvalidRequest.WithFields(map[string]string{"secondary_token": "invalid or expired"}).WriteError(w)
		return
	}
	if secondary.Act != nil || !secondary.HasScope(domain.ScopeAccountLink) {
		authsdk.ErrAccessDenied.WithDescription("the secondary token cannot be used for linking").WriteError(w)
		return
	}
	if err := h.Accounts.LinkAccounts(r.Context(), primary.Subject, secondary.Subject); err != nil {
		writeError(w, r, "link accounts", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUnlink godoc
//
//	@Summary		Unlink an account
//	@Description	Dissolves the link of the given account. The caller must be that account or its primary.
//	@Tags			Accounts
//	@Security		BearerAuth
//	@Param			id	path	string	true	"User id"
//	@Success		204
//	@Failure		403	{object}	authsdk.OAuth2Error	"access_denied"
//	@Failure		404	{object}	authsdk.OAuth2Error	"not_found"
//	@Router			/v1/accounts/{id}/link [delete].
func (h *AccountHandler) HandleUnlink(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFrom(r.Context())
	if claims.Act != nil {
		authsdk.ErrAccessDenied.WriteError(w)
		return
	}
	id := r.PathValue("id")
	u, err := h.Store.Users().Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		authsdk.ErrNotFound.WriteError(w)
		return
	}
	if err != nil {
		writeError(w, r, "unlink account", err)
		return
	}
	if u.ID != claims.Subject && u.LinkedUserID != claims.Subject {
		authsdk.ErrAccessDenied.WriteError(w)
		return
	}
	if err := h.Accounts.UnlinkAccount(r.Context(), u.ID); err != nil {
		writeError(w, r, "unlink account", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImpersonate godoc
//
//	@Summary		Create an impersonation grant
//	@Description	Issues a single use grant to obtain an access token for the target user through the given client.
//	@Description	Requires an impersonator role; privileged targets are refused.
//	@Tags			Accounts
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			body	body		authsdk.ImpersonationRequest	true	"Target and client"
//	@Success		201		{object}	authsdk.ImpersonationResponse	"grant"
//	@Failure		403		{object}	authsdk.OAuth2Error				"access_denied"
//	@Failure		404		{object}	authsdk.OAuth2Error				"not_found"
//	@Router			/v1/impersonation [post].
func (h *AccountHandler) HandleImpersonate(w http.ResponseWriter, r *http.Request) {
	claims, _ := httpx.ClaimsFrom(r.Context())
	if claims.Act != nil {
		authsdk.ErrAccessDenied.WithDescription("impersonation cannot be chained").WriteError(w)
		return
	}
	var req authsdk.ImpersonationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.TargetUserID == "" || req.ClientID == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	g, secret, err := h.Accounts.CreateImpersonationGrant(r.Context(), claims.Subject, req.TargetUserID, req.ClientID)
	if err != nil {
		writeError(w, r, "impersonate", err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.ImpersonationResponse{
		Grant:     secret,
		Scopes:    g.Scopes,
		ExpiresIn: int(time.Until(g.ExpiresAt).Round(time.Second).Seconds()),
	})
}
