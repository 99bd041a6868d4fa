package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// TokenHandler serves POST /token.
// Accepts application/x-www-form-urlencoded per RFC 6749.
type TokenHandler struct {
	Tokens *service.TokenService
}

// clientAuth returns the client credentials from HTTP Basic or the form
// body. Sending both is rejected.
func clientAuth(r *http.Request) (id, secret string, err *authsdk.OAuth2Error) {
	formID := strings.TrimSpace(r.PostForm.Get("client_id"))
	formSecret := r.PostForm.Get("client_secret")
	basicID, basicSecret, ok := r.BasicAuth()
	if !ok {
		return formID, formSecret, nil
	}
	if formSecret != "" || (formID != "" && formID != basicID) {
		return "", "", authsdk.ErrInvalidRequest.WithDescription("use one client authentication method")
	}
	// RFC 6749 section 2.3.1 form-encodes both parts.
	if v, e := url.QueryUnescape(basicID); e == nil {
		basicID = v
	}
	if v, e := url.QueryUnescape(basicSecret); e == nil {
		basicSecret = v
	}
	return basicID, basicSecret, nil
}

// parseForm enforces the form content type and parses the body.
func parseForm(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Content-Type") != "" && !httpx.IsForm(r) {
		authsdk.ErrInvalidContentType.WriteError(w)
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, httpx.MaxBodyBytes)
	if err := r.ParseForm(); err != nil {
		authsdk.ErrInvalidFormBody.WriteError(w)
		return false
	}
	return true
}

// ServeHTTP godoc
//
//	@Summary		OAuth2 Token Endpoint
//	@Description	Issues tokens for the authorization_code, refresh_token, client_credentials and impersonation grants.
//	@Description	Refresh tokens rotate on every use. Presenting a rotated token revokes its whole family.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			grant_type		formData	string					true	"Grant type"	Enums(authorization_code, refresh_token, client_credentials, urn:tollgate:params:grant-type:impersonation)
//	@Param			code			formData	string					false	"Authorization code (authorization_code)"
//	@Param			redirect_uri	formData	string					false	"Redirect URI (authorization_code)"
//	@Param			code_verifier	formData	string					false	"PKCE code_verifier (authorization_code)"
//	@Param			refresh_token	formData	string					false	"Refresh token (refresh_token)"
//	@Param			grant			formData	string					false	"Impersonation grant (impersonation)"
//	@Param			client_id		formData	string					false	"Client identifier, unless sent with HTTP Basic"
//	@Param			client_secret	formData	string					false	"Client secret for confidential clients, unless sent with HTTP Basic"
//	@Param			scope			formData	string					false	"Space-delimited list of scopes"
//	@Success		200				{object}	authsdk.TokenResponse	"access_token, refresh_token, token_type, expires_in, scope"
//	@Failure		400				{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401				{object}	authsdk.OAuth2Error		"invalid_client"
//	@Failure		503				{object}	authsdk.OAuth2Error		"temporarily_unavailable"
//	@Header			200				{string}	Cache-Control			"no-store"
//	@Header			200				{string}	Pragma					"no-cache"
//	@Router			/token [post].
func (h *TokenHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	clientID, secret, authErr := clientAuth(r)
	if authErr != nil {
		authErr.WriteError(w)
		return
	}

	ctx := r.Context()
	form := r.PostForm
	var (
		pair service.TokenPair
		err  error
	)
	switch form.Get("grant_type") {
	case authsdk.GrantTypeAuthorizationCode:
		pair, err = h.Tokens.RedeemCode(ctx, service.CodeRedemption{
			ClientID:     clientID,
			ClientSecret: secret,
			Code:         strings.TrimSpace(form.Get("code")),
			RedirectURI:  form.Get("redirect_uri"),
			CodeVerifier: strings.TrimSpace(form.Get("code_verifier")),
		})
	case authsdk.GrantTypeRefreshToken:
		pair, err = h.Tokens.Rotate(ctx, service.RefreshRequest{
			ClientID:     clientID,
			ClientSecret: secret,
			RefreshToken: form.Get("refresh_token"),
			Scopes:       httpx.SpaceFields(form.Get("scope")),
		})
	case authsdk.GrantTypeClientCredentials:
		pair, err = h.Tokens.ClientCredentials(ctx, clientID, secret, httpx.SpaceFields(form.Get("scope")))
	case authsdk.GrantTypeImpersonation:
		pair, err = h.Tokens.RedeemImpersonation(ctx, clientID, secret, form.Get("grant"))
	default:
		authsdk.ErrUnsupportedGrantType.WriteError(w)
		return
	}
	if err != nil {
		writeError(w, r, "token", err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		Scope:        strings.Join(pair.Scopes, " "),
	})
}

// RevokeHandler serves POST /revoke (RFC 7009).
type RevokeHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Revoke a refresh token
//	@Description	Revokes a refresh token, or its whole family with mode=family. Unknown tokens are ignored.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			token			formData	string				true	"Refresh token"
//	@Param			token_type_hint	formData	string				false	"refresh_token"
//	@Param			mode			formData	string				false	"single (default) or family"
//	@Param			client_id		formData	string				false	"Client identifier, unless sent with HTTP Basic"
//	@Param			client_secret	formData	string				false	"Client secret, unless sent with HTTP Basic"
//	@Success		200				{object}	map[string]string	"empty object"
//	@Failure		401				{object}	authsdk.OAuth2Error	"invalid_client"
//	@Router			/revoke [post].
func (h *RevokeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	clientID, secret, authErr := clientAuth(r)
	if authErr != nil {
		authErr.WriteError(w)
		return
	}
	mode := domain.RevokeSingle
	if r.PostForm.Get("mode") == "family" {
		mode = domain.RevokeFamily
	}
	err := h.Tokens.Revoke(r.Context(), clientID, secret, r.PostForm.Get("token"), mode)
	if err != nil {
		writeError(w, r, "revoke", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, struct{}{})
}

// LogoutHandler serves POST /logout.
type LogoutHandler struct {
	Tokens *service.TokenService
}

// ServeHTTP godoc
//
//	@Summary		Log out
//	@Description	Revokes the family of the given refresh token and validates the post logout redirect.
//	@Tags			OAuth2
//	@Accept			application/x-www-form-urlencoded
//	@Produce		json
//	@Param			client_id					formData	string					true	"Client identifier"
//	@Param			refresh_token				formData	string					false	"Refresh token whose family ends"
//	@Param			post_logout_redirect_uri	formData	string					false	"Registered post logout redirect"
//	@Success		200							{object}	authsdk.LogoutResponse	"redirect_to"
//	@Failure		400							{object}	authsdk.OAuth2Error		"error, error_description"
//	@Failure		401							{object}	authsdk.OAuth2Error		"invalid_client"
//	@Router			/logout [post].
func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !parseForm(w, r) {
		return
	}
	next, err := h.Tokens.Logout(r.Context(),
		strings.TrimSpace(r.PostForm.Get("client_id")),
		r.PostForm.Get("refresh_token"),
		r.PostForm.Get("post_logout_redirect_uri"),
	)
	if err != nil {
		writeError(w, r, "logout", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutResponse{RedirectTo: next})
}
