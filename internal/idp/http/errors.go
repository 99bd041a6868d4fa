package http

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/aussiebroadwan/tollgate/internal/idp/mfa"
	"github.com/aussiebroadwan/tollgate/internal/idp/saml"
	"github.com/aussiebroadwan/tollgate/internal/idp/service"
	"github.com/aussiebroadwan/tollgate/pkg/authsdk"
	"github.com/aussiebroadwan/tollgate/pkg/slogx"
)

var errAlreadyEnrolled = authsdk.NewOAuth2Error(http.StatusConflict, "already_enrolled", "the factor is already enrolled")

// errorTable maps service and engine errors to wire errors. Order matters:
// more specific errors come first.
var errorTable = []struct {
	err  error
	wire *authsdk.OAuth2Error
}{
	{service.ErrTokenReuseDetected, authsdk.ErrTokenReuse},
	{service.ErrInvalidClient, authsdk.ErrInvalidClient},
	{service.ErrInvalidGrant, authsdk.ErrInvalidGrant},
	{service.ErrInvalidScope, authsdk.ErrInvalidScope},
	{service.ErrUnauthorizedClient, authsdk.ErrUnauthorizedClient},
	{service.ErrUnsupportedGrantType, authsdk.ErrUnsupportedGrantType},
	{service.ErrUnsupportedResponseType, authsdk.ErrUnsupportedResponseType},
	{service.ErrAccessDenied, authsdk.ErrAccessDenied},
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrMFAFailed, authsdk.ErrMFAFailed},
	{service.ErrAccountLocked, authsdk.ErrAccountLocked},
	{service.ErrAlreadyLinked, authsdk.ErrAlreadyLinked},
	{service.ErrNotFound, authsdk.ErrNotFound},
	{service.ErrInvalidSession, authsdk.ErrInvalidRequest.WithDescription("the sign-in session is unknown, expired or finished")},
	{service.ErrInvalidRequest, authsdk.ErrInvalidRequest},
	{service.ErrTransient, authsdk.ErrTemporarilyUnavailable},

	{saml.ErrUnknownIdP, authsdk.ErrUnknownIdP},
	{saml.ErrIdPDisabled, authsdk.ErrIdPDisabled},
	{saml.ErrAssertionExpired, authsdk.ErrAssertionExpired},
	{saml.ErrAudienceMismatch, authsdk.ErrAudienceMismatch},
	{saml.ErrInvalidAssertion, authsdk.ErrInvalidAssertion},
	{saml.ErrNoLocalUser, authsdk.ErrAccessDenied},

	{mfa.ErrAlreadyEnrolled, errAlreadyEnrolled},
	{mfa.ErrFactorNotEnrolled, authsdk.ErrNotFound.WithDescription("the factor is not enrolled")},
	{mfa.ErrEmailNotVerified, authsdk.ErrInvalidRequest.WithDescription("the email address is not verified")},
	{mfa.ErrInvalidEnrollment, authsdk.ErrInvalidRequest},
	{mfa.ErrUnsupportedProof, authsdk.ErrInvalidRequest.WithDescription("unsupported factor")},
	{mfa.ErrCodeExpired, authsdk.ErrMFAFailed},
	{mfa.ErrCodeMismatch, authsdk.ErrMFAFailed},
	{mfa.ErrReplayDetected, authsdk.ErrMFAFailed},
	{mfa.ErrAssertionInvalid, authsdk.ErrMFAFailed},
	{mfa.ErrFactorDisabled, authsdk.ErrMFAFailed},
}

// wireError returns the wire form of err, or nil when err is unexpected.
func wireError(err error) *authsdk.OAuth2Error {
	var reqErr *service.RequestError
	if errors.As(err, &reqErr) {
		return authsdk.ErrInvalidRequest.WithFields(reqErr.Fields)
	}
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.wire
		}
	}
	return nil
}

// writeError renders err as JSON. Errors that carry a client redirect are
// rendered with redirect_to so the browser flow can follow it.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	wire := wireError(err)
	if wire == nil {
		slogx.FromContext(r.Context()).Error(op+" failed", "err", err)
		wire = authsdk.ErrServerError
	}
	var redir *service.RedirectError
	if errors.As(err, &redir) {
		wire = wire.WithRedirect(errorRedirect(redir, wire))
	}
	wire.WriteError(w)
}

// redirectOrError sends the browser back to the client when err allows it
// and renders the error otherwise.
func redirectOrError(w http.ResponseWriter, r *http.Request, op string, err error) {
	var redir *service.RedirectError
	if errors.As(err, &redir) {
		wire := wireError(err)
		if wire == nil {
			slogx.FromContext(r.Context()).Error(op+" failed", "err", err)
			wire = authsdk.ErrServerError
		}
		http.Redirect(w, r, errorRedirect(redir, wire), http.StatusFound)
		return
	}
	writeError(w, r, op, err)
}

// errorRedirect builds the client redirect of RFC 6749 section 4.1.2.1.
func errorRedirect(redir *service.RedirectError, wire *authsdk.OAuth2Error) string {
	u, err := url.Parse(redir.RedirectURI)
	if err != nil {
		return redir.RedirectURI
	}
	code := wire.Code
	switch code {
	case authsdk.ErrorCodeInvalidCredentials, authsdk.ErrorCodeMFAFailed, authsdk.ErrorCodeAccountLocked:
		code = authsdk.ErrorCodeAccessDenied
	}
	q := u.Query()
	q.Set("error", code)
	if wire.Description != "" {
		q.Set("error_description", wire.Description)
	}
	if redir.State != "" {
		q.Set("state", redir.State)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
