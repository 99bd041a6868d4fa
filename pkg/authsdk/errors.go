package authsdk

import (
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/tollgate/pkg/httpx"
)

// OAuth2 error codes (RFC 6749, RFC 7009) plus tollgate extensions.
const (
	ErrorCodeInvalidRequest          = "invalid_request"
	ErrorCodeInvalidClient           = "invalid_client"
	ErrorCodeInvalidGrant            = "invalid_grant"
	ErrorCodeUnauthorizedClient      = "unauthorized_client"
	ErrorCodeUnsupportedGrantType    = "unsupported_grant_type"
	ErrorCodeUnsupportedResponseType = "unsupported_response_type"
	ErrorCodeInvalidScope            = "invalid_scope"
	ErrorCodeAccessDenied            = "access_denied"
	ErrorCodeServerError             = "server_error"
	ErrorCodeTemporarilyUnavailable  = "temporarily_unavailable"
	ErrorCodeInvalidToken            = "invalid_token"

	ErrorCodeInvalidCredentials = "invalid_credentials"
	ErrorCodeAccountLocked      = "account_locked"
	ErrorCodeInvalidAssertion   = "invalid_assertion"
	ErrorCodeAssertionExpired   = "assertion_expired"
	ErrorCodeAudienceMismatch   = "audience_mismatch"
	ErrorCodeUnknownIdP         = "unknown_idp"
	ErrorCodeIdPDisabled        = "idp_disabled"
	ErrorCodeAlreadyLinked      = "already_linked"
	ErrorCodeNotFound           = "not_found"
	ErrorCodeMFAFailed          = "mfa_failed"
)

// OAuth2Error is an error body in RFC 6749 section 5.2 form.
type OAuth2Error struct {
	StatusCode  int               `json:"-"`
	Code        string            `json:"error"`
	Description string            `json:"error_description,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`

	// RedirectTo is set on failures after the redirect URI was validated.
	// Browser flows follow it instead of rendering the error.
	RedirectTo string `json:"redirect_to,omitempty"`
}

func (e *OAuth2Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError renders e as a no-store JSON response.
func (e *OAuth2Error) WriteError(w http.ResponseWriter) {
	if e.StatusCode == http.StatusUnauthorized && e.Code == ErrorCodeInvalidClient {
		w.Header().Set("WWW-Authenticate", `Basic realm="tollgate"`)
	}
	httpx.WriteJSON(w, e.StatusCode, e)
}

// WithDescription returns a copy of e with a different description.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	cp := *e
	cp.Description = desc
	return &cp
}

// WithFields returns a copy of e carrying field level detail.
func (e *OAuth2Error) WithFields(fields map[string]string) *OAuth2Error {
	cp := *e
	cp.Fields = fields
	return &cp
}

// WithRedirect returns a copy of e pointing the caller at uri.
func (e *OAuth2Error) WithRedirect(uri string) *OAuth2Error {
	cp := *e
	cp.RedirectTo = uri
	return &cp
}

func NewOAuth2Error(statusCode int, code, description string) *OAuth2Error {
	return &OAuth2Error{StatusCode: statusCode, Code: code, Description: description}
}

var (
	ErrInvalidRequest          = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidRequest, "the request is malformed or missing required parameters")
	ErrInvalidClient           = NewOAuth2Error(http.StatusUnauthorized, ErrorCodeInvalidClient, "invalid client")
	ErrInvalidGrant            = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidGrant, "the grant is invalid, expired or revoked")
	ErrTokenReuse              = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidGrant, "refresh token reuse detected")
	ErrUnauthorizedClient      = NewOAuth2Error(http.StatusBadRequest, ErrorCodeUnauthorizedClient, "the client is not authorized to use this grant type")
	ErrUnsupportedGrantType    = NewOAuth2Error(http.StatusBadRequest, ErrorCodeUnsupportedGrantType, "grant type not supported")
	ErrUnsupportedResponseType = NewOAuth2Error(http.StatusBadRequest, ErrorCodeUnsupportedResponseType, "response type not supported")
	ErrInvalidScope            = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidScope, "requested scope is invalid")
	ErrAccessDenied            = NewOAuth2Error(http.StatusForbidden, ErrorCodeAccessDenied, "access denied")
	ErrServerError             = NewOAuth2Error(http.StatusInternalServerError, ErrorCodeServerError, "internal server error")
	ErrTemporarilyUnavailable  = NewOAuth2Error(http.StatusServiceUnavailable, ErrorCodeTemporarilyUnavailable, "service temporarily unavailable, retry")
	ErrInvalidContentType      = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidRequest, "content-type must be application/x-www-form-urlencoded")
	ErrInvalidFormBody         = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidRequest, "invalid form body")
	ErrNotFound                = NewOAuth2Error(http.StatusNotFound, ErrorCodeNotFound, "not found")

	// Credential and MFA failures share one message.
	ErrInvalidCredentials = NewOAuth2Error(http.StatusUnauthorized, ErrorCodeInvalidCredentials, "the credentials supplied are not valid")
	ErrMFAFailed          = NewOAuth2Error(http.StatusUnauthorized, ErrorCodeMFAFailed, "the credentials supplied are not valid")
	ErrAccountLocked      = NewOAuth2Error(http.StatusTooManyRequests, ErrorCodeAccountLocked, "too many failed attempts, try again later")

	ErrInvalidAssertion = NewOAuth2Error(http.StatusBadRequest, ErrorCodeInvalidAssertion, "the SAML response could not be verified")
	ErrAssertionExpired = NewOAuth2Error(http.StatusBadRequest, ErrorCodeAssertionExpired, "the SAML assertion is outside its validity window")
	ErrAudienceMismatch = NewOAuth2Error(http.StatusBadRequest, ErrorCodeAudienceMismatch, "the SAML assertion is not addressed to this service provider")
	ErrUnknownIdP       = NewOAuth2Error(http.StatusNotFound, ErrorCodeUnknownIdP, "unknown identity provider")
	ErrIdPDisabled      = NewOAuth2Error(http.StatusForbidden, ErrorCodeIdPDisabled, "identity provider is disabled")
	ErrAlreadyLinked    = NewOAuth2Error(http.StatusConflict, ErrorCodeAlreadyLinked, "one of the accounts is already linked")
)
