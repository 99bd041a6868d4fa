// Package service implements the identity provider's state machines: the
// authorization flow, token issuance and rotation, and account linking.
package service

import (
	"errors"
	"maps"
	"slices"
	"strings"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

var (
	ErrInvalidRequest          = errors.New("invalid_request")
	ErrInvalidClient           = errors.New("invalid_client")
	ErrInvalidScope            = errors.New("invalid_scope")
	ErrInvalidGrant            = errors.New("invalid_grant")
	ErrUnauthorizedClient      = errors.New("unauthorized_client")
	ErrUnsupportedGrantType    = errors.New("unsupported_grant_type")
	ErrUnsupportedResponseType = errors.New("unsupported_response_type")
	ErrAccessDenied            = errors.New("access_denied")

	// Credential and factor failures. Callers see one generic message for
	// both.
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrMFAFailed          = errors.New("mfa_failed")
	ErrAccountLocked      = errors.New("account_locked")

	ErrTokenReuseDetected = errors.New("token_reuse_detected")
	ErrAlreadyLinked      = errors.New("already_linked")
	ErrNotFound           = errors.New("not_found")

	// ErrInvalidSession covers unknown, expired and finished flow sessions
	// alike.
	ErrInvalidSession = errors.New("invalid_session")

	// ErrTransient is the store's transient error; safe to retry only for
	// idempotent calls.
	ErrTransient = store.ErrTransient
)

// RequestError is an ErrInvalidRequest with per-field detail.
type RequestError struct {
	Fields map[string]string
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString("invalid_request")
	for _, k := range slices.Sorted(maps.Keys(e.Fields)) {
		b.WriteString("; ")
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(e.Fields[k])
	}
	return b.String()
}

func (e *RequestError) Unwrap() error { return ErrInvalidRequest }

func invalidField(field, msg string) *RequestError {
	return &RequestError{Fields: map[string]string{field: msg}}
}

// RedirectError is a failure that happened after the redirect URI was
// validated. It is reported to the client at RedirectURI rather than shown
// to the user.
type RedirectError struct {
	Err         error
	RedirectURI string
	State       string
}

func (e *RedirectError) Error() string { return e.Err.Error() }
func (e *RedirectError) Unwrap() error { return e.Err }
