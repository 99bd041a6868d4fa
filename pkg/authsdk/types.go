package authsdk

// ============================================================================
// Token Types
// ============================================================================

// TokenResponse is the POST /token response per RFC 6749 section 5.1.
type TokenResponse struct {
	// AccessToken is the signed JWT used to call APIs
	AccessToken string `json:"access_token"`

	// RefreshToken is only issued when offline_access was granted
	RefreshToken string `json:"refresh_token,omitempty"`

	// TokenType is always "Bearer"
	TokenType string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of granted scopes
	Scope string `json:"scope,omitempty"`
}

// Grant types accepted by POST /token.
const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypeRefreshToken      = "refresh_token"
	GrantTypeClientCredentials = "client_credentials"
	GrantTypeImpersonation     = "urn:tollgate:params:grant-type:impersonation"
)

// ============================================================================
// Authorization Flow Types
// ============================================================================

// Steps returned by the /authorize endpoints.
const (
	StepCredentials = "credentials"
	StepMFA         = "mfa"
	StepConsent     = "consent"
	StepRedirect    = "redirect"
)

// StepResponse tells the rendering layer what to show next. Exactly one
// step is active; RedirectTo is only set on the redirect step.
type StepResponse struct {
	// Session is the opaque flow session id to post back
	Session string `json:"session"`

	// Step is one of credentials, mfa, consent or redirect
	Step string `json:"step"`

	ClientName string `json:"client_name,omitempty"`
	Locale     string `json:"locale,omitempty"`

	// Factors lists the factors that can satisfy the MFA step, preferred
	// first
	Factors []string `json:"factors,omitempty"`

	// Factor is the factor currently selected
	Factor string `json:"factor,omitempty"`

	// PasskeyChallenge is set when the passkey factor is selected
	PasskeyChallenge string `json:"passkey_challenge,omitempty"`

	// CodeSent reports that an email code was mailed for this step
	CodeSent bool `json:"code_sent,omitempty"`

	// Scopes are the scopes awaiting approval on the consent step
	Scopes []string `json:"scopes,omitempty"`

	// ReissueRecovery asks the user to generate new recovery codes
	ReissueRecovery bool `json:"reissue_recovery,omitempty"`

	RedirectTo string `json:"redirect_to,omitempty"`
}

// CredentialsRequest is the body of POST /authorize/credentials.
type CredentialsRequest struct {
	Session    string `json:"session"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// MFARequest is the body of POST /authorize/mfa and of
// POST /v1/mfa/{kind}/verify. Only the fields for the factor are read.
type MFARequest struct {
	Session string `json:"session,omitempty"`
	Factor  string `json:"factor"`
	Code    string `json:"code,omitempty"`

	// Passkey assertion fields, base64url without padding
	CredentialID      string `json:"credential_id,omitempty"`
	AuthenticatorData string `json:"authenticator_data,omitempty"`
	ClientDataJSON    string `json:"client_data_json,omitempty"`
	Signature         string `json:"signature,omitempty"`
}

// SelectFactorRequest is the body of POST /authorize/mfa/select. Selecting
// email_otp again resends the code.
type SelectFactorRequest struct {
	Session string `json:"session"`
	Factor  string `json:"factor"`
}

// ConsentRequest is the body of POST /authorize/consent.
type ConsentRequest struct {
	Session string `json:"session"`

	// Decision is "approve" or "deny"
	Decision string   `json:"decision"`
	Scopes   []string `json:"scopes,omitempty"`
}

// LogoutResponse is returned by POST /logout. RedirectTo is the validated
// post logout redirect, if one was asked for.
type LogoutResponse struct {
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ============================================================================
// MFA Management Types
// ============================================================================

// MFAEnrollRequest is the body of POST /v1/mfa/{kind}/enroll. Passkeys
// carry the credential id and the DER public key, base64url encoded.
type MFAEnrollRequest struct {
	CredentialID string `json:"credential_id,omitempty"`
	PublicKey    string `json:"public_key,omitempty"`
}

// MFAEnrollResponse carries what the user needs to confirm the factor.
type MFAEnrollResponse struct {
	Factor        string   `json:"factor"`
	Secret        string   `json:"secret,omitempty"`
	OTPAuthURI    string   `json:"otpauth_uri,omitempty"`
	Challenge     string   `json:"challenge,omitempty"`
	CodeSent      bool     `json:"code_sent,omitempty"`
	RecoveryCodes []string `json:"recovery_codes,omitempty"`
}

// MFAStatusResponse reports the enrolled factors of the caller.
type MFAStatusResponse struct {
	EmailOTP          bool `json:"email_otp"`
	TOTP              bool `json:"totp"`
	Passkey           bool `json:"passkey"`
	Recovery          bool `json:"recovery"`
	RecoveryRemaining int  `json:"recovery_remaining"`
}

// ============================================================================
// Account Types
// ============================================================================

// LinkRequest links the caller (primary) with the account that
// SecondaryToken, an access token carrying account:link, was issued for.
type LinkRequest struct {
	SecondaryToken string `json:"secondary_token"`
}

// ImpersonationRequest asks for a grant to act as TargetUserID through
// ClientID.
type ImpersonationRequest struct {
	TargetUserID string `json:"target_user_id"`
	ClientID     string `json:"client_id"`
}

// ImpersonationResponse carries the single use grant to exchange at
// POST /token with the impersonation grant type.
type ImpersonationResponse struct {
	Grant     string   `json:"grant"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int      `json:"expires_in"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime,omitempty"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}
