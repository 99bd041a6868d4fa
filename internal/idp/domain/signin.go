package domain

import "time"

type SignInMethod string

const (
	SignInPassword SignInMethod = "password"
	SignInMFA      SignInMethod = "mfa"
	SignInSAML     SignInMethod = "saml"
)

type SignInOutcome string

const (
	OutcomeSuccess SignInOutcome = "success"
	OutcomeFailure SignInOutcome = "failure"
	OutcomeLocked  SignInOutcome = "locked"
)

// SignInAttempt is an append-only record of an authentication attempt.
// Subject is the identifier as typed, so attempts against unknown users
// are still counted.
type SignInAttempt struct {
	ID        string
	Subject   string
	UserID    string
	IP        string
	Method    SignInMethod
	Outcome   SignInOutcome
	CreatedAt time.Time
}
