// Package policy holds the pure decision functions of the identity
// provider: lockout from sign-in history, MFA requirements, scope checks
// and impersonation eligibility. Nothing here performs I/O.
package policy
