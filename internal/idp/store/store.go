package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict is returned when a conditional update matched no row
	// because another writer got there first.
	ErrConflict = errors.New("store: conflict")

	// ErrTransient wraps deadline, connection and busy errors. Callers may
	// retry idempotent reads once.
	ErrTransient = errors.New("store: transient failure")
)

// Store is the durable credential store. Drivers implement it; sub
// repositories keep the surface small and stop callers nesting
// transactions.
type Store interface {
	Users() Users
	Orgs() Orgs
	Roles() Roles
	Clients() Clients
	Scopes() Scopes
	Consents() Consents
	Factors() Factors
	RecoveryCodes() RecoveryCodes
	RefreshTokens() RefreshTokens
	SignIns() SignIns
	SAML() SAML
	Audit() Audit

	// WithTx runs fn in a read/write transaction, committing when fn
	// returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Ping(ctx context.Context) error
	Close() error
}

// Tx is a transaction scoped Store. Starting another transaction from it
// fails with sql.ErrTxDone.
type Tx interface {
	Store
}

type Users interface {
	// Get returns a live (not soft deleted) user with memberships and roles.
	Get(ctx context.Context, id string) (domain.User, error)

	// GetByLogin resolves a username or email, case insensitively.
	GetByLogin(ctx context.Context, login string) (domain.User, error)

	GetByEmail(ctx context.Context, email string) (domain.User, error)

	// Create inserts u and its org, group and role memberships.
	Create(ctx context.Context, u domain.User) error

	AddOrgMembership(ctx context.Context, userID, orgID string) error
	AssignRole(ctx context.Context, userID, roleID string) error

	// Link joins primary and secondary. Both rows are updated only while
	// unlinked; otherwise ErrConflict and nothing changes.
	Link(ctx context.Context, primaryID, secondaryID string, at time.Time) error

	// Unlink clears the link on userID and its partner. Unlinking a
	// standalone user is a no-op.
	Unlink(ctx context.Context, userID string, at time.Time) error

	SoftDelete(ctx context.Context, id string, at time.Time) error
}

type Orgs interface {
	Get(ctx context.Context, id string) (domain.Org, error)
	GetBySlug(ctx context.Context, slug string) (domain.Org, error)
	Create(ctx context.Context, o domain.Org) error
	CreateGroup(ctx context.Context, g domain.OrgGroup) error
}

type Roles interface {
	Get(ctx context.Context, id string) (domain.Role, error)
	GetByName(ctx context.Context, name string) (domain.Role, error)

	// ListByIDs skips ids that do not exist.
	ListByIDs(ctx context.Context, ids []string) ([]domain.Role, error)
	Create(ctx context.Context, r domain.Role) error
}

type Clients interface {
	Get(ctx context.Context, id string) (domain.Client, error)
	Create(ctx context.Context, c domain.Client) error
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type Scopes interface {
	// GetMany returns the registered scopes among names; unknown names are
	// absent from the map.
	GetMany(ctx context.Context, names []string) (map[string]domain.Scope, error)
	Upsert(ctx context.Context, s domain.Scope) error
}

type Consents interface {
	Get(ctx context.Context, userID, clientID string) (domain.Consent, error)
	Upsert(ctx context.Context, c domain.Consent) error
}

type Factors interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Factor, error)
	GetByKind(ctx context.Context, userID string, kind domain.FactorKind) (domain.Factor, error)
	GetPasskey(ctx context.Context, userID, credentialID string) (domain.Factor, error)

	// Create inserts f. A second unverified TOTP or email enrollment
	// replaces the pending one; a verified factor of the same kind yields
	// ErrAlreadyExists. Passkeys are keyed by credential id.
	Create(ctx context.Context, f domain.Factor) error

	MarkVerified(ctx context.Context, id string, at time.Time) error

	// AdvanceSignCount stores count only if it is strictly greater than the
	// stored value. Returns ErrConflict otherwise.
	AdvanceSignCount(ctx context.Context, id string, count uint32, at time.Time) error

	Disable(ctx context.Context, id string) error
	Touch(ctx context.Context, id string, at time.Time) error

	// DeleteKind removes every factor of kind for the user.
	DeleteKind(ctx context.Context, userID string, kind domain.FactorKind) (int64, error)
}

type RecoveryCodes interface {
	// Replace discards existing codes and stores hashes.
	Replace(ctx context.Context, userID string, hashes []string, at time.Time) error

	// Use marks the matching unused code used. ErrNotFound when no unused
	// code matches.
	Use(ctx context.Context, userID, hash string, at time.Time) error

	Remaining(ctx context.Context, userID string) (int, error)
	DeleteAll(ctx context.Context, userID string) error
}

type RefreshTokens interface {
	Create(ctx context.Context, t domain.RefreshToken) error
	GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// Supersede marks id superseded by replacedBy only if it is neither
	// superseded nor revoked. Exactly one concurrent caller wins; the
	// others get ErrConflict.
	Supersede(ctx context.Context, id, replacedBy string, at time.Time) error

	Revoke(ctx context.Context, id string, at time.Time) error

	// RevokeFamily revokes every live member of the family and returns how
	// many rows changed.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)

	RevokeByUser(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpired removes rows whose expiry is before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

type SignIns interface {
	Record(ctx context.Context, a domain.SignInAttempt) error

	// ListSince returns attempts for subject and ip newest first.
	ListSince(ctx context.Context, subject, ip string, since time.Time) ([]domain.SignInAttempt, error)

	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SAML interface {
	GetIdPByName(ctx context.Context, name string) (domain.SAMLIdP, error)
	GetIdPByEntityID(ctx context.Context, entityID string) (domain.SAMLIdP, error)
	CreateIdP(ctx context.Context, idp domain.SAMLIdP) error
	SetIdPActive(ctx context.Context, id string, active bool) error

	GetIdentity(ctx context.Context, idpID, subject string) (domain.SAMLIdentity, error)
	CreateIdentity(ctx context.Context, id domain.SAMLIdentity) error
}

// AuditRecord is one persisted audit event.
type AuditRecord struct {
	ID        string
	Type      string
	UserID    string
	ClientID  string
	IP        string
	Detail    string
	CreatedAt time.Time
}

type Audit interface {
	Append(ctx context.Context, r AuditRecord) error
	ListByUser(ctx context.Context, userID string, limit int) ([]AuditRecord, error)
}
