package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type txStore struct {
	tx *sql.Tx
}

func (t *txStore) Close() error                   { return nil }
func (t *txStore) Ping(ctx context.Context) error { return nil }

// WithTx on a transaction is refused; nesting is not supported.
func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) Users() store.Users                 { return &usersRepo{db: t.tx} }
func (t *txStore) Orgs() store.Orgs                   { return &orgsRepo{db: t.tx} }
func (t *txStore) Roles() store.Roles                 { return &rolesRepo{db: t.tx} }
func (t *txStore) Clients() store.Clients             { return &clientsRepo{db: t.tx} }
func (t *txStore) Scopes() store.Scopes               { return &scopesRepo{db: t.tx} }
func (t *txStore) Consents() store.Consents           { return &consentsRepo{db: t.tx} }
func (t *txStore) Factors() store.Factors             { return &factorsRepo{db: t.tx} }
func (t *txStore) RecoveryCodes() store.RecoveryCodes { return &recoveryCodesRepo{db: t.tx} }
func (t *txStore) RefreshTokens() store.RefreshTokens { return &refreshTokensRepo{db: t.tx} }
func (t *txStore) SignIns() store.SignIns             { return &signInsRepo{db: t.tx} }
func (t *txStore) SAML() store.SAML                   { return &samlRepo{db: t.tx} }
func (t *txStore) Audit() store.Audit                 { return &auditRepo{db: t.tx} }
