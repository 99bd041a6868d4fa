package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type clientsRepo struct {
	db dbtx
}

func (r *clientsRepo) Get(ctx context.Context, id string) (domain.Client, error) {
	var (
		c                         domain.Client
		typ                       string
		secret, org               sql.NullString
		redirects, logouts, scope string
		mfa, enabled              int
		created, updated          int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, type, secret_hash, redirect_uris,
		post_logout_redirect_uris, scopes, require_mfa, enabled, org_id, created_at, updated_at
		FROM clients WHERE id = ?`, id).Scan(
		&c.ID, &c.Name, &typ, &secret, &redirects, &logouts, &scope, &mfa, &enabled, &org, &created, &updated,
	)
	if err != nil {
		return domain.Client{}, mapErr(err)
	}
	c.Type = domain.ClientType(typ)
	c.SecretHash = secret.String
	c.RedirectURIs = splitList(redirects)
	c.PostLogoutRedirectURIs = splitList(logouts)
	c.Scopes = splitList(scope)
	c.RequireMFA = mfa == 1
	c.Enabled = enabled == 1
	c.OrgID = org.String
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return c, nil
}

func (r *clientsRepo) Create(ctx context.Context, c domain.Client) error {
	now := c.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO clients
		(id, name, type, secret_hash, redirect_uris, post_logout_redirect_uris, scopes,
		 require_mfa, enabled, org_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, string(c.Type), nullString(c.SecretHash), joinList(c.RedirectURIs),
		joinList(c.PostLogoutRedirectURIs), joinList(c.Scopes), boolInt(c.RequireMFA), boolInt(c.Enabled),
		nullString(c.OrgID), millis(now), millis(now),
	)
	return mapErr(err)
}

func (r *clientsRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE clients SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolInt(enabled), millis(time.Now()), id)
	return expectOne(res, err, store.ErrNotFound)
}
