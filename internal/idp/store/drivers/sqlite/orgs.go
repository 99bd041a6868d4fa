package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

type orgsRepo struct {
	db dbtx
}

const orgColumns = `id, slug, name, allow_public_registration, require_mfa, default_role_id`

func (r *orgsRepo) Get(ctx context.Context, id string) (domain.Org, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM orgs WHERE id = ?`, id)
}

func (r *orgsRepo) GetBySlug(ctx context.Context, slug string) (domain.Org, error) {
	return r.getOne(ctx, `SELECT `+orgColumns+` FROM orgs WHERE slug = ?`, slug)
}

func (r *orgsRepo) getOne(ctx context.Context, query string, arg string) (domain.Org, error) {
	var (
		o           domain.Org
		public, mfa int
		role        sql.NullString
	)
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&o.ID, &o.Slug, &o.Name, &public, &mfa, &role); err != nil {
		return domain.Org{}, mapErr(err)
	}
	o.AllowPublicRegistration = public == 1
	o.RequireMFA = mfa == 1
	o.DefaultRoleID = role.String
	return o, nil
}

func (r *orgsRepo) Create(ctx context.Context, o domain.Org) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO orgs (`+orgColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		o.ID, o.Slug, o.Name, boolInt(o.AllowPublicRegistration), boolInt(o.RequireMFA), nullString(o.DefaultRoleID))
	return mapErr(err)
}

func (r *orgsRepo) CreateGroup(ctx context.Context, g domain.OrgGroup) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO org_groups (id, org_id, name) VALUES (?, ?, ?)`, g.ID, g.OrgID, g.Name)
	return mapErr(err)
}
