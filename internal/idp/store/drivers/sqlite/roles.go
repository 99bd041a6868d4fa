package sqlite

import (
	"context"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

type rolesRepo struct {
	db dbtx
}

func (r *rolesRepo) Get(ctx context.Context, id string) (domain.Role, error) {
	return r.getOne(ctx, `SELECT id, name, scopes, impersonator FROM roles WHERE id = ?`, id)
}

func (r *rolesRepo) GetByName(ctx context.Context, name string) (domain.Role, error) {
	return r.getOne(ctx, `SELECT id, name, scopes, impersonator FROM roles WHERE name = ?`, name)
}

func (r *rolesRepo) getOne(ctx context.Context, query, arg string) (domain.Role, error) {
	var (
		role   domain.Role
		scopes string
		imp    int
	)
	if err := r.db.QueryRowContext(ctx, query, arg).Scan(&role.ID, &role.Name, &scopes, &imp); err != nil {
		return domain.Role{}, mapErr(err)
	}
	role.Scopes = splitList(scopes)
	role.Impersonator = imp == 1
	return role, nil
}

func (r *rolesRepo) ListByIDs(ctx context.Context, ids []string) ([]domain.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, scopes, impersonator FROM roles WHERE id IN (`+placeholders(len(ids))+`) ORDER BY name`,
		anySlice(ids)...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Role
	for rows.Next() {
		var (
			role   domain.Role
			scopes string
			imp    int
		)
		if err := rows.Scan(&role.ID, &role.Name, &scopes, &imp); err != nil {
			return nil, mapErr(err)
		}
		role.Scopes = splitList(scopes)
		role.Impersonator = imp == 1
		out = append(out, role)
	}
	return out, mapErr(rows.Err())
}

func (r *rolesRepo) Create(ctx context.Context, role domain.Role) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO roles (id, name, scopes, impersonator) VALUES (?, ?, ?, ?)`,
		role.ID, role.Name, joinList(role.Scopes), boolInt(role.Impersonator))
	return mapErr(err)
}
