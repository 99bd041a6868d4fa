package sqlite

import (
	"context"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

type scopesRepo struct {
	db dbtx
}

func (r *scopesRepo) GetMany(ctx context.Context, names []string) (map[string]domain.Scope, error) {
	out := make(map[string]domain.Scope, len(names))
	if len(names) == 0 {
		return out, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT name, type, restricted FROM scopes WHERE name IN (`+placeholders(len(names))+`)`,
		anySlice(names)...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s          domain.Scope
			typ        string
			restricted int
		)
		if err := rows.Scan(&s.Name, &typ, &restricted); err != nil {
			return nil, mapErr(err)
		}
		s.Type = domain.ClientType(typ)
		s.Restricted = restricted == 1
		out[s.Name] = s
	}
	return out, mapErr(rows.Err())
}

func (r *scopesRepo) Upsert(ctx context.Context, s domain.Scope) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO scopes (name, type, restricted) VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET type = excluded.type, restricted = excluded.restricted`,
		s.Name, string(s.Type), boolInt(s.Restricted))
	return mapErr(err)
}
