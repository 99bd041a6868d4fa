package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, username, email, email_verified, password_hash, locale,
	linked_user_id, canonical, deleted_at, created_at, updated_at`

func (r *usersRepo) Get(ctx context.Context, id string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id)
}

func (r *usersRepo) GetByLogin(ctx context.Context, login string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users
		WHERE (username = ? OR email = ?) AND deleted_at IS NULL
		ORDER BY username = ? DESC LIMIT 1`, login, login, login)
}

func (r *usersRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email)
}

func (r *usersRepo) getOne(ctx context.Context, query string, args ...any) (domain.User, error) {
	var (
		u                   domain.User
		email, hash, linked sql.NullString
		verified, canonical int
		deleted             sql.NullInt64
		created, updated    int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Username, &email, &verified, &hash, &u.Locale,
		&linked, &canonical, &deleted, &created, &updated,
	)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	u.Email = email.String
	u.EmailVerified = verified == 1
	u.PasswordHash = hash.String
	u.LinkedUserID = linked.String
	u.Canonical = canonical == 1
	u.DeletedAt = timePtr(deleted)
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)

	if u.OrgIDs, err = r.column(ctx, `SELECT org_id FROM org_members WHERE user_id = ? ORDER BY org_id`, u.ID); err != nil {
		return domain.User{}, err
	}
	if u.GroupIDs, err = r.column(ctx, `SELECT group_id FROM group_members WHERE user_id = ? ORDER BY group_id`, u.ID); err != nil {
		return domain.User{}, err
	}
	if u.RoleIDs, err = r.column(ctx, `SELECT role_id FROM user_roles WHERE user_id = ? ORDER BY role_id`, u.ID); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *usersRepo) column(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, mapErr(err)
		}
		out = append(out, v)
	}
	return out, mapErr(rows.Err())
}

func (r *usersRepo) Create(ctx context.Context, u domain.User) error {
	now := u.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO users
		(id, username, email, email_verified, password_hash, locale, linked_user_id, canonical, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NULL, 0, ?, ?)`,
		u.ID, u.Username, nullString(u.Email), boolInt(u.EmailVerified), nullString(u.PasswordHash), u.Locale,
		millis(now), millis(now),
	)
	if err != nil {
		return mapErr(err)
	}

	for _, org := range u.OrgIDs {
		if err := r.AddOrgMembership(ctx, u.ID, org); err != nil {
			return err
		}
	}
	for _, g := range u.GroupIDs {
		if _, err := r.db.ExecContext(ctx, `INSERT INTO group_members (user_id, group_id) VALUES (?, ?)`, u.ID, g); err != nil {
			return mapErr(err)
		}
	}
	for _, role := range u.RoleIDs {
		if err := r.AssignRole(ctx, u.ID, role); err != nil {
			return err
		}
	}
	return nil
}

func (r *usersRepo) AddOrgMembership(ctx context.Context, userID, orgID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO org_members (user_id, org_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, userID, orgID)
	return mapErr(err)
}

func (r *usersRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING`, userID, roleID)
	return mapErr(err)
}

// Link must run inside a transaction so both halves commit together.
func (r *usersRepo) Link(ctx context.Context, primaryID, secondaryID string, at time.Time) error {
	if primaryID == secondaryID {
		return store.ErrConflict
	}

	res, err := r.db.ExecContext(ctx, `UPDATE users
		SET linked_user_id = ?, canonical = 1, updated_at = ?
		WHERE id = ? AND linked_user_id IS NULL AND deleted_at IS NULL`,
		secondaryID, millis(at), primaryID)
	if err := expectOne(res, err, store.ErrConflict); err != nil {
		return err
	}

	res, err = r.db.ExecContext(ctx, `UPDATE users
		SET linked_user_id = ?, canonical = 0, updated_at = ?
		WHERE id = ? AND linked_user_id IS NULL AND deleted_at IS NULL`,
		primaryID, millis(at), secondaryID)
	return expectOne(res, err, store.ErrConflict)
}

func (r *usersRepo) Unlink(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users
		SET linked_user_id = NULL, canonical = 0, updated_at = ?
		WHERE id = ? OR linked_user_id = ?`,
		millis(at), userID, userID)
	return mapErr(err)
}

func (r *usersRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET deleted_at = ?, updated_at = ? WHERE id = ? AND deleted_at IS NULL`,
		millis(at), millis(at), id)
	return expectOne(res, err, store.ErrNotFound)
}
