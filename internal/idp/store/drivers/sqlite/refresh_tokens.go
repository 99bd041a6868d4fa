package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) Create(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO refresh_tokens
		(id, family_id, parent_id, token_hash, user_id, client_id, org_id, scopes, amr,
		 session_id, actor_id, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.FamilyID, nullString(t.ParentID), t.TokenHash, t.UserID, t.ClientID, nullString(t.OrgID),
		joinList(t.Scopes), joinList(t.AMR), t.SessionID, nullString(t.ActorID),
		millis(t.ExpiresAt), millis(t.CreatedAt),
	)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                            domain.RefreshToken
		parent, org, actor, replaced sql.NullString
		scopes, amr                  string
		expires, created             int64
		revoked, superseded          sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, family_id, parent_id, token_hash, user_id, client_id,
		org_id, scopes, amr, session_id, actor_id, expires_at, created_at, revoked_at, superseded_at, replaced_by
		FROM refresh_tokens WHERE token_hash = ?`, hash).Scan(
		&t.ID, &t.FamilyID, &parent, &t.TokenHash, &t.UserID, &t.ClientID,
		&org, &scopes, &amr, &t.SessionID, &actor, &expires, &created, &revoked, &superseded, &replaced,
	)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	t.ParentID = parent.String
	t.OrgID = org.String
	t.ActorID = actor.String
	t.ReplacedBy = replaced.String
	t.Scopes = splitList(scopes)
	t.AMR = splitList(amr)
	t.ExpiresAt = fromMillis(expires)
	t.CreatedAt = fromMillis(created)
	t.RevokedAt = timePtr(revoked)
	t.SupersededAt = timePtr(superseded)
	return t, nil
}

func (r *refreshTokensRepo) Supersede(ctx context.Context, id, replacedBy string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE refresh_tokens
		SET superseded_at = ?, replaced_by = ?
		WHERE id = ? AND superseded_at IS NULL AND revoked_at IS NULL`,
		millis(at), replacedBy, id)
	return expectOne(res, err, store.ErrConflict)
}

func (r *refreshTokensRepo) Revoke(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`, millis(at), id)
	return mapErr(err)
}

func (r *refreshTokensRepo) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	return r.affected(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE family_id = ? AND revoked_at IS NULL`,
		millis(at), familyID)
}

func (r *refreshTokensRepo) RevokeByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.affected(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`,
		millis(at), userID)
}

func (r *refreshTokensRepo) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	return r.affected(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, millis(cutoff))
}

func (r *refreshTokensRepo) affected(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}
