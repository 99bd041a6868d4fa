package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
	"github.com/aussiebroadwan/tollgate/pkg/idx"
)

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) Replace(ctx context.Context, userID string, hashes []string, at time.Time) error {
	if err := r.DeleteAll(ctx, userID); err != nil {
		return err
	}
	for _, h := range hashes {
		if _, err := r.db.ExecContext(ctx,
			`INSERT INTO recovery_codes (id, user_id, code_hash, created_at) VALUES (?, ?, ?, ?)`,
			idx.New().String(), userID, h, millis(at)); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

func (r *recoveryCodesRepo) Use(ctx context.Context, userID, hash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE recovery_codes SET used_at = ?
		WHERE user_id = ? AND code_hash = ? AND used_at IS NULL`,
		millis(at), userID, hash)
	return expectOne(res, err, store.ErrNotFound)
}

func (r *recoveryCodesRepo) Remaining(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM recovery_codes WHERE user_id = ? AND used_at IS NULL`, userID).Scan(&n)
	return n, mapErr(err)
}

func (r *recoveryCodesRepo) DeleteAll(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return mapErr(err)
}
