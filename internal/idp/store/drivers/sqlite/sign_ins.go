package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

type signInsRepo struct {
	db dbtx
}

func (r *signInsRepo) Record(ctx context.Context, a domain.SignInAttempt) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO sign_in_attempts
		(id, subject, user_id, ip, method, outcome, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Subject, nullString(a.UserID), a.IP, string(a.Method), string(a.Outcome), millis(a.CreatedAt))
	return mapErr(err)
}

func (r *signInsRepo) ListSince(ctx context.Context, subject, ip string, since time.Time) ([]domain.SignInAttempt, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, subject, user_id, ip, method, outcome, created_at
		FROM sign_in_attempts WHERE subject = ? AND ip = ? AND created_at >= ?
		ORDER BY created_at DESC, id DESC`, subject, ip, millis(since))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.SignInAttempt
	for rows.Next() {
		var (
			a               domain.SignInAttempt
			user            sql.NullString
			method, outcome string
			created         int64
		)
		if err := rows.Scan(&a.ID, &a.Subject, &user, &a.IP, &method, &outcome, &created); err != nil {
			return nil, mapErr(err)
		}
		a.UserID = user.String
		a.Method = domain.SignInMethod(method)
		a.Outcome = domain.SignInOutcome(outcome)
		a.CreatedAt = fromMillis(created)
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

func (r *signInsRepo) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sign_in_attempts WHERE created_at < ?`, millis(cutoff))
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}
