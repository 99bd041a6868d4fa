package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type auditRepo struct {
	db dbtx
}

func (r *auditRepo) Append(ctx context.Context, rec store.AuditRecord) error {
	detail := rec.Detail
	if detail == "" {
		detail = "{}"
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO audit_logs (id, type, user_id, client_id, ip, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Type, nullString(rec.UserID), nullString(rec.ClientID), nullString(rec.IP), detail,
		millis(rec.CreatedAt))
	return mapErr(err)
}

func (r *auditRepo) ListByUser(ctx context.Context, userID string, limit int) ([]store.AuditRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, type, user_id, client_id, ip, detail, created_at
		FROM audit_logs WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []store.AuditRecord
	for rows.Next() {
		var (
			rec              store.AuditRecord
			user, client, ip sql.NullString
			created          int64
		)
		if err := rows.Scan(&rec.ID, &rec.Type, &user, &client, &ip, &rec.Detail, &created); err != nil {
			return nil, mapErr(err)
		}
		rec.UserID = user.String
		rec.ClientID = client.String
		rec.IP = ip.String
		rec.CreatedAt = fromMillis(created)
		out = append(out, rec)
	}
	return out, mapErr(rows.Err())
}
