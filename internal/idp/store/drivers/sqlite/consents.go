package sqlite

import (
	"context"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
)

type consentsRepo struct {
	db dbtx
}

func (r *consentsRepo) Get(ctx context.Context, userID, clientID string) (domain.Consent, error) {
	var (
		scopes  string
		updated int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT scopes, updated_at FROM consents WHERE user_id = ? AND client_id = ?`,
		userID, clientID).Scan(&scopes, &updated)
	if err != nil {
		return domain.Consent{}, mapErr(err)
	}
	return domain.Consent{UserID: userID, ClientID: clientID, Scopes: splitList(scopes), UpdatedAt: fromMillis(updated)}, nil
}

func (r *consentsRepo) Upsert(ctx context.Context, c domain.Consent) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO consents (user_id, client_id, scopes, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, client_id) DO UPDATE SET scopes = excluded.scopes, updated_at = excluded.updated_at`,
		c.UserID, c.ClientID, joinList(c.Scopes), millis(c.UpdatedAt))
	return mapErr(err)
}
