package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type factorsRepo struct {
	db dbtx
}

const factorColumns = `id, user_id, kind, secret, credential_id, public_key, sign_count,
	verified, disabled, created_at, last_used_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanFactor(s scanner) (domain.Factor, error) {
	var (
		f                  domain.Factor
		kind               string
		cred               sql.NullString
		count              int64
		verified, disabled int
		created            int64
		used               sql.NullInt64
	)
	if err := s.Scan(&f.ID, &f.UserID, &kind, &f.Secret, &cred, &f.PublicKey, &count,
		&verified, &disabled, &created, &used); err != nil {
		return domain.Factor{}, mapErr(err)
	}
	f.Kind = domain.FactorKind(kind)
	f.CredentialID = cred.String
	f.SignCount = uint32(count) // #nosec G115 - stored from a uint32
	f.Verified = verified == 1
	f.Disabled = disabled == 1
	f.CreatedAt = fromMillis(created)
	f.LastUsedAt = timePtr(used)
	return f, nil
}

func (r *factorsRepo) ListByUser(ctx context.Context, userID string) ([]domain.Factor, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []domain.Factor
	for rows.Next() {
		f, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, mapErr(rows.Err())
}

func (r *factorsRepo) GetByKind(ctx context.Context, userID string, kind domain.FactorKind) (domain.Factor, error) {
	return scanFactor(r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = ? AND kind = ?
		ORDER BY created_at DESC LIMIT 1`, userID, string(kind)))
}

func (r *factorsRepo) GetPasskey(ctx context.Context, userID, credentialID string) (domain.Factor, error) {
	return scanFactor(r.db.QueryRowContext(ctx,
		`SELECT `+factorColumns+` FROM mfa_factors WHERE user_id = ? AND kind = 'passkey' AND credential_id = ?`,
		userID, credentialID))
}

func (r *factorsRepo) Create(ctx context.Context, f domain.Factor) error {
	if f.Kind != domain.FactorPasskey {
		// A pending enrollment is replaced; a verified one is kept.
		if _, err := r.db.ExecContext(ctx,
			`DELETE FROM mfa_factors WHERE user_id = ? AND kind = ? AND verified = 0`,
			f.UserID, string(f.Kind)); err != nil {
			return mapErr(err)
		}
	}

	_, err := r.db.ExecContext(ctx, `INSERT INTO mfa_factors (`+factorColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		f.ID, f.UserID, string(f.Kind), f.Secret, nullString(f.CredentialID), f.PublicKey, int64(f.SignCount),
		boolInt(f.Verified), boolInt(f.Disabled), millis(f.CreatedAt))
	return mapErr(err)
}

func (r *factorsRepo) MarkVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE mfa_factors SET verified = 1, last_used_at = ? WHERE id = ?`, millis(at), id)
	return expectOne(res, err, store.ErrNotFound)
}

func (r *factorsRepo) AdvanceSignCount(ctx context.Context, id string, count uint32, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE mfa_factors
		SET sign_count = ?, last_used_at = ?
		WHERE id = ? AND disabled = 0 AND sign_count < ?`,
		int64(count), millis(at), id, int64(count))
	return expectOne(res, err, store.ErrConflict)
}

func (r *factorsRepo) Disable(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE mfa_factors SET disabled = 1 WHERE id = ?`, id)
	return mapErr(err)
}

func (r *factorsRepo) Touch(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE mfa_factors SET last_used_at = ? WHERE id = ?`, millis(at), id)
	return mapErr(err)
}

func (r *factorsRepo) DeleteKind(ctx context.Context, userID string, kind domain.FactorKind) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_factors WHERE user_id = ? AND kind = ?`, userID, string(kind))
	if err != nil {
		return 0, mapErr(err)
	}
	n, err := res.RowsAffected()
	return n, mapErr(err)
}
