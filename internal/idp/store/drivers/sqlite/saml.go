package sqlite

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/tollgate/internal/idp/domain"
	"github.com/aussiebroadwan/tollgate/internal/idp/store"
)

type samlRepo struct {
	db dbtx
}

const idpColumns = `id, org_id, name, entity_id, sso_url, certificate, active, auto_provision,
	link_by_email, default_role_id, mapping_email, mapping_username, mapping_locale`

func (r *samlRepo) GetIdPByName(ctx context.Context, name string) (domain.SAMLIdP, error) {
	return r.getIdP(ctx, `SELECT `+idpColumns+` FROM saml_idps WHERE name = ?`, name)
}

func (r *samlRepo) GetIdPByEntityID(ctx context.Context, entityID string) (domain.SAMLIdP, error) {
	return r.getIdP(ctx, `SELECT `+idpColumns+` FROM saml_idps WHERE entity_id = ?`, entityID)
}

func (r *samlRepo) getIdP(ctx context.Context, query, arg string) (domain.SAMLIdP, error) {
	var (
		idp                  domain.SAMLIdP
		active, auto, byMail int
		role                 sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&idp.ID, &idp.OrgID, &idp.Name, &idp.EntityID, &idp.SSOURL, &idp.Certificate,
		&active, &auto, &byMail, &role,
		&idp.Mapping.Email, &idp.Mapping.Username, &idp.Mapping.Locale,
	)
	if err != nil {
		return domain.SAMLIdP{}, mapErr(err)
	}
	idp.Active = active == 1
	idp.AutoProvision = auto == 1
	idp.LinkByEmail = byMail == 1
	idp.DefaultRoleID = role.String
	return idp, nil
}

func (r *samlRepo) CreateIdP(ctx context.Context, idp domain.SAMLIdP) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO saml_idps (`+idpColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		idp.ID, idp.OrgID, idp.Name, idp.EntityID, idp.SSOURL, idp.Certificate,
		boolInt(idp.Active), boolInt(idp.AutoProvision), boolInt(idp.LinkByEmail), nullString(idp.DefaultRoleID),
		idp.Mapping.Email, idp.Mapping.Username, idp.Mapping.Locale,
	)
	return mapErr(err)
}

func (r *samlRepo) SetIdPActive(ctx context.Context, id string, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE saml_idps SET active = ? WHERE id = ?`, boolInt(active), id)
	return expectOne(res, err, store.ErrNotFound)
}

func (r *samlRepo) GetIdentity(ctx context.Context, idpID, subject string) (domain.SAMLIdentity, error) {
	var (
		id      = domain.SAMLIdentity{IdPID: idpID, Subject: subject}
		created int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, created_at FROM saml_identities WHERE idp_id = ? AND subject = ?`,
		idpID, subject).Scan(&id.UserID, &created)
	if err != nil {
		return domain.SAMLIdentity{}, mapErr(err)
	}
	id.CreatedAt = fromMillis(created)
	return id, nil
}

func (r *samlRepo) CreateIdentity(ctx context.Context, id domain.SAMLIdentity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO saml_identities (idp_id, subject, user_id, created_at) VALUES (?, ?, ?, ?)`,
		id.IdPID, id.Subject, id.UserID, millis(id.CreatedAt))
	return mapErr(err)
}
