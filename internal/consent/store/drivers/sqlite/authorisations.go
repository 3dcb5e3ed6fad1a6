package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

type authorisationsRepo struct {
	db dbtx
}

const authorisationColumns = `id, external_id, parent_id, type, instance_id,
	has_psu, psu_id, psu_id_type, psu_corporate_id, psu_corporate_id_type,
	sca_status, sca_approach, authentication_method_id, confirmation_code, redirect_uri, nok_redirect_uri,
	redirect_expires_at, expires_at, expired_at, created_at, updated_at, version`

func (r *authorisationsRepo) CreateAuthorisation(ctx context.Context, a domain.Authorisation) error {
	psu := psuOrZero(a.PSU)
	_, err := r.db.ExecContext(ctx, `INSERT INTO authorisations (`+authorisationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ExternalID, a.ParentID, string(a.Type), a.InstanceID,
		boolToInt(a.PSU != nil), psu.PsuID, psu.PsuIDType, psu.PsuCorporateID, psu.PsuCorporateIDType,
		string(a.ScaStatus), string(a.ScaApproach), a.AuthenticationMethodID, a.ConfirmationCode, a.RedirectURI, a.NokRedirectURI,
		toMillis(a.RedirectURLExpiresAt), toMillis(a.ExpiresAt), toMillis(a.ExpiredAt), toMillis(a.CreatedAt), toMillis(a.UpdatedAt), a.Version,
	)
	return mapConstraint(err)
}

func (r *authorisationsRepo) GetAuthorisation(ctx context.Context, externalID string) (domain.Authorisation, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+authorisationColumns+` FROM authorisations WHERE external_id = ?`, externalID)
	a, err := scanAuthorisation(row)
	if err != nil {
		return domain.Authorisation{}, mapNotFound(err)
	}
	return a, nil
}

func (r *authorisationsRepo) ListAuthorisationsByParent(ctx context.Context, parentID string) ([]domain.Authorisation, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+authorisationColumns+` FROM authorisations
		WHERE parent_id = ? ORDER BY created_at, id`, parentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Authorisation
	for rows.Next() {
		a, err := scanAuthorisation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *authorisationsRepo) UpdateAuthorisation(ctx context.Context, a domain.Authorisation, expectedVersion int64) (int64, error) {
	psu := psuOrZero(a.PSU)
	res, err := r.db.ExecContext(ctx, `UPDATE authorisations SET
			has_psu = ?, psu_id = ?, psu_id_type = ?, psu_corporate_id = ?, psu_corporate_id_type = ?,
			sca_status = ?, sca_approach = ?, authentication_method_id = ?, confirmation_code = ?,
			redirect_expires_at = ?, expires_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		boolToInt(a.PSU != nil), psu.PsuID, psu.PsuIDType, psu.PsuCorporateID, psu.PsuCorporateIDType,
		string(a.ScaStatus), string(a.ScaApproach), a.AuthenticationMethodID, a.ConfirmationCode,
		toMillis(a.RedirectURLExpiresAt), toMillis(a.ExpiresAt), toMillis(a.UpdatedAt),
		a.ID, expectedVersion,
	)
	if err != nil {
		return 0, err
	}
	if err := checkVersioned(ctx, r.db, res, "authorisations", a.ID); err != nil {
		return 0, err
	}
	return expectedVersion + 1, nil
}

func (r *authorisationsRepo) FailExpiredAuthorisations(ctx context.Context, now time.Time) (int, error) {
	ms := toMillis(now)
	res, err := r.db.ExecContext(ctx, `UPDATE authorisations
		SET sca_status = ?, expired_at = ?, updated_at = ?, version = version + 1
		WHERE sca_status NOT IN (?, ?, ?)
		  AND ((expires_at > 0 AND expires_at < ?) OR (redirect_expires_at > 0 AND redirect_expires_at < ?))`,
		string(domain.ScaFailed), ms, ms,
		string(domain.ScaFinalised), string(domain.ScaFailed), string(domain.ScaExempted),
		ms, ms,
	)
	return rowsAffected(res, err)
}

func psuOrZero(p *domain.PsuIdData) domain.PsuIdData {
	if p == nil {
		return domain.PsuIdData{}
	}
	return *p
}

func scanAuthorisation(s scanner) (domain.Authorisation, error) {
	var (
		a                                               domain.Authorisation
		psu                                             domain.PsuIdData
		typ, status, approach                           string
		hasPsu                                          int
		redirectExp, exp, expired, createdAt, updatedAt int64
	)
	err := s.Scan(
		&a.ID, &a.ExternalID, &a.ParentID, &typ, &a.InstanceID,
		&hasPsu, &psu.PsuID, &psu.PsuIDType, &psu.PsuCorporateID, &psu.PsuCorporateIDType,
		&status, &approach, &a.AuthenticationMethodID, &a.ConfirmationCode, &a.RedirectURI, &a.NokRedirectURI,
		&redirectExp, &exp, &expired, &createdAt, &updatedAt, &a.Version,
	)
	if err != nil {
		return domain.Authorisation{}, err
	}

	a.Type = domain.AuthorisationType(typ)
	a.ScaStatus = domain.ScaStatus(status)
	a.ScaApproach = domain.ScaApproach(approach)
	if hasPsu == 1 {
		a.PSU = &psu
	}
	a.RedirectURLExpiresAt = fromMillis(redirectExp)
	a.ExpiresAt = fromMillis(exp)
	a.ExpiredAt = fromMillis(expired)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return a, nil
}
