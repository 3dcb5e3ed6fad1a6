package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
	"github.com/aussiebroadwan/aisconsent/internal/consent/store"
)

type consentsRepo struct {
	db dbtx
}

const consentColumns = `id, external_id, tpp_id, instance_id, internal_request_id, status,
	recurring_indicator, combined_service_indicator, valid_until, expire_date, frequency_per_day,
	available_accounts, available_accounts_with_balance, all_psd2,
	owner_name_type, trusted_beneficiaries_type, multilevel_sca_required,
	tpp_redirect_uri, tpp_nok_redirect_uri, last_action_date,
	created_at, status_changed_at, checksum, version`

func (r *consentsRepo) CreateConsent(ctx context.Context, c domain.Consent) error {
	return atomic(ctx, r.db, func(db dbtx) error {
		_, err := db.ExecContext(ctx, `INSERT INTO consents (`+consentColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.ExternalID, c.TppID, c.InstanceID, c.InternalRequestID, string(c.Status),
			boolToInt(c.RecurringIndicator), boolToInt(c.CombinedServiceIndicator),
			domain.FormatDate(c.ValidUntil), mapOptionalDate(c.ExpireDate), c.FrequencyPerDay,
			string(c.Flags.AvailableAccounts), string(c.Flags.AvailableAccountsWithBalance), string(c.Flags.AllPsd2),
			string(c.OwnerNameType), string(c.TrustedBeneficiariesType), boolToInt(c.MultilevelScaRequired),
			c.TppRedirectURI, c.TppNokRedirectURI, mapOptionalDate(c.LastActionDate),
			toMillis(c.CreationTimestamp), toMillis(c.StatusChangeTimestamp), c.Checksum, c.Version,
		)
		if err != nil {
			return mapConstraint(err)
		}

		if err := writeAccess(ctx, db, c); err != nil {
			return err
		}
		if err := writePsus(ctx, db, c.ID, c.PSUs); err != nil {
			return err
		}
		for path, rec := range c.Usages {
			if err := upsertUsage(ctx, db, c.ID, path, rec); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *consentsRepo) GetConsentByExternalID(ctx context.Context, externalID string) (domain.Consent, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+consentColumns+` FROM consents WHERE external_id = ?`, externalID)
	c, err := scanConsent(row)
	if err != nil {
		return domain.Consent{}, mapNotFound(err)
	}

	rows, err := readAccessRows(ctx, r.db, c.ID)
	if err != nil {
		return domain.Consent{}, err
	}
	if c.TppAccess, err = store.FromRows(rows, domain.SourceTPP, c.OwnerNameType, c.TrustedBeneficiariesType); err != nil {
		return domain.Consent{}, err
	}
	if c.AspspAccess, err = store.FromRows(rows, domain.SourceASPSP, c.OwnerNameType, c.TrustedBeneficiariesType); err != nil {
		return domain.Consent{}, err
	}

	if c.PSUs, err = readPsus(ctx, r.db, c.ID); err != nil {
		return domain.Consent{}, err
	}
	if c.Usages, err = readUsages(ctx, r.db, c.ID); err != nil {
		return domain.Consent{}, err
	}

	auths := &authorisationsRepo{db: r.db}
	if c.Authorisations, err = auths.ListAuthorisationsByParent(ctx, c.ExternalID); err != nil {
		return domain.Consent{}, err
	}
	return c, nil
}

func (r *consentsRepo) UpdateConsent(ctx context.Context, c domain.Consent, expectedVersion int64) (int64, error) {
	var next int64
	err := atomic(ctx, r.db, func(db dbtx) error {
		res, err := db.ExecContext(ctx, `UPDATE consents SET
				status = ?, recurring_indicator = ?, valid_until = ?, expire_date = ?, frequency_per_day = ?,
				available_accounts = ?, available_accounts_with_balance = ?, all_psd2 = ?,
				owner_name_type = ?, trusted_beneficiaries_type = ?, multilevel_sca_required = ?,
				last_action_date = ?, status_changed_at = ?, checksum = ?, version = version + 1
			WHERE id = ? AND version = ?`,
			string(c.Status), boolToInt(c.RecurringIndicator), domain.FormatDate(c.ValidUntil),
			mapOptionalDate(c.ExpireDate), c.FrequencyPerDay,
			string(c.Flags.AvailableAccounts), string(c.Flags.AvailableAccountsWithBalance), string(c.Flags.AllPsd2),
			string(c.OwnerNameType), string(c.TrustedBeneficiariesType), boolToInt(c.MultilevelScaRequired),
			mapOptionalDate(c.LastActionDate), toMillis(c.StatusChangeTimestamp), c.Checksum,
			c.ID, expectedVersion,
		)
		if err != nil {
			return err
		}
		if err := checkVersioned(ctx, db, res, "consents", c.ID); err != nil {
			return err
		}

		if _, err := db.ExecContext(ctx, `DELETE FROM consent_access WHERE consent_id = ?`, c.ID); err != nil {
			return err
		}
		if err := writeAccess(ctx, db, c); err != nil {
			return err
		}
		if _, err := db.ExecContext(ctx, `DELETE FROM consent_psus WHERE consent_id = ?`, c.ID); err != nil {
			return err
		}
		if err := writePsus(ctx, db, c.ID, c.PSUs); err != nil {
			return err
		}
		next = expectedVersion + 1
		return nil
	})
	return next, err
}

func (r *consentsRepo) SaveUsage(
	ctx context.Context,
	consentID, path string,
	rec domain.UsageRecord,
	lastAction time.Time,
	expectedVersion int64,
) (int64, error) {
	var next int64
	err := atomic(ctx, r.db, func(db dbtx) error {
		res, err := db.ExecContext(ctx,
			`UPDATE consents SET last_action_date = ?, version = version + 1 WHERE id = ? AND version = ?`,
			domain.FormatDate(lastAction), consentID, expectedVersion,
		)
		if err != nil {
			return err
		}
		if err := checkVersioned(ctx, db, res, "consents", consentID); err != nil {
			return err
		}
		if err := upsertUsage(ctx, db, consentID, path, rec); err != nil {
			return err
		}
		next = expectedVersion + 1
		return nil
	})
	return next, err
}

func (r *consentsRepo) ExpireConsents(ctx context.Context, today, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE consents
		SET status = ?, expire_date = ?, status_changed_at = ?, version = version + 1
		WHERE status = ? AND valid_until < ?`,
		string(domain.ConsentExpired), domain.FormatDate(today), toMillis(now),
		string(domain.ConsentValid), domain.FormatDate(today),
	)
	return rowsAffected(res, err)
}

func (r *consentsRepo) RejectStaleConsents(ctx context.Context, createdBefore, now time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE consents
		SET status = ?, status_changed_at = ?, version = version + 1
		WHERE status IN (?, ?) AND created_at < ?`,
		string(domain.ConsentRejected), toMillis(now),
		string(domain.ConsentReceived), string(domain.ConsentPartiallyAuthorised), toMillis(createdBefore),
	)
	return rowsAffected(res, err)
}

// checkVersioned turns a zero-row versioned update into ErrNotFound or
// ErrVersionConflict.
func checkVersioned(ctx context.Context, db dbtx, res sql.Result, table, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var one int
	err = db.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return store.ErrVersionConflict
}

func rowsAffected(res sql.Result, err error) (int, error) {
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanConsent(s scanner) (domain.Consent, error) {
	var (
		c                               domain.Consent
		status, validUntil              string
		availAcc, availBal, allPsd2     string
		ownerType, benefType            string
		recurring, combined, multilevel int
		expireDate, lastAction          sql.NullString
		createdAt, statusChangedAt      int64
	)
	err := s.Scan(
		&c.ID, &c.ExternalID, &c.TppID, &c.InstanceID, &c.InternalRequestID, &status,
		&recurring, &combined, &validUntil, &expireDate, &c.FrequencyPerDay,
		&availAcc, &availBal, &allPsd2,
		&ownerType, &benefType, &multilevel,
		&c.TppRedirectURI, &c.TppNokRedirectURI, &lastAction,
		&createdAt, &statusChangedAt, &c.Checksum, &c.Version,
	)
	if err != nil {
		return domain.Consent{}, err
	}

	c.Status = domain.ConsentStatus(status)
	c.RecurringIndicator = recurring == 1
	c.CombinedServiceIndicator = combined == 1
	c.MultilevelScaRequired = multilevel == 1
	c.Flags = domain.AccessFlags{
		AvailableAccounts:            domain.AccountAccessType(availAcc),
		AvailableAccountsWithBalance: domain.AccountAccessType(availBal),
		AllPsd2:                      domain.AccountAccessType(allPsd2),
	}
	c.OwnerNameType = domain.AdditionalAccountInformationType(ownerType)
	c.TrustedBeneficiariesType = domain.AdditionalAccountInformationType(benefType)
	c.CreationTimestamp = fromMillis(createdAt)
	c.StatusChangeTimestamp = fromMillis(statusChangedAt)

	if c.ValidUntil, err = time.Parse(dateLayout, validUntil); err != nil {
		return domain.Consent{}, fmt.Errorf("%w: valid_until %q", store.ErrInvalidData, validUntil)
	}
	if c.ExpireDate, err = mapNullDate(expireDate); err != nil {
		return domain.Consent{}, fmt.Errorf("%w: expire_date: %v", store.ErrInvalidData, err)
	}
	if c.LastActionDate, err = mapNullDate(lastAction); err != nil {
		return domain.Consent{}, fmt.Errorf("%w: last_action_date: %v", store.ErrInvalidData, err)
	}
	return c, nil
}

func writeAccess(ctx context.Context, db dbtx, c domain.Consent) error {
	var rows []store.AccessRow
	for _, set := range []struct {
		access domain.AccountAccess
		kind   domain.AccessSource
	}{
		{c.TppAccess, domain.SourceTPP},
		{c.AspspAccess, domain.SourceASPSP},
	} {
		r, err := store.ToRows(set.access, set.kind, c.OwnerNameType, c.TrustedBeneficiariesType)
		if err != nil {
			return err
		}
		rows = append(rows, r...)
	}

	positions := map[string]int{}
	for _, row := range rows {
		key := string(row.Kind) + "/" + string(row.TypeAccess)
		pos := positions[key]
		positions[key] = pos + 1

		ref := row.Reference
		_, err := db.ExecContext(ctx, `INSERT INTO consent_access
			(consent_id, kind, type_access, position, iban, bban, pan, masked_pan, msisdn, currency, resource_id, aspsp_account_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, string(row.Kind), string(row.TypeAccess), pos,
			ref.IBAN, ref.BBAN, ref.PAN, ref.MaskedPAN, ref.MSISDN, ref.Currency, ref.ResourceID, ref.AspspAccountID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func readAccessRows(ctx context.Context, db dbtx, consentID string) ([]store.AccessRow, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, type_access,
			iban, bban, pan, masked_pan, msisdn, currency, resource_id, aspsp_account_id
		FROM consent_access WHERE consent_id = ?
		ORDER BY kind, type_access, position`, consentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.AccessRow
	for rows.Next() {
		var (
			row              store.AccessRow
			kind, typeAccess string
			ref              = &row.Reference
		)
		if err := rows.Scan(&kind, &typeAccess,
			&ref.IBAN, &ref.BBAN, &ref.PAN, &ref.MaskedPAN, &ref.MSISDN, &ref.Currency, &ref.ResourceID, &ref.AspspAccountID,
		); err != nil {
			return nil, err
		}
		row.Kind = domain.AccessSource(kind)
		row.TypeAccess = domain.TypeAccess(typeAccess)
		out = append(out, row)
	}
	return out, rows.Err()
}

func writePsus(ctx context.Context, db dbtx, consentID string, psus []domain.PsuIdData) error {
	for i, p := range psus {
		_, err := db.ExecContext(ctx, `INSERT INTO consent_psus
			(consent_id, position, psu_id, psu_id_type, psu_corporate_id, psu_corporate_id_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
			consentID, i, p.PsuID, p.PsuIDType, p.PsuCorporateID, p.PsuCorporateIDType,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func readPsus(ctx context.Context, db dbtx, consentID string) ([]domain.PsuIdData, error) {
	rows, err := db.QueryContext(ctx, `SELECT psu_id, psu_id_type, psu_corporate_id, psu_corporate_id_type
		FROM consent_psus WHERE consent_id = ? ORDER BY position`, consentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.PsuIdData
	for rows.Next() {
		var p domain.PsuIdData
		if err := rows.Scan(&p.PsuID, &p.PsuIDType, &p.PsuCorporateID, &p.PsuCorporateIDType); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func upsertUsage(ctx context.Context, db dbtx, consentID, path string, rec domain.UsageRecord) error {
	_, err := db.ExecContext(ctx, `INSERT INTO consent_usages (consent_id, path, remaining, usage_date)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (consent_id, path) DO UPDATE SET remaining = excluded.remaining, usage_date = excluded.usage_date`,
		consentID, path, rec.Remaining, rec.Date,
	)
	return err
}

func readUsages(ctx context.Context, db dbtx, consentID string) (map[string]domain.UsageRecord, error) {
	rows, err := db.QueryContext(ctx, `SELECT path, remaining, usage_date FROM consent_usages WHERE consent_id = ?`, consentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]domain.UsageRecord{}
	for rows.Next() {
		var (
			path string
			rec  domain.UsageRecord
		)
		if err := rows.Scan(&path, &rec.Remaining, &rec.Date); err != nil {
			return nil, err
		}
		out[path] = rec
	}
	return out, rows.Err()
}
