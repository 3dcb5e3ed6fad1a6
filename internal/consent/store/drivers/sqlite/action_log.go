package sqlite

import (
	"context"

	"github.com/aussiebroadwan/aisconsent/internal/consent/domain"
)

type actionLogRepo struct {
	db dbtx
}

func (r *actionLogRepo) AppendAction(ctx context.Context, e domain.ActionLogEntry) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO action_log
		(id, tpp_id, consent_id, action_status, request_uri, update_usage, resource_id, transaction_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TppID, e.ConsentID, string(e.ActionStatus), e.RequestURI, boolToInt(e.UpdateUsage),
		e.ResourceID, e.TransactionID, toMillis(e.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *actionLogRepo) ListActions(ctx context.Context, consentID string, limit int) ([]domain.ActionLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT
			id, tpp_id, consent_id, action_status, request_uri, update_usage, resource_id, transaction_id, created_at
		FROM action_log WHERE consent_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, consentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ActionLogEntry
	for rows.Next() {
		var (
			e         domain.ActionLogEntry
			status    string
			update    int
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.TppID, &e.ConsentID, &status, &e.RequestURI, &update,
			&e.ResourceID, &e.TransactionID, &createdAt); err != nil {
			return nil, err
		}
		e.ActionStatus = domain.ActionStatus(status)
		e.UpdateUsage = update == 1
		e.CreatedAt = fromMillis(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}
