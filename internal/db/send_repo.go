package db

import (
	"context"
	"time"

	"shiksha/internal/types"
)

// SendRepository provides data access for the notification_sends table.
// One row is written per delivery attempt, synchronously during dispatch;
// billing and archival read the same rows later.
type SendRepository struct {
	db DBTX
}

// NewSendRepository creates a new SendRepository backed by the given database
// connection (pool or transaction).
func NewSendRepository(db DBTX) *SendRepository {
	return &SendRepository{db: db}
}

// Claim inserts one notification send row in PENDING status, keyed by its
// deterministic ID. Returns false when the row already exists, which means a
// previous delivery of the same message already attempted this pair. Units
// and cost are captured as they were at claim time; billing never recomputes
// them.
func (r *SendRepository) Claim(ctx context.Context, s *types.NotificationSend) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO notification_sends
		 (id, job_id, organization_id, recipient_id, channel, status,
		  units, cost_paise, sent_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		s.ID,
		s.JobID,
		s.OrganizationID,
		s.RecipientID,
		string(s.Channel),
		string(types.SendStatusPending),
		s.Units,
		s.CostPaise,
		s.SentAt,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to claim notification send", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Finalize records the outcome of a claimed send: terminal status, the
// provider's message ID when one came back, and the failure detail otherwise.
func (r *SendRepository) Finalize(ctx context.Context, s *types.NotificationSend) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notification_sends
		 SET status = $2, sent_at = $3, error_detail = $4, provider_message_id = $5
		 WHERE id = $1`,
		s.ID,
		string(s.Status),
		s.SentAt,
		nilIfEmpty(s.ErrorDetail),
		nilIfEmpty(s.ProviderMessageID),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to finalize notification send", err)
	}
	return nil
}

// Status returns the recorded status of one send row.
func (r *SendRepository) Status(ctx context.Context, id string) (types.SendStatus, error) {
	var status string
	err := r.db.QueryRow(ctx,
		`SELECT status FROM notification_sends WHERE id = $1`,
		id,
	).Scan(&status)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to read notification send status", err)
	}
	return types.SendStatus(status), nil
}

// ListOlderThan returns up to limit send rows with sent_at before the cutoff,
// oldest first. Used by the archive task to page through expired rows.
func (r *SendRepository) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]types.NotificationSend, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, job_id, organization_id, recipient_id, channel, status,
		        units, cost_paise, sent_at,
		        COALESCE(error_detail, ''), COALESCE(provider_message_id, '')
		 FROM notification_sends
		 WHERE sent_at < $1
		 ORDER BY sent_at ASC
		 LIMIT $2`,
		cutoff,
		limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired notification sends", err)
	}
	defer rows.Close()

	var sends []types.NotificationSend
	for rows.Next() {
		var s types.NotificationSend
		var channel, status string
		if err := rows.Scan(
			&s.ID,
			&s.JobID,
			&s.OrganizationID,
			&s.RecipientID,
			&channel,
			&status,
			&s.Units,
			&s.CostPaise,
			&s.SentAt,
			&s.ErrorDetail,
			&s.ProviderMessageID,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification send", err)
		}
		s.Channel = types.Channel(channel)
		s.Status = types.SendStatus(status)
		sends = append(sends, s)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification sends", err)
	}
	return sends, nil
}

// DeleteByIDs removes the given send rows and returns the number deleted.
// Called by the archive task only after the batch has been durably exported.
func (r *SendRepository) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.db.Exec(ctx,
		`DELETE FROM notification_sends WHERE id = ANY($1)`,
		ids,
	)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to delete archived notification sends", err)
	}
	return tag.RowsAffected(), nil
}

// nilIfEmpty converts "" to a NULL-able nil for optional text columns.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
