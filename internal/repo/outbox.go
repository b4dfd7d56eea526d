package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const (
	OutboxPending = "PENDING"
	OutboxDone    = "DONE"

	TargetRole = "role"
	TargetUser = "user"
)

// OutboxEntry is a notification fan-out recorded with the workflow write
// that triggered it.
type OutboxEntry struct {
	ID               string                  `json:"id"`
	TargetKind       string                  `json:"target_kind"`
	Target           string                  `json:"target"`
	Type             domain.NotificationType `json:"type"`
	EsclarecimentoID string                  `json:"esclarecimento_id"`
	Status           string                  `json:"status"`
	Attempts         int                     `json:"attempts"`
	LastError        string                  `json:"last_error,omitempty"`
	ScheduledAt      string                  `json:"scheduled_at"`
	// Recipients is the membership of a role target taken when the entry
	// was scheduled. Redelivery notifies exactly these users.
	Recipients []string `json:"recipients,omitempty"`
}

// ScheduleFanoutTx records a pending fan-out. The id doubles as the
// idempotency key.
func (r Repo) ScheduleFanoutTx(ctx context.Context, tx *sql.Tx, e OutboxEntry) error {
	recipients := e.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	encoded, err := json.Marshal(recipients)
	if err != nil {
		return fmt.Errorf("encode fanout recipients: %w", err)
	}
	_, err = r.q(tx).ExecContext(ctx, `INSERT INTO notification_outbox(id,target_kind,target,type,esclarecimento_id,status,scheduled_at,recipients)
VALUES (?,?,?,?,?,'PENDING',?,?) ON CONFLICT(id) DO NOTHING`,
		e.ID, e.TargetKind, e.Target, string(e.Type), e.EsclarecimentoID, e.ScheduledAt, string(encoded))
	if err != nil {
		return fmt.Errorf("schedule fanout: %w", err)
	}
	return nil
}

func (r Repo) PendingFanouts(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT id,target_kind,target,type,esclarecimento_id,status,attempts,COALESCE(last_error,''),scheduled_at,recipients
FROM notification_outbox WHERE status='PENDING' ORDER BY scheduled_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var typ, recipients string
		if err := rows.Scan(&e.ID, &e.TargetKind, &e.Target, &typ, &e.EsclarecimentoID, &e.Status, &e.Attempts, &e.LastError, &e.ScheduledAt, &recipients); err != nil {
			return nil, err
		}
		e.Type = domain.NotificationType(typ)
		if err := json.Unmarshal([]byte(recipients), &e.Recipients); err != nil {
			return nil, fmt.Errorf("decode recipients of %s: %w", e.ID, err)
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r Repo) MarkFanoutDone(ctx context.Context, id string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notification_outbox SET status='DONE', attempts=attempts+1, last_error=NULL WHERE id=?`, id)
	return err
}

func (r Repo) MarkFanoutFailed(ctx context.Context, id, reason string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notification_outbox SET attempts=attempts+1, last_error=? WHERE id=?`, reason, id)
	return err
}
