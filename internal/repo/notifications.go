package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

// InsertNotificationTx stores n unless the user already holds a
// notification of the same type for the same esclarecimento. Reports
// whether a row was written.
func (r Repo) InsertNotificationTx(ctx context.Context, tx *sql.Tx, n domain.Notification) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO notifications(id,user_id,type,esclarecimento_id,read,created_at) VALUES (?,?,?,?,?,?)
ON CONFLICT DO NOTHING`,
		n.ID, n.UserID, string(n.Type), nullablePtr(n.EsclarecimentoID), n.Read, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var typ string
	var escID sql.NullString
	if err := scan(&n.ID, &n.UserID, &typ, &escID, &n.Read, &n.CreatedAt); err != nil {
		return domain.Notification{}, err
	}
	n.Type = domain.NotificationType(typ)
	n.EsclarecimentoID = ptr(escID)
	return n, nil
}

func (r Repo) GetNotification(ctx context.Context, id string) (domain.Notification, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,user_id,type,esclarecimento_id,read,created_at FROM notifications WHERE id=?`, id)
	n, err := scanNotification(row.Scan)
	return n, notFound(err)
}

// FindNotificationTx returns the notification a user already holds for an
// esclarecimento and type.
func (r Repo) FindNotificationTx(ctx context.Context, tx *sql.Tx, userID string, kind domain.NotificationType, esclarecimentoID string) (domain.Notification, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT id,user_id,type,esclarecimento_id,read,created_at FROM notifications
WHERE user_id=? AND type=? AND esclarecimento_id=? LIMIT 1`, userID, string(kind), esclarecimentoID)
	n, err := scanNotification(row.Scan)
	return n, notFound(err)
}

// MarkNotificationRead sets the read flag. Marking an already read
// notification succeeds without change.
func (r Repo) MarkNotificationRead(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1 WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotifications returns a user's notifications newest first.
func (r Repo) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	query := `SELECT id,user_id,type,esclarecimento_id,read,created_at FROM notifications WHERE user_id=?`
	if unreadOnly {
		query += ` AND read=0`
	}
	query += ` ORDER BY created_at DESC, seq DESC`
	rows, err := r.DB.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}
