package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const esclarecimentoColumns = `id,checklist_item_id,question,asked_by_id,asked_at,answer,answered_by_id,answered_at`

func scanEsclarecimento(scan func(dest ...any) error) (domain.Esclarecimento, error) {
	var e domain.Esclarecimento
	var answer, answeredBy, answeredAt sql.NullString
	if err := scan(&e.ID, &e.ChecklistItemID, &e.Question, &e.AskedByID, &e.AskedAt, &answer, &answeredBy, &answeredAt); err != nil {
		return domain.Esclarecimento{}, err
	}
	e.Answer = ptr(answer)
	e.AnsweredByID = ptr(answeredBy)
	e.AnsweredAt = ptr(answeredAt)
	return e, nil
}

func (r Repo) InsertEsclarecimentoTx(ctx context.Context, tx *sql.Tx, e domain.Esclarecimento) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO esclarecimentos(id,checklist_item_id,question,asked_by_id,asked_at) VALUES (?,?,?,?,?)`,
		e.ID, e.ChecklistItemID, e.Question, e.AskedByID, e.AskedAt)
	if err != nil {
		return fmt.Errorf("insert esclarecimento: %w", err)
	}
	return nil
}

func (r Repo) GetEsclarecimento(ctx context.Context, id string) (domain.Esclarecimento, error) {
	return r.GetEsclarecimentoTx(ctx, nil, id)
}

func (r Repo) GetEsclarecimentoTx(ctx context.Context, tx *sql.Tx, id string) (domain.Esclarecimento, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+esclarecimentoColumns+` FROM esclarecimentos WHERE id=?`, id)
	e, err := scanEsclarecimento(row.Scan)
	return e, notFound(err)
}

// AnswerEsclarecimentoTx records the answer only while the row is still
// unanswered. Reports whether the row was updated.
func (r Repo) AnswerEsclarecimentoTx(ctx context.Context, tx *sql.Tx, id, answer, answeredByID, answeredAt string) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE esclarecimentos SET answer=?, answered_by_id=?, answered_at=? WHERE id=? AND answer IS NULL`,
		answer, answeredByID, answeredAt, id)
	if err != nil {
		return false, fmt.Errorf("answer esclarecimento: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ListEsclarecimentosTx returns the esclarecimentos of an item, newest first.
func (r Repo) ListEsclarecimentosTx(ctx context.Context, tx *sql.Tx, itemID string) ([]domain.Esclarecimento, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+esclarecimentoColumns+` FROM esclarecimentos WHERE checklist_item_id=? ORDER BY seq DESC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Esclarecimento
	for rows.Next() {
		e, err := scanEsclarecimento(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
