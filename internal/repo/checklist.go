package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

// InsertTemplateTx adds a template unless one with the same type and text
// exists. Reports whether a row was written.
func (r Repo) InsertTemplateTx(ctx context.Context, tx *sql.Tx, t domain.ChecklistTemplate) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO checklist_templates(id,type,text,created_at) VALUES (?,?,?,?)`,
		t.ID, string(t.Type), t.Text, t.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert template: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListTemplates returns the templates of one type in creation order.
func (r Repo) ListTemplates(ctx context.Context, typ domain.ChecklistType) ([]domain.ChecklistTemplate, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,type,text,created_at FROM checklist_templates WHERE type=? ORDER BY created_at ASC, seq ASC`, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistTemplate
	for rows.Next() {
		var t domain.ChecklistTemplate
		var typ string
		if err := rows.Scan(&t.ID, &typ, &t.Text, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.Type = domain.ChecklistType(typ)
		res = append(res, t)
	}
	return res, rows.Err()
}

const itemColumns = `i.id,i.contrato_id,i.checklist_id,i.status,i.current_observation,i.updated_at,t.id,t.type,t.text,t.created_at`

const itemFrom = ` FROM checklist_items i JOIN checklist_templates t ON t.id=i.checklist_id`

func scanItem(scan func(dest ...any) error) (domain.ChecklistItem, error) {
	var it domain.ChecklistItem
	var tpl domain.ChecklistTemplate
	var status, typ string
	var obs sql.NullString
	if err := scan(&it.ID, &it.ContratoID, &it.ChecklistID, &status, &obs, &it.UpdatedAt, &tpl.ID, &typ, &tpl.Text, &tpl.CreatedAt); err != nil {
		return domain.ChecklistItem{}, err
	}
	it.Status = domain.ItemStatus(status)
	it.CurrentObservation = ptr(obs)
	tpl.Type = domain.ChecklistType(typ)
	it.Template = &tpl
	return it, nil
}

// InsertItemTx creates an item unless one already exists for the
// (contract, template) pair. A false result means the insert was ignored.
func (r Repo) InsertItemTx(ctx context.Context, tx *sql.Tx, it domain.ChecklistItem) (bool, error) {
	res, err := r.q(tx).ExecContext(ctx, `INSERT INTO checklist_items(id,contrato_id,checklist_id,status,current_observation,updated_at) VALUES (?,?,?,?,?,?)
ON CONFLICT(contrato_id, checklist_id) DO NOTHING`,
		it.ID, it.ContratoID, it.ChecklistID, string(it.Status), nullablePtr(it.CurrentObservation), it.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert checklist item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListItemsTx returns the items of a contract for one checklist type in
// template order.
func (r Repo) ListItemsTx(ctx context.Context, tx *sql.Tx, contratoID string, typ domain.ChecklistType) ([]domain.ChecklistItem, error) {
	rows, err := r.q(tx).QueryContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.contrato_id=? AND t.type=? ORDER BY t.created_at ASC, t.seq ASC`,
		contratoID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ChecklistItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, it)
	}
	return res, rows.Err()
}

func (r Repo) GetItem(ctx context.Context, id string) (domain.ChecklistItem, error) {
	return r.GetItemTx(ctx, nil, id)
}

func (r Repo) GetItemTx(ctx context.Context, tx *sql.Tx, id string) (domain.ChecklistItem, error) {
	row := r.q(tx).QueryRowContext(ctx, `SELECT `+itemColumns+itemFrom+` WHERE i.id=?`, id)
	it, err := scanItem(row.Scan)
	return it, notFound(err)
}

func (r Repo) UpdateItemTx(ctx context.Context, tx *sql.Tx, id string, status domain.ItemStatus, observation, updatedAt string) error {
	res, err := r.q(tx).ExecContext(ctx, `UPDATE checklist_items SET status=?, current_observation=?, updated_at=? WHERE id=?`,
		string(status), observation, updatedAt, id)
	if err != nil {
		return fmt.Errorf("update checklist item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertHistoryTx(ctx context.Context, tx *sql.Tx, h domain.ObservationEntry) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO observation_history(id,checklist_item_id,status,observation,user_id,created_at) VALUES (?,?,?,?,?,?)`,
		h.ID, h.ChecklistItemID, string(h.Status), h.Observation, h.UserID, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert observation history: %w", err)
	}
	return nil
}

// ListHistoryTx returns the audit trail of an item in insertion order,
// newest first when newestFirst is set.
func (r Repo) ListHistoryTx(ctx context.Context, tx *sql.Tx, itemID string, newestFirst bool) ([]domain.ObservationEntry, error) {
	order := "ASC"
	if newestFirst {
		order = "DESC"
	}
	rows, err := r.q(tx).QueryContext(ctx, `SELECT id,checklist_item_id,status,observation,user_id,created_at FROM observation_history
WHERE checklist_item_id=? ORDER BY seq `+order, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ObservationEntry
	for rows.Next() {
		var h domain.ObservationEntry
		var status string
		if err := rows.Scan(&h.ID, &h.ChecklistItemID, &status, &h.Observation, &h.UserID, &h.CreatedAt); err != nil {
			return nil, err
		}
		h.Status = domain.ItemStatus(status)
		res = append(res, h)
	}
	return res, rows.Err()
}

// CountItemsByStatus groups a contract's items of one type by status.
func (r Repo) CountItemsByStatus(ctx context.Context, contratoID string, typ domain.ChecklistType) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT i.status, COUNT(*)`+itemFrom+` WHERE i.contrato_id=? AND t.type=? GROUP BY i.status`,
		contratoID, string(typ))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		res[status] = n
	}
	return res, rows.Err()
}
