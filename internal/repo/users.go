package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

const userColumns = `id,name,email,COALESCE(whatsapp,''),role,is_active`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var role string
	if err := scan(&u.ID, &u.Name, &u.Email, &u.Whatsapp, &role, &u.IsActive); err != nil {
		return domain.User{}, err
	}
	u.Role = domain.Role(role)
	return u, nil
}

// UpsertUserTx inserts a user or refreshes its profile when the email is
// already registered. The stored id is kept on conflict.
func (r Repo) UpsertUserTx(ctx context.Context, tx *sql.Tx, u domain.User, now string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,name,email,whatsapp,role,is_active,created_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(email) DO UPDATE SET name=excluded.name, whatsapp=excluded.whatsapp, role=excluded.role, is_active=excluded.is_active`,
		u.ID, u.Name, u.Email, nullable(u.Whatsapp), string(u.Role), u.IsActive, now)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.Email, err)
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	u, err := scanUser(row.Scan)
	return u, notFound(err)
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=?`, email)
	u, err := scanUser(row.Scan)
	return u, notFound(err)
}

// ActiveUsersWithRoleTx lists the active members of role as of the
// transaction's snapshot.
func (r Repo) ActiveUsersWithRoleTx(ctx context.Context, tx *sql.Tx, role domain.Role) ([]domain.User, error) {
	return r.listUsers(ctx, r.q(tx), `WHERE role=? AND is_active=1`, string(role))
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.listUsers(ctx, r.DB, ``)
}

func (r Repo) listUsers(ctx context.Context, q Querier, where string, args ...any) ([]domain.User, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+userColumns+` FROM users `+where+` ORDER BY name, id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET is_active=? WHERE id=?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
