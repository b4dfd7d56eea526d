package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/repo"
)

// UnknownUserError indicates an actor id that does not resolve to a user.
type UnknownUserError struct {
	UserID string
}

func (e UnknownUserError) Error() string {
	return fmt.Sprintf("user %s not registered", e.UserID)
}

// Directory answers role membership questions backed by SQL. Membership is
// evaluated at call time; nothing is cached.
type Directory struct {
	DB   *sql.DB
	Repo repo.Repo
}

func NewDirectory(db *sql.DB) Directory {
	return Directory{DB: db, Repo: repo.Repo{DB: db}}
}

// ActiveUsersWithRole lists the users currently holding role with an
// active account. When tx is nil the lookup runs on the pool.
func (d Directory) ActiveUsersWithRole(ctx context.Context, tx *sql.Tx, role domain.Role) ([]domain.User, error) {
	if _, err := domain.ParseRole(string(role)); err != nil {
		return nil, err
	}
	users, err := d.Repo.ActiveUsersWithRoleTx(ctx, tx, role)
	if err != nil {
		return nil, fmt.Errorf("resolve role %s: %w", role, err)
	}
	return users, nil
}

// Lookup returns the user behind an actor id.
func (d Directory) Lookup(ctx context.Context, userID string) (domain.User, error) {
	u, err := d.Repo.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return domain.User{}, UnknownUserError{UserID: userID}
	}
	return u, err
}
