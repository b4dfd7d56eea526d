// Package inbox persists in-app notifications and their read state.
package inbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/engine/auth"
	"github.com/moniquedpoliveira/licito/internal/repo"
	"github.com/moniquedpoliveira/licito/internal/telemetry"
)

type Service struct {
	DB        *sql.DB
	Repo      repo.Repo
	Directory auth.Directory
	Metrics   *telemetry.Metrics
	Now       func() time.Time
	Logger    *slog.Logger
}

func New(db *sql.DB, metrics *telemetry.Metrics) Service {
	return Service{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Directory: auth.NewDirectory(db),
		Metrics:   metrics,
		Now:       time.Now,
		Logger:    slog.Default().With("component", "inbox"),
	}
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// NotifyRole creates one unread notification for every active member of
// role, resolved when the call runs. All rows commit together. Members
// already notified for the same esclarecimento are skipped.
func (s Service) NotifyRole(ctx context.Context, role domain.Role, kind domain.NotificationType, esclarecimentoID string) ([]domain.Notification, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	users, err := s.Directory.ActiveUsersWithRole(ctx, tx, role)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	created, err := s.insertAllTx(ctx, tx, ids, kind, esclarecimentoID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.Metrics.NotificationsCreated(ctx, string(kind), len(created))
	s.logger().InfoContext(ctx, "role notified", "role", role, "type", kind, "recipients", len(created))
	return created, nil
}

// NotifyUsers creates one unread notification per user id in a single
// transaction, without consulting the role directory. It delivers a
// recipient set fixed earlier, e.g. when a question was asked.
func (s Service) NotifyUsers(ctx context.Context, userIDs []string, kind domain.NotificationType, esclarecimentoID string) ([]domain.Notification, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	created, err := s.insertAllTx(ctx, tx, userIDs, kind, esclarecimentoID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.Metrics.NotificationsCreated(ctx, string(kind), len(created))
	return created, nil
}

func (s Service) insertAllTx(ctx context.Context, tx *sql.Tx, userIDs []string, kind domain.NotificationType, esclarecimentoID string) ([]domain.Notification, error) {
	created := make([]domain.Notification, 0, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			return nil, errors.New("user id required")
		}
		n := s.newNotification(id, kind, esclarecimentoID)
		ok, err := s.Repo.InsertNotificationTx(ctx, tx, n)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, n)
		}
	}
	return created, nil
}

// NotifyUser creates one unread notification for userID. A repeat for the
// same user, type and esclarecimento stores nothing new and returns the
// notification already held.
func (s Service) NotifyUser(ctx context.Context, userID string, kind domain.NotificationType, esclarecimentoID string) (domain.Notification, error) {
	if userID == "" {
		return domain.Notification{}, errors.New("user id required")
	}
	n := s.newNotification(userID, kind, esclarecimentoID)
	ok, err := s.Repo.InsertNotificationTx(ctx, nil, n)
	if err != nil {
		return domain.Notification{}, err
	}
	if !ok {
		existing, err := s.Repo.FindNotificationTx(ctx, nil, userID, kind, esclarecimentoID)
		if err != nil {
			return domain.Notification{}, fmt.Errorf("load existing notification: %w", err)
		}
		return existing, nil
	}
	s.Metrics.NotificationsCreated(ctx, string(kind), 1)
	return n, nil
}

func (s Service) newNotification(userID string, kind domain.NotificationType, esclarecimentoID string) domain.Notification {
	n := domain.Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      kind,
		CreatedAt: domain.FormatTime(s.now()),
	}
	if esclarecimentoID != "" {
		id := esclarecimentoID
		n.EsclarecimentoID = &id
	}
	return n
}

// MarkRead flips a notification to read. It is idempotent; unknown ids
// return repo.ErrNotFound.
func (s Service) MarkRead(ctx context.Context, id string) error {
	if err := s.Repo.MarkNotificationRead(ctx, id); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return err
		}
		return fmt.Errorf("mark read %s: %w", id, err)
	}
	return nil
}

// ListUnread returns the user's unread notifications, newest first, each
// with its esclarecimento and checklist item attached when present.
func (s Service) ListUnread(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.list(ctx, userID, true)
}

// ListAll returns every notification of the user, newest first.
func (s Service) ListAll(ctx context.Context, userID string) ([]domain.Notification, error) {
	return s.list(ctx, userID, false)
}

func (s Service) list(ctx context.Context, userID string, unreadOnly bool) ([]domain.Notification, error) {
	ns, err := s.Repo.ListNotifications(ctx, userID, unreadOnly)
	if err != nil {
		return nil, err
	}
	for i := range ns {
		if ns[i].EsclarecimentoID == nil {
			continue
		}
		esc, err := s.Repo.GetEsclarecimento(ctx, *ns[i].EsclarecimentoID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		ns[i].Esclarecimento = &esc
		item, err := s.Repo.GetItem(ctx, esc.ChecklistItemID)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		if err == nil {
			ns[i].Item = &item
		}
	}
	return ns, nil
}
