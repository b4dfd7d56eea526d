package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moniquedpoliveira/licito/internal/domain"
)

func newMock(t *testing.T) (Repo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Repo{DB: db}, mock
}

func TestInsertItemIgnoredOnConflict(t *testing.T) {
	r, mock := newMock(t)
	item := domain.ChecklistItem{ID: "i-1", ContratoID: "c-1", ChecklistID: "t-1", Status: domain.StatusPendente, UpdatedAt: "now"}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).
		WithArgs("i-1", "c-1", "t-1", "PENDENTE", nil, "now").
		WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err := r.InsertItemTx(context.Background(), nil, item)
	require.NoError(t, err)
	assert.False(t, inserted)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	inserted, err = r.InsertItemTx(context.Background(), nil, item)
	require.NoError(t, err)
	assert.True(t, inserted)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO checklist_items")).
		WillReturnError(errors.New("disk I/O error"))
	_, err = r.InsertItemTx(context.Background(), nil, item)
	assert.ErrorContains(t, err, "insert checklist item")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkNotificationReadUnknownID(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read=1 WHERE id=?")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.MarkNotificationRead(context.Background(), "missing"), ErrNotFound)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read=1 WHERE id=?")).
		WithArgs("n-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	assert.NoError(t, r.MarkNotificationRead(context.Background(), "n-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnswerEsclarecimentoGuarded(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE esclarecimentos SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err := r.AnswerEsclarecimentoTx(context.Background(), nil, "e-1", "a", "u", "now")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetItemNotFound(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM checklist_items i JOIN checklist_templates t")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err := r.GetItem(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateItemUnknownID(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE checklist_items SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := r.UpdateItemTx(context.Background(), nil, "missing", domain.StatusConcluido, "ok", "now")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHashAPIKeyTrimsInput(t *testing.T) {
	assert.Equal(t, HashAPIKey("abc"), HashAPIKey("  abc\n"))
	assert.NotEqual(t, HashAPIKey("abc"), HashAPIKey("abd"))
	assert.Len(t, HashAPIKey("abc"), 64)
}

func TestIsUniqueViolationIgnoresOtherErrors(t *testing.T) {
	assert.False(t, IsUniqueViolation(errors.New("UNIQUE constraint failed")))
	assert.False(t, IsUniqueViolation(nil))
}
