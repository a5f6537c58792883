package runbookstore

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/runbook"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	db := sqlx.NewDb(rawDB, "postgres")
	return New(db), mock
}

func TestSaveRunbook(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO "ob-poc"\.runbooks`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.SaveRunbook(context.Background(), &runbook.StagedRunbook{
		ID:        "rb-1",
		SessionID: "sess-1",
		Status:    runbook.StatusBuilding,
		CreatedAt: time.Unix(0, 0),
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteCommand(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM "ob-poc"\.runbook_commands`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.DeleteCommand(context.Background(), "cmd-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRunbookNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, session_id, client_group_id, persona, status FROM "ob-poc"\.runbooks`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "client_group_id", "persona", "status"}))

	rb, err := s.LoadRunbook(context.Background(), "missing")
	require.NoError(t, err)
	require.Nil(t, rb)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoadRunbookHydratesCommands(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT id, session_id, client_group_id, persona, status FROM "ob-poc"\.runbooks`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "session_id", "client_group_id", "persona", "status"}).
			AddRow("rb-1", "sess-1", "cg-1", "onboarding-analyst", "building"))

	mock.ExpectQuery(`SELECT id, runbook_id, source_order, dag_order, dsl_raw, verb, description,`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "runbook_id", "source_order", "dag_order", "dsl_raw", "verb", "description",
			"source_prompt", "resolution_status", "entity_footprint", "candidates", "reasoning",
		}).AddRow("cmd-1", "rb-1", 0, nil, `(case.create :name "Acme")`, "case.create", "", "", "resolved", []byte("{}"), []byte("[]"), ""))

	rb, err := s.LoadRunbook(context.Background(), "rb-1")
	require.NoError(t, err)
	require.NotNil(t, rb)
	require.Equal(t, "rb-1", rb.ID)
	require.Len(t, rb.Commands, 1)
	require.Equal(t, "case.create", rb.Commands[0].Verb)
	require.NoError(t, mock.ExpectationsWereMet())
}
