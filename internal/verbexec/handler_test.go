package verbexec

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/adamtc007/ob-poc-sub006/internal/dslexec"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

func newMockHandler(t *testing.T) (*Handler, sqlmock.Sqlmock, *verbregistry.Registry) {
	t.Helper()
	rawDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { rawDB.Close() })

	db := sqlx.NewDb(rawDB, "postgres")
	reg := verbregistry.NewRegistry()
	return New(db, reg), mock, reg
}

func addCRUDVerb(t *testing.T, reg *verbregistry.Registry, domain, verb string, b verbregistry.Behavior) {
	t.Helper()
	require.NoError(t, reg.Add(&verbregistry.RuntimeVerb{Domain: domain, Verb: verb, Behavior: b}))
}

func TestInvokeUnknownVerb(t *testing.T) {
	h, _, _ := newMockHandler(t)
	_, err := h.Invoke(context.Background(), "case.bogus", nil)
	require.Error(t, err)
	var herr *dslexec.HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, dslexec.FailureValidation, herr.Kind)
}

func TestInvokeCRUDCreate(t *testing.T) {
	h, mock, reg := newMockHandler(t)
	addCRUDVerb(t, reg, "case", "create", verbregistry.Behavior{
		Kind: verbregistry.BehaviorCRUD, CRUDOperation: verbregistry.CRUDCreate,
		Schema: "ob-poc", Table: "cases", Returning: []string{"id"},
	})

	mock.ExpectQuery(`INSERT INTO "ob-poc"\."cases"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("case-1"))

	result, err := h.Invoke(context.Background(), "case.create", map[string]any{"name": "Acme"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"id": "case-1"}, result)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvokeCRUDReadMissingKey(t *testing.T) {
	h, _, reg := newMockHandler(t)
	addCRUDVerb(t, reg, "case", "get", verbregistry.Behavior{
		Kind: verbregistry.BehaviorCRUD, CRUDOperation: verbregistry.CRUDRead,
		Schema: "ob-poc", Table: "cases", Key: "id",
	})

	_, err := h.Invoke(context.Background(), "case.get", map[string]any{})
	require.Error(t, err)
	var herr *dslexec.HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, dslexec.FailureValidation, herr.Kind)
}

func TestInvokeCRUDReadNoRows(t *testing.T) {
	h, mock, reg := newMockHandler(t)
	addCRUDVerb(t, reg, "case", "get", verbregistry.Behavior{
		Kind: verbregistry.BehaviorCRUD, CRUDOperation: verbregistry.CRUDRead,
		Schema: "ob-poc", Table: "cases", Key: "id",
	})

	mock.ExpectQuery(`SELECT \* FROM "ob-poc"\."cases" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := h.Invoke(context.Background(), "case.get", map[string]any{"id": "case-1"})
	require.Error(t, err)
	var herr *dslexec.HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, dslexec.FailureExternal, herr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvokeCRUDDelete(t *testing.T) {
	h, mock, reg := newMockHandler(t)
	addCRUDVerb(t, reg, "case", "remove", verbregistry.Behavior{
		Kind: verbregistry.BehaviorCRUD, CRUDOperation: verbregistry.CRUDDelete,
		Schema: "ob-poc", Table: "cases", Key: "id",
	})

	mock.ExpectExec(`DELETE FROM "ob-poc"\."cases" WHERE id = \$1`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := h.Invoke(context.Background(), "case.remove", map[string]any{"id": "case-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvokePluginBehaviorIsClassifiedExternal(t *testing.T) {
	h, _, reg := newMockHandler(t)
	addCRUDVerb(t, reg, "kyc", "screen", verbregistry.Behavior{
		Kind: verbregistry.BehaviorPlugin, Handler: "sanctions-screen",
	})

	_, err := h.Invoke(context.Background(), "kyc.screen", map[string]any{})
	require.Error(t, err)
	var herr *dslexec.HandlerError
	require.ErrorAs(t, err, &herr)
	require.Equal(t, dslexec.FailureExternal, herr.Kind)
}
