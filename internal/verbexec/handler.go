// Package verbexec is a concrete dslexec.VerbHandler for RuntimeVerb's
// CRUD behavior kind, dispatching against a sqlx.DB with the same
// tx-or-db dispatch and schema-qualified table conventions as
// internal/registrystore and the teacher's internal/vocabulary
// repository. Plugin and graph_query behaviors are out of scope for this
// handler (spec §1: transports and most external systems are explicit
// collaborators) — Invoke reports them as a classified FailureExternal
// rather than silently no-op-ing.
package verbexec

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/adamtc007/ob-poc-sub006/internal/dslexec"
	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// Handler implements dslexec.VerbHandler for CRUD-behavior verbs.
type Handler struct {
	db  *sqlx.DB
	reg *verbregistry.Registry
}

// New builds a Handler looking up verbs in reg and executing their CRUD
// behavior against db.
func New(db *sqlx.DB, reg *verbregistry.Registry) *Handler {
	return &Handler{db: db, reg: reg}
}

// Invoke implements dslexec.VerbHandler.
func (h *Handler) Invoke(ctx context.Context, fqn string, args map[string]any) (any, error) {
	verb, ok := h.reg.Get(fqn)
	if !ok {
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureValidation, Err: fmt.Errorf("unknown verb %q", fqn)}
	}

	switch verb.Behavior.Kind {
	case verbregistry.BehaviorCRUD:
		return h.invokeCRUD(ctx, verb, args)
	default:
		return nil, &dslexec.HandlerError{
			Kind: dslexec.FailureExternal,
			Err:  fmt.Errorf("verb %q has behavior kind %q, which this runtime deployment does not dispatch", fqn, verb.Behavior.Kind),
		}
	}
}

func (h *Handler) invokeCRUD(ctx context.Context, verb *verbregistry.RuntimeVerb, args map[string]any) (any, error) {
	b := verb.Behavior
	table := qualify(b.Schema, b.Table)

	switch b.CRUDOperation {
	case verbregistry.CRUDCreate:
		return h.create(ctx, table, args, b.Returning)
	case verbregistry.CRUDRead:
		return h.read(ctx, table, b.Key, args)
	case verbregistry.CRUDUpdate:
		return h.update(ctx, table, b.Key, args, b.Returning)
	case verbregistry.CRUDDelete:
		return h.delete(ctx, table, b.Key, args)
	default:
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureInternal, Err: fmt.Errorf("verb %q has no CRUD operation set", verb.FullName())}
	}
}

func qualify(schema, table string) string {
	if schema == "" {
		return table
	}
	return fmt.Sprintf("%q.%q", schema, table)
}

func (h *Handler) create(ctx context.Context, table string, args map[string]any, returning []string) (any, error) {
	cols := make([]string, 0, len(args))
	placeholders := make([]string, 0, len(args))
	values := make([]any, 0, len(args))
	i := 1
	for col, val := range args {
		cols = append(cols, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i))
		values = append(values, val)
		i++
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(returning) > 0 {
		query += " RETURNING " + strings.Join(returning, ", ")
		row := h.db.QueryRowxContext(ctx, query, values...)
		result := make(map[string]any, len(returning))
		if err := scanInto(row, returning, result); err != nil {
			return nil, externalErr(err)
		}
		return result, nil
	}
	if _, err := h.db.ExecContext(ctx, query, values...); err != nil {
		return nil, externalErr(err)
	}
	return nil, nil
}

func (h *Handler) read(ctx context.Context, table, key string, args map[string]any) (any, error) {
	id, ok := args[key]
	if !ok {
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureValidation, Err: fmt.Errorf("missing key arg %q", key)}
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s = $1", table, key)
	rows, err := h.db.QueryxContext(ctx, query, id)
	if err != nil {
		return nil, externalErr(err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureExternal, Err: fmt.Errorf("no row for %s=%v", key, id)}
	}
	result := make(map[string]any)
	if err := rows.MapScan(result); err != nil {
		return nil, externalErr(err)
	}
	return result, nil
}

func (h *Handler) update(ctx context.Context, table, key string, args map[string]any, returning []string) (any, error) {
	id, ok := args[key]
	if !ok {
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureValidation, Err: fmt.Errorf("missing key arg %q", key)}
	}

	sets := make([]string, 0, len(args))
	values := make([]any, 0, len(args))
	i := 1
	for col, val := range args {
		if col == key {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i))
		values = append(values, val)
		i++
	}
	values = append(values, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d", table, strings.Join(sets, ", "), key, i)
	if len(returning) > 0 {
		query += " RETURNING " + strings.Join(returning, ", ")
		row := h.db.QueryRowxContext(ctx, query, values...)
		result := make(map[string]any, len(returning))
		if err := scanInto(row, returning, result); err != nil {
			return nil, externalErr(err)
		}
		return result, nil
	}
	if _, err := h.db.ExecContext(ctx, query, values...); err != nil {
		return nil, externalErr(err)
	}
	return nil, nil
}

func (h *Handler) delete(ctx context.Context, table, key string, args map[string]any) (any, error) {
	id, ok := args[key]
	if !ok {
		return nil, &dslexec.HandlerError{Kind: dslexec.FailureValidation, Err: fmt.Errorf("missing key arg %q", key)}
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", table, key)
	if _, err := h.db.ExecContext(ctx, query, id); err != nil {
		return nil, externalErr(err)
	}
	return nil, nil
}

func scanInto(row *sqlx.Row, returning []string, dest map[string]any) error {
	values := make([]any, len(returning))
	ptrs := make([]any, len(returning))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := row.Scan(ptrs...); err != nil {
		return err
	}
	for i, col := range returning {
		dest[col] = values[i]
	}
	return nil
}

func externalErr(err error) error {
	return &dslexec.HandlerError{Kind: dslexec.FailureExternal, Err: err}
}
