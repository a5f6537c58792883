// Package runbookstore is the sqlx/lib-pq persistence layer backing
// internal/runbook.Service. Shape adapted from
// internal/registrystore/store.go (itself adapted from the teacher's
// internal/vocabulary/postgres_repository.go): schema-qualified tables,
// $N params, tx-or-db dispatch helpers, JSON columns for nested shapes.
package runbookstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/adamtc007/ob-poc-sub006/internal/runbook"
)

const schema = `"ob-poc"`

// Store is a sqlx-backed implementation of runbook.Store.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// New wraps db for use as a runbook.Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.tx != nil {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) getContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.tx != nil {
		return s.tx.GetContext(ctx, dest, query, args...)
	}
	return s.db.GetContext(ctx, dest, query, args...)
}

func (s *Store) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.tx != nil {
		return s.tx.SelectContext(ctx, dest, query, args...)
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

// SaveRunbook upserts one runbooks row keyed by id.
func (s *Store) SaveRunbook(ctx context.Context, rb *runbook.StagedRunbook) error {
	query := fmt.Sprintf(`
		INSERT INTO %[1]s.runbooks (
			id, session_id, client_group_id, persona, status, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			client_group_id = EXCLUDED.client_group_id,
			persona = EXCLUDED.persona
	`, schema)
	_, err := s.execContext(ctx, query, rb.ID, rb.SessionID, rb.ClientGroupID, rb.Persona, string(rb.Status), rb.CreatedAt)
	if err != nil {
		return fmt.Errorf("upserting runbook %s: %w", rb.ID, err)
	}
	return nil
}

// SaveCommand upserts one runbook_commands row; its candidates and entity
// footprint are stored as JSON columns of that row.
func (s *Store) SaveCommand(ctx context.Context, cmd *runbook.StagedCommand) error {
	footprintJSON, err := json.Marshal(cmd.EntityFootprint)
	if err != nil {
		return fmt.Errorf("marshaling entity_footprint: %w", err)
	}
	candidatesJSON, err := json.Marshal(cmd.Candidates)
	if err != nil {
		return fmt.Errorf("marshaling candidates: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %[1]s.runbook_commands (
			id, runbook_id, source_order, dag_order, dsl_raw, verb, description,
			source_prompt, resolution_status, entity_footprint, candidates,
			reasoning, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
			dag_order = EXCLUDED.dag_order,
			resolution_status = EXCLUDED.resolution_status,
			entity_footprint = EXCLUDED.entity_footprint,
			candidates = EXCLUDED.candidates,
			reasoning = EXCLUDED.reasoning
	`, schema)

	_, err = s.execContext(ctx, query,
		cmd.ID, cmd.RunbookID, cmd.SourceOrder, cmd.DAGOrder, cmd.DSLRaw, cmd.Verb, cmd.Description,
		cmd.SourcePrompt, string(cmd.Resolution), footprintJSON, candidatesJSON,
		cmd.Reasoning, cmd.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upserting command %s: %w", cmd.ID, err)
	}
	return nil
}

// DeleteCommand removes a runbook_commands row.
func (s *Store) DeleteCommand(ctx context.Context, commandID string) error {
	query := fmt.Sprintf(`DELETE FROM %s.runbook_commands WHERE id = $1`, schema)
	_, err := s.execContext(ctx, query, commandID)
	if err != nil {
		return fmt.Errorf("deleting command %s: %w", commandID, err)
	}
	return nil
}

type runbookRow struct {
	ID            string `db:"id"`
	SessionID     string `db:"session_id"`
	ClientGroupID string `db:"client_group_id"`
	Persona       string `db:"persona"`
	Status        string `db:"status"`
}

type commandRow struct {
	ID               string         `db:"id"`
	RunbookID        string         `db:"runbook_id"`
	SourceOrder      int            `db:"source_order"`
	DAGOrder         sql.NullInt64  `db:"dag_order"`
	DSLRaw           string         `db:"dsl_raw"`
	Verb             string         `db:"verb"`
	Description      sql.NullString `db:"description"`
	SourcePrompt     sql.NullString `db:"source_prompt"`
	ResolutionStatus string         `db:"resolution_status"`
	EntityFootprint  []byte         `db:"entity_footprint"`
	Candidates       []byte         `db:"candidates"`
	Reasoning        sql.NullString `db:"reasoning"`
}

// LoadRunbook reads a single runbook and its commands by id. Returns nil,
// nil if not found (not an error — a transport might ask for a runbook
// that was already completed and archived).
func (s *Store) LoadRunbook(ctx context.Context, runbookID string) (*runbook.StagedRunbook, error) {
	var row runbookRow
	query := fmt.Sprintf(`SELECT id, session_id, client_group_id, persona, status FROM %s.runbooks WHERE id = $1`, schema)
	if err := s.getContext(ctx, &row, query, runbookID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading runbook %s: %w", runbookID, err)
	}
	return s.hydrate(ctx, row)
}

// ActiveRunbookForSession returns the most recent non-terminal runbook
// for sessionID, or nil if there is none.
func (s *Store) ActiveRunbookForSession(ctx context.Context, sessionID string) (*runbook.StagedRunbook, error) {
	var row runbookRow
	query := fmt.Sprintf(`
		SELECT id, session_id, client_group_id, persona, status FROM %s.runbooks
		WHERE session_id = $1 AND status IN ('building', 'ready', 'executing')
		ORDER BY created_at DESC LIMIT 1
	`, schema)
	if err := s.getContext(ctx, &row, query, sessionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading active runbook for session %s: %w", sessionID, err)
	}
	return s.hydrate(ctx, row)
}

func (s *Store) hydrate(ctx context.Context, row runbookRow) (*runbook.StagedRunbook, error) {
	var rows []commandRow
	query := fmt.Sprintf(`
		SELECT id, runbook_id, source_order, dag_order, dsl_raw, verb, description,
			source_prompt, resolution_status, entity_footprint, candidates, reasoning
		FROM %s.runbook_commands WHERE runbook_id = $1 ORDER BY source_order
	`, schema)
	if err := s.selectContext(ctx, &rows, query, row.ID); err != nil {
		return nil, fmt.Errorf("loading commands for runbook %s: %w", row.ID, err)
	}

	rb := &runbook.StagedRunbook{
		ID:            row.ID,
		SessionID:     row.SessionID,
		ClientGroupID: row.ClientGroupID,
		Persona:       row.Persona,
		Status:        runbook.RunbookStatus(row.Status),
	}
	for _, r := range rows {
		cmd := &runbook.StagedCommand{
			ID:           r.ID,
			RunbookID:    r.RunbookID,
			SourceOrder:  r.SourceOrder,
			DSLRaw:       r.DSLRaw,
			Verb:         r.Verb,
			Description:  r.Description.String,
			SourcePrompt: r.SourcePrompt.String,
			Resolution:   runbook.ResolutionStatus(r.ResolutionStatus),
			Reasoning:    r.Reasoning.String,
		}
		if r.DAGOrder.Valid {
			v := int(r.DAGOrder.Int64)
			cmd.DAGOrder = &v
		}
		if len(r.EntityFootprint) > 0 {
			_ = json.Unmarshal(r.EntityFootprint, &cmd.EntityFootprint)
		}
		if len(r.Candidates) > 0 {
			_ = json.Unmarshal(r.Candidates, &cmd.Candidates)
		}
		rb.Commands = append(rb.Commands, cmd)
	}
	return rb, nil
}
