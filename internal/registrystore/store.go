// Package registrystore is the sqlx/lib-pq persistence layer backing
// internal/verbregistry.SyncService. Its shape (tx-or-db dispatch
// helpers, schema-qualified tables, $N params, ON CONFLICT upserts) is
// adapted from internal/vocabulary/postgres_repository.go in the teacher
// repository.
package registrystore

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/adamtc007/ob-poc-sub006/internal/verbregistry"
)

// schema is the Postgres schema that owns every table this package
// touches, matching the teacher's "dsl-ob-poc"/"ob-poc" schema-qualified
// naming convention.
const schema = `"ob-poc"`

// Store is a sqlx-backed implementation of verbregistry.Store.
type Store struct {
	db *sqlx.DB
	tx *sqlx.Tx
}

// New wraps db for use as a verbregistry.Store.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// BeginTx starts a transaction and returns a Store bound to it, mirroring
// the teacher's PostgresRepository.BeginTx.
func (s *Store) BeginTx(ctx context.Context) (*Store, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Store{db: s.db, tx: tx}, nil
}

// Commit commits the bound transaction, if any.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Commit()
}

// Rollback rolls back the bound transaction, if any.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	return s.tx.Rollback()
}

// execContext dispatches through the transaction when one is bound,
// otherwise through the pooled connection.
func (s *Store) execContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if s.tx != nil {
		return s.tx.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Store) queryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	if s.tx != nil {
		return s.tx.QueryRowxContext(ctx, query, args...)
	}
	return s.db.QueryRowxContext(ctx, query, args...)
}

func (s *Store) selectContext(ctx context.Context, dest any, query string, args ...any) error {
	if s.tx != nil {
		return s.tx.SelectContext(ctx, dest, query, args...)
	}
	return s.db.SelectContext(ctx, dest, query, args...)
}

// ExistingYAMLHashes returns full_name -> yaml_hash for every verb row
// that has a recorded source hash.
func (s *Store) ExistingYAMLHashes(ctx context.Context) (map[string]string, error) {
	type row struct {
		FullName string         `db:"full_name"`
		YAMLHash sql.NullString `db:"yaml_hash"`
	}
	var rows []row
	query := fmt.Sprintf(`SELECT domain || '.' || verb_name AS full_name, yaml_hash FROM %s.dsl_verbs`, schema)
	if err := s.selectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("selecting existing verb hashes: %w", err)
	}

	out := make(map[string]string, len(rows))
	for _, r := range rows {
		if r.YAMLHash.Valid {
			out[r.FullName] = r.YAMLHash.String
		}
	}
	return out, nil
}

// UpsertContract writes a compiled contract, inserting a new row or
// updating the existing one keyed by (domain, verb_name).
func (s *Store) UpsertContract(ctx context.Context, c *verbregistry.VerbContract) error {
	domain, verbName, err := splitFullName(c.FullName)
	if err != nil {
		return err
	}

	compiledJSON, err := json.Marshal(c.CompiledJSON)
	if err != nil {
		return fmt.Errorf("marshaling compiled_json: %w", err)
	}
	effectiveJSON, err := json.Marshal(c.EffectiveConfigJSON)
	if err != nil {
		return fmt.Errorf("marshaling effective_config_json: %w", err)
	}
	diagnosticsJSON, err := json.Marshal(c.Diagnostics)
	if err != nil {
		return fmt.Errorf("marshaling diagnostics_json: %w", err)
	}
	compiledHashHex := hex.EncodeToString(c.CompiledHash[:])

	query := fmt.Sprintf(`
		INSERT INTO %[1]s.dsl_verbs (
			domain, verb_name, description, category,
			source, yaml_hash,
			compiled_json, effective_config_json, diagnostics_json, compiled_hash,
			compiler_version, compiled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (domain, verb_name) DO UPDATE SET
			description = EXCLUDED.description,
			category = COALESCE(%[1]s.dsl_verbs.category, EXCLUDED.category),
			yaml_hash = EXCLUDED.yaml_hash,
			compiled_json = EXCLUDED.compiled_json,
			effective_config_json = EXCLUDED.effective_config_json,
			diagnostics_json = EXCLUDED.diagnostics_json,
			compiled_hash = EXCLUDED.compiled_hash,
			compiler_version = EXCLUDED.compiler_version,
			compiled_at = EXCLUDED.compiled_at,
			updated_at = now()
	`, schema)

	_, err = s.execContext(ctx, query,
		domain, verbName, descriptionOf(c), c.Category,
		"yaml", c.YAMLHash,
		compiledJSON, effectiveJSON, diagnosticsJSON, compiledHashHex,
		c.CompilerVersion,
	)
	if err != nil {
		return fmt.Errorf("upserting verb contract for %s: %w", c.FullName, err)
	}
	return nil
}

func descriptionOf(c *verbregistry.VerbContract) string {
	if desc, ok := c.CompiledJSON["description"].(string); ok {
		return desc
	}
	return ""
}

// LogSync writes one dsl_verb_sync_log row per sync run.
func (s *Store) LogSync(ctx context.Context, result *verbregistry.SyncResult) error {
	query := fmt.Sprintf(`
		INSERT INTO %s.dsl_verb_sync_log (
			sync_id, verbs_added, verbs_updated, verbs_unchanged, verbs_removed,
			source_hash, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, schema)

	_, err := s.execContext(ctx, query,
		uuid.New(), result.VerbsAdded, result.VerbsUpdated, result.VerbsUnchanged, result.VerbsRemoved,
		result.SourceHash, result.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("writing sync log: %w", err)
	}
	return nil
}

func splitFullName(fqn string) (domain, verb string, err error) {
	for i := 0; i < len(fqn); i++ {
		if fqn[i] == '.' {
			return fqn[:i], fqn[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("invalid FQN %q: expected domain.verb", fqn)
}
