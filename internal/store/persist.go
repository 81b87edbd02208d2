package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/schema"
)

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Persist infers a schema from records, recreates table with it and inserts every record, all in one
// transaction. An empty records slice is a no-op: a schema cannot be inferred from zero samples.
func (s *Store) Persist(ctx context.Context, table string, records []domain.Record) error {
	sch, err := schema.Build(table, records)
	if errors.Is(err, schema.ErrEmptySample) {
		log.Printf("store: persist %s skipped: no records", table)
		return nil
	}
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := Materialize(ctx, tx, sch); err != nil {
		return err
	}
	if err := writeColumnTags(ctx, tx, sch); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, sch.InsertSQL())
	if err != nil {
		return fmt.Errorf("store: prepare insert %s: %w", table, err)
	}
	defer stmt.Close()

	syncedAt := s.now().Format(time.RFC3339Nano)
	for i, rec := range records {
		args, err := rowArgs(sch, rec, syncedAt)
		if err != nil {
			return fmt.Errorf("store: record %d (%s): %w", i, rec.ID(), err)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("store: insert into %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit %s: %w", table, err)
	}
	log.Printf("store: persisted %d rows into %s (%d columns)", len(records), table, len(sch.Columns))
	return nil
}

// Materialize drops and recreates the table for sch. Columns not present in sch are lost; this is a
// full resync, not a migration. Run it inside the transaction that refills the table.
func Materialize(ctx context.Context, ex execer, sch *schema.Schema) error {
	if _, err := ex.ExecContext(ctx, "DROP TABLE IF EXISTS "+schema.QuoteIdent(sch.Table)); err != nil {
		return fmt.Errorf("store: drop %s: %w", sch.Table, err)
	}
	if _, err := ex.ExecContext(ctx, sch.CreateTableSQL()); err != nil {
		return fmt.Errorf("store: create %s: %w", sch.Table, err)
	}
	return nil
}

func writeColumnTags(ctx context.Context, ex execer, sch *schema.Schema) error {
	if _, err := ex.ExecContext(ctx, `DELETE FROM schema_columns WHERE table_name = ?`, sch.Table); err != nil {
		return fmt.Errorf("store: clear column tags for %s: %w", sch.Table, err)
	}
	for i, c := range sch.Columns {
		_, err := ex.ExecContext(ctx,
			`INSERT INTO schema_columns (table_name, position, column_name, column_type, primary_key, json_values) VALUES (?, ?, ?, ?, ?, ?)`,
			sch.Table, i, c.Name, c.Type.String(), boolInt(c.PrimaryKey), boolInt(c.JSONValues))
		if err != nil {
			return fmt.Errorf("store: write column tag %s.%s: %w", sch.Table, c.Name, err)
		}
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func rowArgs(sch *schema.Schema, rec domain.Record, syncedAt string) ([]any, error) {
	args := make([]any, 0, len(sch.Columns)+1)
	for _, c := range sch.Columns {
		v, ok := rec[c.Name]
		if !ok {
			args = append(args, nil)
			continue
		}
		stored, err := schema.Serialize(v)
		if err != nil {
			return nil, err
		}
		args = append(args, stored)
	}
	return append(args, syncedAt), nil
}

// Load reads every row of table and decodes it with the column type tags recorded at persist time.
// Tables without tags fall back to the legacy name-based decoding. NULL columns are omitted so loaded
// records stay sparse. A missing table yields no records and no error.
func (s *Store) Load(ctx context.Context, table string) ([]domain.Record, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	tags, err := s.columnTags(ctx, table)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "SELECT * FROM "+schema.QuoteIdent(table))
	if err != nil {
		return nil, fmt.Errorf("store: select %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []domain.Record
	for rows.Next() {
		raw := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("store: scan %s: %w", table, err)
		}
		rec := make(domain.Record, len(cols))
		for i, name := range cols {
			if name == schema.SyncedAtColumn || raw[i] == nil {
				continue
			}
			var v any
			if c, ok := tags[name]; ok {
				v = schema.DeserializeColumn(c, raw[i])
			} else {
				v = schema.DeserializeLegacy(name, raw[i])
			}
			if v != nil {
				rec[name] = v
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: lookup table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) columnTags(ctx context.Context, table string) (map[string]schema.Column, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT column_name, column_type, primary_key, json_values FROM schema_columns WHERE table_name = ? ORDER BY position`, table)
	if err != nil {
		return nil, fmt.Errorf("store: read column tags for %s: %w", table, err)
	}
	defer rows.Close()
	tags := map[string]schema.Column{}
	for rows.Next() {
		var (
			name, typ  string
			pk, asJSON int
		)
		if err := rows.Scan(&name, &typ, &pk, &asJSON); err != nil {
			return nil, err
		}
		t, ok := schema.ParseColumnType(typ)
		if !ok {
			log.Printf("store: unknown column type %q for %s.%s, decoding as text", typ, table, name)
		}
		tags[name] = schema.Column{Name: name, Type: t, PrimaryKey: pk != 0, JSONValues: asJSON != 0}
	}
	return tags, rows.Err()
}
