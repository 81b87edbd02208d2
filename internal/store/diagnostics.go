package store

import (
	"context"
	"fmt"
	"os"

	"directory-sync/backend/internal/schema"
)

// Diagnostics describes the backing database file for operators.
type Diagnostics struct {
	Path     string      `json:"path" yaml:"path"`
	FileSize int64       `json:"fileSize" yaml:"fileSize"`
	Tables   []TableInfo `json:"tables" yaml:"tables"`
}

// TableInfo is one table's row count and declared columns.
type TableInfo struct {
	Name     string       `json:"name" yaml:"name"`
	RowCount int64        `json:"rowCount" yaml:"rowCount"`
	Columns  []ColumnInfo `json:"columns" yaml:"columns"`
}

// ColumnInfo is a declared column. Tag is the inferred type recorded for synced tables, empty otherwise.
type ColumnInfo struct {
	Name       string `json:"name" yaml:"name"`
	Type       string `json:"type" yaml:"type"`
	PrimaryKey bool   `json:"primaryKey,omitempty" yaml:"primaryKey,omitempty"`
	Tag        string `json:"tag,omitempty" yaml:"tag,omitempty"`
}

// TableNames returns the table names in order.
func (d *Diagnostics) TableNames() []string {
	out := make([]string, len(d.Tables))
	for i, t := range d.Tables {
		out[i] = t.Name
	}
	return out
}

// Diagnostics introspects the database file: its size, its tables, and each table's rows and columns.
func (s *Store) Diagnostics(ctx context.Context) (*Diagnostics, error) {
	d := &Diagnostics{Path: s.path, Tables: []TableInfo{}}
	if fi, err := os.Stat(s.path); err == nil {
		d.FileSize = fi.Size()
	}

	names, err := s.tableNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		info := TableInfo{Name: name}
		q := "SELECT COUNT(*) FROM " + schema.QuoteIdent(name)
		if err := s.db.QueryRowContext(ctx, q).Scan(&info.RowCount); err != nil {
			return nil, fmt.Errorf("store: count %s: %w", name, err)
		}
		if info.Columns, err = s.tableColumns(ctx, name); err != nil {
			return nil, err
		}
		d.Tables = append(d.Tables, info)
	}
	return d, nil
}

func (s *Store) tableNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list tables: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *Store) tableColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	tags, err := s.columnTags(ctx, table)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, "PRAGMA table_info("+schema.QuoteIdent(table)+")")
	if err != nil {
		return nil, fmt.Errorf("store: table_info %s: %w", table, err)
	}
	defer rows.Close()
	var cols []ColumnInfo
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("store: scan table_info %s: %w", table, err)
		}
		c := ColumnInfo{Name: name, Type: typ, PrimaryKey: pk > 0}
		if t, ok := tags[name]; ok {
			c.Tag = t.Type.String()
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}
