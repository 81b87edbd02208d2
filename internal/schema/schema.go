package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"directory-sync/backend/internal/directory/domain"
)

// ErrEmptySample is returned by Build when no records are given; a schema cannot be inferred from zero samples.
var ErrEmptySample = errors.New("schema: cannot infer schema from an empty sample")

const (
	// IDColumn is the primary key of every synced table.
	IDColumn = "id"
	// SyncedAtColumn is appended to every materialized table and is never taken from a record.
	SyncedAtColumn = "syncedAt"
)

// Column is one inferred field.
type Column struct {
	Name       string     `json:"name"`
	Type       ColumnType `json:"type"`
	PrimaryKey bool       `json:"primaryKey,omitempty"`
	// JSONValues marks a Text column that was widened from arrays or objects mixed with scalars.
	JSONValues bool `json:"jsonValues,omitempty"`
}

// Schema is the ordered column list for one table. The id column is always first.
type Schema struct {
	Table   string   `json:"table"`
	Columns []Column `json:"columns"`
}

// Build unions the field set across records and resolves one type per field.
// Field order is id first, then first appearance (keys of each record visited in sorted order),
// so the result is deterministic for a given input.
func Build(table string, records []domain.Record) (*Schema, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("%w (table %q)", ErrEmptySample, table)
	}

	types := map[string]ColumnType{IDColumn: TypeNull}
	sawJSON := map[string]bool{}
	order := []string{IDColumn}
	for _, rec := range records {
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if k == SyncedAtColumn || k == "" {
				continue
			}
			t := InferType(rec[k])
			if t == TypeJSON {
				sawJSON[k] = true
			}
			prev, seen := types[k]
			if !seen {
				order = append(order, k)
				types[k] = t
				continue
			}
			types[k] = widen(prev, t)
		}
	}

	s := &Schema{Table: table, Columns: make([]Column, 0, len(order))}
	for _, name := range order {
		t := types[name]
		if name == IDColumn && (t == TypeNull || t == TypeJSON || t == TypeBoolean) {
			t = TypeText
		}
		s.Columns = append(s.Columns, Column{
			Name:       name,
			Type:       t,
			PrimaryKey: name == IDColumn,
			JSONValues: t == TypeText && sawJSON[name],
		})
	}
	return s, nil
}

// Column returns the named column.
func (s *Schema) Column(name string) (Column, bool) {
	if s == nil {
		return Column{}, false
	}
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Names returns column names in order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// CreateTableSQL renders the CREATE TABLE statement, including the trailing syncedAt column.
func (s *Schema) CreateTableSQL() string {
	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(QuoteIdent(s.Table))
	b.WriteString(" (\n")
	for _, c := range s.Columns {
		b.WriteString("\t")
		b.WriteString(QuoteIdent(c.Name))
		b.WriteString(" ")
		b.WriteString(c.Type.SQLType())
		if c.PrimaryKey {
			b.WriteString(" PRIMARY KEY")
		}
		b.WriteString(",\n")
	}
	b.WriteString("\t")
	b.WriteString(QuoteIdent(SyncedAtColumn))
	b.WriteString(" TEXT NOT NULL\n)")
	return b.String()
}

// InsertSQL renders a parameterized INSERT for all columns plus syncedAt.
func (s *Schema) InsertSQL() string {
	cols := make([]string, 0, len(s.Columns)+1)
	marks := make([]string, 0, len(s.Columns)+1)
	for _, c := range s.Columns {
		cols = append(cols, QuoteIdent(c.Name))
		marks = append(marks, "?")
	}
	cols = append(cols, QuoteIdent(SyncedAtColumn))
	marks = append(marks, "?")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		QuoteIdent(s.Table), strings.Join(cols, ", "), strings.Join(marks, ", "))
}

// QuoteIdent quotes a SQLite identifier.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
