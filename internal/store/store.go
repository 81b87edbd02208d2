// Package store persists synced directory records into tables whose columns are inferred from the
// records themselves, keeps an in-memory read cache hydrated lazily from those tables, and keeps the
// append-only sync status log.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"directory-sync/backend/internal/db"
	"directory-sync/backend/internal/db/migrate"
	"directory-sync/backend/internal/directory/domain"
	"directory-sync/backend/internal/schema"
)

// Store is the Adaptive Schema Store. It is the sole writer of synced tables.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	cache map[domain.Kind][]domain.Record

	statusMu sync.RWMutex
	status   *domain.SyncStatus

	now func() time.Time
}

// Open applies pending migrations to the database file at path, opens it, and reads the latest sync status.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store: database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}
	if err := migrate.Run(path, "up"); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	conn, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	s := New(conn, path)
	if _, err := s.loadLatestStatus(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already migrated database. path is reported by Diagnostics.
func New(conn *sql.DB, path string) *Store {
	return &Store{
		db:    conn,
		path:  path,
		cache: map[domain.Kind][]domain.Record{},
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for repositories that share the file (audit log).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Users returns the cached users, hydrating from the users table on first read.
func (s *Store) Users(ctx context.Context) []domain.Record {
	return s.Records(ctx, domain.KindUsers)
}

// Devices returns the cached devices, hydrating from the devices table on first read.
func (s *Store) Devices(ctx context.Context) []domain.Record {
	return s.Records(ctx, domain.KindDevices)
}

// Records returns the cached records for kind. An empty cache is hydrated from the persisted table;
// a load failure is logged and yields an empty result.
func (s *Store) Records(ctx context.Context, kind domain.Kind) []domain.Record {
	s.mu.RLock()
	cached, ok := s.cache[kind]
	s.mu.RUnlock()
	if ok {
		return append([]domain.Record(nil), cached...)
	}

	loaded, err := s.Load(ctx, kind.TableName())
	if err != nil {
		log.Printf("store: hydrate %s: %v", kind, err)
		return []domain.Record{}
	}
	if loaded == nil {
		loaded = []domain.Record{}
	}

	s.mu.Lock()
	// A writer may have filled the cache while the table was read.
	if cur, ok := s.cache[kind]; ok {
		loaded = cur
	} else {
		s.cache[kind] = loaded
	}
	s.mu.Unlock()
	return append([]domain.Record(nil), loaded...)
}

// SetUsers replaces the users cache and persists the set.
func (s *Store) SetUsers(ctx context.Context, records []domain.Record) error {
	return s.SetRecords(ctx, domain.KindUsers, records)
}

// SetDevices replaces the devices cache and persists the set.
func (s *Store) SetDevices(ctx context.Context, records []domain.Record) error {
	return s.SetRecords(ctx, domain.KindDevices, records)
}

// SetRecords updates the cache immediately, then persists. An empty set changes neither the cache nor
// the table; use Clear to empty both.
func (s *Store) SetRecords(ctx context.Context, kind domain.Kind, records []domain.Record) error {
	if len(records) == 0 {
		log.Printf("store: set %s skipped: no records", kind)
		return nil
	}
	cp := append([]domain.Record{}, records...)
	s.mu.Lock()
	s.cache[kind] = cp
	s.mu.Unlock()
	return s.Persist(ctx, kind.TableName(), cp)
}

// Clear deletes every persisted row of kind and empties its cache. The table and its column tags are
// kept so diagnostics still describe the last inferred schema.
func (s *Store) Clear(ctx context.Context, kind domain.Kind) error {
	table := kind.TableName()
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+schema.QuoteIdent(table)); err != nil {
			return fmt.Errorf("store: clear %s: %w", table, err)
		}
	}
	s.mu.Lock()
	s.cache[kind] = []domain.Record{}
	s.mu.Unlock()
	log.Printf("store: cleared %s", table)
	return nil
}
