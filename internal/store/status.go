package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"directory-sync/backend/internal/directory/domain"
)

const statusColumns = `id, lastSyncTime, usersCount, devicesCount, success, error, duration_ms, created_at`

// AppendSyncStatus inserts st into the sync log and makes it the current status.
// LastSyncTime and CreatedAt default to now when zero.
func (s *Store) AppendSyncStatus(ctx context.Context, st domain.SyncStatus) (domain.SyncStatus, error) {
	now := s.now()
	if st.LastSyncTime.IsZero() {
		st.LastSyncTime = now
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = now
	}
	errText := sql.NullString{String: st.Error, Valid: st.Error != ""}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_status (lastSyncTime, usersCount, devicesCount, success, error, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.LastSyncTime.UTC().Format(time.RFC3339Nano), st.UsersCount, st.DevicesCount, boolToInt(st.Success),
		errText, st.DurationMs, st.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return st, fmt.Errorf("store: append sync status: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		st.ID = id
	}

	cp := st
	s.statusMu.Lock()
	s.status = &cp
	s.statusMu.Unlock()
	return st, nil
}

// SyncStatus returns the most recent sync status, or nil if no sync has been recorded.
func (s *Store) SyncStatus(ctx context.Context) (*domain.SyncStatus, error) {
	s.statusMu.RLock()
	cur := s.status
	s.statusMu.RUnlock()
	if cur != nil {
		cp := *cur
		return &cp, nil
	}
	return s.loadLatestStatus(ctx)
}

// SyncHistory returns up to limit sync statuses, newest first. limit <= 0 means 20.
func (s *Store) SyncHistory(ctx context.Context, limit int) ([]domain.SyncStatus, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+statusColumns+` FROM sync_status ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: sync history: %w", err)
	}
	defer rows.Close()
	out := []domain.SyncStatus{}
	for rows.Next() {
		st, err := scanStatus(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, rows.Err()
}

func (s *Store) loadLatestStatus(ctx context.Context) (*domain.SyncStatus, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+statusColumns+` FROM sync_status ORDER BY id DESC LIMIT 1`)
	st, err := scanStatus(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	cp := *st
	s.statusMu.Lock()
	if s.status == nil {
		s.status = &cp
	}
	s.statusMu.Unlock()
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStatus(sc scanner) (*domain.SyncStatus, error) {
	var (
		st                domain.SyncStatus
		lastSync, created string
		success           int64
		errText           sql.NullString
	)
	if err := sc.Scan(&st.ID, &lastSync, &st.UsersCount, &st.DevicesCount, &success, &errText, &st.DurationMs, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan sync status: %w", err)
	}
	st.Success = success != 0
	st.Error = errText.String
	st.LastSyncTime, _ = time.Parse(time.RFC3339Nano, lastSync)
	st.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return &st, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
