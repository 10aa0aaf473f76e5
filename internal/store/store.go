// Package store provides SQLite-backed persistence for target records.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"bytemomo/moray/internal/domain"
)

// Store holds the known-target records that survive restarts: which targets
// have been ingested before and their last known endpoints.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at dbPath and runs migrations.
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS targets (
		name TEXT PRIMARY KEY,
		ip TEXT NOT NULL DEFAULT '',
		port_low INTEGER NOT NULL DEFAULT 0,
		port_high INTEGER NOT NULL DEFAULT 0,
		storage_path TEXT NOT NULL DEFAULT '',
		first_seen DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);`
	_, err := s.db.Exec(schema)
	return err
}

// UpsertTarget records a target, updating endpoint info on re-ingestion.
// existed reports whether a prior record was present, which decides the
// "pushed" vs "updated" notification.
func (s *Store) UpsertTarget(ctx context.Context, t domain.Target) (existed bool, err error) {
	prior, found, err := s.GetTarget(ctx, t.Name)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if !found {
		_, err = s.db.ExecContext(ctx,
			`INSERT INTO targets (name, ip, port_low, port_high, storage_path, first_seen, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			t.Name, t.IP, t.PortLow, t.PortHigh, t.StoragePath, now, now)
		return false, err
	}

	// Never let an endpoint-less re-ingestion erase known endpoint info.
	if t.IP == "" {
		t.IP = prior.IP
	}
	if t.PortLow == 0 {
		t.PortLow, t.PortHigh = prior.PortLow, prior.PortHigh
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE targets SET ip = ?, port_low = ?, port_high = ?, storage_path = ?, updated_at = ? WHERE name = ?`,
		t.IP, t.PortLow, t.PortHigh, t.StoragePath, now, t.Name)
	return true, err
}

// GetTarget looks up a target record by its normalized name.
func (s *Store) GetTarget(ctx context.Context, name string) (domain.Target, bool, error) {
	var t domain.Target
	err := s.db.QueryRowContext(ctx,
		`SELECT name, ip, port_low, port_high, storage_path, first_seen, updated_at FROM targets WHERE name = ?`,
		name,
	).Scan(&t.Name, &t.IP, &t.PortLow, &t.PortHigh, &t.StoragePath, &t.FirstSeen, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return domain.Target{}, false, nil
	}
	if err != nil {
		return domain.Target{}, false, err
	}
	return t, true, nil
}

// ListTargets returns all known targets ordered by name.
func (s *Store) ListTargets(ctx context.Context) ([]domain.Target, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, ip, port_low, port_high, storage_path, first_seen, updated_at FROM targets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Target
	for rows.Next() {
		var t domain.Target
		if err := rows.Scan(&t.Name, &t.IP, &t.PortLow, &t.PortHigh, &t.StoragePath, &t.FirstSeen, &t.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
