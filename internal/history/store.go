// Package history persists the last published value of every sensor
// entity. It is intended for lightweight state that should survive
// restarts — the previous reading set lets operators inspect what was
// last reported even while a disk is spun down or the diagnostic tool
// is unavailable. It is not a time series; each entity keeps exactly
// one row.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store is a per-entity last-value store backed by SQLite. All public
// methods are safe for concurrent use (SQLite serializes writes).
type Store struct {
	db *sql.DB
}

// NewStore opens (or creates) the last-value database at dbPath. The
// schema is created automatically on first use.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS last_values (
		disk       TEXT NOT NULL,
		sensor     TEXT NOT NULL,
		value      TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (disk, sensor)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record upserts the latest value for a disk/sensor pair and refreshes
// its updated_at timestamp.
func (s *Store) Record(disk, sensor, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO last_values (disk, sensor, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (disk, sensor) DO UPDATE
		 SET value = excluded.value, updated_at = excluded.updated_at`,
		disk, sensor, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record %s/%s: %w", disk, sensor, err)
	}
	return nil
}

// Last returns the stored value for a disk/sensor pair. Returns empty
// string and nil error if the pair has never been recorded.
func (s *Store) Last(disk, sensor string) (string, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM last_values WHERE disk = ? AND sensor = ?`,
		disk, sensor,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last %s/%s: %w", disk, sensor, err)
	}
	return value, nil
}

// DiskValues returns all sensor values recorded for a disk, keyed by
// sensor. Returns an empty (non-nil) map for unknown disks.
func (s *Store) DiskValues(disk string) (map[string]string, error) {
	rows, err := s.db.Query(
		`SELECT sensor, value FROM last_values WHERE disk = ? ORDER BY sensor`,
		disk,
	)
	if err != nil {
		return nil, fmt.Errorf("disk values %s: %w", disk, err)
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan %s: %w", disk, err)
		}
		result[k] = v
	}
	return result, rows.Err()
}

// Disks returns the aliases of every disk with recorded values, in
// alphabetical order.
func (s *Store) Disks() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT disk FROM last_values ORDER BY disk`,
	)
	if err != nil {
		return nil, fmt.Errorf("disks: %w", err)
	}
	defer rows.Close()

	var disks []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan disks: %w", err)
		}
		disks = append(disks, d)
	}
	return disks, rows.Err()
}

// Forget removes all recorded values for a disk. No error is returned
// if the disk has no entries.
func (s *Store) Forget(disk string) error {
	_, err := s.db.Exec(`DELETE FROM last_values WHERE disk = ?`, disk)
	if err != nil {
		return fmt.Errorf("forget %s: %w", disk, err)
	}
	return nil
}
