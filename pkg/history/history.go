// Copyright 2024 The mi7soft-daemon Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history is the durable record of process start/end events and
// per-name aggregate statistics, backed by SQLite.
package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS process_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL,
    pid INTEGER NOT NULL,
    start_time TEXT NOT NULL,
    end_time TEXT,
    exit_code INTEGER,
    restart_count INTEGER DEFAULT 0,
    auto_restart BOOLEAN DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_process_name ON process_history(name);
CREATE INDEX IF NOT EXISTS idx_start_time ON process_history(start_time);

CREATE TABLE IF NOT EXISTS process_stats (
    name TEXT PRIMARY KEY,
    total_starts INTEGER DEFAULT 0,
    total_restarts INTEGER DEFAULT 0,
    total_failures INTEGER DEFAULT 0,
    total_uptime_seconds INTEGER DEFAULT 0,
    last_start_time TEXT,
    last_exit_code INTEGER
);
`

// Record is one row of process_history.
type Record struct {
	ID           int64
	Name         string
	Pid          int
	StartTime    time.Time
	EndTime      *time.Time
	ExitCode     *int
	RestartCount int
	AutoRestart  bool
}

// Stats is the per-name aggregate derived from the history rows.
type Stats struct {
	Name             string
	TotalStarts      int
	TotalRestarts    int
	TotalFailures    int
	AvgUptimeSeconds float64
	LastStartTime    *time.Time
	LastExitCode     *int
}

// Store wraps the SQLite database. Methods are safe for use from the
// supervisor loop and the per-child reaper goroutines.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates the database (and its parent directory) at dbPath and
// ensures the schema exists.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		// Best effort; Open reports the real failure.
		_ = os.MkdirAll(dir, 0755)
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// The store is serialized by s.mu; a single connection keeps SQLite's
	// own locking out of the picture.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	logrus.WithField("path", dbPath).Debug("History store initialized")
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordStart inserts a start event and bumps the per-name start counter.
// Committed before the spawner returns the PID to its caller.
func (s *Store) RecordStart(name string, pid int, autoRestart bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(
		`INSERT INTO process_history (name, pid, start_time, auto_restart)
		 VALUES (?, ?, ?, ?)`,
		name, pid, now, autoRestart)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if _, err := s.db.Exec(
		`INSERT INTO process_stats (name, total_starts, last_start_time)
		 VALUES (?, 1, ?)
		 ON CONFLICT(name) DO UPDATE SET
		     total_starts = total_starts + 1,
		     last_start_time = ?`,
		name, now, now); err != nil {
		return 0, err
	}
	return id, nil
}

// RecordEnd closes the oldest open row for (name, pid). A non-zero exit
// code counts as a failure.
func (s *Store) RecordEnd(name string, pid int, exitCode *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.db.Exec(
		`UPDATE process_history
		 SET end_time = ?, exit_code = ?
		 WHERE id = (
		     SELECT id FROM process_history
		     WHERE name = ? AND pid = ? AND end_time IS NULL
		     ORDER BY id LIMIT 1
		 )`,
		now, nullableInt(exitCode), name, pid); err != nil {
		return err
	}

	if exitCode != nil && *exitCode != 0 {
		if _, err := s.db.Exec(
			`UPDATE process_stats
			 SET total_failures = total_failures + 1, last_exit_code = ?
			 WHERE name = ?`,
			*exitCode, name); err != nil {
			return err
		}
	}
	return nil
}

// RecordRestart bumps the per-name restart counter.
func (s *Store) RecordRestart(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE process_stats SET total_restarts = total_restarts + 1 WHERE name = ?`, name)
	return err
}

// UpdateUptime accumulates observed run time for name.
func (s *Store) UpdateUptime(name string, seconds int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE process_stats SET total_uptime_seconds = total_uptime_seconds + ? WHERE name = ?`,
		seconds, name)
	return err
}

// GetHistory returns up to limit rows for name, newest first.
func (s *Store) GetHistory(name string, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT id, name, pid, start_time, end_time, exit_code, restart_count, auto_restart
		 FROM process_history
		 WHERE name = ?
		 ORDER BY start_time DESC
		 LIMIT ?`,
		name, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec      Record
			start    string
			end      sql.NullString
			exitCode sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.Pid, &start, &end, &exitCode,
			&rec.RestartCount, &rec.AutoRestart); err != nil {
			return nil, err
		}
		rec.StartTime = parseTime(start)
		if end.Valid {
			t := parseTime(end.String)
			rec.EndTime = &t
		}
		if exitCode.Valid {
			c := int(exitCode.Int64)
			rec.ExitCode = &c
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetStats returns the aggregate for name, or nil when the name has never
// been started.
func (s *Store) GetStats(name string) (*Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(
		`SELECT name, total_starts, total_restarts, total_failures,
		        total_uptime_seconds, last_start_time, last_exit_code
		 FROM process_stats
		 WHERE name = ?`,
		name)
	st, err := scanStats(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return st, nil
}

// GetAllStats returns the aggregates for every known name, sorted by name.
func (s *Store) GetAllStats() ([]Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT name, total_starts, total_restarts, total_failures,
		        total_uptime_seconds, last_start_time, last_exit_code
		 FROM process_stats
		 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var all []Stats
	for rows.Next() {
		st, err := scanStats(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, *st)
	}
	return all, rows.Err()
}

// CleanupOldRecords deletes finished history rows older than daysToKeep
// days and returns the number removed.
func (s *Store) CleanupOldRecords(daysToKeep int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().AddDate(0, 0, -daysToKeep).Format(time.RFC3339)
	res, err := s.db.Exec(
		`DELETE FROM process_history WHERE start_time < ? AND end_time IS NOT NULL`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	logrus.WithFields(logrus.Fields{"days": daysToKeep, "rows": n}).Info("Old history records cleaned up")
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStats(row scanner) (*Stats, error) {
	var (
		st          Stats
		totalUptime int64
		lastStart   sql.NullString
		lastExit    sql.NullInt64
	)
	if err := row.Scan(&st.Name, &st.TotalStarts, &st.TotalRestarts, &st.TotalFailures,
		&totalUptime, &lastStart, &lastExit); err != nil {
		return nil, err
	}
	if st.TotalStarts > 0 {
		st.AvgUptimeSeconds = float64(totalUptime) / float64(st.TotalStarts)
	}
	if lastStart.Valid {
		t := parseTime(lastStart.String)
		st.LastStartTime = &t
	}
	if lastExit.Valid {
		c := int(lastExit.Int64)
		st.LastExitCode = &c
	}
	return &st, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

// DefaultPath returns the database location under the user configuration
// directory reported by os.UserConfigDir, or under the working directory
// when that cannot be determined.
func DefaultPath() string {
	base, err := os.UserConfigDir()
	if err != nil || base == "" {
		base = "."
	}
	return filepath.Join(base, "mi7soft-daemon", "history.db")
}
