package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"slotbot/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS occurrences (
	seq           INTEGER PRIMARY KEY,
	id            INTEGER NOT NULL,
	sport         TEXT    NOT NULL,
	weekday       TEXT    NOT NULL,
	start_time    TEXT    NOT NULL,
	facility      TEXT    NOT NULL,
	weekly        INTEGER NOT NULL,
	start         TEXT,
	sign_up_start INTEGER NOT NULL,
	sign_up_end   INTEGER NOT NULL,
	url           TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT    PRIMARY KEY,
	value INTEGER NOT NULL
);`

// SQLite keeps the schedule in one table. Save replaces every row inside
// a single transaction. The highest ID ever assigned is a row in meta.
type SQLite struct {
	db   *sql.DB
	path string
}

func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	// Commits must land in the main file for the schedule watcher to see them.
	_, _ = db.Exec("PRAGMA journal_mode = DELETE")

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &SQLite{db: db, path: path}, nil
}

func (s *SQLite) Path() string { return s.path }

func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLite) Load(ctx context.Context) ([]model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sport, weekday, start_time, facility, weekly, start, sign_up_start, sign_up_end, url
		 FROM occurrences ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("store: query: %w", err)
	}
	defer rows.Close()

	out := []model.Occurrence{}
	for rows.Next() {
		var (
			o      model.Occurrence
			weekly int
			start  sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Activity, &o.Weekday, &o.StartTime, &o.Facility,
			&weekly, &start, &o.SignUpStart, &o.SignUpEnd, &o.URL); err != nil {
			return nil, fmt.Errorf("store: scan: %w", err)
		}
		o.Weekly = weekly != 0
		if start.Valid && start.String != "" {
			t, err := time.Parse(time.RFC3339Nano, start.String)
			if err != nil {
				return nil, fmt.Errorf("store: entry %d: bad start %q: %w", o.ID, start.String, err)
			}
			o.Start = &t
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQLite) Save(ctx context.Context, entries []model.Occurrence) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO occurrences(seq, id, sport, weekday, start_time, facility, weekly, start, sign_up_start, sign_up_end, url)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for i, o := range entries {
		var start any
		if o.Start != nil {
			start = o.Start.Format(time.RFC3339Nano)
		}
		weekly := 0
		if o.Weekly {
			weekly = 1
		}
		if _, err := stmt.ExecContext(ctx, i, o.ID, o.Activity, o.Weekday, o.StartTime, o.Facility,
			weekly, start, o.SignUpStart, o.SignUpEnd, o.URL); err != nil {
			return fmt.Errorf("store: insert entry %d: %w", o.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) HighWater(ctx context.Context) (int, error) {
	var hw int
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'high_water'`).Scan(&hw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: read high water: %w", err)
	}
	return hw, nil
}

// SetHighWater records id unless a larger mark is already stored.
func (s *SQLite) SetHighWater(ctx context.Context, id int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES('high_water', ?)
		 ON CONFLICT(key) DO UPDATE SET value = max(value, excluded.value)`, id)
	if err != nil {
		return fmt.Errorf("store: write high water: %w", err)
	}
	return nil
}
