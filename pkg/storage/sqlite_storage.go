package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	site_key    TEXT NOT NULL,
	time_period TEXT NOT NULL,
	site        TEXT NOT NULL,
	total_count INTEGER NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	captured_at TEXT NOT NULL,
	urls        TEXT NOT NULL,
	PRIMARY KEY (site_key, time_period)
)`

// SQLiteStore keeps snapshots in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: "init", Key: dbPath, Err: fmt.Errorf("create db directory: %w", err)}
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "init", Key: dbPath, Err: fmt.Errorf("open database: %w", err)}
	}

	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", sqliteSchema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, &StoreError{Backend: "sqlite", Op: "init", Key: dbPath, Err: err}
		}
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, snapshot *Snapshot) error {
	key := NormalizeSite(snapshot.Site)
	urls, err := json.Marshal(snapshot.URLs)
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "save", Key: key, Err: err}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshots (site_key, time_period, site, total_count, checksum, captured_at, urls)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (site_key, time_period) DO UPDATE SET
			site = excluded.site,
			total_count = excluded.total_count,
			checksum = excluded.checksum,
			captured_at = excluded.captured_at,
			urls = excluded.urls`,
		key, snapshot.TimePeriod, snapshot.Site, snapshot.TotalCount, snapshot.Checksum,
		snapshot.CapturedAt.UTC().Format(time.RFC3339Nano), string(urls))
	if err != nil {
		return &StoreError{Backend: "sqlite", Op: "save", Key: key, Err: err}
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, site, timePeriod string) (*Snapshot, error) {
	key := NormalizeSite(site)
	row := s.db.QueryRowContext(ctx, `
		SELECT site, time_period, total_count, checksum, captured_at, urls
		FROM snapshots WHERE site_key = ? AND time_period = ?`, key, timePeriod)
	return s.scan(row, key)
}

func (s *SQLiteStore) LoadMostRecentBefore(ctx context.Context, site, excludingPeriod string) (*Snapshot, error) {
	key := NormalizeSite(site)
	row := s.db.QueryRowContext(ctx, `
		SELECT site, time_period, total_count, checksum, captured_at, urls
		FROM snapshots WHERE site_key = ? AND time_period <> ?
		ORDER BY time_period DESC LIMIT 1`, key, excludingPeriod)
	return s.scan(row, key)
}

func (s *SQLiteStore) scan(row *sql.Row, key string) (*Snapshot, error) {
	var (
		snapshot   Snapshot
		capturedAt string
		urls       string
	)
	err := row.Scan(&snapshot.Site, &snapshot.TimePeriod, &snapshot.TotalCount, &snapshot.Checksum, &capturedAt, &urls)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "load", Key: key, Err: err}
	}

	if err := json.Unmarshal([]byte(urls), &snapshot.URLs); err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: "load", Key: key, Err: fmt.Errorf("decode urls: %w", err)}
	}
	if t, err := time.Parse(time.RFC3339Nano, capturedAt); err == nil {
		snapshot.CapturedAt = t
	}
	return &snapshot, nil
}

func (s *SQLiteStore) ListTimePeriods(ctx context.Context, site string) ([]string, error) {
	key := NormalizeSite(site)
	return s.queryStrings(ctx, "list", key,
		`SELECT time_period FROM snapshots WHERE site_key = ? ORDER BY time_period DESC`, key)
}

func (s *SQLiteStore) ListSites(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "list", "",
		`SELECT DISTINCT site_key FROM snapshots ORDER BY site_key`)
}

func (s *SQLiteStore) queryStrings(ctx context.Context, op, key, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: op, Key: key, Err: err}
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, &StoreError{Backend: "sqlite", Op: op, Key: key, Err: err}
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, &StoreError{Backend: "sqlite", Op: op, Key: key, Err: err}
	}
	return out, nil
}

func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshots WHERE substr(time_period, 1, 10) < ?`,
		cutoffDay(cutoff).Format(DayLayout))
	if err != nil {
		return 0, &StoreError{Backend: "sqlite", Op: "purge", Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, &StoreError{Backend: "sqlite", Op: "purge", Err: err}
	}
	return int(n), nil
}
