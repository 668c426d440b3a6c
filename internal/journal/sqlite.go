// Package journal keeps a local SQLite log of processed tasks.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"workflowd/internal/common/fsutil"
	"workflowd/pkg/types"
)

const schema = `CREATE TABLE IF NOT EXISTS tasks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	task_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	success     INTEGER NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	delivered   INTEGER NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL
)`

// DefaultLimit bounds Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// Journal is a task journal backed by SQLite.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal at path. ":memory:" gives a private
// in-memory journal.
func Open(path string) (*Journal, error) {
	if path == "" {
		return nil, fmt.Errorf("empty journal path")
	}
	p, err := fsutil.PrepareFile(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", p)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", p, err)
	}
	// One connection keeps ":memory:" a single database and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Close() error { return j.db.Close() }

// Record appends rec.
func (j *Journal) Record(ctx context.Context, rec types.TaskRecord) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO tasks (task_id, action, success, error, delivered, started_at, finished_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TaskID, rec.Action, rec.Success, rec.Error, rec.Delivered,
		rec.StartedAt.UnixMilli(), rec.FinishedAt.UnixMilli(), rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("record task %s: %w", rec.TaskID, err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]types.TaskRecord, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT task_id, action, success, error, delivered, started_at, finished_at, duration_ms
		 FROM tasks ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	out := []types.TaskRecord{}
	for rows.Next() {
		var (
			rec               types.TaskRecord
			started, finished int64
		)
		if err := rows.Scan(&rec.TaskID, &rec.Action, &rec.Success, &rec.Error, &rec.Delivered,
			&started, &finished, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		rec.StartedAt = time.UnixMilli(started).UTC()
		rec.FinishedAt = time.UnixMilli(finished).UTC()
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Counts returns how many recorded tasks succeeded and failed.
func (j *Journal) Counts(ctx context.Context) (succeeded, failed int, err error) {
	err = j.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(success), 0), COALESCE(SUM(1 - success), 0) FROM tasks`,
	).Scan(&succeeded, &failed)
	if err != nil {
		return 0, 0, fmt.Errorf("count journal: %w", err)
	}
	return succeeded, failed, nil
}
