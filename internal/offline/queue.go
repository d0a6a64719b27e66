// Package offline keeps CrowdCare usable without a network: a durable
// submission queue with replay, a generational response cache, and a
// request proxy that falls back to cached copies when the upstream is
// unreachable.
package offline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"crowdcare/internal/util"
)

// ImageAttachment is one photo captured with a queued submission.
type ImageAttachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Entry is one report submission waiting for connectivity. Fields maps
// form field names to values; Images become file parts on replay.
type Entry struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Fields    map[string]string `json:"fields"`
	Images    []ImageAttachment `json:"images"`
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS queued_reports (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	fields     TEXT NOT NULL,
	images     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queued_reports_created_at
	ON queued_reports (created_at);
`

// Queue is the durable offline submission store, a single SQLite file
// that survives restarts.
type Queue struct {
	db *sql.DB
}

func OpenQueue(path string) (*Queue, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open queue db: %w", err)
	}
	// SQLite serializes writers; one connection avoids lock contention.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(queueSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate queue db: %w", err)
	}
	return &Queue{db: db}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// Enqueue stores one submission. A missing ID or timestamp is filled in.
func (q *Queue) Enqueue(ctx context.Context, entry Entry) (Entry, error) {
	if entry.ID == "" {
		entry.ID = util.NewID("que")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if entry.Fields == nil {
		entry.Fields = map[string]string{}
	}

	fields, err := json.Marshal(entry.Fields)
	if err != nil {
		return Entry{}, fmt.Errorf("encode fields: %w", err)
	}
	images, err := json.Marshal(entry.Images)
	if err != nil {
		return Entry{}, fmt.Errorf("encode images: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO queued_reports (id, created_at, fields, images) VALUES (?, ?, ?, ?)`,
		entry.ID, entry.CreatedAt.UnixMilli(), string(fields), string(images),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue %s: %w", entry.ID, err)
	}
	return entry, nil
}

// List returns all queued entries ordered oldest first.
func (q *Queue) List(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, created_at, fields, images FROM queued_reports ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			createdAt int64
			fields    string
			images    string
		)
		if err := rows.Scan(&entry.ID, &createdAt, &fields, &images); err != nil {
			return nil, fmt.Errorf("scan queue row: %w", err)
		}
		entry.CreatedAt = time.UnixMilli(createdAt)
		if err := json.Unmarshal([]byte(fields), &entry.Fields); err != nil {
			return nil, fmt.Errorf("decode fields for %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(images), &entry.Images); err != nil {
			return nil, fmt.Errorf("decode images for %s: %w", entry.ID, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes one entry, typically after a successful replay.
func (q *Queue) Delete(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, `DELETE FROM queued_reports WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete queue entry %s: %w", id, err)
	}
	return nil
}

// Len reports the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM queued_reports`).Scan(&n)
	return n, err
}
