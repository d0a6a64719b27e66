package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true — if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search runs plainto_tsquery over report titles and descriptions with
// ts_rank ordering and ts_headline snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	where := `to_tsvector('english', r.title || ' ' || r.description) @@ plainto_tsquery('english', $1) AND NOT r.is_deleted`
	args := []any{q.Text}
	argN := 2
	if q.FilterCategory != "" {
		where += fmt.Sprintf(" AND LOWER(r.category) = LOWER($%d)", argN)
		args = append(args, q.FilterCategory)
		argN++
	}
	if q.FilterStatus != "" {
		where += fmt.Sprintf(" AND r.status = $%d", argN)
		args = append(args, q.FilterStatus)
		argN++
	}

	query := fmt.Sprintf(`
		SELECT r.id, r.title,
			ts_headline('english', r.description, plainto_tsquery('english', $1), 'MaxFragments=1,MaxWords=30'),
			r.category, r.status,
			COUNT(*) OVER ()
		FROM reports r
		WHERE %s
		ORDER BY ts_rank(to_tsvector('english', r.title || ' ' || r.description), plainto_tsquery('english', $1)) DESC
		LIMIT $%d OFFSET $%d
	`, where, argN, argN+1)
	args = append(args, limit, offset)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.Title, &r.Snippet, &r.Category, &r.Status, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords reads every live report for reindexing into Meilisearch.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]ReportRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, title, description, category, status FROM reports WHERE NOT is_deleted
	`)
	if err != nil {
		return nil, fmt.Errorf("load report records: %w", err)
	}
	defer rows.Close()

	var records []ReportRecord
	for rows.Next() {
		var rec ReportRecord
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Description, &rec.Category, &rec.Status); err != nil {
			return nil, fmt.Errorf("scan report record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
