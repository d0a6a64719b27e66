package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const userColumns = `id, email, password_hash, full_name, mobile, role, department, is_active, is_verified, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Mobile, &u.Role, &u.Department, &u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, full_name, mobile, role, department, is_active, is_verified)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Email, user.PasswordHash, user.FullName, user.Mobile, user.Role, user.Department, user.IsActive, user.IsVerified)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id)
	return scanUser(row)
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.email, u.password_hash, u.full_name, u.mobile, u.role, u.department, u.is_active, u.is_verified, u.created_at, u.updated_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`, tokenHash)
	return scanUser(row)
}

func (s *PostgresStore) UpsertDepartment(ctx context.Context, dept Department) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET description=EXCLUDED.description
	`, dept.ID, dept.Name, dept.Description)
	if err != nil {
		return fmt.Errorf("upsert department: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDepartments(ctx context.Context) ([]Department, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, description, created_at FROM departments ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	var departments []Department
	for rows.Next() {
		var d Department
		if err := rows.Scan(&d.ID, &d.Name, &d.Description, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		departments = append(departments, d)
	}
	return departments, rows.Err()
}

func (s *PostgresStore) UpsertCategoryMapping(ctx context.Context, mapping CategoryMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO category_mappings (category, department)
		VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET department=EXCLUDED.department
	`, mapping.Category, mapping.Department)
	if err != nil {
		return fmt.Errorf("upsert category mapping: %w", err)
	}
	return nil
}

// DepartmentForCategory resolves a category to its owning department,
// falling back to "General" for unmapped categories.
func (s *PostgresStore) DepartmentForCategory(ctx context.Context, category string) (string, error) {
	var department string
	err := s.db.QueryRowContext(ctx, `SELECT department FROM category_mappings WHERE LOWER(category)=LOWER($1)`, category).Scan(&department)
	if errors.Is(err, sql.ErrNoRows) {
		return "General", nil
	}
	if err != nil {
		return "", fmt.Errorf("department for category: %w", err)
	}
	return department, nil
}

func (s *PostgresStore) CategoriesForDepartment(ctx context.Context, department string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category FROM category_mappings WHERE department=$1 ORDER BY category`, department)
	if err != nil {
		return nil, fmt.Errorf("categories for department: %w", err)
	}
	defer rows.Close()

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (s *PostgresStore) DepartmentStatsAll(ctx context.Context) ([]DepartmentStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cm.department,
			COUNT(r.id),
			COUNT(r.id) FILTER (WHERE r.status = 'reported'),
			COUNT(r.id) FILTER (WHERE r.status = 'in_progress'),
			COUNT(r.id) FILTER (WHERE r.status = 'resolved')
		FROM category_mappings cm
		LEFT JOIN reports r ON LOWER(r.category) = LOWER(cm.category) AND NOT r.is_deleted
		GROUP BY cm.department
		ORDER BY cm.department
	`)
	if err != nil {
		return nil, fmt.Errorf("department stats: %w", err)
	}
	defer rows.Close()

	var stats []DepartmentStats
	for rows.Next() {
		var st DepartmentStats
		if err := rows.Scan(&st.Department, &st.Total, &st.Reported, &st.InProgress, &st.Resolved); err != nil {
			return nil, fmt.Errorf("scan department stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

const reportColumns = `id, title, description, category, image_url, latitude, longitude, reporter_id, status, admin_notes,
	is_deleted, deletion_reason, deleted_at,
	resolved_by, resolved_at, resolution_image_url, resolution_latitude, resolution_longitude, resolution_distance_meters,
	reported_at, acknowledged_at, in_progress_at, created_at, updated_at`

func scanReport(row interface{ Scan(...any) error }) (Report, error) {
	var r Report
	err := row.Scan(
		&r.ID, &r.Title, &r.Description, &r.Category, &r.ImageURL, &r.Latitude, &r.Longitude, &r.ReporterID, &r.Status, &r.AdminNotes,
		&r.IsDeleted, &r.DeletionReason, &r.DeletedAt,
		&r.ResolvedBy, &r.ResolvedAt, &r.ResolutionImageURL, &r.ResolutionLatitude, &r.ResolutionLongitude, &r.ResolutionDistanceMeters,
		&r.ReportedAt, &r.AcknowledgedAt, &r.InProgressAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("scan report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, report Report, images []ReportImage) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create report: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO reports (id, title, description, category, image_url, latitude, longitude, reporter_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'reported')
	`, report.ID, report.Title, report.Description, report.Category, report.ImageURL, report.Latitude, report.Longitude, report.ReporterID)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, img := range images {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_images (id, report_id, url, position) VALUES ($1, $2, $3, $4)
		`, img.ID, report.ID, img.URL, img.Position); err != nil {
			return fmt.Errorf("insert report image: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO report_status_history (id, report_id, old_status, new_status, changed_by)
		VALUES ($1, $2, '', 'reported', $3)
	`, report.ID+"_h0", report.ID, report.ReporterID); err != nil {
		return fmt.Errorf("insert initial history: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) GetReport(ctx context.Context, id string) (Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE id=$1`, id)
	return scanReport(row)
}

func (s *PostgresStore) ListImages(ctx context.Context, reportID string) ([]ReportImage, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, report_id, url, position FROM report_images WHERE report_id=$1 ORDER BY position`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list report images: %w", err)
	}
	defer rows.Close()

	var images []ReportImage
	for rows.Next() {
		var img ReportImage
		if err := rows.Scan(&img.ID, &img.ReportID, &img.URL, &img.Position); err != nil {
			return nil, fmt.Errorf("scan report image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

const summarySelect = `
	SELECT r.id, r.title, r.description, r.category, r.image_url, r.latitude, r.longitude, r.reporter_id, r.status, r.admin_notes,
		r.is_deleted, r.deletion_reason, r.deleted_at,
		r.resolved_by, r.resolved_at, r.resolution_image_url, r.resolution_latitude, r.resolution_longitude, r.resolution_distance_meters,
		r.reported_at, r.acknowledged_at, r.in_progress_at, r.created_at, r.updated_at,
		COALESCE(uv.total, 0), COALESCE(cm.total, 0), u.full_name
	FROM reports r
	JOIN users u ON u.id = r.reporter_id
	LEFT JOIN (SELECT report_id, COUNT(*) AS total FROM report_upvotes GROUP BY report_id) uv ON uv.report_id = r.id
	LEFT JOIN (SELECT report_id, COUNT(*) AS total FROM report_comments GROUP BY report_id) cm ON cm.report_id = r.id
`

func (s *PostgresStore) querySummaries(ctx context.Context, query string, args ...any) ([]ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query report summaries: %w", err)
	}
	defer rows.Close()

	var summaries []ReportSummary
	for rows.Next() {
		var rs ReportSummary
		err := rows.Scan(
			&rs.ID, &rs.Title, &rs.Description, &rs.Category, &rs.ImageURL, &rs.Latitude, &rs.Longitude, &rs.ReporterID, &rs.Status, &rs.AdminNotes,
			&rs.IsDeleted, &rs.DeletionReason, &rs.DeletedAt,
			&rs.ResolvedBy, &rs.ResolvedAt, &rs.ResolutionImageURL, &rs.ResolutionLatitude, &rs.ResolutionLongitude, &rs.ResolutionDistanceMeters,
			&rs.ReportedAt, &rs.AcknowledgedAt, &rs.InProgressAt, &rs.CreatedAt, &rs.UpdatedAt,
			&rs.Upvotes, &rs.Comments, &rs.ReporterName,
		)
		if err != nil {
			return nil, fmt.Errorf("scan report summary: %w", err)
		}
		summaries = append(summaries, rs)
	}
	return summaries, rows.Err()
}

func (s *PostgresStore) ListReportsByReporter(ctx context.Context, reporterID string) ([]ReportSummary, error) {
	return s.querySummaries(ctx, summarySelect+`
		WHERE r.reporter_id = $1 AND NOT r.is_deleted
		ORDER BY r.created_at DESC
	`, reporterID)
}

func (s *PostgresStore) ListCommunityReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.querySummaries(ctx, summarySelect+`
		WHERE NOT r.is_deleted
		ORDER BY r.created_at DESC
		LIMIT $1
	`, limit)
}

func (s *PostgresStore) ListReportsByCategories(ctx context.Context, categories []string) ([]ReportSummary, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(categories))
	args := make([]any, len(categories))
	for i, c := range categories {
		placeholders[i] = fmt.Sprintf("LOWER($%d)", i+1)
		args[i] = c
	}
	query := summarySelect + `
		WHERE NOT r.is_deleted AND LOWER(r.category) IN (` + strings.Join(placeholders, ", ") + `)
		ORDER BY r.created_at DESC
	`
	return s.querySummaries(ctx, query, args...)
}

// ListActiveReportsByCategory returns non-deleted, unresolved reports in a
// category, used by duplicate detection.
func (s *PostgresStore) ListActiveReportsByCategory(ctx context.Context, category string) ([]Report, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reportColumns+` FROM reports
		WHERE NOT is_deleted
			AND status IN ('reported', 'acknowledged', 'in_progress')
			AND LOWER(category) = LOWER($1)
	`, category)
	if err != nil {
		return nil, fmt.Errorf("list active reports: %w", err)
	}
	defer rows.Close()

	var reports []Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

// UpdateReportStatus moves a report to newStatus, stamps the matching stage
// timestamp and records a history row, all in one transaction.
func (s *PostgresStore) UpdateReportStatus(ctx context.Context, change StatusChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin status update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stageColumn := ""
	switch change.NewStatus {
	case StatusAcknowledged:
		stageColumn = ", acknowledged_at=NOW()"
	case StatusInProgress:
		stageColumn = ", in_progress_at=NOW()"
	case StatusResolved:
		stageColumn = ", resolved_at=NOW()"
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE reports SET status=$1, updated_at=NOW()`+stageColumn+` WHERE id=$2 AND NOT is_deleted
	`, change.NewStatus, change.ReportID)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO report_status_history (id, report_id, old_status, new_status, changed_by, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, change.ID, change.ReportID, change.OldStatus, change.NewStatus, change.ChangedBy, change.Notes); err != nil {
		return fmt.Errorf("insert status history: %w", err)
	}

	return tx.Commit()
}

// ResolveReport marks a report resolved with its evidence in one transaction.
func (s *PostgresStore) ResolveReport(ctx context.Context, reportID, resolvedBy, evidenceURL string, lat, lng, distance float64, historyID, notes string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin resolve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldStatus string
	err = tx.QueryRowContext(ctx, `SELECT status FROM reports WHERE id=$1 AND NOT is_deleted FOR UPDATE`, reportID).Scan(&oldStatus)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock report: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE reports
		SET status='resolved', resolved_by=$1, resolved_at=NOW(),
			resolution_image_url=$2, resolution_latitude=$3, resolution_longitude=$4, resolution_distance_meters=$5,
			admin_notes=$6, updated_at=NOW()
		WHERE id=$7
	`, resolvedBy, evidenceURL, lat, lng, distance, notes, reportID)
	if err != nil {
		return fmt.Errorf("resolve report: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO report_status_history (id, report_id, old_status, new_status, changed_by, notes)
		VALUES ($1, $2, $3, 'resolved', $4, $5)
	`, historyID, reportID, oldStatus, resolvedBy, notes); err != nil {
		return fmt.Errorf("insert resolve history: %w", err)
	}

	return tx.Commit()
}

func (s *PostgresStore) SoftDeleteReport(ctx context.Context, reportID, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE reports SET is_deleted=TRUE, deletion_reason=$1, deleted_at=NOW(), updated_at=NOW()
		WHERE id=$2 AND NOT is_deleted
	`, reason, reportID)
	if err != nil {
		return fmt.Errorf("soft delete report: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddComment(ctx context.Context, comment Comment) (Comment, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO report_comments (id, report_id, user_id, body)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, comment.ID, comment.ReportID, comment.UserID, comment.Body).Scan(&comment.CreatedAt)
	if err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	if comment.UserName == "" {
		_ = s.db.QueryRowContext(ctx, `SELECT full_name FROM users WHERE id=$1`, comment.UserID).Scan(&comment.UserName)
	}
	return comment, nil
}

func (s *PostgresStore) ListComments(ctx context.Context, reportID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.report_id, c.user_id, u.full_name, c.body, c.created_at
		FROM report_comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.report_id = $1
		ORDER BY c.created_at
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []Comment
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.ReportID, &c.UserID, &c.UserName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// ToggleUpvote adds the user's upvote if absent and removes it if present.
// Returns whether the upvote was added and the new total.
func (s *PostgresStore) ToggleUpvote(ctx context.Context, upvoteID, reportID, userID string) (bool, int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("begin upvote toggle: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM report_upvotes WHERE report_id=$1 AND user_id=$2`, reportID, userID)
	if err != nil {
		return false, 0, fmt.Errorf("remove upvote: %w", err)
	}

	added := false
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO report_upvotes (id, report_id, user_id) VALUES ($1, $2, $3)
		`, upvoteID, reportID, userID); err != nil {
			return false, 0, fmt.Errorf("insert upvote: %w", err)
		}
		added = true
	}

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM report_upvotes WHERE report_id=$1`, reportID).Scan(&total); err != nil {
		return false, 0, fmt.Errorf("count upvotes: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("commit upvote toggle: %w", err)
	}
	return added, total, nil
}

func (s *PostgresStore) ListStatusHistory(ctx context.Context, reportID string) ([]StatusChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, report_id, old_status, new_status, changed_by, notes, created_at
		FROM report_status_history
		WHERE report_id = $1
		ORDER BY created_at
	`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	defer rows.Close()

	var history []StatusChange
	for rows.Next() {
		var sc StatusChange
		if err := rows.Scan(&sc.ID, &sc.ReportID, &sc.OldStatus, &sc.NewStatus, &sc.ChangedBy, &sc.Notes, &sc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan status change: %w", err)
		}
		history = append(history, sc)
	}
	return history, rows.Err()
}

func (s *PostgresStore) countQuery(ctx context.Context, query string, args ...any) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count query: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) CountReportsByReporter(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM reports WHERE reporter_id=$1 AND NOT is_deleted`, userID)
}

func (s *PostgresStore) CountResolvedReportsByReporter(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM reports WHERE reporter_id=$1 AND status='resolved'`, userID)
}

func (s *PostgresStore) CountUpvotesGivenBy(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM report_upvotes WHERE user_id=$1`, userID)
}

func (s *PostgresStore) CountCommentsBy(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `SELECT COUNT(*) FROM report_comments WHERE user_id=$1`, userID)
}

func (s *PostgresStore) CountReportsWithEvidence(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE reporter_id=$1 AND NOT is_deleted AND image_url <> ''
	`, userID)
}

func (s *PostgresStore) CountResolvedWithinSLA(ctx context.Context, userID string, window time.Duration) (int, error) {
	return s.countQuery(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE reporter_id=$1 AND status='resolved'
			AND resolved_at IS NOT NULL
			AND resolved_at - created_at <= $2::interval
	`, userID, fmt.Sprintf("%d seconds", int(window.Seconds())))
}

func (s *PostgresStore) CountEcoResolved(ctx context.Context, userID string) (int, error) {
	return s.countQuery(ctx, `
		SELECT COUNT(*) FROM reports
		WHERE reporter_id=$1 AND status='resolved'
			AND (LOWER(category) LIKE '%garbage%' OR LOWER(category) LIKE '%water%'
				OR LOWER(category) LIKE '%drainage%' OR LOWER(category) LIKE '%park%')
	`, userID)
}

// ActivityDates returns the distinct UTC dates since the cutoff on which the
// user filed a report or commented, newest first. Used for streak computation.
func (s *PostgresStore) ActivityDates(ctx context.Context, userID string, since time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT day FROM (
			SELECT DATE(created_at AT TIME ZONE 'UTC') AS day FROM reports WHERE reporter_id=$1 AND created_at >= $2
			UNION
			SELECT DATE(created_at AT TIME ZONE 'UTC') AS day FROM report_comments WHERE user_id=$1 AND created_at >= $2
		) activity
		ORDER BY day DESC
	`, userID, since)
	if err != nil {
		return nil, fmt.Errorf("activity dates: %w", err)
	}
	defer rows.Close()

	var days []time.Time
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("scan activity date: %w", err)
		}
		days = append(days, day)
	}
	return days, rows.Err()
}

func (s *PostgresStore) ListBadges(ctx context.Context) ([]Badge, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code, name, description, tier, icon_url FROM badges ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	defer rows.Close()

	var badges []Badge
	for rows.Next() {
		var b Badge
		if err := rows.Scan(&b.Code, &b.Name, &b.Description, &b.Tier, &b.IconURL); err != nil {
			return nil, fmt.Errorf("scan badge: %w", err)
		}
		badges = append(badges, b)
	}
	return badges, rows.Err()
}

// Leaderboard computes points per user for activity since the cutoff, using
// the same scoring weights as the gamification service.
func (s *PostgresStore) Leaderboard(ctx context.Context, since time.Time, limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		WITH report_points AS (
			SELECT reporter_id AS user_id,
				COUNT(*) * 50 + COUNT(*) FILTER (WHERE status='resolved') * 20 AS points
			FROM reports WHERE NOT is_deleted AND created_at >= $1 GROUP BY reporter_id
		), upvote_points AS (
			SELECT user_id, COUNT(*) * 2 AS points FROM report_upvotes WHERE created_at >= $1 GROUP BY user_id
		), comment_points AS (
			SELECT user_id, COUNT(*) * 3 AS points FROM report_comments WHERE created_at >= $1 GROUP BY user_id
		), totals AS (
			SELECT u.id, u.full_name,
				COALESCE(rp.points, 0) + COALESCE(up.points, 0) + COALESCE(cp.points, 0) AS points
			FROM users u
			LEFT JOIN report_points rp ON rp.user_id = u.id
			LEFT JOIN upvote_points up ON up.user_id = u.id
			LEFT JOIN comment_points cp ON cp.user_id = u.id
			WHERE u.role = 'citizen'
		)
		SELECT id, full_name, points, RANK() OVER (ORDER BY points DESC)
		FROM totals
		WHERE points > 0
		ORDER BY points DESC
		LIMIT $2
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []LeaderboardEntry
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.FullName, &e.Points, &e.Rank); err != nil {
			return nil, fmt.Errorf("scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
