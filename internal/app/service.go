// Package app holds the CrowdCare application service and its HTTP
// surface: citizen reporting, triage, resolution with geo-verified
// evidence, and the realtime hooks that keep clients in sync.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	"crowdcare/internal/auth"
	"crowdcare/internal/authpw"
	"crowdcare/internal/config"
	"crowdcare/internal/exif"
	"crowdcare/internal/export"
	"crowdcare/internal/gamification"
	"crowdcare/internal/geo"
	"crowdcare/internal/rbac"
	"crowdcare/internal/search"
	"crowdcare/internal/store"
	"crowdcare/internal/util"
)

// Session is an authenticated caller.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Role         string
	Department   string
	JTI          string
	ExpiresAt    time.Time
}

// duplicateRadiusMeters bounds how close an active report of the same
// category may be before a new submission is treated as a duplicate.
const duplicateRadiusMeters = 30.0

// maxImageBytes caps uploaded report and evidence images.
const maxImageBytes = 10 << 20

type dataStore interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, user store.User) error
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	GetUserByID(ctx context.Context, id string) (store.User, error)

	UpsertDepartment(ctx context.Context, dept store.Department) error
	ListDepartments(ctx context.Context) ([]store.Department, error)
	UpsertCategoryMapping(ctx context.Context, mapping store.CategoryMapping) error
	DepartmentForCategory(ctx context.Context, category string) (string, error)
	CategoriesForDepartment(ctx context.Context, department string) ([]string, error)
	DepartmentStatsAll(ctx context.Context) ([]store.DepartmentStats, error)

	CreateReport(ctx context.Context, report store.Report, images []store.ReportImage) error
	GetReport(ctx context.Context, id string) (store.Report, error)
	ListImages(ctx context.Context, reportID string) ([]store.ReportImage, error)
	ListReportsByReporter(ctx context.Context, reporterID string) ([]store.ReportSummary, error)
	ListCommunityReports(ctx context.Context, limit int) ([]store.ReportSummary, error)
	ListReportsByCategories(ctx context.Context, categories []string) ([]store.ReportSummary, error)
	ListActiveReportsByCategory(ctx context.Context, category string) ([]store.Report, error)
	UpdateReportStatus(ctx context.Context, change store.StatusChange) error
	ResolveReport(ctx context.Context, reportID, resolvedBy, evidenceURL string, lat, lng, distance float64, historyID, notes string) error
	SoftDeleteReport(ctx context.Context, reportID, reason string) error
	ListStatusHistory(ctx context.Context, reportID string) ([]store.StatusChange, error)

	AddComment(ctx context.Context, comment store.Comment) (store.Comment, error)
	ListComments(ctx context.Context, reportID string) ([]store.Comment, error)
	ToggleUpvote(ctx context.Context, upvoteID, reportID, userID string) (bool, int, error)
}

// refreshStore persists refresh sessions. Redis-backed in production
// with the Postgres store as fallback.
type refreshStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// Store is the full persistence surface the service needs.
// *store.PostgresStore satisfies it.
type Store interface {
	dataStore
	refreshStore
}

// liveHub is the realtime broadcast surface.
type liveHub interface {
	BroadcastStatusUpdate(reportID, oldStatus, newStatus, changedBy, notes string)
	BroadcastResolution(reportID, evidenceURL string, lat, lng, distanceMeters float64)
	BroadcastUpvote(reportID string, totalUpvotes int, userID string, added bool)
	BroadcastComment(reportID, commentID, userID, userName, body string, createdAt time.Time)
}

// objectStore persists uploaded images.
type objectStore interface {
	SaveImage(ctx context.Context, filename, contentType string, data []byte) (string, error)
	SaveEvidence(ctx context.Context, reportID, adminID, contentType string, data []byte) (string, error)
}

// searchIndex keeps the report search index in step with the store.
type searchIndex interface {
	Search(q search.Query) search.Response
	IndexReport(rec search.ReportRecord)
	DeleteReport(id string)
}

// mailer sends the resolution notification.
type mailer interface {
	IsConfigured() bool
	SendResolutionNotice(to, reporterName, reportTitle, evidenceURL string) error
}

// scorekeeper is the gamification engine.
type scorekeeper interface {
	Profile(ctx context.Context, userID, fullName string) (gamification.Profile, error)
	PushUpdates(ctx context.Context, userID string, prev gamification.Profile)
	MonthlyLeaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error)
}

type Service struct {
	cfg     config.Config
	store   dataStore
	refresh refreshStore
	hub     liveHub
	objects objectStore
	search  searchIndex
	mail    mailer
	game    scorekeeper
	passwd  *authpw.Service
}

// Deps collects the optional collaborators. Store is required; any nil
// dependency disables the matching feature rather than failing.
type Deps struct {
	Store    Store
	Sessions refreshStore
	Hub      liveHub
	Objects  objectStore
	Search   searchIndex
	Mail     mailer
	Game     scorekeeper
}

func New(cfg config.Config, deps Deps) *Service {
	s := &Service{
		cfg:     cfg,
		store:   deps.Store,
		refresh: deps.Store,
		hub:     deps.Hub,
		objects: deps.Objects,
		search:  deps.Search,
		mail:    deps.Mail,
		game:    deps.Game,
		passwd:  authpw.NewService(deps.Store),
	}
	if deps.Sessions != nil {
		s.refresh = deps.Sessions
	}
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Can(role string, action rbac.Action) bool {
	return rbac.Can(rbac.Normalize(role), action)
}

// Auth and sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	user, err := s.passwd.SignUp(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered")
		}
		return Session{}, domainError(http.StatusBadRequest, "SIGNUP_FAILED", err.Error())
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Session, error) {
	user, err := s.passwd.SignIn(ctx, email, password)
	if err != nil {
		if errors.Is(err, authpw.ErrAccountDisabled) {
			return Session{}, domainError(http.StatusForbidden, "ACCOUNT_DISABLED", "Account is disabled")
		}
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password")
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.FullName,
		Role: user.Role,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refreshToken := util.NewID("rft") + util.NewID("")
	if err := s.refresh.SaveRefreshSession(ctx, auth.HashToken(refreshToken), user.ID, now.Add(s.cfg.RefreshTTL)); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		UserName:     user.FullName,
		Role:         user.Role,
		Department:   user.Department,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.refresh.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid")
	}
	if err := s.refresh.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	// Sessions stores keep only id/name/role; rehydrate from the user table.
	if full, lookupErr := s.store.GetUserByID(ctx, user.ID); lookupErr == nil {
		user = full
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}
	if !user.IsActive {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:      token,
		UserID:     user.ID,
		UserName:   user.FullName,
		Role:       user.Role,
		Department: user.Department,
		JTI:        claims.JTI,
		ExpiresAt:  time.Unix(claims.Exp, 0),
	}, nil
}

// Authenticate resolves a token to its user id for the realtime layer.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	session, err := s.SessionFromToken(ctx, token)
	if err != nil {
		return "", err
	}
	return session.UserID, nil
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.refresh.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

// Departments

var defaultDepartments = []store.Department{
	{Name: "Garbage", Description: "Waste management and sanitation"},
	{Name: "Roads", Description: "Road infrastructure and maintenance"},
	{Name: "Water", Description: "Water supply and drainage"},
	{Name: "Electricity", Description: "Power infrastructure and street lighting"},
	{Name: "Traffic", Description: "Traffic signals and road safety"},
	{Name: "Parks", Description: "Public parks and recreation areas"},
	{Name: "General", Description: "General municipal services"},
}

var defaultCategoryMappings = []store.CategoryMapping{
	{Category: "Garbage", Department: "Garbage"},
	{Category: "Waste", Department: "Garbage"},
	{Category: "Sanitation", Department: "Garbage"},
	{Category: "Pothole", Department: "Roads"},
	{Category: "Road Damage", Department: "Roads"},
	{Category: "Sidewalk", Department: "Roads"},
	{Category: "Drainage", Department: "Roads"},
	{Category: "Waterlogging", Department: "Water"},
	{Category: "Water Supply", Department: "Water"},
	{Category: "Streetlight", Department: "Electricity"},
	{Category: "Power Outage", Department: "Electricity"},
	{Category: "Traffic Signal", Department: "Traffic"},
	{Category: "Road Safety", Department: "Traffic"},
	{Category: "Park Maintenance", Department: "Parks"},
	{Category: "Recreation", Department: "Parks"},
	{Category: "Other", Department: "General"},
}

// InitDepartments seeds the default department catalog and its
// category mappings. Safe to call repeatedly.
func (s *Service) InitDepartments(ctx context.Context) error {
	for _, dept := range defaultDepartments {
		d := dept
		d.ID = util.NewID("dep")
		if err := s.store.UpsertDepartment(ctx, d); err != nil {
			return fmt.Errorf("upsert department %s: %w", dept.Name, err)
		}
	}
	for _, mapping := range defaultCategoryMappings {
		if err := s.store.UpsertCategoryMapping(ctx, mapping); err != nil {
			return fmt.Errorf("upsert mapping %s: %w", mapping.Category, err)
		}
	}
	log.Printf("app: initialized %d departments, %d category mappings",
		len(defaultDepartments), len(defaultCategoryMappings))
	return nil
}

func (s *Service) ListDepartments(ctx context.Context) ([]store.Department, error) {
	return s.store.ListDepartments(ctx)
}

func (s *Service) DepartmentStats(ctx context.Context) ([]store.DepartmentStats, error) {
	return s.store.DepartmentStatsAll(ctx)
}

// Reports

type CreateReportInput struct {
	Title       string
	Description string
	Category    string
	Latitude    float64
	Longitude   float64
	HasCoords   bool
	ImageData   []byte
	ImageType   string
	ImageName   string
}

// DuplicateMatch describes the nearby active report that blocked a
// submission.
type DuplicateMatch struct {
	Report   store.Report
	Distance float64
	Upvotes  int
	Comments int
}

type CreateReportResult struct {
	Report    store.Report
	Duplicate *DuplicateMatch
}

func (s *Service) CreateReport(ctx context.Context, session Session, in CreateReportInput) (CreateReportResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return CreateReportResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required")
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return CreateReportResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "category is required")
	}
	if len(in.ImageData) == 0 {
		return CreateReportResult{}, domainError(http.StatusBadRequest, "IMAGE_REQUIRED", "An image of the issue is required")
	}
	if !strings.HasPrefix(in.ImageType, "image/") {
		return CreateReportResult{}, domainError(http.StatusBadRequest, "INVALID_IMAGE", "File must be an image (JPEG/PNG)")
	}
	if len(in.ImageData) > maxImageBytes {
		return CreateReportResult{}, domainError(http.StatusBadRequest, "IMAGE_TOO_LARGE", "File size must be less than 10MB")
	}
	if !in.HasCoords {
		// Photos taken with location services on carry their position
		// in the image metadata.
		if lat, lng, ok := exif.LatLong(in.ImageData); ok {
			in.Latitude, in.Longitude, in.HasCoords = lat, lng, true
		}
	}
	if !in.HasCoords || !geo.Valid(in.Latitude, in.Longitude) {
		return CreateReportResult{}, domainError(http.StatusBadRequest, "COORDINATES_REQUIRED", "GPS coordinates are required")
	}

	if dup, err := s.findDuplicate(ctx, category, in.Latitude, in.Longitude); err != nil {
		// Duplicate detection is best effort; a store hiccup should not
		// block a legitimate submission.
		log.Printf("app: duplicate detection failed, proceeding: %v", err)
	} else if dup != nil {
		return CreateReportResult{Duplicate: dup}, nil
	}

	prevProfile := s.captureProfile(ctx, session)

	imageURL := ""
	if s.objects != nil {
		url, err := s.objects.SaveImage(ctx, in.ImageName, in.ImageType, in.ImageData)
		if err != nil {
			return CreateReportResult{}, fmt.Errorf("save image: %w", err)
		}
		imageURL = url
	}

	report := store.Report{
		ID:          util.NewID("rpt"),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		Category:    category,
		ImageURL:    imageURL,
		Latitude:    in.Latitude,
		Longitude:   in.Longitude,
		ReporterID:  session.UserID,
		Status:      store.StatusReported,
	}

	images := []store.ReportImage{}
	if imageURL != "" {
		images = append(images, store.ReportImage{
			ID:       util.NewID("img"),
			ReportID: report.ID,
			URL:      imageURL,
			Position: 0,
		})
	}

	if err := s.store.CreateReport(ctx, report, images); err != nil {
		return CreateReportResult{}, fmt.Errorf("create report: %w", err)
	}

	if s.search != nil {
		s.search.IndexReport(search.ReportRecord{
			ID:          report.ID,
			Title:       report.Title,
			Description: report.Description,
			Category:    report.Category,
			Status:      report.Status,
		})
	}

	s.pushScore(ctx, session, prevProfile)

	created, err := s.store.GetReport(ctx, report.ID)
	if err != nil {
		created = report
	}
	return CreateReportResult{Report: created}, nil
}

// findDuplicate scans active reports of the same category for one
// within the duplicate radius, returning the nearest match.
func (s *Service) findDuplicate(ctx context.Context, category string, lat, lng float64) (*DuplicateMatch, error) {
	candidates, err := s.store.ListActiveReportsByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	var nearest *store.Report
	nearestDistance := math.Inf(1)
	for i := range candidates {
		d, err := geo.Distance(candidates[i].Latitude, candidates[i].Longitude, lat, lng)
		if err != nil {
			continue
		}
		if d <= duplicateRadiusMeters && d < nearestDistance {
			nearest = &candidates[i]
			nearestDistance = d
		}
	}
	if nearest == nil {
		return nil, nil
	}

	match := &DuplicateMatch{Report: *nearest, Distance: nearestDistance}
	if comments, err := s.store.ListComments(ctx, nearest.ID); err == nil {
		match.Comments = len(comments)
	}
	return match, nil
}

func (s *Service) MyReports(ctx context.Context, session Session) ([]store.ReportSummary, error) {
	return s.store.ListReportsByReporter(ctx, session.UserID)
}

func (s *Service) CommunityReports(ctx context.Context, limit int) ([]store.ReportSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	return s.store.ListCommunityReports(ctx, limit)
}

// DepartmentReports lists reports routed to the staff member's own
// department via the category mappings.
func (s *Service) DepartmentReports(ctx context.Context, session Session) ([]store.ReportSummary, error) {
	department := session.Department
	if department == "" {
		department = "General"
	}
	categories, err := s.store.CategoriesForDepartment(ctx, department)
	if err != nil {
		return nil, err
	}
	if len(categories) == 0 {
		return []store.ReportSummary{}, nil
	}
	return s.store.ListReportsByCategories(ctx, categories)
}

func (s *Service) GetReport(ctx context.Context, session Session, reportID string) (store.Report, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return store.Report{}, err
	}
	if report.IsDeleted && report.ReporterID != session.UserID && !s.Can(session.Role, rbac.ActionTriage) {
		return store.Report{}, store.ErrNotFound
	}
	return report, nil
}

func (s *Service) DeleteReport(ctx context.Context, session Session, reportID, reason string) error {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return err
	}
	if report.ReporterID != session.UserID && !s.Can(session.Role, rbac.ActionAdmin) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only the reporter can delete this report")
	}
	if report.Status == store.StatusResolved {
		return domainError(http.StatusConflict, "REPORT_RESOLVED", "Resolved reports cannot be deleted")
	}
	if err := s.store.SoftDeleteReport(ctx, reportID, strings.TrimSpace(reason)); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteReport(reportID)
	}
	return nil
}

// Status lifecycle

type StatusUpdateInput struct {
	NewStatus string
	Notes     string
}

// UpdateStatus advances a report through its lifecycle. Stages cannot
// be skipped forward, resolved is terminal, and resolution itself must
// go through Resolve with evidence.
func (s *Service) UpdateStatus(ctx context.Context, session Session, reportID string, in StatusUpdateInput) (store.StatusChange, error) {
	newStatus := strings.TrimSpace(in.NewStatus)
	newIdx, ok := store.StatusOrder[newStatus]
	if !ok {
		return store.StatusChange{}, domainError(http.StatusUnprocessableEntity, "INVALID_STATUS",
			fmt.Sprintf("Invalid status %q", newStatus))
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return store.StatusChange{}, err
	}
	if report.Status == newStatus {
		return store.StatusChange{}, domainError(http.StatusConflict, "STATUS_UNCHANGED",
			fmt.Sprintf("Status is already %s", newStatus))
	}
	if report.Status == store.StatusResolved {
		return store.StatusChange{}, domainError(http.StatusConflict, "REPORT_RESOLVED",
			"Report is resolved and cannot be changed")
	}
	// Resolution is never reachable here, whatever the current stage;
	// it must go through Resolve with evidence.
	if newStatus == store.StatusResolved {
		return store.StatusChange{}, domainError(http.StatusConflict, "EVIDENCE_REQUIRED",
			"Resolution requires evidence upload; use the resolve endpoint")
	}
	if curIdx, ok := store.StatusOrder[report.Status]; ok && newIdx > curIdx+1 {
		return store.StatusChange{}, domainError(http.StatusConflict, "STATUS_SKIP",
			fmt.Sprintf("Cannot skip status stages: %s to %s", report.Status, newStatus))
	}

	change := store.StatusChange{
		ID:        util.NewID("sch"),
		ReportID:  reportID,
		OldStatus: report.Status,
		NewStatus: newStatus,
		ChangedBy: session.UserID,
		Notes:     strings.TrimSpace(in.Notes),
	}
	if err := s.store.UpdateReportStatus(ctx, change); err != nil {
		return store.StatusChange{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastStatusUpdate(reportID, change.OldStatus, change.NewStatus, session.UserName, change.Notes)
	}
	if s.search != nil {
		s.search.IndexReport(search.ReportRecord{
			ID:          report.ID,
			Title:       report.Title,
			Description: report.Description,
			Category:    report.Category,
			Status:      newStatus,
		})
	}
	return change, nil
}

func (s *Service) StatusHistory(ctx context.Context, session Session, reportID string) ([]store.StatusChange, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.ReporterID != session.UserID && !s.Can(session.Role, rbac.ActionTriage) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Forbidden")
	}
	return s.store.ListStatusHistory(ctx, reportID)
}

// Resolution

type ResolveInput struct {
	Latitude  float64
	Longitude float64
	HasCoords bool
	Notes     string
	ImageData []byte
	ImageType string
}

type ResolveResult struct {
	Report         store.Report
	EvidenceURL    string
	DistanceMeters float64
}

// Resolve closes a report with photographic evidence taken at the
// scene. The evidence coordinates must fall within the configured
// radius of the original report.
func (s *Service) Resolve(ctx context.Context, session Session, reportID string, in ResolveInput) (ResolveResult, error) {
	if len(in.ImageData) == 0 {
		return ResolveResult{}, domainError(http.StatusBadRequest, "IMAGE_REQUIRED", "Resolution evidence image is required")
	}
	if !strings.HasPrefix(in.ImageType, "image/") {
		return ResolveResult{}, domainError(http.StatusBadRequest, "INVALID_IMAGE", "Resolution image must be an image (JPEG/PNG)")
	}
	if len(in.ImageData) > maxImageBytes {
		return ResolveResult{}, domainError(http.StatusBadRequest, "IMAGE_TOO_LARGE", "Resolution image size must be less than 10MB")
	}
	if !in.HasCoords {
		return ResolveResult{}, domainError(http.StatusBadRequest, "COORDINATES_REQUIRED", "Resolution coordinates are required")
	}

	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return ResolveResult{}, err
	}
	if report.Status == store.StatusResolved {
		return ResolveResult{}, domainError(http.StatusConflict, "ALREADY_RESOLVED", "Report is already resolved")
	}

	radius := s.cfg.ResolutionRadiusMeters
	if radius <= 0 {
		radius = duplicateRadiusMeters
	}
	within, distance := geo.Within(report.Latitude, report.Longitude, in.Latitude, in.Longitude, radius)
	if !within {
		return ResolveResult{}, domainError(http.StatusBadRequest, "TOO_FAR", fmt.Sprintf(
			"Resolution failed: evidence photo taken %.2fm from the reported location, maximum allowed is %.0fm",
			distance, radius), map[string]any{"distance_meters": distance, "max_meters": radius})
	}

	evidenceURL := ""
	if s.objects != nil {
		url, err := s.objects.SaveEvidence(ctx, reportID, session.UserID, in.ImageType, in.ImageData)
		if err != nil {
			return ResolveResult{}, fmt.Errorf("save evidence: %w", err)
		}
		evidenceURL = url
	}

	notes := strings.TrimSpace(in.Notes)
	if notes == "" {
		notes = fmt.Sprintf("Resolved with geo-verified evidence. Distance: %.2fm", distance)
	}
	historyID := util.NewID("sch")
	if err := s.store.ResolveReport(ctx, reportID, session.UserID, evidenceURL, in.Latitude, in.Longitude, distance, historyID, notes); err != nil {
		return ResolveResult{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastResolution(reportID, evidenceURL, in.Latitude, in.Longitude, distance)
		s.hub.BroadcastStatusUpdate(reportID, report.Status, store.StatusResolved, session.UserName, notes)
	}
	if s.search != nil {
		s.search.IndexReport(search.ReportRecord{
			ID:          report.ID,
			Title:       report.Title,
			Description: report.Description,
			Category:    report.Category,
			Status:      store.StatusResolved,
		})
	}
	s.notifyReporter(ctx, report, evidenceURL)
	s.pushScoreForUser(ctx, report.ReporterID)

	resolved, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		resolved = report
	}
	return ResolveResult{Report: resolved, EvidenceURL: evidenceURL, DistanceMeters: distance}, nil
}

func (s *Service) notifyReporter(ctx context.Context, report store.Report, evidenceURL string) {
	if s.mail == nil || !s.mail.IsConfigured() {
		return
	}
	reporter, err := s.store.GetUserByID(ctx, report.ReporterID)
	if err != nil {
		log.Printf("app: lookup reporter %s for notification: %v", report.ReporterID, err)
		return
	}
	if err := s.mail.SendResolutionNotice(reporter.Email, reporter.FullName, report.Title, evidenceURL); err != nil {
		log.Printf("app: send resolution notice to %s: %v", reporter.Email, err)
	}
}

// Comments and upvotes

func (s *Service) AddComment(ctx context.Context, session Session, reportID, body string) (store.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment body is required")
	}
	if len(body) > 2000 {
		return store.Comment{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "comment must be at most 2000 characters")
	}
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return store.Comment{}, err
	}

	prevProfile := s.captureProfile(ctx, session)

	comment, err := s.store.AddComment(ctx, store.Comment{
		ID:       util.NewID("cmt"),
		ReportID: reportID,
		UserID:   session.UserID,
		Body:     body,
	})
	if err != nil {
		return store.Comment{}, err
	}
	comment.UserName = session.UserName

	if s.hub != nil {
		s.hub.BroadcastComment(reportID, comment.ID, session.UserID, session.UserName, body, comment.CreatedAt)
	}
	s.pushScore(ctx, session, prevProfile)
	return comment, nil
}

func (s *Service) ListComments(ctx context.Context, reportID string) ([]store.Comment, error) {
	if _, err := s.store.GetReport(ctx, reportID); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, reportID)
}

type UpvoteResult struct {
	Added bool
	Total int
}

func (s *Service) ToggleUpvote(ctx context.Context, session Session, reportID string) (UpvoteResult, error) {
	report, err := s.store.GetReport(ctx, reportID)
	if err != nil {
		return UpvoteResult{}, err
	}
	if report.ReporterID == session.UserID {
		return UpvoteResult{}, domainError(http.StatusConflict, "OWN_REPORT", "You cannot upvote your own report")
	}

	prevProfile := s.captureProfile(ctx, session)

	added, total, err := s.store.ToggleUpvote(ctx, util.NewID("upv"), reportID, session.UserID)
	if err != nil {
		return UpvoteResult{}, err
	}

	if s.hub != nil {
		s.hub.BroadcastUpvote(reportID, total, session.UserID, added)
	}
	s.pushScore(ctx, session, prevProfile)
	return UpvoteResult{Added: added, Total: total}, nil
}

// Gamification

func (s *Service) GamificationProfile(ctx context.Context, session Session) (gamification.Profile, error) {
	if s.game == nil {
		return gamification.Profile{}, domainError(http.StatusServiceUnavailable, "GAMIFICATION_UNAVAILABLE", "Gamification is not configured")
	}
	return s.game.Profile(ctx, session.UserID, session.UserName)
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]store.LeaderboardEntry, error) {
	if s.game == nil {
		return nil, domainError(http.StatusServiceUnavailable, "GAMIFICATION_UNAVAILABLE", "Gamification is not configured")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	return s.game.MonthlyLeaderboard(ctx, limit)
}

// captureProfile snapshots the caller's score before a scored action
// so PushUpdates can emit deltas afterwards.
func (s *Service) captureProfile(ctx context.Context, session Session) *gamification.Profile {
	if s.game == nil {
		return nil
	}
	profile, err := s.game.Profile(ctx, session.UserID, session.UserName)
	if err != nil {
		log.Printf("app: capture score snapshot for %s: %v", session.UserID, err)
		return nil
	}
	return &profile
}

func (s *Service) pushScore(ctx context.Context, session Session, prev *gamification.Profile) {
	if s.game == nil || prev == nil {
		return
	}
	s.game.PushUpdates(ctx, session.UserID, *prev)
}

// pushScoreForUser emits score updates for a user other than the
// caller, e.g. the reporter when staff resolves their report.
func (s *Service) pushScoreForUser(ctx context.Context, userID string) {
	if s.game == nil || userID == "" {
		return
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return
	}
	prev, err := s.game.Profile(ctx, userID, user.FullName)
	if err != nil {
		return
	}
	// The store already reflects the resolution; rewind only the point
	// total so the delta is emitted without re-announcing badges.
	prev.Points -= gamification.PointsPerResolved
	s.game.PushUpdates(ctx, userID, prev)
}

// Search

func (s *Service) SearchReports(ctx context.Context, q search.Query) (search.Response, error) {
	if s.search == nil {
		return search.Response{}, domainError(http.StatusServiceUnavailable, "SEARCH_UNAVAILABLE", "Search is not configured")
	}
	return s.search.Search(q), nil
}

// Export adapters

// GetReportForExport loads a report with its reporter name for the
// document renderer.
func (s *Service) GetReportForExport(ctx context.Context, id string) (export.ReportInfo, error) {
	report, err := s.store.GetReport(ctx, id)
	if err != nil {
		return export.ReportInfo{}, err
	}
	reporterName := ""
	if reporter, err := s.store.GetUserByID(ctx, report.ReporterID); err == nil {
		reporterName = reporter.FullName
	}
	department, err := s.store.DepartmentForCategory(ctx, report.Category)
	if err != nil {
		department = "General"
	}
	resolvedBy := ""
	if report.ResolvedBy != "" {
		if admin, err := s.store.GetUserByID(ctx, report.ResolvedBy); err == nil {
			resolvedBy = admin.FullName
		}
	}
	return export.ReportInfo{
		ID:              report.ID,
		Title:           report.Title,
		Description:     report.Description,
		Category:        report.Category,
		Department:      department,
		Status:          report.Status,
		ReporterName:    reporterName,
		Latitude:        report.Latitude,
		Longitude:       report.Longitude,
		CreatedAt:       report.CreatedAt,
		ResolvedAt:      report.ResolvedAt,
		ResolvedBy:      resolvedBy,
		ResolutionNotes: report.AdminNotes,
		EvidenceURL:     report.ResolutionImageURL,
	}, nil
}

func (s *Service) ListHistoryForExport(ctx context.Context, reportID string) ([]export.HistoryInfo, error) {
	history, err := s.store.ListStatusHistory(ctx, reportID)
	if err != nil {
		return nil, err
	}
	out := make([]export.HistoryInfo, 0, len(history))
	for _, change := range history {
		changedBy := change.ChangedBy
		if user, err := s.store.GetUserByID(ctx, change.ChangedBy); err == nil {
			changedBy = user.FullName
		}
		out = append(out, export.HistoryInfo{
			FromStatus: change.OldStatus,
			ToStatus:   change.NewStatus,
			ChangedBy:  changedBy,
			Notes:      change.Notes,
			ChangedAt:  change.CreatedAt,
		})
	}
	return out, nil
}

func (s *Service) ListCommentsForExport(ctx context.Context, reportID string) ([]export.CommentInfo, error) {
	comments, err := s.store.ListComments(ctx, reportID)
	if err != nil {
		return nil, err
	}
	out := make([]export.CommentInfo, 0, len(comments))
	for _, c := range comments {
		out = append(out, export.CommentInfo{
			Author:    c.UserName,
			Body:      c.Body,
			CreatedAt: c.CreatedAt,
		})
	}
	return out, nil
}
