package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"crowdcare/internal/auth"
	"crowdcare/internal/authpw"
	"crowdcare/internal/export"
	"crowdcare/internal/rbac"
	"crowdcare/internal/search"
	"crowdcare/internal/store"
)

type HTTPServer struct {
	service    *Service
	exporter   *export.Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		exporter:   export.NewService(service),
		corsOrigin: corsOrigin,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		s.handleRefresh(w, r)
		return
	}
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		token := bearerToken(r)
		if token == "" {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		session, err := s.service.SessionFromToken(r.Context(), token)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        session.UserID,
			"userName":      session.UserName,
			"role":          session.Role,
			"department":    session.Department,
		})
		return
	}

	// Everything below requires a session.
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 0 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
		return
	}
	parts = parts[1:]

	switch {
	// Reports
	case len(parts) == 1 && parts[0] == "reports" && r.Method == http.MethodGet:
		s.listJSON(w, r, func(ctx context.Context) (any, error) {
			summaries, err := s.service.MyReports(ctx, session)
			return summariesJSON(summaries), err
		})

	case len(parts) == 1 && parts[0] == "reports" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionReport) {
			s.forbid(w, r, session, "report")
			return
		}
		s.handleCreateReport(w, r, session)

	case len(parts) == 2 && parts[0] == "reports" && parts[1] == "community" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		s.listJSON(w, r, func(ctx context.Context) (any, error) {
			summaries, err := s.service.CommunityReports(ctx, limit)
			return summariesJSON(summaries), err
		})

	case len(parts) == 2 && parts[0] == "reports" && r.Method == http.MethodGet:
		report, err := s.service.GetReport(r.Context(), session, parts[1])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, reportJSON(report))

	case len(parts) == 2 && parts[0] == "reports" && r.Method == http.MethodDelete:
		var body struct {
			Reason string `json:"reason"`
		}
		_ = decodeBody(r, &body)
		if err := s.service.DeleteReport(r.Context(), session, parts[1], body.Reason); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 3 && parts[0] == "reports" && parts[2] == "comments" && r.Method == http.MethodGet:
		s.listJSON(w, r, func(ctx context.Context) (any, error) {
			comments, err := s.service.ListComments(ctx, parts[1])
			return commentsJSON(comments), err
		})

	case len(parts) == 3 && parts[0] == "reports" && parts[2] == "comments" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionComment) {
			s.forbid(w, r, session, "comment")
			return
		}
		var body struct {
			Comment string `json:"comment"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		comment, err := s.service.AddComment(r.Context(), session, parts[1], body.Comment)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, commentJSON(comment))

	case len(parts) == 3 && parts[0] == "reports" && parts[2] == "upvote" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionComment) {
			s.forbid(w, r, session, "upvote")
			return
		}
		result, err := s.service.ToggleUpvote(r.Context(), session, parts[1])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		action := "removed"
		if result.Added {
			action = "added"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reportId":     parts[1],
			"action":       action,
			"totalUpvotes": result.Total,
		})

	case len(parts) == 3 && parts[0] == "reports" && parts[2] == "status-history" && r.Method == http.MethodGet:
		history, err := s.service.StatusHistory(r.Context(), session, parts[1])
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, historyJSON(history))

	case len(parts) == 3 && parts[0] == "reports" && parts[2] == "export" && r.Method == http.MethodGet:
		s.handleExport(w, r, session, parts[1])

	// Admin: reports routed to the staff member's department
	case len(parts) == 2 && parts[0] == "admin" && parts[1] == "reports" && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionTriage) {
			s.forbid(w, r, session, "triage")
			return
		}
		s.listJSON(w, r, func(ctx context.Context) (any, error) {
			summaries, err := s.service.DepartmentReports(ctx, session)
			return summariesJSON(summaries), err
		})

	case len(parts) == 4 && parts[0] == "admin" && parts[1] == "reports" && parts[3] == "status" && r.Method == http.MethodPatch:
		if !s.service.Can(session.Role, rbac.ActionTriage) {
			s.forbid(w, r, session, "triage")
			return
		}
		var body struct {
			Status string `json:"status"`
			Notes  string `json:"notes"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
			return
		}
		change, err := s.service.UpdateStatus(r.Context(), session, parts[2], StatusUpdateInput{NewStatus: body.Status, Notes: body.Notes})
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"reportId":  change.ReportID,
			"oldStatus": change.OldStatus,
			"newStatus": change.NewStatus,
			"notes":     change.Notes,
		})

	case len(parts) == 4 && parts[0] == "admin" && parts[1] == "reports" && parts[3] == "resolve" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionResolve) {
			s.forbid(w, r, session, "resolve")
			return
		}
		s.handleResolve(w, r, session, parts[2])

	// Admin: departments
	case len(parts) == 3 && parts[0] == "admin" && parts[1] == "departments" && parts[2] == "initialize" && r.Method == http.MethodPost:
		if !s.service.Can(session.Role, rbac.ActionAdmin) {
			s.forbid(w, r, session, "admin")
			return
		}
		if err := s.service.InitDepartments(r.Context()); err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 2 && parts[0] == "admin" && parts[1] == "departments" && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionTriage) {
			s.forbid(w, r, session, "triage")
			return
		}
		s.listJSON(w, r, func(ctx context.Context) (any, error) {
			departments, err := s.service.ListDepartments(ctx)
			return departmentsJSON(departments), err
		})

	case len(parts) == 3 && parts[0] == "admin" && parts[1] == "departments" && parts[2] == "stats" && r.Method == http.MethodGet:
		if !s.service.Can(session.Role, rbac.ActionTriage) {
			s.forbid(w, r, session, "triage")
			return
		}
		stats, err := s.service.DepartmentStats(r.Context())
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statsJSON(stats))

	// Gamification
	case len(parts) == 2 && parts[0] == "gamification" && parts[1] == "profile" && r.Method == http.MethodGet:
		profile, err := s.service.GamificationProfile(r.Context(), session)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)

	case len(parts) == 2 && parts[0] == "gamification" && parts[1] == "leaderboard" && r.Method == http.MethodGet:
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		board, err := s.service.Leaderboard(r.Context(), limit)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, leaderboardJSON(board))

	// Search
	case len(parts) == 1 && parts[0] == "search" && r.Method == http.MethodGet:
		s.handleSearch(w, r)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found")
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email      string `json:"email"`
		Password   string `json:"password"`
		FullName   string `json:"fullName"`
		Mobile     string `json:"mobile"`
		Role       string `json:"role"`
		Department string `json:"department"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	session, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:      body.Email,
		Password:   body.Password,
		FullName:   body.FullName,
		Mobile:     body.Mobile,
		Role:       body.Role,
		Department: body.Department,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionJSON(session))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}

	session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	session, err := s.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionJSON(session))
}

func (s *HTTPServer) handleCreateReport(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(maxImageBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}

	in := CreateReportInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
	}

	if latStr, lngStr := r.FormValue("latitude"), r.FormValue("longitude"); latStr != "" && lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr == nil && lngErr == nil {
			in.Latitude, in.Longitude, in.HasCoords = lat, lng, true
		}
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "IMAGE_REQUIRED", "An image of the issue is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not read uploaded image")
		return
	}
	in.ImageData = data
	in.ImageType = imageContentType(header.Header.Get("Content-Type"), data)
	in.ImageName = header.Filename

	result, err := s.service.CreateReport(r.Context(), session, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if result.Duplicate != nil {
		dup := result.Duplicate
		writeJSON(w, http.StatusOK, map[string]any{
			"duplicate": true,
			"message":   "This issue has already been reported nearby.",
			"existingReport": map[string]any{
				"id":             dup.Report.ID,
				"title":          dup.Report.Title,
				"category":       dup.Report.Category,
				"status":         dup.Report.Status,
				"latitude":       dup.Report.Latitude,
				"longitude":      dup.Report.Longitude,
				"distanceMeters": dup.Distance,
				"upvotes":        dup.Upvotes,
				"comments":       dup.Comments,
			},
		})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"duplicate": false,
		"report":    reportJSON(result.Report),
	})
}

func (s *HTTPServer) handleResolve(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if err := r.ParseMultipartForm(maxImageBytes + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid multipart form")
		return
	}

	in := ResolveInput{Notes: r.FormValue("notes")}

	if latStr, lngStr := r.FormValue("latitude"), r.FormValue("longitude"); latStr != "" && lngStr != "" {
		lat, latErr := strconv.ParseFloat(latStr, 64)
		lng, lngErr := strconv.ParseFloat(lngStr, 64)
		if latErr == nil && lngErr == nil {
			in.Latitude, in.Longitude, in.HasCoords = lat, lng, true
		}
	}

	file, header, err := r.FormFile("evidence")
	if err != nil {
		writeError(w, http.StatusBadRequest, "IMAGE_REQUIRED", "Resolution evidence image is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxImageBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_IMAGE", "Could not read uploaded image")
		return
	}
	in.ImageData = data
	in.ImageType = imageContentType(header.Header.Get("Content-Type"), data)

	result, err := s.service.Resolve(r.Context(), session, reportID, in)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"reportId":       result.Report.ID,
		"status":         result.Report.Status,
		"evidenceUrl":    result.EvidenceURL,
		"distanceMeters": result.DistanceMeters,
		"adminCoordinates": map[string]any{
			"lat": in.Latitude,
			"lng": in.Longitude,
		},
		"resolvedAt": timeJSON(result.Report.ResolvedAt),
	})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, session Session, reportID string) {
	if _, err := s.service.GetReport(r.Context(), session, reportID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	format := export.Format(r.URL.Query().Get("format"))
	result, err := s.exporter.Export(r.Context(), export.Request{
		ReportID:        reportID,
		Format:          format,
		IncludeComments: r.URL.Query().Get("comments") != "0",
		IncludeHistory:  r.URL.Query().Get("history") != "0",
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error())
			return
		}
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))

	resp, err := s.service.SearchReports(r.Context(), search.Query{
		Text:           query.Get("q"),
		FilterCategory: query.Get("category"),
		FilterStatus:   query.Get("status"),
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// listJSON runs a list query and writes the result.
func (s *HTTPServer) listJSON(w http.ResponseWriter, r *http.Request, load func(ctx context.Context) (any, error)) {
	payload, err := load(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

// forbid writes a 403 Forbidden response
func (s *HTTPServer) forbid(w http.ResponseWriter, r *http.Request, session Session, action string) {
	log.Printf("app: denied %s for user %s role %s on %s", action, session.UserID, session.Role, r.URL.Path)
	writeError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized")
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Printf("app: %s %s failed: %v", r.Method, r.URL.Path, err)
	}
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details ...any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if len(details) > 0 && details[0] != nil {
		response["details"] = details[0]
	}
	writeJSON(w, status, response)
}

// imageContentType trusts the multipart part's own Content-Type when
// the client set one; uploads tagged with the generic octet-stream (or
// nothing) are sniffed from their leading bytes instead.
func imageContentType(declared string, data []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	return http.DetectContentType(data)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}

// JSON shapes

func sessionJSON(session Session) map[string]any {
	return map[string]any{
		"accessToken":  session.Token,
		"refreshToken": session.RefreshToken,
		"userId":       session.UserID,
		"userName":     session.UserName,
		"role":         session.Role,
		"department":   session.Department,
		"expiresAt":    session.ExpiresAt.Unix(),
	}
}

func timeJSON(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func reportJSON(report store.Report) map[string]any {
	payload := map[string]any{
		"id":          report.ID,
		"title":       report.Title,
		"description": report.Description,
		"category":    report.Category,
		"imageUrl":    report.ImageURL,
		"latitude":    report.Latitude,
		"longitude":   report.Longitude,
		"reporterId":  report.ReporterID,
		"status":      report.Status,
		"createdAt":   report.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   report.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if report.AcknowledgedAt != nil {
		payload["acknowledgedAt"] = timeJSON(report.AcknowledgedAt)
	}
	if report.InProgressAt != nil {
		payload["inProgressAt"] = timeJSON(report.InProgressAt)
	}
	if report.ResolvedAt != nil {
		payload["resolvedAt"] = timeJSON(report.ResolvedAt)
		payload["resolvedBy"] = report.ResolvedBy
		payload["resolutionImageUrl"] = report.ResolutionImageURL
		if report.ResolutionDistanceMeters != nil {
			payload["resolutionDistanceMeters"] = *report.ResolutionDistanceMeters
		}
	}
	if report.IsDeleted {
		payload["deleted"] = true
		payload["deletionReason"] = report.DeletionReason
	}
	return payload
}

func summariesJSON(summaries []store.ReportSummary) []map[string]any {
	out := make([]map[string]any, 0, len(summaries))
	for _, summary := range summaries {
		payload := reportJSON(summary.Report)
		payload["upvotes"] = summary.Upvotes
		payload["comments"] = summary.Comments
		payload["reporterName"] = summary.ReporterName
		out = append(out, payload)
	}
	return out
}

func commentJSON(comment store.Comment) map[string]any {
	return map[string]any{
		"id":        comment.ID,
		"reportId":  comment.ReportID,
		"userId":    comment.UserID,
		"userName":  comment.UserName,
		"comment":   comment.Body,
		"createdAt": comment.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func commentsJSON(comments []store.Comment) []map[string]any {
	out := make([]map[string]any, 0, len(comments))
	for _, comment := range comments {
		out = append(out, commentJSON(comment))
	}
	return out
}

func historyJSON(history []store.StatusChange) []map[string]any {
	out := make([]map[string]any, 0, len(history))
	for _, change := range history {
		out = append(out, map[string]any{
			"id":        change.ID,
			"reportId":  change.ReportID,
			"oldStatus": change.OldStatus,
			"newStatus": change.NewStatus,
			"changedBy": change.ChangedBy,
			"notes":     change.Notes,
			"changedAt": change.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func departmentsJSON(departments []store.Department) []map[string]any {
	out := make([]map[string]any, 0, len(departments))
	for _, dept := range departments {
		out = append(out, map[string]any{
			"id":          dept.ID,
			"name":        dept.Name,
			"description": dept.Description,
		})
	}
	return out
}

func statsJSON(stats []store.DepartmentStats) []map[string]any {
	out := make([]map[string]any, 0, len(stats))
	for _, entry := range stats {
		out = append(out, map[string]any{
			"department": entry.Department,
			"total":      entry.Total,
			"reported":   entry.Reported,
			"inProgress": entry.InProgress,
			"resolved":   entry.Resolved,
		})
	}
	return out
}

func leaderboardJSON(entries []store.LeaderboardEntry) []map[string]any {
	out := make([]map[string]any, 0, len(entries))
	for _, entry := range entries {
		out = append(out, map[string]any{
			"rank":   entry.Rank,
			"name":   entry.FullName,
			"points": entry.Points,
		})
	}
	return out
}
