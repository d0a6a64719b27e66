package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
)

// jpegBytes starts with the JPEG magic so uploads written through
// multipart.CreateFormFile (which tags parts application/octet-stream)
// still sniff as an image.
var jpegBytes = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00, 0x01}

func newTestHTTP(t *testing.T) (*testEnv, *httptest.Server) {
	t.Helper()
	env := newTestService(t)
	server := httptest.NewServer(NewHTTPServer(env.service, "*").Handler())
	t.Cleanup(server.Close)
	return env, server
}

func doJSON(t *testing.T, method, url, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	payload := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			// Some endpoints return arrays; callers that care decode
			// themselves.
			payload = map[string]any{"_raw": string(raw)}
		}
	}
	return resp, payload
}

func signUpHTTP(t *testing.T, server *httptest.Server, email, role, department string) (token, refreshToken, userID string) {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]any{
		"email":      email,
		"password":   "hunter2hunter2",
		"fullName":   "Test " + role,
		"role":       role,
		"department": department,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %v", resp.StatusCode, body)
	}
	return body["accessToken"].(string), body["refreshToken"].(string), body["userId"].(string)
}

func createReportHTTP(t *testing.T, server *httptest.Server, token string, category string, lat, lng float64) string {
	t.Helper()
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("title", "Broken streetlight near the park")
	_ = form.WriteField("description", "Dark corner at night")
	_ = form.WriteField("category", category)
	_ = form.WriteField("latitude", fmt.Sprintf("%f", lat))
	_ = form.WriteField("longitude", fmt.Sprintf("%f", lng))
	part, err := form.CreateFormFile("image", "light.jpg")
	if err != nil {
		t.Fatalf("form file: %v", err)
	}
	_, _ = part.Write(jpegBytes)
	_ = form.Close()

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/reports", &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("create report: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		t.Fatalf("create report status = %d, body = %s", resp.StatusCode, raw)
	}
	var body struct {
		Duplicate bool           `json:"duplicate"`
		Report    map[string]any `json:"report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Duplicate {
		t.Fatal("unexpected duplicate response")
	}
	return body.Report["id"].(string)
}

func TestHealthAndReady(t *testing.T) {
	env, server := newTestHTTP(t)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready = %d %v", resp.StatusCode, body)
	}

	env.fs.pingErr = fmt.Errorf("connection refused")
	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/ready", "", nil)
	if resp.StatusCode != http.StatusServiceUnavailable || body["status"] != "not_ready" {
		t.Fatalf("ready with dead db = %d %v", resp.StatusCode, body)
	}
}

func TestRequestIDAndCORSHeaders(t *testing.T) {
	_, server := newTestHTTP(t)

	resp, _ := doJSON(t, http.MethodGet, server.URL+"/api/health", "", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID header")
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS header")
	}

	req, _ := http.NewRequest(http.MethodOptions, server.URL+"/api/reports", nil)
	preflight, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	preflight.Body.Close()
	if preflight.StatusCode != http.StatusNoContent {
		t.Fatalf("preflight status = %d", preflight.StatusCode)
	}
}

func TestAuthFlowOverHTTP(t *testing.T) {
	_, server := newTestHTTP(t)

	token, refreshToken, userID := signUpHTTP(t, server, "ana@example.com", "citizen", "")

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/auth/me", token, nil)
	if resp.StatusCode != http.StatusOK || body["authenticated"] != true || body["userId"] != userID {
		t.Fatalf("me = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/auth/me", "garbage-token", nil)
	if resp.StatusCode != http.StatusOK || body["authenticated"] != false {
		t.Fatalf("me with bad token = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]any{
		"refreshToken": refreshToken,
	})
	if resp.StatusCode != http.StatusOK || body["accessToken"] == "" {
		t.Fatalf("refresh = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/signin", "", map[string]any{
		"email":    "ana@example.com",
		"password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad signin status = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/reports", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list status = %d", resp.StatusCode)
	}
}

func TestReportFlowOverHTTP(t *testing.T) {
	_, server := newTestHTTP(t)

	citizenToken, _, _ := signUpHTTP(t, server, "ana@example.com", "citizen", "")
	staffToken, _, _ := signUpHTTP(t, server, "staff@city.gov", "staff", "Electricity")

	reportID := createReportHTTP(t, server, citizenToken, "Streetlight", 12.9716, 77.5946)

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/reports/"+reportID, citizenToken, nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "reported" {
		t.Fatalf("get report = %d %v", resp.StatusCode, body)
	}

	// Citizens cannot triage.
	resp, _ = doJSON(t, http.MethodPatch, server.URL+"/api/admin/reports/"+reportID+"/status", citizenToken, map[string]any{
		"status": "acknowledged",
	})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("citizen triage status = %d", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodPatch, server.URL+"/api/admin/reports/"+reportID+"/status", staffToken, map[string]any{
		"status": "acknowledged",
		"notes":  "crew on the way",
	})
	if resp.StatusCode != http.StatusOK || body["newStatus"] != "acknowledged" {
		t.Fatalf("triage = %d %v", resp.StatusCode, body)
	}

	// Another citizen can comment and upvote.
	benToken, _, _ := signUpHTTP(t, server, "ben@example.com", "citizen", "")
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/reports/"+reportID+"/comments", benToken, map[string]any{
		"comment": "Same here.",
	})
	if resp.StatusCode != http.StatusCreated || body["comment"] != "Same here." {
		t.Fatalf("comment = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/reports/"+reportID+"/upvote", benToken, nil)
	if resp.StatusCode != http.StatusOK || body["action"] != "added" {
		t.Fatalf("upvote = %d %v", resp.StatusCode, body)
	}

	// Upvoting your own report conflicts.
	resp, body = doJSON(t, http.MethodPost, server.URL+"/api/reports/"+reportID+"/upvote", citizenToken, nil)
	if resp.StatusCode != http.StatusConflict || body["code"] != "OWN_REPORT" {
		t.Fatalf("own upvote = %d %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/reports/"+reportID+"/status-history", citizenToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("history = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/reports/missing-id", citizenToken, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing report = %d", resp.StatusCode)
	}
}

func TestResolveOverHTTP(t *testing.T) {
	_, server := newTestHTTP(t)

	citizenToken, _, _ := signUpHTTP(t, server, "ana@example.com", "citizen", "")
	staffToken, _, _ := signUpHTTP(t, server, "staff@city.gov", "staff", "Garbage")
	reportID := createReportHTTP(t, server, citizenToken, "Garbage", 12.9716, 77.5946)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("latitude", "12.9717")
	_ = form.WriteField("longitude", "77.5946")
	part, _ := form.CreateFormFile("evidence", "after.jpg")
	_, _ = part.Write(jpegBytes)
	_ = form.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/admin/reports/"+reportID+"/resolve", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+staffToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resolve = %d %v", resp.StatusCode, body)
	}
	if body["status"] != "resolved" || body["evidenceUrl"] == "" {
		t.Fatalf("resolve body = %v", body)
	}
	if body["distanceMeters"].(float64) > 30 {
		t.Fatalf("distance = %v", body["distanceMeters"])
	}
}

func TestResolveTooFarReportsDistanceDetails(t *testing.T) {
	_, server := newTestHTTP(t)

	citizenToken, _, _ := signUpHTTP(t, server, "ana@example.com", "citizen", "")
	staffToken, _, _ := signUpHTTP(t, server, "staff@city.gov", "staff", "Garbage")
	reportID := createReportHTTP(t, server, citizenToken, "Garbage", 12.9716, 77.5946)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	_ = form.WriteField("latitude", "12.9721") // ~55m from the report
	_ = form.WriteField("longitude", "77.5946")
	part, _ := form.CreateFormFile("evidence", "after.jpg")
	_, _ = part.Write(jpegBytes)
	_ = form.Close()

	req, _ := http.NewRequest(http.MethodPost, server.URL+"/api/admin/reports/"+reportID+"/resolve", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+staffToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest || body["code"] != "TOO_FAR" {
		t.Fatalf("resolve = %d %v", resp.StatusCode, body)
	}
	details, ok := body["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing from error body: %v", body)
	}
	if details["distance_meters"].(float64) <= 30 || details["max_meters"].(float64) != 30 {
		t.Fatalf("details = %v", details)
	}
}

func TestImageContentTypeSniffing(t *testing.T) {
	cases := []struct {
		name     string
		declared string
		data     []byte
		want     string
	}{
		{"explicit type wins", "image/png", []byte("anything"), "image/png"},
		{"octet-stream sniffed", "application/octet-stream", jpegBytes, "image/jpeg"},
		{"empty sniffed", "", jpegBytes, "image/jpeg"},
		{"non-image stays non-image", "application/octet-stream", []byte("plain text"), "text/plain; charset=utf-8"},
	}
	for _, tc := range cases {
		if got := imageContentType(tc.declared, tc.data); got != tc.want {
			t.Errorf("%s: imageContentType = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestAdminDepartmentRoutesRequireRole(t *testing.T) {
	_, server := newTestHTTP(t)

	citizenToken, _, _ := signUpHTTP(t, server, "ana@example.com", "citizen", "")
	staffToken, _, _ := signUpHTTP(t, server, "staff@city.gov", "staff", "Roads")
	adminToken, _, _ := signUpHTTP(t, server, "root@city.gov", "admin", "General")

	resp, _ := doJSON(t, http.MethodPost, server.URL+"/api/admin/departments/initialize", staffToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("staff initialize = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, server.URL+"/api/admin/departments/initialize", adminToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin initialize = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/admin/departments", citizenToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("citizen departments = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, server.URL+"/api/admin/departments", staffToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("staff departments = %d %v", resp.StatusCode, body)
	}
}
