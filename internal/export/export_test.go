package export

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestStatusLabel(t *testing.T) {
	cases := map[string]string{
		"reported":     "Reported",
		"acknowledged": "Acknowledged",
		"in_progress":  "In Progress",
		"resolved":     "Resolved",
		"":             "",
	}
	for in, want := range cases {
		if got := StatusLabel(in); got != want {
			t.Errorf("StatusLabel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"Pothole on Main St":  "Pothole-on-Main-St",
		"weird/<>chars":       "weirdchars",
		"":                    "report",
		strings.Repeat("a", 80): strings.Repeat("a", 50),
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("got %q", got)
	}
	// multibyte runes encode byte by byte
	if enc := percentEncodeForDataURL("é"); enc != "%C3%A9" {
		t.Errorf("got %q", enc)
	}
}

func TestRenderReportHTML(t *testing.T) {
	resolvedAt := time.Date(2026, 3, 14, 15, 30, 0, 0, time.UTC)
	data := TemplateData{
		Report: ReportInfo{
			ID:              "rpt_abc",
			Title:           "Streetlight out",
			Description:     "Dark corner at 5th and Oak",
			Category:        "electricity",
			Department:      "Electricity",
			Status:          "resolved",
			ReporterName:    "Dana Smith",
			Latitude:        12.9716,
			Longitude:       77.5946,
			CreatedAt:       time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			ResolvedAt:      &resolvedAt,
			ResolvedBy:      "Crew Lead",
			ResolutionNotes: "Bulb replaced",
		},
		History: []HistoryInfo{
			{FromStatus: "reported", ToStatus: "acknowledged", ChangedBy: "Dispatcher", ChangedAt: time.Now()},
		},
		Comments: []CommentInfo{
			{Author: "Neighbor", Body: "Thanks for fixing this", CreatedAt: time.Now()},
		},
		GeneratedAt: time.Now(),
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	for _, want := range []string{
		"Streetlight out",
		"Dark corner at 5th and Oak",
		"Resolved",
		"Bulb replaced",
		"Reported &rarr; Acknowledged",
		"Thanks for fixing this",
		"rpt_abc",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered HTML missing %q", want)
		}
	}
}

func TestRenderReportHTMLEscapesInput(t *testing.T) {
	data := TemplateData{
		Report: ReportInfo{
			Title:       "<script>alert(1)</script>",
			Description: "desc",
			Status:      "reported",
		},
		GeneratedAt: time.Now(),
	}
	html, err := RenderReportHTML(data)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>alert(1)</script>") {
		t.Error("template did not escape script tag")
	}
}

type fakeExportStore struct {
	report ReportInfo
	err    error
}

func (f *fakeExportStore) GetReportForExport(ctx context.Context, id string) (ReportInfo, error) {
	return f.report, f.err
}

func (f *fakeExportStore) ListHistoryForExport(ctx context.Context, reportID string) ([]HistoryInfo, error) {
	return nil, nil
}

func (f *fakeExportStore) ListCommentsForExport(ctx context.Context, reportID string) ([]CommentInfo, error) {
	return nil, nil
}

func TestExportReportUnavailable(t *testing.T) {
	svc := NewService(&fakeExportStore{err: errors.New("no rows")})
	_, err := svc.Export(context.Background(), Request{ReportID: "rpt_missing"})
	if !errors.Is(err, ErrReportUnavailable) {
		t.Errorf("want ErrReportUnavailable, got %v", err)
	}
}

func TestExportUnsupportedFormat(t *testing.T) {
	svc := NewService(&fakeExportStore{report: ReportInfo{ID: "rpt_1", Title: "t"}})
	_, err := svc.Export(context.Background(), Request{ReportID: "rpt_1", Format: "odt"})
	if err == nil || !strings.Contains(err.Error(), "unsupported export format") {
		t.Errorf("want unsupported format error, got %v", err)
	}
}
