package export

import (
	"context"
	"fmt"
	"time"
)

// DataStore defines the interface for data access
type DataStore interface {
	GetReportForExport(ctx context.Context, id string) (ReportInfo, error)
	ListHistoryForExport(ctx context.Context, reportID string) ([]HistoryInfo, error)
	ListCommentsForExport(ctx context.Context, reportID string) ([]CommentInfo, error)
}

// Service renders report exports
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	report, err := s.store.GetReportForExport(ctx, req.ReportID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReportUnavailable, err)
	}

	data := TemplateData{
		Report:      report,
		GeneratedAt: time.Now(),
	}

	if req.IncludeHistory {
		history, err := s.store.ListHistoryForExport(ctx, req.ReportID)
		if err != nil {
			return nil, fmt.Errorf("list history: %w", err)
		}
		data.History = history
	}

	if req.IncludeComments {
		comments, err := s.store.ListCommentsForExport(ctx, req.ReportID)
		if err != nil {
			return nil, fmt.Errorf("list comments: %w", err)
		}
		data.Comments = comments
	}

	html, err := RenderReportHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	switch req.Format {
	case FormatDOCX:
		return renderDOCX(html, report.Title)
	case FormatPDF, "":
		return renderPDF(html, report.Title)
	default:
		return nil, fmt.Errorf("unsupported export format %q", req.Format)
	}
}
