// Package export renders civic report summaries as PDF and DOCX documents.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation
type Request struct {
	ReportID        string
	Format          Format
	IncludeComments bool
	IncludeHistory  bool
}

// ReportInfo holds the report fields the renderer needs.
type ReportInfo struct {
	ID              string
	Title           string
	Description     string
	Category        string
	Department      string
	Status          string
	ReporterName    string
	Address         string
	Latitude        float64
	Longitude       float64
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
	ResolutionNotes string
	EvidenceURL     string
}

// HistoryInfo holds one status transition for export.
type HistoryInfo struct {
	FromStatus string
	ToStatus   string
	ChangedBy  string
	Notes      string
	ChangedAt  time.Time
}

// CommentInfo holds one comment for export.
type CommentInfo struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrReportUnavailable indicates the report could not be loaded for export.
	ErrReportUnavailable = errors.New("export report unavailable")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
