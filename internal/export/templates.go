package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"
	"time"
)

//go:embed templates/*.html
var templateFS embed.FS

var reportTemplate *template.Template

func init() {
	funcMap := template.FuncMap{
		"lower": strings.ToLower,
		"formatDate": func(v interface{}, layout string) string {
			switch t := v.(type) {
			case time.Time:
				return t.Format(layout)
			case *time.Time:
				if t != nil {
					return t.Format(layout)
				}
			}
			return ""
		},
		"statusLabel": StatusLabel,
	}

	templateContent, err := templateFS.ReadFile("templates/report.html")
	if err != nil {
		// Fallback to built-in template if file not found
		reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}

	reportTemplate = template.Must(template.New("report").Funcs(funcMap).Parse(string(templateContent)))
}

// StatusLabel converts a stored status value into display form,
// e.g. "in_progress" becomes "In Progress".
func StatusLabel(status string) string {
	parts := strings.Split(status, "_")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

// TemplateData holds data for report template rendering
type TemplateData struct {
	Report      ReportInfo
	History     []HistoryInfo
	Comments    []CommentInfo
	GeneratedAt time.Time
}

// RenderReportHTML renders the report template with provided data
func RenderReportHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Report.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; line-height: 1.6; max-width: 800px; margin: 2rem auto; }
    h1 { border-bottom: 2px solid #333; padding-bottom: 0.5rem; }
    .meta { color: #666; font-size: 0.9em; margin-bottom: 2rem; }
    .entry { background: #f5f5f5; padding: 1rem; margin: 1rem 0; border-left: 3px solid #333; }
  </style>
</head>
<body>
  <h1>{{.Report.Title}}</h1>
  <div class="meta">{{.Report.Category}} | {{statusLabel .Report.Status}} | Reported by {{.Report.ReporterName}} on {{formatDate .Report.CreatedAt "Jan 2, 2006"}}</div>
  <p>{{.Report.Description}}</p>
  {{if .Report.ResolvedAt}}
  <h2>Resolution</h2>
  <p>Resolved by {{.Report.ResolvedBy}} on {{formatDate .Report.ResolvedAt "Jan 2, 2006"}}.</p>
  {{if .Report.ResolutionNotes}}<p>{{.Report.ResolutionNotes}}</p>{{end}}
  {{end}}
  {{if .History}}
  <h2>Status History</h2>
  {{range .History}}<div class="entry">{{statusLabel .FromStatus}} &rarr; {{statusLabel .ToStatus}} by {{.ChangedBy}}</div>{{end}}
  {{end}}
  {{if .Comments}}
  <h2>Comments</h2>
  {{range .Comments}}<div class="entry"><strong>{{.Author}}</strong>: {{.Body}}</div>{{end}}
  {{end}}
</body>
</html>`
