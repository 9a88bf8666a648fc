package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/research-portal-api/internal/models"
	"github.com/noah-isme/research-portal-api/pkg/export"
	appErrors "github.com/noah-isme/research-portal-api/pkg/errors"
)

// Export formats accepted by the roster export.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportedFile is a rendered document ready to be streamed.
type ExportedFile struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders identity rosters. Secrets are never part of the output.
type ExportService struct {
	csv csvRenderer
	pdf pdfRenderer
	now func() time.Time
}

// NewExportService constructs an ExportService; nil renderers use the defaults.
func NewExportService(csv csvRenderer, pdf pdfRenderer) *ExportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{csv: csv, pdf: pdf, now: time.Now}
}

// Roster renders the identities in the requested format.
func (s *ExportService) Roster(users []models.User, format string) (*ExportedFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	dataset := rosterDataset(users)
	stamp := s.now().UTC().Format("20060102-150405")

	var (
		payload     []byte
		contentType string
		err         error
	)
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
		contentType = "text/csv; charset=utf-8"
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Registered users")
		contentType = "application/pdf"
	default:
		return nil, appErrors.Field("format", "must be one of [csv pdf]")
	}
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render roster")
	}
	return &ExportedFile{
		Filename:    fmt.Sprintf("users-%s.%s", stamp, format),
		ContentType: contentType,
		Content:     payload,
	}, nil
}

func rosterDataset(users []models.User) export.Dataset {
	rows := make([]map[string]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, map[string]string{
			"Name":       u.Name,
			"Legal ID":   u.LegalID,
			"Email":      u.Email,
			"Role":       string(u.Role),
			"Registered": u.CreatedAt.UTC().Format("2006-01-02"),
		})
	}
	return export.Dataset{Headers: []string{"Name", "Legal ID", "Email", "Role", "Registered"}, Rows: rows}
}
