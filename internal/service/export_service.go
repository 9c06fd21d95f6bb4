package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/labworks/labsched-api/internal/models"
	appErrors "github.com/labworks/labsched-api/pkg/errors"
	"github.com/labworks/labsched-api/pkg/export"
)

type daySessionLister interface {
	ListForDate(ctx context.Context, date time.Time) ([]models.Session, error)
}

// ExportResult bundles rendered bytes with response metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders the daily lab timetable as CSV or PDF.
type ExportService struct {
	sessions daySessionLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs the export service.
func NewExportService(sessions daySessionLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		sessions: sessions,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

// ExportDay renders the timetable for one calendar day in the requested format.
func (s *ExportService) ExportDay(ctx context.Context, date time.Time, format string) (*ExportResult, error) {
	sessions, err := s.sessions.ListForDate(ctx, date)
	if err != nil {
		return nil, err
	}
	dataset := timetableDataset(sessions)
	day := date.Format("2006-01-02")

	switch format {
	case "csv":
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("lab-timetable-%s.csv", day),
		}, nil
	case "pdf":
		content, err := s.pdf.Render(dataset, fmt.Sprintf("Lab timetable %s", day))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("lab-timetable-%s.pdf", day),
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q (field format)", format))
	}
}

func timetableDataset(sessions []models.Session) export.Dataset {
	headers := []string{"Time", "Duration", "Title", "Subject", "Class", "Location", "Teacher", "Status"}
	rows := make([]map[string]string, 0, len(sessions))
	for _, session := range sessions {
		rows = append(rows, map[string]string{
			"Time":     session.StartTime,
			"Duration": strconv.Itoa(session.DurationMinutes) + "m",
			"Title":    session.Title,
			"Subject":  session.Subject,
			"Class":    session.Grade + "-" + session.ClassSection,
			"Location": session.Location,
			"Teacher":  session.TeacherID,
			"Status":   string(session.Status),
		})
	}
	return export.Dataset{Headers: headers, Rows: rows}
}
