package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/internal/models"
	"github.com/noah-isme/davomat-bot/pkg/export"
)

type adminDirectory interface {
	Directory() (models.Directory, error)
}

type absenceAggregator interface {
	Lifetime(ctx context.Context, roster []string) ([]models.AbsenceCount, error)
	CurrentMonth(ctx context.Context, roster []string) ([]models.AbsenceCount, error)
}

type rosterReader interface {
	Students() ([]string, error)
}

// ReportService builds the end-of-marking report, fans it out to the
// admins, and renders absence summaries as CSV or PDF artifacts.
type ReportService struct {
	directory adminDirectory
	roster    rosterReader
	agg       absenceAggregator
	sender    Sender
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	metrics   *MetricsService
	logger    *zap.Logger

	storageDir string
}

// NewReportService constructs the service. storageDir may be empty to skip
// keeping export artifacts on disk.
func NewReportService(directory adminDirectory, roster rosterReader, agg absenceAggregator, sender Sender, metrics *MetricsService, logger *zap.Logger, storageDir string) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		directory:  directory,
		roster:     roster,
		agg:        agg,
		sender:     sender,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		metrics:    metrics,
		logger:     logger,
		storageDir: storageDir,
	}
}

// DoneReport renders the finished sheet grouped by status, in the layout
// the admins receive.
func (s *ReportService) DoneReport(subject string, date time.Time, sheet models.Sheet, roster []string) string {
	var present, absent, late, excused []string
	for _, student := range roster {
		rec, ok := sheet[student]
		if !ok {
			continue
		}
		switch rec.Status {
		case models.StatusPresent:
			present = append(present, student)
		case models.StatusLate:
			late = append(late, student)
		case models.StatusExcused:
			excused = append(excused, fmt.Sprintf("%s — %s", student, rec.Reason))
		default:
			absent = append(absent, student)
		}
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📘 Davomat yakunlandi\n📚 Fan: %s\n📅 Sana: %s\n\n", subject, date.Format("02.01.2006"))
	writeGroup(&sb, fmt.Sprintf("✅ Darsda bo'lganlar (%d):", len(present)), present)
	writeGroup(&sb, fmt.Sprintf("❌ Darsda bo'lmaganlar (%d):", len(absent)), absent)
	writeGroup(&sb, fmt.Sprintf("📝 Sabablilar (%d):", len(excused)), excused)
	writeGroup(&sb, fmt.Sprintf("⏰ Kech qolganlar (%d):", len(late)), late)
	return strings.TrimRight(sb.String(), "\n")
}

func writeGroup(sb *strings.Builder, header string, names []string) {
	sb.WriteString(header)
	sb.WriteByte('\n')
	if len(names) == 0 {
		sb.WriteString("—\n\n")
		return
	}
	sb.WriteString(strings.Join(names, "\n"))
	sb.WriteString("\n\n")
}

// Broadcast delivers the report to every admin. A failure for one
// recipient is logged and counted but never aborts the rest.
func (s *ReportService) Broadcast(ctx context.Context, text string) {
	dir, err := s.directory.Directory()
	if err != nil {
		s.logger.Error("admin directory load failed", zap.Error(err))
		return
	}
	for _, admin := range dir.Admins {
		if _, err := s.sender.Send(ctx, admin.ID, dto.View{Text: text}); err != nil {
			s.logger.Error("report delivery failed",
				zap.Int64("admin_id", admin.ID),
				zap.String("admin_name", admin.Name),
				zap.Error(err),
			)
			if s.metrics != nil {
				s.metrics.ObserveBroadcast("error")
			}
			continue
		}
		if s.metrics != nil {
			s.metrics.ObserveBroadcast("ok")
		}
		s.logger.Info("report delivered",
			zap.Int64("admin_id", admin.ID),
			zap.String("admin_name", admin.Name),
		)
	}
}

// SummaryScope selects the aggregation window for exports.
type SummaryScope string

const (
	ScopeLifetime SummaryScope = "lifetime"
	ScopeMonth    SummaryScope = "month"
)

func (s *ReportService) summaryDataset(ctx context.Context, scope SummaryScope) (export.Dataset, error) {
	roster, err := s.roster.Students()
	if err != nil {
		return export.Dataset{}, err
	}
	var counts []models.AbsenceCount
	switch scope {
	case ScopeMonth:
		counts, err = s.agg.CurrentMonth(ctx, roster)
	default:
		counts, err = s.agg.Lifetime(ctx, roster)
	}
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{Headers: []string{"Student", "Absences"}}
	for _, c := range counts {
		data.Rows = append(data.Rows, map[string]string{
			"Student":  c.Student,
			"Absences": fmt.Sprintf("%d", c.Count),
		})
	}
	return data, nil
}

// SummaryCSV renders the absence summary for the scope as CSV bytes.
func (s *ReportService) SummaryCSV(ctx context.Context, scope SummaryScope) ([]byte, error) {
	data, err := s.summaryDataset(ctx, scope)
	if err != nil {
		return nil, err
	}
	raw, err := s.csv.Render(data)
	if err != nil {
		return nil, err
	}
	s.keepArtifact(scope, "csv", raw)
	return raw, nil
}

// SummaryPDF renders the absence summary for the scope as PDF bytes.
func (s *ReportService) SummaryPDF(ctx context.Context, scope SummaryScope) ([]byte, error) {
	data, err := s.summaryDataset(ctx, scope)
	if err != nil {
		return nil, err
	}
	title := fmt.Sprintf("Absence summary (%s)", scope)
	raw, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, err
	}
	s.keepArtifact(scope, "pdf", raw)
	return raw, nil
}

// keepArtifact archives a copy of the export for operational audit.
func (s *ReportService) keepArtifact(scope SummaryScope, ext string, raw []byte) {
	if s.storageDir == "" {
		return
	}
	if err := os.MkdirAll(s.storageDir, 0o755); err != nil {
		s.logger.Warn("export directory unavailable", zap.Error(err))
		return
	}
	name := fmt.Sprintf("summary_%s_%s.%s", scope, uuid.NewString(), ext)
	path := filepath.Join(s.storageDir, name)
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		s.logger.Warn("export archive failed", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Info("export archived", zap.String("path", path))
}
