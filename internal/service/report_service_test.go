package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/dto"
	"github.com/noah-isme/davomat-bot/internal/models"
)

type fakeAdminDirectory struct {
	dir models.Directory
	err error
}

func (f *fakeAdminDirectory) Directory() (models.Directory, error) {
	return f.dir, f.err
}

type fakeAggregator struct {
	lifetime []models.AbsenceCount
	month    []models.AbsenceCount
	err      error
}

func (f *fakeAggregator) Lifetime(ctx context.Context, roster []string) ([]models.AbsenceCount, error) {
	return f.lifetime, f.err
}

func (f *fakeAggregator) CurrentMonth(ctx context.Context, roster []string) ([]models.AbsenceCount, error) {
	return f.month, f.err
}

type flakySender struct {
	fakeSender
	failFor map[int64]error
}

func (f *flakySender) Send(ctx context.Context, chatID int64, view dto.View) (int64, error) {
	if err, ok := f.failFor[chatID]; ok {
		return 0, err
	}
	return f.fakeSender.Send(ctx, chatID, view)
}

func TestDoneReportGroupsByStatus(t *testing.T) {
	svc := NewReportService(nil, nil, nil, nil, nil, nil, "")
	date := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	sheet := models.Sheet{
		"Ali":     {Status: models.StatusPresent},
		"Bobur":   {Status: models.StatusAbsent},
		"Charos":  {Status: models.StatusExcused, Reason: "shifokorda"},
		"Dilnoza": {Status: models.StatusLate},
	}
	roster := []string{"Ali", "Bobur", "Charos", "Dilnoza"}

	report := svc.DoneReport("Math", date, sheet, roster)

	assert.Contains(t, report, "📘 Davomat yakunlandi")
	assert.Contains(t, report, "📚 Fan: Math")
	assert.Contains(t, report, "📅 Sana: 17.05.2024")
	assert.Contains(t, report, "✅ Darsda bo'lganlar (1):\nAli")
	assert.Contains(t, report, "❌ Darsda bo'lmaganlar (1):\nBobur")
	assert.Contains(t, report, "📝 Sabablilar (1):\nCharos — shifokorda")
	assert.Contains(t, report, "⏰ Kech qolganlar (1):\nDilnoza")
}

func TestDoneReportEmptyGroupsShowDash(t *testing.T) {
	svc := NewReportService(nil, nil, nil, nil, nil, nil, "")
	date := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	sheet := models.Sheet{"Ali": {Status: models.StatusPresent}}

	report := svc.DoneReport("Math", date, sheet, []string{"Ali"})
	assert.Contains(t, report, "❌ Darsda bo'lmaganlar (0):\n—")
	assert.Contains(t, report, "⏰ Kech qolganlar (0):\n—")
}

func TestDoneReportSkipsStudentsOffTheSheet(t *testing.T) {
	svc := NewReportService(nil, nil, nil, nil, nil, nil, "")
	date := time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC)
	sheet := models.Sheet{"Ali": {Status: models.StatusPresent}}

	report := svc.DoneReport("Math", date, sheet, []string{"Ali", "Ghost"})
	assert.NotContains(t, report, "Ghost")
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	sender := &flakySender{failFor: map[int64]error{2: errors.New("chat blocked")}}
	dir := &fakeAdminDirectory{dir: models.Directory{Admins: []models.Admin{
		{ID: 1, Name: "First"},
		{ID: 2, Name: "Second"},
		{ID: 3, Name: "Third"},
	}}}
	svc := NewReportService(dir, nil, nil, sender, nil, nil, "")

	svc.Broadcast(context.Background(), "report text")

	require.Len(t, sender.sent, 2)
	assert.Equal(t, int64(1), sender.sent[0].chatID)
	assert.Equal(t, int64(3), sender.sent[1].chatID)
	assert.Equal(t, "report text", sender.sent[0].view.Text)
}

func TestBroadcastDirectoryFailureIsSilent(t *testing.T) {
	sender := &flakySender{}
	dir := &fakeAdminDirectory{err: errors.New("file missing")}
	svc := NewReportService(dir, nil, nil, sender, nil, nil, "")

	svc.Broadcast(context.Background(), "report text")
	assert.Empty(t, sender.sent)
}

func TestSummaryCSVRendersCounts(t *testing.T) {
	roster := &fakeDirectory{roster: []string{"Ali", "Bobur"}}
	agg := &fakeAggregator{lifetime: []models.AbsenceCount{
		{Student: "Bobur", Count: 3},
		{Student: "Ali", Count: 1},
	}}
	svc := NewReportService(nil, roster, agg, nil, nil, nil, "")

	raw, err := svc.SummaryCSV(context.Background(), ScopeLifetime)
	require.NoError(t, err)

	out := string(raw)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Student,Absences", strings.TrimSpace(lines[0]))
	assert.Contains(t, lines[1], "Bobur")
	assert.Contains(t, lines[1], "3")
	assert.Contains(t, lines[2], "Ali")
}

func TestSummaryCSVArchivesArtifact(t *testing.T) {
	storage := t.TempDir()
	roster := &fakeDirectory{roster: []string{"Ali"}}
	agg := &fakeAggregator{month: []models.AbsenceCount{{Student: "Ali", Count: 2}}}
	svc := NewReportService(nil, roster, agg, nil, nil, nil, storage)

	_, err := svc.SummaryCSV(context.Background(), ScopeMonth)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(storage, "summary_month_*.csv"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)
}

func TestSummaryPDFProducesDocument(t *testing.T) {
	roster := &fakeDirectory{roster: []string{"Ali"}}
	agg := &fakeAggregator{lifetime: []models.AbsenceCount{{Student: "Ali", Count: 1}}}
	svc := NewReportService(nil, roster, agg, nil, nil, nil, "")

	raw, err := svc.SummaryPDF(context.Background(), ScopeLifetime)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "%PDF"), "output must be a PDF document")
}

func TestSummaryPropagatesAggregatorError(t *testing.T) {
	roster := &fakeDirectory{roster: []string{"Ali"}}
	agg := &fakeAggregator{err: fmt.Errorf("range scan failed")}
	svc := NewReportService(nil, roster, agg, nil, nil, nil, "")

	_, err := svc.SummaryCSV(context.Background(), ScopeLifetime)
	require.Error(t, err)
}
