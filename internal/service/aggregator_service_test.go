package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/models"
)

type fakeRangeReader struct {
	sheets   []models.DatedSheet
	lastFrom time.Time
	lastTo   time.Time
	err      error
}

func (f *fakeRangeReader) Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error) {
	f.lastFrom, f.lastTo = from, to
	return f.sheets, f.err
}

func sheetOn(y int, m time.Month, d int, subject string, sheet models.Sheet) models.DatedSheet {
	return models.DatedSheet{
		Key:   models.SheetKey{Date: day(y, m, d), Subject: subject},
		Sheet: sheet,
	}
}

func TestAbsenceCountsOnlyAbsentCounts(t *testing.T) {
	sheets := []models.DatedSheet{
		sheetOn(2024, 5, 3, "Math", models.Sheet{
			"A": {Status: models.StatusAbsent},
			"B": {Status: models.StatusLate},
			"C": {Status: models.StatusExcused, Reason: "sick"},
			"D": {Status: models.StatusPresent},
		}),
		sheetOn(2024, 5, 4, "Math", models.Sheet{
			"A": {Status: models.StatusAbsent},
		}),
	}
	counts := AbsenceCounts(sheets, []string{"A", "B", "C", "D"})
	require.Len(t, counts, 4)
	assert.Equal(t, models.AbsenceCount{Student: "A", Count: 2}, counts[0])
	for _, c := range counts[1:] {
		assert.Zero(t, c.Count, "late, excused and present must not count for %s", c.Student)
	}
}

func TestAbsenceCountsZeroInitAndIgnoresStrangers(t *testing.T) {
	sheets := []models.DatedSheet{
		sheetOn(2024, 5, 3, "Math", models.Sheet{
			"Ghost": {Status: models.StatusAbsent},
		}),
	}
	counts := AbsenceCounts(sheets, []string{"A", "B"})
	require.Len(t, counts, 2)
	for _, c := range counts {
		assert.Zero(t, c.Count)
		assert.NotEqual(t, "Ghost", c.Student)
	}
}

func TestAbsenceCountsSortedWithRosterTieBreak(t *testing.T) {
	sheets := []models.DatedSheet{
		sheetOn(2024, 5, 3, "Math", models.Sheet{
			"B": {Status: models.StatusAbsent},
			"C": {Status: models.StatusAbsent},
		}),
		sheetOn(2024, 5, 4, "Math", models.Sheet{
			"C": {Status: models.StatusAbsent},
		}),
	}
	counts := AbsenceCounts(sheets, []string{"A", "B", "C", "D"})
	require.Len(t, counts, 4)
	assert.Equal(t, "C", counts[0].Student)
	assert.Equal(t, "B", counts[1].Student)
	// ties resolved by roster order
	assert.Equal(t, "A", counts[2].Student)
	assert.Equal(t, "D", counts[3].Student)
}

func TestLifetimeUsesOpenBounds(t *testing.T) {
	reader := &fakeRangeReader{}
	svc := NewAggregatorService(reader, nil, nil)

	_, err := svc.Lifetime(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.True(t, reader.lastFrom.IsZero())
	assert.True(t, reader.lastTo.IsZero())
}

func TestCurrentMonthWindow(t *testing.T) {
	reader := &fakeRangeReader{}
	now := time.Date(2024, 5, 17, 14, 30, 0, 0, time.UTC)
	svc := NewAggregatorService(reader, nil, func() time.Time { return now })

	_, err := svc.CurrentMonth(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, day(2024, 5, 1), reader.lastFrom)
	assert.Equal(t, day(2024, 5, 17), reader.lastTo)
}

func TestAggregatorPropagatesRangeError(t *testing.T) {
	reader := &fakeRangeReader{err: context.DeadlineExceeded}
	svc := NewAggregatorService(reader, nil, nil)
	_, err := svc.Lifetime(context.Background(), []string{"A"})
	require.Error(t, err)
}
