package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/models"
)

type ledgerRangeReader interface {
	Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error)
}

// AggregatorService computes absence counts across date ranges. Only the
// absent status counts; late and excused record a caveat, not a missed
// session.
type AggregatorService struct {
	ledger ledgerRangeReader
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewAggregatorService constructs the aggregator. nowFn defaults to
// time.Now and is evaluated once per aggregation call.
func NewAggregatorService(ledger ledgerRangeReader, logger *zap.Logger, nowFn func() time.Time) *AggregatorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &AggregatorService{ledger: ledger, logger: logger, nowFn: nowFn}
}

// AbsenceCounts tallies absences per roster member over the given sheets.
// Every roster member starts at zero; students on a sheet but not on the
// roster are ignored. Results are sorted by count descending with roster
// order as the stable tie-break.
func AbsenceCounts(sheets []models.DatedSheet, roster []string) []models.AbsenceCount {
	counts := make(map[string]int, len(roster))
	order := make(map[string]int, len(roster))
	for i, student := range roster {
		counts[student] = 0
		order[student] = i
	}
	for _, ds := range sheets {
		for student, rec := range ds.Sheet {
			if _, ok := counts[student]; !ok {
				continue
			}
			if rec.Status == models.StatusAbsent {
				counts[student]++
			}
		}
	}
	out := make([]models.AbsenceCount, 0, len(roster))
	for _, student := range roster {
		out = append(out, models.AbsenceCount{Student: student, Count: counts[student]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return order[out[i].Student] < order[out[j].Student]
	})
	return out
}

// Lifetime counts absences over every sheet in the ledger.
func (s *AggregatorService) Lifetime(ctx context.Context, roster []string) ([]models.AbsenceCount, error) {
	sheets, err := s.ledger.Range(ctx, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	return AbsenceCounts(sheets, roster), nil
}

// CurrentMonth counts absences from the first day of the current month
// through today, inclusive. "Now" is read once so the boundary cannot
// drift mid-scan.
func (s *AggregatorService) CurrentMonth(ctx context.Context, roster []string) ([]models.AbsenceCount, error) {
	now := s.nowFn()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	sheets, err := s.ledger.Range(ctx, first, models.Day(now))
	if err != nil {
		return nil, err
	}
	return AbsenceCounts(sheets, roster), nil
}
