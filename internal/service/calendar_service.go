package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/models"
)

type ledgerKeyIndex interface {
	Keys(ctx context.Context) ([]models.SheetKey, error)
}

// CalendarService derives the set of active dates from the ledger key
// inventory and renders navigable month grids. Grids are recomputed on
// every request so they are never stale after a mutation.
type CalendarService struct {
	ledger ledgerKeyIndex
	logger *zap.Logger
}

// NewCalendarService constructs the calendar over the ledger.
func NewCalendarService(ledger ledgerKeyIndex, logger *zap.Logger) *CalendarService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CalendarService{ledger: ledger, logger: logger}
}

// ActiveDates returns the distinct calendar days with at least one sheet,
// regardless of subject.
func (s *CalendarService) ActiveDates(ctx context.Context) (map[time.Time]bool, error) {
	keys, err := s.ledger.Keys(ctx)
	if err != nil {
		return nil, err
	}
	dates := make(map[time.Time]bool, len(keys))
	for _, key := range keys {
		dates[key.Date] = true
	}
	return dates, nil
}

// MonthGrid builds the Monday-first week matrix for a month. Cells outside
// the month are blank; days with at least one sheet are active, the rest
// inactive and therefore inert in the rendered keyboard.
func (s *CalendarService) MonthGrid(year int, month time.Month, active map[time.Time]bool) models.MonthGrid {
	ref := models.MonthRef{Year: year, Month: month}
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	// Monday = 0 ... Sunday = 6
	offset := (int(first.Weekday()) + 6) % 7

	grid := models.MonthGrid{Ref: ref, Prev: ref.Prev(), Next: ref.Next()}
	week := make([]models.DayCell, 0, 7)
	for i := 0; i < offset; i++ {
		week = append(week, models.DayCell{State: models.CellBlank})
	}
	for day := 1; day <= daysInMonth; day++ {
		state := models.CellInactive
		if active[time.Date(year, month, day, 0, 0, 0, 0, time.UTC)] {
			state = models.CellActive
		}
		week = append(week, models.DayCell{Day: day, State: state})
		if len(week) == 7 {
			grid.Weeks = append(grid.Weeks, week)
			week = make([]models.DayCell, 0, 7)
		}
	}
	if len(week) > 0 {
		for len(week) < 7 {
			week = append(week, models.DayCell{State: models.CellBlank})
		}
		grid.Weeks = append(grid.Weeks, week)
	}
	return grid
}

// Grid recomputes active dates and renders the grid in one call.
func (s *CalendarService) Grid(ctx context.Context, year int, month time.Month) (models.MonthGrid, error) {
	active, err := s.ActiveDates(ctx)
	if err != nil {
		return models.MonthGrid{}, err
	}
	return s.MonthGrid(year, month, active), nil
}
