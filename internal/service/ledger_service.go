package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/davomat-bot/internal/models"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
)

type ledgerStore interface {
	Load(ctx context.Context, key models.SheetKey) (models.Sheet, error)
	Save(ctx context.Context, key models.SheetKey, sheet models.Sheet) error
	UpsertRecord(ctx context.Context, key models.SheetKey, student string, rec models.AttendanceRecord) error
	Keys(ctx context.Context) ([]models.SheetKey, error)
	Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error)
}

// LedgerService owns all attendance sheets. Every mutation is a
// read-modify-write cycle serialized by a per-key mutex, so two
// near-simultaneous updates to different students in the same sheet both
// land. Operations on different keys proceed in parallel.
type LedgerService struct {
	store   ledgerStore
	timeout time.Duration
	logger  *zap.Logger

	mu    sync.Mutex
	locks map[models.SheetKey]*sync.Mutex
}

// NewLedgerService constructs the ledger over a store backend.
func NewLedgerService(store ledgerStore, timeout time.Duration, logger *zap.Logger) *LedgerService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerService{
		store:   store,
		timeout: timeout,
		logger:  logger,
		locks:   make(map[models.SheetKey]*sync.Mutex),
	}
}

func (s *LedgerService) lockFor(key models.SheetKey) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *LedgerService) storageErr(err error, key models.SheetKey, op string) error {
	s.logger.Error("ledger storage failure",
		zap.String("op", op),
		zap.String("date", key.DateString()),
		zap.String("subject", key.Subject),
		zap.Error(err),
	)
	return appErrors.Wrap(err, appErrors.ErrStorageUnavailable.Code, appErrors.ErrStorageUnavailable.Status, appErrors.ErrStorageUnavailable.Message)
}

// Open loads the sheet for (date, subject), seeding any roster member not
// yet on it with {absent, ""}. The seeded sheet is persisted before
// returning. Idempotent: members already marked keep their state.
func (s *LedgerService) Open(ctx context.Context, date time.Time, subject string, roster []string) (models.Sheet, error) {
	key := models.NewSheetKey(date, subject)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sheet, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, s.storageErr(err, key, "open")
	}
	seeded := false
	for _, student := range roster {
		if _, ok := sheet[student]; !ok {
			sheet[student] = models.AttendanceRecord{Status: models.StatusAbsent}
			seeded = true
		}
	}
	if seeded {
		if err := s.store.Save(ctx, key, sheet); err != nil {
			return nil, s.storageErr(err, key, "open")
		}
	}
	return sheet.Clone(), nil
}

// Toggle flips present and absent for one student. Late and excused also
// land on present: toggle is a two-state flip gate layered under the
// richer status set.
func (s *LedgerService) Toggle(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error) {
	return s.mutate(ctx, date, subject, student, "toggle", func(rec models.AttendanceRecord) models.AttendanceRecord {
		if rec.Status == models.StatusPresent {
			return models.AttendanceRecord{Status: models.StatusAbsent}
		}
		return models.AttendanceRecord{Status: models.StatusPresent}
	})
}

// MarkLate sets the student's status to late and clears any reason.
func (s *LedgerService) MarkLate(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error) {
	return s.mutate(ctx, date, subject, student, "mark_late", func(models.AttendanceRecord) models.AttendanceRecord {
		return models.AttendanceRecord{Status: models.StatusLate}
	})
}

// SetReason marks the student excused with the given non-empty text.
func (s *LedgerService) SetReason(ctx context.Context, date time.Time, subject, student, reason string) (models.Sheet, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "reason text must not be empty")
	}
	return s.mutate(ctx, date, subject, student, "set_reason", func(models.AttendanceRecord) models.AttendanceRecord {
		return models.AttendanceRecord{Status: models.StatusExcused, Reason: reason}
	})
}

// ClearReason drops the excuse, returning the student to absent. The
// record is overwritten, never removed.
func (s *LedgerService) ClearReason(ctx context.Context, date time.Time, subject, student string) (models.Sheet, error) {
	return s.mutate(ctx, date, subject, student, "clear_reason", func(models.AttendanceRecord) models.AttendanceRecord {
		return models.AttendanceRecord{Status: models.StatusAbsent}
	})
}

func (s *LedgerService) mutate(ctx context.Context, date time.Time, subject, student, op string, fn func(models.AttendanceRecord) models.AttendanceRecord) (models.Sheet, error) {
	key := models.NewSheetKey(date, subject)
	lock := s.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sheet, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, s.storageErr(err, key, op)
	}
	current, ok := sheet[student]
	if !ok {
		// first observation of this student for the key
		current = models.AttendanceRecord{Status: models.StatusAbsent}
	}
	next := fn(current)
	if err := s.store.UpsertRecord(ctx, key, student, next); err != nil {
		return nil, s.storageErr(err, key, op)
	}
	sheet[student] = next
	return sheet.Clone(), nil
}

// Snapshot is a read-only fetch. A missing sheet yields an empty map, not
// an error.
func (s *LedgerService) Snapshot(ctx context.Context, date time.Time, subject string) (models.Sheet, error) {
	key := models.NewSheetKey(date, subject)
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sheet, err := s.store.Load(ctx, key)
	if err != nil {
		return nil, s.storageErr(err, key, "snapshot")
	}
	return sheet, nil
}

// Keys returns the full inventory of (date, subject) pairs.
func (s *LedgerService) Keys(ctx context.Context) ([]models.SheetKey, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	keys, err := s.store.Keys(ctx)
	if err != nil {
		return nil, s.storageErr(err, models.SheetKey{}, "keys")
	}
	return keys, nil
}

// Range loads every sheet dated within [from, to] inclusive; zero bounds
// are open-ended.
func (s *LedgerService) Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sheets, err := s.store.Range(ctx, from, to)
	if err != nil {
		return nil, s.storageErr(err, models.SheetKey{}, "range")
	}
	return sheets, nil
}
