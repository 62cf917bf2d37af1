package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/models"
	appErrors "github.com/noah-isme/davomat-bot/pkg/errors"
)

type fakeLedgerStore struct {
	mu     sync.Mutex
	sheets map[models.SheetKey]models.Sheet
	fail   error
}

func newFakeLedgerStore() *fakeLedgerStore {
	return &fakeLedgerStore{sheets: make(map[models.SheetKey]models.Sheet)}
}

func (f *fakeLedgerStore) Load(ctx context.Context, key models.SheetKey) (models.Sheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	sheet, ok := f.sheets[key]
	if !ok {
		return models.Sheet{}, nil
	}
	return sheet.Clone(), nil
}

func (f *fakeLedgerStore) Save(ctx context.Context, key models.SheetKey, sheet models.Sheet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sheets[key] = sheet.Clone()
	return nil
}

func (f *fakeLedgerStore) UpsertRecord(ctx context.Context, key models.SheetKey, student string, rec models.AttendanceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	sheet, ok := f.sheets[key]
	if !ok {
		sheet = models.Sheet{}
		f.sheets[key] = sheet
	}
	sheet[student] = rec
	return nil
}

func (f *fakeLedgerStore) Keys(ctx context.Context) ([]models.SheetKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	keys := make([]models.SheetKey, 0, len(f.sheets))
	for key := range f.sheets {
		keys = append(keys, key)
	}
	return keys, nil
}

func (f *fakeLedgerStore) Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	var out []models.DatedSheet
	for key, sheet := range f.sheets {
		if !from.IsZero() && key.Date.Before(models.Day(from)) {
			continue
		}
		if !to.IsZero() && key.Date.After(models.Day(to)) {
			continue
		}
		out = append(out, models.DatedSheet{Key: key, Sheet: sheet.Clone()})
	}
	return out, nil
}

var testDay = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func TestOpenSeedsRosterOnce(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()
	roster := []string{"A", "B", "C"}

	sheet, err := svc.Open(ctx, testDay, "Math", roster)
	require.NoError(t, err)
	require.Len(t, sheet, 3)
	for _, student := range roster {
		assert.Equal(t, models.AttendanceRecord{Status: models.StatusAbsent}, sheet[student])
	}

	_, err = svc.Toggle(ctx, testDay, "Math", "B")
	require.NoError(t, err)

	sheet, err = svc.Open(ctx, testDay, "Math", roster)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, sheet["B"].Status, "reopening must not reset marked entries")
	assert.Equal(t, models.StatusAbsent, sheet["A"].Status)
}

func TestTogglePairReturnsToOriginal(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()

	_, err := svc.Open(ctx, testDay, "Math", []string{"A"})
	require.NoError(t, err)

	first, err := svc.Toggle(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, first["A"].Status)

	second, err := svc.Toggle(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAbsent, second["A"].Status)
}

func TestToggleLandsOnPresentFromLateAndExcused(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()

	_, err := svc.MarkLate(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	sheet, err := svc.Toggle(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPresent, sheet["A"].Status)

	_, err = svc.SetReason(ctx, testDay, "Math", "A", "sick")
	require.NoError(t, err)
	sheet, err = svc.Toggle(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceRecord{Status: models.StatusPresent}, sheet["A"], "toggle clears the reason")
}

func TestReasonLifecycle(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()

	sheet, err := svc.SetReason(ctx, testDay, "Math", "A", "sick")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceRecord{Status: models.StatusExcused, Reason: "sick"}, sheet["A"])

	sheet, err = svc.ClearReason(ctx, testDay, "Math", "A")
	require.NoError(t, err)
	assert.Equal(t, models.AttendanceRecord{Status: models.StatusAbsent}, sheet["A"])
}

func TestSetReasonRejectsEmptyText(t *testing.T) {
	svc := NewLedgerService(newFakeLedgerStore(), 0, nil)
	_, err := svc.SetReason(context.Background(), testDay, "Math", "A", "   ")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestSnapshotMissingSheetIsEmpty(t *testing.T) {
	svc := NewLedgerService(newFakeLedgerStore(), 0, nil)
	sheet, err := svc.Snapshot(context.Background(), testDay, "Physics")
	require.NoError(t, err)
	assert.Empty(t, sheet)
}

func TestStorageFailureSurfacesAsUnavailable(t *testing.T) {
	store := newFakeLedgerStore()
	store.fail = errors.New("disk gone")
	svc := NewLedgerService(store, 0, nil)

	_, err := svc.Toggle(context.Background(), testDay, "Math", "A")
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStorageUnavailable)
}

func TestConcurrentMutationsSameKeyBothLand(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()

	roster := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		roster = append(roster, string(rune('A'+i)))
	}
	_, err := svc.Open(ctx, testDay, "Math", roster)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, student := range roster {
		wg.Add(1)
		go func(st string) {
			defer wg.Done()
			_, err := svc.Toggle(ctx, testDay, "Math", st)
			assert.NoError(t, err)
		}(student)
	}
	wg.Wait()

	sheet, err := svc.Snapshot(ctx, testDay, "Math")
	require.NoError(t, err)
	for _, student := range roster {
		assert.Equal(t, models.StatusPresent, sheet[student].Status, "update for %s must not be lost", student)
	}
}

func TestConcurrentMutationsDifferentKeysIndependent(t *testing.T) {
	store := newFakeLedgerStore()
	svc := NewLedgerService(store, 0, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := svc.Toggle(ctx, testDay, "Math", "A")
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := svc.Toggle(ctx, testDay, "Physics", "A")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	math, err := svc.Snapshot(ctx, testDay, "Math")
	require.NoError(t, err)
	physics, err := svc.Snapshot(ctx, testDay, "Physics")
	require.NoError(t, err)
	// 50 toggles each: even count lands back on absent
	assert.Equal(t, models.StatusAbsent, math["A"].Status)
	assert.Equal(t, models.StatusAbsent, physics["A"].Status)
}
