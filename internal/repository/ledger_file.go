package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/davomat-bot/internal/models"
	"github.com/noah-isme/davomat-bot/internal/token"
)

const sheetFilePrefix = "attendance_"

// FileLedger persists one self-describing JSON file per (date, subject)
// under the data directory, named attendance_<date>_<subject-token>.json.
// The layout is deliberately human-inspectable for operational debugging.
type FileLedger struct {
	dir string
}

// NewFileLedger ensures the data directory exists and returns a handle.
func NewFileLedger(dir string) (*FileLedger, error) {
	if dir == "" {
		dir = "./data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &FileLedger{dir: dir}, nil
}

func (r *FileLedger) path(key models.SheetKey) string {
	name := fmt.Sprintf("%s%s_%s.json", sheetFilePrefix, key.DateString(), token.Encode(key.Subject))
	return filepath.Join(r.dir, name)
}

// Load returns the sheet for a key, empty when the file does not exist.
func (r *FileLedger) Load(ctx context.Context, key models.SheetKey) (models.Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(r.path(key))
	if os.IsNotExist(err) {
		return models.Sheet{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	var sheet models.Sheet
	if err := json.Unmarshal(raw, &sheet); err != nil {
		return nil, fmt.Errorf("decode sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	return sheet, nil
}

// Save overwrites the whole sheet for a key.
func (r *FileLedger) Save(ctx context.Context, key models.SheetKey, sheet models.Sheet) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(sheet, "", "  ")
	if err != nil {
		return fmt.Errorf("encode sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	path := r.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	return nil
}

// UpsertRecord rewrites the sheet with one student's record replaced. The
// ledger service holds the per-key lock across this read-modify-write.
func (r *FileLedger) UpsertRecord(ctx context.Context, key models.SheetKey, student string, rec models.AttendanceRecord) error {
	sheet, err := r.Load(ctx, key)
	if err != nil {
		return err
	}
	sheet[student] = rec
	return r.Save(ctx, key, sheet)
}

// Keys parses the data directory listing back into sheet keys. Files that
// do not match the naming scheme are skipped.
func (r *FileLedger) Keys(ctx context.Context) ([]models.SheetKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list data directory: %w", err)
	}
	var keys []models.SheetKey
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, sheetFilePrefix) || !strings.HasSuffix(name, ".json") {
			continue
		}
		body := strings.TrimSuffix(strings.TrimPrefix(name, sheetFilePrefix), ".json")
		parts := strings.SplitN(body, "_", 2)
		if len(parts) != 2 {
			continue
		}
		date, err := time.Parse("2006-01-02", parts[0])
		if err != nil {
			continue
		}
		keys = append(keys, models.NewSheetKey(date, token.Decode(parts[1])))
	}
	return keys, nil
}

// Range loads every sheet whose date falls within [from, to] inclusive.
// Zero bounds are unbounded on that side.
func (r *FileLedger) Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.DatedSheet
	for _, key := range keys {
		if !from.IsZero() && key.Date.Before(models.Day(from)) {
			continue
		}
		if !to.IsZero() && key.Date.After(models.Day(to)) {
			continue
		}
		sheet, err := r.Load(ctx, key)
		if err != nil {
			return nil, err
		}
		out = append(out, models.DatedSheet{Key: key, Sheet: sheet})
	}
	return out, nil
}
