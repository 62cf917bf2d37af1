package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/davomat-bot/internal/models"
)

// PostgresLedger stores one row per (date, subject, student) in the
// attendance_entries table. Single-row writes are atomic; whole-sheet
// writes run in a transaction. The ledger service serializes
// read-modify-write cycles per key on top of this.
type PostgresLedger struct {
	db *sqlx.DB
}

// NewPostgresLedger constructs the repository.
func NewPostgresLedger(db *sqlx.DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

type attendanceRow struct {
	Date    time.Time     `db:"date"`
	Subject string        `db:"subject"`
	Student string        `db:"student"`
	Status  models.Status `db:"status"`
	Reason  string        `db:"reason"`
}

// Load returns the sheet for a key, empty when no rows exist.
func (r *PostgresLedger) Load(ctx context.Context, key models.SheetKey) (models.Sheet, error) {
	query := `SELECT student, status, reason FROM attendance_entries WHERE date = $1 AND subject = $2`
	var rows []struct {
		Student string        `db:"student"`
		Status  models.Status `db:"status"`
		Reason  string        `db:"reason"`
	}
	if err := r.db.SelectContext(ctx, &rows, query, key.Date, key.Subject); err != nil {
		return nil, fmt.Errorf("load sheet %s/%s: %w", key.DateString(), key.Subject, err)
	}
	sheet := make(models.Sheet, len(rows))
	for _, row := range rows {
		sheet[row.Student] = models.AttendanceRecord{Status: row.Status, Reason: row.Reason}
	}
	return sheet, nil
}

// Save overwrites the whole sheet for a key inside one transaction.
func (r *PostgresLedger) Save(ctx context.Context, key models.SheetKey, sheet models.Sheet) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save sheet: %w", err)
	}
	query := `INSERT INTO attendance_entries (date, subject, student, status, reason, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (date, subject, student)
DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for student, rec := range sheet {
		if _, err := tx.ExecContext(ctx, query, key.Date, key.Subject, student, rec.Status, rec.Reason, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("save sheet %s/%s: %w", key.DateString(), key.Subject, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save sheet: %w", err)
	}
	return nil
}

// UpsertRecord writes a single student's record atomically.
func (r *PostgresLedger) UpsertRecord(ctx context.Context, key models.SheetKey, student string, rec models.AttendanceRecord) error {
	query := `INSERT INTO attendance_entries (date, subject, student, status, reason, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (date, subject, student)
DO UPDATE SET status = EXCLUDED.status, reason = EXCLUDED.reason, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key.Date, key.Subject, student, rec.Status, rec.Reason, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert record %s/%s/%s: %w", key.DateString(), key.Subject, student, err)
	}
	return nil
}

// Keys returns every (date, subject) pair present in the ledger.
func (r *PostgresLedger) Keys(ctx context.Context) ([]models.SheetKey, error) {
	query := `SELECT DISTINCT date, subject FROM attendance_entries ORDER BY date, subject`
	var rows []struct {
		Date    time.Time `db:"date"`
		Subject string    `db:"subject"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list ledger keys: %w", err)
	}
	keys := make([]models.SheetKey, 0, len(rows))
	for _, row := range rows {
		keys = append(keys, models.NewSheetKey(row.Date, row.Subject))
	}
	return keys, nil
}

// Range loads every sheet whose date falls within [from, to] inclusive.
// Zero bounds are unbounded on that side.
func (r *PostgresLedger) Range(ctx context.Context, from, to time.Time) ([]models.DatedSheet, error) {
	query := `SELECT date, subject, student, status, reason FROM attendance_entries WHERE 1=1`
	args := []interface{}{}
	if !from.IsZero() {
		args = append(args, models.Day(from))
		query += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, models.Day(to))
		query += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query += " ORDER BY date, subject"

	var rows []attendanceRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("range sheets: %w", err)
	}

	var out []models.DatedSheet
	index := map[models.SheetKey]int{}
	for _, row := range rows {
		key := models.NewSheetKey(row.Date, row.Subject)
		i, ok := index[key]
		if !ok {
			out = append(out, models.DatedSheet{Key: key, Sheet: models.Sheet{}})
			i = len(out) - 1
			index[key] = i
		}
		out[i].Sheet[row.Student] = models.AttendanceRecord{Status: row.Status, Reason: row.Reason}
	}
	return out, nil
}
