package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/davomat-bot/internal/models"
)

func newLedgerMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestPostgresLedgerLoad(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	rows := sqlmock.NewRows([]string{"student", "status", "reason"}).
		AddRow("Ali", "present", "").
		AddRow("Bobur", "excused", "shifokorda")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT student, status, reason FROM attendance_entries WHERE date = $1 AND subject = $2")).
		WithArgs(key.Date, "Math").
		WillReturnRows(rows)

	sheet, err := repo.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, models.Sheet{
		"Ali":   {Status: models.StatusPresent},
		"Bobur": {Status: models.StatusExcused, Reason: "shifokorda"},
	}, sheet)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerLoadEmpty(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	mock.ExpectQuery("SELECT student, status, reason FROM attendance_entries").
		WithArgs(key.Date, "Math").
		WillReturnRows(sqlmock.NewRows([]string{"student", "status", "reason"}))

	sheet, err := repo.Load(context.Background(), key)
	require.NoError(t, err)
	assert.Empty(t, sheet)
}

func TestPostgresLedgerUpsertRecord(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	mock.ExpectExec("INSERT INTO attendance_entries").
		WithArgs(key.Date, "Math", "Ali", models.StatusLate, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpsertRecord(context.Background(), key, "Ali", models.AttendanceRecord{Status: models.StatusLate})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerSaveUsesTransaction(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WithArgs(key.Date, "Math", "Ali", models.StatusAbsent, "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Save(context.Background(), key, models.Sheet{"Ali": {Status: models.StatusAbsent}})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerSaveRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO attendance_entries").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Save(context.Background(), key, models.Sheet{"Ali": {Status: models.StatusAbsent}})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresLedgerKeys(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)

	rows := sqlmock.NewRows([]string{"date", "subject"}).
		AddRow(time.Date(2024, 5, 3, 0, 0, 0, 0, time.UTC), "Math").
		AddRow(time.Date(2024, 5, 17, 0, 0, 0, 0, time.UTC), "Physics")
	mock.ExpectQuery("SELECT DISTINCT date, subject FROM attendance_entries").
		WillReturnRows(rows)

	keys, err := repo.Keys(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.SheetKey{
		fileKey(2024, 5, 3, "Math"),
		fileKey(2024, 5, 17, "Physics"),
	}, keys)
}

func TestPostgresLedgerRangeGroupsRowsByKey(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)

	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"date", "subject", "student", "status", "reason"}).
		AddRow(from.AddDate(0, 0, 2), "Math", "Ali", "absent", "").
		AddRow(from.AddDate(0, 0, 2), "Math", "Bobur", "present", "").
		AddRow(from.AddDate(0, 0, 16), "Math", "Ali", "late", "")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT date, subject, student, status, reason FROM attendance_entries WHERE 1=1 AND date >= $1 AND date <= $2 ORDER BY date, subject")).
		WithArgs(from, to).
		WillReturnRows(rows)

	sheets, err := repo.Range(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, sheets, 2)
	assert.Len(t, sheets[0].Sheet, 2)
	assert.Equal(t, models.StatusLate, sheets[1].Sheet["Ali"].Status)
}

func TestPostgresLedgerStorageErrorPropagates(t *testing.T) {
	db, mock, cleanup := newLedgerMock(t)
	defer cleanup()
	repo := NewPostgresLedger(db)
	key := fileKey(2024, 5, 17, "Math")

	mock.ExpectQuery("SELECT student, status, reason FROM attendance_entries").
		WillReturnError(errors.New("server closed the connection"))

	_, err := repo.Load(context.Background(), key)
	require.Error(t, err)
}
