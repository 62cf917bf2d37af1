package models

import "time"

// Status represents the attendance state of one student for one lesson.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusLate    Status = "late"
	StatusExcused Status = "excused"
)

// Valid returns true when the status is a supported value.
func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is the stored state for one (date, subject, student).
// Reason is non-empty only while Status is excused.
type AttendanceRecord struct {
	Status Status `json:"status" db:"status"`
	Reason string `json:"reason" db:"reason"`
}

// Sheet maps student name to attendance record for one (date, subject).
type Sheet map[string]AttendanceRecord

// Clone returns a copy safe to hand out while the original keeps mutating.
func (s Sheet) Clone() Sheet {
	out := make(Sheet, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// SheetKey uniquely identifies one sheet in the ledger.
type SheetKey struct {
	Date    time.Time
	Subject string
}

// NewSheetKey normalises the date to midnight UTC so keys compare by
// calendar day regardless of the wall clock the caller held.
func NewSheetKey(date time.Time, subject string) SheetKey {
	return SheetKey{Date: Day(date), Subject: subject}
}

// Day truncates a timestamp to its calendar day.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DateString renders the key date in the ledger's canonical layout.
func (k SheetKey) DateString() string {
	return k.Date.Format("2006-01-02")
}

// DatedSheet pairs a sheet with its key for range scans.
type DatedSheet struct {
	Key   SheetKey
	Sheet Sheet
}

// AbsenceCount is one row of an aggregation result.
type AbsenceCount struct {
	Student string `json:"student"`
	Count   int    `json:"count"`
}
