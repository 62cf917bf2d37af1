package models

import "time"

// CellState tags a single day cell in a month grid.
type CellState string

const (
	CellBlank    CellState = "blank"
	CellActive   CellState = "active"
	CellInactive CellState = "inactive"
)

// DayCell is one cell of the month grid. Day is zero for blank cells.
type DayCell struct {
	Day   int       `json:"day"`
	State CellState `json:"state"`
}

// MonthRef identifies a (year, month) pair for grid paging.
type MonthRef struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// Prev returns the preceding month, wrapping January back to December.
func (m MonthRef) Prev() MonthRef {
	if m.Month == time.January {
		return MonthRef{Year: m.Year - 1, Month: time.December}
	}
	return MonthRef{Year: m.Year, Month: m.Month - 1}
}

// Next returns the following month, wrapping December into January.
func (m MonthRef) Next() MonthRef {
	if m.Month == time.December {
		return MonthRef{Year: m.Year + 1, Month: time.January}
	}
	return MonthRef{Year: m.Year, Month: m.Month + 1}
}

// MonthGrid is a Monday-first week-by-week matrix of day cells plus paging
// headers. It is derived on demand and never cached across mutations.
type MonthGrid struct {
	Ref   MonthRef    `json:"ref"`
	Prev  MonthRef    `json:"prev"`
	Next  MonthRef    `json:"next"`
	Weeks [][]DayCell `json:"weeks"`
}
