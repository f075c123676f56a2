package models

import (
	"fmt"
	"strings"
	"time"

	"dairy-billing/internal/timeutil"
)

// Period is one billing month.
type Period struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: t.Month()}
}

// ParsePeriod accepts "2024-03" or "2024_03".
func ParsePeriod(s string) (Period, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "-")
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("invalid period %q, expected YYYY-MM", s)
	}
	return PeriodOf(t), nil
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Key is the ledger file stem and sheet title, e.g. 2024_03.
func (p Period) Key() string {
	return fmt.Sprintf("%04d_%02d", p.Year, int(p.Month))
}

// StatusKey names the per-month status folder, e.g. March_2024.
func (p Period) StatusKey() string {
	return fmt.Sprintf("%s_%d", p.Month.String(), p.Year)
}

func (p Period) Before(o Period) bool {
	if p.Year != o.Year {
		return p.Year < o.Year
	}
	return p.Month < o.Month
}

func (p Period) Days() int {
	return timeutil.DaysIn(p.Year, p.Month)
}

// Date returns the given day of the period at midnight UTC.
func (p Period) Date(day int) time.Time {
	return time.Date(p.Year, p.Month, day, 0, 0, 0, 0, time.UTC)
}

func (p Period) Valid() bool {
	return p.Year >= 2000 && p.Year <= 9999 && p.Month >= time.January && p.Month <= time.December
}
