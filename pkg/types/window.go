package types

import (
	"fmt"
	"time"
)

// DateLayout is the canonical calendar-date layout used in config files,
// flags and the run archive.
const DateLayout = "2006-01-02"

// dayMonthYear is the d/m/yyyy form the dashboard's own date pickers use.
const dayMonthYear = "2/1/2006"

// Window is an inclusive range of calendar days. Times are truncated to
// midnight UTC by ParseDate and NewWindow.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow returns the window [start, end], both truncated to their date.
func NewWindow(start, end time.Time) Window {
	return Window{Start: dateOf(start), End: dateOf(end)}
}

// Days is the number of calendar days covered, counting both ends. Windows
// may span month boundaries, so this is the date difference rather than the
// difference of the day-of-month numbers; within one month the two agree.
// It is zero or negative when End precedes Start.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours()/24) + 1
}

// Validate rejects windows that cover no day.
func (w Window) Validate() error {
	if w.Start.IsZero() || w.End.IsZero() {
		return fmt.Errorf("window: start and end dates are required")
	}
	if w.Days() < 1 {
		return fmt.Errorf("window: end %s is before start %s",
			w.End.Format(DateLayout), w.Start.Format(DateLayout))
	}
	return nil
}

func (w Window) String() string {
	return w.Start.Format(DateLayout) + " to " + w.End.Format(DateLayout)
}

// PreviousMonth returns the full calendar month before the one containing now.
func PreviousMonth(now time.Time) Window {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return NewWindow(first.AddDate(0, -1, 0), first.AddDate(0, 0, -1))
}

// MonthToDate returns the window from the first of now's month through now.
func MonthToDate(now time.Time) Window {
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return NewWindow(first, now)
}

// ParseDate accepts either 2006-01-02 or d/m/yyyy.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, dayMonthYear} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or D/M/YYYY", s)
}

func dateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
