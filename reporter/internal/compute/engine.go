package compute

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrNoData is returned for an average over zero services.
var ErrNoData = errors.New("compute: no data")

// ErrInvalidDays is returned by NewEngine for a window shorter than one day.
var ErrInvalidDays = errors.New("compute: window must cover at least one day")

// Settings configures the aggregation. It is a value so runs with different
// settings never share state.
type Settings struct {
	// TrimPercentage is the share of the fleet, per side, trimmed before the
	// second average. 1.0 means 1%.
	TrimPercentage float64
}

// Entry is one service line of a report.
type Entry struct {
	ID      int
	Name    string
	Downs   int
	Uptime  float64
	Percent string
}

func entryOf(r *ServiceRecord, days int) Entry {
	return Entry{
		ID:      r.ID,
		Name:    r.Name,
		Downs:   r.Downs(),
		Uptime:  Uptime(r, days),
		Percent: UptimePercent(r, days),
	}
}

// Average is the mean uptime percentage over Count services. Err is ErrNoData
// when Count is zero, in which case Percent carries no meaning.
type Average struct {
	Count   int
	Percent float64
	Err     error
}

// Valid reports whether the average was computed over at least one service.
func (a Average) Valid() bool { return a.Err == nil }

// String renders the average with three decimals, or "no data".
func (a Average) String() string {
	if a.Err != nil {
		return "no data"
	}
	return FormatPercent(a.Percent)
}

// MeanUptime averages Uptime*100 over records.
func MeanUptime(records []*ServiceRecord, days int) Average {
	if len(records) == 0 {
		return Average{Err: ErrNoData}
	}
	var sum float64
	for _, r := range records {
		sum += Uptime(r, days) * 100
	}
	return Average{Count: len(records), Percent: sum / float64(len(records))}
}

// Report is the outcome of one Engine.Run.
type Report struct {
	Days           int
	Timeslots      int
	TrimPercentage float64
	TrimCount      int

	// Ranked lists every service, most downs first.
	Ranked []Entry
	// All is the average over every service.
	All Average
	// TopTrimmed are the services with the fewest downs, removed first.
	TopTrimmed []Entry
	// BottomTrimmed are the services with the most downs among those left
	// after the top trim.
	BottomTrimmed []Entry
	// Trimmed is the average over the services that survived both trims.
	Trimmed Average
}

// Engine computes reports for a fixed window length and settings.
type Engine struct {
	settings Settings
	days     int
}

// NewEngine returns an Engine for a window of days days.
func NewEngine(settings Settings, days int) (*Engine, error) {
	if days < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidDays, days)
	}
	if settings.TrimPercentage < 0 {
		return nil, fmt.Errorf("compute: trim percentage must not be negative: got %v", settings.TrimPercentage)
	}
	return &Engine{settings: settings, days: days}, nil
}

// Days is the window length the engine was built for.
func (e *Engine) Days() int { return e.days }

// TrimCount is floor(n * TrimPercentage / 100).
func (e *Engine) TrimCount(n int) int {
	return int(float64(n) * (e.settings.TrimPercentage / 100))
}

// Run ranks the fleet, averages it, trims both ends and averages the rest.
// The fleet passed in is not modified; trimming works on a clone.
func (e *Engine) Run(fleet *Fleet) *Report {
	work := fleet.Clone()
	rep := &Report{
		Days:           e.days,
		Timeslots:      TotalTimeslots(e.days),
		TrimPercentage: e.settings.TrimPercentage,
	}

	for _, r := range Sorted(work.Records(), Reverse(ByDowns)) {
		rep.Ranked = append(rep.Ranked, entryOf(r, e.days))
	}
	rep.All = MeanUptime(work.Records(), e.days)

	// trimCount comes from the original size and is reused for both sides.
	rep.TrimCount = e.TrimCount(work.Len())
	rep.TopTrimmed = e.trim(work, ByDowns, rep.TrimCount, "top")
	rep.BottomTrimmed = e.trim(work, Reverse(ByDowns), rep.TrimCount, "bottom")

	rep.Trimmed = MeanUptime(work.Records(), e.days)

	slog.Debug("compute: report ready",
		"services", rep.All.Count,
		"trim_count", rep.TrimCount,
		"remaining", rep.Trimmed.Count)
	return rep
}

// trim removes the first trimCount+1 records of work under o (fewer if work
// is smaller) and returns them in removal order. The removal set is taken
// from a sorted copy and applied once.
func (e *Engine) trim(work *Fleet, o Order, trimCount int, side string) []Entry {
	sorted := Sorted(work.Records(), o)
	n := min(trimCount+1, len(sorted))

	removed := make([]Entry, 0, n)
	ids := make([]int, 0, n)
	for _, r := range sorted[:n] {
		ent := entryOf(r, e.days)
		slog.Debug("compute: trimming service", "side", side,
			"service_id", r.ID, "name", r.Name, "downs", ent.Downs, "uptime", ent.Percent)
		removed = append(removed, ent)
		ids = append(ids, r.ID)
	}
	work.Remove(ids...)
	return removed
}
