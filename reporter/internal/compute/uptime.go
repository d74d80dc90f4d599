package compute

import "fmt"

// SlotsPerHour is the monitoring granularity of the source: one check every
// two minutes.
const SlotsPerHour = 30

// TotalTimeslots is the number of monitoring slots in days days.
func TotalTimeslots(days int) int {
	return days * 24 * SlotsPerHour
}

// Uptime is the share of slots in the window without a recorded failure.
// It is not clamped: more failures than slots gives a negative value.
// days must be at least 1.
func Uptime(r *ServiceRecord, days int) float64 {
	slots := float64(TotalTimeslots(days))
	return (slots - float64(r.Downs())) / slots
}

// UptimePercent is Uptime as a percentage with three decimals.
func UptimePercent(r *ServiceRecord, days int) string {
	return FormatPercent(Uptime(r, days) * 100)
}

// FormatPercent renders a percentage the way every report line does.
func FormatPercent(pct float64) string {
	return fmt.Sprintf("%3.3f", pct)
}
