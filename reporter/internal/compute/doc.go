// Package compute turns per-service failure histories into uptime figures and
// a trimmed fleet-wide average.
//
// fleet.go holds the data model: FailureEvent, ServiceRecord (ID, name and an
// append-only failure list whose length is the down count) and Fleet, the
// working set keyed by service ID. Fleet also remembers insertion order so
// every sort over it starts from the same sequence.
//
// collector.go applies the pkg/types event stream to a Fleet. Failures for an
// ID that was never discovered are dropped with a warning.
//
// uptime.go provides the pure arithmetic: TotalTimeslots(days) = days*24*30
// two-minute slots, Uptime = (slots - downs) / slots (not clamped, so it can
// go negative) and the %3.3f percentage string.
//
// order.go provides comparator-based ordering (ByDowns, Reverse, Sorted).
//
// engine.go runs one report: ranked list (most downs first), untrimmed
// average, top trim (fewest downs) and bottom trim (most downs, over the
// already top-trimmed set), then the trimmed average. Each trim removes
// trimCount+1 services where trimCount = floor(n * pct / 100) of the
// original n. Removal sets are computed from a sorted copy first and applied
// afterwards. An average over zero services is ErrNoData, never 0.
package compute
