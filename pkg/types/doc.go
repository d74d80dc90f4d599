// Package types defines the event contract between the failure-history data
// source (reporter/internal/scraper) and the aggregation engine
// (reporter/internal/compute).
//
// A data source emits, per monitored service, exactly one ServiceDiscovered
// followed by zero or more FailureObserved events. Events for different
// services may interleave; the engine tolerates any order after discovery.
package types
