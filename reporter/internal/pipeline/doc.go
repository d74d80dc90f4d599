// Package pipeline wires one reporter run end to end.
//
// A run either collects fresh failure history from a Source or replays a run
// from the archive, folds the events into a compute.Fleet, computes the
// ranked and trimmed report, writes it in the requested format, archives a
// freshly collected run, applies retention and finally ships a summary.
//
// The report is always written before archiving or shipping is attempted.
// Failures in those later steps are logged and returned joined, so the caller
// can exit non-zero without losing the output. Runner serialises runs; the
// scheduler and a manual run never interleave.
package pipeline
