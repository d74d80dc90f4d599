// Package report renders a compute.Report.
//
// WriteText prints the classic console report. WritePrometheus and
// WriteTextfile export the same figures as gauges (per-service uptime ratio
// and downs, fleet averages by set, window length, trim count), merged with
// any extra gatherers such as the run metrics registry. Averages over an
// empty set are left out of the exposition instead of being exported as 0.
// Summary is the short digest sent to webhooks.
package report
