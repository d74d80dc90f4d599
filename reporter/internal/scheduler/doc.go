// Package scheduler runs a job on a cron schedule.
//
// Expressions use the standard five-field format or the descriptors
// robfig/cron understands (@monthly, @daily, @every 1h). A job that is still
// running when its next tick arrives is skipped, never overlapped. Update
// swaps the expression of a running scheduler in place.
package scheduler
