// Package shipper delivers the report summary to chat and HTTP webhooks.
//
// Targets come from config (slack | teams | http) with their URLs resolved
// from environment variables. Slack gets {"text": ...}, Teams a MessageCard
// and the generic http type a JSON document with the summary and the figures.
//
// Each post is retried with truncated exponential backoff (1s→60s, ±25%
// jitter). 4xx responses other than 429 are permanent and not retried.
// Ship tries every target and joins the failures into one error; a failed
// delivery never changes the report already written.
package shipper
