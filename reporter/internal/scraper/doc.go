// Package scraper reads failure histories from the SiteUptime web dashboard.
//
// The dashboard has no API, so the client behaves like a browser session:
//
//   - Login posts the account form to /users/login.php and keeps the session
//     cookie in a cookie jar.
//   - ServiceIDs pages through /users/services.php?OrderBy=Name&Page=N and
//     collects every /users/reports.php?Id=N link, stopping at the first page
//     that adds no new ID (or after page 1 in debug mode).
//   - Failures fetches /users/statistics.php?Action=FailuresHistory for one
//     service and window and parses it with goquery: the name follows the
//     "Failure Log for" marker and each failure is a date cell and an error
//     cell (both nowrap) followed by a response-time cell.
//   - Collect runs the three in order and emits pkg/types events.
//
// Every request goes through retry.Do. Network errors, 5xx and 429 responses
// are retried with backoff; other statuses fail at once. Attempts, latency
// and retries are recorded in the metrics package. A service whose page still
// fails is skipped with a warning rather than failing the run.
package scraper
