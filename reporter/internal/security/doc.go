// Package security inspects the TLS certificate of the dashboard before a
// run. A certificate that is expired or close to expiry is logged and its
// remaining lifetime is exported as a gauge, so a monthly report does not fail
// silently the day the dashboard certificate lapses.
package security
