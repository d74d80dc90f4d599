// Package cli builds the reporter command tree.
//
//	reporter run       collect the window, print the report, archive and ship it
//	reporter report    re-report an archived run
//	reporter runs      list archived runs
//	reporter schedule  run on the configured cron schedule, reloading config on change
//	reporter version   print build information
//
// Every command reads the YAML config named by --config; with no file the
// built-in defaults apply. The report goes to stdout and logs go to stderr.
package cli
