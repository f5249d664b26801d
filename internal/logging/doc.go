// Package logging assembles structured slog loggers and formatting helpers used
// across flowpool.
//
// It owns the console/JSON handlers, centralizes level and output plumbing, and
// exposes context helpers so pool code can tag log lines with chain IDs and
// run names. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
