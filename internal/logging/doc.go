// Package logging assembles structured slog loggers and formatting helpers used
// across lumen services.
//
// It owns the console and JSON handlers, centralizes level and output plumbing,
// and exposes context-aware helpers so scan passes tag their log lines with a
// correlation id. Device-scoped records use the Device attribute, which the
// console handler promotes into the line prefix. A no-op logger is provided
// for tests and wiring code that cannot fail.
package logging
