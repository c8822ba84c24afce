// Package logging assembles the slog loggers used across yatrisync.
//
// It owns the console and JSON handlers, level and output plumbing, and a
// handful of helpers that keep WARN/ERROR lines shaped the same way in every
// component (event_type, error_hint, impact). NewNop is available for tests and
// for constructors that accept an optional logger.
package logging
