// Package logging builds the slog loggers used across libretto and defines
// the standardized attribute keys that keep pipeline logs queryable.
//
// Two output formats exist: a console handler for interactive use and a JSON
// handler for log shipping. Context helpers carry record coordinates so every
// log line emitted while normalizing a record names the record, source, and
// entity type without each call site repeating them.
package logging
