// Package logging builds the slog loggers used by the CLI and the
// reconciliation engine.
//
// Console output is a compact key=value line per record with the component
// name pulled to the front; JSON output uses short keys (ts, level, msg) for
// log shippers. When a log directory is configured, every record is also
// appended to a JSON log file through a fan-out handler so runs can be
// audited after the fact.
//
// Use NewComponentLogger to tag a subsystem and the Field* constants for
// structured keys so decision logs stay greppable across runs.
package logging
