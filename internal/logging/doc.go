// Package logging wires slog with the repository's console and JSON handlers,
// shared attribute keys, and context-derived fields so every component logs
// story, stage, and correlation identifiers the same way.
package logging
