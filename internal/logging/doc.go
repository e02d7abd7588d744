// Package logging configures slog handlers for stemd and provides attr
// helpers plus context-derived field extraction so components emit uniform
// structured logs across the daemon, workers, and CLI.
package logging
