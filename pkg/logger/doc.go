// Package logger builds the process-wide slog logger. Production uses JSON
// output; other environments use the human-readable text handler.
package logger
