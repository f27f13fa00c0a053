// Package rlog wires this module's structured logging onto
// github.com/henderiw/logger, the same package kform-dev-plugin's Client
// uses for its default logger (see client.go's log.NewLogger call).
package rlog

import (
	"log/slog"

	"github.com/henderiw/logger/log"
)

// New builds a named *slog.Logger. name shows up as every record's
// logger-name field (e.g. "daemon", "daemonclient", "plugin").
func New(name string) *slog.Logger {
	return log.NewLogger(&log.HandlerOptions{Name: name, AddSource: false})
}

// NewDebug is New with source locations attached, for use behind a
// --dbg CLI flag (see cmd/reccd).
func NewDebug(name string) *slog.Logger {
	return log.NewLogger(&log.HandlerOptions{Name: name, AddSource: true})
}
