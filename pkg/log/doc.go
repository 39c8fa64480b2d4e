// Package log provides the bus event log of a test session.
//
// This package defines the Logger interface and Event types for capturing
// every envelope published or delivered on the session bus together with the
// state changes of the coordinator. It is separate from operational logging
// (slog): the event log is a complete machine-readable trace of a session
// that can be replayed and inspected after the fact.
//
// # Basic Usage
//
//	// For development: log to console via slog
//	events := log.NewSlogAdapter(slog.Default())
//
//	// For sessions: write to binary file
//	events, _ := log.NewFileLogger("results/session.blog")
//
//	// Both: use MultiLogger
//	events := log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    fileLogger,
//	)
//
// # File Format
//
// Log files are a stream of CBOR encoded events with the .blog extension.
// The bus-log CLI tool provides viewing, filtering, and export capabilities.
package log
