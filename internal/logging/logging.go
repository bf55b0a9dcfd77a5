// Package logging provides the orchestrator's logging infrastructure built
// on charmbracelet/log, grounded on AbdelazizMoustafa10m-Raven's
// internal/logging. All log output goes to stderr; stdout is reserved for
// structured output (JSON status, handoff briefs).
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
	LevelFatal = log.FatalLevel
)

// Setup configures the global logging defaults. Call once during CLI
// initialization, before any package-level logger is created with New.
func Setup(verbose, quiet, jsonFormat bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if jsonFormat {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}

// New creates a logger with the given component prefix, inheriting the
// global level/formatter settings Setup configured.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}
