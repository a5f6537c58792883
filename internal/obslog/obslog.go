// Package obslog is a thin leveled wrapper over the standard log.Logger.
// The teacher corpus has no structured logging framework anywhere (plain
// log.Printf/fmt.Printf throughout); this keeps that texture instead of
// introducing an unused third-party logger, gating Debug output behind an
// env var the way internal/config gates its own behaviour.
package obslog

import (
	"log"
	"os"
)

var debugEnabled = os.Getenv("DSL_DEBUG") != ""

// Info logs an informational message.
func Info(format string, args ...any) {
	log.Printf("INFO  "+format, args...)
}

// Warn logs a warning.
func Warn(format string, args ...any) {
	log.Printf("WARN  "+format, args...)
}

// Error logs an error.
func Error(format string, args ...any) {
	log.Printf("ERROR "+format, args...)
}

// Debug logs only when DSL_DEBUG is set, matching the teacher's
// environment-variable-gated verbosity style (e.g. config.IsMockMode()).
func Debug(format string, args ...any) {
	if !debugEnabled {
		return
	}
	log.Printf("DEBUG "+format, args...)
}
