package shared

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// SetupLogger configures a console logger at the named level. debug forces
// debug output regardless of level.
func SetupLogger(w io.Writer, level string, debug bool) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	if debug {
		lvl = log.DebugLevel
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
}

// SetupStructuredLogger configures a logger for structured (JSON) output
func SetupStructuredLogger(w io.Writer, level string, debug bool) *log.Logger {
	logger := SetupLogger(w, level, debug)
	logger.SetFormatter(log.JSONFormatter)
	logger.SetTimeFormat(time.RFC3339Nano)
	return logger
}
