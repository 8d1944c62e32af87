// Package logging builds the charm logger used by lift. Level, prefix and
// file output come from the environment.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

const (
	EnvLevel  = "LIFT_LOG_LEVEL"
	EnvPrefix = "LIFT_LOG_PREFIX"
	EnvToFile = "LIFT_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and closes its writer when it owns one.
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
}

func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to a log level. Anything else
// is info.
func ParseLevel(s string) log.Level {
	switch strings.ToLower(s) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a logger writing to w. The level is taken from
// LIFT_LOG_LEVEL unless level is set.
func NewLoggerWithWriter(w io.Writer, level string) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})

	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	lg.SetLevel(ParseLevel(level))

	prefix := os.Getenv(EnvPrefix)
	if prefix == "" {
		prefix = "lift "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a logger on stderr, or on a timestamped file in dir when
// LIFT_LOG_TO_FILE is "1". An empty dir means the working directory.
func NewLogger(dir, level string) *LoggerCloser {
	output := io.Writer(os.Stderr)

	if os.Getenv(EnvToFile) == "1" {
		name := fmt.Sprintf("lift-%s-debug.log", time.Now().Format("20060102-150405"))
		if dir != "" {
			name = dir + string(os.PathSeparator) + name
		}
		// stderr stays the fallback when the file cannot be created
		if f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644); err == nil {
			output = f
		}
	}

	return NewLoggerWithWriter(output, level)
}

// IsDebug reports whether LIFT_LOG_LEVEL asks for debug output.
func IsDebug() bool {
	return strings.EqualFold(os.Getenv(EnvLevel), "debug")
}
