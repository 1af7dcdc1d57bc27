package input

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// LogLevel is the minimum severity an input writes to the logging sink
type LogLevel int

const (
	Debug LogLevel = iota + 1
	Info
	Warning
	Error
)

func (l LogLevel) String() string {
	switch l {
	case Debug:
		return "debug"
	case Info:
		return "info"
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// NewLogLevel parses a level name case-insensitively. Empty means warning.
func NewLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return Debug
	case "info":
		return Info
	case "", "warning", "warn":
		return Warning
	case "error":
		return Error
	default:
		return 0
	}
}

// Validate checks if the log level is valid
func (l LogLevel) Validate() error {
	if l < Debug || l > Error {
		return fmt.Errorf("invalid log level: %d", l)
	}
	return nil
}

// Zerolog maps the level onto the logger's level scale
func (l LogLevel) Zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Error:
		return zerolog.ErrorLevel
	default:
		return zerolog.WarnLevel
	}
}
