package log

import (
	"strings"

	"github.com/pkg/errors"
)

// Level of a log entry. The lower the value the more severe the entry is.
type Level uint32

const (
	PanicLevel Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
	TraceLevel
)

// Fields are structured key/value pairs attached to every entry of a derived logger
type Fields map[string]interface{}

// Logger is used by every component of orderflow. Implement it to plug in your own logging library.
type Logger interface {
	Log(level Level, v ...interface{})
	Logf(level Level, template string, args ...interface{})
	SetLevel(level Level)
	// WithFields returns a logger which attaches fields to each entry. Parent logger stays untouched.
	WithFields(fields Fields) Logger
}

var levelNames = map[Level]string{
	PanicLevel: "panic",
	FatalLevel: "fatal",
	ErrorLevel: "error",
	WarnLevel:  "warn",
	InfoLevel:  "info",
	DebugLevel: "debug",
	TraceLevel: "trace",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}

	return "unknown"
}

// ParseLevel converts level name into Level
func ParseLevel(name string) (Level, error) {
	lowered := strings.ToLower(strings.TrimSpace(name))

	for level, levelName := range levelNames {
		if levelName == lowered {
			return level, nil
		}
	}

	if lowered == "warning" {
		return WarnLevel, nil
	}

	return InfoLevel, errors.Errorf("unknown log level '%s'", name)
}
