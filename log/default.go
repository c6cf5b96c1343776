package log

import (
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"sync/atomic"
)

// DefaultLogger returns an implementation of Logger writing into w, used by default if other isn't specified
func DefaultLogger(w io.Writer) Logger {
	level := uint32(InfoLevel)

	return &defaultLogger{
		internalLogger: log.New(w, "[orderflow] ", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile),
		level:          &level,
	}
}

type defaultLogger struct {
	internalLogger *log.Logger
	// shared between the logger and all the loggers derived with WithFields
	level  *uint32
	fields string
}

func (l defaultLogger) Log(level Level, v ...interface{}) {
	msg := fmt.Sprint(v...)

	if level == FatalLevel {
		l.internalLogger.Fatal(l.format(level, msg))
		return
	}

	if level == PanicLevel {
		l.internalLogger.Panic(msg)
		return
	}

	if level <= Level(atomic.LoadUint32(l.level)) {
		if err := l.internalLogger.Output(3, l.format(level, msg)); err != nil {
			l.internalLogger.Printf("err logging an entry: %s. %s\n", err, msg)
		}
	}
}

func (l defaultLogger) Logf(level Level, template string, args ...interface{}) {
	l.Log(level, fmt.Sprintf(template, args...))
}

func (l *defaultLogger) SetLevel(level Level) {
	atomic.StoreUint32(l.level, uint32(level))
}

func (l *defaultLogger) WithFields(fields Fields) Logger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	if l.fields != "" {
		parts = append(parts, l.fields)
	}

	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}

	return &defaultLogger{
		internalLogger: l.internalLogger,
		level:          l.level,
		fields:         strings.Join(parts, " "),
	}
}

func (l defaultLogger) format(level Level, msg string) string {
	if l.fields == "" {
		return fmt.Sprintf("%s %s", level, msg)
	}

	return fmt.Sprintf("%s [%s] %s", level, l.fields, msg)
}
