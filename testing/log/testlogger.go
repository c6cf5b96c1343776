package log

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-foreman/orderflow/log"
)

// NewNilLogger is used in tests, it prints nothing and remembers every entry
func NewNilLogger() *testLogger {
	return &testLogger{entriesStore: &entriesStore{}}
}

type entriesStore struct {
	mutex   sync.Mutex
	entries []Entry
}

type testLogger struct {
	level        log.Level
	fields       log.Fields
	entriesStore *entriesStore
}

type Entry struct {
	Msg    string
	Level  log.Level
	Fields log.Fields
}

func (n *testLogger) Log(level log.Level, v ...interface{}) {
	n.add(level, fmt.Sprint(v...))
}

func (n *testLogger) Logf(level log.Level, template string, args ...interface{}) {
	n.add(level, fmt.Sprintf(template, args...))
}

func (n *testLogger) SetLevel(level log.Level) {
	n.level = level
}

func (n *testLogger) WithFields(fields log.Fields) log.Logger {
	mergedFields := make(log.Fields)

	for k, v := range n.fields {
		mergedFields[k] = v
	}

	for k, v := range fields {
		mergedFields[k] = v
	}

	return &testLogger{
		entriesStore: n.entriesStore,
		level:        n.level,
		fields:       mergedFields,
	}
}

func (n *testLogger) add(level log.Level, msg string) {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	n.entriesStore.entries = append(n.entriesStore.entries, Entry{Msg: msg, Level: level, Fields: n.fields})
}

func (n *testLogger) Entries() []Entry {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	r := make([]Entry, len(n.entriesStore.entries))
	copy(r, n.entriesStore.entries)

	return r
}

func (n *testLogger) Messages() []string {
	entries := n.Entries()

	r := make([]string, len(entries))
	for i := range entries {
		r[i] = entries[i].Msg
	}

	return r
}

func (n *testLogger) LastMessage() string {
	entries := n.Entries()

	if len(entries) > 0 {
		return entries[len(entries)-1].Msg
	}

	return ""
}

// Contains reports whether any entry message contains substr
func (n *testLogger) Contains(substr string) bool {
	for _, msg := range n.Messages() {
		if strings.Contains(msg, substr) {
			return true
		}
	}

	return false
}

func (n *testLogger) Clear() {
	n.entriesStore.mutex.Lock()
	defer n.entriesStore.mutex.Unlock()

	n.entriesStore.entries = make([]Entry, 0)
	n.level = log.InfoLevel
	n.fields = nil
}
