package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLogger(t *testing.T) {
	output := bytes.NewBuffer(nil)
	l := DefaultLogger(output)
	logger, ok := l.(*defaultLogger)
	require.True(t, ok)

	t.Run("panic", func(t *testing.T) {
		defer output.Reset()

		assert.PanicsWithValue(t, "paaaaaanic", func() {
			logger.Log(PanicLevel, "paaaaaanic")
		})
	})

	t.Run("default info level", func(t *testing.T) {
		defer output.Reset()

		logger.Log(DebugLevel, "debug")
		logger.Log(TraceLevel, "trace")
		assert.Empty(t, output.String())

		logger.Log(InfoLevel, "info")
		assert.Contains(t, output.String(), "info info")
	})

	t.Run("set level", func(t *testing.T) {
		defer output.Reset()

		l.SetLevel(DebugLevel)
		logger.Log(DebugLevel, "debug")

		assert.Contains(t, output.String(), "debug debug")
	})

	t.Run("logf", func(t *testing.T) {
		defer output.Reset()

		logger.Logf(WarnLevel, "%s", "someinfo")
		assert.Contains(t, output.String(), "warn someinfo")
	})

	t.Run("with fields", func(t *testing.T) {
		defer output.Reset()

		l.SetLevel(DebugLevel)

		fieldsLogger := logger.WithFields(Fields{"key": "val", "another": 1})
		fieldsLogger.Log(DebugLevel, "some debug")
		assert.Contains(t, output.String(), "debug [another=1 key=val] some debug")
	})

	t.Run("derived logger shares level", func(t *testing.T) {
		defer output.Reset()

		fieldsLogger := logger.WithFields(Fields{"a": "b"})
		l.SetLevel(ErrorLevel)

		fieldsLogger.Log(InfoLevel, "hidden")
		assert.Empty(t, output.String())
	})

	t.Run("nested fields", func(t *testing.T) {
		defer output.Reset()

		l.SetLevel(InfoLevel)

		nested := logger.WithFields(Fields{"a": 1}).WithFields(Fields{"b": 2})
		nested.Log(InfoLevel, "msg")
		assert.Contains(t, output.String(), "info [a=1 b=2] msg")
	})
}

func TestParseLevel(t *testing.T) {
	t.Run("known levels", func(t *testing.T) {
		for level, name := range levelNames {
			parsed, err := ParseLevel(name)
			require.NoError(t, err)
			assert.Equal(t, level, parsed)
		}
	})

	t.Run("case insensitive with warning alias", func(t *testing.T) {
		parsed, err := ParseLevel(" WARNING ")
		require.NoError(t, err)
		assert.Equal(t, WarnLevel, parsed)
	})

	t.Run("unknown", func(t *testing.T) {
		parsed, err := ParseLevel("loud")
		assert.EqualError(t, err, "unknown log level 'loud'")
		assert.Equal(t, InfoLevel, parsed)
	})
}

func TestNilLogger(t *testing.T) {
	l := NewNilLogger()
	assert.NotPanics(t, func() {
		l.Log(ErrorLevel, "x")
		l.Logf(ErrorLevel, "%s", "x")
		l.SetLevel(DebugLevel)
		assert.Equal(t, l, l.WithFields(Fields{"a": 1}))
	})
}
