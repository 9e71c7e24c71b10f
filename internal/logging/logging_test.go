package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLevelString(t *testing.T) {
	require.Equal(t, "debug", Debug.String())
	require.Equal(t, "info", Info.String())
	require.Equal(t, "warn", Warn.String())
	require.Equal(t, "error", Error.String())
	require.Equal(t, "unknown", Level(99).String())
}

func TestStandardLoggerSetLevelRoundTrips(t *testing.T) {
	l := New()
	for _, level := range []Level{Debug, Info, Warn, Error} {
		l.SetLevel(level)
		require.Equal(t, level, l.GetLevel())
	}
}

func TestStandardLoggerWithFieldsMerges(t *testing.T) {
	l := New()
	child := l.WithFields(map[string]interface{}{"library": "a"})
	grandchild := child.WithFields(map[string]interface{}{"symbol": "run"})

	require.NotPanics(t, func() { grandchild.Debug("resolving %s", "run") })
	require.IsType(t, &StandardLogger{}, grandchild)
	require.Equal(t, "a", grandchild.(*StandardLogger).fields["library"])
	require.Equal(t, "run", grandchild.(*StandardLogger).fields["symbol"])
}

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	var l Logger = NewNoOpLogger()
	require.NotPanics(t, func() {
		l.Debug("x")
		l.Info("x")
		l.Warn("x")
		l.Error("x")
	})
	require.Equal(t, Error, l.GetLevel())
	l.SetLevel(Debug)
	require.Same(t, l, l.WithFields(map[string]interface{}{"a": 1}))
}
