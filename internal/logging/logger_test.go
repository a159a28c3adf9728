package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApplicationLoggerWithOptions(t *testing.T) {
	l, err := NewApplicationLogger(Name("test"), Level("debug"), Path(t.TempDir()))
	require.NoError(t, err)
	require.NotNil(t, l)

	l.Debugw("debug message", "key", "value")
	l.Infof("info %s", "message")
	l.Warn("warn message")
	l.Error("error message")

	child := l.Named("child")
	assert.NotNil(t, child)

	_ = l.Sync()
}

func TestNewApplicationLoggerInvalidLevelFallsBackToInfo(t *testing.T) {
	l, err := NewApplicationLogger(Level("nonsense"))
	require.NoError(t, err)
	require.NotNil(t, l)
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	require.NotNil(t, l)
	l.Infow("should be discarded")
}
