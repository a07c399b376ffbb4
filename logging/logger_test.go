package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"warn":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		" error ": zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	require.Error(t, err)
}

func TestSetLevel(t *testing.T) {
	prev := Level()
	defer level.SetLevel(prev)

	require.NoError(t, SetLevel("error"))
	require.Equal(t, zapcore.ErrorLevel, Level())
	require.Error(t, SetLevel("nope"))
	require.Equal(t, zapcore.ErrorLevel, Level())

	log := New("test")
	require.NotNil(t, log)
	log.Debugw("suppressed", "k", 1)
}
