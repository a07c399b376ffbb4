// Package logging provides named zap loggers sharing one adjustable level.
package logging

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	level    = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	baseOnce sync.Once
	base     *zap.Logger
)

func root() *zap.Logger {
	baseOnce.Do(func() {
		encoderConfig := zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		config := zap.Config{
			Level:            level,
			Encoding:         "console",
			EncoderConfig:    encoderConfig,
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
		l, err := config.Build()
		if err != nil {
			l = zap.NewNop()
		}
		base = l
	})
	return base
}

// New returns a sugared logger named after the calling package.
func New(name string) *zap.SugaredLogger {
	return root().Named(name).Sugar()
}

// SetLevel changes the level of every logger created by New.
func SetLevel(s string) error {
	l, err := ParseLevel(s)
	if err != nil {
		return err
	}
	level.SetLevel(l)
	return nil
}

// Level reports the current level.
func Level() zapcore.Level {
	return level.Level()
}

// ParseLevel converts debug, info, warn or error into a zap level.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "info", "":
		return zapcore.InfoLevel, nil
	case "warning", "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", s)
	}
}
