// Package logging builds the zap loggers used across csvarm.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/gwillem/csvarm/pkg/robot"
)

// New returns a sugared logger for cfg. With cfg.File set, output goes to a
// size-rotated file so that a full-screen TUI keeps the terminal; otherwise
// it goes to stderr. The returned close function flushes and releases the file.
func New(name string, cfg robot.LogConfig) (*zap.SugaredLogger, func() error, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("log level: %w", err)
	}

	var w io.Writer = os.Stderr
	closeFile := func() error { return nil }
	if cfg.File != "" {
		maxSize := cfg.MaxSizeMB
		if maxSize <= 0 {
			maxSize = 50
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    maxSize,
			MaxBackups: 3,
			Compress:   true,
		}
		w = lj
		closeFile = lj.Close
	}

	logger := NewWithWriter(name, w, level)
	closer := func() error {
		// Sync on stderr fails on some terminals; only the file matters.
		_ = logger.Sync()
		return closeFile()
	}
	return logger, closer, nil
}

// NewWithWriter returns a console-encoded logger writing to w at level.
func NewWithWriter(name string, w io.Writer, level zapcore.Level) *zap.SugaredLogger {
	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(w), level)
	return zap.New(core).Named(name).Sugar()
}

// OrNop returns logger, or a no-op logger if it is nil.
func OrNop(logger *zap.SugaredLogger) *zap.SugaredLogger {
	if logger == nil {
		return zap.NewNop().Sugar()
	}
	return logger
}
