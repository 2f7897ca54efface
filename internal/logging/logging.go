// Package logging builds the shared zap logger for the world server.
//
// Core runtime paths use the non-sugared *zap.Logger; CLI and ops surfaces may
// call Sugar() where convenience beats performance.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates the root logger. Output defaults to os.Stderr; level is Debug in
// dev and Info otherwise.
func New(env string) *zap.Logger {
	return NewWithWriter(env, os.Stderr)
}

// NewWithWriter creates a root logger writing to w. Tests use this to capture
// output.
func NewWithWriter(env string, w io.Writer) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		NameKey:     "component",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
		EncodeName:  zapcore.FullNameEncoder,
	}

	level := zapcore.InfoLevel
	if env == "dev" || env == "development" {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		level,
	)
	return zap.New(core)
}

// Nop returns a logger that discards everything. Handy default for components
// constructed without explicit wiring.
func Nop() *zap.Logger { return zap.NewNop() }
