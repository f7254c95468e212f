package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger embeds zap.Logger so call sites use zap fields directly.
type Logger struct {
	*zap.Logger
}

// Options selects the logger's verbosity and output shape.
type Options struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string
	// Console switches from JSON lines to colored console output.
	Console bool
	// Paths are the output sinks. Defaults to stdout.
	Paths []string
}

// New builds a logger. An unparseable level is an error rather than a
// silent fallback since a mistyped FIREDESK_LOG_LEVEL should be loud.
func New(opts Options) (*Logger, error) {
	if opts.Level == "" {
		opts.Level = "info"
	}
	if len(opts.Paths) == 0 {
		opts.Paths = []string{"stdout"}
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(opts.Level)); err != nil {
		return nil, err
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	encoding := "json"
	if opts.Console {
		encoding = "console"
		enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zl, err := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       opts.Console,
		Encoding:          encoding,
		EncoderConfig:     enc,
		OutputPaths:       opts.Paths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: !opts.Console,
	}.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: zl}, nil
}

// NewDefault is the production logger: JSON lines on stdout at info.
func NewDefault() *Logger {
	l, err := New(Options{})
	if err != nil {
		return NewNop()
	}
	return l
}

// NewNop discards everything. For tests.
func NewNop() *Logger {
	return &Logger{Logger: zap.NewNop()}
}
