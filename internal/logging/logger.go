// Package logging provides the structured logger surface shared by every
// long-lived component in the engine.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the narrow logging surface every component depends on. No
// component reaches for the global zap/log package directly; all of them
// take a Logger at construction.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})

	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})

	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})

	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Named returns a child logger scoped under the given name.
	Named(name string) Logger

	// Sync flushes any buffered log entries.
	Sync() error
}

type sugaredLogger struct {
	s *zap.SugaredLogger
}

type options struct {
	name  string
	level string
	path  string
}

// Option configures NewApplicationLogger.
type Option func(*options)

// Name sets the root logger name, surfaced in every entry.
func Name(name string) Option {
	return func(o *options) { o.name = name }
}

// Level sets the minimum enabled level: "debug", "info", "warn" or "error".
func Level(level string) Option {
	return func(o *options) { o.level = level }
}

// Path sets a directory that log output is additionally written to. An
// empty path (the default) logs to stderr only.
func Path(path string) Option {
	return func(o *options) { o.path = path }
}

// NewApplicationLogger builds a zap-backed Logger from functional options,
// defaulting to info level, stderr-only output.
func NewApplicationLogger(opts ...Option) (Logger, error) {
	o := &options{level: "info"}
	for _, fn := range opts {
		fn(o)
	}

	var level zap.AtomicLevel
	switch o.level {
	case "debug":
		level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.OutputPaths = []string{"stderr"}
	if o.path != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, o.path+"/engine.log")
	}

	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	if o.name != "" {
		base = base.Named(o.name)
	}
	return &sugaredLogger{s: base.Sugar()}, nil
}

// NewNop returns a Logger that discards everything, for tests that don't
// care about log output.
func NewNop() Logger {
	return &sugaredLogger{s: zap.NewNop().Sugar()}
}

func (l *sugaredLogger) Debug(args ...interface{})                       { l.s.Debug(args...) }
func (l *sugaredLogger) Debugf(template string, args ...interface{})     { l.s.Debugf(template, args...) }
func (l *sugaredLogger) Debugw(msg string, kv ...interface{})            { l.s.Debugw(msg, kv...) }
func (l *sugaredLogger) Info(args ...interface{})                        { l.s.Info(args...) }
func (l *sugaredLogger) Infof(template string, args ...interface{})      { l.s.Infof(template, args...) }
func (l *sugaredLogger) Infow(msg string, kv ...interface{})             { l.s.Infow(msg, kv...) }
func (l *sugaredLogger) Warn(args ...interface{})                        { l.s.Warn(args...) }
func (l *sugaredLogger) Warnf(template string, args ...interface{})      { l.s.Warnf(template, args...) }
func (l *sugaredLogger) Warnw(msg string, kv ...interface{})             { l.s.Warnw(msg, kv...) }
func (l *sugaredLogger) Error(args ...interface{})                       { l.s.Error(args...) }
func (l *sugaredLogger) Errorf(template string, args ...interface{})     { l.s.Errorf(template, args...) }
func (l *sugaredLogger) Errorw(msg string, kv ...interface{})            { l.s.Errorw(msg, kv...) }
func (l *sugaredLogger) Named(name string) Logger                        { return &sugaredLogger{s: l.s.Named(name)} }
func (l *sugaredLogger) Sync() error                                     { return l.s.Sync() }
