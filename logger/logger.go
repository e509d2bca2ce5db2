package logger

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	global *Logger
)

// Logger wraps a zap logger with both printf-style and key/value helpers.
type Logger struct {
	zl     *zap.Logger
	config zap.Config
}

type Option func(*Logger)

// WithLevel sets the minimum enabled level.
func WithLevel(level zapcore.Level) Option {
	return func(l *Logger) {
		l.config.Level = zap.NewAtomicLevelAt(level)
	}
}

// WithEncodeTime sets the time key and encoder.
func WithEncodeTime(timeKey string, encoder zapcore.TimeEncoder) Option {
	return func(l *Logger) {
		l.config.EncoderConfig.TimeKey = timeKey
		l.config.EncoderConfig.EncodeTime = encoder
	}
}

// WithConsole switches to the human readable console encoder.
func WithConsole() Option {
	return func(l *Logger) {
		l.config.Encoding = "console"
		l.config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
}

// New builds a logger from the production config and the given options.
func New(opts ...Option) (*Logger, error) {
	l := &Logger{config: zap.NewProductionConfig()}
	for _, opt := range opts {
		opt(l)
	}
	zl, err := l.config.Build()
	if err != nil {
		return nil, err
	}
	l.zl = zl
	return l, nil
}

// InitLogger installs the global logger. Subsequent calls replace it.
func InitLogger(opts ...Option) error {
	l, err := New(opts...)
	if err != nil {
		return err
	}
	SetLogger(l)
	return nil
}

// InitFromLevel parses a textual level ("debug", "info", ...) and installs the global logger.
func InitFromLevel(level string, opts ...Option) error {
	if level == "" {
		level = "info"
	}
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse logger level: %w", err)
	}
	opts = append([]Option{WithLevel(zapLevel), WithEncodeTime("timestamp", zapcore.ISO8601TimeEncoder)}, opts...)
	return InitLogger(opts...)
}

// FromZap wraps an existing zap logger.
func FromZap(zl *zap.Logger) *Logger {
	return &Logger{zl: zl}
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zl: zap.NewNop()}
}

func SetLogger(l *Logger) {
	mu.Lock()
	defer mu.Unlock()
	global = l
}

// GetLogger returns the global logger, falling back to a no-op logger.
func GetLogger() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	if global == nil {
		return NewNop()
	}
	return global
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.zl
}

// Named returns a child logger with the given name segment.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zl: l.zl.Named(name), config: l.config}
}

// With returns a child logger carrying the key/value pairs.
func (l *Logger) With(fields ...interface{}) *Logger {
	return &Logger{zl: l.zl.Sugar().With(fields...).Desugar(), config: l.config}
}

func (l *Logger) Sync() error {
	return l.zl.Sync()
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.zl.Sugar().Debugw(msg, fields...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.zl.Sugar().Infow(msg, fields...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.zl.Sugar().Warnw(msg, fields...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.zl.Sugar().Errorw(msg, fields...) }

func (l *Logger) Debugf(msg string, args ...interface{}) { l.zl.Sugar().Debugf(msg, args...) }
func (l *Logger) Infof(msg string, args ...interface{})  { l.zl.Sugar().Infof(msg, args...) }
func (l *Logger) Warnf(msg string, args ...interface{})  { l.zl.Sugar().Warnf(msg, args...) }
func (l *Logger) Errorf(msg string, args ...interface{}) { l.zl.Sugar().Errorf(msg, args...) }
func (l *Logger) Fatalf(msg string, args ...interface{}) { l.zl.Sugar().Fatalf(msg, args...) }

func Debug(msg string, fields ...interface{}) { GetLogger().Debug(msg, fields...) }
func Info(msg string, fields ...interface{})  { GetLogger().Info(msg, fields...) }
func Warn(msg string, fields ...interface{})  { GetLogger().Warn(msg, fields...) }
func Error(msg string, fields ...interface{}) { GetLogger().Error(msg, fields...) }

func Debugf(msg string, args ...interface{}) { GetLogger().Debugf(msg, args...) }
func Infof(msg string, args ...interface{})  { GetLogger().Infof(msg, args...) }
func Warnf(msg string, args ...interface{})  { GetLogger().Warnf(msg, args...) }
func Errorf(msg string, args ...interface{}) { GetLogger().Errorf(msg, args...) }
func Fatalf(msg string, args ...interface{}) { GetLogger().Fatalf(msg, args...) }
