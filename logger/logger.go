package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a structured log field
type Field = zapcore.Field

// Logger is the logging surface used across docuchat
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
	Named(name string) Logger
	Sync() error
}

// Config defines logger configuration
type Config struct {
	Level       string   `yaml:"level"`
	Encoding    string   `yaml:"encoding"`
	OutputPaths []string `yaml:"output_paths"`
	MaxSize     int      `yaml:"max_size"` // MB
	MaxBackups  int      `yaml:"max_backups"`
	MaxAge      int      `yaml:"max_age"` // days
	Compress    bool     `yaml:"compress"`
}

// Option defines logger option function
type Option func(*Config)

// WithLevel sets logger level
func WithLevel(level string) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithEncoding sets logger encoding ("json" or "console")
func WithEncoding(encoding string) Option {
	return func(c *Config) {
		c.Encoding = encoding
	}
}

// WithOutputPaths sets logger output paths. "stdout" and "stderr" are
// special; anything else is a rotated file.
func WithOutputPaths(paths []string) Option {
	return func(c *Config) {
		c.OutputPaths = paths
	}
}

type logger struct {
	zap *zap.Logger
}

// NewLogger creates a new logger instance
func NewLogger(opts ...Option) (Logger, error) {
	cfg := &Config{
		Level:       "info",
		Encoding:    "json",
		OutputPaths: []string{"stderr"},
		MaxSize:     10,
		MaxBackups:  3,
		MaxAge:      14,
		Compress:    true,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// New builds a logger from an explicit config
func New(cfg *Config) (Logger, error) {
	for _, path := range cfg.OutputPaths {
		if path != "stdout" && path != "stderr" {
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return nil, fmt.Errorf("can't create log directory: %w", err)
			}
		}
	}

	encoderConfig := zapcore.EncoderConfig{
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

	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("can't parse log level: %w", err)
	}

	var cores []zapcore.Core
	for _, path := range cfg.OutputPaths {
		var writer zapcore.WriteSyncer
		switch path {
		case "stdout":
			writer = zapcore.AddSync(os.Stdout)
		case "stderr":
			writer = zapcore.AddSync(os.Stderr)
		default:
			writer = zapcore.AddSync(&lumberjack.Logger{
				Filename:   path,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   cfg.Compress,
			})
		}

		var encoder zapcore.Encoder
		if cfg.Encoding == "console" {
			encoder = zapcore.NewConsoleEncoder(encoderConfig)
		} else {
			encoder = zapcore.NewJSONEncoder(encoderConfig)
		}
		cores = append(cores, zapcore.NewCore(encoder, writer, level))
	}

	zapLogger := zap.New(
		zapcore.NewTee(cores...),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
	)
	return &logger{zap: zapLogger}, nil
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &logger{zap: zap.NewNop()}
}

// Field constructors
func String(key string, val string) Field          { return zap.String(key, val) }
func Int(key string, val int) Field                { return zap.Int(key, val) }
func Uint(key string, val uint) Field              { return zap.Uint(key, val) }
func Bool(key string, val bool) Field              { return zap.Bool(key, val) }
func Any(key string, val interface{}) Field        { return zap.Any(key, val) }
func Error(err error) Field                        { return zap.Error(err) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }

func (l *logger) Debug(msg string, fields ...Field) {
	l.zap.Debug(msg, fields...)
}

func (l *logger) Info(msg string, fields ...Field) {
	l.zap.Info(msg, fields...)
}

func (l *logger) Warn(msg string, fields ...Field) {
	l.zap.Warn(msg, fields...)
}

func (l *logger) Error(msg string, fields ...Field) {
	l.zap.Error(msg, fields...)
}

func (l *logger) With(fields ...Field) Logger {
	return &logger{zap: l.zap.With(fields...)}
}

func (l *logger) Named(name string) Logger {
	return &logger{zap: l.zap.Named(name)}
}

func (l *logger) Sync() error {
	return l.zap.Sync()
}
