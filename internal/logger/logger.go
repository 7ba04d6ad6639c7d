// Package logger owns the process-wide zap core. Components ask for child
// loggers via New("component"); everything funnels into one writer so log
// rotation and level changes apply globally.
package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Config collects everything needed to build the core.
type Config struct {
	Level      string
	Format     string
	FilePath   string
	Version    string
	MaxSize    int // megabytes per rotated file
	MaxBackups int
	MaxAge     int // days
}

// Option mutates the Config before the core is built.
type Option func(*Config)

func WithLevel(lvl string) Option { return func(c *Config) { c.Level = lvl } }
func WithFormat(f string) Option  { return func(c *Config) { c.Format = f } }
func WithFile(path string) Option { return func(c *Config) { c.FilePath = path } }
func WithVersion(v string) Option { return func(c *Config) { c.Version = v } }
func WithRotation(size, backups, age int) Option {
	return func(c *Config) {
		c.MaxSize, c.MaxBackups, c.MaxAge = size, backups, age
	}
}

var (
	mu     sync.RWMutex
	root   *zap.Logger
	level  zap.AtomicLevel
	active bool
)

// Init builds the global core. Calling it again replaces the previous core,
// flushing the old writer first.
func Init(opts ...Option) error {
	cfg := &Config{
		Level:      "info",
		Format:     "console",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
	}
	for _, apply := range opts {
		apply(cfg)
	}

	enc, err := encoderFor(cfg.Format)
	if err != nil {
		return err
	}
	ws, err := writerFor(cfg)
	if err != nil {
		return err
	}
	lvl, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	mu.Lock()
	defer mu.Unlock()

	if active && root != nil {
		_ = root.Sync()
	}

	level = lvl
	root = zap.New(zapcore.NewCore(enc, ws, level),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("version", cfg.Version)),
	)
	active = true
	return nil
}

// Shutdown flushes buffered entries. Sync errors on stdout are ignored.
func Shutdown() {
	mu.Lock()
	defer mu.Unlock()
	if active && root != nil {
		_ = root.Sync()
	}
	active = false
}

// SetLevel changes the level of the running core.
func SetLevel(lvl string) error {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return fmt.Errorf("logger not initialized")
	}
	parsed, err := zap.ParseAtomicLevel(lvl)
	if err != nil {
		return err
	}
	level.SetLevel(parsed.Level())
	return nil
}

// New returns a component-scoped child logger. Before Init it returns a nop
// logger so construction order does not matter.
func New(component string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return zap.NewNop()
	}
	return root.With(zap.String("component", component))
}

// Package-level wrappers for call sites that have no component logger.

func Debug(msg string, fields ...zap.Field) { emit(zapcore.DebugLevel, msg, fields) }
func Info(msg string, fields ...zap.Field)  { emit(zapcore.InfoLevel, msg, fields) }
func Warn(msg string, fields ...zap.Field)  { emit(zapcore.WarnLevel, msg, fields) }
func Error(msg string, fields ...zap.Field) { emit(zapcore.ErrorLevel, msg, fields) }

func emit(lvl zapcore.Level, msg string, fields []zap.Field) {
	mu.RLock()
	defer mu.RUnlock()
	if !active {
		return
	}
	if ce := root.Check(lvl, msg); ce != nil {
		ce.Write(fields...)
	}
}

func encoderFor(format string) (zapcore.Encoder, error) {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), nil
	case "console":
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		return zapcore.NewConsoleEncoder(cfg), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func writerFor(cfg *Config) (zapcore.WriteSyncer, error) {
	if cfg.FilePath == "" {
		return zapcore.AddSync(os.Stdout), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}), nil
}
