package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging settings
type Config struct {
	// Level: trace, debug, info, warn, error
	Level string `yaml:"level" env:"LOG_LEVEL" validate:"omitempty,oneof=trace debug info warn error"`
	// Format: text, json
	Format string `yaml:"format" env:"LOG_FORMAT" validate:"omitempty,oneof=text json"`
	// Output: stdout, file, both
	Output string `yaml:"output" env:"LOG_OUTPUT" validate:"omitempty,oneof=stdout file both"`

	// File rotation
	Path       string `yaml:"path" env:"LOG_PATH"`
	MaxSize    int    `yaml:"max_size" validate:"gte=0"`    // MB
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"` // old files kept
	MaxAge     int    `yaml:"max_age" validate:"gte=0"`     // days
	Compress   bool   `yaml:"compress"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		Format:     "text",
		Output:     "stdout",
		Path:       "./logs",
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   true,
	}
}

var (
	loggers   = make(map[string]*logrus.Logger)
	loggersMu sync.Mutex
	config    = DefaultConfig()
)

// Init applies cfg to every logger created afterwards and drops cached loggers
func Init(cfg Config) error {
	if cfg.Output == "file" || cfg.Output == "both" {
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return fmt.Errorf("failed to create logs directory: %w", err)
		}
	}

	loggersMu.Lock()
	defer loggersMu.Unlock()

	config = cfg
	loggers = make(map[string]*logrus.Logger)
	return nil
}

// Get returns the named logger, creating it on first use
func Get(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}

	logger := New(config, name)
	loggers[name] = logger
	return logger
}

// New builds a standalone logger for name from cfg
func New(cfg Config, name string) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	var writers []io.Writer
	if cfg.Output == "file" || cfg.Output == "both" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   FilePath(cfg, name),
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
	}
	if cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "both" {
		writers = append(writers, os.Stdout)
	}
	logger.SetOutput(io.MultiWriter(writers...))

	logger.AddHook(&nameHook{name: name})
	return logger
}

// FilePath returns the log file used by the named logger
func FilePath(cfg Config, name string) string {
	return filepath.Join(cfg.Path, name+".log")
}

// Discard returns a logger that drops everything; handy in tests and CLI output paths
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// nameHook stamps every entry with the logger name
type nameHook struct {
	name string
}

func (h *nameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *nameHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["logger"]; !ok {
		entry.Data["logger"] = h.name
	}
	return nil
}
