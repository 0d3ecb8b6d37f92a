package common

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

// LogConfig controls where log output goes. An empty Directory logs to
// stderr only.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Format     string `yaml:"format" toml:"format"`
	Directory  string `yaml:"directory" toml:"directory"`
	Filename   string `yaml:"filename" toml:"filename"`
	MaxSizeMB  int    `yaml:"maxSizeMB" toml:"maxSizeMB"`
	MaxAgeDays int    `yaml:"maxAgeDays" toml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups" toml:"maxBackups"`
	Compress   bool   `yaml:"compress" toml:"compress"`
}

var (
	logMu  sync.RWMutex
	logger = newDefaultLogger()
)

func newDefaultLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"})
	l.SetLevel(logrus.InfoLevel)
	return l.WithField("app", "dctgate")
}

func current() *logrus.Entry {
	logMu.RLock()
	defer logMu.RUnlock()
	return logger
}

// SetupLogging replaces the package logger. When a directory is configured
// output is mirrored to stdout and a rotating file. The returned closer
// releases the log file.
func SetupLogging(cfg LogConfig) (io.Closer, error) {
	l := logrus.New()
	level, err := logrus.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	if strings.EqualFold(cfg.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05.000000"})
	}

	var closer io.Closer = nopCloser{}
	if cfg.Directory != "" {
		if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		name := cfg.Filename
		if name == "" {
			name = "dctgate.log"
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.Directory, name),
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		l.SetOutput(io.MultiWriter(os.Stdout, rotator))
		closer = rotator
	} else {
		l.SetOutput(os.Stderr)
	}

	logMu.Lock()
	logger = l.WithField("app", "dctgate")
	logMu.Unlock()
	return closer, nil
}

// SetLogLevel adjusts verbosity of the current logger.
func SetLogLevel(level string) error {
	lv, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	current().Logger.SetLevel(lv)
	return nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func Logf(format string, args ...interface{}) {
	current().Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	current().Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	current().Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	current().Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	current().Fatalf(format, args...)
}

// WithFields returns an entry carrying structured context.
func WithFields(fields map[string]interface{}) *logrus.Entry {
	return current().WithFields(logrus.Fields(fields))
}
