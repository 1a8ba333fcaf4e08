package logger

import (
	"io"
	"os"
	"path/filepath"

	"image-shrink-go/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configure New.
type Options struct {
	Level   string
	JSON    bool
	File    string    // rotated log file; empty disables file output
	Rotate  Rotation  // applies to File
	Console io.Writer // nil disables console output
}

// Rotation bounds the size and age of the log file.
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// FromConfig maps the logging section. verbose raises the level to debug and
// quiet lowers it to error and turns the console off. Console output goes to
// stderr so stdout stays free for previews and results.
func FromConfig(c config.LoggingConfig, verbose, quiet bool) Options {
	opts := Options{
		Level:   c.Level,
		JSON:    c.Format == "json",
		File:    c.FilePath,
		Console: os.Stderr,
		Rotate: Rotation{
			MaxSizeMB:  c.MaxSize,
			MaxBackups: c.MaxBackups,
			MaxAgeDays: c.MaxAge,
			Compress:   c.Compress,
		},
	}
	switch {
	case quiet:
		opts.Level = "error"
		opts.Console = nil
	case verbose:
		opts.Level = "debug"
	}
	return opts
}

// New returns a logger for opts. When neither a file nor a console is set,
// errors still reach stderr.
func New(opts Options) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	out, err := newOutput(opts)
	if err != nil {
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetFormatter(newFormatter(opts.JSON))
	log.SetOutput(out)
	return log, nil
}

func newFormatter(json bool) logrus.Formatter {
	if !json {
		return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05"}
	}
	return &logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	}
}

func newOutput(opts Options) (io.Writer, error) {
	var writers []io.Writer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.Rotate.MaxSizeMB,
			MaxBackups: opts.Rotate.MaxBackups,
			MaxAge:     opts.Rotate.MaxAgeDays,
			Compress:   opts.Rotate.Compress,
		})
	}
	if opts.Console != nil {
		writers = append(writers, opts.Console)
	}

	switch len(writers) {
	case 0:
		return os.Stderr, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// WithOperation tags entries with the operation being run.
func WithOperation(log *logrus.Logger, operation string) *logrus.Entry {
	return log.WithField("operation", operation)
}

// WithFileOperation tags entries with the file and the operation on it.
func WithFileOperation(log *logrus.Logger, filePath, operation string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"file":      filePath,
		"operation": operation,
	})
}
