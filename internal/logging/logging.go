// Package logging builds the zerolog logger shared by every package.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file inside the data dir.
const FileName = "fiscal.log"

const (
	maxSizeMB  = 5
	maxBackups = 3
)

// Options configure New.
type Options struct {
	// Path is the log file. Empty disables file output.
	Path  string
	Level string
	// Console mirrors warnings and errors to Stderr in a human format.
	Console bool
	Stderr  io.Writer
}

// Logger wraps a zerolog.Logger with the rotating file behind it.
type Logger struct {
	zerolog.Logger
	file *lumberjack.Logger
}

// New returns a logger writing JSON lines to a rotating file. The TUI owns
// the terminal, so console output is only enabled for CLI commands.
func New(opts Options) (*Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	var writers []io.Writer
	var file *lumberjack.Logger
	if strings.TrimSpace(opts.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   opts.Path,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
		}
		writers = append(writers, file)
	}
	if opts.Console {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		console := zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.Kitchen}
		writers = append(writers, &zerolog.FilteredLevelWriter{
			Writer: zerolog.LevelWriterAdapter{Writer: console},
			Level:  zerolog.WarnLevel,
		})
	}

	if len(writers) == 0 {
		return &Logger{Logger: zerolog.Nop()}, nil
	}
	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: zl, file: file}, nil
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(raw string) (zerolog.Level, error) {
	trimmed := strings.ToLower(strings.TrimSpace(raw))
	if trimmed == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(trimmed)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", raw, err)
	}
	return level, nil
}

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}
