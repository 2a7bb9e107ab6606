package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type Logger struct {
	format Format
	zl     zerolog.Logger
}

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(FormatText)
)

func ParseFormat(raw string) (Format, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return FormatText, nil
	}
	switch raw {
	case "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported log format %q (expected text or json)", raw)
	}
}

func ParseLevel(raw string) (zerolog.Level, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	switch raw {
	case "":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "info":
		return zerolog.InfoLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.NoLevel, fmt.Errorf("unsupported log level %q (expected debug, info, warn or error)", raw)
	}
}

func Setup(raw string) (*Logger, error) {
	format, err := ParseFormat(raw)
	if err != nil {
		return nil, err
	}
	logger := New(format)
	SetDefault(logger)
	return logger, nil
}

func New(format Format) *Logger {
	if format == FormatJSON {
		return NewWithWriter(format, os.Stdout)
	}
	return NewWithWriter(format, os.Stderr)
}

// NewWithWriter builds a logger that writes to out. Text output goes through
// zerolog's console writer without colors.
func NewWithWriter(format Format, out io.Writer) *Logger {
	var w io.Writer = out
	if format != FormatJSON {
		w = zerolog.ConsoleWriter{Out: out, NoColor: true, TimeFormat: "2006/01/02 15:04:05"}
	}
	zl := zerolog.New(w).With().Timestamp().Str("component", "server").Logger()
	return &Logger{format: format, zl: zl}
}

func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

func current() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// L returns the zerolog logger of the default logger for structured fields.
func L() *zerolog.Logger {
	l := current()
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &l.zl
}

func Debugf(format string, args ...any) { current().Debugf(format, args...) }

func Infof(format string, args ...any) { current().Infof(format, args...) }

func Warnf(format string, args ...any) { current().Warnf(format, args...) }

func Errorf(format string, args ...any) { current().Errorf(format, args...) }

func Fatalf(format string, args ...any) { current().Fatalf(format, args...) }

func (l *Logger) SetLevel(level zerolog.Level) {
	if l == nil {
		return
	}
	l.zl = l.zl.Level(level)
}

func (l *Logger) Format() Format {
	if l == nil {
		return FormatText
	}
	return l.format
}

func (l *Logger) Debugf(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Debug().Msgf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Info().Msgf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Warn().Msgf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil {
		return
	}
	l.zl.Error().Msgf(format, args...)
}

func (l *Logger) Fatalf(format string, args ...any) {
	if l == nil {
		os.Exit(1)
	}
	l.zl.Error().Msgf(format, args...)
	os.Exit(1)
}
