// Package logging provides the run logger: a console sink tee'd with an
// append-only log file, both in "time | LEVEL | message" form.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

const timeLayout = "2006-01-02 15:04:05,000"

// Options configures New.
type Options struct {
	// Level is one of DEBUG, INFO, WARNING, ERROR. Unknown values mean INFO.
	Level string

	// File receives a copy of every entry. Parent directories are created.
	// Empty disables file logging.
	File string

	// Console is the terminal sink. Defaults to os.Stderr.
	Console io.Writer

	// Color forces colourised levels on or off. Nil auto-detects a terminal.
	Color *bool
}

// Logger is a leveled, component-scoped logger shared across a run.
type Logger struct {
	sugar     *zap.SugaredLogger
	sessionID string
	component string
	file      *os.File
	logPath   string
	closeOnce *sync.Once
}

// New builds a logger writing to the console and, when configured, a file.
//
// If the log file cannot be opened, it returns a console-only logger along
// with the error. Callers can check the error to detect fallback mode and
// log warnings.
func New(opts Options) (*Logger, error) {
	level := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	sessID := uuid.New().String()
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(useColor(console, opts.Color)), zapcore.AddSync(console), level),
	}

	l := &Logger{sessionID: sessID, closeOnce: &sync.Once{}}

	var openErr error
	if opts.File != "" {
		file, err := openLogFile(opts.File)
		if err != nil {
			openErr = err
		} else {
			l.file = file
			l.logPath = opts.File
			fileCore := zapcore.NewCore(newEncoder(false), zapcore.AddSync(file), level).
				With([]zap.Field{zap.String("session", sessID)})
			cores = append(cores, fileCore)
		}
	}

	l.sugar = zap.New(zapcore.NewTee(cores...)).Sugar()
	if openErr != nil {
		l.Warnf("Failed to initialize file logging: %v", openErr)
		l.Warnf("Falling back to console logging")
	}
	return l, openErr
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), closeOnce: &sync.Once{}}
}

// NewFromZap wraps an existing zap logger, typically one built with
// zaptest or an observer core.
func NewFromZap(z *zap.Logger) *Logger {
	return &Logger{sugar: z.Sugar(), sessionID: uuid.New().String(), closeOnce: &sync.Once{}}
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

func newEncoder(color bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:          "time",
		LevelKey:         "level",
		NameKey:          "component",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeTime:       zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeLevel:      levelEncoder(color),
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeName:       zapcore.FullNameEncoder,
		ConsoleSeparator: " | ",
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func levelEncoder(color bool) zapcore.LevelEncoder {
	if color {
		return zapcore.CapitalColorLevelEncoder
	}
	return zapcore.CapitalLevelEncoder
}

func useColor(w io.Writer, force *bool) bool {
	if force != nil {
		return *force
	}
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// ParseLevel maps a level name to a zap level. WARNING and CRITICAL are
// accepted for compatibility with common logging conventions.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return zapcore.DebugLevel
	case "WARN", "WARNING":
		return zapcore.WarnLevel
	case "ERROR":
		return zapcore.ErrorLevel
	case "CRITICAL", "FATAL":
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

// Named returns a child logger tagged with a component name.
func (l *Logger) Named(component string) *Logger {
	child := *l
	child.sugar = l.sugar.Named(component)
	if l.component != "" {
		child.component = l.component + "." + component
	} else {
		child.component = component
	}
	return &child
}

// With returns a child logger carrying extra key/value fields.
func (l *Logger) With(keysAndValues ...any) *Logger {
	child := *l
	child.sugar = l.sugar.With(keysAndValues...)
	return &child
}

// Debugf logs a debug-level message
func (l *Logger) Debugf(format string, v ...any) {
	l.sugar.Debugf(format, v...)
}

// Infof logs an info-level message
func (l *Logger) Infof(format string, v ...any) {
	l.sugar.Infof(format, v...)
}

// Warnf logs a warning-level message
func (l *Logger) Warnf(format string, v ...any) {
	l.sugar.Warnf(format, v...)
}

// Errorf logs an error-level message
func (l *Logger) Errorf(format string, v ...any) {
	l.sugar.Errorf(format, v...)
}

// Infow logs a message with structured fields.
func (l *Logger) Infow(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warnw logs a warning with structured fields.
func (l *Logger) Warnw(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.sugar.Desugar()
}

// Writer returns an io.Writer that writes to the log file, or stderr when
// file logging is disabled.
func (l *Logger) Writer() io.Writer {
	if l.file != nil {
		return l.file
	}
	return os.Stderr
}

// SessionID returns the run's session ID.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Component returns the component name, if any.
func (l *Logger) Component() string {
	return l.component
}

// LogPath returns the path to the log file
func (l *Logger) LogPath() string {
	return l.logPath
}

// Close flushes buffered entries and closes the log file. Safe to call
// multiple times, and from any child logger.
func (l *Logger) Close() error {
	var err error
	l.closeOnce.Do(func() {
		_ = l.sugar.Sync()
		if l.file != nil {
			err = l.file.Close()
		}
	})
	return err
}
