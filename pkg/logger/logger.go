package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = map[string]LogLevel{
	"debug": DEBUG,
	"info":  INFO,
	"warn":  WARN,
	"error": ERROR,
	"fatal": FATAL,
}

// Options controls where and how log lines are written.
type Options struct {
	Level  string
	File   string
	Format string // "console" or "json"; empty picks console on a TTY
}

var (
	mu      sync.RWMutex
	current = newLogger(os.Stderr, "", INFO)
	sink    io.Closer
)

func newLogger(w io.Writer, format string, level LogLevel) zerolog.Logger {
	out := w
	if format == "console" || (format == "" && isTerminal(w)) {
		out = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			NoColor:    !isTerminal(w),
		}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(toZerolog(level))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func toZerolog(level LogLevel) zerolog.Level {
	switch level {
	case DEBUG:
		return zerolog.DebugLevel
	case WARN:
		return zerolog.WarnLevel
	case ERROR:
		return zerolog.ErrorLevel
	case FATAL:
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel maps a level name to a LogLevel. Unknown names are an error.
func ParseLevel(name string) (LogLevel, error) {
	if name == "" {
		return INFO, nil
	}
	level, ok := levelNames[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return INFO, fmt.Errorf("unknown log level %q", name)
	}
	return level, nil
}

// Init reconfigures the package logger. A configured file is opened in
// append mode and replaces stderr as the sink.
func Init(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}

	var w io.Writer = os.Stderr
	var closer io.Closer
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return fmt.Errorf("creating log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		w, closer = f, f
	}

	mu.Lock()
	defer mu.Unlock()
	if sink != nil {
		sink.Close()
	}
	current = newLogger(w, opts.Format, level)
	sink = closer
	return nil
}

// SetOutput redirects logging to w. Used by tests and by front ends that own
// the terminal.
func SetOutput(w io.Writer, format string, level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	current = newLogger(w, format, level)
}

// Close releases the log file opened by Init, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if sink == nil {
		return nil
	}
	err := sink.Close()
	sink = nil
	current = newLogger(os.Stderr, "", INFO)
	return err
}

func logMessage(level LogLevel, component string, message string, fields map[string]interface{}) {
	mu.RLock()
	l := current
	mu.RUnlock()

	var ev *zerolog.Event
	switch level {
	case DEBUG:
		ev = l.Debug()
	case WARN:
		ev = l.Warn()
	case ERROR:
		ev = l.Error()
	case FATAL:
		// WithLevel does not exit; callers decide.
		ev = l.WithLevel(zerolog.FatalLevel)
	default:
		ev = l.Info()
	}
	if ev == nil {
		return
	}
	if component != "" {
		ev = ev.Str("component", component)
	}
	if len(fields) > 0 {
		ev = ev.Fields(fields)
	}
	ev.Msg(message)
}

func Debug(message string) {
	logMessage(DEBUG, "", message, nil)
}

func DebugC(component string, message string) {
	logMessage(DEBUG, component, message, nil)
}

func DebugCF(component string, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func Info(message string) {
	logMessage(INFO, "", message, nil)
}

func InfoC(component string, message string) {
	logMessage(INFO, component, message, nil)
}

func InfoCF(component string, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func Warn(message string) {
	logMessage(WARN, "", message, nil)
}

func WarnC(component string, message string) {
	logMessage(WARN, component, message, nil)
}

func WarnCF(component string, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func Error(message string) {
	logMessage(ERROR, "", message, nil)
}

func ErrorC(component string, message string) {
	logMessage(ERROR, component, message, nil)
}

func ErrorCF(component string, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}
