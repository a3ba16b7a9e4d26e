// Package log provides structured, category-scoped logging for flowsync.
// Entries are written through zerolog, either as human readable console
// lines or as JSON, to stderr and optionally to an append-only log file.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/zjrosen/flowsync/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown values map to info.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Category groups related log messages.
type Category string

const (
	CatConfig   Category = "config"   // Configuration loading/validation
	CatSync     Category = "sync"     // Per-file pipeline outcomes
	CatRemote   Category = "remote"   // Orchestration API calls
	CatCache    Category = "cache"    // Fingerprint cache and in-memory caches
	CatMetadata Category = "metadata" // Secondary metadata store
	CatWatcher  Category = "watcher"  // File watcher events
	CatStatus   Category = "status"   // Status HTTP server
	CatDB       Category = "db"       // Database operations
	CatTrace    Category = "trace"    // Tracing setup
)

// Options configures the global logger.
type Options struct {
	Level  Level
	Format string // "console" (default) or "json"
	File   string // optional append-mode log file
	Output io.Writer
}

// Logger provides structured logging.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	zl       zerolog.Logger
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
}

var (
	defaultLogger *Logger
	initMu        sync.Mutex
)

// Init initializes the global logger.
// Returns a cleanup function that closes the log file, if any.
func Init(opts Options) (func(), error) {
	l, err := newLogger(opts)
	if err != nil {
		return nil, err
	}

	initMu.Lock()
	prev := defaultLogger
	defaultLogger = l
	initMu.Unlock()

	if prev != nil {
		prev.close()
	}

	return func() {
		initMu.Lock()
		defer initMu.Unlock()
		if defaultLogger == l {
			defaultLogger = nil
		}
		l.close()
	}, nil
}

func newLogger(opts Options) (*Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	var sink io.Writer = out
	if opts.Format != "json" {
		sink = zerolog.ConsoleWriter{Out: out, TimeFormat: "2006-01-02T15:04:05"}
	}

	var file *os.File
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644) //nolint:gosec // G304: operator supplied log path
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		sink = zerolog.MultiLevelWriter(sink, f)
	}

	zl := zerolog.New(sink).Level(opts.Level.zerolog()).With().Timestamp().Logger()

	return &Logger{
		file:     file,
		zl:       zl,
		enabled:  true,
		minLevel: opts.Level,
		broker:   pubsub.NewBroker[string](),
	}, nil
}

func (l *Logger) close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.broker != nil {
		l.broker.Close()
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
}

// SetEnabled toggles logging on/off.
func SetEnabled(enabled bool) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.enabled = enabled
		defaultLogger.mu.Unlock()
	}
}

// SetMinLevel sets the minimum log level.
func SetMinLevel(level Level) {
	if defaultLogger != nil {
		defaultLogger.mu.Lock()
		defaultLogger.minLevel = level
		defaultLogger.zl = defaultLogger.zl.Level(level.zerolog())
		defaultLogger.mu.Unlock()
	}
}

// Debug logs at debug level.
func Debug(cat Category, msg string, fields ...any) {
	log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func Info(cat Category, msg string, fields ...any) {
	log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func Warn(cat Category, msg string, fields ...any) {
	log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func Error(cat Category, msg string, fields ...any) {
	log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	log(LevelError, cat, msg, fields...)
}

func log(level Level, cat Category, msg string, fields ...any) {
	l := defaultLogger
	if l == nil || !l.enabled {
		return
	}
	if level < l.minLevel {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var ev *zerolog.Event
	switch level {
	case LevelDebug:
		ev = l.zl.Debug()
	case LevelWarn:
		ev = l.zl.Warn()
	case LevelError:
		ev = l.zl.Error()
	default:
		ev = l.zl.Info()
	}

	ev = ev.Str("cat", string(cat))
	for i := 0; i+1 < len(fields); i += 2 {
		ev = ev.Interface(fmt.Sprint(fields[i]), fields[i+1])
	}
	// Odd field count - keep the orphan key visible
	if len(fields)%2 != 0 {
		ev = ev.Str(fmt.Sprint(fields[len(fields)-1]), "<missing>")
	}
	ev.Msg(msg)

	if l.broker != nil {
		l.broker.Publish(pubsub.LogEvent, format(level, cat, msg, fields))
	}
}

// format renders an entry as a single plain line for listeners.
// Format: [ERROR] [sync] message key=value key2=value2
func format(level Level, cat Category, msg string, fields []any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] [%s] %s", level, cat, msg)
	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	return b.String()
}

// NewListener subscribes to formatted log lines.
// The channel is closed when ctx is cancelled or the logger is replaced.
// Returns nil when logging has not been initialized.
func NewListener(ctx context.Context) <-chan pubsub.Event[string] {
	l := defaultLogger
	if l == nil || l.broker == nil {
		return nil
	}
	return l.broker.Subscribe(ctx)
}
