package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"bookgate/features"
)

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelStartup // startup banner only
)

const (
	colorRed     = "\033[31m"
	colorYellow  = "\033[33m"
	colorMagenta = "\033[35m"
	colorCyan    = "\033[36m"
	colorReset   = "\033[0m"
)

// ParseLevel maps a logging.level config value. Unknown values are info.
func ParseLevel(s string) LogLevel {
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

// Logger writes leveled, prefixed lines. Keys, tokens and book bytes are
// never passed to it.
type Logger struct {
	infoLogger    *log.Logger
	warnLogger    *log.Logger
	errorLogger   *log.Logger
	debugLogger   *log.Logger
	startupLogger *log.Logger
	minLevel      LogLevel
	color         bool
	mu            sync.Mutex
}

var (
	defaultLogger *Logger
	once          sync.Once
)

// GetLogger returns the singleton logger instance
func GetLogger() *Logger {
	once.Do(func() {
		defaultLogger = NewLogger()
	})
	return defaultLogger
}

// NewLogger creates a stdout logger gated by the build's feature flags
func NewLogger() *Logger {
	l := &Logger{color: true}
	l.SetOutput(os.Stdout)
	l.minLevel = l.gate(LevelDebug)
	return l
}

// SetOutput redirects every level to w
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	flags := log.Ldate | log.Ltime
	l.infoLogger = log.New(w, "INFO: ", flags)
	l.warnLogger = log.New(w, "WARN: ", flags)
	l.errorLogger = log.New(w, "ERROR: ", flags)
	l.debugLogger = log.New(w, "DEBUG: ", flags)
	l.startupLogger = log.New(w, "STARTUP: ", flags)
}

// SetColor toggles ANSI coloring, which is off for the text format
func (l *Logger) SetColor(enabled bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.color = enabled
}

// SetLevel sets the minimum log level. Minimal builds stay at startup only.
func (l *Logger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = l.gate(level)
}

// Level returns the effective minimum level
func (l *Logger) Level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minLevel
}

func (l *Logger) gate(level LogLevel) LogLevel {
	if !features.ShouldEnableFullLogging() {
		return LevelStartup
	}
	return level
}

// Configure applies the logging config section: level, output and format.
// Output is stdout, stderr or a file path opened for append.
func (l *Logger) Configure(level, output, format string) (io.Closer, error) {
	var (
		w      io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	switch strings.ToLower(output) {
	case "", "stdout":
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f
	}

	l.SetOutput(w)
	l.SetColor(!strings.EqualFold(format, "text"))
	l.SetLevel(ParseLevel(level))
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func (l *Logger) loggerFor(level LogLevel) *log.Logger {
	switch level {
	case LevelDebug:
		return l.debugLogger
	case LevelWarn:
		return l.warnLogger
	case LevelError:
		return l.errorLogger
	case LevelStartup:
		return l.startupLogger
	default:
		return l.infoLogger
	}
}

func (l *Logger) write(level LogLevel, color, format string, v ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.minLevel && level != LevelStartup {
		return
	}
	logger := l.loggerFor(level)
	s := fmt.Sprintf(format, v...)
	if l.color && color != "" {
		s = color + s + colorReset
	}
	logger.Print(s)
}

// Debug logs a debug message (only in full logging mode)
func (l *Logger) Debug(format string, v ...interface{}) {
	l.write(LevelDebug, colorCyan, format, v...)
}

func (l *Logger) Info(format string, v ...interface{}) {
	l.write(LevelInfo, "", format, v...)
}

func (l *Logger) Warn(format string, v ...interface{}) {
	l.write(LevelWarn, colorYellow, format, v...)
}

func (l *Logger) Error(format string, v ...interface{}) {
	l.write(LevelError, colorRed, format, v...)
}

// Startup logs a startup message (always logged, even in minimal mode)
func (l *Logger) Startup(format string, v ...interface{}) {
	l.write(LevelStartup, colorMagenta, format, v...)
}

// PrintBuildInfo prints build and feature flag information at startup
func (l *Logger) PrintBuildInfo(serviceName, serviceVersion string) {
	buildInfo := features.GetBuildInfo()

	l.Startup("=================================================")
	l.Startup("Service: %s v%s", serviceName, serviceVersion)
	l.Startup("Build Mode: %s", buildInfo["mode"])
	l.Startup("Build Version: %s", buildInfo["version"])
	l.Startup("Build Time: %s", buildInfo["buildTime"])

	if enabled := features.GetEnabledFeatures(); len(enabled) > 0 {
		l.Startup("Enabled Features: %v", enabled)
	} else {
		l.Startup("Enabled Features: none (production defaults)")
	}
	if unknown := features.UnknownFeatures(); len(unknown) > 0 {
		l.Startup("Ignored Features: %v", unknown)
	}

	l.Startup("Full Logging: %v", features.ShouldEnableFullLogging())
	l.Startup("Metrics: %v", features.ShouldEnableMetrics())
	l.Startup("Observability: %v", features.ShouldEnableObservability())
	l.Startup("Rate Limiting: %v", features.ShouldEnableRateLimiting())
	l.Startup("Trial Cache: %v", features.ShouldEnableCaching())
	l.Startup("Short Timeouts: %v", features.ShouldUseShortTimeouts())
	l.Startup("=================================================")
}

// Convenience functions that use the default logger
func Debug(format string, v ...interface{}) {
	GetLogger().Debug(format, v...)
}

func Info(format string, v ...interface{}) {
	GetLogger().Info(format, v...)
}

func Warn(format string, v ...interface{}) {
	GetLogger().Warn(format, v...)
}

func Error(format string, v ...interface{}) {
	GetLogger().Error(format, v...)
}

func Startup(format string, v ...interface{}) {
	GetLogger().Startup(format, v...)
}

func PrintBuildInfo(serviceName, serviceVersion string) {
	GetLogger().PrintBuildInfo(serviceName, serviceVersion)
}

// LoggingMode returns a string describing the current logging mode
func LoggingMode() string {
	if features.ShouldEnableFullLogging() {
		return "full"
	}
	return "minimal (startup only)"
}
