// Package logging provides categorized file-based debug logging for plotloom.
// Logs are written to .plotloom/logs/ with separate files per category.
// Logging is controlled by the debug_mode setting; when false, every call is
// a silent no-op so the interactive flow never pays for it.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/subsystem.
type Category string

const (
	CategoryBoot       Category = "boot"       // Startup and wiring
	CategoryLifecycle  Category = "lifecycle"  // Lifecycle controller transitions
	CategoryGeneration Category = "generation" // Prompt building and parsing
	CategoryReadiness  Category = "readiness"  // Readiness detector sampling
	CategoryPersist    Category = "persist"    // Persistence adapter and backends
	CategoryHost       Category = "host"       // Host capability calls
	CategoryAPI        Category = "api"        // LLM API calls
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Settings controls the logging subsystem. Mirrors config.LoggingConfig to
// avoid a circular import with the config package.
type Settings struct {
	DebugMode  bool
	Level      string
	Categories map[string]bool
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	settings  Settings
	setupMu   sync.RWMutex
	logLevel  int
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

// Initialize sets up the logging directory under the workspace and applies
// the given settings. A no-op when debug mode is off.
func Initialize(workspace string, s Settings) error {
	setupMu.Lock()
	settings = s
	switch s.Level {
	case "debug":
		logLevel = LevelDebug
	case "warn", "warning":
		logLevel = LevelWarn
	case "error":
		logLevel = LevelError
	default:
		logLevel = LevelInfo
	}
	setupMu.Unlock()

	if !s.DebugMode {
		return nil
	}
	if workspace == "" {
		return fmt.Errorf("workspace path required")
	}

	dir := filepath.Join(workspace, ".plotloom", "logs")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	setupMu.Lock()
	logsDir = dir
	setupMu.Unlock()

	boot := Get(CategoryBoot)
	boot.Info("=== plotloom logging initialized ===")
	boot.Info("Logs directory: %s", dir)
	boot.Info("Log level: %s", s.Level)
	return nil
}

// IsCategoryEnabled reports whether a category produces output.
func IsCategoryEnabled(category Category) bool {
	setupMu.RLock()
	defer setupMu.RUnlock()
	if !settings.DebugMode {
		return false
	}
	if settings.Categories == nil {
		return true
	}
	enabled, exists := settings.Categories[string(category)]
	if !exists {
		return true
	}
	return enabled
}

// Get returns (or creates) a logger for the given category. Returns a no-op
// logger if debug mode or the category is disabled.
func Get(category Category) *Logger {
	if !IsCategoryEnabled(category) {
		return &Logger{category: category}
	}

	setupMu.RLock()
	dir := logsDir
	setupMu.RUnlock()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation trivial.
	filename := fmt.Sprintf("%s_%s.log", time.Now().Format("2006-01-02"), category)
	file, err := os.OpenFile(filepath.Join(dir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file: %v\n", err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || logLevel > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()
	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// Timer helps measure operation duration.
type Timer struct {
	category Category
	op       string
	start    time.Time
}

// StartTimer begins timing an operation.
func StartTimer(category Category, operation string) *Timer {
	return &Timer{category: category, op: operation, start: time.Now()}
}

// Stop ends the timer and logs the duration at debug level.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	return elapsed
}

// StopWithThreshold logs a warning if duration exceeds threshold.
func (t *Timer) StopWithThreshold(threshold time.Duration) time.Duration {
	elapsed := time.Since(t.start)
	if elapsed > threshold {
		Get(t.category).Warn("%s took %v (threshold: %v)", t.op, elapsed, threshold)
	} else {
		Get(t.category).Debug("%s completed in %v", t.op, elapsed)
	}
	return elapsed
}

// Convenience functions; no-ops when the category is disabled.

// Boot logs to the boot category.
func Boot(format string, args ...interface{}) { Get(CategoryBoot).Info(format, args...) }

// BootDebug logs debug to the boot category.
func BootDebug(format string, args ...interface{}) { Get(CategoryBoot).Debug(format, args...) }

// Lifecycle logs to the lifecycle category.
func Lifecycle(format string, args ...interface{}) { Get(CategoryLifecycle).Info(format, args...) }

// LifecycleDebug logs debug to the lifecycle category.
func LifecycleDebug(format string, args ...interface{}) {
	Get(CategoryLifecycle).Debug(format, args...)
}

// Generation logs to the generation category.
func Generation(format string, args ...interface{}) { Get(CategoryGeneration).Info(format, args...) }

// GenerationDebug logs debug to the generation category.
func GenerationDebug(format string, args ...interface{}) {
	Get(CategoryGeneration).Debug(format, args...)
}

// Readiness logs to the readiness category.
func Readiness(format string, args ...interface{}) { Get(CategoryReadiness).Info(format, args...) }

// ReadinessDebug logs debug to the readiness category.
func ReadinessDebug(format string, args ...interface{}) {
	Get(CategoryReadiness).Debug(format, args...)
}

// Persist logs to the persist category.
func Persist(format string, args ...interface{}) { Get(CategoryPersist).Info(format, args...) }

// PersistDebug logs debug to the persist category.
func PersistDebug(format string, args ...interface{}) { Get(CategoryPersist).Debug(format, args...) }

// Host logs to the host category.
func Host(format string, args ...interface{}) { Get(CategoryHost).Info(format, args...) }

// HostDebug logs debug to the host category.
func HostDebug(format string, args ...interface{}) { Get(CategoryHost).Debug(format, args...) }

// API logs to the api category.
func API(format string, args ...interface{}) { Get(CategoryAPI).Info(format, args...) }

// APIDebug logs debug to the api category.
func APIDebug(format string, args ...interface{}) { Get(CategoryAPI).Debug(format, args...) }
