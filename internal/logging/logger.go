package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelError
)

// Logger writes diagnostics to stdout and a size-rotated log file. All of
// the proxy's "log and continue" failure paths end up here; nothing written
// through this package is ever surfaced to a client.
type Logger struct {
	mu     sync.Mutex
	logger *log.Logger
	file   *lumberjack.Logger
	level  LogLevel
}

var defaultLogger *Logger

// Init wires the package-level helpers to a rotated log file under logDir.
func Init(logDir, logLevel string, debug bool) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "mirage.log"),
		MaxSize:    50, // MB
		MaxBackups: 5,
		MaxAge:     30, // days
		Compress:   true,
	}

	multiWriter := io.MultiWriter(file, os.Stdout)

	defaultLogger = &Logger{
		logger: log.New(multiWriter, "", log.LstdFlags),
		file:   file,
		level:  parseLogLevel(logLevel, debug),
	}

	// Redirect Go's standard log package into the same writer.
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags)

	return nil
}

func parseLogLevel(level string, debug bool) LogLevel {
	if debug {
		return LogLevelDebug
	}

	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l *Logger) writeLog(level LogLevel, levelStr, msg string) {
	if level < l.level {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Printf("[%s] %s", levelStr, msg)
}

func Info(msg string, args ...interface{}) {
	emit(LogLevelInfo, "INFO", msg, args...)
}

func Error(msg string, args ...interface{}) {
	emit(LogLevelError, "ERROR", msg, args...)
}

func Debug(msg string, args ...interface{}) {
	emit(LogLevelDebug, "DEBUG", msg, args...)
}

func emit(level LogLevel, levelStr, msg string, args ...interface{}) {
	text := fmt.Sprintf(msg, args...)
	if defaultLogger == nil {
		fmt.Printf("[%s] %s\n", levelStr, text)
		return
	}
	defaultLogger.writeLog(level, levelStr, text)
}

func Close() {
	if defaultLogger != nil && defaultLogger.file != nil {
		defaultLogger.file.Close()
	}
}
