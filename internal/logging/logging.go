package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Logger is the process-wide structured logger. It writes to stderr until
// Init is called so stdout stays reserved for report tables.
var Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

var (
	logFile   *os.File
	logDir    string
	isFileLog bool
)

// Init configures the logger. If toFile is true, logs are written to a dated
// file under ~/.memharness/logs instead of stderr so that progress bars and
// tables are not interleaved with log lines.
func Init(level string, toFile bool) error {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	if !toFile {
		Logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(Logger)
		return nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	logDir = filepath.Join(homeDir, ".memharness", "logs")

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02")
	logPath := filepath.Join(logDir, fmt.Sprintf("memharness-%s.log", timestamp))

	logFile, err = os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	Logger = slog.New(slog.NewTextHandler(logFile, opts))
	slog.SetDefault(Logger)
	isFileLog = true

	Logger.Info("session started", "pid", os.Getpid())
	return nil
}

// Close closes the log file if one is open.
func Close() {
	if logFile != nil {
		Logger.Info("session ended")
		logFile.Close()
		logFile = nil
	}
}

// Discard drops all log output. Tests use it to keep output quiet.
func Discard() {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// GetLogDir returns the directory where logs are stored.
func GetLogDir() string {
	return logDir
}

// IsFileLogging returns true if logging is going to a file.
func IsFileLogging() bool {
	return isFileLog
}
