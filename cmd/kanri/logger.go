package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/hylla/kanri/internal/config"
)

// runtimeLogger fans log events to a styled console sink and an optional dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}
	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Formatter:       charmLog.TextFormatter,
	})
	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode || !cfg.DevFile.Enabled {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile.Dir, appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// File output stays unstyled logfmt.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	return sink != l.consoleSink || l.consoleEnabled
}

func (l *runtimeLogger) emit(write func(*charmLog.Logger)) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if l.shouldLogToSink(sink) {
			write(sink)
		}
	}
}

// Debug logs a debug event to all enabled sinks.
func (l *runtimeLogger) Debug(msg any, keyvals ...any) {
	l.emit(func(sink *charmLog.Logger) { sink.Debug(msg, keyvals...) })
}

// Info logs an informational event to all enabled sinks.
func (l *runtimeLogger) Info(msg any, keyvals ...any) {
	l.emit(func(sink *charmLog.Logger) { sink.Info(msg, keyvals...) })
}

// Warn logs a warning event to all enabled sinks.
func (l *runtimeLogger) Warn(msg any, keyvals ...any) {
	l.emit(func(sink *charmLog.Logger) { sink.Warn(msg, keyvals...) })
}

// Error logs an error event to all enabled sinks.
func (l *runtimeLogger) Error(msg any, keyvals ...any) {
	l.emit(func(sink *charmLog.Logger) { sink.Error(msg, keyvals...) })
}

// devLogFilePath resolves a workspace-local log file named for the current day.
func devLogFilePath(dir, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(dir)
	if baseDir == "" {
		baseDir = ".kanri/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(workspaceRootFrom(cwd), baseDir)
	}
	fileName := fmt.Sprintf("%s-%s.log", sanitizeLogFileStem(appName), now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

// workspaceRootFrom walks up to the nearest directory holding go.mod or .git.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	for dir := start; ; {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

func hasWorkspaceMarker(dir string) bool {
	for _, marker := range []string{"go.mod", ".git"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// sanitizeLogFileStem turns an app name into a safe file-name segment.
func sanitizeLogFileStem(appName string) string {
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem := strings.Trim(replacer.Replace(strings.TrimSpace(appName)), "-")
	if stem == "" {
		return "kanri"
	}
	return stem
}
