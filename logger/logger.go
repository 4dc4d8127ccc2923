// Package logger provides structured logging for the playbook engine.
//
// This package wraps Go's standard log/slog with convenience functions for:
//   - Branch routing and trigger matching (the chat interpreter's hot path)
//   - Navigation and action execution
//   - Snapshot save/load outcomes
//   - Contextual logging with execution tracing
//   - Level-based verbosity control
//
// All exported functions use the global DefaultLogger which can be configured
// for different output formats and log levels.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger
)

func init() {
	// Check LOG_LEVEL environment variable
	level := slog.LevelInfo
	if envLevel := os.Getenv("LOG_LEVEL"); envLevel != "" {
		switch strings.ToLower(envLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn", "warning":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// Initialize with text handler writing to stderr
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetLevel changes the logging level for all subsequent log operations.
// This is safe for concurrent use as it replaces the entire logger instance.
func SetLevel(level slog.Level) {
	handler := slog.NewTextHandler(logOutput, &slog.HandlerOptions{
		Level: level,
	})
	DefaultLogger = slog.New(handler)
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
// The context can be used for request tracing and cancellation.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
// Debug messages are only output when the log level is set to LevelDebug or lower.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
// Use for errors that affect operation but don't cause complete failure.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

// BranchRoute logs a branch navigation with structured fields for observability.
// Additional attributes can be passed as key-value pairs after the required parameters.
func BranchRoute(executionID, stepID, branchID string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"step_id", stepID,
		"branch_id", branchID,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("branch routed", allAttrs...)
}

// TriggerMatch logs a free-text trigger hit: which ordered rule won and
// where the input is being routed.
func TriggerMatch(executionID, pattern, target string, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"pattern", pattern,
		"target", target,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("trigger matched", allAttrs...)
}

// RoutingWarn logs a recoverable routing problem (missing branch, bad
// pattern). Execution continues with state unchanged for that step.
func RoutingWarn(executionID, branchID string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 6+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"branch_id", branchID,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Warn("routing warning", allAttrs...)
}

// ActionWarn logs an unknown action name from a workflow definition.
// Authoring typos must never crash a session.
func ActionWarn(executionID, action string, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"action", action,
	)
	allAttrs = append(allAttrs, attrs...)
	Warn("unknown action ignored", allAttrs...)
}

// SaveFailed logs a snapshot write failure. The in-memory state stays
// authoritative and the save retries on the next debounce window.
func SaveFailed(executionID string, err error, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"error", err,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("snapshot save failed", allAttrs...)
}

// SaveSucceeded logs a successful snapshot write with its version.
func SaveSucceeded(executionID string, version int64, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"execution_id", executionID,
		"version", version,
	)
	allAttrs = append(allAttrs, attrs...)
	Debug("snapshot saved", allAttrs...)
}

// DefinitionRejected logs a workflow definition that failed load-time
// validation and cannot be started.
func DefinitionRejected(workflowID string, errCount int, attrs ...any) {
	allAttrs := make([]any, 0, 4+len(attrs))
	allAttrs = append(allAttrs,
		"workflow_id", workflowID,
		"errors", errCount,
	)
	allAttrs = append(allAttrs, attrs...)
	Error("workflow definition rejected", allAttrs...)
}
