// Package logger provides structured logging for the playbook engine.
package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
// These keys are used to store values in context.Context that will be
// automatically extracted and added to log entries.
const (
	// ContextKeyExecutionID identifies the workflow execution session.
	ContextKeyExecutionID contextKey = "execution_id"

	// ContextKeyWorkflowID identifies the workflow definition being run.
	ContextKeyWorkflowID contextKey = "workflow_id"

	// ContextKeyStepID identifies the step the user is positioned on.
	ContextKeyStepID contextKey = "step_id"

	// ContextKeyBranchID identifies the active chat branch.
	ContextKeyBranchID contextKey = "branch_id"

	// ContextKeyCustomerID identifies the customer account the playbook targets.
	ContextKeyCustomerID contextKey = "customer_id"

	// ContextKeyRequestID identifies the individual API request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyCorrelationID is used for distributed tracing.
	ContextKeyCorrelationID contextKey = "correlation_id"

	// ContextKeyEnvironment identifies the deployment environment.
	ContextKeyEnvironment contextKey = "environment"
)

// allContextKeys lists all context keys that should be extracted for logging.
// This is used by the handler to iterate over all possible context values.
var allContextKeys = []contextKey{
	ContextKeyExecutionID,
	ContextKeyWorkflowID,
	ContextKeyStepID,
	ContextKeyBranchID,
	ContextKeyCustomerID,
	ContextKeyRequestID,
	ContextKeyCorrelationID,
	ContextKeyEnvironment,
}

// WithExecutionID returns a new context with the execution ID set.
func WithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, ContextKeyExecutionID, executionID)
}

// WithWorkflowID returns a new context with the workflow ID set.
func WithWorkflowID(ctx context.Context, workflowID string) context.Context {
	return context.WithValue(ctx, ContextKeyWorkflowID, workflowID)
}

// WithStepID returns a new context with the step ID set.
func WithStepID(ctx context.Context, stepID string) context.Context {
	return context.WithValue(ctx, ContextKeyStepID, stepID)
}

// WithBranchID returns a new context with the branch ID set.
func WithBranchID(ctx context.Context, branchID string) context.Context {
	return context.WithValue(ctx, ContextKeyBranchID, branchID)
}

// WithCustomerID returns a new context with the customer ID set.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, ContextKeyCustomerID, customerID)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithCorrelationID returns a new context with the correlation ID set.
func WithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, ContextKeyCorrelationID, correlationID)
}

// WithEnvironment returns a new context with the environment set.
func WithEnvironment(ctx context.Context, environment string) context.Context {
	return context.WithValue(ctx, ContextKeyEnvironment, environment)
}

// WithLoggingContext returns a new context with multiple logging fields set at once.
// This is a convenience function for setting multiple fields in one call.
// Only non-empty values are set.
func WithLoggingContext(ctx context.Context, fields *LoggingFields) context.Context {
	if fields == nil {
		return ctx
	}
	if fields.ExecutionID != "" {
		ctx = WithExecutionID(ctx, fields.ExecutionID)
	}
	if fields.WorkflowID != "" {
		ctx = WithWorkflowID(ctx, fields.WorkflowID)
	}
	if fields.StepID != "" {
		ctx = WithStepID(ctx, fields.StepID)
	}
	if fields.BranchID != "" {
		ctx = WithBranchID(ctx, fields.BranchID)
	}
	if fields.CustomerID != "" {
		ctx = WithCustomerID(ctx, fields.CustomerID)
	}
	if fields.RequestID != "" {
		ctx = WithRequestID(ctx, fields.RequestID)
	}
	if fields.CorrelationID != "" {
		ctx = WithCorrelationID(ctx, fields.CorrelationID)
	}
	if fields.Environment != "" {
		ctx = WithEnvironment(ctx, fields.Environment)
	}
	return ctx
}

// LoggingFields holds all standard logging context fields.
// This struct is used with WithLoggingContext for bulk field setting.
type LoggingFields struct {
	ExecutionID   string
	WorkflowID    string
	StepID        string
	BranchID      string
	CustomerID    string
	RequestID     string
	CorrelationID string
	Environment   string
}

// ExtractLoggingFields extracts all logging fields from a context.
// Returns a LoggingFields struct with all values found in the context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	fields := LoggingFields{}
	if v := ctx.Value(ContextKeyExecutionID); v != nil {
		fields.ExecutionID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyWorkflowID); v != nil {
		fields.WorkflowID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyStepID); v != nil {
		fields.StepID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyBranchID); v != nil {
		fields.BranchID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCustomerID); v != nil {
		fields.CustomerID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyRequestID); v != nil {
		fields.RequestID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyCorrelationID); v != nil {
		fields.CorrelationID, _ = v.(string)
	}
	if v := ctx.Value(ContextKeyEnvironment); v != nil {
		fields.Environment, _ = v.(string)
	}
	return fields
}
