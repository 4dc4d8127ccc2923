package logger

import (
	"context"
	"testing"
)

func TestContextSetters(t *testing.T) {
	ctx := context.Background()
	ctx = WithExecutionID(ctx, "exec-1")
	ctx = WithWorkflowID(ctx, "renewal-planning")
	ctx = WithStepID(ctx, "kickoff")
	ctx = WithBranchID(ctx, "intro")
	ctx = WithCustomerID(ctx, "acme")
	ctx = WithRequestID(ctx, "req-9")

	fields := ExtractLoggingFields(ctx)
	if fields.ExecutionID != "exec-1" {
		t.Errorf("ExecutionID = %q", fields.ExecutionID)
	}
	if fields.WorkflowID != "renewal-planning" {
		t.Errorf("WorkflowID = %q", fields.WorkflowID)
	}
	if fields.StepID != "kickoff" {
		t.Errorf("StepID = %q", fields.StepID)
	}
	if fields.BranchID != "intro" {
		t.Errorf("BranchID = %q", fields.BranchID)
	}
	if fields.CustomerID != "acme" {
		t.Errorf("CustomerID = %q", fields.CustomerID)
	}
	if fields.RequestID != "req-9" {
		t.Errorf("RequestID = %q", fields.RequestID)
	}
}

func TestWithLoggingContext(t *testing.T) {
	fields := &LoggingFields{
		ExecutionID: "exec-2",
		WorkflowID:  "expansion",
		Environment: "staging",
	}
	ctx := WithLoggingContext(context.Background(), fields)

	got := ExtractLoggingFields(ctx)
	if got.ExecutionID != "exec-2" || got.WorkflowID != "expansion" || got.Environment != "staging" {
		t.Errorf("ExtractLoggingFields = %+v", got)
	}
	if got.StepID != "" {
		t.Errorf("unset field should stay empty, got %q", got.StepID)
	}
}

func TestWithLoggingContextNil(t *testing.T) {
	ctx := context.Background()
	if WithLoggingContext(ctx, nil) != ctx {
		t.Error("nil fields should return the original context")
	}
}
