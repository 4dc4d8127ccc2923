// Package types defines the shared value types used across the playbook
// engine: transcript messages, step data values, and generated artifacts.
package types

import (
	"time"
)

// Role identifies the author of a transcript message.
type Role string

// Role values.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message represents a single entry in an execution's chat transcript.
// This is the canonical message type used throughout the engine and is
// serialized as-is into persistence snapshots.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`

	// BranchID records the chat branch that produced this message.
	// Empty for free-text user input.
	BranchID string `json:"branch_id,omitempty"`

	// Component names an inline form component rendered with this message.
	Component string `json:"component,omitempty"`

	// Buttons holds quick-reply labels offered alongside this message,
	// in declaration order.
	Buttons []string `json:"buttons,omitempty"`

	Timestamp time.Time `json:"timestamp,omitempty"`

	// Meta carries custom metadata for observability.
	Meta map[string]any `json:"meta,omitempty"`
}

// NewUserMessage creates a user transcript entry from free-text input.
func NewUserMessage(content string, ts time.Time) Message {
	return Message{Role: RoleUser, Content: content, Timestamp: ts}
}

// NewAssistantMessage creates an assistant transcript entry attributed to
// the branch that produced it.
func NewAssistantMessage(branchID, content string, ts time.Time) Message {
	return Message{Role: RoleAssistant, BranchID: branchID, Content: content, Timestamp: ts}
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	c := m
	if m.Buttons != nil {
		c.Buttons = make([]string, len(m.Buttons))
		copy(c.Buttons, m.Buttons)
	}
	if m.Meta != nil {
		c.Meta = make(map[string]any, len(m.Meta))
		for k, v := range m.Meta {
			c.Meta[k] = v
		}
	}
	return c
}
