// Package definition defines the immutable in-memory model of a playbook
// workflow: ordered steps, each with an optional component binding, artifact
// specs, and an optional chat branch graph.
//
// A workflow definition is loaded once (from YAML or JSON), validated, and
// never mutated afterwards. The execution engine interprets it but never
// changes it.
package definition

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Workflow is the top-level definition of a playbook.
type Workflow struct {
	ID          string  `json:"id" yaml:"id"`
	Title       string  `json:"title" yaml:"title"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []*Step `json:"steps" yaml:"steps"`
}

// StepCount returns the number of steps in the workflow.
func (w *Workflow) StepCount() int { return len(w.Steps) }

// StepAt returns the step at the given position index, or nil when the index
// is out of range.
func (w *Workflow) StepAt(index int) *Step {
	if index < 0 || index >= len(w.Steps) {
		return nil
	}
	return w.Steps[index]
}

// StepByOrdinal returns the step with the given ordinal, or nil.
func (w *Workflow) StepByOrdinal(ordinal int) *Step {
	for _, s := range w.Steps {
		if s.Ordinal == ordinal {
			return s
		}
	}
	return nil
}

// IndexOfOrdinal returns the position index of the step with the given
// ordinal, or -1.
func (w *Workflow) IndexOfOrdinal(ordinal int) int {
	for i, s := range w.Steps {
		if s.Ordinal == ordinal {
			return i
		}
	}
	return -1
}

// Step is one unit of a workflow: a slide the user works through. A step may
// bind a form component, declare artifact specs, and carry a chat branch
// graph. Ordinals are unique and monotonically increasing within a workflow.
type Step struct {
	ID          string `json:"id" yaml:"id"`
	Ordinal     int    `json:"ordinal" yaml:"ordinal"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Component is a symbolic name resolved through the component registry.
	// The engine never depends on what it renders.
	Component string `json:"component,omitempty" yaml:"component,omitempty"`

	// Schema is an optional JSON Schema (as JSON text) validating values
	// submitted through the step's component.
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`

	Artifacts []ArtifactSpec `json:"artifacts,omitempty" yaml:"artifacts,omitempty"`
	Chat      *Chat          `json:"chat,omitempty" yaml:"chat,omitempty"`
}

// ArtifactSpec declares an artifact a step can emit.
type ArtifactSpec struct {
	ID      string         `json:"id" yaml:"id"`
	Title   string         `json:"title" yaml:"title"`
	Type    string         `json:"type" yaml:"type"`
	Content map[string]any `json:"content,omitempty" yaml:"content,omitempty"`
}

// Chat is a step's branch graph: an optional greeting, an entry branch, a
// default reply for unmatched input, and the branch map itself.
type Chat struct {
	Greeting     string             `json:"greeting,omitempty" yaml:"greeting,omitempty"`
	Entry        string             `json:"entry" yaml:"entry"`
	DefaultReply string             `json:"default_reply,omitempty" yaml:"default_reply,omitempty"`
	Branches     map[string]*Branch `json:"branches" yaml:"branches"`
}

// Branch is a node in a step's chat graph: an assistant response plus
// navigation, trigger, and action metadata.
type Branch struct {
	Response  string   `json:"response" yaml:"response"`
	Component string   `json:"component,omitempty" yaml:"component,omitempty"`
	Buttons   []Button `json:"buttons,omitempty" yaml:"buttons,omitempty"`

	// Next is the branch a component submission routes to.
	Next string `json:"next,omitempty" yaml:"next,omitempty"`

	// NextOnText routes any free-text input directly to the target branch
	// (captured-input mode). Takes precedence over Triggers.
	NextOnText string `json:"next_on_text,omitempty" yaml:"next_on_text,omitempty"`

	// Triggers are ordered pattern rules matched against free-text input.
	// First case-insensitive match wins; declaration order is the tie-break.
	Triggers []Trigger `json:"triggers,omitempty" yaml:"triggers,omitempty"`

	// StoreAs names the step data key the input that reached this branch is
	// stored under.
	StoreAs string `json:"store_as,omitempty" yaml:"store_as,omitempty"`

	Actions []Action `json:"actions,omitempty" yaml:"actions,omitempty"`

	AutoAdvance AutoAdvance `json:"auto_advance,omitempty" yaml:"auto_advance,omitempty"`

	// DelaySeconds is the auto-advance delay. Zero means the 1s default.
	DelaySeconds float64 `json:"delay,omitempty" yaml:"delay,omitempty"`

	// PredelaySeconds delays the response message appearing.
	PredelaySeconds float64 `json:"predelay,omitempty" yaml:"predelay,omitempty"`
}

// defaultAutoAdvanceDelay is applied when a branch auto-advances without an
// explicit delay.
const defaultAutoAdvanceDelay = time.Second

// Delay returns the auto-advance delay as a duration.
func (b *Branch) Delay() time.Duration {
	if b.DelaySeconds <= 0 {
		return defaultAutoAdvanceDelay
	}
	return time.Duration(b.DelaySeconds * float64(time.Second))
}

// Predelay returns the response predelay as a duration, zero when unset.
func (b *Branch) Predelay() time.Duration {
	if b.PredelaySeconds <= 0 {
		return 0
	}
	return time.Duration(b.PredelaySeconds * float64(time.Second))
}

// ButtonLabels returns the quick-reply labels in declaration order.
func (b *Branch) ButtonLabels() []string {
	if len(b.Buttons) == 0 {
		return nil
	}
	labels := make([]string, len(b.Buttons))
	for i, btn := range b.Buttons {
		labels[i] = btn.Label
	}
	return labels
}

// Button maps a quick-reply label to a target branch.
type Button struct {
	Label  string `json:"label" yaml:"label"`
	Target string `json:"target" yaml:"target"`
}

// Trigger is one ordered free-text pattern rule.
type Trigger struct {
	Pattern string `json:"pattern" yaml:"pattern"`
	Target  string `json:"target" yaml:"target"`

	compiled *regexp.Regexp
}

// Compile compiles the trigger pattern case-insensitively and caches the
// result. Called during definition validation so malformed patterns surface
// at load time.
func (t *Trigger) Compile() error {
	if t.compiled != nil {
		return nil
	}
	re, err := regexp.Compile("(?i)" + t.Pattern)
	if err != nil {
		return fmt.Errorf("invalid trigger pattern %q: %w", t.Pattern, err)
	}
	t.compiled = re
	return nil
}

// Match reports whether the trigger pattern matches the input. Patterns that
// fail to compile never match; the error is returned so callers can log it.
func (t *Trigger) Match(input string) (bool, error) {
	if t.compiled == nil {
		if err := t.Compile(); err != nil {
			return false, err
		}
	}
	return t.compiled.MatchString(input), nil
}

// AutoAdvance configures automatic navigation after a branch's response.
// In workflow files it is either a branch ID or the literal true, which
// means "follow the branch's next target".
type AutoAdvance struct {
	Enabled bool
	Target  string // empty means follow Next
}

// UnmarshalYAML accepts a branch ID string or a boolean.
func (a *AutoAdvance) UnmarshalYAML(node *yaml.Node) error {
	var b bool
	if err := node.Decode(&b); err == nil {
		*a = AutoAdvance{Enabled: b}
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("auto_advance must be a branch ID or boolean: %w", err)
	}
	*a = AutoAdvance{Enabled: s != "", Target: s}
	return nil
}

// UnmarshalJSON accepts a branch ID string or a boolean.
func (a *AutoAdvance) UnmarshalJSON(data []byte) error {
	s := string(data)
	switch s {
	case "true":
		*a = AutoAdvance{Enabled: true}
		return nil
	case "false", "null":
		*a = AutoAdvance{}
		return nil
	}
	var target string
	if err := json.Unmarshal(data, &target); err != nil {
		return fmt.Errorf("auto_advance must be a branch ID or boolean")
	}
	*a = AutoAdvance{Enabled: target != "", Target: target}
	return nil
}

// MarshalJSON renders the target ID, true, or null.
func (a AutoAdvance) MarshalJSON() ([]byte, error) {
	switch {
	case !a.Enabled:
		return []byte("null"), nil
	case a.Target == "":
		return []byte("true"), nil
	default:
		return []byte(fmt.Sprintf("%q", a.Target)), nil
	}
}
