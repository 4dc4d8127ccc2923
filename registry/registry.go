// Package registry resolves symbolic step component names to renderable
// component descriptors. The engine only needs the lookup; what a component
// renders is the caller's concern.
package registry

import (
	"errors"
	"fmt"
)

// StepKind classifies the known step component families.
type StepKind string

const (
	KindForm         StepKind = "form"
	KindMetricsPanel StepKind = "metrics_panel"
	KindDocument     StepKind = "document"
	KindChecklist    StepKind = "checklist"
	KindChart        StepKind = "chart"
	KindInfo         StepKind = "info"

	// KindUnknown is the fallback for component names with no registration.
	KindUnknown StepKind = "unknown"
)

// Component describes a resolvable step component.
type Component struct {
	// Name is the symbolic reference used in workflow definitions.
	Name string

	// Kind classifies the component for rendering.
	Kind StepKind

	// Title is a human-readable label shown when the component itself
	// cannot render (the generic fallback view).
	Title string
}

// Resolver looks up components by their symbolic name.
type Resolver interface {
	// Resolve returns the component registered under name, or an error
	// wrapping ErrComponentNotFound.
	Resolve(name string) (Component, error)
}

// ErrComponentNotFound is returned when a component name has no registration.
// Callers fall back to a generic view; this is never fatal to a session.
var ErrComponentNotFound = errors.New("component not found")

// Registry is an explicit, immutable-after-construction component registry.
// Construct it once at startup and hand it to the engine; there is no global
// registration surface, so behavior never depends on package load order.
type Registry struct {
	components map[string]Component
}

// Option configures a Registry during construction.
type Option func(*Registry)

// WithComponent registers a component under its name. A later registration
// with the same name replaces the earlier one.
func WithComponent(c Component) Option {
	return func(r *Registry) {
		r.components[c.Name] = c
	}
}

// NewRegistry creates a Registry with the given options.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{components: make(map[string]Component)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the component registered under name.
// A nil *Registry resolves nothing.
func (r *Registry) Resolve(name string) (Component, error) {
	if r == nil {
		return Component{}, fmt.Errorf("%w: %q", ErrComponentNotFound, name)
	}
	c, ok := r.components[name]
	if !ok {
		return Component{}, fmt.Errorf("%w: %q", ErrComponentNotFound, name)
	}
	return c, nil
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.components)
}

// Fallback returns the generic informational component shown when a name
// cannot be resolved.
func Fallback(name string) Component {
	return Component{
		Name:  name,
		Kind:  KindUnknown,
		Title: fmt.Sprintf("Unavailable component %q", name),
	}
}

// ResolveOrFallback resolves name against r, substituting the generic
// fallback view when the name has no registration.
func ResolveOrFallback(r Resolver, name string) Component {
	if r == nil {
		return Fallback(name)
	}
	c, err := r.Resolve(name)
	if err != nil {
		return Fallback(name)
	}
	return c
}
