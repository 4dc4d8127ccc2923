package logger

import (
	"context"
	"log/slog"
	"runtime"
	"strings"
)

// ContextHandler wraps a slog.Handler and stamps each record with the
// execution-scoped fields carried in the context plus any configured common
// fields. Attribute precedence, lowest to highest: common fields, context
// fields, the record's own attributes.
type ContextHandler struct {
	inner        slog.Handler
	commonFields []slog.Attr
}

// NewContextHandler wraps inner. commonFields appear on every record.
func NewContextHandler(inner slog.Handler, commonFields ...slog.Attr) *ContextHandler {
	return &ContextHandler{inner: inner, commonFields: commonFields}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

//nolint:gocritic // slog.Record is passed by value per the slog.Handler contract
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)

	out.AddAttrs(h.commonFields...)
	h.addContextFields(ctx, &out)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})

	return h.inner.Handle(ctx, out)
}

func (h *ContextHandler) addContextFields(ctx context.Context, r *slog.Record) {
	for _, key := range allContextKeys {
		if s, ok := ctx.Value(key).(string); ok && s != "" {
			r.AddAttrs(slog.String(string(key), s))
		}
	}
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields}
}

// Unwrap exposes the inner handler for handler chains that need to inspect
// or replace it.
func (h *ContextHandler) Unwrap() slog.Handler {
	return h.inner
}

var _ slog.Handler = (*ContextHandler)(nil)

// ModuleHandler adds per-module level filtering on top of ContextHandler.
// The module name is derived from the logging call site, so "engine" and
// "autosave" can log at different levels without separate logger instances.
type ModuleHandler struct {
	ContextHandler
	moduleConfig *ModuleConfig
}

// NewModuleHandler wraps inner with module-level filtering driven by
// moduleConfig.
func NewModuleHandler(inner slog.Handler, moduleConfig *ModuleConfig, commonFields ...slog.Attr) *ModuleHandler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: inner, commonFields: commonFields},
		moduleConfig:   moduleConfig,
	}
}

func (h *ModuleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.moduleConfig.LevelFor(callerModule())
}

//nolint:gocritic // slog.Record is passed by value per the slog.Handler contract
func (h *ModuleHandler) Handle(ctx context.Context, r slog.Record) error {
	module := moduleFromPC(r.PC)
	if r.Level < h.moduleConfig.LevelFor(module) {
		return nil
	}

	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	out.AddAttrs(h.commonFields...)
	if module != "" {
		out.AddAttrs(slog.String("logger", module))
	}
	h.addContextFields(ctx, &out)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(a)
		return true
	})

	return h.inner.Handle(ctx, out)
}

func (h *ModuleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithAttrs(attrs), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

func (h *ModuleHandler) WithGroup(name string) slog.Handler {
	return &ModuleHandler{
		ContextHandler: ContextHandler{inner: h.inner.WithGroup(name), commonFields: h.commonFields},
		moduleConfig:   h.moduleConfig,
	}
}

var _ slog.Handler = (*ModuleHandler)(nil)

// callerModule walks the stack to the first frame outside this package and
// resolves its module name. Used by Enabled, where no record PC exists yet.
func callerModule() string {
	const maxDepth = 10
	var pcs [maxDepth]uintptr

	// Skip runtime.Callers, callerModule, and Enabled.
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		module := extractModuleFromFunction(frame.Function)
		if module != "" && !strings.HasPrefix(module, "logger") {
			return module
		}
		if !more {
			return ""
		}
	}
}

// moduleFromPC resolves the module name for a record's program counter.
func moduleFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	return extractModuleFromFunction(frame.Function)
}

// extractModuleFromFunction turns a fully qualified function name into a
// dotted module name: "github.com/HarborLabs/playbook/engine.(*Engine).GoTo"
// becomes "engine", subpackages become "persistence.yaml".
func extractModuleFromFunction(fn string) string {
	const moduleRoot = "github.com/HarborLabs/playbook/"
	idx := strings.Index(fn, moduleRoot)
	if idx == -1 {
		return ""
	}
	path := fn[idx+len(moduleRoot):]

	if paren := strings.Index(path, "("); paren != -1 {
		path = path[:paren]
	}
	if dot := strings.LastIndex(path, "."); dot != -1 {
		path = path[:dot]
	}
	return strings.ReplaceAll(path, "/", ".")
}
