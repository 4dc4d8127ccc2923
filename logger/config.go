package logger

import (
	"log/slog"
	"strings"
	"sync"
)

// ModuleConfig holds per-module log levels. Module names are dotted paths
// ("engine", "engine.router", "autosave"); a more specific entry overrides
// its ancestors.
type ModuleConfig struct {
	mu           sync.RWMutex
	defaultLevel slog.Level
	modules      map[string]slog.Level
}

// NewModuleConfig creates a ModuleConfig that answers defaultLevel for any
// module without an entry.
func NewModuleConfig(defaultLevel slog.Level) *ModuleConfig {
	return &ModuleConfig{
		defaultLevel: defaultLevel,
		modules:      make(map[string]slog.Level),
	}
}

// SetModuleLevel sets the level for one module subtree.
func (m *ModuleConfig) SetModuleLevel(module string, level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modules[module] = level
}

// SetDefaultLevel replaces the fallback level.
func (m *ModuleConfig) SetDefaultLevel(level slog.Level) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultLevel = level
}

// LevelFor resolves the level for a module: exact entry first, then each
// ancestor up the dotted path, then the default.
func (m *ModuleConfig) LevelFor(module string) slog.Level {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for {
		if level, ok := m.modules[module]; ok {
			return level
		}
		dot := strings.LastIndex(module, ".")
		if dot == -1 {
			return m.defaultLevel
		}
		module = module[:dot]
	}
}

var globalModuleConfig = NewModuleConfig(slog.LevelInfo)

// Log format names accepted by LoggingConfigSpec.Format.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// LoggingConfigSpec is the logging section of an application config file:
// a default level, an output format, fields stamped on every record, and
// per-module overrides.
type LoggingConfigSpec struct {
	DefaultLevel string
	Format       string
	CommonFields map[string]string
	Modules      []ModuleLoggingSpec
}

// ModuleLoggingSpec is one per-module override entry.
type ModuleLoggingSpec struct {
	Name   string
	Level  string
	Fields map[string]string
}

// Configure rebuilds the global logger from a LoggingConfigSpec. A nil spec
// leaves the logger untouched, as does a handler previously installed with
// SetLogger.
func Configure(cfg *LoggingConfigSpec) error {
	if cfg == nil || customHandler != nil {
		return nil
	}

	defaultLevel := slog.LevelInfo
	if cfg.DefaultLevel != "" {
		defaultLevel = ParseLevel(cfg.DefaultLevel)
	}

	moduleConfig := NewModuleConfig(defaultLevel)
	for _, mod := range cfg.Modules {
		moduleConfig.SetModuleLevel(mod.Name, ParseLevel(mod.Level))
	}
	globalModuleConfig = moduleConfig

	var commonFields []slog.Attr
	for k, v := range cfg.CommonFields {
		commonFields = append(commonFields, slog.String(k, v))
	}

	rebuildLogger(defaultLevel, commonFields, moduleConfig, cfg.Format == FormatJSON)
	return nil
}

// rebuildLogger swaps DefaultLogger for one with the given configuration.
func rebuildLogger(level slog.Level, commonFields []slog.Attr, moduleConfig *ModuleConfig, useJSON bool) {
	opts := &slog.HandlerOptions{Level: level}

	var base slog.Handler
	if useJSON {
		base = slog.NewJSONHandler(logOutput, opts)
	} else {
		base = slog.NewTextHandler(logOutput, opts)
	}

	var handler slog.Handler
	if moduleConfig != nil && len(moduleConfig.modules) > 0 {
		handler = NewModuleHandler(base, moduleConfig, commonFields...)
	} else {
		handler = NewContextHandler(base, commonFields...)
	}

	DefaultLogger = slog.New(handler)
	slog.SetDefault(DefaultLogger)
}

// GetModuleConfig exposes the global module configuration, mainly for tests.
func GetModuleConfig() *ModuleConfig {
	return globalModuleConfig
}
