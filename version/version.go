// Package version reports build and version metadata. Release builds stamp
// the variables below through ldflags:
//
//	go build -ldflags "-X github.com/HarborLabs/playbook/version.version=1.0.0"
//
// Unstamped builds fall back to the module build info embedded by the Go
// toolchain.
package version

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"
)

const (
	devVersion     = "dev"
	shortCommitLen = 7
)

// Stamped via ldflags on release builds.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the stamped version, the module version from build
// info, or "dev".
func GetVersion() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if v := info.Main.Version; v != "" && v != "(devel)" {
			return v
		}
	}
	return devVersion
}

// vcsSetting reads one key from the build info VCS settings.
func vcsSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range info.Settings {
		if s.Key == key {
			return s.Value
		}
	}
	return ""
}

func getCommitFromBuildInfo() string {
	rev := vcsSetting("vcs.revision")
	if rev == "" {
		return ""
	}
	return rev[:min(shortCommitLen, len(rev))]
}

func isDirtyFromBuildInfo() bool {
	return vcsSetting("vcs.modified") == "true"
}

// commit prefers the stamped hash over the one recorded in build info.
func commit() string {
	if gitCommit != "" {
		return gitCommit
	}
	return getCommitFromBuildInfo()
}

// GetVersionInfo renders the multi-line text for --version output.
func GetVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "playbook version %s", GetVersion())
	if c := commit(); c != "" {
		fmt.Fprintf(&b, "\ncommit: %s", c)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// GetBuildInfo returns version metadata as slog key-value pairs.
func GetBuildInfo() []any {
	attrs := []any{"version", GetVersion()}
	if c := commit(); c != "" {
		attrs = append(attrs, "commit", c)
	}
	if gitCommit == "" && isDirtyFromBuildInfo() {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}

// LogStartup emits a debug-level startup record with build metadata. It is
// gated on LOG_LEVEL so production logs stay quiet.
func LogStartup() {
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug", "trace":
	default:
		return
	}
	slog.Log(context.Background(), slog.LevelDebug, "playbook starting", GetBuildInfo()...)
}
