package version

import (
	"strings"
	"testing"
)

// stampVars overrides the ldflags-stamped variables for one test.
func stampVars(t *testing.T, v, commit, date string) {
	t.Helper()
	origVersion, origCommit, origDate := version, gitCommit, buildDate
	t.Cleanup(func() {
		version, gitCommit, buildDate = origVersion, origCommit, origDate
	})
	version, gitCommit, buildDate = v, commit, date
}

func TestGetVersionNeverEmpty(t *testing.T) {
	if GetVersion() == "" {
		t.Error("GetVersion() returned empty string")
	}
}

func TestGetVersionStamped(t *testing.T) {
	stampVars(t, "1.4.0", "", "")
	if v := GetVersion(); v != "1.4.0" {
		t.Errorf("GetVersion() = %q, want 1.4.0", v)
	}
}

func TestGetVersionInfo(t *testing.T) {
	if info := GetVersionInfo(); !strings.Contains(info, "playbook version") {
		t.Errorf("GetVersionInfo() = %q, want playbook version prefix", info)
	}
}

func TestGetVersionInfoStamped(t *testing.T) {
	stampVars(t, "2.0.0", "def4567", "2026-06-15")

	info := GetVersionInfo()
	for _, want := range []string{"2.0.0", "def4567", "2026-06-15"} {
		if !strings.Contains(info, want) {
			t.Errorf("GetVersionInfo() = %q, missing %q", info, want)
		}
	}
}

func TestGetBuildInfoPairs(t *testing.T) {
	stampVars(t, "1.2.3", "abc1234", "2026-01-01")

	attrs := GetBuildInfo()
	if len(attrs)%2 != 0 {
		t.Fatalf("GetBuildInfo() returned odd attr count %d", len(attrs))
	}
	got := make(map[string]any, len(attrs)/2)
	for i := 0; i < len(attrs); i += 2 {
		got[attrs[i].(string)] = attrs[i+1]
	}

	want := map[string]any{"version": "1.2.3", "commit": "abc1234", "built": "2026-01-01"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestLogStartupRespectsLevel(t *testing.T) {
	for _, level := range []string{"debug", "trace", "info", ""} {
		t.Run("level "+level, func(t *testing.T) {
			t.Setenv("LOG_LEVEL", level)
			LogStartup()
		})
	}
}

func TestBuildInfoHelpers(t *testing.T) {
	// Values depend on how the test binary was built; the calls just must
	// not panic.
	_ = getCommitFromBuildInfo()
	_ = isDirtyFromBuildInfo()
}
