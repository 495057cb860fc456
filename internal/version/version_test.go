package version

import (
	"runtime"
	"strings"
	"testing"
)

func TestResolvePrefersLdflags(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuild })

	Version, Commit, BuildTime = "v1.2.3", "0123456789abcdef0123", "2026-01-02T03:04:05Z"
	info := Resolve()
	if info.Version != "v1.2.3" || info.Commit != Commit || info.BuildTime != BuildTime {
		t.Fatalf("ldflags not used: %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Fatalf("go version: got %q", info.GoVersion)
	}
	if got := String(); got != "v1.2.3 (0123456789ab)" {
		t.Fatalf("String: got %q", got)
	}
}

func TestResolveFallsBack(t *testing.T) {
	oldVersion, oldCommit, oldBuild := Version, Commit, BuildTime
	t.Cleanup(func() { Version, Commit, BuildTime = oldVersion, oldCommit, oldBuild })

	Version, Commit, BuildTime = "", "", ""
	info := Resolve()
	if info.Version == "" {
		t.Fatal("expected a fallback version")
	}
	if info.Commit == "" && strings.Contains(String(), "(") {
		t.Fatalf("String without commit should not include parentheses: %q", String())
	}
}
