package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestJSONLevelFiltering(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := JSON(&buf, slog.LevelWarn)
	log.Info("should not appear")
	log.Debug("also should not appear")
	if buf.Len() > 0 {
		t.Fatalf("expected no output below warn, got: %s", buf.String())
	}

	log.With("component", "dtw").Warn("should appear", "key", "value")
	output := buf.String()
	for _, want := range []string{"should appear", `"component":"dtw"`, `"key":"value"`, `"level":"WARN"`} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %s in output, got: %s", want, output)
		}
	}
}

func TestFromFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format, level string
		want          string
		wantErr       bool
	}{
		{"json", "info", `"msg":"hello"`, false},
		{"text", "debug", "msg=hello", false},
		{"", "", "hello", false},
		{"xml", "info", "", true},
		{"json", "loud", "", true},
	}
	for _, tc := range tests {
		var buf bytes.Buffer
		log, err := FromFlags(tc.format, tc.level, &buf)
		if (err != nil) != tc.wantErr {
			t.Fatalf("FromFlags(%q, %q) error = %v, wantErr %v", tc.format, tc.level, err, tc.wantErr)
		}
		if err != nil {
			continue
		}
		log.Info("hello")
		if !strings.Contains(buf.String(), tc.want) {
			t.Fatalf("FromFlags(%q, %q): expected %q in output, got: %s", tc.format, tc.level, tc.want, buf.String())
		}
	}
}

func TestDiscard(t *testing.T) {
	t.Parallel()
	log := Discard()
	log.Error("dropped")
	log.With("k", "v").WithGroup("g").Info("dropped")
}

func TestContextRoundTrip(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	ctx := WithContext(context.Background(), JSON(&buf, slog.LevelInfo))

	FromContext(ctx).Info("roundtrip test")
	if !strings.Contains(buf.String(), "roundtrip test") {
		t.Fatalf("expected message via context logger, got: %s", buf.String())
	}
	if FromContext(context.Background()) == nil {
		t.Fatal("FromContext with no logger returned nil")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected slog.Level
		wantErr  bool
	}{
		{"debug", slog.LevelDebug, false},
		{" DEBUG ", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"unknown", slog.LevelInfo, true},
	}
	for _, tc := range tests {
		got, err := ParseLevel(tc.input)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
		}
		if got != tc.expected {
			t.Errorf("ParseLevel(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}

func TestPrettyHandlerEnabled(t *testing.T) {
	t.Parallel()
	h := NewPrettyHandler(&bytes.Buffer{}, &PrettyOptions{HandlerOptions: slog.HandlerOptions{Level: slog.LevelWarn}})

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("expected info to be disabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("expected error to be enabled at warn level")
	}
}

func TestPrettyHandlerAttrsAndGroups(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, &PrettyOptions{NoColor: true})

	logger := slog.New(h.WithAttrs([]slog.Attr{slog.String("service", "api")}).WithGroup("a").WithGroup("b"))
	logger.Info("nested", "key", "val")

	output := buf.String()
	for _, want := range []string{"INFO  nested", "service=api", "a.b.key=val"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got: %s", want, output)
		}
	}
	if strings.Contains(output, "\033[") {
		t.Fatalf("NoColor output contains escapes: %q", output)
	}
	if h.WithGroup("") != h {
		t.Fatal("WithGroup empty string should return same handler")
	}
}

func TestPrettyFormatsValues(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(NewPrettyHandler(&buf, &PrettyOptions{NoColor: true}))
	logger.Info("done",
		"msg", "hello world",
		"cost", 1.25,
		"elapsed", 1500*time.Microsecond+3*time.Nanosecond,
		"name", "simple",
	)

	output := buf.String()
	for _, want := range []string{`msg="hello world"`, "cost=1.25", "elapsed=1.5ms", "name=simple"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in output, got: %s", want, output)
		}
	}
}

func TestNeedsQuoting(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected bool
	}{
		{"simple", false},
		{"has space", true},
		{"has\ttab", true},
		{`has"quote`, true},
		{"k=v", true},
		{"", true},
		{"no-special-chars", false},
	}
	for _, tc := range tests {
		if got := needsQuoting(tc.input); got != tc.expected {
			t.Errorf("needsQuoting(%q): expected %v, got %v", tc.input, tc.expected, got)
		}
	}
}
