package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T, level string) (Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, err := New(Config{Level: level, Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, &buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("unmarshal log line %q: %v", lines[len(lines)-1], err)
	}
	return entry
}

func TestLogger_JSONOutput(t *testing.T) {
	l, buf := newTestLogger(t, "info")

	l.Info("batch complete", "batch", 7, "k_eff", 1.02)

	entry := lastEntry(t, buf)
	if entry["msg"] != "batch complete" {
		t.Errorf("msg = %v, want %q", entry["msg"], "batch complete")
	}
	if entry["batch"] != float64(7) {
		t.Errorf("batch = %v, want 7", entry["batch"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	l, buf := newTestLogger(t, "warn")

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("output contains filtered entries: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("output missing warn entry: %s", out)
	}
}

func TestLogger_With(t *testing.T) {
	l, buf := newTestLogger(t, "info")

	l.With("rank", 3).Info("ready")

	entry := lastEntry(t, buf)
	if entry["rank"] != float64(3) {
		t.Errorf("rank = %v, want 3", entry["rank"])
	}
}

func TestLogger_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "text", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Info("hello")
	if !strings.Contains(buf.String(), "msg=hello") {
		t.Errorf("text output = %q, want msg=hello", buf.String())
	}
}

func TestSetLevel(t *testing.T) {
	l, buf := newTestLogger(t, "info")

	l.Debug("before")
	SetLevel("debug")
	defer SetLevel("info")
	l.Debug("after")

	out := buf.String()
	if strings.Contains(out, "before") {
		t.Error("debug entry logged before SetLevel(debug)")
	}
	if !strings.Contains(out, "after") {
		t.Error("debug entry missing after SetLevel(debug)")
	}
	if GetLevel() != "debug" {
		t.Errorf("GetLevel = %q, want debug", GetLevel())
	}
}

func TestContext_Propagation(t *testing.T) {
	l, buf := newTestLogger(t, "info")

	ctx := WithLogger(context.Background(), l)
	ctx = WithRunID(ctx, "01JABCDEF")
	ctx = WithRank(ctx, 2)

	L(ctx).Info("restoring")

	entry := lastEntry(t, buf)
	if entry["run_id"] != "01JABCDEF" {
		t.Errorf("run_id = %v, want 01JABCDEF", entry["run_id"])
	}
	if entry["rank"] != float64(2) {
		t.Errorf("rank = %v, want 2", entry["rank"])
	}
}

func TestContext_Defaults(t *testing.T) {
	ctx := context.Background()
	if FromContext(ctx) == nil {
		t.Fatal("FromContext should fall back to the default logger")
	}
	if RunIDFromContext(ctx) != "" {
		t.Error("RunIDFromContext on empty context should be empty")
	}
	if RankFromContext(ctx) != -1 {
		t.Error("RankFromContext on empty context should be -1")
	}
}
