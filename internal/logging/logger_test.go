package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := levelFromString(in).Level(); got != want {
			t.Errorf("%q: got %v want %v", in, got, want)
		}
	}
}

func TestLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "info", "json").Info("booking run started", "run_id", "r1")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil || line["run_id"] != "r1" {
		t.Fatalf("expected a JSON line, got %q (%v)", buf.String(), err)
	}

	buf.Reset()
	l := newLogger(&buf, "warn", "text")
	l.Info("dropped")
	l.Warn("kept", "provider", "yellow")
	out := buf.String()
	if strings.Contains(out, "dropped") || !strings.Contains(out, "provider=yellow") {
		t.Fatalf("unexpected text output %q", out)
	}
}
