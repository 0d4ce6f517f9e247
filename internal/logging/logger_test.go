package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
		{"FATAL", FATAL},
		{"verbose", INFO},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "INFO", JSONFormat: true, Component: "engine"}, &buf)

	l.Debug("dropped")
	l.WithField("symbol", "XAUUSD").Info("Proposal emitted", "confidence", 81.2, "stage", time.Second)
	l.WithError(errors.New("boom")).Warn("Fetch failed for %s", "EURUSD")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}

	first := lines[0]
	if first["level"] != "info" || first["message"] != "Proposal emitted" {
		t.Errorf("unexpected first line %v", first)
	}
	if first["component"] != "engine" || first["symbol"] != "XAUUSD" {
		t.Errorf("missing context fields in %v", first)
	}
	if first["confidence"] != 81.2 || first["stage"] != "1s" {
		t.Errorf("key/value args not encoded: %v", first)
	}

	second := lines[1]
	if second["message"] != "Fetch failed for EURUSD" || second["error"] != "boom" {
		t.Errorf("printf args or error field wrong: %v", second)
	}
}

func TestTraceContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "DEBUG", JSONFormat: true}, &buf)

	ctx := ContextWithTraceID(context.Background(), "trace-123")
	ctx, l := WithTraceContext(ctx, base)
	if l.TraceID() != "trace-123" || TraceIDFromContext(ctx) != "trace-123" {
		t.Errorf("caller trace id not reused: %q / %q", l.TraceID(), TraceIDFromContext(ctx))
	}
	if FromContext(ctx) != l {
		t.Error("FromContext should return the logger stored by WithTraceContext")
	}

	_, fresh := WithTraceContext(context.Background(), base)
	if fresh.TraceID() == "" || fresh.TraceID() == "trace-123" {
		t.Errorf("expected a generated trace id, got %q", fresh.TraceID())
	}

	GuardContext(l, "EURUSD").Info("Guard checked")
	lines := decodeLines(t, &buf)
	if len(lines) != 1 || lines[0]["trace_id"] != "trace-123" || lines[0]["component"] != "timeguard" {
		t.Errorf("unexpected guard line %v", lines)
	}
}

func TestNop(t *testing.T) {
	l := Nop()
	l.Error("nothing")
	if l.WithComponent("x").Component() != "x" {
		t.Error("WithComponent should tag the copy")
	}
}
