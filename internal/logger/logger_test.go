package logger

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"trace":   TraceLevel,
		"DEBUG":   DebugLevel,
		"":        InfoLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
		"fatal":   FatalLevel,
		"panic":   PanicLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(WarnLevel)
	Info("[TEST] hidden %d", 1)
	Warn("[TEST] shown %d", 2)
	Sync()

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info message should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "[TEST] shown 2") || !strings.Contains(out, "WARN") {
		t.Fatalf("warn message missing: %q", out)
	}
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(nil)
	prev := GetLevel()
	defer SetLevel(prev)

	SetLevel(TraceLevel)
	Trace("[TEST] deep")
	Sync()

	if !strings.Contains(buf.String(), "TRACE") {
		t.Fatalf("expected TRACE level name, got %q", buf.String())
	}
}
