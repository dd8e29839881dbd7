package logging

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
)

type backendName string

func (b backendName) String() string { return string(b) }

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("Failed to unmarshal %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"info", InfoLevel},
		{"WARNING", WarnLevel},
		{"warn", WarnLevel},
		{"ERROR", ErrorLevel},
		{" Warn ", WarnLevel},
		{"verbose", InfoLevel}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
			if got := ParseLevel(tt.input).String(); got == "UNKNOWN" {
				t.Errorf("Level %q has no name", tt.input)
			}
		})
	}
}

func TestDomainFields(t *testing.T) {
	tests := []struct {
		field Field
		key   string
		value any
	}{
		{NodeID("n1"), "node_id", "n1"},
		{TaskID("abc"), "task_id", "abc"},
		{WorkerID(3), "worker_id", 3},
		{Backend(backendName("kernel")), "backend", "kernel"},
		{Device("software"), "device", "software"},
		{Generation(9), "generation", uint64(9)},
		{Iteration(120), "iteration", 120},
		{Alpha(0.5), "alpha", 0.5},
		{LayoutType("forceDirected2d"), "layout_type", "forceDirected2d"},
		{Path("layout.yaml"), "path", "layout.yaml"},
		{Count(2), "count", 2},
		{Latency(2 * time.Second), "latency", "2s"},
		{Error(errors.New("boom")), "error", "boom"},
		{Error(nil), "error", nil},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if tt.field.Key != tt.key || tt.field.Value != tt.value {
				t.Errorf("Field = %+v, want {%s %v}", tt.field, tt.key, tt.value)
			}
		})
	}
}

func TestJSONLogger_Entry(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	logger.Info("layout converged", Generation(4), Iteration(300), Backend(backendName("synchronous")))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != "INFO" || entry.Message != "layout converged" {
		t.Errorf("Unexpected entry %+v", entry)
	}
	if entry.Fields["generation"] != float64(4) { // JSON numbers decode as float64
		t.Errorf("generation = %v, want 4", entry.Fields["generation"])
	}
	if entry.Fields["backend"] != "synchronous" {
		t.Errorf("backend = %v, want synchronous", entry.Fields["backend"])
	}
	if entry.Time == "" {
		t.Error("Time field is empty")
	}
}

func TestJSONLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, WarnLevel)

	logger.Debug("step")
	logger.Info("run started")
	logger.Warn("kernel unavailable")
	logger.Error("task failed")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("Unexpected levels %s, %s", entries[0].Level, entries[1].Level)
	}

	buf.Reset()
	logger.SetLevel(DebugLevel)
	if logger.GetLevel() != DebugLevel {
		t.Errorf("GetLevel = %v, want DEBUG", logger.GetLevel())
	}
	logger.Debug("step")
	if buf.Len() == 0 {
		t.Error("Expected DEBUG output after SetLevel")
	}
}

func TestJSONLogger_With(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	child := logger.With(Component("pool"), WorkerID(2))
	child.Info("worker replaced", TaskID("t-1"))
	logger.Info("parent")

	entries := decodeLines(t, &buf)
	if entries[0].Fields["component"] != "pool" || entries[0].Fields["task_id"] != "t-1" {
		t.Errorf("Child fields missing: %+v", entries[0].Fields)
	}
	if _, ok := entries[1].Fields["component"]; ok {
		t.Error("With leaked fields into the parent logger")
	}
	if entries[1].Fields != nil {
		t.Errorf("Expected fields to be omitted, got %+v", entries[1].Fields)
	}
}

func TestStartTimer(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, DebugLevel)

	timer := StartTimer(logger, "layout finished", Generation(1))
	time.Sleep(time.Millisecond)
	if timer.Elapsed() < time.Millisecond {
		t.Errorf("Elapsed = %v, want at least 1ms", timer.Elapsed())
	}
	if d := timer.End(String("status", "converged")); d < time.Millisecond {
		t.Errorf("End returned %v", d)
	}
	timer.EndError(errors.New("device lost"), String("status", "error"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Message != "layout finished" || e.Fields["generation"] != float64(1) {
			t.Errorf("Unexpected entry %+v", e)
		}
		if _, ok := e.Fields["latency"]; !ok {
			t.Errorf("Entry %q has no latency", e.Message)
		}
	}
	if entries[0].Level != "INFO" || entries[0].Fields["status"] != "converged" {
		t.Errorf("Unexpected info entry %+v", entries[0])
	}
	if entries[1].Level != "ERROR" || entries[1].Fields["error"] != "device lost" {
		t.Errorf("Unexpected error entry %+v", entries[1])
	}
}

func TestCallSiteFieldsOverrideWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel).With(Component("pool"))

	logger.Info("moved", Component("layout"))

	entries := decodeLines(t, &buf)
	if entries[0].Fields["component"] != "layout" {
		t.Errorf("component = %v, want layout", entries[0].Fields["component"])
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()
	logger.Info("ignored", NodeID("n"))
	if logger.With(Component("x")) == nil {
		t.Error("NopLogger.With returned nil")
	}
	if logger.GetLevel() != InfoLevel {
		t.Errorf("NopLogger level = %v", logger.GetLevel())
	}
}

func BenchmarkJSONLogger_Info(b *testing.B) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, InfoLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("batch published",
			Generation(uint64(i)),
			Iteration(42),
		)
	}
}

func BenchmarkJSONLogger_InfoFiltered(b *testing.B) {
	var buf bytes.Buffer
	logger := NewJSONLogger(&buf, ErrorLevel)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info("batch published",
			Generation(uint64(i)),
			Iteration(42),
		)
	}
}
