package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWriterLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "debug").WithSession("s-1").With("target", "a.txt")

	log.Info("state changed", "state", "presented")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	if entry["msg"] != "state changed" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["session_id"] != "s-1" {
		t.Errorf("session_id = %v", entry["session_id"])
	}
	if entry["target"] != "a.txt" {
		t.Errorf("target = %v", entry["target"])
	}
	if entry["state"] != "presented" {
		t.Errorf("state = %v", entry["state"])
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, "warn")

	log.Debug("hidden")
	log.Info("hidden")
	log.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("expected debug/info filtered, got %q", out)
	}
	if !strings.Contains(out, "shown") {
		t.Errorf("expected warn entry, got %q", out)
	}
}

func TestFileLogger(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	log, err := NewLogger(dir, "info")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	log.WithComponent("review").Info("hello")
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Second close is a no-op.
	if err := log.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, LogFileName))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), `"component":"review"`) {
		t.Errorf("expected component attr in %q", data)
	}
}

func TestParseLevelDefault(t *testing.T) {
	if got := parseLevel("bogus"); got.String() != "INFO" {
		t.Errorf("parseLevel(bogus) = %v, want INFO", got)
	}
}
