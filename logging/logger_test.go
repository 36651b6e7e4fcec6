package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"INFO":    zapcore.InfoLevel,
		"warning": zapcore.WarnLevel,
		" warn ":  zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"verbose": zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
	}

	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestInitLogger(t *testing.T) {
	logger, err := InitLogger("warn", FormatJSON)
	if err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
	defer logger.Sync()

	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Error("Expected info to be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.WarnLevel) {
		t.Error("Expected warn to be enabled")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("info", "", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug("hidden")
	logger.Info("Storefront refreshed", zap.String("storefront", "gb"))
	logger.Sync()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 entry, got %d: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON entry, got %q: %v", lines[0], err)
	}

	want := map[string]string{
		"level":      "info",
		"msg":        "Storefront refreshed",
		"service":    "musickit",
		"storefront": "gb",
	}
	for key, value := range want {
		if entry[key] != value {
			t.Errorf("Expected %s=%q, got %v", key, value, entry[key])
		}
	}
	if _, ok := entry["time"].(string); !ok {
		t.Errorf("Expected time field, got %v", entry["time"])
	}
	if _, ok := entry["caller"]; !ok {
		t.Error("Expected caller field")
	}
}

func TestNewConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", " Console ", zapcore.AddSync(&buf))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Warn("Playback queue rejected", zap.Int("tracks", 2))
	logger.Sync()

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("Expected console output, got %q", out)
	}
	for _, want := range []string{"\tWARN\t", "Playback queue rejected", `"tracks": 2`, `"service": "musickit"`} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got %q", want, out)
		}
	}
}

func TestNewUnknownFormat(t *testing.T) {
	if _, err := New("info", "xml", zapcore.AddSync(&bytes.Buffer{})); err == nil {
		t.Error("Expected error for unknown format")
	}
	if _, err := InitLogger("info", "logfmt"); err == nil {
		t.Error("Expected error for unknown format")
	}
}
