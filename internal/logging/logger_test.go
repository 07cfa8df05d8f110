package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func textLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&Config{
		Level:   level,
		Format:  "text",
		Output:  buf,
		NoColor: true,
	})
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{
			name:   "default config",
			config: nil,
		},
		{
			name: "json format",
			config: &Config{
				Level:  LevelInfo,
				Format: "json",
				Output: &bytes.Buffer{},
			},
		},
		{
			name: "text format without output",
			config: &Config{
				Level:  LevelDebug,
				Format: "text",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewLogger(tt.config)
			if logger == nil {
				t.Error("NewLogger() returned nil")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestLoggerWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelDebug)

	deviceLogger := logger.WithDevice("/dev/sdb")
	deviceLogger.Info("test message")

	output := buf.String()
	if !strings.Contains(output, "device=/dev/sdb") {
		t.Errorf("Expected device=/dev/sdb in output, got: %s", output)
	}

	buf.Reset()
	zoneLogger := deviceLogger.WithZone(0x80000).WithOp("reset")
	zoneLogger.Info("zone message")

	output = buf.String()
	for _, want := range []string{"device=/dev/sdb", "zone=0x80000", "op=reset"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %s in output, got: %s", want, output)
		}
	}
	if zoneLogger.Device() != "/dev/sdb" {
		t.Errorf("Device() = %q, want /dev/sdb", zoneLogger.Device())
	}
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelDebug)

	errorLogger := logger.WithError(errors.New("test error"))
	errorLogger.Error("operation failed")

	output := buf.String()
	if !strings.Contains(output, "test error") {
		t.Errorf("Expected 'test error' in output, got: %s", output)
	}
}

func TestJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&Config{Level: LevelInfo, Format: "json", Output: &buf})

	logger.WithDevice("/dev/nvme0n2").Info("report", "zones", 7, "truncated", true, "dangling")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if entry["device"] != "/dev/nvme0n2" {
		t.Errorf("device = %v", entry["device"])
	}
	if entry["zones"] != float64(7) {
		t.Errorf("zones = %v", entry["zones"])
	}
	if entry["truncated"] != true {
		t.Errorf("truncated = %v", entry["truncated"])
	}
	if _, ok := entry["dangling"]; ok {
		t.Error("trailing key without a value should be dropped")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := textLogger(&buf, LevelWarn)

	logger.Debug("hidden")
	logger.Infof("hidden %d", 1)
	if buf.Len() != 0 {
		t.Errorf("Expected no output below warn, got: %s", buf.String())
	}

	logger.Warnf("shown %d", 2)
	if !strings.Contains(buf.String(), "shown 2") {
		t.Errorf("Expected warn output, got: %s", buf.String())
	}
}

func TestNop(t *testing.T) {
	// must not panic
	Nop().WithDevice("x").WithZone(1).Error("nothing", "k", "v")
}

func TestGlobalLoggerFunctions(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(textLogger(&buf, LevelDebug))
	defer SetDefault(prev)

	Debug("debug message", "key", "value")
	output := buf.String()
	if !strings.Contains(output, "debug message") {
		t.Errorf("Expected debug message, got: %s", output)
	}
	if !strings.Contains(output, "key=value") {
		t.Errorf("Expected key=value, got: %s", output)
	}

	buf.Reset()
	Info("info message")
	if !strings.Contains(buf.String(), "info message") {
		t.Errorf("Expected info message, got: %s", buf.String())
	}

	buf.Reset()
	Warn("warning message")
	if !strings.Contains(buf.String(), "warning message") {
		t.Errorf("Expected warning message, got: %s", buf.String())
	}

	buf.Reset()
	Error("error message")
	if !strings.Contains(buf.String(), "error message") {
		t.Errorf("Expected error message, got: %s", buf.String())
	}
}
