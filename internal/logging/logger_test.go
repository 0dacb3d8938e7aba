package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Level:  LevelDebug,
		Output: &buf,
		JSON:   true,
	})
	if logger == nil {
		t.Fatal("New logger should not be nil")
	}

	t.Run("Levels", func(t *testing.T) {
		for _, tc := range []struct {
			log func(string, ...any)
			msg string
		}{
			{logger.Debug, "debug msg"},
			{logger.Info, "info msg"},
			{logger.Warn, "warn msg"},
			{logger.Error, "error msg"},
		} {
			buf.Reset()
			tc.log(tc.msg)
			if !strings.Contains(buf.String(), tc.msg) {
				t.Errorf("expected %q in output, got %q", tc.msg, buf.String())
			}
		}
	})

	t.Run("WithComponent", func(t *testing.T) {
		buf.Reset()
		logger.WithComponent("store").Info("msg")
		if !strings.Contains(buf.String(), "store") {
			t.Error("WithComponent missing component field")
		}
	})

	t.Run("Audit", func(t *testing.T) {
		buf.Reset()
		logger.Audit("rule.create", "rule:abc", map[string]any{"ip": "1.2.3.4"})
		logStr := buf.String()
		if !strings.Contains(logStr, "AUDIT") || !strings.Contains(logStr, "rule:abc") {
			t.Errorf("Audit log incomplete: %s", logStr)
		}
	})
}

func TestConsoleHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})

	l.WithComponent("API").Info("request done", "path", "/rules", "note", "two words")

	line := buf.String()
	if !strings.Contains(line, "[info] api: request done") {
		t.Errorf("unexpected header: %s", line)
	}
	if !strings.Contains(line, "path=/rules") {
		t.Errorf("missing attr: %s", line)
	}
	if !strings.Contains(line, `note="two words"`) {
		t.Errorf("spaces should be quoted: %s", line)
	}
	if strings.Contains(line, "component=") {
		t.Errorf("component should be promoted, not repeated: %s", line)
	}
}

func TestConsoleHandlerGroup(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf})
	l.WithGroup("req").Info("grouped", "id", "42")
	if !strings.Contains(buf.String(), "req.id=42") {
		t.Errorf("expected grouped key, got %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"", LevelInfo, false},
		{"INFO", LevelInfo, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"loud", LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDefaultLogger(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(Config{Level: LevelInfo, Output: &buf}))
	defer SetDefault(prev)

	WithComponent("comp").Debug("hidden")
	WithComponent("comp").Info("comp msg")

	if !strings.Contains(buf.String(), "[info] comp: comp msg") {
		t.Errorf("default logger did not capture output: %s", buf.String())
	}
	if strings.Contains(buf.String(), "hidden") {
		t.Errorf("debug line below the configured level: %s", buf.String())
	}
}

func TestJSONLogParsing(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: LevelInfo, Output: &buf, JSON: true})

	l.Info("json test", "key", "value")

	var data map[string]any
	if err := json.Unmarshal(buf.Bytes(), &data); err != nil {
		t.Fatalf("Failed to parse JSON log: %v", err)
	}
	if data["msg"] != "json test" || data["key"] != "value" || data["level"] != "INFO" {
		t.Errorf("unexpected JSON log: %v", data)
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("nobody hears this")
	if l.Enabled(context.Background(), LevelError) {
		t.Error("Discard logger should not be enabled for errors")
	}
}
