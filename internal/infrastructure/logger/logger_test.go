package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_JSONForProduction(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "facturador", "info", "production")

	log.Info("ticket renewed", "service", "wsfe")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["app"] != "facturador" {
		t.Errorf("expected app attribute, got %v", entry["app"])
	}
	if entry["service"] != "wsfe" {
		t.Errorf("expected service attribute, got %v", entry["service"])
	}
}

func TestNewWithWriter_TextForLocal(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "facturador", "debug", "local")

	log.Debug("allocating number")

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG") {
		t.Errorf("expected text output with debug level, got %q", out)
	}
	if strings.Contains(out, colorCyan) {
		t.Error("colors must be disabled for non terminal writers")
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "facturador", "warn", "production")

	log.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}

	for input, want := range tests {
		if got := ParseLevel(input); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestNewWithWriter_RedactsCredentials(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "facturador", "info", "production")

	log.Info("login response", "token", "PD94bWwg", "Sign", "c2lnbg==", "expires_in", "12h")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output: %v", err)
	}
	if entry["token"] != redacted || entry["Sign"] != redacted {
		t.Errorf("expected credentials redacted, got token=%v sign=%v", entry["token"], entry["Sign"])
	}
	if entry["expires_in"] != "12h" {
		t.Errorf("expected other attributes untouched, got %v", entry["expires_in"])
	}
	if entry["environment"] != "production" {
		t.Errorf("expected environment attribute, got %v", entry["environment"])
	}
}
