package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/hbl-templ/bakerloo-line-extension/internal/config"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTo(&buf, config.Config{AppEnv: "prod", LogLevel: slog.LevelInfo}, "1.2.3", "ble-server")

	logger.Debug("hidden")
	logger.Info("cache invalidated", "entries", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1 (debug filtered): %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for key, want := range map[string]any{"msg": "cache invalidated", "app": "ble-server", "version": "1.2.3", "env": "prod", "entries": float64(3)} {
		if rec[key] != want {
			t.Errorf("%s = %v, want %v", key, rec[key], want)
		}
	}
}

func TestNew_DevWritesText(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTo(&buf, config.Config{AppEnv: "dev", LogLevel: slog.LevelDebug}, "dev", "ble-server")

	logger.Debug("sql", "op", "query")

	out := buf.String()
	if !strings.Contains(out, "sql") || !strings.Contains(out, "ble-server") {
		t.Errorf("output = %q", out)
	}
	if json.Valid([]byte(strings.TrimSpace(out))) {
		t.Error("dev output is JSON; want text")
	}
}
