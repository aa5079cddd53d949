package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerRedactsAPIKeyInMessage(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	logger.Info("calling provider", "api_key", "sk-ant-REDACTED")

	out := buf.String()
	if strings.Contains(out, "abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("expected secret to be redacted, got: %s", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker in output: %s", out)
	}
}

func TestNewLoggerRedactsBearerTokenInAttr(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	logger.Warn("auth header", "header", "Bearer sk-abcdefghijklmnopqrstuvwxyz0123456789ABCDEFGH")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	header, _ := record["header"].(string)
	if strings.Contains(header, "sk-abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("expected header value redacted, got %q", header)
	}
}

func TestNewLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "text", Output: &buf})
	logger.Info("hello", "k", "v")

	if !strings.Contains(buf.String(), "msg=hello") {
		t.Fatalf("expected text-handler output, got: %s", buf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for input, want := range cases {
		if got := LevelFromString(input); got != want {
			t.Errorf("LevelFromString(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestFromContextAttachesCorrelationIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(LogConfig{Format: "json", Output: &buf})

	ctx := context.Background()
	ctx = AddTurnID(ctx, "turn-1")
	ctx = AddUserID(ctx, "user-1")

	FromContext(ctx, logger).Info("processing turn")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["turn_id"] != "turn-1" || record["user_id"] != "user-1" {
		t.Fatalf("expected correlation fields in record: %+v", record)
	}
}
