package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"DEBUG": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"ERROR": slog.LevelError,
		"INFO":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"junk":  slog.LevelInfo,
	}
	for value, want := range cases {
		t.Setenv("LOG_LEVEL", value)
		if got := LogLevel(); got != want {
			t.Errorf("LogLevel() with LOG_LEVEL=%q = %v, want %v", value, got, want)
		}
	}
}

func TestLoggerContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	ctx := WithLogger(context.Background(), logger)
	FromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("context logger should receive the record, got %q", buf.String())
	}

	// Пустой контекст не паникует, а отдаёт глобальный логгер.
	if FromContext(context.Background()) == nil {
		t.Error("FromContext without a logger should fall back to the default")
	}
}

func TestLoggerAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	WithDag(WithJobID(WithItem(logger, "store"), "42"), "dag-0").Info("run")

	out := buf.String()
	for _, attr := range []string{"item=store", "job_id=42", "dag=dag-0"} {
		if !strings.Contains(out, attr) {
			t.Errorf("expected %q in log record, got %q", attr, out)
		}
	}
}
