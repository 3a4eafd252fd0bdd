package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestLoggerInit(t *testing.T) {
	if err := Init(); err != nil {
		t.Fatalf("failed to initialize text logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat(FormatJSON)); err != nil {
		t.Fatalf("failed to initialize json logger: %v", err)
	}
	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}

	if err := Init(WithFormat("xml")); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithFormat(FormatJSON), WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	Named("scoring").With(String("challengeId", "c1")).Warn(context.Background(), "missing criteria",
		Int("count", 2),
		Duration("took", time.Millisecond),
		Error(errors.New("boom")),
	)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%s)", err, buf.String())
	}
	if rec["msg"] != "missing criteria" {
		t.Fatalf("unexpected msg: %v", rec["msg"])
	}
	group, ok := rec["scoring"].(map[string]any)
	if !ok {
		t.Fatalf("expected scoring group, got %v", rec)
	}
	if group["challengeId"] != "c1" || group["error"] != "boom" {
		t.Fatalf("unexpected group fields: %v", group)
	}
	source, _ := group["source"].(string)
	if !strings.Contains(source, "logger_test.go") {
		t.Fatalf("source should point at the caller, got %q", source)
	}
}

func TestSetLevelString(t *testing.T) {
	var buf bytes.Buffer
	if err := Init(WithOutput(&buf)); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = Init() }()

	if err := SetLevelString("error"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at error level, got %q", buf.String())
	}

	if err := SetLevelString("verbose"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	if err := SetLevelString(" WARNING "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	Get().Warn(context.Background(), "shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn should pass at warn level, got %q", buf.String())
	}
}
