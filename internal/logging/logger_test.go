package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelWarn, FormatText, &buf)

	l.Info("dropped")
	l.Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("info line should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "warn: kept") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestForJobFieldsInJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(LevelInfo, FormatJSON, &buf)

	l.ForAccount("acct-1").ForJob("job-9", "full").WithError(errors.New("boom")).Info("finished")

	var entry LogEntry
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if entry.Message != "finished" {
		t.Errorf("message = %q", entry.Message)
	}
	for key, want := range map[string]string{
		"account_id": "acct-1",
		"job_id":     "job-9",
		"scope":      "full",
		"error":      "boom",
	} {
		if got := entry.Fields[key]; got != want {
			t.Errorf("field %s = %v, want %s", key, got, want)
		}
	}
}

func TestDerivedLoggerDoesNotMutateParent(t *testing.T) {
	var buf bytes.Buffer
	parent := New(LevelInfo, FormatJSON, &buf)
	_ = parent.WithField("k", "v")

	parent.Info("plain")
	if strings.Contains(buf.String(), `"k"`) {
		t.Errorf("parent picked up child field: %s", buf.String())
	}
}

func TestFromContext(t *testing.T) {
	l := Discard()
	ctx := WithLogger(context.Background(), l)
	if FromContext(ctx) != l {
		t.Error("FromContext should return the stored logger")
	}
	if FromContext(context.Background()) == nil {
		t.Error("FromContext should fall back to the global logger")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LevelDebug,
		"WARNING": LevelWarn,
		"error":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
